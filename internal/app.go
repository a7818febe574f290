package internal

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"
	"github.com/GamechangerTeam/geokurs-form/internal/config"
	"github.com/GamechangerTeam/geokurs-form/internal/diagnostics"
	"github.com/GamechangerTeam/geokurs-form/internal/logging"
	"github.com/GamechangerTeam/geokurs-form/internal/server"

	"github.com/go-core-fx/logger"
	"go.uber.org/fx"
)

func Run() error {
	app := fx.New(
		logger.Module(),
		logger.WithFxDefaultLogger(),
		config.Module(),
		logging.Module(),
		bitrix.Module(),
		diagnostics.Module(),
		server.Module(),
	)

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	return app.Stop(ctx)
}

package diagnostics

import (
	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"
	"github.com/GamechangerTeam/geokurs-form/internal/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"diagnostics",
		fx.Provide(func(cfg config.Config, client *bitrix.Client, logger *zap.Logger) *Service {
			return NewService(cfg, client, logger)
		}),
	)
}

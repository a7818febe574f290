package server

import (
	"context"

	"github.com/GamechangerTeam/geokurs-form/internal/bitrix"
	"github.com/GamechangerTeam/geokurs-form/internal/config"
	"github.com/GamechangerTeam/geokurs-form/internal/diagnostics"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module(
		"server",
		fx.Provide(func(cfg config.Config, svc *diagnostics.Service, client *bitrix.Client, logger *zap.Logger) *Server {
			return New(cfg, svc, client, logger)
		}),
		fx.Invoke(func(lc fx.Lifecycle, srv *Server, logger *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						if err := srv.Start(); err != nil {
							logger.Error("http server stopped", zap.Error(err))
						}
					}()
					return nil
				},
				OnStop: func(ctx context.Context) error {
					return srv.Stop(ctx)
				},
			})
		}),
	)
}

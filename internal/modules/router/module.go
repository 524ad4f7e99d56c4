package router

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/config"
	"turtle_bot/internal/modules/router/service"
)

func Module() fx.Option {
	return fx.Module("router",
		fx.Provide(
			func(log *zap.Logger, cfg *config.Config) *service.Router {
				return service.NewRouter(log, cfg.Execution.Market)
			},
		),
	)
}

package feed

import (
	"go.uber.org/fx"

	"turtle_bot/internal/modules/config"
	"turtle_bot/internal/modules/feed/service"
)

func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			func(cfg *config.Config) *service.Adapter {
				return service.NewAdapter(cfg.Feed.Window)
			},
			service.NewSurgeDetector,
		),
	)
}

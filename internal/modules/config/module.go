package config

import (
	"context"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
			NewWatcher,
		),
		fx.Invoke(func(lc fx.Lifecycle, w *Watcher) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					return w.Start()
				},
			})
		}),
	)
}

package bootstrap

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	bootstrap "turtle_bot/internal/modules/bootstrap/service"
	"turtle_bot/internal/modules/config"
	exchange "turtle_bot/internal/modules/exchange/service"
	execution "turtle_bot/internal/modules/execution/service"
	runner "turtle_bot/internal/modules/runner/service"
)

func Module() fx.Option {
	return fx.Module("bootstrap",
		fx.Provide(
			func(log *zap.Logger, cfg *config.Config, pub *exchange.Public, r *runner.Runner, n execution.Notifier) *bootstrap.Warmuper {
				return bootstrap.NewWarmuper(log, pub, r, n, cfg.Feed.CandleInterval)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, wu *bootstrap.Warmuper) {
			var cancel context.CancelFunc
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					var ctx context.Context
					ctx, cancel = context.WithCancel(context.Background())
					go func() {
						if err := wu.Warmup(ctx, cfg.Feed.Instruments); err != nil {
							log.Warn("[BOOT] warmup error", zap.Error(err))
						}
					}()
					return nil
				},
				OnStop: func(context.Context) error {
					if cancel != nil {
						cancel()
					}
					return nil
				},
			})
		}),
	)
}

package stream

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/config"
	health "turtle_bot/internal/modules/health/service"
	runner "turtle_bot/internal/modules/runner/service"
	"turtle_bot/internal/modules/stream/service"
)

// Module поднимает websocket-стример тикеров Bithumb.
func Module() fx.Option {
	return fx.Module("stream",
		fx.Provide(
			func(log *zap.Logger, cfg *config.Config) *service.Client {
				return service.NewClient(log, cfg.Exchange.WSURL, cfg.Feed.Instruments)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client, r *runner.Runner, st *health.State) {
			c.OnState(st.SetWSConnected)
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					c.Start(r)
					return nil
				},
				OnStop: func(context.Context) error {
					c.Stop()
					return nil
				},
			})
		}),
	)
}

package screener

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/config"
	exchange "turtle_bot/internal/modules/exchange/service"
	execution "turtle_bot/internal/modules/execution/service"
	feed "turtle_bot/internal/modules/feed/service"
	"turtle_bot/internal/modules/screener/service"
)

// Module: периодический обзор рынка KRW в чат; выключен по умолчанию.
func Module() fx.Option {
	return fx.Module("screener",
		fx.Provide(
			func(log *zap.Logger, cfg *config.Config, pub *exchange.Public, a *feed.Adapter, n execution.Notifier) *service.Screener {
				c := cfg.Screener
				return service.NewScreener(log, pub, a, n, service.Config{
					Limit:      c.Limit,
					Top:        c.Top,
					MinCandles: c.MinCandles,
				})
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config, s *service.Screener) {
			if !cfg.Screener.Enabled {
				return
			}
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					log.Info("[SCREEN] started", zap.String("term", cfg.Screener.Term), zap.Duration("every", cfg.Screener.Every))
					s.Start(service.Term(cfg.Screener.Term), cfg.Screener.Every)
					return nil
				},
				OnStop: func(context.Context) error {
					s.Stop()
					return nil
				},
			})
		}),
	)
}

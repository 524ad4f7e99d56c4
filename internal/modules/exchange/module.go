package exchange

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/config"
	"turtle_bot/internal/modules/exchange/service"
	execution "turtle_bot/internal/modules/execution/service"
)

// Module: без ключей API торгуем на бумаге, с ключами: через Bithumb.
func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			func(cfg *config.Config) *service.Public {
				return service.NewPublic(cfg.Exchange.RestURL, cfg.Exchange.RequestTimeout)
			},
			func(log *zap.Logger, cfg *config.Config) service.Venue {
				c := cfg.Exchange
				if c.APIKey == "" || c.APISecret == "" {
					log.Warn("[EXCHANGE] no api keys, paper trading")
					return service.NewPaper(log, cfg.Backtest.SlippageBps)
				}
				return service.NewClient(log, service.NewHTTPRequester(c.RestURL, c.APIKey, c.APISecret, c.RequestTimeout))
			},
			func(v service.Venue) execution.Exchange { return v },
			func(log *zap.Logger, cfg *config.Config, v service.Venue, e *execution.Engine) *service.Poller {
				return service.NewPoller(log, v, e, cfg.Exchange.PollInterval)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, p *service.Poller) {
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					p.Start()
					return nil
				},
				OnStop: func(context.Context) error {
					p.Stop()
					return nil
				},
			})
		}),
	)
}

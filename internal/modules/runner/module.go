package runner

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/config"
	exchange "turtle_bot/internal/modules/exchange/service"
	execution "turtle_bot/internal/modules/execution/service"
	feed "turtle_bot/internal/modules/feed/service"
	ledger "turtle_bot/internal/modules/ledger/service"
	router "turtle_bot/internal/modules/router/service"
	"turtle_bot/internal/modules/runner/service"
	strategy "turtle_bot/internal/modules/strategy/service"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Cfg       *config.Config
	Adapter   *feed.Adapter
	Surge     *feed.SurgeDetector
	Evaluator *strategy.Evaluator
	Router    *router.Router
	Engine    *execution.Engine
	Ledger    *ledger.Ledger
	Notifier  execution.Notifier
}

func settingsFrom(cfg *config.Config) service.Settings {
	return service.Settings{
		Strategies: append([]models.StrategyConfig(nil), cfg.Strategies...),
		Risk:       cfg.Risk.Model(),
	}
}

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			func(p Params) *service.Runner {
				return service.NewRunner(p.Log, service.Deps{
					Feed:      p.Adapter,
					Evaluator: p.Evaluator,
					Router:    p.Router,
					Executor:  p.Engine,
					Positions: p.Ledger,
					Notifier:  p.Notifier,
					SurgeCheck: func(s models.MarketSnapshot) bool {
						return p.Surge.Observe(s.InstrumentID, s.LastPrice, s.Volume)
					},
				}, p.Cfg.Runner.QueueSize, p.Cfg.Runner.QueuePolicy, settingsFrom(p.Cfg))
			},
			func(log *zap.Logger, cfg *config.Config, pub *exchange.Public, r *service.Runner) *service.Scheduler {
				return service.NewScheduler(log, pub, r, cfg.Feed.Instruments, cfg.Feed.CandleInterval, cfg.Runner.TickInterval)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, r *service.Runner, s *service.Scheduler, w *config.Watcher, l *ledger.Ledger) {
			l.OnHalt(r.OnHalt)
			w.OnChange(func(c *config.Config) {
				r.Apply(settingsFrom(c))
			})
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					r.Start()
					s.Start()
					return nil
				},
				OnStop: func(context.Context) error {
					s.Stop()
					return r.Stop()
				},
			})
		}),
	)
}

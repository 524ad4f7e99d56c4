package backtest

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/backtest/service"
	execution "turtle_bot/internal/modules/execution/service"
	"turtle_bot/internal/modules/postgres/store"
	router "turtle_bot/internal/modules/router/service"
	strategy "turtle_bot/internal/modules/strategy/service"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Evaluator *strategy.Evaluator
	Router    *router.Router
	Results   *store.Results     `optional:"true"`
	Notifier  execution.Notifier `optional:"true"`
}

func Module() fx.Option {
	return fx.Module("backtest",
		fx.Provide(
			func(p Params) *service.Simulator {
				return service.NewSimulator(p.Log, p.Evaluator, p.Router)
			},
			func(p Params, sim *service.Simulator) *service.Service {
				var st service.Store
				if p.Results != nil {
					st = p.Results
				}
				var n service.Notifier
				if p.Notifier != nil {
					n = p.Notifier
				}
				return service.NewService(p.Log, sim, st, n)
			},
		),
	)
}

package execution

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/config"
	"turtle_bot/internal/modules/execution/service"
	ledger "turtle_bot/internal/modules/ledger/service"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Cfg      *config.Config
	Exchange service.Exchange
	Ledger   *ledger.Ledger
	Notifier service.Notifier
	Journal  service.Journal `optional:"true"`
}

func Module() fx.Option {
	return fx.Module("execution",
		fx.Provide(
			func(p Params) *service.Engine {
				c := p.Cfg.Execution
				return service.NewEngine(p.Log, service.Config{
					SubmitTimeout: c.SubmitTimeout,
					AckTimeout:    c.AckTimeout,
					CancelTimeout: c.CancelTimeout,
					MaxAttempts:   c.MaxAttempts,
					BackoffBase:   c.BackoffBase,
					BackoffMax:    c.BackoffMax,
				}, p.Exchange, p.Ledger, p.Notifier, p.Journal)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, e *service.Engine, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					// на остановке снимаем всё, что висит на бирже
					if err := e.KillSwitch(ctx, ""); err != nil {
						log.Warn("[EXEC] open orders left on shutdown", zap.Error(err))
					}
					return nil
				},
			})
		}),
	)
}

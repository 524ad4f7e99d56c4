package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/config"
	execution "turtle_bot/internal/modules/execution/service"
	ledger "turtle_bot/internal/modules/ledger/service"
	"turtle_bot/internal/modules/notify/service"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Cfg    *config.Config
	Ledger *ledger.Ledger
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			func(p Params) (*service.Telegram, error) {
				bot, err := service.NewBot(p.Cfg.Telegram.Token)
				if err != nil {
					// без телеграма торговать можно, оповещения уйдут в лог
					p.Log.Error("[NOTIFY] telegram init failed", zap.Error(err))
					bot = nil
				}
				return service.NewTelegram(p.Log, bot, p.Cfg.Telegram.ChatID, p.Cfg.Telegram.QueueSize, p.Ledger), nil
			},
			// адаптер: *service.Telegram -> execution.Notifier
			func(t *service.Telegram) execution.Notifier {
				return t
			},
		),
		fx.Invoke(
			func(lc fx.Lifecycle, t *service.Telegram, e *execution.Engine) {
				// engine сам зависит от нотифайера, поэтому ордера подключаем после сборки
				t.SetOrders(e)
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						t.Start()
						return nil
					},
					OnStop: func(ctx context.Context) error {
						t.Stop()
						return nil
					},
				})
			},
		),
	)
}

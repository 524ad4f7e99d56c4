package ledger

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/ledger/service"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Journal service.Journal `optional:"true"`
}

func Module() fx.Option {
	return fx.Module("ledger",
		fx.Provide(
			func(p Params) *service.Ledger {
				return service.NewLedger(p.Log, p.Journal)
			},
		),
	)
}

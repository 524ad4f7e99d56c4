package strategy

import (
	"go.uber.org/fx"

	"turtle_bot/internal/modules/strategy/service"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			service.NewRegistry,
			service.NewEvaluator,
		),
	)
}

package main

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/bootstrap"
	"turtle_bot/internal/modules/config"
	"turtle_bot/internal/modules/exchange"
	"turtle_bot/internal/modules/execution"
	"turtle_bot/internal/modules/feed"
	"turtle_bot/internal/modules/health"
	"turtle_bot/internal/modules/ledger"
	"turtle_bot/internal/modules/notify"
	"turtle_bot/internal/modules/postgres"
	"turtle_bot/internal/modules/router"
	"turtle_bot/internal/modules/runner"
	"turtle_bot/internal/modules/screener"
	"turtle_bot/internal/modules/strategy"
	"turtle_bot/internal/modules/stream"
	"turtle_bot/pkg/logger"
	"turtle_bot/pkg/tracing"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger.SetServiceName(cfg.Service.Name)
	return logger.New(cfg.Service.LogLevel)
}

func newTracer(lc fx.Lifecycle, cfg *config.Config) (opentracing.Tracer, error) {
	tracer, closer, err := tracing.InitTracer(tracing.Config{
		Service:    cfg.Service.Name,
		Host:       cfg.Tracing.Host,
		Port:       cfg.Tracing.Port,
		SampleRate: cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			closer()
			return nil
		},
	})
	return tracer, nil
}

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			newLogger,
			newTracer,
		),
		// глобальный трейсер нужен до первого ордера
		fx.Invoke(func(opentracing.Tracer) {}),
		config.Module(),
		postgres.Module(),
		feed.Module(),
		ledger.Module(),
		strategy.Module(),
		router.Module(),
		execution.Module(),
		exchange.Module(),
		notify.Module(),
		runner.Module(),
		bootstrap.Module(),
		stream.Module(),
		screener.Module(),
		health.Module(),
	)
	app.Run()
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/backtest"
	bt "turtle_bot/internal/modules/backtest/service"
	"turtle_bot/internal/modules/config"
	exchange "turtle_bot/internal/modules/exchange/service"
	feed "turtle_bot/internal/modules/feed/service"
	"turtle_bot/internal/modules/postgres/store"
	"turtle_bot/internal/modules/router"
	"turtle_bot/internal/modules/strategy"
	"turtle_bot/pkg/db"
	"turtle_bot/pkg/logger"
)

type flags struct {
	config     string
	file       string
	strategy   string
	instrument string
	runKey     string
	out        string
}

func parseFlags() flags {
	var f flags
	pflag.StringVar(&f.config, "config", "configs/values_local.yaml", "путь к конфигу")
	pflag.StringVar(&f.file, "file", "", "ответ /public/candlestick в json; пусто: скачать с биржи")
	pflag.StringVar(&f.strategy, "strategy", "", "id стратегии из конфига")
	pflag.StringVar(&f.instrument, "instrument", "BTC_KRW", "инструмент")
	pflag.StringVar(&f.runKey, "run-key", "", "ключ прогона; пусто: strategy:instrument")
	pflag.StringVar(&f.out, "out", "", "куда записать результат; пусто: stdout")
	pflag.Parse()
	return f
}

func main() {
	f := parseFlags()
	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "backtest:", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	sc, err := pickStrategy(cfg, f.strategy)
	if err != nil {
		return err
	}

	var (
		svc *bt.Service
		log *zap.Logger
	)
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg),
		fx.Provide(
			func(cfg *config.Config) (*zap.Logger, error) {
				logger.SetServiceName(cfg.Service.Name + "_backtest")
				return logger.New(cfg.Service.LogLevel)
			},
			func(lc fx.Lifecycle, cfg *config.Config) (*store.Results, error) {
				if cfg.DB == "" {
					return store.NewResults(nil), nil
				}
				pool, err := db.NewPool(context.Background(), db.PoolConfig{DSN: cfg.DB})
				if err != nil {
					return nil, errors.Wrap(err, "failed to create poolMaster")
				}
				m := db.NewPgTxManager(pool)
				lc.Append(fx.Hook{OnStop: func(context.Context) error {
					m.Close()
					return nil
				}})
				return store.NewResults(m), nil
			},
		),
		strategy.Module(),
		router.Module(),
		backtest.Module(),
		fx.Populate(&svc, &log),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx := context.Background()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()

	body, err := history(ctx, cfg, f)
	if err != nil {
		return err
	}
	snaps, err := bt.HistoryFromBithumb(feed.NewAdapter(cfg.Feed.Window), f.instrument, body, cfg.Feed.Window)
	if err != nil {
		return err
	}

	runKey := f.runKey
	if runKey == "" {
		runKey = sc.ID + ":" + f.instrument
	}
	_, payload, err := svc.Run(ctx, bt.RunRequest{
		RunKey:       runKey,
		Strategy:     sc,
		InstrumentID: f.instrument,
		Snapshots:    snaps,
		Risk:         cfg.Risk.Model(),
		SlippageBps:  decimal.NewFromFloat(cfg.Backtest.SlippageBps),
		FeeRate:      decimal.NewFromFloat(cfg.Backtest.FeeRate),
	})
	if err != nil {
		return err
	}

	if f.out == "" {
		_, err = os.Stdout.Write(append(payload, '\n'))
		return err
	}
	log.Info("[BACKTEST] write result", zap.String("path", f.out))
	return errors.Wrap(os.WriteFile(f.out, payload, 0o644), "write result")
}

func pickStrategy(cfg *config.Config, id string) (models.StrategyConfig, error) {
	for _, s := range cfg.Strategies {
		if id == "" || s.ID == id {
			// в бэктесте выключенная в конфиге стратегия тоже прогоняется
			s.Enabled = true
			return s, nil
		}
	}
	return models.StrategyConfig{}, errors.Wrapf(models.ErrUnknownStrategy, "strategy %q not in config", id)
}

func history(ctx context.Context, cfg *config.Config, f flags) ([]byte, error) {
	if f.file != "" {
		body, err := os.ReadFile(f.file)
		return body, errors.Wrap(err, "read history")
	}
	pub := exchange.NewPublic(cfg.Exchange.RestURL, cfg.Exchange.RequestTimeout)
	return pub.Candles(ctx, f.instrument, cfg.Feed.CandleInterval)
}

package postgres

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"turtle_bot/internal/modules/config"
	execution "turtle_bot/internal/modules/execution/service"
	ledger "turtle_bot/internal/modules/ledger/service"
	"turtle_bot/internal/modules/postgres/store"
	"turtle_bot/pkg/db"
)

// Module: журнал ордеров/сделок/позиций. Без db_dsn работаем в памяти.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(lc fx.Lifecycle, log *zap.Logger, cfg *config.Config) (db.TxManager, error) {
				if cfg.DB == "" {
					log.Warn("[PG] db_dsn not set, journal disabled")
					return nil, nil
				}
				pool, err := db.NewPool(context.Background(), db.PoolConfig{DSN: cfg.DB})
				if err != nil {
					return nil, errors.Wrap(err, "failed to create poolMaster")
				}
				m := db.NewPgTxManager(pool)
				lc.Append(fx.Hook{
					OnStop: func(context.Context) error {
						m.Close()
						return nil
					},
				})
				return m, nil
			},
			store.NewJournal,
			store.NewResults,
			func(j *store.Journal) ledger.Journal { return j },
			func(j *store.Journal) execution.Journal { return j },
		),
		fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger, j *store.Journal, l *ledger.Ledger) {
			lc.Append(fx.Hook{
				// позиции восстанавливаем до старта потоков
				OnStart: func(ctx context.Context) error {
					restored, err := j.Restore(ctx)
					if err != nil {
						return err
					}
					for _, r := range restored {
						if err := l.Seed(r.Position, r.FillIDs); err != nil {
							return err
						}
						log.Info("[PG] position restored",
							zap.String("instrument", r.Position.InstrumentID),
							zap.Stringer("qty", r.Position.Quantity),
							zap.Int("fills", len(r.FillIDs)),
						)
					}
					return nil
				},
			})
		}),
	)
}

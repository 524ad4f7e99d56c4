package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/postgres/store/queries"
	"turtle_bot/pkg/db"
)

// Results: хранилище результатов бэктеста по ключу прогона. Без базы Save ничего не делает.
type Results struct {
	tx  db.TxManager
	sql *queries.Queries
}

func NewResults(tx db.TxManager) *Results {
	return &Results{tx: tx, sql: queries.New()}
}

// Save сохраняет уже закодированный результат: повторный прогон с тем же ключом перезаписывает его теми же байтами.
func (r *Results) Save(ctx context.Context, res models.BacktestResult, payload []byte) error {
	if r.tx == nil {
		return nil
	}
	err := r.sql.UpsertBacktestResult(ctx, r.tx.Conn(), &queries.UpsertBacktestResultParams{
		RunKey:       res.RunKey,
		StrategyID:   res.StrategyID,
		InstrumentID: res.InstrumentID,
		FromTs:       res.From,
		ToTs:         res.To,
		Payload:      payload,
	})
	return errors.Wrapf(err, "Results.Save %s", res.RunKey)
}

func (r *Results) Load(ctx context.Context, runKey string) ([]byte, error) {
	if r.tx == nil {
		return nil, errors.Wrapf(models.ErrNotFound, "backtest %s", runKey)
	}
	payload, err := r.sql.GetBacktestResult(ctx, r.tx.Conn(), runKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(models.ErrNotFound, "backtest %s", runKey)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "Results.Load %s", runKey)
	}
	return payload, nil
}

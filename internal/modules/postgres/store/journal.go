package store

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"turtle_bot/internal/models"
	"turtle_bot/internal/modules/postgres/store/queries"
	"turtle_bot/pkg/db"
)

// Journal пишет ордера, сделки и позиции. Без базы (tx == nil) все методы no-op.
type Journal struct {
	tx  db.TxManager
	sql *queries.Queries
	now func() time.Time
}

func NewJournal(tx db.TxManager) *Journal {
	return &Journal{
		tx:  tx,
		sql: queries.New(),
		now: time.Now,
	}
}

func (j *Journal) Enabled() bool { return j != nil && j.tx != nil }

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (j *Journal) RecordOrder(ctx context.Context, o models.Order) (err error) {
	if !j.Enabled() {
		return nil
	}
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "Journal.RecordOrder")
		}
	}()
	updated := o.UpdatedAt
	if updated.IsZero() {
		updated = j.now()
	}
	return j.sql.UpsertOrder(ctx, j.tx.Conn(), &queries.UpsertOrderParams{
		ClientID:     o.ClientID,
		OrderID:      o.OrderID,
		InstrumentID: o.InstrumentID,
		Side:         string(o.Side),
		RequestedQty: o.RequestedQty.String(),
		FilledQty:    o.FilledQty.String(),
		Price:        o.Price.String(),
		Market:       o.Market,
		Status:       o.Status.String(),
		Reason:       string(o.Reason),
		SignalID:     o.SignalID,
		StrategyID:   o.StrategyID,
		SnapshotTs:   timePtr(o.SnapshotTS),
		SubmittedAt:  timePtr(o.SubmittedAt),
		UpdatedAt:    updated,
	})
}

// RecordFill: сделка и позиция после неё в одной транзакции.
func (j *Journal) RecordFill(ctx context.Context, _ models.Order, f models.Fill, pos models.Position) (err error) {
	if !j.Enabled() {
		return nil
	}
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "Journal.RecordFill")
		}
	}()
	ts := f.Timestamp
	if ts.IsZero() {
		ts = j.now()
	}
	return j.tx.RunMaster(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		if _, err := j.sql.InsertFill(ctxTx, tx, &queries.InsertFillParams{
			FillID:       f.FillID,
			OrderID:      f.OrderID,
			ClientID:     f.ClientID,
			InstrumentID: f.InstrumentID,
			Side:         string(f.Side),
			Quantity:     f.Quantity.String(),
			Price:        f.Price.String(),
			Ts:           ts,
		}); err != nil {
			return err
		}
		return j.sql.UpsertPosition(ctxTx, tx, &queries.UpsertPositionParams{
			InstrumentID:  pos.InstrumentID,
			Quantity:      pos.Quantity.String(),
			AvgEntryPrice: pos.AvgEntryPrice.String(),
			RealizedPnl:   pos.RealizedPnL.String(),
			UpdatedAt:     j.now(),
		})
	})
}

// Restored: позиция и уже применённые к ней сделки.
type Restored struct {
	Position models.Position
	FillIDs  []string
}

// Restore читает позиции согласованным снимком для ledger.Seed.
func (j *Journal) Restore(ctx context.Context) (out []Restored, err error) {
	if !j.Enabled() {
		return nil, nil
	}
	err = j.tx.RunRepeatableRead(ctx, func(ctxTx context.Context, tx db.Transaction) error {
		rows, err := j.sql.ListPositions(ctxTx, tx)
		if err != nil {
			return err
		}
		for _, r := range rows {
			pos, err := positionFromRow(r)
			if err != nil {
				return err
			}
			ids, err := j.sql.ListFillIDs(ctxTx, tx, r.InstrumentID)
			if err != nil {
				return err
			}
			out = append(out, Restored{Position: pos, FillIDs: ids})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "Journal.Restore")
	}
	return out, nil
}

func positionFromRow(r *queries.ListPositionsRow) (models.Position, error) {
	qty, err := decimal.NewFromString(r.Quantity)
	if err != nil {
		return models.Position{}, errors.Wrapf(err, "%s quantity", r.InstrumentID)
	}
	avg, err := decimal.NewFromString(r.AvgEntryPrice)
	if err != nil {
		return models.Position{}, errors.Wrapf(err, "%s avg_entry_price", r.InstrumentID)
	}
	pnl, err := decimal.NewFromString(r.RealizedPnl)
	if err != nil {
		return models.Position{}, errors.Wrapf(err, "%s realized_pnl", r.InstrumentID)
	}
	return models.Position{InstrumentID: r.InstrumentID, Quantity: qty, AvgEntryPrice: avg, RealizedPnL: pnl}, nil
}

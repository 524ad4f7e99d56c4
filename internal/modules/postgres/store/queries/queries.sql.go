package queries

import (
	"context"
	"time"
)

const upsertOrder = `-- name: UpsertOrder :exec
INSERT INTO orders (client_id, order_id, instrument_id, side, requested_qty, filled_qty, price, market,
                    status, reason, signal_id, strategy_id, snapshot_ts, submitted_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15)
ON CONFLICT (client_id) DO UPDATE
SET order_id = EXCLUDED.order_id,
    filled_qty = EXCLUDED.filled_qty,
    status = EXCLUDED.status,
    reason = EXCLUDED.reason,
    updated_at = EXCLUDED.updated_at
`

type UpsertOrderParams struct {
	ClientID     string
	OrderID      string
	InstrumentID string
	Side         string
	RequestedQty string
	FilledQty    string
	Price        string
	Market       bool
	Status       string
	Reason       string
	SignalID     string
	StrategyID   string
	SnapshotTs   *time.Time
	SubmittedAt  *time.Time
	UpdatedAt    time.Time
}

func (q *Queries) UpsertOrder(ctx context.Context, db DBTX, arg *UpsertOrderParams) error {
	_, err := db.Exec(ctx, upsertOrder,
		arg.ClientID,
		arg.OrderID,
		arg.InstrumentID,
		arg.Side,
		arg.RequestedQty,
		arg.FilledQty,
		arg.Price,
		arg.Market,
		arg.Status,
		arg.Reason,
		arg.SignalID,
		arg.StrategyID,
		arg.SnapshotTs,
		arg.SubmittedAt,
		arg.UpdatedAt,
	)
	return err
}

const insertFill = `-- name: InsertFill :execrows
INSERT INTO fills (fill_id, order_id, client_id, instrument_id, side, quantity, price, ts)
VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8)
ON CONFLICT (fill_id) DO NOTHING
`

type InsertFillParams struct {
	FillID       string
	OrderID      string
	ClientID     string
	InstrumentID string
	Side         string
	Quantity     string
	Price        string
	Ts           time.Time
}

func (q *Queries) InsertFill(ctx context.Context, db DBTX, arg *InsertFillParams) (int64, error) {
	result, err := db.Exec(ctx, insertFill,
		arg.FillID,
		arg.OrderID,
		arg.ClientID,
		arg.InstrumentID,
		arg.Side,
		arg.Quantity,
		arg.Price,
		arg.Ts,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const upsertPosition = `-- name: UpsertPosition :exec
INSERT INTO positions (instrument_id, quantity, avg_entry_price, realized_pnl, updated_at)
VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5)
ON CONFLICT (instrument_id) DO UPDATE
SET quantity = EXCLUDED.quantity,
    avg_entry_price = EXCLUDED.avg_entry_price,
    realized_pnl = EXCLUDED.realized_pnl,
    updated_at = EXCLUDED.updated_at
`

type UpsertPositionParams struct {
	InstrumentID  string
	Quantity      string
	AvgEntryPrice string
	RealizedPnl   string
	UpdatedAt     time.Time
}

func (q *Queries) UpsertPosition(ctx context.Context, db DBTX, arg *UpsertPositionParams) error {
	_, err := db.Exec(ctx, upsertPosition,
		arg.InstrumentID,
		arg.Quantity,
		arg.AvgEntryPrice,
		arg.RealizedPnl,
		arg.UpdatedAt,
	)
	return err
}

const listPositions = `-- name: ListPositions :many
SELECT instrument_id, quantity::text, avg_entry_price::text, realized_pnl::text
FROM positions
ORDER BY instrument_id
`

type ListPositionsRow struct {
	InstrumentID  string
	Quantity      string
	AvgEntryPrice string
	RealizedPnl   string
}

func (q *Queries) ListPositions(ctx context.Context, db DBTX) ([]*ListPositionsRow, error) {
	rows, err := db.Query(ctx, listPositions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ListPositionsRow
	for rows.Next() {
		var i ListPositionsRow
		if err := rows.Scan(
			&i.InstrumentID,
			&i.Quantity,
			&i.AvgEntryPrice,
			&i.RealizedPnl,
		); err != nil {
			return nil, err
		}
		items = append(items, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listFillIDs = `-- name: ListFillIDs :many
SELECT fill_id FROM fills WHERE instrument_id = $1
`

func (q *Queries) ListFillIDs(ctx context.Context, db DBTX, instrumentID string) ([]string, error) {
	rows, err := db.Query(ctx, listFillIDs, instrumentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var fillID string
		if err := rows.Scan(&fillID); err != nil {
			return nil, err
		}
		items = append(items, fillID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertBacktestResult = `-- name: UpsertBacktestResult :exec
INSERT INTO backtest_results (run_key, strategy_id, instrument_id, from_ts, to_ts, payload)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (run_key) DO UPDATE SET payload = EXCLUDED.payload
`

type UpsertBacktestResultParams struct {
	RunKey       string
	StrategyID   string
	InstrumentID string
	FromTs       time.Time
	ToTs         time.Time
	Payload      []byte
}

func (q *Queries) UpsertBacktestResult(ctx context.Context, db DBTX, arg *UpsertBacktestResultParams) error {
	_, err := db.Exec(ctx, upsertBacktestResult,
		arg.RunKey,
		arg.StrategyID,
		arg.InstrumentID,
		arg.FromTs,
		arg.ToTs,
		arg.Payload,
	)
	return err
}

const getBacktestResult = `-- name: GetBacktestResult :one
SELECT payload FROM backtest_results WHERE run_key = $1
`

func (q *Queries) GetBacktestResult(ctx context.Context, db DBTX, runKey string) ([]byte, error) {
	row := db.QueryRow(ctx, getBacktestResult, runKey)
	var payload []byte
	err := row.Scan(&payload)
	return payload, err
}

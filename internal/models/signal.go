package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	EnterLong  Direction = "enter_long"
	EnterShort Direction = "enter_short"
	Exit       Direction = "exit"
	Hold       Direction = "hold"
)

// Signal: решение стратегии на одном снапшоте.
// Timestamp совпадает с SnapshotTS: оценка не смотрит на часы.
type Signal struct {
	ID           string          `json:"id"`
	InstrumentID string          `json:"instrument_id"`
	Direction    Direction       `json:"direction"`
	Strength     decimal.Decimal `json:"strength"` // [0,1]
	StrategyID   string          `json:"strategy_id"`
	Timestamp    time.Time       `json:"timestamp"`
	SnapshotTS   time.Time       `json:"snapshot_ts"`
	RefPrice     decimal.Decimal `json:"ref_price"`
	Reason       string          `json:"reason,omitempty"`
}

var signalNS = uuid.MustParse("6f1c8a52-3b0e-4c1d-9a57-2f8e0f2b7d41")

// SignalID детерминирован: одинаковая стратегия, инструмент, время снапшота
// и закрытие последней свечи дают один id. Закрытие нужно потому, что
// формирующаяся свеча переприходит с тем же Start, но другой ценой.
func SignalID(strategyID string, snap MarketSnapshot) string {
	key := strategyID + "|" + snap.InstrumentID + "|" + snap.Timestamp.UTC().Format(time.RFC3339Nano)
	if n := len(snap.Candles); n > 0 {
		key += "|" + snap.Candles[n-1].Close.String()
	}
	return uuid.NewSHA1(signalNS, []byte(key)).String()
}

// NewSignal собирает сигнал из снапшота.
func NewSignal(strategyID string, snap MarketSnapshot, dir Direction, strength decimal.Decimal, reason string) Signal {
	return Signal{
		ID:           SignalID(strategyID, snap),
		InstrumentID: snap.InstrumentID,
		Direction:    dir,
		Strength:     strength,
		StrategyID:   strategyID,
		Timestamp:    snap.Timestamp,
		SnapshotTS:   snap.Timestamp,
		RefPrice:     snap.RefPrice(),
		Reason:       reason,
	}
}

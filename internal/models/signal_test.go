package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func snapshotWithClose(cl string) MarketSnapshot {
	ts := time.UnixMilli(1709258400000).UTC()
	return MarketSnapshot{
		InstrumentID: "BTC_KRW",
		Timestamp:    ts,
		Candles: []Candle{{
			Start: ts,
			Open:  decimal.NewFromInt(100),
			High:  decimal.NewFromInt(106),
			Low:   decimal.NewFromInt(100),
			Close: decimal.RequireFromString(cl),
		}},
	}
}

func TestSignalIDStable(t *testing.T) {
	a := snapshotWithClose("105")
	b := snapshotWithClose("105.0")
	assert.Equal(t, SignalID("cb", a), SignalID("cb", a))
	assert.Equal(t, SignalID("cb", a), SignalID("cb", b))
	assert.NotEqual(t, SignalID("cb", a), SignalID("other", a))
}

func TestSignalIDFormingCandleReplaced(t *testing.T) {
	// та же свеча пришла повторно с новым закрытием
	first := snapshotWithClose("105")
	again := snapshotWithClose("104")
	assert.Equal(t, first.Timestamp, again.Timestamp)
	assert.NotEqual(t, SignalID("cb", first), SignalID("cb", again))

	empty := MarketSnapshot{InstrumentID: "BTC_KRW", Timestamp: first.Timestamp}
	assert.NotEmpty(t, SignalID("cb", empty))
}

package service

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle_bot/internal/models"
)

var t0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func candle(i int, h, l, c string) models.Candle {
	return models.Candle{
		Start:  t0.Add(time.Duration(i) * time.Hour),
		Open:   decimal.RequireFromString(l),
		High:   decimal.RequireFromString(h),
		Low:    decimal.RequireFromString(l),
		Close:  decimal.RequireFromString(c),
		Volume: decimal.NewFromInt(1),
	}
}

func snapshot(cs ...models.Candle) models.MarketSnapshot {
	return models.MarketSnapshot{
		InstrumentID: "BTC_KRW",
		Timestamp:    cs[len(cs)-1].Start,
		LastPrice:    cs[len(cs)-1].Close,
		Candles:      cs,
	}
}

var base = []models.Candle{
	candle(0, "101", "99", "100"),
	candle(1, "102", "100", "101"),
	candle(2, "103", "101", "102"),
	candle(3, "104", "102", "103"),
}

func with(last models.Candle) []models.Candle {
	return append(append([]models.Candle{}, base...), last)
}

var turtleCfg = models.StrategyConfig{
	ID:   "turtle-test",
	Kind: models.StrategyTurtle,
	Params: map[string]string{
		"entry": "3", "exit": "2", "ma_short": "2", "ma_long": "4", "vwma": "3", "atr": "2",
	},
	Enabled: true,
}

func TestTurtle_EnterLong(t *testing.T) {
	e := NewEvaluator(NewRegistry())
	snap := snapshot(with(candle(4, "110", "103", "109"))...)

	sig := e.Evaluate(turtleCfg, snap, models.Position{InstrumentID: "BTC_KRW"})
	assert.Equal(t, models.EnterLong, sig.Direction)
	assert.Equal(t, "turtle-test", sig.StrategyID)
	assert.Equal(t, snap.Timestamp, sig.SnapshotTS)
	assert.Equal(t, snap.Timestamp, sig.Timestamp)
	assert.True(t, sig.RefPrice.Equal(decimal.NewFromInt(109)))
	assert.True(t, sig.Strength.IsPositive())
	assert.True(t, sig.Strength.LessThanOrEqual(decimal.NewFromInt(1)))
}

func TestTurtle_ExitOnlyWhenHolding(t *testing.T) {
	e := NewEvaluator(NewRegistry())
	snap := snapshot(with(candle(4, "103", "100.5", "101"))...)

	flat := e.Evaluate(turtleCfg, snap, models.Position{InstrumentID: "BTC_KRW"})
	assert.Equal(t, models.Hold, flat.Direction)

	long := e.Evaluate(turtleCfg, snap, models.Position{InstrumentID: "BTC_KRW", Quantity: decimal.NewFromInt(1)})
	assert.Equal(t, models.Exit, long.Direction)
}

func TestTurtle_ShortEntry(t *testing.T) {
	e := NewEvaluator(NewRegistry())
	snap := snapshot(with(candle(4, "101", "95", "96"))...)

	sig := e.Evaluate(turtleCfg, snap, models.Position{InstrumentID: "BTC_KRW"})
	assert.Equal(t, models.EnterShort, sig.Direction)
}

func TestChannelBreakout(t *testing.T) {
	e := NewEvaluator(NewRegistry())
	cfg := models.StrategyConfig{ID: "cb", Kind: models.StrategyChannelBreakout, Params: map[string]string{"length": "3"}}

	sig := e.Evaluate(cfg, snapshot(with(candle(4, "110", "103", "109"))...), models.Position{})
	assert.Equal(t, models.EnterLong, sig.Direction)

	sig = e.Evaluate(cfg, snapshot(with(candle(4, "104", "102", "103"))...), models.Position{})
	assert.Equal(t, models.Hold, sig.Direction)

	sig = e.Evaluate(cfg, snapshot(with(candle(4, "101", "97", "98"))...), models.Position{})
	assert.Equal(t, models.EnterShort, sig.Direction)
}

func TestEMARSI_Oversold(t *testing.T) {
	e := NewEvaluator(NewRegistry())
	cfg := models.StrategyConfig{ID: "er", Kind: models.StrategyEMARSI, Params: map[string]string{
		"ema_short": "2", "ema_long": "6", "rsi": "2", "overbought": "70", "oversold": "30",
	}}

	// рост, потом три падения: быстрая EMA ещё выше медленной, RSI провалился
	closes := []string{"100", "150", "200", "250", "300", "280", "260", "240"}
	cs := make([]models.Candle, len(closes))
	for i, c := range closes {
		cs[i] = candle(i, c, c, c)
	}
	sig := e.Evaluate(cfg, snapshot(cs...), models.Position{})
	require.Equal(t, models.EnterLong, sig.Direction, sig.Reason)
}

func TestEvaluate_InsufficientHistory(t *testing.T) {
	e := NewEvaluator(NewRegistry())
	sig := e.Evaluate(turtleCfg, snapshot(base[:3]...), models.Position{})
	assert.Equal(t, models.Hold, sig.Direction)
	assert.True(t, sig.Strength.IsZero())
	assert.Contains(t, sig.Reason, "insufficient history")
}

func TestEvaluate_UnknownKind(t *testing.T) {
	e := NewEvaluator(NewRegistry())
	cfg := models.StrategyConfig{ID: "x", Kind: "grid"}
	sig := e.Evaluate(cfg, snapshot(base...), models.Position{})
	assert.Equal(t, models.Hold, sig.Direction)

	_, err := NewRegistry().Resolve(cfg)
	assert.ErrorIs(t, err, models.ErrUnknownStrategy)
}

func TestEvaluate_Pure(t *testing.T) {
	e := NewEvaluator(NewRegistry())
	snap := snapshot(with(candle(4, "110", "103", "109"))...)
	pos := models.Position{InstrumentID: "BTC_KRW"}

	first := e.Evaluate(turtleCfg, snap, pos)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, e.Evaluate(turtleCfg, snap, pos))
	}

	later := snap
	later.Timestamp = later.Timestamp.Add(time.Minute)
	assert.NotEqual(t, first.ID, e.Evaluate(turtleCfg, later, pos).ID)
}

func TestRegistryKinds(t *testing.T) {
	assert.Equal(t, []string{"channel_breakout", "ema_rsi", "turtle"}, NewRegistry().Kinds())
}

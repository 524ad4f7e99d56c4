package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"turtle_bot/internal/models"
)

// EMARSI: EMA(short) > EMA(long) и RSI < oversold: лонг,
// EMA(short) < EMA(long) и RSI > overbought: шорт.
type EMARSI struct{}

func (EMARSI) Kind() models.StrategyKind { return models.StrategyEMARSI }

func (EMARSI) Warmup(cfg models.StrategyConfig) int {
	return max(cfg.Int("ema_long", 21), cfg.Int("rsi", 14)+1)
}

func (EMARSI) Decide(cfg models.StrategyConfig, cs []models.Candle, _ models.Position) Decision {
	var (
		short = ema(cs, cfg.Int("ema_short", 9))
		long  = ema(cs, cfg.Int("ema_long", 21))
		r     = rsi(cs, cfg.Int("rsi", 14))
		ob    = cfg.Decimal("overbought", decimal.NewFromInt(70))
		os    = cfg.Decimal("oversold", decimal.NewFromInt(30))
	)

	switch {
	case short.GreaterThan(long) && r.LessThan(os):
		return Decision{models.EnterLong, ratio(os.Sub(r), os),
			fmt.Sprintf("ema %s > %s, rsi %s < %s", short.StringFixed(2), long.StringFixed(2), r.StringFixed(2), os)}
	case short.LessThan(long) && r.GreaterThan(ob):
		return Decision{models.EnterShort, ratio(r.Sub(ob), decimal.NewFromInt(100).Sub(ob)),
			fmt.Sprintf("ema %s < %s, rsi %s > %s", short.StringFixed(2), long.StringFixed(2), r.StringFixed(2), ob)}
	}
	return hold(fmt.Sprintf("rsi %s", r.StringFixed(2)))
}

func ratio(a, b decimal.Decimal) decimal.Decimal {
	if !b.IsPositive() {
		return decimal.NewFromInt(1)
	}
	return a.Div(b)
}

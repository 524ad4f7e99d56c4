package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"turtle_bot/internal/models"
)

// Turtle: каналы Дончиана: вход по пробою entry-канала предыдущих свечей,
// выход по пробою exit-канала. Лонг дополнительно фильтруется MA(short) > MA(long)
// и close > VWMA. Сила: глубина пробоя в ATR.
type Turtle struct{}

type turtleParams struct {
	entry, exit, maShort, maLong, vwma, atr int
}

func (Turtle) Kind() models.StrategyKind { return models.StrategyTurtle }

func (Turtle) params(cfg models.StrategyConfig) turtleParams {
	return turtleParams{
		entry:   cfg.Int("entry", 20),
		exit:    cfg.Int("exit", 10),
		maShort: cfg.Int("ma_short", 50),
		maLong:  cfg.Int("ma_long", 200),
		vwma:    cfg.Int("vwma", 20),
		atr:     cfg.Int("atr", 14),
	}
}

func (t Turtle) Warmup(cfg models.StrategyConfig) int {
	p := t.params(cfg)
	return max(p.entry+1, p.exit+1, p.maShort, p.maLong, p.vwma, p.atr+1)
}

func (t Turtle) Decide(cfg models.StrategyConfig, cs []models.Candle, pos models.Position) Decision {
	p := t.params(cfg)
	n := len(cs)
	cur := cs[n-1]

	// каналы по предыдущим свечам (без текущей)
	upper := highest(cs[n-1-p.entry : n-1])
	lower := lowest(cs[n-1-p.entry : n-1])
	exitUpper := highest(cs[n-1-p.exit : n-1])
	exitLower := lowest(cs[n-1-p.exit : n-1])

	maOK := sma(cs, p.maShort).GreaterThan(sma(cs, p.maLong))
	vw, ok := vwma(cs, p.vwma)
	vwOK := ok && cur.Close.GreaterThan(vw)
	a := atr(cs, p.atr)

	strength := func(dist decimal.Decimal) decimal.Decimal {
		if !a.IsPositive() {
			return decimal.NewFromInt(1)
		}
		return dist.Div(a)
	}

	longEntry := cur.High.GreaterThan(upper) && maOK && vwOK
	shortEntry := cur.Low.LessThan(lower)

	switch {
	case longEntry:
		return Decision{models.EnterLong, strength(cur.High.Sub(upper)),
			fmt.Sprintf("high %s > donchian%d %s", cur.High, p.entry, upper)}
	case shortEntry:
		return Decision{models.EnterShort, strength(lower.Sub(cur.Low)),
			fmt.Sprintf("low %s < donchian%d %s", cur.Low, p.entry, lower)}
	case pos.IsLong() && cur.Low.LessThan(exitLower):
		return Decision{models.Exit, strength(exitLower.Sub(cur.Low)),
			fmt.Sprintf("low %s < exit%d %s", cur.Low, p.exit, exitLower)}
	case pos.IsShort() && cur.High.GreaterThan(exitUpper):
		return Decision{models.Exit, strength(cur.High.Sub(exitUpper)),
			fmt.Sprintf("high %s > exit%d %s", cur.High, p.exit, exitUpper)}
	}
	return hold("inside channel")
}

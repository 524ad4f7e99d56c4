package service

import (
	"fmt"

	"turtle_bot/internal/models"
)

// ChannelBreakout: закрытие выше максимума / ниже минимума предыдущих N свечей.
type ChannelBreakout struct{}

func (ChannelBreakout) Kind() models.StrategyKind { return models.StrategyChannelBreakout }

func (ChannelBreakout) Warmup(cfg models.StrategyConfig) int {
	return cfg.Int("length", 5) + 1
}

func (ChannelBreakout) Decide(cfg models.StrategyConfig, cs []models.Candle, _ models.Position) Decision {
	length := cfg.Int("length", 5)
	n := len(cs)
	cur := cs[n-1]
	prev := cs[n-1-length : n-1]

	up, down := highest(prev), lowest(prev)
	width := up.Sub(down)

	switch {
	case cur.Close.GreaterThan(up):
		return Decision{models.EnterLong, ratio(cur.Close.Sub(up), width),
			fmt.Sprintf("close %s > upBound%d %s", cur.Close, length, up)}
	case cur.Close.LessThan(down):
		return Decision{models.EnterShort, ratio(down.Sub(cur.Close), width),
			fmt.Sprintf("close %s < downBound%d %s", cur.Close, length, down)}
	}
	return hold("inside channel")
}

package models

import (
	"strconv"

	"github.com/shopspring/decimal"
)

type StrategyKind string

const (
	StrategyTurtle          StrategyKind = "turtle"
	StrategyChannelBreakout StrategyKind = "channel_breakout"
	StrategyEMARSI          StrategyKind = "ema_rsi"
)

// StrategyConfig: настройки одной стратегии; Params парсит сам вариант.
type StrategyConfig struct {
	ID      string            `yaml:"id" json:"id"`
	Kind    StrategyKind      `yaml:"kind" json:"kind"`
	Params  map[string]string `yaml:"params" json:"params"`
	Enabled bool              `yaml:"enabled" json:"enabled"`
}

// Int: целый параметр или def, если нет/битый.
func (c StrategyConfig) Int(key string, def int) int {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func (c StrategyConfig) Decimal(key string, def decimal.Decimal) decimal.Decimal {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return def
	}
	return d
}

func (c StrategyConfig) Bool(key string, def bool) bool {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// RiskConfig: лимиты и параметры расчёта объёма.
// RiskPct и StopPct в процентах (1 = 1%).
type RiskConfig struct {
	Equity         decimal.Decimal `json:"equity"`
	RiskPct        decimal.Decimal `json:"risk_pct"`
	StopPct        decimal.Decimal `json:"stop_pct"`
	Leverage       decimal.Decimal `json:"leverage"`
	MaxPositionQty decimal.Decimal `json:"max_position_qty"`
	QtyStep        decimal.Decimal `json:"qty_step"`
	MinQty         decimal.Decimal `json:"min_qty"`
	AllowShort     bool            `json:"allow_short"`
	KillSwitch     bool            `json:"kill_switch"`
}

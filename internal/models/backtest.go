package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimulatedFill: сделка бэктеста вместе с эффектом на позицию.
type SimulatedFill struct {
	Seq         int             `json:"seq"`
	Fill        Fill            `json:"fill"`
	Fee         decimal.Decimal `json:"fee"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"` // вклад этой сделки, после комиссии
	PositionQty decimal.Decimal `json:"position_qty"`
	Closing     bool            `json:"closing"`
}

type Metrics struct {
	NetPnL        decimal.Decimal `json:"net_pnl"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
	Fees          decimal.Decimal `json:"fees"`
	MaxDrawdown   decimal.Decimal `json:"max_drawdown"`
	WinRate       decimal.Decimal `json:"win_rate"`
	TradeCount    int             `json:"trade_count"`
	Wins          int             `json:"wins"`
	Losses        int             `json:"losses"`
	// по закрывающим сделкам, после комиссии
	FinalProfit decimal.Decimal `json:"final_profit"`
	MaxProfit   decimal.Decimal `json:"max_profit"`
	MinProfit   decimal.Decimal `json:"min_profit"`
	AvgProfit   decimal.Decimal `json:"avg_profit"`
	AvgLoss     decimal.Decimal `json:"avg_loss"` // среднее только по убыточным
}

type BacktestResult struct {
	RunKey       string          `json:"run_key"`
	StrategyID   string          `json:"strategy_id"`
	InstrumentID string          `json:"instrument_id"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Signals      []Signal        `json:"signals"`
	Fills        []SimulatedFill `json:"fills"`
	Position     Position        `json:"position"`  // по InstrumentID прогона
	Positions    []Position      `json:"positions"` // все инструменты, по имени
	Metrics      Metrics         `json:"metrics"`
}

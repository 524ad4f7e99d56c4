package models

import (
	"github.com/shopspring/decimal"
)

// Position: позиция по инструменту. Quantity со знаком: >0 long, <0 short, 0 flat.
// При Quantity == 0 AvgEntryPrice не имеет смысла и держится нулём.
type Position struct {
	InstrumentID  string          `json:"instrument_id"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
}

func (p Position) IsFlat() bool  { return p.Quantity.IsZero() }
func (p Position) IsLong() bool  { return p.Quantity.IsPositive() }
func (p Position) IsShort() bool { return p.Quantity.IsNegative() }

// UnrealizedPnL по цене mark.
func (p Position) UnrealizedPnL(mark decimal.Decimal) decimal.Decimal {
	if p.IsFlat() {
		return decimal.Zero
	}
	return mark.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}

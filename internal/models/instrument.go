package models

import "github.com/shopspring/decimal"

// Instrument: метаданные торговой пары на бирже.
type Instrument struct {
	ID       string          `json:"id"`    // BTC_KRW
	Order    string          `json:"order"` // BTC
	Payment  string          `json:"payment"`
	TickSize decimal.Decimal `json:"tick_size"`
	QtyStep  decimal.Decimal `json:"qty_step"`
	MinQty   decimal.Decimal `json:"min_qty"`
}

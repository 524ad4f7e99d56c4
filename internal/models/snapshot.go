package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle: закрытая (или формирующаяся) свеча, цены в decimal.
type Candle struct {
	Start  time.Time       `json:"start"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// MarketSnapshot: нормализованное состояние рынка по одному инструменту.
// После создания не меняется, следующий снапшот того же инструмента его вытесняет.
type MarketSnapshot struct {
	InstrumentID string          `json:"instrument_id"`
	Timestamp    time.Time       `json:"timestamp"`
	BestBid      decimal.Decimal `json:"best_bid"`
	BestAsk      decimal.Decimal `json:"best_ask"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Volume       decimal.Decimal `json:"volume"` // объём из тикера, если был
	Candles      []Candle        `json:"candles"` // oldest -> newest
}

// RefPrice: цена, от которой считаем сигнал и размер: last, иначе mid, иначе close.
func (s MarketSnapshot) RefPrice() decimal.Decimal {
	if s.LastPrice.IsPositive() {
		return s.LastPrice
	}
	if s.BestBid.IsPositive() && s.BestAsk.IsPositive() {
		return s.BestBid.Add(s.BestAsk).Div(decimal.NewFromInt(2))
	}
	if n := len(s.Candles); n > 0 {
		return s.Candles[n-1].Close
	}
	return decimal.Zero
}

// RawKind: тип сырого payload от биржи.
type RawKind string

const (
	RawTicker    RawKind = "ticker"
	RawOrderbook RawKind = "orderbook"
	RawCandle    RawKind = "candle"
)

// RawPayload: сырое сообщение от market data коллаборатора.
type RawPayload struct {
	Kind         RawKind
	InstrumentID string // может быть пустым, тогда берём из тела
	Body         []byte
	ReceivedAt   time.Time
}

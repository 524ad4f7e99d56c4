package service

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"turtle_bot/internal/models"
)

const (
	statusOK = "0000"
	quote    = "KRW"
)

// Ticker: суточная статистика монеты из /public/ticker/ALL_KRW.
type Ticker struct {
	Symbol string
	Open   decimal.Decimal
	Close  decimal.Decimal
	Value  decimal.Decimal // оборот за 24 часа в KRW
}

// RiseRate: (close - open) / open; ноль при нулевом open.
func (t Ticker) RiseRate() decimal.Decimal {
	if !t.Open.IsPositive() {
		return decimal.Zero
	}
	return t.Close.Sub(t.Open).Div(t.Open)
}

// Instrument: символ в формате стратегий, BTC -> BTC_KRW.
func Instrument(symbol string) string {
	return symbol + "_" + quote
}

// ParseTickers разбирает ответ ALL_KRW. Монеты с битыми числами пропускаются,
// в data лежит ещё поле date, оно не монета.
func ParseTickers(body []byte) ([]Ticker, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.Wrap(models.ErrMalformedData, "tickers: invalid json")
	}
	root := gjson.ParseBytes(body)
	if st := root.Get("status").String(); st != statusOK {
		return nil, errors.Wrapf(models.ErrMalformedData, "tickers: status %s %s", st, root.Get("message").String())
	}
	data := root.Get("data")
	if !data.IsObject() {
		return nil, errors.Wrap(models.ErrMalformedData, "tickers: data is not an object")
	}

	out := make([]Ticker, 0, 256)
	data.ForEach(func(key, v gjson.Result) bool {
		if !v.IsObject() {
			return true
		}
		open, err1 := decimal.NewFromString(v.Get("opening_price").String())
		cl, err2 := decimal.NewFromString(v.Get("closing_price").String())
		value, err3 := decimal.NewFromString(v.Get("acc_trade_value_24H").String())
		if err1 != nil || err2 != nil || err3 != nil {
			return true
		}
		out = append(out, Ticker{Symbol: key.String(), Open: open, Close: cl, Value: value})
		return true
	})
	// порядок ключей в ответе не гарантирован
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// TopByValue: до limit символов по убыванию оборота.
func TopByValue(tickers []Ticker, limit int) []string {
	return top(tickers, limit, func(t Ticker) decimal.Decimal { return t.Value })
}

// TopByRise: до limit символов по убыванию суточного роста.
func TopByRise(tickers []Ticker, limit int) []string {
	return top(tickers, limit, Ticker.RiseRate)
}

func top(tickers []Ticker, limit int, key func(Ticker) decimal.Decimal) []string {
	sorted := make([]Ticker, len(tickers))
	copy(sorted, tickers)
	sort.SliceStable(sorted, func(i, j int) bool { return key(sorted[i]).GreaterThan(key(sorted[j])) })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]string, len(sorted))
	for i, t := range sorted {
		out[i] = t.Symbol
	}
	return out
}

// Common: символы из обоих списков в порядке byValue.
func Common(byValue, byRise []string) []string {
	rise := make(map[string]struct{}, len(byRise))
	for _, s := range byRise {
		rise[s] = struct{}{}
	}
	out := make([]string, 0)
	for _, s := range byValue {
		if _, ok := rise[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// RisingGreen: в последних n свечах каждое закрытие выше предыдущего
// и выше своего открытия. Первая из n свечей служит только опорой.
func RisingGreen(candles []models.Candle, n int) bool {
	if n < 2 || len(candles) < n {
		return false
	}
	recent := candles[len(candles)-n:]
	for i := 1; i < len(recent); i++ {
		c := recent[i]
		if !c.Close.GreaterThan(recent[i-1].Close) || !c.Close.GreaterThan(c.Open) {
			return false
		}
	}
	return true
}

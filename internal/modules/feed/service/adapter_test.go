package service

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turtle_bot/internal/models"
)

func candlePayload(body string) models.RawPayload {
	return models.RawPayload{Kind: models.RawCandle, InstrumentID: "BTC_KRW", Body: []byte(body)}
}

func TestNormalizeCandles(t *testing.T) {
	a := NewAdapter(3)

	snap, err := a.Normalize(candlePayload(`{"status":"0000","data":[
		[1700000000000,"100","101","102","99","1.5"],
		[1700003600000,"101","103","104","100","2"]
	]}`))
	require.NoError(t, err)
	assert.Equal(t, "BTC_KRW", snap.InstrumentID)
	require.Len(t, snap.Candles, 2)
	assert.Equal(t, "103", snap.LastPrice.String())
	assert.Equal(t, time.UnixMilli(1700003600000).UTC(), snap.Timestamp)

	// тот же start: заменяет формирующуюся свечу
	snap, err = a.Normalize(candlePayload(`[1700003600000,"101","105","106","100","3"]`))
	require.NoError(t, err)
	require.Len(t, snap.Candles, 2)
	assert.Equal(t, "105", snap.Candles[1].Close.String())

	// окно ограничено
	_, err = a.Normalize(candlePayload(`[[1700007200000,"105","106","107","104","1"],[1700010800000,"106","107","108","105","1"]]`))
	require.NoError(t, err)
	snap, ok := a.Snapshot("BTC_KRW")
	require.True(t, ok)
	require.Len(t, snap.Candles, 3)
	assert.Equal(t, "107", snap.Candles[2].Close.String())
}

func TestNormalizeStale(t *testing.T) {
	a := NewAdapter(10)

	_, err := a.Normalize(candlePayload(`[1700003600000,"101","103","104","100","2"]`))
	require.NoError(t, err)
	before, _ := a.Snapshot("BTC_KRW")

	_, err = a.Normalize(candlePayload(`[1700000000000,"90","91","92","89","2"]`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrStaleData))

	after, _ := a.Snapshot("BTC_KRW")
	assert.Equal(t, before, after)
}

func TestNormalizeTickerAndOrderbook(t *testing.T) {
	a := NewAdapter(10)

	snap, err := a.Normalize(models.RawPayload{Kind: models.RawTicker, Body: []byte(
		`{"type":"ticker","content":{"symbol":"ETH_KRW","closePrice":"3000000","volume":"12.5","date":"20240102","time":"090000"}}`)})
	require.NoError(t, err)
	assert.Equal(t, "ETH_KRW", snap.InstrumentID)
	assert.Equal(t, "3000000", snap.LastPrice.String())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), snap.Timestamp)

	snap, err = a.Normalize(models.RawPayload{Kind: models.RawOrderbook, Body: []byte(
		`{"status":"0000","data":{"timestamp":"1704153600500","order_currency":"ETH","payment_currency":"KRW",
		"bids":[{"price":"2999000","quantity":"1"}],"asks":[{"price":"3001000","quantity":"2"}]}}`)})
	require.NoError(t, err)
	assert.Equal(t, "2999000", snap.BestBid.String())
	assert.Equal(t, "3001000", snap.BestAsk.String())
	assert.Equal(t, "3000000", snap.LastPrice.String())
}

func TestNormalizeMalformed(t *testing.T) {
	a := NewAdapter(10)

	cases := map[string]models.RawPayload{
		"not json":       candlePayload(`{`),
		"bad status":     candlePayload(`{"status":"5600","message":"x","data":[]}`),
		"short row":      candlePayload(`[1700000000000,"1","2"]`),
		"zero price":     candlePayload(`[1700000000000,"0","1","1","1","1"]`),
		"high below low": candlePayload(`[1700000000000,"5","5","4","6","1"]`),
		"unknown kind":   {Kind: "trade", Body: []byte(`{}`)},
		"ticker no date": {Kind: models.RawTicker, Body: []byte(`{"content":{"symbol":"X","closePrice":"1"}}`)},
		"crossed book": {Kind: models.RawOrderbook, InstrumentID: "X", Body: []byte(
			`{"status":"0000","data":{"timestamp":"1","bids":[{"price":"10"}],"asks":[{"price":"9"}]}}`)},
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Normalize(raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrMalformedData), err.Error())
		})
	}
	_, ok := a.Snapshot("BTC_KRW")
	assert.False(t, ok)
}

func TestSurgeDetector(t *testing.T) {
	d := NewSurgeDetector()
	assert.False(t, d.Observe("X", dec("100"), dec("10")))
	assert.False(t, d.Observe("X", dec("101"), dec("40")))
	assert.True(t, d.Observe("X", dec("110"), dec("120")))
	assert.False(t, d.Observe("X", dec("111"), dec("500")))
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

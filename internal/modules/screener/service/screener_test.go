package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"turtle_bot/internal/models"
	feed "turtle_bot/internal/modules/feed/service"
)

const tickers = `{"status":"0000","data":{
	"BTC":{"opening_price":"100","closing_price":"110","acc_trade_value_24H":"9000"},
	"ETH":{"opening_price":"100","closing_price":"101","acc_trade_value_24H":"8000"},
	"XRP":{"opening_price":"100","closing_price":"150","acc_trade_value_24H":"100"},
	"DOGE":{"opening_price":"100","closing_price":"90","acc_trade_value_24H":"7000"},
	"BAD":{"opening_price":"x","closing_price":"1","acc_trade_value_24H":"1"},
	"date":"1700000000000"
}}`

// растут и закрываются выше открытия
const green = `{"status":"0000","data":[
	[1700000000000,"100","101","102","99","1"],
	[1700003600000,"101","103","104","100","1"],
	[1700007200000,"103","105","106","102","1"]
]}`

// последняя свеча красная
const red = `{"status":"0000","data":[
	[1700000000000,"100","101","102","99","1"],
	[1700003600000,"101","103","104","100","1"],
	[1700007200000,"106","104","106","102","1"]
]}`

type fakeSource struct {
	mu      sync.Mutex
	tickers string
	candles map[string]string // instrument/interval -> body
	calls   []string
}

func (f *fakeSource) Tickers(context.Context) ([]byte, error) {
	if f.tickers == "" {
		return nil, errors.Wrap(models.ErrTransportFailure, "down")
	}
	return []byte(f.tickers), nil
}

func (f *fakeSource) Candles(_ context.Context, instrument, interval string) ([]byte, error) {
	key := instrument + "/" + interval
	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.mu.Unlock()
	body, ok := f.candles[key]
	if !ok {
		return nil, errors.Wrapf(models.ErrTransportFailure, "no candles %s", key)
	}
	return []byte(body), nil
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(ctx context.Context, text string) {
	m.Called(ctx, text)
}

func candle(open, cl string) models.Candle {
	return models.Candle{Start: time.Unix(0, 0), Open: decimal.RequireFromString(open), Close: decimal.RequireFromString(cl)}
}

func TestParseTickers(t *testing.T) {
	got, err := ParseTickers([]byte(tickers))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "BTC", got[0].Symbol)
	assert.True(t, got[0].RiseRate().Equal(decimal.RequireFromString("0.1")))

	_, err = ParseTickers([]byte(`{"status":"5500","message":"bad"}`))
	assert.ErrorIs(t, err, models.ErrMalformedData)
	_, err = ParseTickers([]byte(`{`))
	assert.ErrorIs(t, err, models.ErrMalformedData)
}

func TestRankings(t *testing.T) {
	ts, err := ParseTickers([]byte(tickers))
	require.NoError(t, err)

	byValue := TopByValue(ts, 3)
	assert.Equal(t, []string{"BTC", "ETH", "DOGE"}, byValue)
	byRise := TopByRise(ts, 3)
	assert.Equal(t, []string{"XRP", "BTC", "ETH"}, byRise)
	assert.Equal(t, []string{"BTC", "ETH"}, Common(byValue, byRise))
	assert.Len(t, TopByValue(ts, 0), 4)
}

func TestRisingGreen(t *testing.T) {
	up := []models.Candle{candle("100", "101"), candle("101", "103"), candle("103", "105")}
	assert.True(t, RisingGreen(up, 3))

	// первая свеча окна может быть красной: она только опора
	up[0] = candle("110", "101")
	assert.True(t, RisingGreen(up, 3))

	flat := []models.Candle{candle("100", "101"), candle("101", "101"), candle("101", "105")}
	assert.False(t, RisingGreen(flat, 3))

	redLast := []models.Candle{candle("100", "101"), candle("101", "103"), candle("106", "104")}
	assert.False(t, RisingGreen(redLast, 3))

	assert.False(t, RisingGreen(up[:2], 3))
}

func newScreener(t *testing.T, src *fakeSource, n Notifier) *Screener {
	return NewScreener(zaptest.NewLogger(t), src, feed.NewAdapter(10), n, Config{Limit: 3, Top: 1})
}

func TestReportLongTerm(t *testing.T) {
	src := &fakeSource{tickers: tickers, candles: map[string]string{
		"BTC_KRW/1h":  green,
		"ETH_KRW/1h":  red,
		"DOGE_KRW/1h": green,
		"XRP_KRW/24h": green,
		"BTC_KRW/24h": red,
		"ETH_KRW/24h": "{",
	}}
	r, err := newScreener(t, src, nil).Report(context.Background(), TermLong)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC"}, r.Common)
	assert.Equal(t, []string{"BTC", "DOGE"}, r.Fast)
	assert.Equal(t, []string{"XRP"}, r.Slow)
	assert.Equal(t, "1h", r.FastInterval)
	assert.Equal(t, "24h", r.SlowInterval)
	assert.Len(t, src.calls, 6)
}

func TestRunShortTermPublishes(t *testing.T) {
	src := &fakeSource{tickers: tickers, candles: map[string]string{
		"BTC_KRW/1m":  green,
		"XRP_KRW/10m": green,
	}}
	n := new(MockNotifier)
	n.On("Publish", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "краткосрок") &&
			strings.Contains(text, "1m: рост и зелёные свечи\nBTC") &&
			strings.Contains(text, "10m: рост и зелёные свечи\nXRP")
	})).Return().Once()

	require.NoError(t, newScreener(t, src, n).Run(context.Background(), TermShort))
	n.AssertExpectations(t)
}

func TestRunTickersDown(t *testing.T) {
	n := new(MockNotifier)
	err := newScreener(t, &fakeSource{}, n).Run(context.Background(), TermLong)
	assert.ErrorIs(t, err, models.ErrTransportFailure)
	n.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestReportMessageEmptyGroups(t *testing.T) {
	msg := Report{Term: TermLong, FastInterval: "1h", SlowInterval: "24h"}.Message()
	assert.Contains(t, msg, "долгосрок")
	assert.Equal(t, 3, strings.Count(msg, "нет\n"))
}

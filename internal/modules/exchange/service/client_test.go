package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"turtle_bot/internal/models"
)

func testOrder(market bool) models.Order {
	return models.Order{
		ClientID:     "c-1",
		OrderID:      "C0101000000001",
		InstrumentID: "BTC_KRW",
		Side:         models.SideBuy,
		RequestedQty: decimal.RequireFromString("0.5"),
		Price:        decimal.NewFromInt(100),
		Market:       market,
	}
}

type captured struct {
	path   string
	form   url.Values
	header http.Header
	body   string
}

func signedServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	var (
		mu  sync.Mutex
		got captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		form, _ := url.ParseQuery(string(raw))
		mu.Lock()
		got = captured{path: r.URL.Path, form: form, header: r.Header.Clone(), body: string(raw)}
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestSubmitMarketBuySigned(t *testing.T) {
	srv, got := signedServer(t, http.StatusOK, `{"status":"0000","order_id":"C0101000000001"}`)
	c := NewClient(zaptest.NewLogger(t), NewHTTPRequester(srv.URL, "key", "secret", time.Second))

	id, err := c.SubmitOrder(context.Background(), testOrder(true))
	require.NoError(t, err)
	assert.Equal(t, "C0101000000001", id)

	assert.Equal(t, "/trade/market_buy", got.path)
	assert.Equal(t, "BTC", got.form.Get("order_currency"))
	assert.Equal(t, "KRW", got.form.Get("payment_currency"))
	assert.Equal(t, "0.5", got.form.Get("units"))
	assert.Equal(t, "key", got.header.Get("Api-Key"))

	nonce := got.header.Get("Api-Nonce")
	mac := hmac.New(sha512.New, []byte("secret"))
	mac.Write([]byte("/trade/market_buy\x00" + got.body + "\x00" + nonce))
	want := base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(mac.Sum(nil))))
	assert.Equal(t, want, got.header.Get("Api-Sign"))
}

func TestSubmitLimitPlace(t *testing.T) {
	srv, got := signedServer(t, http.StatusOK, `{"status":"0000","order_id":"X1"}`)
	c := NewClient(zaptest.NewLogger(t), NewHTTPRequester(srv.URL, "key", "secret", time.Second))

	o := testOrder(false)
	o.Side = models.SideSell
	_, err := c.SubmitOrder(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, "/trade/place", got.path)
	assert.Equal(t, "ask", got.form.Get("type"))
	assert.Equal(t, "100", got.form.Get("price"))
}

func TestSubmitErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		status int
		reply  string
		want   error
	}{
		{"insufficient balance", http.StatusOK, `{"status":"5600","message":"잔고 부족"}`, models.ErrRejectedByExchange},
		{"bad api key", http.StatusOK, `{"status":"5300","message":"Invalid Apikey"}`, models.ErrRejectedByExchange},
		{"database fail", http.StatusOK, `{"status":"5400","message":"Database Fail"}`, models.ErrTransportFailure},
		{"http 502", http.StatusBadGateway, `bad gateway`, models.ErrTransportFailure},
		{"garbage", http.StatusOK, `<html>`, models.ErrTransportFailure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := signedServer(t, tc.status, tc.reply)
			c := NewClient(zaptest.NewLogger(t), NewHTTPRequester(srv.URL, "key", "secret", time.Second))
			_, err := c.SubmitOrder(context.Background(), testOrder(true))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestRequesterDeadlineIsTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	r := NewHTTPRequester(srv.URL, "key", "secret", time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Post(ctx, "/trade/market_buy", url.Values{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrTimeout), "got %v", err)
}

func TestNonceIncreasing(t *testing.T) {
	r := NewHTTPRequester("http://localhost", "k", "s", time.Second)
	prev, err := strconv.ParseInt(r.nonce(), 10, 64)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		n, err := strconv.ParseInt(r.nonce(), 10, 64)
		require.NoError(t, err)
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestParseDetail(t *testing.T) {
	body := []byte(`{"status":"0000","data":{"type":"bid","order_status":"Completed","order_qty":"0.5",
		"contract":[
			{"transaction_date":"1700000000000000","price":"100","units":"0.2","fee":"0"},
			{"transaction_date":"1700000001000000","price":"101","units":"0.3","fee":"0"}
		]}}`)
	fills, err := parseDetail(testOrder(true), body)
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "C0101000000001:1700000000000000:100:0.2", fills[0].FillID)
	assert.True(t, fills[1].Quantity.Equal(decimal.RequireFromString("0.3")))
	assert.True(t, fills[1].Price.Equal(decimal.NewFromInt(101)))
	assert.Equal(t, time.Unix(1700000001, 0).UTC(), fills[1].Timestamp)

	_, err = parseDetail(testOrder(true), []byte(`{"status":"0000","data":{"contract":[{"price":"x","units":"1"}]}}`))
	assert.True(t, errors.Is(err, models.ErrMalformedData))
}

func TestParseDetailStableFillIDs(t *testing.T) {
	first := []byte(`{"status":"0000","data":{"contract":[
		{"transaction_date":"1700000000000000","price":"100","units":"0.2","fee":"0"},
		{"transaction_date":"1700000001000000","price":"101","units":"0.3","fee":"0"}
	]}}`)
	// та же пара сделок, но новая сверху
	swapped := []byte(`{"status":"0000","data":{"contract":[
		{"transaction_date":"1700000001000000","price":"101","units":"0.3","fee":"0"},
		{"transaction_date":"1700000000000000","price":"100","units":"0.2","fee":"0"}
	]}}`)

	a, err := parseDetail(testOrder(true), first)
	require.NoError(t, err)
	b, err := parseDetail(testOrder(true), swapped)
	require.NoError(t, err)

	ids := func(fills []models.Fill) map[string]string {
		out := make(map[string]string, len(fills))
		for _, f := range fills {
			out[f.FillID] = f.Quantity.String()
		}
		return out
	}
	assert.Equal(t, ids(a), ids(b))
	assert.Len(t, ids(a), 2)
}

func TestCancelWithoutExchangeID(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t), NewHTTPRequester("http://localhost:1", "k", "s", time.Second))
	o := testOrder(true)
	o.OrderID = ""
	err := c.CancelOrder(context.Background(), o)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"turtle_bot/internal/helper"
)

// Public: публичные REST-ручки: история свечей, стакан и тикеры.
type Public struct {
	baseURL string
	http    *http.Client
}

func NewPublic(baseURL string, timeout time.Duration) *Public {
	return &Public{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Candles: сырой ответ /public/candlestick/{order}_{payment}/{interval}.
func (p *Public) Candles(ctx context.Context, instrument, interval string) ([]byte, error) {
	return p.get(ctx, "/public/candlestick/"+instrument+"/"+helper.NormInterval(interval))
}

// Orderbook: сырой ответ /public/orderbook/{order}_{payment}.
func (p *Public) Orderbook(ctx context.Context, instrument string) ([]byte, error) {
	return p.get(ctx, "/public/orderbook/"+instrument+"?count=1")
}

// Tickers: сырой ответ /public/ticker/ALL_KRW, все монеты рынка KRW.
func (p *Public) Tickers(ctx context.Context) ([]byte, error) {
	return p.get(ctx, "/public/ticker/ALL_KRW")
}

func (p *Public) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "%s new request", path)
	}
	req.Header.Set("Accept", "application/json")
	return do(p.http, req, path)
}

package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"turtle_bot/internal/models"
)

// SignedRequester: подписанный POST в приватное API. Для движка это непрозрачный транспорт.
type SignedRequester interface {
	Post(ctx context.Context, endpoint string, params url.Values) ([]byte, error)
}

// HTTPRequester подписывает запросы ключом Bithumb (HMAC-SHA512, hex, base64).
type HTTPRequester struct {
	baseURL string
	key     string
	secret  string
	http    *http.Client

	lastNonce atomic.Int64
}

func NewHTTPRequester(baseURL, key, secret string, timeout time.Duration) *HTTPRequester {
	return &HTTPRequester{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		secret:  secret,
		http:    &http.Client{Timeout: timeout},
	}
}

// nonce в миллисекундах, строго возрастающий.
func (r *HTTPRequester) nonce() string {
	for {
		now := time.Now().UnixMilli()
		last := r.lastNonce.Load()
		if now <= last {
			now = last + 1
		}
		if r.lastNonce.CompareAndSwap(last, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}

func (r *HTTPRequester) sign(endpoint, body, nonce string) string {
	mac := hmac.New(sha512.New, []byte(r.secret))
	mac.Write([]byte(endpoint + "\x00" + body + "\x00" + nonce))
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(mac.Sum(nil))))
}

func (r *HTTPRequester) Post(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	form := url.Values{"endpoint": {endpoint}}
	for k, v := range params {
		form[k] = v
	}
	body := form.Encode()
	nonce := r.nonce()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+endpoint, strings.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "%s new request", endpoint)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Api-Key", r.key)
	req.Header.Set("Api-Nonce", nonce)
	req.Header.Set("Api-Sign", r.sign(endpoint, body, nonce))

	return do(r.http, req, endpoint)
}

func do(c *http.Client, req *http.Request, endpoint string) ([]byte, error) {
	resp, err := c.Do(req)
	if err != nil {
		return nil, classify(req.Context(), err, endpoint)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(models.ErrTransportFailure, "%s read body: %v", endpoint, err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrapf(models.ErrTransportFailure, "%s http %d: %s", endpoint, resp.StatusCode, string(data))
	}
	return data, nil
}

func classify(ctx context.Context, err error, endpoint string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(models.ErrTimeout, "%s: %v", endpoint, err)
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.Wrapf(models.ErrTimeout, "%s: %v", endpoint, err)
	}
	return errors.Wrapf(models.ErrTransportFailure, "%s: %v", endpoint, err)
}

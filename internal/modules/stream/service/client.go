package service

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"turtle_bot/internal/helper"
	"turtle_bot/internal/models"
)

const (
	pingEvery   = 20 * time.Second
	readTimeout = 60 * time.Second
	backoffBase = time.Second
	backoffMax  = 30 * time.Second
)

// Sink принимает сырые payload'ы; обычно это runner.
type Sink interface {
	Ingest(ctx context.Context, raw models.RawPayload)
}

// Client держит одно соединение на все инструменты и переподключается с экспоненциальной паузой.
type Client struct {
	log         *zap.Logger
	url         string
	instruments []string
	dialer      *websocket.Dialer
	onState     func(connected bool)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewClient(log *zap.Logger, url string, instruments []string) *Client {
	return &Client{
		log:         log.Named("stream"),
		url:         url,
		instruments: instruments,
		dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		onState:     func(bool) {},
	}
}

// OnState: хук состояния соединения (для health).
func (c *Client) OnState(fn func(connected bool)) {
	if fn != nil {
		c.onState = fn
	}
}

func (c *Client) Start(sink Sink) {
	if len(c.instruments) == 0 {
		c.log.Warn("[WS] no instruments, stream not started")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Run(ctx, sink)
	}()
}

func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// Run крутится до отмены ctx.
func (c *Client) Run(ctx context.Context, sink Sink) {
	attempt := 0
	for {
		connected, err := c.session(ctx, sink)
		c.onState(false)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempt = 0
		}
		attempt++
		wait := helper.Backoff(backoffBase, backoffMax, attempt)
		c.log.Warn("[WS] disconnected, reconnecting", zap.Error(err), zap.Duration("in", wait))

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// session: одно соединение: подписка, keepalive, чтение до ошибки.
func (c *Client) session(ctx context.Context, sink Sink) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	sub := map[string]any{
		"type":      "ticker",
		"symbols":   c.instruments,
		"tickTypes": []string{"30M"},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return false, err
	}
	c.log.Info("[WS] subscribed", zap.Strings("symbols", c.instruments))
	c.onState(true)

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				// разбудить ReadMessage
				_ = conn.Close()
				return
			case <-t.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		raw, ok := Classify(msg)
		if !ok {
			continue
		}
		raw.ReceivedAt = time.Now().UTC()
		sink.Ingest(ctx, raw)
	}
}

// Classify отделяет данные от служебных кадров ({"status":"0000","resmsg":...}).
func Classify(msg []byte) (models.RawPayload, bool) {
	typ := gjson.GetBytes(msg, "type").String()
	switch typ {
	case "ticker":
		return models.RawPayload{
			Kind:         models.RawTicker,
			InstrumentID: gjson.GetBytes(msg, "content.symbol").String(),
			Body:         msg,
		}, true
	default:
		return models.RawPayload{}, false
	}
}

package service

import (
	"context"
	"time"

	"turtle_bot/internal/models"
)

// Exchange: подписанный транспорт до биржи.
// SubmitOrder возвращает id биржи; пустой id значит, что подтверждение придёт отдельно.
type Exchange interface {
	SubmitOrder(ctx context.Context, order models.Order) (string, error)
	CancelOrder(ctx context.Context, order models.Order) error
}

type Ledger interface {
	ApplyFillContext(ctx context.Context, order models.Order, fill models.Fill) (models.Position, error)
}

type Notifier interface {
	Publish(ctx context.Context, text string)
}

// Journal сохраняет ордера; опционален.
type Journal interface {
	RecordOrder(ctx context.Context, order models.Order) error
}

type Config struct {
	SubmitTimeout time.Duration
	AckTimeout    time.Duration
	CancelTimeout time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
}

func (c Config) withDefaults() Config {
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 5 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.CancelTimeout <= 0 {
		c.CancelTimeout = 5 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 200 * time.Millisecond
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = c.BackoffBase
	}
	return c
}

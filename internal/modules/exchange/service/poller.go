package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
)

// Orders: то, что поллер видит у execution engine.
type Orders interface {
	OpenOrders() []models.Order
	SettlingOrders() []models.Order
	Settled(clientID string)
	HandleFill(ctx context.Context, fill models.Fill) error
}

// Poller периодически забирает исполнения по открытым ордерам и отдаёт их в engine.
type Poller struct {
	log      *zap.Logger
	venue    Venue
	orders   Orders
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(log *zap.Logger, venue Venue, orders Orders, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Poller{
		log:      log.Named("poller"),
		venue:    venue,
		orders:   orders,
		interval: interval,
	}
}

func (p *Poller) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.Poll(ctx)
			}
		}
	}()
}

func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Poll: один проход. Ордера без id биржи пропускаем: их ещё не подтвердили.
// Снятые на бирже ордера опрашиваются ещё раз, чтобы не потерять сделки до отмены.
func (p *Poller) Poll(ctx context.Context) int {
	applied := 0
	for _, order := range p.orders.OpenOrders() {
		if order.OrderID == "" {
			continue
		}
		n, _ := p.collect(ctx, order)
		applied += n
	}
	for _, order := range p.orders.SettlingOrders() {
		if order.OrderID == "" {
			p.orders.Settled(order.ClientID)
			continue
		}
		n, ok := p.collect(ctx, order)
		applied += n
		if ok {
			p.orders.Settled(order.ClientID)
		}
	}
	return applied
}

// collect: ok=false, если детали ордера получить не удалось.
func (p *Poller) collect(ctx context.Context, order models.Order) (int, bool) {
	fills, err := p.venue.OrderDetail(ctx, order)
	if err != nil {
		p.log.Warn("[POLL] order detail failed", zap.String("order_id", order.OrderID), zap.Error(err))
		// биржа ордер не знает: ждать по нему нечего
		return 0, errors.Is(err, models.ErrNotFound)
	}
	applied := 0
	for _, f := range fills {
		if err := p.orders.HandleFill(ctx, f); err != nil {
			if errors.Is(err, models.ErrInvariantViolation) {
				p.log.Error("[POLL] fill rejected", zap.String("fill", f.FillID), zap.Error(err))
			} else {
				p.log.Warn("[POLL] fill not applied", zap.String("fill", f.FillID), zap.Error(err))
			}
			continue
		}
		applied++
	}
	return applied, true
}

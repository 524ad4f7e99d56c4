package service

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
)

// Venue: биржа целиком: отправка, отмена и опрос исполнений.
type Venue interface {
	SubmitOrder(ctx context.Context, order models.Order) (string, error)
	CancelOrder(ctx context.Context, order models.Order) error
	OrderDetail(ctx context.Context, order models.Order) ([]models.Fill, error)
}

// Paper исполняет ордер сразу и целиком по референсной цене со сдвигом на проскальзывание.
type Paper struct {
	log      *zap.Logger
	slippage decimal.Decimal // в долях: 2 bps => 0.0002
	now      func() time.Time

	seq   atomic.Int64
	mu    sync.Mutex
	fills map[string][]models.Fill // по id биржи
}

func NewPaper(log *zap.Logger, slippageBps float64) *Paper {
	return &Paper{
		log:      log.Named("paper"),
		slippage: decimal.NewFromFloat(slippageBps).Div(decimal.NewFromInt(10_000)),
		now:      time.Now,
		fills:    make(map[string][]models.Fill),
	}
}

func (p *Paper) SubmitOrder(ctx context.Context, order models.Order) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Wrap(models.ErrTimeout, err.Error())
	}
	if !order.Price.IsPositive() {
		return "", errors.Wrapf(models.ErrRejectedByExchange, "paper: no reference price for %s", order.InstrumentID)
	}

	id := "paper-" + strconv.FormatInt(p.seq.Add(1), 10)
	price := order.Price
	if order.Market {
		// покупка дороже, продажа дешевле
		price = price.Add(price.Mul(p.slippage).Mul(order.Side.Sign()))
	}

	p.mu.Lock()
	p.fills[id] = []models.Fill{{
		FillID:       id + ":0",
		OrderID:      id,
		ClientID:     order.ClientID,
		InstrumentID: order.InstrumentID,
		Side:         order.Side,
		Quantity:     order.RequestedQty,
		Price:        price,
		Timestamp:    p.now().UTC(),
	}}
	p.mu.Unlock()

	p.log.Info("[PAPER] order filled",
		zap.String("order_id", id),
		zap.String("instrument", order.InstrumentID),
		zap.String("side", string(order.Side)),
		zap.Stringer("qty", order.RequestedQty),
		zap.Stringer("price", price),
	)
	return id, nil
}

func (p *Paper) CancelOrder(_ context.Context, order models.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	fills, ok := p.fills[order.OrderID]
	if !ok {
		return errors.Wrapf(models.ErrNotFound, "paper cancel %s", order.OrderID)
	}
	filled := decimal.Zero
	for _, f := range fills {
		filled = filled.Add(f.Quantity)
	}
	if filled.GreaterThanOrEqual(order.RequestedQty) {
		return errors.Wrapf(models.ErrAlreadyTerminal, "paper cancel %s: filled", order.OrderID)
	}
	return nil
}

func (p *Paper) OrderDetail(_ context.Context, order models.Order) ([]models.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fills, ok := p.fills[order.OrderID]
	if !ok {
		return nil, errors.Wrapf(models.ErrNotFound, "paper detail %s", order.OrderID)
	}
	out := make([]models.Fill, len(fills))
	copy(out, fills)
	return out, nil
}

package service

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
)

// Journal: куда пишем применённые сделки. Ошибка журнала не откатывает позицию.
type Journal interface {
	RecordFill(ctx context.Context, order models.Order, fill models.Fill, pos models.Position) error
}

type book struct {
	mu     sync.Mutex
	pos    models.Position
	seen   map[string]struct{}
	halted bool
	reason string
}

// Ledger: позиции по инструментам. Один писатель на инструмент: у каждой книги свой мьютекс.
type Ledger struct {
	log     *zap.Logger
	journal Journal

	mu     sync.RWMutex
	books  map[string]*book
	onHalt func(instrument, reason string)
}

func NewLedger(log *zap.Logger, journal Journal) *Ledger {
	return &Ledger{
		log:     log.Named("ledger"),
		journal: journal,
		books:   make(map[string]*book),
	}
}

// OnHalt: колбэк на остановку инструмента, вызывается один раз на инструмент.
func (l *Ledger) OnHalt(fn func(instrument, reason string)) {
	l.mu.Lock()
	l.onHalt = fn
	l.mu.Unlock()
}

func (l *Ledger) book(id string) *book {
	l.mu.RLock()
	b, ok := l.books[id]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.books[id]; !ok {
		b = &book{
			pos:  models.Position{InstrumentID: id},
			seen: make(map[string]struct{}),
		}
		l.books[id] = b
	}
	return b
}

// GetPosition не падает: для незнакомого инструмента: нулевая позиция.
func (l *Ledger) GetPosition(instrumentID string) models.Position {
	l.mu.RLock()
	b, ok := l.books[instrumentID]
	l.mu.RUnlock()
	if !ok {
		return models.Position{InstrumentID: instrumentID}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

// Positions: копия всех позиций, отсортированная по инструменту.
func (l *Ledger) Positions() []models.Position {
	l.mu.RLock()
	books := make([]*book, 0, len(l.books))
	for _, b := range l.books {
		books = append(books, b)
	}
	l.mu.RUnlock()

	out := make([]models.Position, 0, len(books))
	for _, b := range books {
		b.mu.Lock()
		out = append(out, b.pos)
		b.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

func (l *Ledger) Halted(instrumentID string) bool {
	l.mu.RLock()
	b, ok := l.books[instrumentID]
	l.mu.RUnlock()
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.halted
}

// Seed: восстановление позиции при старте (из журнала). Только для пустой книги.
func (l *Ledger) Seed(pos models.Position, fillIDs []string) error {
	b := l.book(pos.InstrumentID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.seen) > 0 || !b.pos.Quantity.IsZero() {
		return errors.Errorf("ledger: %s already has state", pos.InstrumentID)
	}
	b.pos = pos
	if pos.Quantity.IsZero() {
		b.pos.AvgEntryPrice = decimal.Zero
	}
	for _, id := range fillIDs {
		b.seen[id] = struct{}{}
	}
	return nil
}

// ApplyFill применяет сделку ровно один раз (по FillID).
// При нарушении инварианта инструмент останавливается, состояние сохраняется как было.
func (l *Ledger) ApplyFill(order models.Order, fill models.Fill) (models.Position, error) {
	return l.ApplyFillContext(context.Background(), order, fill)
}

func (l *Ledger) ApplyFillContext(ctx context.Context, order models.Order, fill models.Fill) (models.Position, error) {
	var notify func()
	defer func() {
		// колбэк остановки зовём уже без блокировки книги
		if notify != nil {
			notify()
		}
	}()

	b := l.book(fill.InstrumentID)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halted {
		return b.pos, errors.Wrapf(models.ErrInstrumentHalted, "%s: %s", fill.InstrumentID, b.reason)
	}
	if _, dup := b.seen[fill.FillID]; dup {
		l.log.Debug("[LEDGER] duplicate fill ignored", zap.String("fill", fill.FillID))
		return b.pos, nil
	}

	if reason := validate(order, fill); reason != "" {
		notify = l.halt(fill.InstrumentID, b, reason)
		return b.pos, errors.Wrapf(models.ErrInvariantViolation, "%s: %s", fill.InstrumentID, reason)
	}

	next := Apply(b.pos, fill.Side, fill.Quantity, fill.Price)
	if !next.Quantity.Sub(b.pos.Quantity).Equal(fill.SignedQty()) {
		const reason = "quantity delta does not match fill"
		notify = l.halt(fill.InstrumentID, b, reason)
		return b.pos, errors.Wrapf(models.ErrInvariantViolation, "%s: %s", fill.InstrumentID, reason)
	}

	b.seen[fill.FillID] = struct{}{}
	b.pos = next

	l.log.Info("[LEDGER] fill applied",
		zap.String("instrument", fill.InstrumentID),
		zap.String("fill", fill.FillID),
		zap.String("side", string(fill.Side)),
		zap.Stringer("qty", fill.Quantity),
		zap.Stringer("price", fill.Price),
		zap.Stringer("position", next.Quantity),
		zap.Stringer("avg", next.AvgEntryPrice),
		zap.Stringer("realized", next.RealizedPnL),
	)

	if l.journal != nil {
		if err := l.journal.RecordFill(ctx, order, fill, next); err != nil {
			l.log.Error("[LEDGER] journal write failed", zap.String("fill", fill.FillID), zap.Error(err))
		}
	}
	return next, nil
}

func validate(order models.Order, fill models.Fill) string {
	switch {
	case fill.FillID == "":
		return "empty fill id"
	case fill.InstrumentID != order.InstrumentID:
		return "fill instrument differs from order"
	case fill.Side != order.Side:
		return "fill side differs from order"
	case !fill.Quantity.IsPositive():
		return "non-positive fill quantity"
	case !fill.Price.IsPositive():
		return "non-positive fill price"
	case order.FilledQty.Add(fill.Quantity).GreaterThan(order.RequestedQty):
		return "fill exceeds order remaining quantity"
	}
	return ""
}

// halt вызывается под b.mu и возвращает отложенный вызов колбэка.
func (l *Ledger) halt(instrument string, b *book, reason string) func() {
	b.halted = true
	b.reason = reason

	l.log.Error("[LEDGER] invariant violation, instrument halted",
		zap.String("instrument", instrument),
		zap.String("reason", reason),
		zap.Stringer("position", b.pos.Quantity),
	)

	l.mu.RLock()
	hook := l.onHalt
	l.mu.RUnlock()
	if hook == nil {
		return nil
	}
	return func() { hook(instrument, reason) }
}

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"turtle_bot/internal/helper"
	"turtle_bot/internal/models"
)

type entry struct {
	// mu держим на время сверки сделки с леджером: обновление FilledQty и позиции атомарно
	mu        sync.Mutex
	order     models.Order
	cancelled bool
	abort     chan struct{} // закрывается при отмене, прерывает паузу между попытками
	notified  bool
	ackTimer  *time.Timer
	fills     map[string]struct{}
}

// Engine: жизненный цикл ордеров от намерения до терминального статуса.
type Engine struct {
	log      *zap.Logger
	cfg      Config
	ex       Exchange
	ledger   Ledger
	notifier Notifier
	journal  Journal

	now   func() time.Time
	newID func() string

	mu         sync.RWMutex
	orders     map[string]*entry // по client id
	byExchange map[string]string // exchange id -> client id
	// снятые на бирже ордера, по которым ещё нужен последний опрос исполнений
	settling map[string]struct{}
}

func NewEngine(log *zap.Logger, cfg Config, ex Exchange, ledger Ledger, notifier Notifier, journal Journal) *Engine {
	return &Engine{
		log:        log.Named("execution"),
		cfg:        cfg.withDefaults(),
		ex:         ex,
		ledger:     ledger,
		notifier:   notifier,
		journal:    journal,
		now:        time.Now,
		newID:      uuid.NewString,
		orders:     make(map[string]*entry),
		byExchange: make(map[string]string),
		settling:   make(map[string]struct{}),
	}
}

// Submit проводит намерение через Created -> Submitted и попытки отправки.
// Ошибка транспорта ретраится с экспоненциальной паузой, таймаут попытки: нет:
// ордер мог дойти до биржи, повтор дал бы дубль.
func (e *Engine) Submit(ctx context.Context, intent models.OrderIntent) (models.Order, error) {
	if !intent.Quantity.IsPositive() {
		return models.Order{}, errors.Errorf("submit: quantity must be > 0, got %s", intent.Quantity)
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "execution.submit")
	defer span.Finish()
	span.SetTag("instrument", intent.InstrumentID)
	span.SetTag("side", string(intent.Side))
	span.SetTag("strategy", intent.StrategyID)

	now := e.now()
	en := &entry{
		order: models.Order{
			ClientID:     e.newID(),
			InstrumentID: intent.InstrumentID,
			Side:         intent.Side,
			RequestedQty: intent.Quantity,
			Price:        intent.Price,
			Market:       intent.Market,
			Status:       models.OrderCreated,
			SignalID:     intent.SignalID,
			StrategyID:   intent.StrategyID,
			SnapshotTS:   intent.SnapshotTS,
			UpdatedAt:    now,
		},
		fills: make(map[string]struct{}),
		abort: make(chan struct{}),
	}
	span.SetTag("client_id", en.order.ClientID)

	e.mu.Lock()
	e.orders[en.order.ClientID] = en
	e.mu.Unlock()

	en.mu.Lock()
	e.transition(en, models.OrderSubmitted)
	en.order.SubmittedAt = now
	order := en.order
	en.mu.Unlock()
	e.record(ctx, order)

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			wait := helper.Backoff(e.cfg.BackoffBase, e.cfg.BackoffMax, attempt-1)
			if err := sleep(ctx, wait, en.abort); err != nil {
				return e.reject(ctx, en, models.RejectTransportFailure, err)
			}
		}

		en.mu.Lock()
		if en.cancelled {
			order := en.order
			en.mu.Unlock()
			e.log.Info("[EXEC] submit aborted, order cancelled", zap.String("client_id", order.ClientID))
			return order, nil
		}
		if en.order.Status != models.OrderSubmitted {
			// подтверждение пришло отдельно, повторять нечего
			order := en.order
			en.mu.Unlock()
			return order, nil
		}
		order := en.order
		en.mu.Unlock()

		actx, cancel := context.WithTimeout(ctx, e.cfg.SubmitTimeout)
		id, err := e.ex.SubmitOrder(actx, order)
		deadline := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()

		switch {
		case err == nil:
			return e.submitted(ctx, en, id), nil

		case errors.Is(err, models.ErrRejectedByExchange):
			return e.reject(ctx, en, models.RejectByExchange, err)

		case errors.Is(err, models.ErrTimeout), errors.Is(err, context.DeadlineExceeded), deadline:
			return e.reject(ctx, en, models.RejectTimeout, err)

		case ctx.Err() != nil:
			return e.reject(ctx, en, models.RejectTransportFailure, err)
		}

		// всё прочее считаем сбоем транспорта
		e.log.Warn("[EXEC] submit attempt failed",
			zap.String("client_id", order.ClientID),
			zap.Int("attempt", attempt+1),
			zap.Int("max", e.cfg.MaxAttempts),
			zap.Error(err),
		)
		span.LogKV("event", "retry", "attempt", attempt+1, "error", err.Error())

		if attempt == e.cfg.MaxAttempts-1 {
			return e.reject(ctx, en, models.RejectTransportFailure, err)
		}
	}
	// MaxAttempts >= 1, сюда не доходим
	return e.reject(ctx, en, models.RejectTransportFailure, models.ErrTransportFailure)
}

// submitted: id есть: это подтверждение; нет: ждём HandleAck не дольше AckTimeout.
func (e *Engine) submitted(ctx context.Context, en *entry, id string) models.Order {
	en.mu.Lock()
	cancelledMeanwhile := en.cancelled

	if id != "" {
		en.order.OrderID = id
		e.mu.Lock()
		e.byExchange[id] = en.order.ClientID
		e.mu.Unlock()
		if !cancelledMeanwhile && en.order.Status == models.OrderSubmitted {
			e.transition(en, models.OrderAcknowledged)
		}
	} else if !cancelledMeanwhile && en.order.Status == models.OrderSubmitted {
		clientID := en.order.ClientID
		en.ackTimer = time.AfterFunc(e.cfg.AckTimeout, func() { e.ackExpired(clientID) })
	}
	order := en.order
	en.mu.Unlock()

	e.record(ctx, order)
	e.log.Info("[EXEC] order submitted",
		zap.String("client_id", order.ClientID),
		zap.String("order_id", order.OrderID),
		zap.String("instrument", order.InstrumentID),
		zap.String("side", string(order.Side)),
		zap.Stringer("qty", order.RequestedQty),
		zap.Stringer("status", order.Status),
	)

	// отмена пришла пока шёл запрос: ордер уже на бирже, снимаем его там
	if cancelledMeanwhile && id != "" {
		go e.cancelRemote(order)
	}
	return order
}

func (e *Engine) ackExpired(clientID string) {
	en, ok := e.entry(clientID)
	if !ok {
		return
	}
	en.mu.Lock()
	pending := en.order.Status == models.OrderSubmitted
	en.mu.Unlock()
	if !pending {
		return
	}
	_, _ = e.reject(context.Background(), en, models.RejectTimeout, errors.New("no acknowledgment"))
}

// reject переводит ордер в Rejected и шлёт ровно одно уведомление.
// Если ордер уже подтверждён или закрыт, ничего не меняем и не уведомляем.
func (e *Engine) reject(ctx context.Context, en *entry, reason models.RejectReason, cause error) (models.Order, error) {
	en.mu.Lock()
	if !en.order.Status.CanTransition(models.OrderRejected) {
		order := en.order
		en.mu.Unlock()
		if order.Status.Terminal() {
			return order, errors.Wrapf(models.ErrAlreadyTerminal, "reject %s", order.ClientID)
		}
		e.log.Warn("[EXEC] reject skipped, order already acknowledged",
			zap.String("client_id", order.ClientID),
			zap.Stringer("status", order.Status),
			zap.String("reason", string(reason)),
			zap.Error(cause),
		)
		return order, nil
	}
	e.transition(en, models.OrderRejected)
	en.order.Reason = reason
	if en.ackTimer != nil {
		en.ackTimer.Stop()
	}
	send := !en.notified
	en.notified = true
	order := en.order
	en.mu.Unlock()

	e.record(ctx, order)
	e.log.Error("[EXEC] order rejected",
		zap.String("client_id", order.ClientID),
		zap.String("instrument", order.InstrumentID),
		zap.String("reason", string(reason)),
		zap.Error(cause),
	)
	if span := opentracing.SpanFromContext(ctx); span != nil {
		span.SetTag("error", true)
		span.LogKV("event", "rejected", "reason", string(reason))
	}

	if send && e.notifier != nil {
		e.notifier.Publish(ctx, fmt.Sprintf("⛔️ [%s] Ордер %s %s %s отклонён: %s",
			order.InstrumentID, order.Side, order.RequestedQty, order.ClientID, reason))
	}
	return order, errors.Wrap(reasonErr(reason), cause.Error())
}

func reasonErr(r models.RejectReason) error {
	switch r {
	case models.RejectTimeout:
		return models.ErrTimeout
	case models.RejectByExchange:
		return models.ErrRejectedByExchange
	}
	return models.ErrTransportFailure
}

// HandleAck: асинхронное подтверждение. Незнакомые ордера логируем и отбрасываем.
func (e *Engine) HandleAck(ctx context.Context, ack models.Ack) error {
	en, ok := e.entry(ack.ClientID)
	if !ok {
		e.log.Warn("[EXEC] ack for unknown order dropped", zap.String("client_id", ack.ClientID), zap.String("order_id", ack.OrderID))
		return errors.Wrapf(models.ErrNotFound, "ack %s", ack.ClientID)
	}

	en.mu.Lock()
	if en.order.Status != models.OrderSubmitted {
		status := en.order.Status
		late := (status == models.OrderRejected || status == models.OrderCancelled) &&
			ack.OrderID != "" && en.order.OrderID == ""
		if late {
			en.order.OrderID = ack.OrderID
		}
		order := en.order
		en.mu.Unlock()

		e.log.Warn("[EXEC] ack ignored", zap.String("client_id", ack.ClientID), zap.Stringer("status", status))
		if late {
			// биржа всё-таки приняла ордер, который мы уже списали: снимаем его там,
			// а его сделки должны находиться по id биржи
			e.mu.Lock()
			e.byExchange[ack.OrderID] = ack.ClientID
			e.mu.Unlock()
			e.record(ctx, order)
			go e.cancelRemote(order)
		}
		return errors.Wrapf(models.ErrAlreadyTerminal, "ack %s in %s", ack.ClientID, status)
	}
	if en.ackTimer != nil {
		en.ackTimer.Stop()
	}
	en.order.OrderID = ack.OrderID
	e.transition(en, models.OrderAcknowledged)
	order := en.order
	en.mu.Unlock()

	if ack.OrderID != "" {
		e.mu.Lock()
		e.byExchange[ack.OrderID] = ack.ClientID
		e.mu.Unlock()
	}
	e.record(ctx, order)
	return nil
}

// HandleFill сверяет сделку с леджером и обновляет FilledQty под одной блокировкой ордера.
// Повтор FillID: no-op. Превышение объёма: нарушение инварианта (инструмент останавливает леджер).
func (e *Engine) HandleFill(ctx context.Context, fill models.Fill) error {
	en, ok := e.lookup(fill)
	if !ok {
		e.log.Warn("[EXEC] fill for unknown order dropped",
			zap.String("fill", fill.FillID), zap.String("client_id", fill.ClientID), zap.String("order_id", fill.OrderID))
		return errors.Wrapf(models.ErrNotFound, "fill %s", fill.FillID)
	}

	en.mu.Lock()
	defer en.mu.Unlock()

	if _, dup := en.fills[fill.FillID]; dup {
		return nil
	}
	if fill.ClientID == "" {
		fill.ClientID = en.order.ClientID
	}
	if fill.OrderID == "" {
		fill.OrderID = en.order.OrderID
	}
	if fill.InstrumentID == "" {
		fill.InstrumentID = en.order.InstrumentID
	}
	if fill.Side == "" {
		fill.Side = en.order.Side
	}

	if en.order.FilledQty.Add(fill.Quantity).GreaterThan(en.order.RequestedQty) {
		e.log.Error("[EXEC] overfill",
			zap.String("client_id", en.order.ClientID),
			zap.Stringer("filled", en.order.FilledQty),
			zap.Stringer("fill", fill.Quantity),
			zap.Stringer("requested", en.order.RequestedQty),
		)
	}

	// леджер проверяет и сторону, и переполнение; при нарушении останавливает инструмент
	if _, err := e.ledger.ApplyFillContext(ctx, en.order, fill); err != nil {
		return errors.Wrapf(err, "fill %s", fill.FillID)
	}

	en.fills[fill.FillID] = struct{}{}
	en.order.FilledQty = en.order.FilledQty.Add(fill.Quantity)

	switch en.order.Status {
	case models.OrderSubmitted:
		// сделка раньше подтверждения: считаем её подтверждением
		if en.ackTimer != nil {
			en.ackTimer.Stop()
		}
		e.transition(en, models.OrderAcknowledged)
		fallthrough
	case models.OrderAcknowledged, models.OrderPartiallyFilled:
		if en.order.FilledQty.Equal(en.order.RequestedQty) {
			e.transition(en, models.OrderFilled)
		} else {
			e.transition(en, models.OrderPartiallyFilled)
		}
	default:
		e.log.Warn("[EXEC] fill on terminal order", zap.String("client_id", en.order.ClientID), zap.Stringer("status", en.order.Status))
		en.order.UpdatedAt = e.now()
	}

	e.record(ctx, en.order)
	return nil
}

// Cancel: не терминальный ордер -> Cancelled. NotFound/AlreadyTerminal не фатальны.
func (e *Engine) Cancel(ctx context.Context, clientID string) (models.Order, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "execution.cancel")
	defer span.Finish()
	span.SetTag("client_id", clientID)

	en, ok := e.entry(clientID)
	if !ok {
		return models.Order{}, errors.Wrapf(models.ErrNotFound, "cancel %s", clientID)
	}

	en.mu.Lock()
	if en.order.Status.Terminal() {
		order := en.order
		en.mu.Unlock()
		return order, errors.Wrapf(models.ErrAlreadyTerminal, "cancel %s in %s", clientID, order.Status)
	}

	// на бирже ордера ещё нет или id неизвестен: отменяем локально
	if en.order.Status == models.OrderCreated || en.order.Status == models.OrderSubmitted {
		e.markCancelled(en)
		order := en.order
		en.mu.Unlock()
		e.record(ctx, order)
		return order, nil
	}
	order := en.order
	en.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, e.cfg.CancelTimeout)
	err := e.ex.CancelOrder(cctx, order)
	cancel()
	if err != nil {
		span.SetTag("error", true)
		return order, errors.Wrapf(err, "cancel %s", clientID)
	}

	en.mu.Lock()
	if en.order.Status.Terminal() {
		// пока ходили на биржу, ордер успел исполниться
		order = en.order
		en.mu.Unlock()
		return order, errors.Wrapf(models.ErrAlreadyTerminal, "cancel %s in %s", clientID, order.Status)
	}
	e.markCancelled(en)
	order = en.order
	en.mu.Unlock()

	// сделки до отмены могли ещё не дойти через опрос
	e.settle(order.ClientID)
	e.record(ctx, order)
	e.log.Info("[EXEC] order cancelled", zap.String("client_id", clientID), zap.Stringer("filled", order.FilledQty))
	return order, nil
}

// KillSwitch отменяет все нетерминальные ордера инструмента ("": все инструменты).
func (e *Engine) KillSwitch(ctx context.Context, instrumentID string) error {
	var errs error
	for _, o := range e.OpenOrders() {
		if instrumentID != "" && o.InstrumentID != instrumentID {
			continue
		}
		if _, err := e.Cancel(ctx, o.ClientID); err != nil && !errors.Is(err, models.ErrAlreadyTerminal) {
			errs = multierr.Append(errs, err)
		}
	}
	if errs != nil {
		e.log.Error("[EXEC] kill switch incomplete", zap.String("instrument", instrumentID), zap.Error(errs))
	}
	return errs
}

func (e *Engine) Order(clientID string) (models.Order, bool) {
	en, ok := e.entry(clientID)
	if !ok {
		return models.Order{}, false
	}
	en.mu.Lock()
	defer en.mu.Unlock()
	return en.order, true
}

// OpenOrders: нетерминальные ордера, по времени создания.
func (e *Engine) OpenOrders() []models.Order {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.orders))
	for _, en := range e.orders {
		entries = append(entries, en)
	}
	e.mu.RUnlock()

	out := make([]models.Order, 0, len(entries))
	for _, en := range entries {
		en.mu.Lock()
		if !en.order.Status.Terminal() {
			out = append(out, en.order)
		}
		en.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out
}

// SettlingOrders: отменённые на бирже ордера, по которым ждём последний опрос исполнений.
func (e *Engine) SettlingOrders() []models.Order {
	e.mu.RLock()
	entries := make([]*entry, 0, len(e.settling))
	for id := range e.settling {
		entries = append(entries, e.orders[id])
	}
	e.mu.RUnlock()

	out := make([]models.Order, 0, len(entries))
	for _, en := range entries {
		en.mu.Lock()
		out = append(out, en.order)
		en.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Settled: последний опрос исполнений по ордеру применён.
func (e *Engine) Settled(clientID string) {
	e.mu.Lock()
	delete(e.settling, clientID)
	e.mu.Unlock()
}

func (e *Engine) settle(clientID string) {
	e.mu.Lock()
	if _, ok := e.orders[clientID]; ok {
		e.settling[clientID] = struct{}{}
	}
	e.mu.Unlock()
}

func (e *Engine) entry(clientID string) (*entry, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	en, ok := e.orders[clientID]
	return en, ok
}

func (e *Engine) lookup(fill models.Fill) (*entry, bool) {
	if fill.ClientID != "" {
		return e.entry(fill.ClientID)
	}
	e.mu.RLock()
	clientID, ok := e.byExchange[fill.OrderID]
	e.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return e.entry(clientID)
}

// transition вызывается под en.mu; недопустимый переход: баг, логируем и не применяем.
func (e *Engine) transition(en *entry, to models.OrderStatus) {
	from := en.order.Status
	if !from.CanTransition(to) {
		e.log.Error("[EXEC] invalid transition", zap.String("client_id", en.order.ClientID),
			zap.Stringer("from", from), zap.Stringer("to", to))
		return
	}
	en.order.Status = to
	en.order.UpdatedAt = e.now()
}

func (e *Engine) cancelRemote(order models.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.CancelTimeout)
	defer cancel()
	if err := e.ex.CancelOrder(ctx, order); err != nil && !errors.Is(err, models.ErrAlreadyTerminal) {
		e.log.Error("[EXEC] remote cancel failed", zap.String("client_id", order.ClientID), zap.String("order_id", order.OrderID), zap.Error(err))
	}
	// даже если снять не удалось, забираем то, что уже исполнилось
	e.settle(order.ClientID)
}

func (e *Engine) record(ctx context.Context, order models.Order) {
	if e.journal == nil {
		return
	}
	if err := e.journal.RecordOrder(ctx, order); err != nil {
		e.log.Error("[EXEC] journal write failed", zap.String("client_id", order.ClientID), zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration, abort <-chan struct{}) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-abort:
		return nil
	case <-t.C:
		return nil
	}
}

// markCancelled под en.mu.
func (e *Engine) markCancelled(en *entry) {
	if !en.cancelled {
		en.cancelled = true
		if en.abort != nil {
			close(en.abort)
		}
	}
	if en.ackTimer != nil {
		en.ackTimer.Stop()
	}
	e.transition(en, models.OrderCancelled)
}

package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"turtle_bot/internal/models"
)

const (
	PolicyBlock      = "block"
	PolicyDropOldest = "drop_oldest"
)

type Normalizer interface {
	Normalize(raw models.RawPayload) (models.MarketSnapshot, error)
	Snapshot(instrument string) (models.MarketSnapshot, bool)
}

type Evaluator interface {
	Evaluate(cfg models.StrategyConfig, snap models.MarketSnapshot, pos models.Position) models.Signal
}

type Router interface {
	Route(sig models.Signal, pos models.Position, risk models.RiskConfig) (*models.OrderIntent, error)
}

type Executor interface {
	Submit(ctx context.Context, intent models.OrderIntent) (models.Order, error)
	OpenOrders() []models.Order
}

type Positions interface {
	GetPosition(instrumentID string) models.Position
	Halted(instrumentID string) bool
}

type Notifier interface {
	Publish(ctx context.Context, text string)
}

// Settings меняются целиком при перезагрузке конфига.
type Settings struct {
	Strategies []models.StrategyConfig
	Risk       models.RiskConfig
}

type Deps struct {
	Feed      Normalizer
	Evaluator Evaluator
	Router    Router
	Executor  Executor
	Positions Positions
	Notifier  Notifier
	// SurgeCheck вызывается на каждом тикере; nil: выключено.
	SurgeCheck func(snap models.MarketSnapshot) bool
}

type event struct {
	raw  *models.RawPayload
	tick bool
}

type worker struct {
	queue chan event
}

// Runner: живой конвейер: на каждый инструмент свой воркер с ограниченной очередью.
// Внутри инструмента события обрабатываются строго по очереди, инструменты: параллельно.
type Runner struct {
	log       *zap.Logger
	deps      Deps
	queueSize int
	policy    string

	settings atomic.Pointer[Settings]

	mu      sync.Mutex
	workers map[string]*worker
	g       *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
	started bool

	alerted sync.Map // instrument -> struct{}, алерт об остановке уже отправлен
	dropped atomic.Int64
	lastAt  atomic.Int64 // unix nano последнего обработанного события
}

func NewRunner(log *zap.Logger, deps Deps, queueSize int, policy string, s Settings) *Runner {
	if queueSize <= 0 {
		queueSize = 256
	}
	if policy != PolicyBlock {
		policy = PolicyDropOldest
	}
	r := &Runner{
		log:       log.Named("runner"),
		deps:      deps,
		queueSize: queueSize,
		policy:    policy,
		workers:   make(map[string]*worker),
	}
	r.settings.Store(&s)
	return r
}

// Apply атомарно подменяет стратегии и риск; текущая оценка доживает со старыми.
func (r *Runner) Apply(s Settings) {
	r.settings.Store(&s)
	r.log.Info("[RUNNER] settings applied", zap.Int("strategies", len(s.Strategies)))
}

func (r *Runner) Settings() Settings { return *r.settings.Load() }

func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.g, r.ctx = errgroup.WithContext(ctx)
	r.cancel = cancel
	r.started = true
}

// Stop гасит воркеры и ждёт их завершения.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.cancel()
	g := r.g
	r.workers = make(map[string]*worker)
	r.mu.Unlock()
	return g.Wait()
}

// Ingest: вход для сырых payload'ов от стрима и REST.
func (r *Runner) Ingest(ctx context.Context, raw models.RawPayload) {
	if raw.InstrumentID == "" {
		r.log.Warn("[RUNNER] payload without instrument dropped", zap.String("kind", string(raw.Kind)))
		return
	}
	r.enqueue(ctx, raw.InstrumentID, event{raw: &raw})
}

// Tick: событие планировщика: переоценить последний снапшот.
func (r *Runner) Tick(ctx context.Context, instrumentID string) {
	r.enqueue(ctx, instrumentID, event{tick: true})
}

// OnHalt: хук леджера; один алерт на инструмент.
func (r *Runner) OnHalt(instrument, reason string) {
	if _, loaded := r.alerted.LoadOrStore(instrument, struct{}{}); loaded {
		return
	}
	r.log.Error("[RUNNER] instrument halted", zap.String("instrument", instrument), zap.String("reason", reason))
	r.deps.Notifier.Publish(context.Background(), fmt.Sprintf("🛑 [%s] Инструмент остановлен: %s", instrument, reason))
}

func (r *Runner) Dropped() int64 { return r.dropped.Load() }

// LastEvent: время последнего обработанного события (для health).
func (r *Runner) LastEvent() time.Time {
	n := r.lastAt.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

func (r *Runner) worker(instrument string) (*worker, context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return nil, nil, false
	}
	w, ok := r.workers[instrument]
	if !ok {
		w = &worker{queue: make(chan event, r.queueSize)}
		r.workers[instrument] = w
		ctx := r.ctx
		r.g.Go(func() error {
			r.loop(ctx, instrument, w)
			return nil
		})
	}
	return w, r.ctx, true
}

func (r *Runner) enqueue(ctx context.Context, instrument string, ev event) {
	w, wctx, ok := r.worker(instrument)
	if !ok {
		r.log.Warn("[RUNNER] not started, event dropped", zap.String("instrument", instrument))
		return
	}

	if r.policy == PolicyBlock {
		select {
		case w.queue <- ev:
		case <-ctx.Done():
		case <-wctx.Done():
		}
		return
	}

	for {
		select {
		case w.queue <- ev:
			return
		default:
		}
		// очередь полна: выкидываем самое старое событие
		select {
		case <-w.queue:
			n := r.dropped.Add(1)
			r.log.Warn("[RUNNER] queue full, oldest event dropped", zap.String("instrument", instrument), zap.Int64("dropped_total", n))
		default:
		}
	}
}

func (r *Runner) loop(ctx context.Context, instrument string, w *worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-w.queue:
			r.process(ctx, instrument, ev)
		}
	}
}

// process: normalize -> evaluate -> route -> submit.
func (r *Runner) process(ctx context.Context, instrument string, ev event) {
	defer r.lastAt.Store(time.Now().UnixNano())

	if r.deps.Positions.Halted(instrument) {
		r.OnHalt(instrument, "ledger halted")
		return
	}

	var snap models.MarketSnapshot
	if ev.raw != nil {
		s, err := r.deps.Feed.Normalize(*ev.raw)
		switch {
		case errors.Is(err, models.ErrStaleData):
			r.log.Warn("[FEED] stale payload discarded", zap.String("instrument", instrument), zap.Error(err))
			return
		case err != nil:
			r.log.Warn("[FEED] malformed payload discarded", zap.String("instrument", instrument), zap.Error(err))
			return
		}
		snap = s
		if ev.raw.Kind == models.RawTicker && r.deps.SurgeCheck != nil && r.deps.SurgeCheck(snap) {
			r.deps.Notifier.Publish(ctx, fmt.Sprintf("🚀 [%s] Всплеск цены и объёма: %s", instrument, snap.LastPrice.String()))
		}
	} else {
		s, ok := r.deps.Feed.Snapshot(instrument)
		if !ok {
			return
		}
		snap = s
	}

	r.evaluate(ctx, snap)
}

func (r *Runner) evaluate(ctx context.Context, snap models.MarketSnapshot) {
	settings := r.settings.Load()
	instrument := snap.InstrumentID

	for _, cfg := range settings.Strategies {
		if !cfg.Enabled {
			continue
		}
		if r.inFlight(instrument) {
			// пока по инструменту висит ордер, новых намерений не создаём
			return
		}

		pos := r.deps.Positions.GetPosition(instrument)
		sig := r.deps.Evaluator.Evaluate(cfg, snap, pos)
		if sig.Direction == models.Hold {
			continue
		}

		intent, err := r.deps.Router.Route(sig, pos, settings.Risk)
		if err != nil {
			r.log.Warn("[RUNNER] signal not routed",
				zap.String("instrument", instrument), zap.String("strategy", cfg.ID),
				zap.String("direction", string(sig.Direction)), zap.Error(err))
			continue
		}
		if intent == nil {
			continue
		}

		r.log.Info("[SIGNAL]",
			zap.String("instrument", instrument),
			zap.String("strategy", cfg.ID),
			zap.String("direction", string(sig.Direction)),
			zap.String("reason", sig.Reason),
			zap.Stringer("qty", intent.Quantity),
			zap.Stringer("price", intent.Price),
		)
		order, err := r.deps.Executor.Submit(ctx, *intent)
		if err != nil {
			r.log.Warn("[RUNNER] submit failed", zap.String("client_id", order.ClientID), zap.Error(err))
			continue
		}
	}
}

func (r *Runner) inFlight(instrument string) bool {
	for _, o := range r.deps.Executor.OpenOrders() {
		if o.InstrumentID == instrument {
			return true
		}
	}
	return false
}

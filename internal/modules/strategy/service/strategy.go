package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"turtle_bot/internal/models"
)

// Strategy: один вариант. Реализации обязаны быть чистыми:
// никаких часов и внутреннего состояния между вызовами.
type Strategy interface {
	Kind() models.StrategyKind
	// Warmup: сколько свечей нужно для решения.
	Warmup(cfg models.StrategyConfig) int
	Decide(cfg models.StrategyConfig, candles []models.Candle, pos models.Position) Decision
}

type Decision struct {
	Direction models.Direction
	Strength  decimal.Decimal
	Reason    string
}

func hold(reason string) Decision {
	return Decision{Direction: models.Hold, Strength: decimal.Zero, Reason: reason}
}

// Registry: варианты стратегий по Kind.
type Registry struct {
	mu    sync.RWMutex
	kinds map[models.StrategyKind]Strategy
}

func NewRegistry() *Registry {
	r := &Registry{kinds: make(map[models.StrategyKind]Strategy)}
	r.Register(Turtle{})
	r.Register(ChannelBreakout{})
	r.Register(EMARSI{})
	return r
}

func (r *Registry) Register(s Strategy) {
	r.mu.Lock()
	r.kinds[s.Kind()] = s
	r.mu.Unlock()
}

// Resolve выбирает вариант по конфигу; вызывается при загрузке конфигурации.
func (r *Registry) Resolve(cfg models.StrategyConfig) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.kinds[cfg.Kind]
	if !ok {
		return nil, errors.Wrapf(models.ErrUnknownStrategy, "%s: %q", cfg.ID, cfg.Kind)
	}
	return s, nil
}

func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for k := range r.kinds {
		out = append(out, string(k))
	}
	sort.Strings(out)
	return out
}

// Evaluator превращает решение варианта в Signal.
type Evaluator struct {
	registry *Registry
}

func NewEvaluator(r *Registry) *Evaluator {
	return &Evaluator{registry: r}
}

// Evaluate: чистая функция от (cfg, snapshot, position).
// Нехватка истории или неизвестный вариант дают hold.
func (e *Evaluator) Evaluate(cfg models.StrategyConfig, snap models.MarketSnapshot, pos models.Position) models.Signal {
	s, err := e.registry.Resolve(cfg)
	if err != nil {
		return models.NewSignal(cfg.ID, snap, models.Hold, decimal.Zero, err.Error())
	}
	if need := s.Warmup(cfg); len(snap.Candles) < need {
		return models.NewSignal(cfg.ID, snap, models.Hold, decimal.Zero,
			fmt.Sprintf("insufficient history: %d/%d", len(snap.Candles), need))
	}
	if !snap.RefPrice().IsPositive() {
		return models.NewSignal(cfg.ID, snap, models.Hold, decimal.Zero, "no reference price")
	}

	d := s.Decide(cfg, snap.Candles, pos)
	return models.NewSignal(cfg.ID, snap, d.Direction, clamp01(d.Strength), d.Reason)
}

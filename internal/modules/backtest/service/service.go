package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
)

type Store interface {
	Save(ctx context.Context, res models.BacktestResult, payload []byte) error
	Load(ctx context.Context, runKey string) ([]byte, error)
}

type Notifier interface {
	Publish(ctx context.Context, text string)
}

// Service: прогон с кодированием и сохранением результата.
type Service struct {
	log      *zap.Logger
	sim      *Simulator
	store    Store
	notifier Notifier
}

func NewService(log *zap.Logger, sim *Simulator, store Store, notifier Notifier) *Service {
	return &Service{log: log.Named("backtest"), sim: sim, store: store, notifier: notifier}
}

// Run возвращает результат и его каноническое кодирование.
// Ошибка сохранения не портит результат: она только логируется.
func (s *Service) Run(ctx context.Context, req RunRequest) (models.BacktestResult, []byte, error) {
	res, err := s.sim.Run(ctx, req)
	if err != nil {
		return models.BacktestResult{}, nil, err
	}
	payload, err := Encode(res)
	if err != nil {
		return models.BacktestResult{}, nil, err
	}

	if s.store != nil {
		if err := s.store.Save(ctx, res, payload); err != nil {
			s.log.Error("[BACKTEST] save failed", zap.String("run", req.RunKey), zap.Error(err))
		}
	}

	m := res.Metrics
	s.log.Info("[BACKTEST] done",
		zap.String("run", res.RunKey),
		zap.String("strategy", res.StrategyID),
		zap.String("instrument", res.InstrumentID),
		zap.Int("signals", len(res.Signals)),
		zap.Int("trades", m.TradeCount),
		zap.Stringer("net_pnl", m.NetPnL),
		zap.Stringer("max_dd", m.MaxDrawdown),
	)
	if s.notifier != nil {
		s.notifier.Publish(ctx, fmt.Sprintf("📊 Бэктест %s (%s, %s)\nСделок: %d, win rate: %s\nPnL: %s, просадка: %s\nИтог по сделкам: %s, лучшая: %s, худшая: %s, средняя: %s, средний убыток: %s",
			res.RunKey, res.StrategyID, res.InstrumentID, m.TradeCount, m.WinRate, m.NetPnL, m.MaxDrawdown,
			m.FinalProfit, m.MaxProfit, m.MinProfit, m.AvgProfit, m.AvgLoss))
	}
	return res, payload, nil
}

// Stored: ранее сохранённый результат прогона.
func (s *Service) Stored(ctx context.Context, runKey string) (models.BacktestResult, error) {
	if s.store == nil {
		return models.BacktestResult{}, errors.Wrapf(models.ErrNotFound, "backtest %s", runKey)
	}
	payload, err := s.store.Load(ctx, runKey)
	if err != nil {
		return models.BacktestResult{}, err
	}
	return Decode(payload)
}

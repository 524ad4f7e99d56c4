package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"turtle_bot/internal/helper"
	"turtle_bot/internal/models"
)

// Fetcher: REST-источник свечей и стакана.
type Fetcher interface {
	Candles(ctx context.Context, instrument, interval string) ([]byte, error)
	Orderbook(ctx context.Context, instrument string) ([]byte, error)
}

type Ticker interface {
	Ingest(ctx context.Context, raw models.RawPayload)
	Tick(ctx context.Context, instrumentID string)
}

// Scheduler раз в интервал подтягивает свечи и стакан по REST и отдаёт тик.
type Scheduler struct {
	log         *zap.Logger
	fetch       Fetcher // nil: только тики
	target      Ticker
	instruments []string
	interval    string
	every       time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(log *zap.Logger, fetch Fetcher, target Ticker, instruments []string, interval string, every time.Duration) *Scheduler {
	if every <= 0 {
		every = helper.IntervalDuration(interval)
	}
	if every <= 0 {
		every = time.Minute
	}
	return &Scheduler{
		log:         log.Named("scheduler"),
		fetch:       fetch,
		target:      target,
		instruments: instruments,
		interval:    interval,
		every:       every,
	}
}

func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(s.every)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.RunOnce(ctx)
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce: один проход по всем инструментам.
func (s *Scheduler) RunOnce(ctx context.Context) {
	for _, inst := range s.instruments {
		if s.fetch != nil {
			s.pull(ctx, inst)
		}
		s.target.Tick(ctx, inst)
	}
}

func (s *Scheduler) pull(ctx context.Context, inst string) {
	now := time.Now().UTC()
	if body, err := s.fetch.Candles(ctx, inst, s.interval); err != nil {
		s.log.Warn("[SCHED] candles fetch failed", zap.String("instrument", inst), zap.Error(err))
	} else {
		s.target.Ingest(ctx, models.RawPayload{Kind: models.RawCandle, InstrumentID: inst, Body: body, ReceivedAt: now})
	}
	if body, err := s.fetch.Orderbook(ctx, inst); err != nil {
		s.log.Warn("[SCHED] orderbook fetch failed", zap.String("instrument", inst), zap.Error(err))
	} else {
		s.target.Ingest(ctx, models.RawPayload{Kind: models.RawOrderbook, InstrumentID: inst, Body: body, ReceivedAt: now})
	}
}

package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"turtle_bot/internal/models"
)

type CandleSource interface {
	Candles(ctx context.Context, instrument, interval string) ([]byte, error)
}

type Sink interface {
	Ingest(ctx context.Context, raw models.RawPayload)
}

type Notifier interface {
	Publish(ctx context.Context, text string)
}

// Warmuper заливает историю свечей по REST до старта стрима, чтобы стратегиям хватило окна.
type Warmuper struct {
	log      *zap.Logger
	src      CandleSource
	sink     Sink
	n        Notifier
	interval string

	// ограничитель параллелизма, чтобы не словить rate limit
	limit int
}

func NewWarmuper(log *zap.Logger, src CandleSource, sink Sink, n Notifier, interval string) *Warmuper {
	return &Warmuper{
		log:      log.Named("warmup"),
		src:      src,
		sink:     sink,
		n:        n,
		interval: interval,
		limit:    4,
	}
}

// Warmup не прерывается на первой ошибке: остальные инструменты догружаются, возвращается первая ошибка.
func (w *Warmuper) Warmup(ctx context.Context, instruments []string) error {
	if len(instruments) == 0 {
		return nil
	}
	started := time.Now()
	w.n.Publish(ctx, fmt.Sprintf("🔥 Прогрев истории: инструментов=%d, интервал=%s", len(instruments), w.interval))

	var (
		g  errgroup.Group
		ok atomic.Int64
	)
	g.SetLimit(w.limit)
	for _, inst := range instruments {
		g.Go(func() error {
			body, err := w.src.Candles(ctx, inst, w.interval)
			if err != nil {
				w.log.Warn("[BOOT] warmup fetch failed", zap.String("instrument", inst), zap.Error(err))
				return errors.Wrapf(err, "warmup %s", inst)
			}
			w.sink.Ingest(ctx, models.RawPayload{
				Kind:         models.RawCandle,
				InstrumentID: inst,
				Body:         body,
				ReceivedAt:   time.Now().UTC(),
			})
			ok.Add(1)
			return nil
		})
	}
	err := g.Wait()

	w.log.Info("[BOOT] warmup done",
		zap.Int64("ok", ok.Load()),
		zap.Int("total", len(instruments)),
		zap.Duration("took", time.Since(started)),
	)
	if err != nil {
		w.n.Publish(ctx, "⚠️ Прогрев завершён с ошибкой: "+err.Error())
		return err
	}
	w.n.Publish(ctx, "✅ Прогрев завершён, стрим можно запускать")
	return nil
}

package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"turtle_bot/internal/models"
)

type TickerSource interface {
	Tickers(ctx context.Context) ([]byte, error)
	Candles(ctx context.Context, instrument, interval string) ([]byte, error)
}

type CandleParser interface {
	Candles(body []byte) ([]models.Candle, error)
}

type Notifier interface {
	Publish(ctx context.Context, text string)
}

type Term string

const (
	TermLong  Term = "long"
	TermShort Term = "short"
)

// intervals: быстрый интервал для лидеров по обороту, медленный для лидеров роста.
func (t Term) intervals() (fast, slow string) {
	if t == TermShort {
		return "1m", "10m"
	}
	return "1h", "24h"
}

func (t Term) title() string {
	if t == TermShort {
		return "краткосрок"
	}
	return "долгосрок"
}

type Config struct {
	Limit      int // сколько монет берём из каждого рейтинга
	Top        int // сколько общих монет показываем
	MinCandles int
	Parallel   int
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = 100
	}
	if c.Top <= 0 {
		c.Top = 20
	}
	if c.MinCandles < 2 {
		c.MinCandles = 3
	}
	if c.Parallel <= 0 {
		c.Parallel = 4
	}
	return c
}

// Report: итог одного прохода скринера.
type Report struct {
	Term         Term
	Common       []string // лидеры оборота, которые есть и среди лидеров роста
	FastInterval string
	Fast         []string // лидеры оборота с растущими зелёными свечами
	SlowInterval string
	Slow         []string // лидеры роста с растущими зелёными свечами
}

func (r Report) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔎 Скринер рынка KRW, %s\n", r.Term.title())
	group := func(title string, symbols []string) {
		b.WriteString("\n" + title + "\n")
		if len(symbols) == 0 {
			b.WriteString("нет\n")
			return
		}
		b.WriteString(strings.Join(symbols, ", ") + "\n")
	}
	group("🔥 Оборот + рост", r.Common)
	group("🟢 "+r.FastInterval+": рост и зелёные свечи", r.Fast)
	group("🟢 "+r.SlowInterval+": рост и зелёные свечи", r.Slow)
	return b.String()
}

// Screener отбирает монеты рынка KRW по обороту, суточному росту и серии зелёных свечей.
// Только сообщает в чат, ордеров не ставит.
type Screener struct {
	log    *zap.Logger
	src    TickerSource
	parser CandleParser
	n      Notifier
	cfg    Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScreener(log *zap.Logger, src TickerSource, parser CandleParser, n Notifier, cfg Config) *Screener {
	return &Screener{
		log:    log.Named("screener"),
		src:    src,
		parser: parser,
		n:      n,
		cfg:    cfg.withDefaults(),
	}
}

func (s *Screener) Report(ctx context.Context, term Term) (Report, error) {
	body, err := s.src.Tickers(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "screener tickers")
	}
	tickers, err := ParseTickers(body)
	if err != nil {
		return Report{}, err
	}

	byValue := TopByValue(tickers, s.cfg.Limit)
	byRise := TopByRise(tickers, s.cfg.Limit)
	common := Common(byValue, byRise)
	if len(common) > s.cfg.Top {
		common = common[:s.cfg.Top]
	}

	fast, slow := term.intervals()
	r := Report{Term: term, Common: common, FastInterval: fast, SlowInterval: slow}
	if r.Fast, err = s.rising(ctx, byValue, fast); err != nil {
		return Report{}, err
	}
	if r.Slow, err = s.rising(ctx, byRise, slow); err != nil {
		return Report{}, err
	}
	return r, nil
}

// rising сохраняет порядок symbols. Монету, по которой свечи не пришли, пропускаем.
func (s *Screener) rising(ctx context.Context, symbols []string, interval string) ([]string, error) {
	ok := make([]bool, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallel)
	for i, sym := range symbols {
		g.Go(func() error {
			body, err := s.src.Candles(gctx, Instrument(sym), interval)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Debug("[SCREEN] candles fetch failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			candles, err := s.parser.Candles(body)
			if err != nil {
				s.log.Debug("[SCREEN] candles parse failed", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			ok[i] = RisingGreen(candles, s.cfg.MinCandles)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrapf(err, "screener %s candles", interval)
	}

	out := make([]string, 0)
	for i, sym := range symbols {
		if ok[i] {
			out = append(out, sym)
		}
	}
	return out, nil
}

// Run: один проход и сообщение в чат.
func (s *Screener) Run(ctx context.Context, term Term) error {
	started := time.Now()
	r, err := s.Report(ctx, term)
	if err != nil {
		s.log.Warn("[SCREEN] run failed", zap.String("term", string(term)), zap.Error(err))
		return err
	}
	s.log.Info("[SCREEN] done",
		zap.String("term", string(term)),
		zap.Int("common", len(r.Common)),
		zap.Int("fast", len(r.Fast)),
		zap.Int("slow", len(r.Slow)),
		zap.Duration("took", time.Since(started)),
	)
	if s.n != nil {
		s.n.Publish(ctx, r.Message())
	}
	return nil
}

func (s *Screener) Start(term Term, every time.Duration) {
	if every <= 0 {
		every = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Run(ctx, term)
			}
		}
	}()
}

func (s *Screener) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

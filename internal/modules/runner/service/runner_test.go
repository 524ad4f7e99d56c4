package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"turtle_bot/internal/models"
	feed "turtle_bot/internal/modules/feed/service"
	router "turtle_bot/internal/modules/router/service"
	strategy "turtle_bot/internal/modules/strategy/service"
)

const breakoutBody = `{"status":"0000","data":[
	[1709251200000,"94","95","95","94","1"],
	[1709254800000,"94","96","96","94","1"],
	[1709258400000,"94","97","97","94","1"],
	[1709262000000,"94","98","98","94","1"],
	[1709265600000,"94","100","101","94","1"]
]}`

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Publish(ctx context.Context, text string) {
	m.Called(ctx, text)
}

type fakeExecutor struct {
	mu      sync.Mutex
	intents []models.OrderIntent
	open    []models.Order
}

func (f *fakeExecutor) Submit(_ context.Context, in models.OrderIntent) (models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents = append(f.intents, in)
	return models.Order{ClientID: "c-1", InstrumentID: in.InstrumentID, Status: models.OrderAcknowledged}, nil
}

func (f *fakeExecutor) OpenOrders() []models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Order(nil), f.open...)
}

func (f *fakeExecutor) submitted() []models.OrderIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.OrderIntent(nil), f.intents...)
}

type fakePositions struct {
	mu     sync.Mutex
	halted map[string]bool
}

func (f *fakePositions) GetPosition(id string) models.Position {
	return models.Position{InstrumentID: id}
}

func (f *fakePositions) Halted(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.halted[id]
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func settings(enabled bool) Settings {
	return Settings{
		Strategies: []models.StrategyConfig{{
			ID: "cb", Kind: models.StrategyChannelBreakout, Params: map[string]string{"length": "4"}, Enabled: enabled,
		}},
		Risk: models.RiskConfig{Equity: d("1000"), RiskPct: d("1"), StopPct: d("10"), MaxPositionQty: d("5")},
	}
}

type harness struct {
	runner   *Runner
	exec     *fakeExecutor
	pos      *fakePositions
	notifier *MockNotifier
}

func newHarness(t *testing.T, s Settings) *harness {
	log := zaptest.NewLogger(t)
	n := new(MockNotifier)
	n.On("Publish", mock.Anything, mock.Anything).Return()
	h := &harness{exec: &fakeExecutor{}, pos: &fakePositions{halted: map[string]bool{}}, notifier: n}
	h.runner = NewRunner(log, Deps{
		Feed:      feed.NewAdapter(50),
		Evaluator: strategy.NewEvaluator(strategy.NewRegistry()),
		Router:    router.NewRouter(log, true),
		Executor:  h.exec,
		Positions: h.pos,
		Notifier:  n,
	}, 16, PolicyBlock, s)
	h.runner.Start()
	t.Cleanup(func() { _ = h.runner.Stop() })
	return h
}

func candles(body string) models.RawPayload {
	return models.RawPayload{Kind: models.RawCandle, InstrumentID: "BTC_KRW", Body: []byte(body)}
}

func TestRunnerPipelineSubmitsIntent(t *testing.T) {
	h := newHarness(t, settings(true))
	h.runner.Ingest(context.Background(), candles(breakoutBody))

	require.Eventually(t, func() bool { return len(h.exec.submitted()) == 1 }, time.Second, 5*time.Millisecond)
	in := h.exec.submitted()[0]
	assert.Equal(t, models.SideBuy, in.Side)
	assert.True(t, in.Quantity.Equal(d("1")))
	assert.Equal(t, "cb", in.StrategyID)
	assert.Equal(t, time.UnixMilli(1709265600000).UTC(), in.SnapshotTS)
}

func TestRunnerDisabledStrategyIgnored(t *testing.T) {
	h := newHarness(t, settings(false))
	h.runner.Ingest(context.Background(), candles(breakoutBody))
	h.runner.Tick(context.Background(), "BTC_KRW")

	assert.Never(t, func() bool { return len(h.exec.submitted()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRunnerApplySwapsSettings(t *testing.T) {
	h := newHarness(t, settings(false))
	h.runner.Ingest(context.Background(), candles(breakoutBody))

	h.runner.Apply(settings(true))
	assert.True(t, h.runner.Settings().Strategies[0].Enabled)

	h.runner.Tick(context.Background(), "BTC_KRW")
	require.Eventually(t, func() bool { return len(h.exec.submitted()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestRunnerInFlightOrderBlocksNewIntents(t *testing.T) {
	h := newHarness(t, settings(true))
	h.exec.open = []models.Order{{ClientID: "c-0", InstrumentID: "BTC_KRW", Status: models.OrderAcknowledged}}
	h.runner.Ingest(context.Background(), candles(breakoutBody))

	assert.Never(t, func() bool { return len(h.exec.submitted()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRunnerMalformedAndStaleDoNotStop(t *testing.T) {
	h := newHarness(t, settings(true))
	ctx := context.Background()

	h.runner.Ingest(ctx, candles(`{"status":"0000","data":[[1709265600000,"x"]]}`))
	h.runner.Ingest(ctx, candles(`[1709300000000,"94","95","95","94","1"]`))
	h.runner.Ingest(ctx, candles(`[1709200000000,"94","95","95","94","1"]`)) // старее принятого

	require.Eventually(t, func() bool { return !h.runner.LastEvent().IsZero() }, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.exec.submitted())
}

func TestRunnerHaltedSingleAlert(t *testing.T) {
	h := newHarness(t, settings(true))
	h.pos.mu.Lock()
	h.pos.halted["BTC_KRW"] = true
	h.pos.mu.Unlock()

	for i := 0; i < 3; i++ {
		h.runner.Ingest(context.Background(), candles(breakoutBody))
	}
	h.runner.OnHalt("BTC_KRW", "overfill")

	require.Eventually(t, func() bool { return !h.runner.LastEvent().IsZero() }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	h.notifier.AssertNumberOfCalls(t, "Publish", 1)
	assert.Empty(t, h.exec.submitted())
}

// блокирующий нормализатор: держит первое событие, пока тест не отпустит
type gateFeed struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	seen    []string
}

func (g *gateFeed) Normalize(raw models.RawPayload) (models.MarketSnapshot, error) {
	g.mu.Lock()
	first := len(g.seen) == 0
	g.seen = append(g.seen, string(raw.Body))
	g.mu.Unlock()
	if first {
		g.entered <- struct{}{}
		<-g.release
	}
	return models.MarketSnapshot{InstrumentID: raw.InstrumentID}, nil
}

func (g *gateFeed) Snapshot(string) (models.MarketSnapshot, bool) { return models.MarketSnapshot{}, false }

func (g *gateFeed) bodies() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.seen...)
}

func TestRunnerDropOldest(t *testing.T) {
	log := zaptest.NewLogger(t)
	g := &gateFeed{entered: make(chan struct{}), release: make(chan struct{})}
	n := new(MockNotifier)
	r := NewRunner(log, Deps{
		Feed:      g,
		Evaluator: strategy.NewEvaluator(strategy.NewRegistry()),
		Router:    router.NewRouter(log, true),
		Executor:  &fakeExecutor{},
		Positions: &fakePositions{halted: map[string]bool{}},
		Notifier:  n,
	}, 1, PolicyDropOldest, settings(false))
	r.Start()
	defer func() { _ = r.Stop() }()

	ctx := context.Background()
	raw := func(body string) models.RawPayload {
		return models.RawPayload{Kind: models.RawTicker, InstrumentID: "BTC_KRW", Body: []byte(body)}
	}
	r.Ingest(ctx, raw("1"))
	<-g.entered
	r.Ingest(ctx, raw("2"))
	r.Ingest(ctx, raw("3")) // вытесняет "2"
	assert.Equal(t, int64(1), r.Dropped())

	close(g.release)
	require.Eventually(t, func() bool { return len(g.bodies()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"1", "3"}, g.bodies())
}

type fakeFetcher struct{}

func (fakeFetcher) Candles(context.Context, string, string) ([]byte, error) {
	return []byte(breakoutBody), nil
}

func (fakeFetcher) Orderbook(context.Context, string) ([]byte, error) {
	return []byte(`{"status":"0000","data":{"timestamp":"1709265600500","order_currency":"BTC","payment_currency":"KRW",
		"bids":[{"price":"99","quantity":"1"}],"asks":[{"price":"101","quantity":"1"}]}}`), nil
}

type recordTicker struct {
	mu     sync.Mutex
	events []string
}

func (r *recordTicker) Ingest(_ context.Context, raw models.RawPayload) {
	r.mu.Lock()
	r.events = append(r.events, string(raw.Kind)+":"+raw.InstrumentID)
	r.mu.Unlock()
}

func (r *recordTicker) Tick(_ context.Context, id string) {
	r.mu.Lock()
	r.events = append(r.events, "tick:"+id)
	r.mu.Unlock()
}

func TestSchedulerRunOnce(t *testing.T) {
	rec := &recordTicker{}
	s := NewScheduler(zaptest.NewLogger(t), fakeFetcher{}, rec, []string{"BTC_KRW", "ETH_KRW"}, "1h", time.Minute)
	s.RunOnce(context.Background())

	assert.Equal(t, []string{
		string(models.RawCandle) + ":BTC_KRW", string(models.RawOrderbook) + ":BTC_KRW", "tick:BTC_KRW",
		string(models.RawCandle) + ":ETH_KRW", string(models.RawOrderbook) + ":ETH_KRW", "tick:ETH_KRW",
	}, rec.events)
}

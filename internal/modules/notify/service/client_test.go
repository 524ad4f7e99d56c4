package service

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"turtle_bot/internal/models"
)

type fakeBot struct {
	mu      sync.Mutex
	sent    []string
	updates chan tgbot.Update
	block   chan struct{}
}

func newFakeBot() *fakeBot {
	return &fakeBot{updates: make(chan tgbot.Update, 1)}
}

func (b *fakeBot) Send(c tgbot.Chattable) (tgbot.Message, error) {
	if b.block != nil {
		<-b.block
	}
	msg := c.(tgbot.MessageConfig)
	b.mu.Lock()
	b.sent = append(b.sent, msg.Text)
	b.mu.Unlock()
	return tgbot.Message{}, nil
}

func (b *fakeBot) GetUpdatesChan(tgbot.UpdateConfig) tgbot.UpdatesChannel { return b.updates }
func (b *fakeBot) StopReceivingUpdates()                                  {}

func (b *fakeBot) texts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

type fakeTrading struct{}

func (fakeTrading) Positions() []models.Position {
	return []models.Position{{
		InstrumentID:  "BTC_KRW",
		Quantity:      decimal.RequireFromString("0.5"),
		AvgEntryPrice: decimal.NewFromInt(100),
		RealizedPnL:   decimal.NewFromInt(3),
	}}
}
func (fakeTrading) Halted(id string) bool { return id == "BTC_KRW" }

type fakeOrders struct{ killed []string }

func (f *fakeOrders) OpenOrders() []models.Order { return nil }
func (f *fakeOrders) KillSwitch(_ context.Context, id string) error {
	f.killed = append(f.killed, id)
	return nil
}

func TestPublishDelivers(t *testing.T) {
	bot := newFakeBot()
	tg := NewTelegram(zaptest.NewLogger(t), bot, 42, 4, fakeTrading{})
	tg.Start()

	tg.Publish(context.Background(), "⛔️ тест")
	require.Eventually(t, func() bool { return len(bot.texts()) == 1 }, time.Second, 5*time.Millisecond)
	tg.Stop()
	assert.Equal(t, []string{"⛔️ тест"}, bot.texts())
}

func TestPublishDropsWhenFull(t *testing.T) {
	bot := newFakeBot()
	tg := NewTelegram(zaptest.NewLogger(t), bot, 42, 2, fakeTrading{})
	// без Start очередь не разбирается

	for i := 0; i < 5; i++ {
		tg.Publish(context.Background(), "msg")
	}
	assert.Len(t, tg.queue, 2)
}

func TestPublishWithoutBot(t *testing.T) {
	tg := NewTelegram(zaptest.NewLogger(t), nil, 0, 1, fakeTrading{})
	tg.Start()
	tg.Publish(context.Background(), "only log")
	tg.Stop()
	assert.Len(t, tg.queue, 0)
}

func TestCommands(t *testing.T) {
	tg := NewTelegram(zaptest.NewLogger(t), newFakeBot(), 42, 1, fakeTrading{})

	assert.Equal(t, "Исполнение не подключено", tg.command(context.Background(), "orders", ""))

	out := tg.command(context.Background(), "positions", "")
	assert.Contains(t, out, "BTC_KRW: 0.5 @ 100.00")
	assert.Contains(t, out, "остановлен")

	orders := &fakeOrders{}
	tg.SetOrders(orders)
	assert.Equal(t, "Открытых ордеров нет", tg.command(context.Background(), "orders", ""))
	assert.Contains(t, tg.command(context.Background(), "kill", "btc_krw"), "BTC_KRW")
	assert.Equal(t, []string{"BTC_KRW"}, orders.killed)
	assert.Contains(t, tg.command(context.Background(), "help", ""), "/positions")
}

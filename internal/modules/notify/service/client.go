package service

import (
	"context"
	"sync"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
)

// Sender: часть *tgbot.BotAPI, которой пользуемся.
type Sender interface {
	Send(c tgbot.Chattable) (tgbot.Message, error)
	GetUpdatesChan(config tgbot.UpdateConfig) tgbot.UpdatesChannel
	StopReceivingUpdates()
}

// Trading: то, что бот показывает и чем управляет по командам.
type Trading interface {
	Positions() []models.Position
	Halted(instrumentID string) bool
}

type Orders interface {
	OpenOrders() []models.Order
	KillSwitch(ctx context.Context, instrumentID string) error
}

// Telegram: оповещения оператору. Publish не блокирует:
// при переполнении очереди сообщение уходит только в лог.
type Telegram struct {
	log     *zap.Logger
	bot     Sender
	chatID  int64
	queue   chan string
	trading Trading

	mu     sync.Mutex
	orders Orders

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTelegram(log *zap.Logger, bot Sender, chatID int64, queueSize int, trading Trading) *Telegram {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Telegram{
		log:     log.Named("telegram"),
		bot:     bot,
		chatID:  chatID,
		queue:   make(chan string, queueSize),
		trading: trading,
	}
}

func (t *Telegram) SetOrders(o Orders) {
	t.mu.Lock()
	t.orders = o
	t.mu.Unlock()
}

func (t *Telegram) getOrders() Orders {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.orders
}

// NewBot: nil, если токена нет: тогда работаем только через лог.
func NewBot(token string) (Sender, error) {
	if token == "" {
		return nil, nil
	}
	bot, err := tgbot.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return bot, nil
}

func (t *Telegram) enabled() bool { return t.bot != nil && t.chatID != 0 }

func (t *Telegram) Publish(_ context.Context, text string) {
	t.log.Info("[NOTIFY] " + text)
	if !t.enabled() {
		return
	}
	select {
	case t.queue <- text:
	default:
		t.log.Warn("[NOTIFY] queue full, message dropped", zap.Int("cap", cap(t.queue)))
	}
}

func (t *Telegram) Start() {
	if !t.enabled() {
		t.log.Warn("[NOTIFY] telegram disabled, log only")
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	t.wg.Add(2)
	go func() {
		defer t.wg.Done()
		t.sendLoop(ctx)
	}()
	go func() {
		defer t.wg.Done()
		t.updatesLoop(ctx)
	}()
}

func (t *Telegram) Stop() {
	if t.cancel == nil {
		return
	}
	t.bot.StopReceivingUpdates()
	t.cancel()
	t.wg.Wait()
}

func (t *Telegram) sendLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// досылаем то, что уже в очереди
			for {
				select {
				case text := <-t.queue:
					t.send(t.chatID, text)
				default:
					return
				}
			}
		case text := <-t.queue:
			t.send(t.chatID, text)
		}
	}
}

func (t *Telegram) send(chatID int64, text string) {
	if _, err := t.bot.Send(tgbot.NewMessage(chatID, text)); err != nil {
		t.log.Warn("[NOTIFY] send failed", zap.Error(err))
	}
}

func (t *Telegram) updatesLoop(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			t.handleUpdate(ctx, upd)
		}
	}
}

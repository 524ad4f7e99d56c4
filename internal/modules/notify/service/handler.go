package service

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	// команды принимаем только из рабочего чата
	if msg.Chat == nil || msg.Chat.ID != t.chatID {
		return
	}
	t.send(t.chatID, t.command(ctx, msg.Command(), msg.CommandArguments()))
}

func (t *Telegram) command(ctx context.Context, cmd, args string) string {
	switch cmd {
	case "positions":
		return formatPositions(t.trading)
	case "orders":
		orders := t.getOrders()
		if orders == nil {
			return "Исполнение не подключено"
		}
		return formatOrders(orders.OpenOrders())
	case "kill":
		orders := t.getOrders()
		if orders == nil {
			return "Исполнение не подключено"
		}
		instrument := strings.ToUpper(strings.TrimSpace(args))
		if err := orders.KillSwitch(ctx, instrument); err != nil {
			t.log.Warn("[NOTIFY] kill switch", zap.String("instrument", instrument), zap.Error(err))
			return "⚠️ Не все ордера отменены: " + err.Error()
		}
		if instrument == "" {
			return "🛑 Все открытые ордера отменены"
		}
		return "🛑 Ордера по " + instrument + " отменены"
	default:
		return "Команды: /positions, /orders, /kill [INSTRUMENT]"
	}
}

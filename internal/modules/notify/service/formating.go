package service

import (
	"fmt"
	"strings"

	"turtle_bot/internal/models"
)

func formatPositions(tr Trading) string {
	if tr == nil {
		return "Леджер не подключён"
	}
	positions := tr.Positions()
	if len(positions) == 0 {
		return "Позиций нет"
	}
	var b strings.Builder
	b.WriteString("📊 Позиции\n")
	for _, p := range positions {
		status := ""
		if tr.Halted(p.InstrumentID) {
			status = " ⛔️ остановлен"
		}
		fmt.Fprintf(&b, "\n%s: %s @ %s, PnL %s%s",
			p.InstrumentID, p.Quantity.String(), p.AvgEntryPrice.StringFixed(2), p.RealizedPnL.StringFixed(2), status)
	}
	return b.String()
}

func formatOrders(orders []models.Order) string {
	if len(orders) == 0 {
		return "Открытых ордеров нет"
	}
	var b strings.Builder
	b.WriteString("📋 Открытые ордера\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n%s %s %s/%s %s", o.InstrumentID, o.Side, o.FilledQty.String(), o.RequestedQty.String(), o.Status)
	}
	return b.String()
}

package service

import (
	"github.com/shopspring/decimal"

	"turtle_bot/internal/models"
)

// Apply: чистый пересчёт позиции на одну сделку.
// Увеличение: средневзвешенная цена. Сокращение: реализованный PnL по старой средней.
// Разворот: закрытие по старой средней и открытие остатка по цене сделки.
func Apply(pos models.Position, side models.Side, qty, price decimal.Decimal) models.Position {
	signed := qty.Mul(side.Sign())
	q0 := pos.Quantity
	q1 := q0.Add(signed)

	out := pos
	out.Quantity = q1

	switch {
	case q0.IsZero() || q0.Sign() == signed.Sign():
		// наращиваем
		cost := q0.Abs().Mul(pos.AvgEntryPrice).Add(qty.Mul(price))
		out.AvgEntryPrice = cost.Div(q1.Abs())
	default:
		closeQty := decimal.Min(qty, q0.Abs())
		pnl := price.Sub(pos.AvgEntryPrice).Mul(closeQty)
		if q0.IsNegative() {
			pnl = pnl.Neg()
		}
		out.RealizedPnL = pos.RealizedPnL.Add(pnl)

		switch {
		case q1.IsZero():
			out.AvgEntryPrice = decimal.Zero
		case q1.Sign() != q0.Sign():
			out.AvgEntryPrice = price
		}
	}
	return out
}

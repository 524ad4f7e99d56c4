package service

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"turtle_bot/internal/helper"
	"turtle_bot/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Router превращает сигнал в намерение ордера с учётом позиции и риска.
type Router struct {
	log    *zap.Logger
	market bool
}

func NewRouter(log *zap.Logger, market bool) *Router {
	return &Router{log: log.Named("router"), market: market}
}

// Route детерминирован: одни и те же входы дают одно и то же намерение.
// nil без ошибки: действовать не нужно.
func (r *Router) Route(sig models.Signal, pos models.Position, risk models.RiskConfig) (*models.OrderIntent, error) {
	switch sig.Direction {
	case models.Hold:
		return nil, nil

	case models.Exit:
		if pos.IsFlat() {
			return nil, nil
		}
		return r.intent(sig, closingSide(pos), pos.Quantity.Abs()), nil

	case models.EnterLong:
		if pos.IsLong() {
			return nil, nil
		}
		return r.enter(sig, pos, risk, models.SideBuy)

	case models.EnterShort:
		if pos.IsShort() {
			return nil, nil
		}
		if !risk.AllowShort {
			// шорт запрещён: сигнал на шорт только закрывает лонг
			if pos.IsLong() {
				return r.intent(sig, models.SideSell, pos.Quantity), nil
			}
			return nil, nil
		}
		return r.enter(sig, pos, risk, models.SideSell)
	}
	return nil, errors.Errorf("router: unknown direction %q", sig.Direction)
}

func (r *Router) enter(sig models.Signal, pos models.Position, risk models.RiskConfig, side models.Side) (*models.OrderIntent, error) {
	if risk.KillSwitch {
		return nil, r.reject(sig, "kill switch is on")
	}

	size, err := SizeByRisk(sig.RefPrice, risk)
	if err != nil {
		return nil, r.reject(sig, err.Error())
	}

	if risk.MaxPositionQty.IsPositive() && size.GreaterThan(risk.MaxPositionQty) {
		return nil, r.reject(sig, "position "+size.String()+" above max "+risk.MaxPositionQty.String())
	}

	// разворот: сначала закрываем противоположную позицию
	qty := size.Add(pos.Quantity.Abs())
	return r.intent(sig, side, qty), nil
}

func (r *Router) intent(sig models.Signal, side models.Side, qty decimal.Decimal) *models.OrderIntent {
	return &models.OrderIntent{
		InstrumentID: sig.InstrumentID,
		Side:         side,
		Quantity:     qty,
		Price:        sig.RefPrice,
		Market:       r.market,
		SignalID:     sig.ID,
		StrategyID:   sig.StrategyID,
		SnapshotTS:   sig.SnapshotTS,
	}
}

func (r *Router) reject(sig models.Signal, reason string) error {
	r.log.Warn("[ROUTER] risk limit",
		zap.String("instrument", sig.InstrumentID),
		zap.String("strategy", sig.StrategyID),
		zap.String("direction", string(sig.Direction)),
		zap.String("reason", reason),
	)
	return errors.Wrap(models.ErrRiskLimitExceeded, reason)
}

func closingSide(pos models.Position) models.Side {
	if pos.IsLong() {
		return models.SideSell
	}
	return models.SideBuy
}

// SizeByRisk: риск = Equity*RiskPct%, стоп = цена*StopPct%, объём = риск/стоп.
// Ограничен плечом (Equity*Leverage/цена), округлён вниз до QtyStep.
func SizeByRisk(price decimal.Decimal, risk models.RiskConfig) (decimal.Decimal, error) {
	if !price.IsPositive() {
		return decimal.Zero, errors.New("reference price <= 0")
	}
	if !risk.Equity.IsPositive() || !risk.RiskPct.IsPositive() || !risk.StopPct.IsPositive() {
		return decimal.Zero, errors.New("equity, risk_pct and stop_pct must be > 0")
	}

	riskMoney := risk.Equity.Mul(risk.RiskPct).Div(hundred)
	stopDist := price.Mul(risk.StopPct).Div(hundred)
	qty := riskMoney.Div(stopDist)

	if risk.Leverage.IsPositive() {
		qty = decimal.Min(qty, risk.Equity.Mul(risk.Leverage).Div(price))
	}
	qty = helper.RoundDownToStep(qty, risk.QtyStep)
	if !qty.IsPositive() || (risk.MinQty.IsPositive() && qty.LessThan(risk.MinQty)) {
		return decimal.Zero, errors.Errorf("size %s below min qty %s", qty, risk.MinQty)
	}
	return qty, nil
}

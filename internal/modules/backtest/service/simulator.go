package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"turtle_bot/internal/models"
	ledger "turtle_bot/internal/modules/ledger/service"
)

var tenThousand = decimal.NewFromInt(10_000)

type Evaluator interface {
	Evaluate(cfg models.StrategyConfig, snap models.MarketSnapshot, pos models.Position) models.Signal
}

type Router interface {
	Route(sig models.Signal, pos models.Position, risk models.RiskConfig) (*models.OrderIntent, error)
}

type RunRequest struct {
	RunKey       string
	Strategy     models.StrategyConfig
	InstrumentID string
	Snapshots    []models.MarketSnapshot
	Risk         models.RiskConfig
	SlippageBps  decimal.Decimal
	FeeRate      decimal.Decimal // доля от оборота: 0.0004 = 4 bps
}

// Simulator прогоняет снапшоты через те же Evaluator и Router, что и живой конвейер.
// Часы не используются: одинаковый запрос даёт побайтно одинаковый результат.
type Simulator struct {
	log       *zap.Logger
	evaluator Evaluator
	router    Router
}

func NewSimulator(log *zap.Logger, evaluator Evaluator, router Router) *Simulator {
	return &Simulator{log: log.Named("backtest"), evaluator: evaluator, router: router}
}

func (s *Simulator) Run(ctx context.Context, req RunRequest) (models.BacktestResult, error) {
	if req.RunKey == "" {
		return models.BacktestResult{}, errors.New("backtest: empty run key")
	}
	res := models.BacktestResult{
		RunKey:       req.RunKey,
		StrategyID:   req.Strategy.ID,
		InstrumentID: req.InstrumentID,
		Signals:      []models.Signal{},
		Fills:        []models.SimulatedFill{},
	}
	if len(req.Snapshots) == 0 {
		res.Position = models.Position{InstrumentID: req.InstrumentID}
		res.Positions = []models.Position{}
		return res, nil
	}
	res.From = req.Snapshots[0].Timestamp
	res.To = req.Snapshots[len(req.Snapshots)-1].Timestamp

	book := ledger.NewLedger(s.log, nil)
	slip := req.SlippageBps.Div(tenThousand)

	var (
		realized = decimal.Zero // после комиссий
		fees     = decimal.Zero
		peak     = decimal.Zero
		maxDD    = decimal.Zero
		trades   []decimal.Decimal
		marks    = make(map[string]decimal.Decimal)
	)

	for i, snap := range req.Snapshots {
		if err := ctx.Err(); err != nil {
			return models.BacktestResult{}, errors.Wrapf(err, "backtest %s interrupted at %d", req.RunKey, i)
		}
		if snap.InstrumentID == "" {
			snap.InstrumentID = req.InstrumentID
		}
		if i > 0 && snap.Timestamp.Before(req.Snapshots[i-1].Timestamp) {
			return models.BacktestResult{}, errors.Wrapf(models.ErrStaleData, "snapshot %d goes back in time", i)
		}

		pos := book.GetPosition(snap.InstrumentID)
		sig := s.evaluator.Evaluate(req.Strategy, snap, pos)
		if sig.Direction != models.Hold {
			res.Signals = append(res.Signals, sig)

			intent, err := s.router.Route(sig, pos, req.Risk)
			if err != nil && !errors.Is(err, models.ErrRiskLimitExceeded) {
				return models.BacktestResult{}, errors.Wrapf(err, "route at %d", i)
			}
			if intent != nil {
				sf, err := s.fill(book, req, slip, len(res.Fills)+1, *intent, pos)
				if err != nil {
					return models.BacktestResult{}, err
				}
				res.Fills = append(res.Fills, sf)
				realized = realized.Add(sf.RealizedPnL)
				fees = fees.Add(sf.Fee)
				if sf.Closing {
					trades = append(trades, sf.RealizedPnL)
				}
			}
		}

		if mark := snap.RefPrice(); mark.IsPositive() {
			marks[snap.InstrumentID] = mark
		}
		equity := realized.Add(unrealized(book.Positions(), marks))
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}

	res.Position = book.GetPosition(req.InstrumentID)
	res.Positions = book.Positions()
	open := unrealized(res.Positions, marks)
	res.Metrics = summarize(trades)
	res.Metrics.NetPnL = realized.Add(open)
	res.Metrics.RealizedPnL = realized
	res.Metrics.UnrealizedPnL = open
	res.Metrics.Fees = fees
	res.Metrics.MaxDrawdown = maxDD
	res.Metrics.TradeCount = len(res.Fills)
	return res, nil
}

// unrealized: сумма по всем позициям; инструмент без цены ещё ничего не стоит.
func unrealized(positions []models.Position, marks map[string]decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range positions {
		mark, ok := marks[p.InstrumentID]
		if !ok || p.IsFlat() {
			continue
		}
		sum = sum.Add(p.UnrealizedPnL(mark))
	}
	return sum
}

// summarize: статистика по закрывающим сделкам.
func summarize(trades []decimal.Decimal) models.Metrics {
	var m models.Metrics
	if len(trades) == 0 {
		return m
	}
	m.MaxProfit, m.MinProfit = trades[0], trades[0]
	total, lost := decimal.Zero, decimal.Zero
	for _, pnl := range trades {
		total = total.Add(pnl)
		m.MaxProfit = decimal.Max(m.MaxProfit, pnl)
		m.MinProfit = decimal.Min(m.MinProfit, pnl)
		switch {
		case pnl.IsPositive():
			m.Wins++
		case pnl.IsNegative():
			m.Losses++
			lost = lost.Add(pnl)
		}
	}
	m.FinalProfit = total
	m.AvgProfit = total.DivRound(decimal.NewFromInt(int64(len(trades))), 8)
	if m.Losses > 0 {
		m.AvgLoss = lost.DivRound(decimal.NewFromInt(int64(m.Losses)), 8)
	}
	m.WinRate = winRate(m.Wins, m.Losses)
	return m
}

// fill исполняет намерение целиком по референсной цене, сдвинутой против трейдера.
func (s *Simulator) fill(book *ledger.Ledger, req RunRequest, slip decimal.Decimal, seq int, in models.OrderIntent, before models.Position) (models.SimulatedFill, error) {
	price := in.Price.Add(in.Price.Mul(slip).Mul(in.Side.Sign()))
	id := fmt.Sprintf("%s-%06d", req.RunKey, seq)

	order := models.Order{
		ClientID:     id,
		OrderID:      id,
		InstrumentID: in.InstrumentID,
		Side:         in.Side,
		RequestedQty: in.Quantity,
		FilledQty:    decimal.Zero,
		Price:        in.Price,
		Market:       in.Market,
		Status:       models.OrderAcknowledged,
		SignalID:     in.SignalID,
		StrategyID:   in.StrategyID,
		SnapshotTS:   in.SnapshotTS,
	}
	f := models.Fill{
		FillID:       id + "-f",
		OrderID:      id,
		ClientID:     id,
		InstrumentID: in.InstrumentID,
		Side:         in.Side,
		Quantity:     in.Quantity,
		Price:        price,
		Timestamp:    in.SnapshotTS,
	}
	after, err := book.ApplyFill(order, f)
	if err != nil {
		return models.SimulatedFill{}, errors.Wrapf(err, "backtest fill %d", seq)
	}

	fee := price.Mul(in.Quantity).Mul(req.FeeRate)
	closing := after.Quantity.Abs().LessThan(before.Quantity.Abs()) ||
		(!before.IsFlat() && after.Quantity.Sign() != before.Quantity.Sign())

	return models.SimulatedFill{
		Seq:         seq,
		Fill:        f,
		Fee:         fee,
		RealizedPnL: after.RealizedPnL.Sub(before.RealizedPnL).Sub(fee),
		PositionQty: after.Quantity,
		Closing:     closing,
	}, nil
}

func winRate(wins, losses int) decimal.Decimal {
	total := wins + losses
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(wins)).DivRound(decimal.NewFromInt(int64(total)), 4)
}

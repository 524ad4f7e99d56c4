package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"turtle_bot/internal/models"
)

type MockJournal struct {
	mock.Mock
}

func (m *MockJournal) RecordFill(ctx context.Context, order models.Order, fill models.Fill, pos models.Position) error {
	args := m.Called(ctx, order, fill, pos)
	return args.Error(0)
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var seq int

func trade(side models.Side, qty, price string) (models.Order, models.Fill) {
	seq++
	o := models.Order{
		ClientID:     fmt.Sprintf("c-%d", seq),
		InstrumentID: "BTC_KRW",
		Side:         side,
		RequestedQty: d(qty),
		Status:       models.OrderAcknowledged,
	}
	f := models.Fill{
		FillID:       fmt.Sprintf("f-%d", seq),
		ClientID:     o.ClientID,
		InstrumentID: o.InstrumentID,
		Side:         side,
		Quantity:     d(qty),
		Price:        d(price),
		Timestamp:    time.Unix(int64(seq), 0),
	}
	return o, f
}

func TestApplyFill_WeightedAverage(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)

	_, err := l.ApplyFill(trade(models.SideBuy, "2", "100"))
	require.NoError(t, err)
	pos, err := l.ApplyFill(trade(models.SideBuy, "1", "106"))
	require.NoError(t, err)

	assert.True(t, pos.Quantity.Equal(d("3")))
	assert.True(t, pos.AvgEntryPrice.Equal(d("102")), pos.AvgEntryPrice.String())
	assert.True(t, pos.RealizedPnL.IsZero())
}

func TestApplyFill_Reversal(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)

	_, err := l.ApplyFill(trade(models.SideBuy, "2", "100"))
	require.NoError(t, err)
	pos, err := l.ApplyFill(trade(models.SideSell, "3", "110"))
	require.NoError(t, err)

	assert.True(t, pos.Quantity.Equal(d("-1")))
	assert.True(t, pos.AvgEntryPrice.Equal(d("110")))
	assert.True(t, pos.RealizedPnL.Equal(d("20")))
}

func TestApplyFill_ReduceAndClose(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)

	_, _ = l.ApplyFill(trade(models.SideSell, "4", "50"))
	pos, err := l.ApplyFill(trade(models.SideBuy, "1", "40"))
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(d("-3")))
	assert.True(t, pos.AvgEntryPrice.Equal(d("50")))
	assert.True(t, pos.RealizedPnL.Equal(d("10")))

	pos, err = l.ApplyFill(trade(models.SideBuy, "3", "60"))
	require.NoError(t, err)
	assert.True(t, pos.IsFlat())
	assert.True(t, pos.AvgEntryPrice.IsZero())
	assert.True(t, pos.RealizedPnL.Equal(d("-20")))
}

func TestApplyFill_Idempotent(t *testing.T) {
	j := new(MockJournal)
	j.On("RecordFill", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	l := NewLedger(zaptest.NewLogger(t), j)
	o, f := trade(models.SideBuy, "1", "100")

	first, err := l.ApplyFill(o, f)
	require.NoError(t, err)
	second, err := l.ApplyFill(o, f)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first, l.GetPosition("BTC_KRW"))
	j.AssertNumberOfCalls(t, "RecordFill", 1)
}

func TestApplyFill_InvariantViolationHalts(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)

	var halts []string
	l.OnHalt(func(instrument, reason string) {
		// колбэк не должен держать блокировку книги
		assert.True(t, l.Halted(instrument))
		halts = append(halts, instrument)
	})

	_, err := l.ApplyFill(trade(models.SideBuy, "1", "100"))
	require.NoError(t, err)
	before := l.GetPosition("BTC_KRW")

	o, f := trade(models.SideBuy, "1", "100")
	f.Side = models.SideSell
	_, err = l.ApplyFill(o, f)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvariantViolation))
	assert.True(t, l.Halted("BTC_KRW"))
	assert.Equal(t, before, l.GetPosition("BTC_KRW"))

	_, err = l.ApplyFill(trade(models.SideBuy, "1", "100"))
	assert.True(t, errors.Is(err, models.ErrInstrumentHalted))
	assert.Equal(t, []string{"BTC_KRW"}, halts)
}

func TestApplyFill_Overfill(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)

	o, f := trade(models.SideBuy, "1", "100")
	o.FilledQty = d("0.5")
	_, err := l.ApplyFill(o, f)
	assert.True(t, errors.Is(err, models.ErrInvariantViolation))
}

// Сумма знаковых объёмов сделок равна итоговой позиции.
func TestApplyFill_SumOfFills(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)

	sides := []models.Side{models.SideBuy, models.SideBuy, models.SideSell, models.SideSell, models.SideSell, models.SideBuy}
	qtys := []string{"1.5", "0.25", "3", "0.75", "1", "2"}
	sum := decimal.Zero
	for i := range sides {
		o, f := trade(sides[i], qtys[i], fmt.Sprintf("%d", 100+i*3))
		_, err := l.ApplyFill(o, f)
		require.NoError(t, err)
		sum = sum.Add(f.SignedQty())
	}
	assert.True(t, l.GetPosition("BTC_KRW").Quantity.Equal(sum))
}

func TestApplyFill_Concurrent(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)

	var wg sync.WaitGroup
	for _, inst := range []string{"BTC_KRW", "ETH_KRW"} {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(inst string, i int) {
				defer wg.Done()
				o := models.Order{InstrumentID: inst, Side: models.SideBuy, RequestedQty: d("1")}
				f := models.Fill{
					FillID:       fmt.Sprintf("%s-%d", inst, i%25), // половина дублей
					InstrumentID: inst,
					Side:         models.SideBuy,
					Quantity:     d("1"),
					Price:        d("10"),
				}
				_, _ = l.ApplyFill(o, f)
			}(inst, i)
		}
	}
	wg.Wait()

	pos := l.Positions()
	require.Len(t, pos, 2)
	assert.Equal(t, "BTC_KRW", pos[0].InstrumentID)
	for _, p := range pos {
		assert.True(t, p.Quantity.Equal(d("25")), p.Quantity.String())
		assert.True(t, p.AvgEntryPrice.Equal(d("10")))
	}
}

func TestGetPosition_Unknown(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)
	p := l.GetPosition("XRP_KRW")
	assert.Equal(t, "XRP_KRW", p.InstrumentID)
	assert.True(t, p.IsFlat())
	assert.False(t, l.Halted("XRP_KRW"))
}

func TestSeed(t *testing.T) {
	l := NewLedger(zaptest.NewLogger(t), nil)
	require.NoError(t, l.Seed(models.Position{InstrumentID: "BTC_KRW", Quantity: d("1"), AvgEntryPrice: d("100")}, []string{"old"}))

	o, f := trade(models.SideBuy, "1", "100")
	f.FillID = "old"
	pos, err := l.ApplyFill(o, f)
	require.NoError(t, err)
	assert.True(t, pos.Quantity.Equal(d("1")))

	assert.Error(t, l.Seed(models.Position{InstrumentID: "BTC_KRW"}, nil))
}

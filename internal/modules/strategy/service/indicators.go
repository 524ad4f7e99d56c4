package service

import (
	"github.com/shopspring/decimal"

	"turtle_bot/internal/models"
)

// Индикаторы считаются по срезу свечей oldest -> newest, без состояния.

func highest(cs []models.Candle) decimal.Decimal {
	h := cs[0].High
	for _, c := range cs[1:] {
		h = decimal.Max(h, c.High)
	}
	return h
}

func lowest(cs []models.Candle) decimal.Decimal {
	l := cs[0].Low
	for _, c := range cs[1:] {
		l = decimal.Min(l, c.Low)
	}
	return l
}

// sma по закрытиям последних n свечей.
func sma(cs []models.Candle, n int) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range cs[len(cs)-n:] {
		sum = sum.Add(c.Close)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

// vwma: sum(typical*vol)/sum(vol), typical = (close+high+low)/3.
// При нулевом объёме возвращает ok=false.
func vwma(cs []models.Candle, n int) (decimal.Decimal, bool) {
	three := decimal.NewFromInt(3)
	num, den := decimal.Zero, decimal.Zero
	for _, c := range cs[len(cs)-n:] {
		tp := c.Close.Add(c.High).Add(c.Low).Div(three)
		num = num.Add(tp.Mul(c.Volume))
		den = den.Add(c.Volume)
	}
	if den.IsZero() {
		return decimal.Zero, false
	}
	return num.Div(den), true
}

// atr: простое среднее true range за n свечей; нужно n+1 свечей.
func atr(cs []models.Candle, n int) decimal.Decimal {
	sum := decimal.Zero
	tail := cs[len(cs)-n-1:]
	for i := 1; i < len(tail); i++ {
		c, prev := tail[i], tail[i-1].Close
		tr := c.High.Sub(c.Low)
		tr = decimal.Max(tr, c.High.Sub(prev).Abs())
		tr = decimal.Max(tr, c.Low.Sub(prev).Abs())
		sum = sum.Add(tr)
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}

// ema по всем закрытиям, первое значение: первая цена.
func ema(cs []models.Candle, n int) decimal.Decimal {
	alpha := decimal.NewFromInt(2).Div(decimal.NewFromInt(int64(n + 1)))
	one := decimal.NewFromInt(1)
	v := cs[0].Close
	for _, c := range cs[1:] {
		v = alpha.Mul(c.Close).Add(one.Sub(alpha).Mul(v))
	}
	return v
}

// rsi Уайлдера по всем закрытиям; нужно минимум n+1 свечей.
func rsi(cs []models.Candle, n int) decimal.Decimal {
	hundred := decimal.NewFromInt(100)
	nd := decimal.NewFromInt(int64(n))

	gain, loss := decimal.Zero, decimal.Zero
	for i := 1; i <= n; i++ {
		ch := cs[i].Close.Sub(cs[i-1].Close)
		if ch.IsPositive() {
			gain = gain.Add(ch)
		} else {
			loss = loss.Sub(ch)
		}
	}
	gain, loss = gain.Div(nd), loss.Div(nd)

	prev := nd.Sub(decimal.NewFromInt(1))
	for i := n + 1; i < len(cs); i++ {
		ch := cs[i].Close.Sub(cs[i-1].Close)
		g, l := decimal.Zero, decimal.Zero
		if ch.IsPositive() {
			g = ch
		} else {
			l = ch.Neg()
		}
		gain = gain.Mul(prev).Add(g).Div(nd)
		loss = loss.Mul(prev).Add(l).Div(nd)
	}

	if loss.IsZero() {
		if gain.IsZero() {
			return decimal.NewFromInt(50)
		}
		return hundred
	}
	rs := gain.Div(loss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}

// clamp01: сила сигнала в [0,1].
func clamp01(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	if v.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return v
}

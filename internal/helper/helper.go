package helper

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NormInterval приводит интервал свечей к виду Bithumb (1m, 3m, 5m, 10m, 30m, 1h, 6h, 12h, 24h).
func NormInterval(raw string) string {
	s := strings.TrimSpace(strings.ToLower(raw))
	s = strings.TrimPrefix(s, "candle")
	switch s {
	case "60m", "1h":
		return "1h"
	case "1d", "24h":
		return "24h"
	case "360m", "6h":
		return "6h"
	case "720m", "12h":
		return "12h"
	default:
		return s
	}
}

// IntervalDuration: длительность свечи; 0 для неизвестного интервала.
func IntervalDuration(raw string) time.Duration {
	switch NormInterval(raw) {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "10m":
		return 10 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1h":
		return time.Hour
	case "6h":
		return 6 * time.Hour
	case "12h":
		return 12 * time.Hour
	case "24h":
		return 24 * time.Hour
	}
	return 0
}

// Backoff: base * 2^attempt, не больше max. attempt считается с нуля.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		return base
	}
	if attempt > 30 {
		return max
	}
	d := base * time.Duration(1<<attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}

func RoundDownToStep(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// SplitInstrument: "BTC_KRW" -> ("BTC", "KRW").
func SplitInstrument(id string) (order, payment string, ok bool) {
	i := strings.LastIndexByte(id, '_')
	if i <= 0 || i >= len(id)-1 {
		return "", "", false
	}
	return id[:i], id[i+1:], true
}

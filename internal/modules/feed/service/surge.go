package service

import (
	"sync"

	"github.com/shopspring/decimal"
)

// SurgeDetector ловит резкий скачок: цена изменилась на PriceChange и больше,
// а объём вырос в VolumeRatio раз и больше относительно предыдущего наблюдения.
type SurgeDetector struct {
	PriceChange decimal.Decimal
	VolumeRatio decimal.Decimal

	mu   sync.Mutex
	prev map[string][2]decimal.Decimal
}

func NewSurgeDetector() *SurgeDetector {
	return &SurgeDetector{
		PriceChange: decimal.RequireFromString("0.05"),
		VolumeRatio: decimal.NewFromInt(3),
		prev:        make(map[string][2]decimal.Decimal),
	}
}

func (d *SurgeDetector) Observe(instrument string, price, volume decimal.Decimal) bool {
	if !price.IsPositive() || !volume.IsPositive() {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, ok := d.prev[instrument]
	d.prev[instrument] = [2]decimal.Decimal{price, volume}
	if !ok {
		return false
	}

	change := price.Sub(p[0]).Div(p[0]).Abs()
	ratio := volume.Div(p[1])
	return change.GreaterThanOrEqual(d.PriceChange) && ratio.GreaterThanOrEqual(d.VolumeRatio)
}

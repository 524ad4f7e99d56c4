package service

import (
	"github.com/pkg/errors"

	"turtle_bot/internal/models"
)

type CandleParser interface {
	Candles(body []byte) ([]models.Candle, error)
}

// HistoryFromBithumb превращает ответ /public/candlestick в последовательность снапшотов:
// на каждой свече снапшот видит не больше window последних свечей, включая текущую.
func HistoryFromBithumb(parser CandleParser, instrument string, body []byte, window int) ([]models.MarketSnapshot, error) {
	cs, err := parser.Candles(body)
	if err != nil {
		return nil, errors.Wrapf(err, "history %s", instrument)
	}
	if window <= 0 {
		window = len(cs)
	}
	out := make([]models.MarketSnapshot, 0, len(cs))
	for i, c := range cs {
		from := i + 1 - window
		if from < 0 {
			from = 0
		}
		win := make([]models.Candle, i+1-from)
		copy(win, cs[from:i+1])
		out = append(out, models.MarketSnapshot{
			InstrumentID: instrument,
			Timestamp:    c.Start,
			LastPrice:    c.Close,
			Volume:       c.Volume,
			Candles:      win,
		})
	}
	return out, nil
}

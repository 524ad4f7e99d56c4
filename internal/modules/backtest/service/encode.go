package service

import (
	"github.com/bytedance/sonic"
	"github.com/pkg/errors"

	"turtle_bot/internal/models"
)

// Encode: каноническая форма результата: ключи отсортированы, одинаковый прогон даёт одинаковые байты.
func Encode(res models.BacktestResult) ([]byte, error) {
	b, err := sonic.ConfigStd.Marshal(res)
	if err != nil {
		return nil, errors.Wrapf(err, "encode backtest %s", res.RunKey)
	}
	return b, nil
}

func Decode(b []byte) (models.BacktestResult, error) {
	var res models.BacktestResult
	if err := sonic.ConfigStd.Unmarshal(b, &res); err != nil {
		return models.BacktestResult{}, errors.Wrap(models.ErrMalformedData, err.Error())
	}
	return res, nil
}

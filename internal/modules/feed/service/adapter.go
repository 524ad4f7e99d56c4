package service

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"turtle_bot/internal/models"
)

const statusOK = "0000"

// kst: время в тикерах Bithumb приходит в Сеуле без зоны.
var kst = time.FixedZone("KST", 9*60*60)

type book struct {
	lastTS  time.Time                    // максимум по всем потокам, он же Timestamp снапшота
	streams map[models.RawKind]time.Time // последнее принятое время по каждому потоку
	bid     decimal.Decimal
	ask     decimal.Decimal
	last    decimal.Decimal
	volume  decimal.Decimal
	candles []models.Candle
}

// Adapter превращает сырые payload'ы в MarketSnapshot и держит по инструменту
// последнее принятое состояние и окно свечей.
type Adapter struct {
	window int

	mu    sync.Mutex
	books map[string]*book
}

func NewAdapter(window int) *Adapter {
	if window <= 0 {
		window = 250
	}
	return &Adapter{
		window: window,
		books:  make(map[string]*book),
	}
}

type update struct {
	instrument string
	ts         time.Time
	bid, ask   decimal.Decimal
	last       decimal.Decimal
	volume     decimal.Decimal
	candles    []models.Candle
}

// Normalize разбирает payload. Устаревший (строго старее последнего принятого
// в том же потоке инструмента) отбрасывается с ErrStaleData, состояние при этом не трогается.
func (a *Adapter) Normalize(raw models.RawPayload) (models.MarketSnapshot, error) {
	if !gjson.ValidBytes(raw.Body) {
		return models.MarketSnapshot{}, errors.Wrap(models.ErrMalformedData, "invalid json")
	}

	var (
		u   update
		err error
	)
	switch raw.Kind {
	case models.RawTicker:
		u, err = parseTicker(raw.Body)
	case models.RawOrderbook:
		u, err = parseOrderbook(raw.Body)
	case models.RawCandle:
		u.candles, err = parseCandles(raw.Body)
		if err == nil {
			u.ts = u.candles[len(u.candles)-1].Start
			u.last = u.candles[len(u.candles)-1].Close
		}
	default:
		return models.MarketSnapshot{}, errors.Wrapf(models.ErrMalformedData, "unknown kind %q", raw.Kind)
	}
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	if raw.InstrumentID != "" {
		u.instrument = raw.InstrumentID
	}
	if u.instrument == "" {
		return models.MarketSnapshot{}, errors.Wrap(models.ErrMalformedData, "no instrument")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.books[u.instrument]
	if !ok {
		b = &book{streams: make(map[models.RawKind]time.Time)}
		a.books[u.instrument] = b
	}
	if prev := b.streams[raw.Kind]; u.ts.Before(prev) {
		return models.MarketSnapshot{}, errors.Wrapf(models.ErrStaleData,
			"%s %s: %s older than %s", u.instrument, raw.Kind, u.ts.Format(time.RFC3339), prev.Format(time.RFC3339))
	}

	b.streams[raw.Kind] = u.ts
	if u.ts.After(b.lastTS) {
		b.lastTS = u.ts
	}
	if u.bid.IsPositive() {
		b.bid = u.bid
	}
	if u.ask.IsPositive() {
		b.ask = u.ask
	}
	if u.last.IsPositive() {
		b.last = u.last
	}
	if u.volume.IsPositive() {
		b.volume = u.volume
	}
	b.candles = mergeCandles(b.candles, u.candles, a.window)

	return a.snapshot(u.instrument, b), nil
}

// Snapshot: последнее принятое состояние без нового payload'а (для тиков планировщика).
func (a *Adapter) Snapshot(instrument string) (models.MarketSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.books[instrument]
	if !ok || b.lastTS.IsZero() {
		return models.MarketSnapshot{}, false
	}
	return a.snapshot(instrument, b), true
}

func (a *Adapter) snapshot(instrument string, b *book) models.MarketSnapshot {
	candles := make([]models.Candle, len(b.candles))
	copy(candles, b.candles)
	return models.MarketSnapshot{
		InstrumentID: instrument,
		Timestamp:    b.lastTS,
		BestBid:      b.bid,
		BestAsk:      b.ask,
		LastPrice:    b.last,
		Volume:       b.volume,
		Candles:      candles,
	}
}

// Candles: разбор REST-истории без изменения состояния адаптера.
func (a *Adapter) Candles(body []byte) ([]models.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, errors.Wrap(models.ErrMalformedData, "invalid json")
	}
	return parseCandles(body)
}

// mergeCandles: свеча с тем же Start заменяет формирующуюся, более старые пропускаем.
func mergeCandles(have, in []models.Candle, window int) []models.Candle {
	for _, c := range in {
		n := len(have)
		switch {
		case n == 0 || c.Start.After(have[n-1].Start):
			have = append(have, c)
		case c.Start.Equal(have[n-1].Start):
			have[n-1] = c
		}
	}
	if len(have) > window {
		have = append(have[:0:0], have[len(have)-window:]...)
	}
	return have
}

func checkStatus(root gjson.Result) error {
	st := root.Get("status")
	if st.Exists() && st.String() != statusOK {
		return errors.Wrapf(models.ErrMalformedData, "status %s: %s", st.String(), root.Get("message").String())
	}
	return nil
}

func positive(r gjson.Result, field string) (decimal.Decimal, error) {
	if !r.Exists() {
		return decimal.Zero, errors.Wrapf(models.ErrMalformedData, "missing %s", field)
	}
	d, err := decimal.NewFromString(r.String())
	if err != nil {
		return decimal.Zero, errors.Wrapf(models.ErrMalformedData, "%s=%q", field, r.String())
	}
	if !d.IsPositive() {
		return decimal.Zero, errors.Wrapf(models.ErrMalformedData, "%s must be > 0, got %s", field, d)
	}
	return d, nil
}

// {"type":"ticker","content":{"symbol":"BTC_KRW","closePrice":"...","volume":"...","date":"20240101","time":"121844"}}
func parseTicker(body []byte) (update, error) {
	c := gjson.GetBytes(body, "content")
	if !c.Exists() {
		return update{}, errors.Wrap(models.ErrMalformedData, "ticker without content")
	}
	var u update
	u.instrument = c.Get("symbol").String()

	var err error
	if u.last, err = positive(c.Get("closePrice"), "closePrice"); err != nil {
		return update{}, err
	}
	if v := c.Get("volume"); v.Exists() {
		if u.volume, err = decimal.NewFromString(v.String()); err != nil {
			return update{}, errors.Wrapf(models.ErrMalformedData, "volume=%q", v.String())
		}
	}
	ts, err := time.ParseInLocation("20060102150405", c.Get("date").String()+c.Get("time").String(), kst)
	if err != nil {
		return update{}, errors.Wrap(models.ErrMalformedData, "ticker date/time")
	}
	u.ts = ts.UTC()
	return u, nil
}

// REST /public/orderbook/{order}_{payment}
func parseOrderbook(body []byte) (update, error) {
	root := gjson.ParseBytes(body)
	if err := checkStatus(root); err != nil {
		return update{}, err
	}
	d := root.Get("data")
	if !d.Exists() {
		return update{}, errors.Wrap(models.ErrMalformedData, "orderbook without data")
	}

	var (
		u   update
		err error
	)
	if oc, pc := d.Get("order_currency").String(), d.Get("payment_currency").String(); oc != "" && pc != "" {
		u.instrument = oc + "_" + pc
	}
	if u.bid, err = positive(d.Get("bids.0.price"), "bids[0].price"); err != nil {
		return update{}, err
	}
	if u.ask, err = positive(d.Get("asks.0.price"), "asks[0].price"); err != nil {
		return update{}, err
	}
	if u.ask.LessThan(u.bid) {
		return update{}, errors.Wrapf(models.ErrMalformedData, "crossed book bid=%s ask=%s", u.bid, u.ask)
	}
	ms := d.Get("timestamp").Int()
	if ms <= 0 {
		return update{}, errors.Wrap(models.ErrMalformedData, "orderbook timestamp")
	}
	u.ts = time.UnixMilli(ms).UTC()
	return u, nil
}

// Строка свечи Bithumb: [ts_ms, open, close, high, low, volume].
// Принимаем полный ответ {"status","data":[[...]]}, массив строк или одну строку.
func parseCandles(body []byte) ([]models.Candle, error) {
	root := gjson.ParseBytes(body)
	if root.IsObject() {
		if err := checkStatus(root); err != nil {
			return nil, err
		}
		root = root.Get("data")
	}
	if !root.IsArray() {
		return nil, errors.Wrap(models.ErrMalformedData, "candles: expected array")
	}

	rows := root.Array()
	if len(rows) > 0 && !rows[0].IsArray() {
		rows = []gjson.Result{root}
	}
	if len(rows) == 0 {
		return nil, errors.Wrap(models.ErrMalformedData, "candles: empty")
	}

	out := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		c, err := parseCandleRow(row)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i)
		}
		if n := len(out); n > 0 && !c.Start.After(out[n-1].Start) {
			return nil, errors.Wrapf(models.ErrMalformedData, "row %d: candles out of order", i)
		}
		out = append(out, c)
	}
	return out, nil
}

func parseCandleRow(row gjson.Result) (models.Candle, error) {
	f := row.Array()
	if len(f) < 6 {
		return models.Candle{}, errors.Wrapf(models.ErrMalformedData, "candle row has %d fields", len(f))
	}
	ms := f[0].Int()
	if ms <= 0 {
		return models.Candle{}, errors.Wrap(models.ErrMalformedData, "candle timestamp")
	}

	var (
		c   = models.Candle{Start: time.UnixMilli(ms).UTC()}
		err error
	)
	if c.Open, err = positive(f[1], "open"); err != nil {
		return c, err
	}
	if c.Close, err = positive(f[2], "close"); err != nil {
		return c, err
	}
	if c.High, err = positive(f[3], "high"); err != nil {
		return c, err
	}
	if c.Low, err = positive(f[4], "low"); err != nil {
		return c, err
	}
	if c.Volume, err = decimal.NewFromString(f[5].String()); err != nil || c.Volume.IsNegative() {
		return c, errors.Wrapf(models.ErrMalformedData, "volume=%q", f[5].String())
	}
	if c.High.LessThan(c.Low) {
		return c, errors.Wrapf(models.ErrMalformedData, "high %s < low %s", c.High, c.Low)
	}
	return c, nil
}

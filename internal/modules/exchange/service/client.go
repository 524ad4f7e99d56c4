package service

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"turtle_bot/internal/helper"
	"turtle_bot/internal/models"
)

const statusOK = "0000"

// Коды ошибок Bithumb, после которых имеет смысл повторить запрос.
var retryable = map[string]bool{
	"5400": true, // database fail
	"5900": true, // unknown error
}

type apiResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	OrderID string `json:"order_id"`
}

type detailResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    struct {
		Type        string `json:"type"` // bid | ask
		OrderStatus string `json:"order_status"`
		OrderQty    string `json:"order_qty"`
		Contract    []contract `json:"contract"`
	} `json:"data"`
}

type contract struct {
	TransactionDate string `json:"transaction_date"` // микросекунды
	Price           string `json:"price"`
	Units           string `json:"units"`
	Fee             string `json:"fee"`
}

// Client: ордера Bithumb поверх подписанного транспорта.
type Client struct {
	log *zap.Logger
	req SignedRequester
}

func NewClient(log *zap.Logger, req SignedRequester) *Client {
	return &Client{log: log.Named("bithumb"), req: req}
}

func statusErr(op string, status, msg string) error {
	if retryable[status] {
		return errors.Wrapf(models.ErrTransportFailure, "%s: status=%s msg=%s", op, status, msg)
	}
	return errors.Wrapf(models.ErrRejectedByExchange, "%s: status=%s msg=%s", op, status, msg)
}

func currencies(order models.Order) (url.Values, error) {
	oc, pc, ok := helper.SplitInstrument(order.InstrumentID)
	if !ok {
		return nil, errors.Wrapf(models.ErrRejectedByExchange, "bad instrument %q", order.InstrumentID)
	}
	return url.Values{"order_currency": {oc}, "payment_currency": {pc}}, nil
}

func orderType(side models.Side) string {
	if side == models.SideBuy {
		return "bid"
	}
	return "ask"
}

func (c *Client) SubmitOrder(ctx context.Context, order models.Order) (string, error) {
	params, err := currencies(order)
	if err != nil {
		return "", err
	}
	params.Set("units", order.RequestedQty.String())

	var endpoint string
	switch {
	case order.Market && order.Side == models.SideBuy:
		endpoint = "/trade/market_buy"
	case order.Market:
		endpoint = "/trade/market_sell"
	default:
		endpoint = "/trade/place"
		params.Set("price", order.Price.String())
		params.Set("type", orderType(order.Side))
	}

	data, err := c.req.Post(ctx, endpoint, params)
	if err != nil {
		return "", err
	}

	var r apiResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return "", errors.Wrapf(models.ErrTransportFailure, "SubmitOrder decode: %v; body=%s", err, string(data))
	}
	if r.Status != statusOK {
		return "", statusErr("SubmitOrder", r.Status, r.Message)
	}

	c.log.Info("[BITHUMB] order placed",
		zap.String("client_id", order.ClientID),
		zap.String("order_id", r.OrderID),
		zap.String("endpoint", endpoint),
	)
	return r.OrderID, nil
}

func (c *Client) CancelOrder(ctx context.Context, order models.Order) error {
	if order.OrderID == "" {
		return errors.Wrapf(models.ErrNotFound, "CancelOrder: %s has no exchange id", order.ClientID)
	}
	params, err := currencies(order)
	if err != nil {
		return err
	}
	params.Set("type", orderType(order.Side))
	params.Set("order_id", order.OrderID)

	data, err := c.req.Post(ctx, "/trade/cancel", params)
	if err != nil {
		return err
	}
	var r apiResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return errors.Wrapf(models.ErrTransportFailure, "CancelOrder decode: %v", err)
	}
	if r.Status != statusOK {
		return statusErr("CancelOrder", r.Status, r.Message)
	}
	return nil
}

// OrderDetail возвращает все исполнения ордера. FillID стабилен между опросами.
func (c *Client) OrderDetail(ctx context.Context, order models.Order) ([]models.Fill, error) {
	params, err := currencies(order)
	if err != nil {
		return nil, err
	}
	params.Set("order_id", order.OrderID)

	data, err := c.req.Post(ctx, "/info/order_detail", params)
	if err != nil {
		return nil, err
	}
	return parseDetail(order, data)
}

// contractID не зависит от позиции сделки в ответе: биржа может вернуть их в другом порядке.
func contractID(orderID string, ct contract) string {
	return orderID + ":" + ct.TransactionDate + ":" + ct.Price + ":" + ct.Units
}

func parseDetail(order models.Order, data []byte) ([]models.Fill, error) {
	var r detailResponse
	if err := sonic.Unmarshal(data, &r); err != nil {
		return nil, errors.Wrapf(models.ErrTransportFailure, "OrderDetail decode: %v", err)
	}
	if r.Status != statusOK {
		return nil, statusErr("OrderDetail", r.Status, r.Message)
	}

	fills := make([]models.Fill, 0, len(r.Data.Contract))
	for i, ct := range r.Data.Contract {
		price, err := decimal.NewFromString(ct.Price)
		if err != nil {
			return nil, errors.Wrapf(models.ErrMalformedData, "contract %d price %q", i, ct.Price)
		}
		units, err := decimal.NewFromString(ct.Units)
		if err != nil {
			return nil, errors.Wrapf(models.ErrMalformedData, "contract %d units %q", i, ct.Units)
		}
		var ts time.Time
		if us, err := strconv.ParseInt(ct.TransactionDate, 10, 64); err == nil {
			ts = time.UnixMicro(us).UTC()
		}
		fills = append(fills, models.Fill{
			FillID:       contractID(order.OrderID, ct),
			OrderID:      order.OrderID,
			ClientID:     order.ClientID,
			InstrumentID: order.InstrumentID,
			Side:         order.Side,
			Quantity:     units,
			Price:        price,
			Timestamp:    ts,
		})
	}
	return fills, nil
}

package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"flushbot/internal/controllers"
	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	gateURL    = "https://api.gateio.ws"
	gatePrefix = "/api/v4"
	gateSettle = "/futures/usdt"
)

// Gate is the v4 USDT settled futures adapter. Order sizes are signed
// contract counts.
type Gate struct {
	*restClient
	precisions *precisionCache
}

func NewGate(
	client controllers.ClientCtrl,
	crypto controllers.CryptoCtrl,
	creds Credentials,
	logger *logrus.Logger,
) *Gate {
	g := &Gate{
		restClient: newRESTClient(normalizer.Gate, client, crypto, creds, gateURL, logger),
	}
	g.precisions = newPrecisionCache(g.fetchPrecision)

	return g
}

func (g *Gate) Name() string {
	return normalizer.Gate
}

// call signs method, path, query, body hash and timestamp with HMAC-SHA512.
func (g *Gate) call(ctx context.Context, method, path string, query url.Values, payload interface{}, signed bool, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return err
		}
	}

	fullPath := gatePrefix + gateSettle + path
	u, err := g.endpoint(fullPath, query)
	if err != nil {
		return err
	}

	headers := http.Header{}
	if signed {
		ts := strconv.FormatInt(g.now().Unix(), 10)
		msg := method + "\n" + fullPath + "\n" + u.RawQuery + "\n" + controllers.HashSHA512(body) + "\n" + ts
		headers.Set("KEY", g.creds.APIKey)
		headers.Set("Timestamp", ts)
		headers.Set("SIGN", g.crypto.GetSignatureSHA512(msg))
	}

	data, statusErr, err := g.send(ctx, method, u, body, headers)
	if err != nil {
		return err
	}

	if statusErr != nil {
		var e struct {
			Label   string `json:"label"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &e) == nil && e.Label != "" {
			return gateError(e.Label, e.Message)
		}
		kind := KindFatal
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			kind = KindRateLimited
		case statusErr.StatusCode >= 500:
			kind = KindTransient
		}
		return newError(g.name, kind, strconv.Itoa(statusErr.StatusCode), string(statusErr.Body))
	}

	return decode(g.name, data, out)
}

func (g *Gate) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	return g.precisions.get(ctx, symbol)
}

func (g *Gate) fetchPrecision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	var c struct {
		OrderPriceRound  decimal.Decimal `json:"order_price_round"`
		QuantoMultiplier decimal.Decimal `json:"quanto_multiplier"`
	}
	if err := g.call(ctx, http.MethodGet, "/contracts/"+symbol, nil, nil, false, &c); err != nil {
		return normalizer.Precision{}, err
	}

	return normalizer.Precision{
		TickSize:     c.OrderPriceRound,
		StepSize:     c.QuantoMultiplier,
		ContractSize: c.QuantoMultiplier,
	}, nil
}

func (g *Gate) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	if err := g.precisions.ensure(ctx, symbol); err != nil {
		return models.Position{}, err
	}

	var row normalizer.GatePosition
	if err := g.call(ctx, http.MethodGet, "/positions/"+symbol, nil, nil, true, &row); err != nil {
		if IsKind(err, KindNotFound) {
			return models.ZeroPosition(symbol), nil
		}
		return models.Position{}, err
	}

	return normalizer.GatePositionToModel(&row, symbol, g.precisions.lookup())
}

func (g *Gate) GetPositions(ctx context.Context) ([]models.Position, error) {
	var rows []normalizer.GatePosition
	if err := g.call(ctx, http.MethodGet, "/positions", nil, nil, true, &rows); err != nil {
		return nil, err
	}

	var out []models.Position
	for i := range rows {
		if rows[i].Size == 0 {
			continue
		}
		if err := g.precisions.ensure(ctx, rows[i].Contract); err != nil {
			return nil, err
		}
		p, err := normalizer.GatePositionToModel(&rows[i], rows[i].Contract, g.precisions.lookup())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (g *Gate) size(p normalizer.Precision, side models.Side, qty decimal.Decimal) int64 {
	n := p.ToContracts(qty).IntPart()
	if side == models.SideSell {
		return -n
	}
	return n
}

func (g *Gate) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	p, err := g.precisions.get(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	size := g.size(p, req.Side, req.Quantity)

	if req.Type == models.OrderTypeStop || req.Type == models.OrderTypeStopMarket {
		return g.placeTrigger(ctx, req, size)
	}

	params := map[string]interface{}{
		"contract":    req.Symbol,
		"size":        size,
		"reduce_only": req.ReduceOnly,
		"text":        normalizer.GateText(req.ClientOrderID),
	}
	if req.Type == models.OrderTypeMarket {
		params["price"] = "0"
		params["tif"] = "ioc"
	} else {
		params["price"] = req.Price.String()
		params["tif"] = "gtc"
		if req.PostOnly {
			params["tif"] = "poc"
		}
	}

	var o normalizer.GateOrder
	if err := g.call(ctx, http.MethodPost, "/orders", nil, params, true, &o); err != nil {
		return nil, err
	}

	return normalizer.GateOrderToModel(&o, g.precisions.lookup())
}

func (g *Gate) placeTrigger(ctx context.Context, req OrderRequest, size int64) (*models.Order, error) {
	price := "0"
	tif := "ioc"
	if req.Type == models.OrderTypeStop {
		price = req.Price.String()
		tif = "gtc"
	}

	// rule 1 fires at or above the trigger price, 2 at or below.
	rule := 2
	if req.Side == models.SideBuy {
		rule = 1
	}

	params := map[string]interface{}{
		"initial": map[string]interface{}{
			"contract":    req.Symbol,
			"size":        size,
			"price":       price,
			"tif":         tif,
			"reduce_only": req.ReduceOnly,
			"text":        "api",
		},
		"trigger": map[string]interface{}{
			"strategy_type": 0,
			"price_type":    0,
			"price":         req.StopPrice.String(),
			"rule":          rule,
		},
	}

	var res struct {
		ID int64 `json:"id"`
	}
	if err := g.call(ctx, http.MethodPost, "/price_orders", nil, params, true, &res); err != nil {
		return nil, err
	}

	id := strconv.FormatInt(res.ID, 10)
	order, err := g.triggerOrder(ctx, id)
	if err != nil || order != nil {
		return order, err
	}
	return accepted(req, id, g.now()), nil
}

func (g *Gate) triggerOrder(ctx context.Context, id string) (*models.Order, error) {
	var o normalizer.GateTriggerOrder
	if err := g.call(ctx, http.MethodGet, "/price_orders/"+id, nil, nil, true, &o); err != nil {
		if IsKind(err, KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := g.precisions.ensure(ctx, o.Initial.Contract); err != nil {
		return nil, err
	}
	return normalizer.GateTriggerOrderToModel(&o, g.precisions.lookup())
}

func (g *Gate) GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error) {
	if err := g.precisions.ensure(ctx, symbol); err != nil {
		return nil, err
	}

	id := ref.OrderID
	if id == "" {
		id = normalizer.GateText(ref.ClientOrderID)
	}

	var o normalizer.GateOrder
	err := g.call(ctx, http.MethodGet, "/orders/"+id, nil, nil, true, &o)
	switch {
	case err == nil:
		return normalizer.GateOrderToModel(&o, g.precisions.lookup())
	case !IsKind(err, KindNotFound):
		return nil, err
	case ref.OrderID == "":
		return nil, nil
	}

	return g.triggerOrder(ctx, ref.OrderID)
}

func (g *Gate) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	if err := g.precisions.ensure(ctx, symbol); err != nil {
		return nil, err
	}
	query := url.Values{"contract": {symbol}, "status": {"open"}}

	var rows []normalizer.GateOrder
	if err := g.call(ctx, http.MethodGet, "/orders", query, nil, true, &rows); err != nil {
		return nil, err
	}

	var triggers []normalizer.GateTriggerOrder
	if err := g.call(ctx, http.MethodGet, "/price_orders", query, nil, true, &triggers); err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(rows)+len(triggers))
	for i := range rows {
		o, err := normalizer.GateOrderToModel(&rows[i], g.precisions.lookup())
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	for i := range triggers {
		o, err := normalizer.GateTriggerOrderToModel(&triggers[i], g.precisions.lookup())
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}

	return out, nil
}

func (g *Gate) CancelOrder(ctx context.Context, symbol string, ref OrderRef) error {
	order, err := g.GetOrder(ctx, symbol, ref)
	if err != nil {
		return err
	}
	if order == nil {
		return newError(g.name, KindNotFound, "ORDER_NOT_FOUND", ref.String())
	}

	path := "/orders/" + order.OrderID
	if order.Type == models.OrderTypeStop || order.Type == models.OrderTypeStopMarket {
		path = "/price_orders/" + order.OrderID
	}
	return g.call(ctx, http.MethodDelete, path, nil, nil, true, nil)
}

func (g *Gate) CancelAllOrders(ctx context.Context, symbol string) error {
	query := url.Values{"contract": {symbol}}
	if err := g.call(ctx, http.MethodDelete, "/orders", query, nil, true, nil); err != nil {
		return err
	}
	return g.call(ctx, http.MethodDelete, "/price_orders", query, nil, true, nil)
}

func (g *Gate) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	interval, err := normalizer.ExchangeInterval(normalizer.Gate, q.Interval)
	if err != nil {
		return nil, err
	}
	p, err := g.precisions.get(ctx, q.Symbol)
	if err != nil {
		return nil, err
	}

	// Gate rejects limit together with from and to.
	query := url.Values{"contract": {q.Symbol}, "interval": {interval}}
	switch {
	case !q.Start.IsZero():
		query.Set("from", strconv.FormatInt(q.Start.Unix(), 10))
		if !q.End.IsZero() {
			query.Set("to", strconv.FormatInt(q.End.Unix(), 10))
		}
	default:
		if q.Limit > 0 {
			query.Set("limit", strconv.Itoa(q.Limit))
		}
		if !q.End.IsZero() {
			query.Set("to", strconv.FormatInt(q.End.Unix(), 10))
		}
	}

	var rows []normalizer.GateCandle
	if err := g.call(ctx, http.MethodGet, "/candlesticks", query, nil, false, &rows); err != nil {
		return nil, err
	}

	out := make(models.Candles, 0, len(rows))
	for _, row := range rows {
		c, err := normalizer.GateCandleToModel(row, q.Interval, p)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (g *Gate) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	p, err := g.precisions.get(ctx, symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	if limit <= 0 || limit > 300 {
		limit = 300
	}

	type level struct {
		P decimal.Decimal `json:"p"`
		S int64           `json:"s"`
	}
	var res struct {
		Asks []level `json:"asks"`
		Bids []level `json:"bids"`
	}
	err = g.call(ctx, http.MethodGet, "/order_book", url.Values{
		"contract": {symbol},
		"limit":    {strconv.Itoa(limit)},
	}, nil, false, &res)
	if err != nil {
		return models.OrderBook{}, err
	}

	book := models.OrderBook{Symbol: symbol}
	for _, l := range res.Bids {
		book.Bids = append(book.Bids, models.BookLevel{Price: l.P, Qty: p.ToBase(decimal.NewFromInt(l.S))})
	}
	for _, l := range res.Asks {
		book.Asks = append(book.Asks, models.BookLevel{Price: l.P, Qty: p.ToBase(decimal.NewFromInt(l.S))})
	}
	return book, nil
}

func (g *Gate) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	book, err := g.GetOrderBook(ctx, symbol, 1)
	if err != nil {
		return models.BookTicker{}, err
	}
	return bookTickerFromBook(symbol, book)
}

type gateAccount struct {
	Total         decimal.Decimal `json:"total"`
	Available     decimal.Decimal `json:"available"`
	UnrealisedPnl decimal.Decimal `json:"unrealised_pnl"`
}

func (g *Gate) account(ctx context.Context) (gateAccount, error) {
	var a gateAccount
	err := g.call(ctx, http.MethodGet, "/accounts", nil, nil, true, &a)
	return a, err
}

func (g *Gate) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	a, err := g.account(ctx)
	return a.Available, err
}

func (g *Gate) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	a, err := g.account(ctx)
	return a.Total.Add(a.UnrealisedPnl), err
}

func (g *Gate) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	return g.call(ctx, http.MethodPost, "/positions/"+symbol+"/leverage", url.Values{
		"leverage": {strconv.Itoa(leverage)},
	}, nil, true, nil)
}

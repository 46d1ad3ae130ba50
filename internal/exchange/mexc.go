package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"flushbot/internal/controllers"
	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	mexcURL = "https://contract.mexc.com"

	mexcTypeLimit    = 1
	mexcTypePostOnly = 2
	mexcTypeMarket   = 5
	mexcOpenCross    = 2
)

// MEXC is the contract v1 adapter. Stop losses are plan orders.
type MEXC struct {
	*restClient
	precisions *precisionCache
}

func NewMEXC(
	client controllers.ClientCtrl,
	crypto controllers.CryptoCtrl,
	creds Credentials,
	logger *logrus.Logger,
) *MEXC {
	m := &MEXC{
		restClient: newRESTClient(normalizer.MEXC, client, crypto, creds, mexcURL, logger),
	}
	m.precisions = newPrecisionCache(m.fetchPrecision)

	return m
}

type mexcEnvelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (m *MEXC) Name() string {
	return normalizer.MEXC
}

// call signs key + timestamp + parameters, where parameters are the sorted
// query for GET and the JSON body otherwise.
func (m *MEXC) call(ctx context.Context, method, path string, query url.Values, payload interface{}, signed bool, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return err
		}
	}

	u, err := m.endpoint(path, query)
	if err != nil {
		return err
	}

	headers := http.Header{}
	if signed {
		ts := strconv.FormatInt(m.timestamp(), 10)
		params := u.RawQuery
		if method != http.MethodGet {
			params = string(body)
		}
		headers.Set("ApiKey", m.creds.APIKey)
		headers.Set("Request-Time", ts)
		headers.Set("Signature", m.crypto.GetSignature(m.creds.APIKey+ts+params))
	}

	data, statusErr, err := m.send(ctx, method, u, body, headers)
	if err != nil {
		return err
	}

	var env mexcEnvelope
	if err := decode(m.name, data, &env); err != nil {
		if statusErr != nil {
			kind := KindFatal
			if statusErr.StatusCode >= 500 {
				kind = KindTransient
			}
			return newError(m.name, kind, strconv.Itoa(statusErr.StatusCode), string(statusErr.Body))
		}
		return err
	}
	if !env.Success || env.Code != 0 {
		return mexcError(env.Code, env.Message)
	}

	return decode(m.name, env.Data, out)
}

func (m *MEXC) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	return m.precisions.get(ctx, symbol)
}

func (m *MEXC) fetchPrecision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	var c struct {
		PriceUnit    decimal.Decimal `json:"priceUnit"`
		ContractSize decimal.Decimal `json:"contractSize"`
		VolUnit      decimal.Decimal `json:"volUnit"`
	}
	if err := m.call(ctx, http.MethodGet, "/api/v1/contract/detail", url.Values{"symbol": {symbol}}, nil, false, &c); err != nil {
		return normalizer.Precision{}, err
	}
	if c.ContractSize.IsZero() {
		return normalizer.Precision{}, &normalizer.UnknownSymbolError{Exchange: m.name, Symbol: symbol}
	}

	volUnit := c.VolUnit
	if volUnit.IsZero() {
		volUnit = decimal.NewFromInt(1)
	}

	return normalizer.Precision{
		TickSize:     c.PriceUnit,
		StepSize:     volUnit.Mul(c.ContractSize),
		ContractSize: c.ContractSize,
	}, nil
}

func (m *MEXC) positions(ctx context.Context, symbol string) ([]normalizer.MEXCPosition, error) {
	var query url.Values
	if symbol != "" {
		query = url.Values{"symbol": {symbol}}
	}

	var rows []normalizer.MEXCPosition
	err := m.call(ctx, http.MethodGet, "/api/v1/private/position/open_positions", query, nil, true, &rows)
	return rows, err
}

func (m *MEXC) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	if err := m.precisions.ensure(ctx, symbol); err != nil {
		return models.Position{}, err
	}
	rows, err := m.positions(ctx, symbol)
	if err != nil {
		return models.Position{}, err
	}
	return normalizer.MEXCPositionToModel(rows, symbol, m.precisions.lookup())
}

func (m *MEXC) GetPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := m.positions(ctx, "")
	if err != nil {
		return nil, err
	}

	var out []models.Position
	for _, row := range rows {
		if err := m.precisions.ensure(ctx, row.Symbol); err != nil {
			return nil, err
		}
		p, err := normalizer.MEXCPositionToModel([]normalizer.MEXCPosition{row}, row.Symbol, m.precisions.lookup())
		if err != nil {
			return nil, err
		}
		if !p.IsFlat() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MEXC) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	p, err := m.precisions.get(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}
	vol := p.ToContracts(req.Quantity)
	side := normalizer.MEXCSideCode(req.Side, req.ReduceOnly)

	if req.Type == models.OrderTypeStop || req.Type == models.OrderTypeStopMarket {
		// triggerType 1 fires at or above the price, 2 at or below.
		triggerType := 2
		if req.Side == models.SideBuy {
			triggerType = 1
		}
		params := map[string]interface{}{
			"symbol":       req.Symbol,
			"vol":          vol,
			"side":         side,
			"openType":     mexcOpenCross,
			"triggerPrice": req.StopPrice,
			"triggerType":  triggerType,
			"executeCycle": 3,
			"trend":        1,
			"orderType":    mexcTypeMarket,
		}
		if req.Type == models.OrderTypeStop {
			params["orderType"] = mexcTypeLimit
			params["price"] = req.Price
		}

		var raw json.RawMessage
		if err := m.call(ctx, http.MethodPost, "/api/v1/private/planorder/place", nil, params, true, &raw); err != nil {
			return nil, err
		}
		return accepted(req, rawID(raw), m.now()), nil
	}

	params := map[string]interface{}{
		"symbol":      req.Symbol,
		"vol":         vol,
		"side":        side,
		"openType":    mexcOpenCross,
		"type":        mexcTypeMarket,
		"externalOid": req.ClientOrderID,
	}
	if req.Type == models.OrderTypeLimit {
		params["type"] = mexcTypeLimit
		if req.PostOnly {
			params["type"] = mexcTypePostOnly
		}
		params["price"] = req.Price
	}

	var raw json.RawMessage
	if err := m.call(ctx, http.MethodPost, "/api/v1/private/order/submit", nil, params, true, &raw); err != nil {
		return nil, err
	}

	var ack struct {
		OrderID json.RawMessage `json:"orderId"`
	}
	id := rawID(raw)
	if json.Unmarshal(raw, &ack) == nil && len(ack.OrderID) > 0 {
		id = rawID(ack.OrderID)
	}

	order, err := m.GetOrder(ctx, req.Symbol, OrderRef{OrderID: id})
	if err != nil || order != nil {
		return order, err
	}
	return accepted(req, id, m.now()), nil
}

func (m *MEXC) planOrders(ctx context.Context, symbol string, open bool) ([]models.Order, error) {
	query := url.Values{
		"symbol":    {symbol},
		"page_num":  {"1"},
		"page_size": {"100"},
	}
	if open {
		query.Set("states", "1")
	}

	var rows []normalizer.MEXCStopOrder
	if err := m.call(ctx, http.MethodGet, "/api/v1/private/planorder/list/orders", query, nil, true, &rows); err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(rows))
	for i := range rows {
		o, err := normalizer.MEXCStopOrderToModel(&rows[i], m.precisions.lookup())
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (m *MEXC) GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error) {
	if err := m.precisions.ensure(ctx, symbol); err != nil {
		return nil, err
	}

	path := "/api/v1/private/order/get/" + ref.OrderID
	if ref.OrderID == "" {
		path = "/api/v1/private/order/external/" + symbol + "/" + ref.ClientOrderID
	}

	var o *normalizer.MEXCOrder
	err := m.call(ctx, http.MethodGet, path, nil, nil, true, &o)
	if err != nil && !IsKind(err, KindNotFound) {
		return nil, err
	}
	if err == nil && o != nil && o.OrderID != "" {
		return normalizer.MEXCOrderToModel(o, m.precisions.lookup())
	}
	if ref.OrderID == "" {
		return nil, nil
	}

	plans, err := m.planOrders(ctx, symbol, false)
	if err != nil {
		return nil, err
	}
	for i := range plans {
		if plans[i].OrderID == ref.OrderID {
			return &plans[i], nil
		}
	}
	return nil, nil
}

func (m *MEXC) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	if err := m.precisions.ensure(ctx, symbol); err != nil {
		return nil, err
	}

	var rows []normalizer.MEXCOrder
	if err := m.call(ctx, http.MethodGet, "/api/v1/private/order/list/open_orders/"+symbol, nil, nil, true, &rows); err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(rows))
	for i := range rows {
		o, err := normalizer.MEXCOrderToModel(&rows[i], m.precisions.lookup())
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}

	plans, err := m.planOrders(ctx, symbol, true)
	if err != nil {
		return nil, err
	}
	return append(out, plans...), nil
}

func (m *MEXC) CancelOrder(ctx context.Context, symbol string, ref OrderRef) error {
	order, err := m.GetOrder(ctx, symbol, ref)
	if err != nil {
		return err
	}
	if order == nil {
		return newError(m.name, KindNotFound, "2040", "order does not exist")
	}

	if order.Type == models.OrderTypeStop || order.Type == models.OrderTypeStopMarket {
		return m.call(ctx, http.MethodPost, "/api/v1/private/planorder/cancel", nil, []map[string]string{
			{"symbol": symbol, "orderId": order.OrderID},
		}, true, nil)
	}
	return m.call(ctx, http.MethodPost, "/api/v1/private/order/cancel", nil, []string{order.OrderID}, true, nil)
}

func (m *MEXC) CancelAllOrders(ctx context.Context, symbol string) error {
	params := map[string]string{"symbol": symbol}
	if err := m.call(ctx, http.MethodPost, "/api/v1/private/order/cancel_all", nil, params, true, nil); err != nil {
		return err
	}
	return m.call(ctx, http.MethodPost, "/api/v1/private/planorder/cancel_all", nil, params, true, nil)
}

func (m *MEXC) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	interval, err := normalizer.ExchangeInterval(normalizer.MEXC, q.Interval)
	if err != nil {
		return nil, err
	}
	d, err := normalizer.IntervalDuration(q.Interval)
	if err != nil {
		return nil, err
	}
	p, err := m.precisions.get(ctx, q.Symbol)
	if err != nil {
		return nil, err
	}

	// MEXC has no limit parameter, the window is given in seconds.
	end := q.End
	if end.IsZero() {
		end = m.now()
	}
	start := q.Start
	if start.IsZero() && q.Limit > 0 {
		start = end.Add(-d * time.Duration(q.Limit-1))
	}

	query := url.Values{
		"interval": {interval},
		"end":      {strconv.FormatInt(end.Unix(), 10)},
	}
	if !start.IsZero() {
		query.Set("start", strconv.FormatInt(start.Unix(), 10))
	}

	var k normalizer.MEXCKlines
	if err := m.call(ctx, http.MethodGet, "/api/v1/contract/kline/"+q.Symbol, query, nil, false, &k); err != nil {
		return nil, err
	}

	candles, err := normalizer.MEXCKlinesToModel(k, q.Interval, p)
	if err != nil {
		return nil, err
	}
	if q.Limit > 0 {
		candles = candles.Tail(q.Limit)
	}
	return candles, nil
}

func (m *MEXC) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	p, err := m.precisions.get(ctx, symbol)
	if err != nil {
		return models.OrderBook{}, err
	}

	var res struct {
		Asks [][]decimal.Decimal `json:"asks"`
		Bids [][]decimal.Decimal `json:"bids"`
	}
	var query url.Values
	if limit > 0 {
		query = url.Values{"limit": {strconv.Itoa(limit)}}
	}
	if err := m.call(ctx, http.MethodGet, "/api/v1/contract/depth/"+symbol, query, nil, false, &res); err != nil {
		return models.OrderBook{}, err
	}

	book := models.OrderBook{Symbol: symbol}
	for _, l := range res.Bids {
		if len(l) >= 2 {
			book.Bids = append(book.Bids, models.BookLevel{Price: l[0], Qty: p.ToBase(l[1])})
		}
	}
	for _, l := range res.Asks {
		if len(l) >= 2 {
			book.Asks = append(book.Asks, models.BookLevel{Price: l[0], Qty: p.ToBase(l[1])})
		}
	}
	return book, nil
}

func (m *MEXC) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	book, err := m.GetOrderBook(ctx, symbol, 1)
	if err != nil {
		return models.BookTicker{}, err
	}
	return bookTickerFromBook(symbol, book)
}

type mexcAsset struct {
	AvailableBalance decimal.Decimal `json:"availableBalance"`
	Equity           decimal.Decimal `json:"equity"`
}

func (m *MEXC) asset(ctx context.Context) (mexcAsset, error) {
	var a mexcAsset
	err := m.call(ctx, http.MethodGet, "/api/v1/private/account/asset/USDT", nil, nil, true, &a)
	return a, err
}

func (m *MEXC) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	a, err := m.asset(ctx)
	return a.AvailableBalance, err
}

func (m *MEXC) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	a, err := m.asset(ctx)
	return a.Equity, err
}

func (m *MEXC) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	for _, positionType := range []int{1, 2} {
		err := m.call(ctx, http.MethodPost, "/api/v1/private/position/change_leverage", nil, map[string]interface{}{
			"symbol":       symbol,
			"leverage":     leverage,
			"openType":     mexcOpenCross,
			"positionType": positionType,
		}, true, nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// rawID reads an id that may come as a JSON number or string.
func rawID(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

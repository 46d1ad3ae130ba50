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
	bybitURL        = "https://api.bybit.com"
	bybitRecvWindow = "5000"
	bybitCategory   = "linear"

	bybitLeverageNotModified = 110043
)

// Bybit is the v5 unified account adapter for linear perpetuals.
type Bybit struct {
	*restClient
	precisions *precisionCache
}

func NewBybit(
	client controllers.ClientCtrl,
	crypto controllers.CryptoCtrl,
	creds Credentials,
	logger *logrus.Logger,
) *Bybit {
	b := &Bybit{
		restClient: newRESTClient(normalizer.Bybit, client, crypto, creds, bybitURL, logger),
	}
	b.precisions = newPrecisionCache(b.fetchPrecision)

	return b
}

type bybitEnvelope struct {
	RetCode int             `json:"retCode"`
	RetMsg  string          `json:"retMsg"`
	Result  json.RawMessage `json:"result"`
}

type bybitList[T any] struct {
	List []T `json:"list"`
}

func (b *Bybit) Name() string {
	return normalizer.Bybit
}

// call sends a v5 request. GET parameters are signed as the query string and
// POST parameters as the JSON body.
func (b *Bybit) call(ctx context.Context, method, path string, params map[string]interface{}, signed bool, out interface{}) error {
	var (
		query   url.Values
		body    []byte
		payload string
	)

	if method == http.MethodGet {
		query = url.Values{}
		for k, v := range params {
			query.Set(k, toString(v))
		}
		payload = query.Encode()
	} else {
		var err error
		body, err = json.Marshal(params)
		if err != nil {
			return err
		}
		payload = string(body)
	}

	u, err := b.endpoint(path, query)
	if err != nil {
		return err
	}

	headers := http.Header{}
	if signed {
		ts := strconv.FormatInt(b.timestamp(), 10)
		headers.Set("X-BAPI-API-KEY", b.creds.APIKey)
		headers.Set("X-BAPI-TIMESTAMP", ts)
		headers.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
		headers.Set("X-BAPI-SIGN", b.crypto.GetSignature(ts+b.creds.APIKey+bybitRecvWindow+payload))
	}

	data, statusErr, err := b.send(ctx, method, u, body, headers)
	if err != nil {
		return err
	}
	if statusErr != nil && statusErr.StatusCode == http.StatusForbidden {
		return bybitIPBan(string(statusErr.Body))
	}

	var env bybitEnvelope
	if err := decode(b.name, data, &env); err != nil {
		if statusErr != nil {
			return newError(b.name, KindTransient, strconv.Itoa(statusErr.StatusCode), string(statusErr.Body))
		}
		return err
	}
	if env.RetCode != 0 {
		return bybitError(env.RetCode, env.RetMsg)
	}

	return decode(b.name, env.Result, out)
}

func (b *Bybit) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	return b.precisions.get(ctx, symbol)
}

func (b *Bybit) fetchPrecision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	var res bybitList[struct {
		PriceFilter struct {
			TickSize decimal.Decimal `json:"tickSize"`
		} `json:"priceFilter"`
		LotSizeFilter struct {
			QtyStep decimal.Decimal `json:"qtyStep"`
		} `json:"lotSizeFilter"`
	}]

	err := b.call(ctx, http.MethodGet, "/v5/market/instruments-info", map[string]interface{}{
		"category": bybitCategory,
		"symbol":   symbol,
	}, false, &res)
	if err != nil {
		return normalizer.Precision{}, err
	}
	if len(res.List) == 0 {
		return normalizer.Precision{}, &normalizer.UnknownSymbolError{Exchange: b.name, Symbol: symbol}
	}

	return normalizer.Precision{
		TickSize:     res.List[0].PriceFilter.TickSize,
		StepSize:     res.List[0].LotSizeFilter.QtyStep,
		ContractSize: decimal.NewFromInt(1),
	}, nil
}

func (b *Bybit) positions(ctx context.Context, params map[string]interface{}) ([]normalizer.BybitPosition, error) {
	params["category"] = bybitCategory

	var res bybitList[normalizer.BybitPosition]
	if err := b.call(ctx, http.MethodGet, "/v5/position/list", params, true, &res); err != nil {
		return nil, err
	}
	return res.List, nil
}

func (b *Bybit) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	rows, err := b.positions(ctx, map[string]interface{}{"symbol": symbol})
	if err != nil {
		return models.Position{}, err
	}
	return normalizer.BybitPositionToModel(rows, symbol)
}

func (b *Bybit) GetPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := b.positions(ctx, map[string]interface{}{"settleCoin": "USDT"})
	if err != nil {
		return nil, err
	}

	var out []models.Position
	for _, row := range rows {
		p, err := normalizer.BybitPositionToModel([]normalizer.BybitPosition{row}, row.Symbol)
		if err != nil {
			return nil, err
		}
		if !p.IsFlat() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (b *Bybit) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	params := map[string]interface{}{
		"category":    bybitCategory,
		"symbol":      req.Symbol,
		"side":        titleSide(req.Side),
		"qty":         req.Quantity.String(),
		"orderLinkId": req.ClientOrderID,
		"reduceOnly":  req.ReduceOnly,
	}

	switch req.Type {
	case models.OrderTypeMarket, models.OrderTypeStopMarket:
		params["orderType"] = "Market"
	default:
		params["orderType"] = "Limit"
		params["price"] = req.Price.String()
		params["timeInForce"] = "GTC"
		if req.PostOnly {
			params["timeInForce"] = "PostOnly"
		}
	}

	if req.Type == models.OrderTypeStop || req.Type == models.OrderTypeStopMarket {
		params["triggerPrice"] = req.StopPrice.String()
		// 1 triggers on a rise, 2 on a fall.
		params["triggerDirection"] = 2
		if req.Side == models.SideBuy {
			params["triggerDirection"] = 1
		}
		if req.ReduceOnly {
			params["closeOnTrigger"] = true
		}
	}

	var res struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := b.call(ctx, http.MethodPost, "/v5/order/create", params, true, &res); err != nil {
		return nil, err
	}

	order, err := b.GetOrder(ctx, req.Symbol, OrderRef{OrderID: res.OrderID})
	if err != nil || order != nil {
		return order, err
	}

	// Not visible yet: report what was accepted.
	return accepted(req, res.OrderID, b.now()), nil
}

func (b *Bybit) orders(ctx context.Context, path string, params map[string]interface{}) ([]models.Order, error) {
	symbol := toString(params["symbol"])
	if err := b.precisions.ensure(ctx, symbol); err != nil {
		return nil, err
	}
	params["category"] = bybitCategory

	var res bybitList[normalizer.BybitOrder]
	if err := b.call(ctx, http.MethodGet, path, params, true, &res); err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(res.List))
	for i := range res.List {
		o, err := normalizer.BybitOrderToModel(&res.List[i], b.precisions.lookup())
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (b *Bybit) GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error) {
	params := func() map[string]interface{} {
		p := map[string]interface{}{"symbol": symbol}
		if ref.OrderID != "" {
			p["orderId"] = ref.OrderID
		} else {
			p["orderLinkId"] = ref.ClientOrderID
		}
		return p
	}

	for _, path := range []string{"/v5/order/realtime", "/v5/order/history"} {
		orders, err := b.orders(ctx, path, params())
		if err != nil {
			if IsKind(err, KindNotFound) {
				continue
			}
			return nil, err
		}
		if len(orders) > 0 {
			return &orders[0], nil
		}
	}

	return nil, nil
}

func (b *Bybit) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	return b.orders(ctx, "/v5/order/realtime", map[string]interface{}{
		"symbol":   symbol,
		"openOnly": 0,
	})
}

func (b *Bybit) CancelOrder(ctx context.Context, symbol string, ref OrderRef) error {
	params := map[string]interface{}{
		"category": bybitCategory,
		"symbol":   symbol,
	}
	if ref.OrderID != "" {
		params["orderId"] = ref.OrderID
	} else {
		params["orderLinkId"] = ref.ClientOrderID
	}

	return b.call(ctx, http.MethodPost, "/v5/order/cancel", params, true, nil)
}

func (b *Bybit) CancelAllOrders(ctx context.Context, symbol string) error {
	return b.call(ctx, http.MethodPost, "/v5/order/cancel-all", map[string]interface{}{
		"category": bybitCategory,
		"symbol":   symbol,
	}, true, nil)
}

func (b *Bybit) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	interval, err := normalizer.ExchangeInterval(normalizer.Bybit, q.Interval)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": bybitCategory,
		"symbol":   q.Symbol,
		"interval": interval,
	}
	if q.Limit > 0 {
		params["limit"] = q.Limit
	}
	if !q.Start.IsZero() {
		params["start"] = q.Start.UnixMilli()
	}
	if !q.End.IsZero() {
		params["end"] = q.End.UnixMilli()
	}

	var res bybitList[[]string]
	if err := b.call(ctx, http.MethodGet, "/v5/market/kline", params, false, &res); err != nil {
		return nil, err
	}

	out := make(models.Candles, 0, len(res.List))
	for _, row := range res.List {
		c, err := normalizer.BybitCandle(row, q.Interval)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}

	// Bybit lists newest first.
	sortCandles(out)

	return out, nil
}

func (b *Bybit) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	var res bybitList[struct {
		Bid1Price decimal.Decimal `json:"bid1Price"`
		Bid1Size  decimal.Decimal `json:"bid1Size"`
		Ask1Price decimal.Decimal `json:"ask1Price"`
		Ask1Size  decimal.Decimal `json:"ask1Size"`
	}]

	err := b.call(ctx, http.MethodGet, "/v5/market/tickers", map[string]interface{}{
		"category": bybitCategory,
		"symbol":   symbol,
	}, false, &res)
	if err != nil {
		return models.BookTicker{}, err
	}
	if len(res.List) == 0 {
		return models.BookTicker{}, ErrNoPrice
	}

	t := res.List[0]
	return models.BookTicker{
		Symbol:   symbol,
		BidPrice: t.Bid1Price,
		BidQty:   t.Bid1Size,
		AskPrice: t.Ask1Price,
		AskQty:   t.Ask1Size,
	}, nil
}

func (b *Bybit) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	var res struct {
		Bids [][2]decimal.Decimal `json:"b"`
		Asks [][2]decimal.Decimal `json:"a"`
	}
	err := b.call(ctx, http.MethodGet, "/v5/market/orderbook", map[string]interface{}{
		"category": bybitCategory,
		"symbol":   symbol,
		"limit":    limit,
	}, false, &res)
	if err != nil {
		return models.OrderBook{}, err
	}

	return models.OrderBook{
		Symbol: symbol,
		Bids:   levels(res.Bids),
		Asks:   levels(res.Asks),
	}, nil
}

type bybitWallet struct {
	TotalEquity           decimal.Decimal `json:"totalEquity"`
	TotalAvailableBalance decimal.Decimal `json:"totalAvailableBalance"`
}

func (b *Bybit) wallet(ctx context.Context) (bybitWallet, error) {
	var res bybitList[bybitWallet]
	err := b.call(ctx, http.MethodGet, "/v5/account/wallet-balance", map[string]interface{}{
		"accountType": "UNIFIED",
	}, true, &res)
	if err != nil {
		return bybitWallet{}, err
	}
	if len(res.List) == 0 {
		return bybitWallet{}, nil
	}
	return res.List[0], nil
}

func (b *Bybit) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	w, err := b.wallet(ctx)
	return w.TotalAvailableBalance, err
}

func (b *Bybit) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	w, err := b.wallet(ctx)
	return w.TotalEquity, err
}

func (b *Bybit) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	err := b.call(ctx, http.MethodPost, "/v5/position/set-leverage", map[string]interface{}{
		"category":     bybitCategory,
		"symbol":       symbol,
		"buyLeverage":  lev,
		"sellLeverage": lev,
	}, true, nil)

	if CodeOf(err) == strconv.Itoa(bybitLeverageNotModified) {
		return nil
	}
	return err
}

func titleSide(s models.Side) string {
	if s == models.SideBuy {
		return "Buy"
	}
	return "Sell"
}

func levels(rows [][2]decimal.Decimal) []models.BookLevel {
	out := make([]models.BookLevel, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.BookLevel{Price: r[0], Qty: r[1]})
	}
	return out
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case decimal.Decimal:
		return t.String()
	case nil:
		return ""
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}

// StreamAuth returns the api key and the private stream signature valid
// until expires (unix millis).
func (b *Bybit) StreamAuth(expires int64) (string, string) {
	return b.creds.APIKey, b.crypto.GetSignature("GET/realtime" + strconv.FormatInt(expires, 10))
}

// PrecisionLookup answers for the symbols already loaded through Precision.
func (b *Bybit) PrecisionLookup() normalizer.PrecisionLookup {
	return b.precisions.lookup()
}

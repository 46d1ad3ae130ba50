package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"flushbot/internal/controllers"
	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	okxURL         = "https://www.okx.com"
	okxInstType    = "SWAP"
	okxMarginMode  = "cross"
	okxReduceOnlyT = 48 * time.Hour
)

// ReduceOnlyOrders remembers which order ids were placed reduce only. OKX in
// net position mode does not report the flag back. Entries older than the ttl
// are evicted on access. Safe for concurrent use by every symbol engine.
type ReduceOnlyOrders struct {
	mu  sync.Mutex
	m   map[string]time.Time
	ttl time.Duration
	now func() time.Time
}

func NewReduceOnlyOrders(ttl time.Duration) *ReduceOnlyOrders {
	return &ReduceOnlyOrders{
		m:   map[string]time.Time{},
		ttl: ttl,
		now: time.Now,
	}
}

func (r *ReduceOnlyOrders) Add(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.m[orderID] = r.now()
}

func (r *ReduceOnlyOrders) Contains(orderID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for id, added := range r.m {
		if now.Sub(added) > r.ttl {
			delete(r.m, id)
		}
	}

	_, ok := r.m[orderID]
	return ok
}

func (r *ReduceOnlyOrders) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.m)
}

// OKX is the v5 adapter for USDT margined swaps.
type OKX struct {
	*restClient
	precisions *precisionCache
	posMode    string
	reduceOnly *ReduceOnlyOrders
}

func NewOKX(
	client controllers.ClientCtrl,
	crypto controllers.CryptoCtrl,
	creds Credentials,
	posMode string,
	logger *logrus.Logger,
) *OKX {
	if posMode == "" {
		posMode = normalizer.OKXPosModeNet
	}

	o := &OKX{
		restClient: newRESTClient(normalizer.OKX, client, crypto, creds, okxURL, logger),
		posMode:    posMode,
		reduceOnly: NewReduceOnlyOrders(okxReduceOnlyT),
	}
	o.precisions = newPrecisionCache(o.fetchPrecision)

	return o
}

type okxEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type okxAck struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	AlgoID  string `json:"algoId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

func (o *OKX) Name() string {
	return normalizer.OKX
}

func (o *OKX) ReduceOnlyOrders() *ReduceOnlyOrders {
	return o.reduceOnly
}

func (o *OKX) OrderContext() normalizer.OKXOrderContext {
	return normalizer.OKXOrderContext{
		PosMode:    o.posMode,
		ReduceOnly: o.reduceOnly.Contains,
	}
}

func (o *OKX) call(ctx context.Context, method, path string, query url.Values, payload interface{}, signed bool, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return err
		}
	}

	u, err := o.endpoint(path, query)
	if err != nil {
		return err
	}

	headers := http.Header{}
	if signed {
		ts := o.now().UTC().Format("2006-01-02T15:04:05.000Z")
		requestPath := u.Path
		if u.RawQuery != "" {
			requestPath += "?" + u.RawQuery
		}
		headers.Set("OK-ACCESS-KEY", o.creds.APIKey)
		headers.Set("OK-ACCESS-SIGN", o.crypto.GetSignatureBase64(ts+method+requestPath+string(body)))
		headers.Set("OK-ACCESS-TIMESTAMP", ts)
		headers.Set("OK-ACCESS-PASSPHRASE", o.creds.Passphrase)
	}

	data, statusErr, err := o.send(ctx, method, u, body, headers)
	if err != nil {
		return err
	}

	var env okxEnvelope
	if err := decode(o.name, data, &env); err != nil {
		if statusErr != nil {
			return okxStatusError(statusErr)
		}
		return err
	}

	if env.Code != "0" {
		// Order endpoints put the reason of each item in sCode.
		var acks []okxAck
		if json.Unmarshal(env.Data, &acks) == nil && len(acks) > 0 && acks[0].SCode != "" && acks[0].SCode != "0" {
			return okxError(acks[0].SCode, acks[0].SMsg)
		}
		return okxError(env.Code, env.Msg)
	}
	if statusErr != nil {
		return okxStatusError(statusErr)
	}

	return decode(o.name, env.Data, out)
}

func okxStatusError(statusErr *controllers.StatusError) *Error {
	kind := KindFatal
	switch {
	case statusErr.StatusCode == http.StatusTooManyRequests:
		kind = KindRateLimited
	case statusErr.StatusCode >= 500:
		kind = KindTransient
	}
	return newError(normalizer.OKX, kind, strconv.Itoa(statusErr.StatusCode), string(statusErr.Body))
}

func (o *OKX) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	return o.precisions.get(ctx, symbol)
}

func (o *OKX) fetchPrecision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	var rows []struct {
		TickSz decimal.Decimal `json:"tickSz"`
		LotSz  decimal.Decimal `json:"lotSz"`
		CtVal  decimal.Decimal `json:"ctVal"`
	}

	err := o.call(ctx, http.MethodGet, "/api/v5/public/instruments", url.Values{
		"instType": {okxInstType},
		"instId":   {symbol},
	}, nil, false, &rows)
	if err != nil {
		return normalizer.Precision{}, err
	}
	if len(rows) == 0 {
		return normalizer.Precision{}, &normalizer.UnknownSymbolError{Exchange: o.name, Symbol: symbol}
	}

	return normalizer.Precision{
		TickSize:     rows[0].TickSz,
		StepSize:     rows[0].LotSz.Mul(rows[0].CtVal),
		ContractSize: rows[0].CtVal,
	}, nil
}

func (o *OKX) positions(ctx context.Context, symbol string) ([]normalizer.OKXPosition, error) {
	query := url.Values{"instType": {okxInstType}}
	if symbol != "" {
		query.Set("instId", symbol)
	}

	var rows []normalizer.OKXPosition
	if err := o.call(ctx, http.MethodGet, "/api/v5/account/positions", query, nil, true, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (o *OKX) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	if err := o.precisions.ensure(ctx, symbol); err != nil {
		return models.Position{}, err
	}

	rows, err := o.positions(ctx, symbol)
	if err != nil {
		return models.Position{}, err
	}
	return normalizer.OKXPositionToModel(rows, symbol, o.precisions.lookup())
}

func (o *OKX) GetPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := o.positions(ctx, "")
	if err != nil {
		return nil, err
	}

	var out []models.Position
	for _, row := range rows {
		if err := o.precisions.ensure(ctx, row.InstID); err != nil {
			return nil, err
		}
		p, err := normalizer.OKXPositionToModel([]normalizer.OKXPosition{row}, row.InstID, o.precisions.lookup())
		if err != nil {
			return nil, err
		}
		if !p.IsFlat() {
			out = append(out, p)
		}
	}
	return out, nil
}

// posSide is only sent in long/short mode, where it names the position the
// order opens or closes.
func (o *OKX) posSide(req OrderRequest) string {
	if o.posMode != normalizer.OKXPosModeLongShort {
		return ""
	}
	long := req.Side == models.SideBuy
	if req.ReduceOnly {
		long = !long
	}
	if long {
		return "long"
	}
	return "short"
}

func (o *OKX) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	p, err := o.precisions.get(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"instId": req.Symbol,
		"tdMode": okxMarginMode,
		"side":   lowerSide(req.Side),
		"sz":     p.ToContracts(req.Quantity).String(),
	}
	if ps := o.posSide(req); ps != "" {
		params["posSide"] = ps
	} else if req.ReduceOnly {
		params["reduceOnly"] = true
	}

	path := "/api/v5/trade/order"
	switch req.Type {
	case models.OrderTypeMarket:
		params["ordType"] = "market"
		params["clOrdId"] = okxClientID(req.ClientOrderID)
	case models.OrderTypeLimit:
		params["ordType"] = "limit"
		if req.PostOnly {
			params["ordType"] = "post_only"
		}
		params["px"] = req.Price.String()
		params["clOrdId"] = okxClientID(req.ClientOrderID)
	case models.OrderTypeStop, models.OrderTypeStopMarket:
		path = "/api/v5/trade/order-algo"
		params["ordType"] = "conditional"
		params["slTriggerPx"] = req.StopPrice.String()
		params["slOrdPx"] = "-1"
		if req.Type == models.OrderTypeStop {
			params["slOrdPx"] = req.Price.String()
		}
		params["algoClOrdId"] = okxClientID(req.ClientOrderID)
	}

	var acks []okxAck
	if err := o.call(ctx, http.MethodPost, path, nil, params, true, &acks); err != nil {
		return nil, err
	}
	if len(acks) == 0 {
		return nil, newError(o.name, KindFatal, "", "empty order ack")
	}

	id := acks[0].OrdID
	if id == "" {
		id = acks[0].AlgoID
	}
	if req.ReduceOnly {
		o.reduceOnly.Add(id)
	}

	order, err := o.GetOrder(ctx, req.Symbol, OrderRef{OrderID: id})
	if err != nil || order != nil {
		return order, err
	}
	return accepted(req, id, o.now()), nil
}

func (o *OKX) toOrders(rows []normalizer.OKXOrder) ([]models.Order, error) {
	out := make([]models.Order, 0, len(rows))
	for i := range rows {
		order, err := normalizer.OKXOrderToModel(&rows[i], o.precisions.lookup(), o.OrderContext())
		if err != nil {
			return nil, err
		}
		out = append(out, *order)
	}
	return out, nil
}

func (o *OKX) GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error) {
	if err := o.precisions.ensure(ctx, symbol); err != nil {
		return nil, err
	}

	query := url.Values{"instId": {symbol}}
	if ref.OrderID != "" {
		query.Set("ordId", ref.OrderID)
	} else {
		query.Set("clOrdId", okxClientID(ref.ClientOrderID))
	}

	var rows []normalizer.OKXOrder
	err := o.call(ctx, http.MethodGet, "/api/v5/trade/order", query, nil, true, &rows)
	if err != nil && !IsKind(err, KindNotFound) {
		return nil, err
	}

	if err == nil && len(rows) > 0 {
		orders, err := o.toOrders(rows)
		if err != nil {
			return nil, err
		}
		return &orders[0], nil
	}

	if ref.OrderID == "" {
		return nil, nil
	}

	// Not a regular order, try the algo book.
	rows = nil
	err = o.call(ctx, http.MethodGet, "/api/v5/trade/order-algo", url.Values{"algoId": {ref.OrderID}}, nil, true, &rows)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	orders, err := o.toOrders(rows)
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (o *OKX) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	if err := o.precisions.ensure(ctx, symbol); err != nil {
		return nil, err
	}

	var regular []normalizer.OKXOrder
	err := o.call(ctx, http.MethodGet, "/api/v5/trade/orders-pending", url.Values{
		"instType": {okxInstType},
		"instId":   {symbol},
	}, nil, true, &regular)
	if err != nil {
		return nil, err
	}

	var algo []normalizer.OKXOrder
	err = o.call(ctx, http.MethodGet, "/api/v5/trade/orders-algo-pending", url.Values{
		"ordType": {"conditional"},
		"instId":  {symbol},
	}, nil, true, &algo)
	if err != nil {
		return nil, err
	}

	return o.toOrders(append(regular, algo...))
}

func (o *OKX) CancelOrder(ctx context.Context, symbol string, ref OrderRef) error {
	order, err := o.GetOrder(ctx, symbol, ref)
	if err != nil {
		return err
	}
	if order == nil {
		return newError(o.name, KindNotFound, "51603", "order does not exist")
	}

	if order.Type == models.OrderTypeStop || order.Type == models.OrderTypeStopMarket {
		return o.call(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", nil, []map[string]string{
			{"algoId": order.OrderID, "instId": symbol},
		}, true, nil)
	}

	return o.call(ctx, http.MethodPost, "/api/v5/trade/cancel-order", nil, map[string]string{
		"instId": symbol,
		"ordId":  order.OrderID,
	}, true, nil)
}

func (o *OKX) CancelAllOrders(ctx context.Context, symbol string) error {
	orders, err := o.GetOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}

	var regular, algo []map[string]string
	for _, order := range orders {
		if order.Type == models.OrderTypeStop || order.Type == models.OrderTypeStopMarket {
			algo = append(algo, map[string]string{"algoId": order.OrderID, "instId": symbol})
		} else {
			regular = append(regular, map[string]string{"ordId": order.OrderID, "instId": symbol})
		}
	}

	if len(regular) > 0 {
		if err := o.call(ctx, http.MethodPost, "/api/v5/trade/cancel-batch-orders", nil, regular, true, nil); err != nil {
			return err
		}
	}
	if len(algo) > 0 {
		return o.call(ctx, http.MethodPost, "/api/v5/trade/cancel-algos", nil, algo, true, nil)
	}
	return nil
}

func (o *OKX) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	bar, err := normalizer.ExchangeInterval(normalizer.OKX, q.Interval)
	if err != nil {
		return nil, err
	}

	query := url.Values{"instId": {q.Symbol}, "bar": {bar}}
	if q.Limit > 0 {
		limit := q.Limit
		if limit > 300 {
			limit = 300
		}
		query.Set("limit", strconv.Itoa(limit))
	}
	// after pages backwards from a timestamp, before forwards.
	if !q.End.IsZero() {
		query.Set("after", strconv.FormatInt(q.End.UnixMilli()+1, 10))
	}
	if !q.Start.IsZero() {
		query.Set("before", strconv.FormatInt(q.Start.UnixMilli()-1, 10))
	}

	var rows [][]string
	if err := o.call(ctx, http.MethodGet, "/api/v5/market/candles", query, nil, false, &rows); err != nil {
		return nil, err
	}

	out := make(models.Candles, 0, len(rows))
	for _, row := range rows {
		c, err := normalizer.OKXCandle(row, q.Interval)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortCandles(out)

	return out, nil
}

func (o *OKX) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	p, err := o.precisions.get(ctx, symbol)
	if err != nil {
		return models.BookTicker{}, err
	}

	var rows []struct {
		BidPx decimal.Decimal `json:"bidPx"`
		BidSz decimal.Decimal `json:"bidSz"`
		AskPx decimal.Decimal `json:"askPx"`
		AskSz decimal.Decimal `json:"askSz"`
	}
	if err := o.call(ctx, http.MethodGet, "/api/v5/market/ticker", url.Values{"instId": {symbol}}, nil, false, &rows); err != nil {
		return models.BookTicker{}, err
	}
	if len(rows) == 0 {
		return models.BookTicker{}, ErrNoPrice
	}

	return models.BookTicker{
		Symbol:   symbol,
		BidPrice: rows[0].BidPx,
		BidQty:   p.ToBase(rows[0].BidSz),
		AskPrice: rows[0].AskPx,
		AskQty:   p.ToBase(rows[0].AskSz),
	}, nil
}

func (o *OKX) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	p, err := o.precisions.get(ctx, symbol)
	if err != nil {
		return models.OrderBook{}, err
	}
	if limit <= 0 || limit > 400 {
		limit = 400
	}

	var rows []struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	err = o.call(ctx, http.MethodGet, "/api/v5/market/books", url.Values{
		"instId": {symbol},
		"sz":     {strconv.Itoa(limit)},
	}, nil, false, &rows)
	if err != nil {
		return models.OrderBook{}, err
	}

	book := models.OrderBook{Symbol: symbol}
	if len(rows) == 0 {
		return book, nil
	}
	book.Bids = okxLevels(rows[0].Bids, p)
	book.Asks = okxLevels(rows[0].Asks, p)

	return book, nil
}

func okxLevels(rows [][]string, p normalizer.Precision) []models.BookLevel {
	out := make([]models.BookLevel, 0, len(rows))
	for _, r := range rows {
		if len(r) < 2 {
			continue
		}
		price, err := decimal.NewFromString(r[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(r[1])
		if err != nil {
			continue
		}
		out = append(out, models.BookLevel{Price: price, Qty: p.ToBase(qty)})
	}
	return out
}

type okxBalance struct {
	TotalEq decimal.Decimal `json:"totalEq"`
	Details []struct {
		Ccy      string          `json:"ccy"`
		AvailBal decimal.Decimal `json:"availBal"`
		Eq       decimal.Decimal `json:"eq"`
	} `json:"details"`
}

func (o *OKX) balance(ctx context.Context) (okxBalance, error) {
	var rows []okxBalance
	if err := o.call(ctx, http.MethodGet, "/api/v5/account/balance", url.Values{"ccy": {"USDT"}}, nil, true, &rows); err != nil {
		return okxBalance{}, err
	}
	if len(rows) == 0 {
		return okxBalance{}, nil
	}
	return rows[0], nil
}

func (o *OKX) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	b, err := o.balance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, d := range b.Details {
		if d.Ccy == "USDT" {
			return d.AvailBal, nil
		}
	}
	return decimal.Zero, nil
}

func (o *OKX) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	b, err := o.balance(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	for _, d := range b.Details {
		if d.Ccy == "USDT" {
			return d.Eq, nil
		}
	}
	return b.TotalEq, nil
}

func (o *OKX) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	return o.call(ctx, http.MethodPost, "/api/v5/account/set-leverage", nil, map[string]string{
		"instId":  symbol,
		"lever":   strconv.Itoa(leverage),
		"mgnMode": okxMarginMode,
	}, true, nil)
}

func lowerSide(s models.Side) string {
	if s == models.SideBuy {
		return "buy"
	}
	return "sell"
}

// okxClientID keeps the alphanumeric characters OKX accepts. Longer ids keep
// their last 32 characters, where the timestamp is.
func okxClientID(id string) string {
	out := make([]byte, 0, len(id))
	for i := 0; i < len(id); i++ {
		c := id[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			out = append(out, c)
		}
	}
	if len(out) > 32 {
		out = out[len(out)-32:]
	}
	return string(out)
}

// StreamLogin returns the login arguments of the private stream for the
// unix seconds timestamp ts.
func (o *OKX) StreamLogin(ts string) (apiKey, passphrase, sign string) {
	return o.creds.APIKey, o.creds.Passphrase, o.crypto.GetSignatureBase64(ts + http.MethodGet + "/users/self/verify")
}

func (o *OKX) PrecisionLookup() normalizer.PrecisionLookup {
	return o.precisions.lookup()
}

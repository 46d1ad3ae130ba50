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
	bingxURL  = "https://open-api.bingx.com"
	bingxSwap = "/openApi/swap/v2"
)

// Depth limits BingX accepts.
var bingxDepthLimits = []int{5, 10, 20, 50, 100, 500, 1000}

// BingX is the perpetual swap v2 adapter in one-way mode.
type BingX struct {
	*restClient
	precisions *precisionCache
}

func NewBingX(
	client controllers.ClientCtrl,
	crypto controllers.CryptoCtrl,
	creds Credentials,
	logger *logrus.Logger,
) *BingX {
	b := &BingX{
		restClient: newRESTClient(normalizer.BingX, client, crypto, creds, bingxURL, logger),
	}
	b.precisions = newPrecisionCache(b.fetchPrecision)

	return b
}

type bingxEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (b *BingX) Name() string {
	return normalizer.BingX
}

// call sends every parameter in the query string, signed with the hex HMAC
// of the encoded query.
func (b *BingX) call(ctx context.Context, method, path string, query url.Values, signed bool, out interface{}) error {
	if query == nil {
		query = url.Values{}
	}

	headers := http.Header{}
	if signed {
		query.Set("timestamp", strconv.FormatInt(b.timestamp(), 10))
		query.Set("signature", b.crypto.GetSignature(query.Encode()))
		headers.Set("X-BX-APIKEY", b.creds.APIKey)
	}

	u, err := b.endpoint(path, nil)
	if err != nil {
		return err
	}
	u.RawQuery = signedQuery(query)

	data, statusErr, err := b.send(ctx, method, u, nil, headers)
	if err != nil {
		return err
	}
	if statusErr != nil && statusErr.StatusCode == http.StatusTooManyRequests {
		return newError(b.name, KindRateLimited, "429", string(statusErr.Body))
	}

	var env bingxEnvelope
	if err := decode(b.name, data, &env); err != nil {
		if statusErr != nil {
			return newError(b.name, KindTransient, strconv.Itoa(statusErr.StatusCode), string(statusErr.Body))
		}
		return err
	}
	if env.Code != 0 {
		return bingxError(env.Code, env.Msg)
	}

	return decode(b.name, env.Data, out)
}

// signedQuery keeps the signature last, after the sorted parameters it signs.
func signedQuery(query url.Values) string {
	sig := query.Get("signature")
	if sig == "" {
		return query.Encode()
	}

	rest := url.Values{}
	for k, v := range query {
		if k != "signature" {
			rest[k] = v
		}
	}
	return rest.Encode() + "&signature=" + sig
}

func (b *BingX) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	return b.precisions.get(ctx, symbol)
}

func (b *BingX) fetchPrecision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	var contracts []struct {
		Symbol            string `json:"symbol"`
		PricePrecision    int32  `json:"pricePrecision"`
		QuantityPrecision int32  `json:"quantityPrecision"`
	}
	if err := b.call(ctx, http.MethodGet, bingxSwap+"/quote/contracts", nil, false, &contracts); err != nil {
		return normalizer.Precision{}, err
	}

	for _, c := range contracts {
		if c.Symbol == symbol {
			return normalizer.Precision{
				TickSize: decimal.New(1, -c.PricePrecision),
				StepSize: decimal.New(1, -c.QuantityPrecision),
			}, nil
		}
	}
	return normalizer.Precision{}, &normalizer.UnknownSymbolError{Exchange: b.name, Symbol: symbol}
}

func (b *BingX) positions(ctx context.Context, symbol string) ([]normalizer.BingXPosition, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("symbol", symbol)
	}

	var rows []normalizer.BingXPosition
	err := b.call(ctx, http.MethodGet, bingxSwap+"/user/positions", query, true, &rows)
	return rows, err
}

func (b *BingX) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	if err := b.precisions.ensure(ctx, symbol); err != nil {
		return models.Position{}, err
	}
	rows, err := b.positions(ctx, symbol)
	if err != nil {
		return models.Position{}, err
	}
	return normalizer.BingXPositionToModel(rows, symbol, b.precisions.lookup())
}

func (b *BingX) GetPositions(ctx context.Context) ([]models.Position, error) {
	rows, err := b.positions(ctx, "")
	if err != nil {
		return nil, err
	}

	var out []models.Position
	for _, row := range rows {
		if row.PositionAmt.IsZero() {
			continue
		}
		if err := b.precisions.ensure(ctx, row.Symbol); err != nil {
			return nil, err
		}
		p, err := normalizer.BingXPositionToModel([]normalizer.BingXPosition{row}, row.Symbol, b.precisions.lookup())
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type bingxOrderResult struct {
	Order normalizer.BingXOrder `json:"order"`
}

func (b *BingX) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	query := url.Values{
		"symbol":        {req.Symbol},
		"side":          {string(req.Side)},
		"positionSide":  {"BOTH"},
		"type":          {string(req.Type)},
		"quantity":      {req.Quantity.String()},
		"clientOrderID": {req.ClientOrderID},
	}
	if req.ReduceOnly {
		query.Set("reduceOnly", "true")
	}
	if req.Type == models.OrderTypeLimit || req.Type == models.OrderTypeStop {
		query.Set("price", req.Price.String())
	}
	if req.Type == models.OrderTypeStop || req.Type == models.OrderTypeStopMarket {
		query.Set("stopPrice", req.StopPrice.String())
		query.Set("workingType", "CONTRACT_PRICE")
	}
	if req.PostOnly {
		query.Set("timeInForce", "PostOnly")
	}

	var res bingxOrderResult
	if err := b.call(ctx, http.MethodPost, bingxSwap+"/trade/order", query, true, &res); err != nil {
		return nil, err
	}

	// The acknowledgement carries no status, the order is read back.
	id := res.Order.OrderID.String()
	order, err := b.GetOrder(ctx, req.Symbol, OrderRef{OrderID: id})
	if err != nil || order != nil {
		return order, err
	}
	return accepted(req, id, b.now()), nil
}

func (b *BingX) GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error) {
	query := url.Values{"symbol": {symbol}}
	if ref.OrderID != "" {
		query.Set("orderId", ref.OrderID)
	} else {
		query.Set("clientOrderId", ref.ClientOrderID)
	}

	var res bingxOrderResult
	err := b.call(ctx, http.MethodGet, bingxSwap+"/trade/order", query, true, &res)
	if IsKind(err, KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if res.Order.OrderID.IsZero() {
		return nil, nil
	}
	return normalizer.BingXOrderToModel(&res.Order, symbol)
}

func (b *BingX) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	var res struct {
		Orders []normalizer.BingXOrder `json:"orders"`
	}
	if err := b.call(ctx, http.MethodGet, bingxSwap+"/trade/openOrders", url.Values{"symbol": {symbol}}, true, &res); err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(res.Orders))
	for i := range res.Orders {
		o, err := normalizer.BingXOrderToModel(&res.Orders[i], symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (b *BingX) CancelOrder(ctx context.Context, symbol string, ref OrderRef) error {
	query := url.Values{"symbol": {symbol}}
	if ref.OrderID != "" {
		query.Set("orderId", ref.OrderID)
	} else {
		query.Set("clientOrderId", ref.ClientOrderID)
	}
	return b.call(ctx, http.MethodDelete, bingxSwap+"/trade/order", query, true, nil)
}

func (b *BingX) CancelAllOrders(ctx context.Context, symbol string) error {
	return b.call(ctx, http.MethodDelete, bingxSwap+"/trade/allOpenOrders", url.Values{"symbol": {symbol}}, true, nil)
}

func (b *BingX) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	interval, err := normalizer.ExchangeInterval(normalizer.BingX, q.Interval)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"symbol":   {q.Symbol},
		"interval": {interval},
	}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.Start.IsZero() {
		query.Set("startTime", strconv.FormatInt(q.Start.UnixMilli(), 10))
	}
	if !q.End.IsZero() {
		query.Set("endTime", strconv.FormatInt(q.End.UnixMilli(), 10))
	}

	var rows []normalizer.BingXCandle
	if err := b.call(ctx, http.MethodGet, "/openApi/swap/v3/quote/klines", query, false, &rows); err != nil {
		return nil, err
	}

	out := make(models.Candles, 0, len(rows))
	for _, row := range rows {
		c, err := normalizer.BingXCandleToModel(row, q.Interval)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	sortCandles(out)

	return out, nil
}

func bingxDepthLimit(limit int) int {
	for _, l := range bingxDepthLimits {
		if l >= limit {
			return l
		}
	}
	return bingxDepthLimits[len(bingxDepthLimits)-1]
}

func (b *BingX) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	var res struct {
		Bids [][2]decimal.Decimal `json:"bids"`
		Asks [][2]decimal.Decimal `json:"asks"`
	}
	query := url.Values{
		"symbol": {symbol},
		"limit":  {strconv.Itoa(bingxDepthLimit(limit))},
	}
	if err := b.call(ctx, http.MethodGet, bingxSwap+"/quote/depth", query, false, &res); err != nil {
		return models.OrderBook{}, err
	}

	book := models.OrderBook{
		Symbol: symbol,
		Bids:   levels(res.Bids),
		Asks:   levels(res.Asks),
	}
	if limit > 0 {
		if len(book.Bids) > limit {
			book.Bids = book.Bids[:limit]
		}
		if len(book.Asks) > limit {
			book.Asks = book.Asks[:limit]
		}
	}
	return book, nil
}

func (b *BingX) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	var res struct {
		BookTicker struct {
			BidPrice decimal.Decimal `json:"bid_price"`
			BidQty   decimal.Decimal `json:"bid_qty"`
			AskPrice decimal.Decimal `json:"ask_price"`
			AskQty   decimal.Decimal `json:"ask_qty"`
		} `json:"book_ticker"`
	}
	if err := b.call(ctx, http.MethodGet, bingxSwap+"/quote/bookTicker", url.Values{"symbol": {symbol}}, false, &res); err != nil {
		return models.BookTicker{}, err
	}
	if res.BookTicker.BidPrice.IsZero() || res.BookTicker.AskPrice.IsZero() {
		return models.BookTicker{}, ErrNoPrice
	}

	return models.BookTicker{
		Symbol:   symbol,
		BidPrice: res.BookTicker.BidPrice,
		BidQty:   res.BookTicker.BidQty,
		AskPrice: res.BookTicker.AskPrice,
		AskQty:   res.BookTicker.AskQty,
	}, nil
}

type bingxBalance struct {
	Balance struct {
		Balance         decimal.Decimal `json:"balance"`
		Equity          decimal.Decimal `json:"equity"`
		AvailableMargin decimal.Decimal `json:"availableMargin"`
	} `json:"balance"`
}

func (b *BingX) balance(ctx context.Context) (bingxBalance, error) {
	var res bingxBalance
	err := b.call(ctx, http.MethodGet, bingxSwap+"/user/balance", nil, true, &res)
	return res, err
}

func (b *BingX) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	res, err := b.balance(ctx)
	return res.Balance.AvailableMargin, err
}

func (b *BingX) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	res, err := b.balance(ctx)
	return res.Balance.Equity, err
}

func (b *BingX) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	for _, side := range []string{"LONG", "SHORT"} {
		query := url.Values{
			"symbol":   {symbol},
			"side":     {side},
			"leverage": {strconv.Itoa(leverage)},
		}
		if err := b.call(ctx, http.MethodPost, bingxSwap+"/trade/leverage", query, true, nil); err != nil {
			return err
		}
	}
	return nil
}

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
	phemexURL    = "https://api.phemex.com"
	phemexExpiry = 60
	phemexMerged = "Merged"
)

// Kline limits Phemex accepts.
var phemexKlineLimits = []int{5, 10, 50, 100, 500, 1000}

// Phemex is the USDT-M hedged contract adapter in one-way (Merged) mode.
type Phemex struct {
	*restClient
	precisions *precisionCache
}

func NewPhemex(
	client controllers.ClientCtrl,
	crypto controllers.CryptoCtrl,
	creds Credentials,
	logger *logrus.Logger,
) *Phemex {
	p := &Phemex{
		restClient: newRESTClient(normalizer.Phemex, client, crypto, creds, phemexURL, logger),
	}
	p.precisions = newPrecisionCache(p.fetchPrecision)

	return p
}

type phemexEnvelope struct {
	Code   *int            `json:"code"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
	Error  json.RawMessage `json:"error"`
	Result json.RawMessage `json:"result"`
}

type phemexRows[T any] struct {
	Rows []T `json:"rows"`
}

func (p *Phemex) Name() string {
	return normalizer.Phemex
}

// call signs path + query + expiry + body. Trading endpoints answer with
// {code, msg, data}, market data endpoints with {error, result}.
func (p *Phemex) call(ctx context.Context, method, path string, query url.Values, payload interface{}, signed bool, out interface{}) error {
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return err
		}
	}

	u, err := p.endpoint(path, query)
	if err != nil {
		return err
	}

	headers := http.Header{}
	if signed {
		expiry := strconv.FormatInt(p.now().Unix()+phemexExpiry, 10)
		headers.Set("x-phemex-access-token", p.creds.APIKey)
		headers.Set("x-phemex-request-expiry", expiry)
		headers.Set("x-phemex-request-signature", p.crypto.GetSignature(path+u.RawQuery+expiry+string(body)))
	}

	data, statusErr, err := p.send(ctx, method, u, body, headers)
	if err != nil {
		return err
	}
	if statusErr != nil && statusErr.StatusCode == http.StatusTooManyRequests {
		return phemexRateLimit(statusErr)
	}

	var env phemexEnvelope
	if err := decode(p.name, data, &env); err != nil {
		if statusErr != nil {
			return newError(p.name, KindTransient, strconv.Itoa(statusErr.StatusCode), string(statusErr.Body))
		}
		return err
	}

	if env.Code != nil {
		if *env.Code != 0 {
			return phemexError(*env.Code, env.Msg)
		}
		return decode(p.name, env.Data, out)
	}

	if len(env.Error) > 0 && string(env.Error) != "null" {
		return newError(p.name, KindFatal, "", string(env.Error))
	}
	return decode(p.name, env.Result, out)
}

func (p *Phemex) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	return p.precisions.get(ctx, symbol)
}

func (p *Phemex) fetchPrecision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	var res struct {
		PerpProductsV2 []struct {
			Symbol      string          `json:"symbol"`
			TickSize    decimal.Decimal `json:"tickSize"`
			QtyStepSize decimal.Decimal `json:"qtyStepSize"`
		} `json:"perpProductsV2"`
	}
	if err := p.call(ctx, http.MethodGet, "/public/products", nil, nil, false, &res); err != nil {
		return normalizer.Precision{}, err
	}

	for _, s := range res.PerpProductsV2 {
		if s.Symbol == symbol {
			return normalizer.Precision{TickSize: s.TickSize, StepSize: s.QtyStepSize}, nil
		}
	}
	return normalizer.Precision{}, &normalizer.UnknownSymbolError{Exchange: p.name, Symbol: symbol}
}

type phemexAccount struct {
	Account struct {
		AccountBalanceRv   decimal.Decimal `json:"accountBalanceRv"`
		TotalUsedBalanceRv decimal.Decimal `json:"totalUsedBalanceRv"`
	} `json:"account"`
	Positions []struct {
		normalizer.PhemexPosition
		UnrealisedPnlRv decimal.Decimal `json:"unRealisedPnlRv"`
	} `json:"positions"`
}

func (p *Phemex) account(ctx context.Context) (phemexAccount, error) {
	var acc phemexAccount
	err := p.call(ctx, http.MethodGet, "/g-accounts/accountPositions", url.Values{"currency": {"USDT"}}, nil, true, &acc)
	return acc, err
}

func (a phemexAccount) positions() []normalizer.PhemexPosition {
	out := make([]normalizer.PhemexPosition, 0, len(a.Positions))
	for _, row := range a.Positions {
		out = append(out, row.PhemexPosition)
	}
	return out
}

func (p *Phemex) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	acc, err := p.account(ctx)
	if err != nil {
		return models.Position{}, err
	}
	return normalizer.PhemexPositionToModel(acc.positions(), symbol)
}

func (p *Phemex) GetPositions(ctx context.Context) ([]models.Position, error) {
	acc, err := p.account(ctx)
	if err != nil {
		return nil, err
	}

	rows := acc.positions()
	var out []models.Position
	for _, row := range rows {
		if row.SizeRq.IsZero() {
			continue
		}
		pos, err := normalizer.PhemexPositionToModel(rows, row.Symbol)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

func (p *Phemex) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	query := url.Values{
		"symbol":     {req.Symbol},
		"clOrdID":    {req.ClientOrderID},
		"side":       {titleSide(req.Side)},
		"posSide":    {phemexMerged},
		"orderQtyRq": {req.Quantity.String()},
	}
	if req.ReduceOnly {
		query.Set("reduceOnly", "true")
	}

	switch req.Type {
	case models.OrderTypeLimit:
		query.Set("ordType", "Limit")
		query.Set("priceRp", req.Price.String())
		if req.PostOnly {
			query.Set("timeInForce", "PostOnly")
		}
	case models.OrderTypeStop:
		query.Set("ordType", "StopLimit")
		query.Set("priceRp", req.Price.String())
		query.Set("stopPxRp", req.StopPrice.String())
		query.Set("triggerType", "ByLastPrice")
	case models.OrderTypeStopMarket:
		query.Set("ordType", "Stop")
		query.Set("stopPxRp", req.StopPrice.String())
		query.Set("triggerType", "ByLastPrice")
	default:
		query.Set("ordType", "Market")
	}

	var o normalizer.PhemexOrder
	if err := p.call(ctx, http.MethodPut, "/g-orders/create", query, nil, true, &o); err != nil {
		return nil, err
	}
	if o.Symbol == "" {
		o.Symbol = req.Symbol
	}
	return normalizer.PhemexOrderToModel(&o)
}

func (p *Phemex) GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error) {
	query := url.Values{"symbol": {symbol}}
	if ref.OrderID != "" {
		query.Set("orderID", ref.OrderID)
	} else {
		query.Set("clOrdID", ref.ClientOrderID)
	}

	var res phemexRows[normalizer.PhemexOrder]
	err := p.call(ctx, http.MethodGet, "/api-data/g-futures/orders/by-order-id", query, nil, true, &res)
	if IsKind(err, KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return normalizer.PhemexOrderToModel(&res.Rows[0])
}

func (p *Phemex) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	var res phemexRows[normalizer.PhemexOrder]
	err := p.call(ctx, http.MethodGet, "/g-orders/activeList", url.Values{"symbol": {symbol}}, nil, true, &res)
	// Phemex reports an empty book of open orders as not found.
	if IsKind(err, KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]models.Order, 0, len(res.Rows))
	for i := range res.Rows {
		o, err := normalizer.PhemexOrderToModel(&res.Rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (p *Phemex) CancelOrder(ctx context.Context, symbol string, ref OrderRef) error {
	query := url.Values{"symbol": {symbol}, "posSide": {phemexMerged}}
	if ref.OrderID != "" {
		query.Set("orderID", ref.OrderID)
	} else {
		query.Set("clOrdID", ref.ClientOrderID)
	}
	return p.call(ctx, http.MethodDelete, "/g-orders/cancel", query, nil, true, nil)
}

// CancelAllOrders cancels active orders and untriggered conditionals, which
// Phemex treats as two separate sets.
func (p *Phemex) CancelAllOrders(ctx context.Context, symbol string) error {
	for _, untriggered := range []string{"false", "true"} {
		query := url.Values{"symbol": {symbol}, "untriggered": {untriggered}}
		if err := p.call(ctx, http.MethodDelete, "/g-orders/all", query, nil, true, nil); err != nil {
			return err
		}
	}
	return nil
}

func phemexKlineLimit(limit int) int {
	for _, l := range phemexKlineLimits {
		if l >= limit {
			return l
		}
	}
	return phemexKlineLimits[len(phemexKlineLimits)-1]
}

func (p *Phemex) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	resolution, err := normalizer.ExchangeInterval(normalizer.Phemex, q.Interval)
	if err != nil {
		return nil, err
	}

	query := url.Values{
		"symbol":     {q.Symbol},
		"resolution": {resolution},
		"limit":      {strconv.Itoa(phemexKlineLimit(q.Limit))},
	}

	var res phemexRows[[]decimal.Decimal]
	if err := p.call(ctx, http.MethodGet, "/exchange/public/md/v2/kline/last", query, nil, false, &res); err != nil {
		return nil, err
	}

	candles := make(models.Candles, 0, len(res.Rows))
	for _, row := range res.Rows {
		c, err := normalizer.PhemexCandle(row, q.Interval)
		if err != nil {
			return nil, err
		}
		if !q.Start.IsZero() && c.OpenTime < q.Start.UnixMilli() {
			continue
		}
		if !q.End.IsZero() && c.OpenTime > q.End.UnixMilli() {
			continue
		}
		candles = append(candles, c)
	}
	sortCandles(candles)

	if q.Limit > 0 {
		candles = candles.Tail(q.Limit)
	}
	return candles, nil
}

func (p *Phemex) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	var res struct {
		Book struct {
			Asks [][2]decimal.Decimal `json:"asks"`
			Bids [][2]decimal.Decimal `json:"bids"`
		} `json:"orderbook_p"`
	}
	if err := p.call(ctx, http.MethodGet, "/md/v2/orderbook", url.Values{"symbol": {symbol}}, nil, false, &res); err != nil {
		return models.OrderBook{}, err
	}

	book := models.OrderBook{
		Symbol: symbol,
		Bids:   levels(res.Book.Bids),
		Asks:   levels(res.Book.Asks),
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

func (p *Phemex) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	book, err := p.GetOrderBook(ctx, symbol, 1)
	if err != nil {
		return models.BookTicker{}, err
	}
	return bookTickerFromBook(symbol, book)
}

func (p *Phemex) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	acc, err := p.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Account.AccountBalanceRv.Sub(acc.Account.TotalUsedBalanceRv), nil
}

func (p *Phemex) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	acc, err := p.account(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	total := acc.Account.AccountBalanceRv
	for _, row := range acc.Positions {
		total = total.Add(row.UnrealisedPnlRv)
	}
	return total, nil
}

func (p *Phemex) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	query := url.Values{
		"symbol":     {symbol},
		"leverageRr": {strconv.Itoa(leverage)},
	}
	return p.call(ctx, http.MethodPut, "/g-positions/leverage", query, nil, true, nil)
}

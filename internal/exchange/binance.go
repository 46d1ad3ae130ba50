package exchange

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const binanceURL = "https://fapi.binance.com"

// Binance is the USDT-M futures adapter on top of go-binance.
type Binance struct {
	client *futures.Client
	logger *logrus.Logger

	mu   sync.Mutex
	urls []string
	idx  int

	precisions *precisionCache
}

func NewBinance(creds Credentials, httpClient *http.Client, logger *logrus.Logger) *Binance {
	client := futures.NewClient(creds.APIKey, creds.APISecret)
	if httpClient != nil {
		client.HTTPClient = httpClient
	}

	urls := creds.URLs
	if len(urls) == 0 {
		urls = []string{binanceURL}
	}
	client.BaseURL = urls[0]

	b := &Binance{
		client: client,
		logger: logger,
		urls:   urls,
	}
	b.precisions = newPrecisionCache(b.fetchPrecision)

	return b
}

func (b *Binance) Name() string {
	return normalizer.Binance
}

func (b *Binance) Rotate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.urls) < 2 {
		return
	}
	b.idx = (b.idx + 1) % len(b.urls)
	b.client.BaseURL = b.urls[b.idx]
}

// Client exposes the underlying client for the user data stream.
func (b *Binance) Client() *futures.Client {
	return b.client
}

func (b *Binance) Precision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	return b.precisions.get(ctx, symbol)
}

func (b *Binance) fetchPrecision(ctx context.Context, symbol string) (normalizer.Precision, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return normalizer.Precision{}, binanceError(err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}

		p := normalizer.Precision{Symbol: symbol, ContractSize: decimal.NewFromInt(1)}
		if f := s.PriceFilter(); f != nil {
			p.TickSize = decimal.RequireFromString(f.TickSize)
		}
		if f := s.LotSizeFilter(); f != nil {
			p.StepSize = decimal.RequireFromString(f.StepSize)
		}
		return p, nil
	}

	return normalizer.Precision{}, &normalizer.UnknownSymbolError{Exchange: normalizer.Binance, Symbol: symbol}
}

func (b *Binance) GetPosition(ctx context.Context, symbol string) (models.Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.Position{}, binanceError(err)
	}

	// hedge mode returns one row per position side
	for _, r := range risks {
		if r.Symbol != symbol {
			continue
		}
		if p := normalizer.BinancePosition(r); !p.IsFlat() {
			return p, nil
		}
	}

	return models.ZeroPosition(symbol), nil
}

func (b *Binance) GetPositions(ctx context.Context) ([]models.Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, binanceError(err)
	}

	var out []models.Position
	for _, r := range risks {
		p := normalizer.BinancePosition(r)
		if !p.IsFlat() {
			out = append(out, p)
		}
	}

	return out, nil
}

func (b *Binance) PlaceOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	svc := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		Quantity(req.Quantity.String())

	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	switch req.Type {
	case models.OrderTypeLimit, models.OrderTypeStop:
		tif := futures.TimeInForceTypeGTC
		if req.PostOnly {
			tif = futures.TimeInForceTypeGTX
		}
		svc = svc.Price(req.Price.String()).TimeInForce(tif)
	}
	if req.Type == models.OrderTypeStop || req.Type == models.OrderTypeStopMarket {
		svc = svc.StopPrice(req.StopPrice.String())
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, binanceError(err)
	}

	// The create response carries no average price.
	if res.Status == futures.OrderStatusTypeFilled || res.Status == futures.OrderStatusTypePartiallyFilled {
		return b.GetOrder(ctx, req.Symbol, OrderRef{OrderID: strconv.FormatInt(res.OrderID, 10)})
	}

	return normalizer.BinanceOrder(&futures.Order{
		Symbol:           res.Symbol,
		OrderID:          res.OrderID,
		ClientOrderID:    res.ClientOrderID,
		Price:            res.Price,
		ReduceOnly:       res.ReduceOnly,
		OrigQuantity:     res.OrigQuantity,
		ExecutedQuantity: res.ExecutedQuantity,
		Status:           res.Status,
		Type:             res.Type,
		Side:             res.Side,
		StopPrice:        res.StopPrice,
		UpdateTime:       res.UpdateTime,
	})
}

func (b *Binance) GetOrder(ctx context.Context, symbol string, ref OrderRef) (*models.Order, error) {
	svc := b.client.NewGetOrderService().Symbol(symbol)
	if ref.OrderID != "" {
		id, err := strconv.ParseInt(ref.OrderID, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "binance order id %q", ref.OrderID)
		}
		svc = svc.OrderID(id)
	} else {
		svc = svc.OrigClientOrderID(ref.ClientOrderID)
	}

	o, err := svc.Do(ctx)
	if err != nil {
		err = binanceError(err)
		if IsKind(err, KindNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return normalizer.BinanceOrder(o)
}

func (b *Binance) GetOpenOrders(ctx context.Context, symbol string) ([]models.Order, error) {
	orders, err := b.client.NewListOpenOrdersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, binanceError(err)
	}

	out := make([]models.Order, 0, len(orders))
	for _, o := range orders {
		order, err := normalizer.BinanceOrder(o)
		if err != nil {
			return nil, err
		}
		out = append(out, *order)
	}

	return out, nil
}

func (b *Binance) CancelOrder(ctx context.Context, symbol string, ref OrderRef) error {
	svc := b.client.NewCancelOrderService().Symbol(symbol)
	if ref.OrderID != "" {
		id, err := strconv.ParseInt(ref.OrderID, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "binance order id %q", ref.OrderID)
		}
		svc = svc.OrderID(id)
	} else {
		svc = svc.OrigClientOrderID(ref.ClientOrderID)
	}

	_, err := svc.Do(ctx)
	return binanceError(err)
}

func (b *Binance) CancelAllOrders(ctx context.Context, symbol string) error {
	return binanceError(b.client.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx))
}

func (b *Binance) GetKlines(ctx context.Context, q KlineQuery) (models.Candles, error) {
	interval, err := normalizer.ExchangeInterval(normalizer.Binance, q.Interval)
	if err != nil {
		return nil, err
	}

	svc := b.client.NewKlinesService().Symbol(q.Symbol).Interval(interval)
	if q.Limit > 0 {
		svc = svc.Limit(q.Limit)
	}
	if !q.Start.IsZero() {
		svc = svc.StartTime(q.Start.UnixMilli())
	}
	if !q.End.IsZero() {
		svc = svc.EndTime(q.End.UnixMilli())
	}

	klines, err := svc.Do(ctx)
	if err != nil {
		return nil, binanceError(err)
	}

	out := make(models.Candles, 0, len(klines))
	for _, k := range klines {
		out = append(out, normalizer.BinanceKline(k))
	}

	return out, nil
}

func (b *Binance) GetBookTicker(ctx context.Context, symbol string) (models.BookTicker, error) {
	tickers, err := b.client.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return models.BookTicker{}, binanceError(err)
	}
	if len(tickers) == 0 {
		return models.BookTicker{}, ErrNoPrice
	}

	t := tickers[0]
	return models.BookTicker{
		Symbol:   symbol,
		BidPrice: decimal.RequireFromString(t.BidPrice),
		BidQty:   decimal.RequireFromString(t.BidQuantity),
		AskPrice: decimal.RequireFromString(t.AskPrice),
		AskQty:   decimal.RequireFromString(t.AskQuantity),
	}, nil
}

func (b *Binance) GetOrderBook(ctx context.Context, symbol string, limit int) (models.OrderBook, error) {
	res, err := b.client.NewDepthService().Symbol(symbol).Limit(limit).Do(ctx)
	if err != nil {
		return models.OrderBook{}, binanceError(err)
	}

	book := models.OrderBook{Symbol: symbol}
	for _, l := range res.Bids {
		book.Bids = append(book.Bids, models.BookLevel{
			Price: decimal.RequireFromString(l.Price),
			Qty:   decimal.RequireFromString(l.Quantity),
		})
	}
	for _, l := range res.Asks {
		book.Asks = append(book.Asks, models.BookLevel{
			Price: decimal.RequireFromString(l.Price),
			Qty:   decimal.RequireFromString(l.Quantity),
		})
	}

	return book, nil
}

func (b *Binance) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	balances, err := b.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return decimal.Zero, binanceError(err)
	}

	for _, bal := range balances {
		if bal.Asset == "USDT" {
			return decimal.RequireFromString(bal.AvailableBalance), nil
		}
	}

	return decimal.Zero, nil
}

func (b *Binance) GetTotalBalance(ctx context.Context) (decimal.Decimal, error) {
	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return decimal.Zero, binanceError(err)
	}

	return decimal.RequireFromString(account.TotalMarginBalance), nil
}

func (b *Binance) ChangeLeverage(ctx context.Context, symbol string, leverage int) error {
	_, err := b.client.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	return binanceError(err)
}

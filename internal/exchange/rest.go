package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"flushbot/internal/controllers"
	"flushbot/internal/normalizer"
	"flushbot/models"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// restClient is the plumbing shared by the adapters that talk to an exchange
// through the signed http controller.
type restClient struct {
	name   string
	client controllers.ClientCtrl
	crypto controllers.CryptoCtrl
	creds  Credentials
	logger *logrus.Logger
	now    func() time.Time

	mu   sync.Mutex
	urls []string
	idx  int
}

func newRESTClient(
	name string,
	client controllers.ClientCtrl,
	crypto controllers.CryptoCtrl,
	creds Credentials,
	defaultURL string,
	logger *logrus.Logger,
) *restClient {
	urls := creds.URLs
	if len(urls) == 0 {
		urls = []string{defaultURL}
	}

	return &restClient{
		name:   name,
		client: client,
		crypto: crypto,
		creds:  creds,
		logger: logger,
		now:    time.Now,
		urls:   urls,
	}
}

// Rotate switches to the next alternate base URL.
func (c *restClient) Rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.urls) < 2 {
		return
	}
	c.idx = (c.idx + 1) % len(c.urls)

	c.logger.
		WithField("exchange", c.name).
		WithField("url", c.urls[c.idx]).
		Info("switched api url")
}

func (c *restClient) base() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.urls[c.idx]
}

func (c *restClient) endpoint(path string, query url.Values) (*url.URL, error) {
	u, err := url.Parse(c.base() + path)
	if err != nil {
		return nil, errors.Wrapf(err, "%s endpoint %s", c.name, path)
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u, nil
}

// send performs the request. A non 2xx answer is returned as the body plus
// the status error so the adapter can read its own error envelope.
func (c *restClient) send(
	ctx context.Context,
	method string,
	u *url.URL,
	body []byte,
	headers http.Header,
) ([]byte, *controllers.StatusError, error) {
	out, err := c.client.Send(ctx, method, u, body, headers)
	if err == nil {
		return out, nil, nil
	}

	var statusErr *controllers.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Body, statusErr, nil
	}

	return nil, nil, errors.Wrapf(err, "%s %s %s", c.name, method, u.Path)
}

func (c *restClient) timestamp() int64 {
	return c.now().UnixMilli()
}

func decode(exchange string, data []byte, out interface{}) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrapf(err, "%s decode", exchange)
	}
	return nil
}

// precisionCache loads instrument precision once per symbol.
type precisionCache struct {
	mu    sync.RWMutex
	m     map[string]normalizer.Precision
	fetch func(ctx context.Context, symbol string) (normalizer.Precision, error)
}

func newPrecisionCache(fetch func(ctx context.Context, symbol string) (normalizer.Precision, error)) *precisionCache {
	return &precisionCache{
		m:     map[string]normalizer.Precision{},
		fetch: fetch,
	}
}

func (c *precisionCache) get(ctx context.Context, symbol string) (normalizer.Precision, error) {
	c.mu.RLock()
	p, ok := c.m[symbol]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	p, err := c.fetch(ctx, symbol)
	if err != nil {
		return normalizer.Precision{}, err
	}
	p.Symbol = symbol

	c.mu.Lock()
	c.m[symbol] = p
	c.mu.Unlock()

	return p, nil
}

// ensure loads every symbol so that lookup can answer for them.
func (c *precisionCache) ensure(ctx context.Context, symbols ...string) error {
	for _, s := range symbols {
		if _, err := c.get(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (c *precisionCache) lookup() normalizer.PrecisionLookup {
	return func(symbol string) (normalizer.Precision, bool) {
		c.mu.RLock()
		defer c.mu.RUnlock()

		p, ok := c.m[symbol]
		return p, ok
	}
}

func sortCandles(c models.Candles) {
	sort.Slice(c, func(i, j int) bool { return c[i].OpenTime < c[j].OpenTime })
}

package controllers

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type ClientController struct {
	client *http.Client
	logger *logrus.Logger
}

func NewClientController(
	client *http.Client,
	logger *logrus.Logger,
) *ClientController {
	return &ClientController{
		client: client,
		logger: logger,
	}
}

// StatusError is returned for any non 2xx response. Exchanges put their error
// code in the body, so callers decode it themselves.
type StatusError struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("statusCode %d; resp %s;", e.StatusCode, e.Body)
}

func (c *ClientController) Send(
	ctx context.Context,
	method string,
	url *url.URL,
	body []byte,
	headers http.Header,
) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url.String(), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}

	req.Header.Add("Content-Type", "application/json")
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	out, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read body")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.
			WithField("method", method).
			WithField("path", url.Path).
			WithField("status", resp.StatusCode).
			Debug(string(out))

		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Body:       out,
			Header:     resp.Header,
		}
	}

	return out, nil
}

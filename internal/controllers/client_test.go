package controllers_test

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"flushbot/internal/controllers"
	"flushbot/internal/controllers/mocks"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestClientSend(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "key", r.Header.Get("X-MBX-APIKEY"))
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/limited":
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"code":-1003,"msg":"Too many requests"}`))
		}
	}))
	defer srv.Close()

	clientController := controllers.NewClientController(&http.Client{Timeout: time.Second}, logger)

	t.Run("ok", func(t *testing.T) {
		u, err := url.Parse(srv.URL + "/ok")
		require.NoError(t, err)

		body, err := clientController.Send(context.Background(), http.MethodGet, u, nil, http.Header{"X-MBX-APIKEY": {"key"}})
		assert.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, string(body))
	})

	t.Run("status error keeps body and headers", func(t *testing.T) {
		u, err := url.Parse(srv.URL + "/limited")
		require.NoError(t, err)

		_, err = clientController.Send(context.Background(), http.MethodGet, u, nil, nil)
		var statusErr *controllers.StatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
		assert.Equal(t, "2", statusErr.Header.Get("Retry-After"))
		assert.Contains(t, string(statusErr.Body), "-1003")
	})

	t.Run("cancelled context", func(t *testing.T) {
		u, err := url.Parse(srv.URL + "/ok")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err = clientController.Send(ctx, http.MethodGet, u, nil, nil)
		assert.Error(t, err)
	})
}

func TestSignatures(t *testing.T) {
	cryptoController := controllers.NewCryptoController("NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j")
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"

	t.Run("hex sha256", func(t *testing.T) {
		assert.Equal(t,
			"c8db56825ae71d6d79447849e617115f4a920fa2acdcab2b053c4b2838bd6b71",
			cryptoController.GetSignature(query),
		)
	})

	t.Run("base64 sha256 encodes the same digest", func(t *testing.T) {
		raw, err := base64.StdEncoding.DecodeString(cryptoController.GetSignatureBase64(query))
		require.NoError(t, err)
		assert.Equal(t, cryptoController.GetSignature(query), hex.EncodeToString(raw))
	})

	t.Run("sha512", func(t *testing.T) {
		assert.Len(t, cryptoController.GetSignatureSHA512(query), 128)
		assert.Equal(t,
			"cf83e1357eefb8bdf1542850d66d8007d620e4050b5715dc83f4a921d36ce9ce47d0d13c5d85f2b0ff8318d2877eec2f63b931bd47417a81a538327af927da3e",
			controllers.HashSHA512(nil),
		)
	})
}

func TestNotifyController(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)

	var wg sync.WaitGroup
	wg.Add(2)

	first := &mocks.NotifySink{}
	first.On("Notify", "BTCUSDT stopped", "errors").Return(nil).Run(func(mock.Arguments) { wg.Done() })

	second := &mocks.NotifySink{}
	second.On("Notify", "BTCUSDT stopped", "errors").Return(assert.AnError).Run(func(mock.Arguments) { wg.Done() })

	notifier := controllers.NewNotifyController(logger, first, second)
	notifier.Notify("BTCUSDT stopped", "errors")

	wg.Wait()
	notifier.Close()

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestDiscordNotify(t *testing.T) {
	var got []string
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		got = append(got, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	discord := controllers.NewDiscordController(
		srv.Client(),
		srv.URL+"/default",
		map[string]string{"errors": srv.URL + "/errors"},
	)

	assert.NoError(t, discord.Notify("hello", ""))
	assert.NoError(t, discord.Notify("boom", "errors"))
	assert.Equal(t, []string{"/default", "/errors"}, got)

	t.Run("no webhook is a no-op", func(t *testing.T) {
		assert.NoError(t, controllers.NewDiscordController(srv.Client(), "", nil).Notify("x", ""))
	})
}

package feed

import (
	"testing"

	"flushbot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceDecoder(t *testing.T) {
	s := &BinanceStream{symbol: "BTCUSDT", interval: "1m", logger: quietLogger()}

	t.Run("kline", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"e":"kline","E":1690000000500,"s":"BTCUSDT","k":{
			"t":1690000000000,"T":1690000059999,"s":"BTCUSDT","i":"1m","f":1,"L":2,
			"o":"29000.1","c":"29010.5","h":"29020","l":"28990","v":"12.5","n":10,"x":false,
			"q":"362500","V":"6","Q":"174000","B":"0"}}`), sink)
		require.NoError(t, err)

		require.Len(t, sink.candles, 1)
		c := sink.candles[0]
		assert.Equal(t, int64(1690000059999), c.CloseTime)
		assert.True(t, c.Volume.Equal(d("12.5")), c.Volume.String())
		assert.True(t, c.Low.Equal(d("28990")))
		assert.True(t, c.VolumeUSD.Equal(d("362500")))
	})

	t.Run("order update", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"e":"ORDER_TRADE_UPDATE","E":1690000000500,"T":1690000000499,"o":{
			"s":"BTCUSDT","c":"BUYBTCUSDT1","S":"BUY","o":"LIMIT","f":"GTX","q":"0.010","p":"29000",
			"ap":"29000","sp":"0","x":"TRADE","X":"PARTIALLY_FILLED","i":8886774,"l":"0.004",
			"z":"0.004","L":"29000","T":1690000000499,"t":12345,"R":false,"cp":false}}`), sink)
		require.NoError(t, err)

		require.Len(t, sink.orders, 1)
		o := sink.orders[0]
		assert.Equal(t, "8886774", o.OrderID)
		assert.Equal(t, models.OrderStatusPartiallyFilled, o.Status)
		assert.True(t, o.ExecutedQty.Equal(d("0.004")))
		assert.Equal(t, int64(1690000000499), o.UpdateTime.UnixMilli())
	})

	t.Run("other symbols are ignored", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"e":"ORDER_TRADE_UPDATE","o":{"s":"ETHUSDT","X":"NEW"}}`), sink)
		require.NoError(t, err)
		assert.Empty(t, sink.orders)
	})

	t.Run("account update", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"e":"ACCOUNT_UPDATE","E":1,"T":1,"a":{"m":"ORDER",
			"B":[{"a":"USDT","wb":"1000","cw":"950","bc":"0"}],
			"P":[{"s":"BTCUSDT","pa":"0","ep":"0","up":"0","mt":"cross","ps":"BOTH"}]}}`), sink)
		require.NoError(t, err)

		require.Len(t, sink.balances, 1)
		assert.True(t, sink.balances[0].Equal(d("950")))
		require.Len(t, sink.positions, 1)
		assert.True(t, sink.positions[0].IsFlat())
	})

	t.Run("expired listen key", func(t *testing.T) {
		err := s.handle([]byte(`{"e":"listenKeyExpired","E":1}`), &recordingSink{})
		assert.ErrorIs(t, err, errListenKeyExpired)
	})
}

func TestBybitDecoder(t *testing.T) {
	s := &BybitStream{symbol: "BTCUSDT", interval: "5m", logger: quietLogger()}

	t.Run("kline", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"topic":"kline.5.BTCUSDT","type":"snapshot","data":[{
			"start":1690000200000,"end":1690000499999,"interval":"5","open":"29000","close":"29050",
			"high":"29100","low":"28950","volume":"10","turnover":"290500","confirm":false}]}`), sink)
		require.NoError(t, err)

		require.Len(t, sink.candles, 1)
		assert.Equal(t, int64(1690000499999), sink.candles[0].CloseTime)
		assert.True(t, sink.candles[0].Close.Equal(d("29050")))
	})

	t.Run("position", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"topic":"position","data":[{"symbol":"BTCUSDT","side":"Sell",
			"size":"0.2","entryPrice":"29000","unrealisedPnl":"-3"}]}`), sink)
		require.NoError(t, err)

		require.Len(t, sink.positions, 1)
		assert.True(t, sink.positions[0].PositionAmt.Equal(d("-0.2")))
		assert.True(t, sink.positions[0].EntryPrice.Equal(d("29000")))
	})

	t.Run("wallet", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"topic":"wallet","data":[{"accountType":"UNIFIED","totalAvailableBalance":"812.5"}]}`), sink)
		require.NoError(t, err)

		require.Len(t, sink.balances, 1)
		assert.True(t, sink.balances[0].Equal(d("812.5")))
	})

	t.Run("pong", func(t *testing.T) {
		sink := &recordingSink{}
		require.NoError(t, s.handle([]byte(`{"success":true,"ret_msg":"pong","op":"ping"}`), sink))
		assert.Zero(t, sink.candleCount())
	})
}

func TestOKXDecoder(t *testing.T) {
	s := &OKXStream{symbol: "BTC-USDT-SWAP", interval: "1h", logger: quietLogger()}

	t.Run("candle", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"arg":{"channel":"candle1H","instId":"BTC-USDT-SWAP"},"data":[
			["1690000000000","29000","29100","28900","29050","120","1.2","34860","0"]]}`), sink)
		require.NoError(t, err)

		require.Len(t, sink.candles, 1)
		assert.Equal(t, int64(1690000000000+3600000-1), sink.candles[0].CloseTime)
	})

	t.Run("account", func(t *testing.T) {
		sink := &recordingSink{}
		err := s.handle([]byte(`{"arg":{"channel":"account","ccy":"USDT"},"data":[{"totalEq":"1000",
			"details":[{"ccy":"USDT","availBal":"640","eq":"1000"}]}]}`), sink)
		require.NoError(t, err)

		require.Len(t, sink.balances, 1)
		assert.True(t, sink.balances[0].Equal(d("640")))
	})

	t.Run("pong and subscribe events", func(t *testing.T) {
		sink := &recordingSink{}
		require.NoError(t, s.handle([]byte("pong"), sink))
		require.NoError(t, s.handle([]byte(`{"event":"subscribe","arg":{"channel":"candle1H","instId":"BTC-USDT-SWAP"}}`), sink))
		assert.Zero(t, sink.candleCount())
	})

	t.Run("error event", func(t *testing.T) {
		err := s.handle([]byte(`{"event":"error","code":"60012","msg":"Invalid request"}`), &recordingSink{})
		assert.Error(t, err)
	})
}

package quotes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeCore/internal/domain/models"
	"TradeCore/pkg/logger"
)

func TestDecodeQuotes(t *testing.T) {
	got := decodeQuotes([]byte(`{"type":"trade","data":[
		{"s":"AAPL","p":187.5,"v":10,"t":1700000000000},
		{"s":"","p":1,"v":1,"t":1},
		{"s":"MSFT","p":0,"v":1,"t":1}]}`))
	require.Len(t, got, 1)
	assert.Equal(t, models.Quote{Symbol: "AAPL", Price: 187.5, Volume: 10, Timestamp: time.UnixMilli(1700000000000).UTC()}, got[0])

	assert.Empty(t, decodeQuotes([]byte(`{"type":"ping"}`)))
	assert.Empty(t, decodeQuotes([]byte(`not json`)))
}

func TestStreamSubscribesAndReads(t *testing.T) {
	subscribed := make(chan string, 2)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k3y", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 2; i++ {
			var msg map[string]string
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			subscribed <- msg["symbol"]
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade","data":[{"s":"AAPL","p":190,"v":1,"t":1700000000000}]}`))
	}))
	defer srv.Close()

	s := NewStream("k3y", "ws"+strings.TrimPrefix(srv.URL, "http"), []string{"AAPL", "MSFT"}, time.Millisecond, 0, logger.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, s.Connect(ctx))
	assert.True(t, s.IsConnected())
	require.NoError(t, s.Subscribe(ctx))
	assert.Equal(t, "AAPL", <-subscribed)
	assert.Equal(t, "MSFT", <-subscribed)

	quotes, errs := s.Read(ctx)
	select {
	case q := <-quotes:
		assert.Equal(t, "AAPL", q.Symbol)
		assert.Equal(t, 190.0, q.Price)
	case <-ctx.Done():
		t.Fatal("no quote received")
	}

	// server hung up after the trade frame
	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("no read error after server close")
	}

	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
}

func TestSubscribeRequiresConnection(t *testing.T) {
	s := NewStream("", "ws://127.0.0.1:1", []string{"AAPL"}, time.Millisecond, 0, logger.Nop())
	assert.Error(t, s.Subscribe(context.Background()))

	quotes, errs := s.Read(context.Background())
	assert.Error(t, <-errs)
	_, open := <-quotes
	assert.False(t, open)
}

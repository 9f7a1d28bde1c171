package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeCore/internal/domain/models"
	"TradeCore/pkg/logger"
	"TradeCore/pkg/metrics"
)

// fakeStream serves one batch of quotes per connection, then fails.
type fakeStream struct {
	batches    [][]models.Quote
	reads      atomic.Int32
	reconnects atomic.Int32
	connected  atomic.Bool
}

func (s *fakeStream) Connect(context.Context) error   { s.connected.Store(true); return nil }
func (s *fakeStream) Subscribe(context.Context) error { return nil }
func (s *fakeStream) Close() error                    { s.connected.Store(false); return nil }
func (s *fakeStream) IsConnected() bool               { return s.connected.Load() }

func (s *fakeStream) Reconnect(ctx context.Context) error {
	s.reconnects.Add(1)
	return s.Connect(ctx)
}

func (s *fakeStream) Read(ctx context.Context) (<-chan models.Quote, <-chan error) {
	n := int(s.reads.Add(1)) - 1
	quotes := make(chan models.Quote)
	errs := make(chan error, 1)
	go func() {
		defer close(quotes)
		defer close(errs)
		if n >= len(s.batches) {
			<-ctx.Done()
			return
		}
		for _, q := range s.batches[n] {
			select {
			case quotes <- q:
			case <-ctx.Done():
				return
			}
		}
		errs <- errors.New("connection reset")
	}()
	return quotes, errs
}

type recordingSink struct {
	mu     sync.Mutex
	quotes []models.Quote
}

func (r *recordingSink) Put(_ context.Context, q models.Quote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes = append(r.quotes, q)
	return nil
}

func (r *recordingSink) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quotes)
}

func TestQuoteCollectorReconnects(t *testing.T) {
	stream := &fakeStream{batches: [][]models.Quote{
		{{Symbol: "AAPL", Price: 1}, {Symbol: "MSFT", Price: 2}},
		{{Symbol: "AAPL", Price: 3}},
	}}
	sink := &recordingSink{}
	c := NewQuoteCollector(stream, sink, metrics.Nop{}, logger.Nop())

	require.NoError(t, c.Start(context.Background()))
	assert.Eventually(t, func() bool { return sink.len() == 3 }, time.Second, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return stream.reconnects.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.False(t, c.IsConnected())
}

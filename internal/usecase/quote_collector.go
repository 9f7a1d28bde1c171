package usecase

import (
	"context"
	"sync"
	"time"

	"TradeCore/internal/domain/models"
	drepo "TradeCore/internal/domain/repository"
	"TradeCore/pkg/logger"
)

// QuoteCollector feeds streamed quotes into a sink, reconnecting when the stream drops.
type QuoteCollector struct {
	stream  drepo.MarketStream
	sink    drepo.QuoteSink
	metrics drepo.Metrics
	log     *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewQuoteCollector(stream drepo.MarketStream, sink drepo.QuoteSink, metrics drepo.Metrics, log *logger.Logger) *QuoteCollector {
	return &QuoteCollector{stream: stream, sink: sink, metrics: metrics, log: log}
}

func (c *QuoteCollector) IsConnected() bool {
	return c.stream.IsConnected()
}

// Start connects once synchronously so misconfiguration surfaces at boot.
func (c *QuoteCollector) Start(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	if err := c.stream.Subscribe(ctx); err != nil {
		_ = c.stream.Close()
		return err
	}
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()
	return nil
}

func (c *QuoteCollector) run(ctx context.Context) {
	for ctx.Err() == nil {
		quotes, errs := c.stream.Read(ctx)
		c.consume(ctx, quotes, errs)
		if ctx.Err() != nil {
			return
		}
		if err := c.stream.Reconnect(ctx); err != nil {
			c.metrics.RecordError("quote_stream_reconnect")
			c.log.Warn("quote stream reconnect failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// consume returns when the current connection ends.
func (c *QuoteCollector) consume(ctx context.Context, quotes <-chan models.Quote, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if ok && err != nil {
				c.metrics.RecordError("quote_stream")
				c.log.Warn("quote stream interrupted", logger.Error(err))
			}
			if !ok || err != nil {
				return
			}
		case q, ok := <-quotes:
			if !ok {
				return
			}
			if err := c.sink.Put(ctx, q); err != nil {
				c.metrics.RecordError("quote_put")
			}
		}
	}
}

func (c *QuoteCollector) Shutdown(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	err := c.stream.Close()
	c.wg.Wait()
	return err
}

package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradeCore/pkg/config"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestAppLifecycleOrder(t *testing.T) {
	var events []string
	cfg := &config.Config{}
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = time.Second

	comp := func(name string, startErr error) Funcs {
		return Funcs{
			StartFn: func(context.Context) error { events = append(events, "start "+name); return startErr },
			StopFn:  func(context.Context) error { events = append(events, "stop "+name); return nil },
		}
	}
	app := New(cfg, nil, nil,
		WithComponent("pipeline", comp("pipeline", nil)),
		WithComponent("quotes", comp("quotes", errors.New("dial failed"))),
		WithCloser("recorder", closerFunc(func() error { events = append(events, "close recorder"); return nil })),
		WithCloser("cache", closerFunc(func() error { events = append(events, "close cache"); return errors.New("boom") })),
	)

	// Cancelled up front: RunContext still starts everything, then shuts down.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not shut down")
	}
	assert.Equal(t, []string{
		"start pipeline",
		"start quotes",
		"stop quotes",
		"stop pipeline",
		"close recorder",
		"close cache",
	}, events)
}

func TestFuncsNilIsNoop(t *testing.T) {
	var f Funcs
	assert.NoError(t, f.Start(context.Background()))
	assert.NoError(t, f.Stop(context.Background()))
}

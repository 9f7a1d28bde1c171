package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"TradeCore/pkg/config"
	xhttp "TradeCore/pkg/http"
	applogger "TradeCore/pkg/logger"
)

// Lifecycle is a background component started with the app and stopped before closers run.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Funcs adapts a pair of functions to Lifecycle. A nil func is a no-op.
type Funcs struct {
	StartFn func(ctx context.Context) error
	StopFn  func(ctx context.Context) error
}

func (f Funcs) Start(ctx context.Context) error {
	if f.StartFn == nil {
		return nil
	}
	return f.StartFn(ctx)
}

func (f Funcs) Stop(ctx context.Context) error {
	if f.StopFn == nil {
		return nil
	}
	return f.StopFn(ctx)
}

type namedCloser struct {
	name string
	c    io.Closer
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg         *config.Config
	l           *applogger.Logger
	httpHandler xhttp.Handler
	httpServer  *xhttp.Server
	components  []namedComponent
	closers     []namedCloser
}

type namedComponent struct {
	name string
	c    Lifecycle
}

type Option func(*App)

// WithComponent registers a background component. Components stop in reverse order.
func WithComponent(name string, c Lifecycle) Option {
	return func(a *App) { a.components = append(a.components, namedComponent{name, c}) }
}

// WithCloser registers a resource closed last, in registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) { a.closers = append(a.closers, namedCloser{name, c}) }
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, h xhttp.Handler, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{cfg: cfg, l: l, httpHandler: h}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts everything and shuts down once ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	for _, nc := range a.components {
		if err := nc.c.Start(runCtx); err != nil {
			// a dead quote stream only removes a price fallback; keep serving
			a.l.Error("component start error", applogger.String("component", nc.name), applogger.Error(err))
			continue
		}
		a.l.Info("component started", applogger.String("component", nc.name))
	}

	a.httpServer = xhttp.NewServer(a.httpHandler,
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithLogger(a.l),
		xhttp.WithCORSOrigins(a.cfg.Server.CORSOrigins...),
	)
	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}

	<-ctx.Done()
	a.l.Info("shutdown signal received")
	return a.shutdown()
}

// shutdown gracefully stops all services.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop taking requests first so no new feedback jobs arrive.
	if err := a.httpServer.Stop(ctx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	for i := len(a.components) - 1; i >= 0; i-- {
		nc := a.components[i]
		if err := nc.c.Stop(ctx); err != nil {
			a.l.Warn("component stop error", applogger.String("component", nc.name), applogger.Error(err))
		}
	}

	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}

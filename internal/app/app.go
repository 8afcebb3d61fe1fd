// Package app is the composition root. It wires configuration, stores,
// authentication, presence and the relay into a runnable server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/relay/internal/config"
	"github.com/nfrund/relay/internal/presence"
	"github.com/nfrund/relay/internal/pubsub"
	"github.com/nfrund/relay/internal/server"
	"github.com/samber/do/v2"
)

// Version is reported by the CLI and attached to exported spans. Override it
// at build time with -ldflags "-X github.com/nfrund/relay/internal/app.Version=...".
var Version = "0.1.0"

// App is the assembled service.
type App struct {
	injector *do.RootScope
	cfg      *config.Config
	logger   *slog.Logger
	closers  *closers
}

// New builds every component eagerly so configuration and connection errors
// surface before the server starts. On error, anything already opened is
// closed again.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	injector := do.New()
	c := &closers{}

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, c)
	do.Provide(injector, provideLogger)
	do.Provide(injector, provideTracing(ctx))
	do.Provide(injector, provideBus)
	do.Provide(injector, provideMessageStore(ctx))
	do.Provide(injector, provideAuthenticator(ctx))
	do.Provide(injector, provideRegistry)
	do.Provide(injector, provideRelay)
	do.Provide(injector, provideGatekeeper)
	do.Provide(injector, provideHandler)
	do.Provide(injector, provideServer)

	if _, err := do.Invoke[*server.Server](injector); err != nil {
		if closeErr := c.closeAll(ctx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return nil, fmt.Errorf("assemble application: %w", err)
	}

	return &App{
		injector: injector,
		cfg:      cfg,
		logger:   do.MustInvoke[*slog.Logger](injector),
		closers:  c,
	}, nil
}

// Server returns the HTTP server.
func (a *App) Server() *server.Server {
	return do.MustInvoke[*server.Server](a.injector)
}

// Registry returns the presence registry.
func (a *App) Registry() *presence.Registry {
	return do.MustInvoke[*presence.Registry](a.injector)
}

// Run starts status fan-out and serves until ctx ends or a stop signal
// arrives, then releases every resource.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := do.MustInvoke[*pubsub.WatermillBridge](a.injector)
	if err := presence.Forward(runCtx, bus, a.Registry()); err != nil {
		return errors.Join(err, a.Close(context.Background()))
	}

	a.logger.Info("Relay starting",
		"version", Version,
		"addr", a.cfg.ServerAddr,
		"store", a.cfg.StoreDriver,
		"auth", a.cfg.AuthMode)

	serveErr := a.Server().Start(runCtx)

	closeCtx, done := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer done()
	return errors.Join(serveErr, a.Close(closeCtx))
}

// Close releases stores, the bus, the revocation client and the tracer in
// the reverse order they were opened. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	err := a.closers.closeAll(ctx)
	if err != nil {
		a.logger.Error("Shutdown finished with errors", "error", err)
	} else {
		a.logger.Info("Shutdown complete")
	}
	return err
}

type closer struct {
	name string
	fn   func(context.Context) error
}

// closers collects release functions as providers open resources.
type closers struct {
	mu   sync.Mutex
	list []closer
}

func (c *closers) add(name string, fn func(context.Context) error) {
	c.mu.Lock()
	c.list = append(c.list, closer{name: name, fn: fn})
	c.mu.Unlock()
}

func (c *closers) closeAll(ctx context.Context) error {
	c.mu.Lock()
	list := c.list
	c.list = nil
	c.mu.Unlock()

	var errs []error
	for i := len(list) - 1; i >= 0; i-- {
		if err := list[i].fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", list[i].name, err))
		}
	}
	return errors.Join(errs...)
}

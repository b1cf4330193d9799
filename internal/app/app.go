// Package app orchestrates anthrogate's process lifecycle: load config,
// start the HTTP server, watch the config file for hot reload, and
// supervise both until shutdown (spec.md §6, §9 — "no module-global
// state other than the config ref and cache").
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nilsecker/anthrogate/internal/clientcache"
	"github.com/nilsecker/anthrogate/internal/config"
	"github.com/nilsecker/anthrogate/internal/proxy"
)

// Options are the process-level settings resolved from CLI flags.
type Options struct {
	ConfigPath      string
	ShutdownTimeout time.Duration
	FlagOverrides   map[string]any
}

// App wires together the config store, client cache, and HTTP server.
type App struct {
	store   *config.Store
	clients *clientcache.Cache
	server  *proxy.Proxy
	logger  *slog.Logger
	opts    Options
}

// New loads the config file, validates it, and builds (but does not
// start) every long-lived component.
func New(opts Options, logger *slog.Logger) (*App, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.FlagOverrides, os.Environ)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store := config.NewStore(cfg, opts.ConfigPath)
	clients := clientcache.New()
	server := proxy.New(store, clients, logger)

	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}

	return &App{
		store:   store,
		clients: clients,
		server:  server,
		logger:  logger,
		opts:    opts,
	}, nil
}

// Start starts the HTTP server and the config-reload watcher, and
// blocks until either exits or ctx is cancelled; it then drains both
// gracefully (spec.md §5, §9).
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	cfg := a.store.Get()
	address := cfg.Server.Host + ":" + strconv.FormatUint(uint64(cfg.Server.Port), 10)

	a.logger.InfoContext(gCtx, "starting proxy server", "address", address, "providers", len(cfg.Providers))
	errCh, err := a.server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}

	g.Go(func() error {
		select {
		case err := <-errCh:
			if err != nil {
				a.logger.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	g.Go(func() error {
		if err := a.store.Watch(gCtx, a.logger); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("config watch: %w", err)
		}
		return nil
	})

	a.logger.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	a.logger.InfoContext(gCtx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.opts.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.ErrorContext(shutdownCtx, "proxy shutdown failed", "error", err)
		if runtimeErr == nil {
			runtimeErr = err
		}
	}

	return runtimeErr
}

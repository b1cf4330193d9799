package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nilsecker/anthrogate/internal/clientcache"
	"github.com/nilsecker/anthrogate/internal/config"
)

// Proxy is the inbound HTTP server terminating the Anthropic Messages
// API (spec.md §6).
type Proxy struct {
	mux    *http.ServeMux
	server *http.Server
}

var _ http.Handler = (*Proxy)(nil)

// New builds the route table: POST /v1/messages (dispatch), GET /
// (liveness), GET /healthz (config-generation introspection).
func New(store *config.Store, clients *clientcache.Cache, logger *slog.Logger) *Proxy {
	mux := http.NewServeMux()

	messages := &MessagesHandler{ConfigStore: store, Clients: clients}
	healthz := &HealthzHandler{ConfigStore: store}

	mux.Handle("POST /v1/messages", applyMiddlewares(messages, Logging(logger), Recovery(logger)))
	mux.Handle("GET /healthz", applyMiddlewares(healthz, Logging(logger), Recovery(logger)))
	mux.Handle("GET /{$}", applyMiddlewares(http.HandlerFunc(RootHandler), Logging(logger), Recovery(logger)))

	return &Proxy{mux: mux}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mux.ServeHTTP(w, r)
}

// Start starts the HTTP server in the background and returns
// immediately. Startup errors (port in use, permission denied) are
// returned synchronously; runtime errors surface on the returned
// channel. The caller must call Shutdown to stop the server.
func (p *Proxy) Start(ctx context.Context, address string) (<-chan error, error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	p.server = &http.Server{
		Handler:      p,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // long streamed SSE responses must not be cut short
		IdleTimeout:  90 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		err := p.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh, nil
}

// Shutdown gracefully drains in-flight requests, forcing a close if the
// context deadline is exceeded first.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	if err := p.server.Shutdown(ctx); err != nil {
		_ = p.server.Close()
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/dgnsrekt/tabtunnel/internal/coordinator"
	"github.com/dgnsrekt/tabtunnel/internal/relay"
	"github.com/dgnsrekt/tabtunnel/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Service is the session layer as seen by HTTP clients.
type Service interface {
	State(ctx context.Context) (types.View, error)
	NewTab(ctx context.Context) (types.TabView, error)
	SelectTab(ctx context.Context, id int) error
	CloseTab(ctx context.Context, id int) error
	Submit(ctx context.Context, input string) (string, error)
	Back(ctx context.Context) error
	Forward(ctx context.Context) error
	Reload(ctx context.Context) error
	Devtools(ctx context.Context) error
	Settings(ctx context.Context) (types.SettingsView, error)
	SaveSettings(ctx context.Context, endpoint string) error
	HandleMessage(ctx context.Context, msg types.Message) error
}

type tabIDInput struct {
	ID int `path:"id" doc:"Tab id"`
}

type stateOutput struct {
	Body types.View
}

// Instrumentation wraps every request and serves a scrape endpoint.
type Instrumentation interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type ServerOption func(*serverOptions)

type serverOptions struct {
	metrics Instrumentation
}

// WithMetrics mounts m's middleware and serves its handler at /metrics.
func WithMetrics(m Instrumentation) ServerOption {
	return func(o *serverOptions) { o.metrics = m }
}

// NewServer builds the HTTP surface. broker may be nil, in which case the
// /events stream is not mounted.
func NewServer(svc Service, broker *relay.Broker, opts ...ServerOption) http.Handler {
	var so serverOptions
	for _, opt := range opts {
		opt(&so)
	}

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	if so.metrics != nil {
		router.Use(so.metrics.Middleware)
	}
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("TabTunnel Session API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if broker != nil {
		router.Get("/events", relay.SSEHandler(broker))
	}
	if so.metrics != nil {
		router.Handle("/metrics", so.metrics.Handler())
	}

	registerTabHandlers(api, svc)
	registerNavigationHandlers(api, svc)
	registerSettingsHandlers(api, svc)
	registerMiscHandlers(api)

	return router
}

// stateAfter re-reads the projection after a mutation so every write
// endpoint answers with the state it produced.
func stateAfter(ctx context.Context, svc Service, err error) (*stateOutput, error) {
	if err != nil {
		return nil, mapErr(err)
	}
	view, err := svc.State(ctx)
	if err != nil {
		return nil, mapErr(err)
	}
	return &stateOutput{Body: view}, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, coordinator.ErrStopped) {
		return huma.Error503ServiceUnavailable("session layer is shutting down")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout(err.Error())
	}
	var coded *types.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case types.CodeInvalidEndpoint, types.CodeUnparseableURL:
			return huma.Error400BadRequest(coded.Message)
		case types.CodeMissingTab:
			return huma.Error404NotFound(coded.Message)
		case types.CodeEngineUnavailable, types.CodeTransportUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"stakeledger/core/types"
	"stakeledger/crypto"
	nativecommon "stakeledger/native/common"
	"stakeledger/native/staking"
	"stakeledger/observability"
	"stakeledger/observability/logging"
)

// Funder mints units outside the staking flow and reads balances. Both the
// in-memory bank and the durable ledger custody satisfy it.
type Funder interface {
	Mint(ctx context.Context, unit string, holder crypto.Address, amount uint64) error
	Balance(ctx context.Context, unit string, holder crypto.Address) (uint64, error)
}

// EventSource pages through journaled events.
type EventSource interface {
	Since(after uint64, limit int, eventType string) ([]*types.Event, error)
}

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	Auth          AuthConfig
	RateLimit     RateLimit
	// RequestTimeout bounds every handler. Zero selects ten seconds.
	RequestTimeout time.Duration
}

// Server exposes the staking engine over HTTP.
type Server struct {
	cfg     Config
	engine  *staking.Engine
	funds   Funder
	events  EventSource
	pauses  *nativecommon.Pauses
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
	metrics *observability.HTTPMetrics
}

// New constructs a server. events and pauses are optional.
func New(cfg Config, engine *staking.Engine, funds Funder, events EventSource, pauses *nativecommon.Pauses, logger *slog.Logger) (*Server, error) {
	if engine == nil {
		return nil, fmt.Errorf("staking engine required")
	}
	if funds == nil {
		return nil, fmt.Errorf("funder required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	auth, err := NewAuthenticator(cfg.Auth, logger)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	return &Server{
		cfg:     cfg,
		engine:  engine,
		funds:   funds,
		events:  events,
		pauses:  pauses,
		auth:    auth,
		limiter: NewRateLimiter(cfg.RateLimit),
		logger:  logger.With("component", "http"),
		metrics: observability.HTTP(),
	}, nil
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/pools", s.handleListPools)
		r.Get("/pools/{pool}", s.handleGetPool)
		r.Get("/pools/{pool}/estimate", s.handleEstimate)
		r.Get("/pools/{pool}/stakes/{owner}", s.handleGetStake)
		r.Get("/balances/{holder}", s.handleBalance)
		r.Get("/events", s.handleEvents)
		r.With(s.limiter.Middleware).Post("/pools/{pool}/settle", s.handleSettle)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.Middleware())
			r.Use(s.limiter.Middleware)
			r.Post("/pools", s.handleCreatePool)
			r.Put("/pools/{pool}/status", s.handleSetStatus)
			r.Post("/pools/{pool}/stake", s.handleStake)
			r.Post("/pools/{pool}/unstake", s.handleUnstake)
			r.Post("/pools/{pool}/claim", s.handleClaim)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeAdmin))
			r.Post("/fund", s.handleFund)
			r.Get("/pauses", s.handleListPauses)
			r.Put("/pauses/{module}", s.handleSetPause)
			r.Get("/pools/{pool}/audit", s.handleAudit)
		})
	})
	return otelhttp.NewHandler(r, "stakingd")
}

// Run starts the HTTP server and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.ListenAddress)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.Observe(route, status, elapsed)

		attrs := []any{
			"method", r.Method,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			attrs = append(attrs, logging.MaskField("authorization", auth))
		}
		s.logger.Debug("request", attrs...)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if s.pauses != nil && s.pauses.IsPaused(staking.ModuleName) {
		status = "paused"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

func caller(r *http.Request) crypto.Address {
	p, _ := PrincipalFromContext(r.Context())
	if p == nil {
		return crypto.Address{}
	}
	return p.Address
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}

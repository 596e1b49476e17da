// Package server assembles the HTTP surface: the public market API, the
// API-key-gated admin surface, the WebSocket stream, and the Prometheus
// endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/updownhq/updown/internal/domain"
	"github.com/updownhq/updown/internal/metrics"
	"github.com/updownhq/updown/internal/server/handler"
	"github.com/updownhq/updown/internal/server/middleware"
	"github.com/updownhq/updown/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminKey    string // gates /api/v1/admin; empty disables the gate (dev)
	RateLimit   int    // public requests per client per window; 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Market   *handler.MarketHandler
	Bets     *handler.BetHandler
	Rounds   *handler.RoundHandler
	Claims   *handler.ClaimHandler
	Admin    *handler.AdminHandler
	Accounts *handler.AccountHandler
}

// Infra carries the cross-cutting pieces the middleware chain needs.
// Limiter and Gatherer may be nil (rate limiting off, /metrics absent).
type Infra struct {
	Limiter  domain.RateLimiter
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Metrics
}

// Server is the HTTP + WebSocket API server for one market.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. Public
// endpoints are rate-limited per client; everything under /api/v1/admin
// additionally sits behind the admin API key.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, infra Infra, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	limited := func(h http.HandlerFunc) http.Handler {
		if infra.Limiter == nil || cfg.RateLimit <= 0 {
			return h
		}
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		return middleware.RateLimit(infra.Limiter, cfg.RateLimit, window)(h)
	}

	// Health check (no auth, no rate limit).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Public market endpoints.
	mux.Handle("GET /api/v1/market", limited(handlers.Market.GetState))
	mux.Handle("GET /api/v1/rounds", limited(handlers.Rounds.ListRounds))
	mux.Handle("GET /api/v1/rounds/{number}", limited(handlers.Rounds.GetRound))
	mux.Handle("GET /api/v1/rounds/{number}/claims", limited(handlers.Rounds.ListClaims))
	mux.Handle("GET /api/v1/rounds/{number}/claimable", limited(handlers.Claims.GetClaimable))
	mux.Handle("GET /api/v1/bets/{participant}", limited(handlers.Bets.GetPosition))
	mux.Handle("GET /api/v1/bets/{participant}/history", limited(handlers.Bets.ListHistory))
	mux.Handle("POST /api/v1/bets", limited(handlers.Bets.PlaceBet))
	mux.Handle("POST /api/v1/claims", limited(handlers.Claims.PlaceClaim))
	mux.Handle("GET /api/v1/accounts/{id}/balance", limited(handlers.Accounts.GetBalance))

	// Admin endpoints, behind the API key.
	admin := http.NewServeMux()
	admin.HandleFunc("POST /api/v1/admin/settle", handlers.Admin.Settle)
	admin.HandleFunc("POST /api/v1/admin/pause", handlers.Admin.Pause)
	admin.HandleFunc("POST /api/v1/admin/unpause", handlers.Admin.Unpause)
	admin.HandleFunc("PUT /api/v1/admin/safe-mode", handlers.Admin.SetSafeMode)
	admin.HandleFunc("PUT /api/v1/admin/keeper", handlers.Admin.SetKeeper)
	admin.HandleFunc("PUT /api/v1/admin/treasury", handlers.Admin.SetTreasury)
	admin.HandleFunc("PUT /api/v1/admin/owner", handlers.Admin.TransferOwnership)
	admin.HandleFunc("PUT /api/v1/admin/limits", handlers.Admin.SetLimits)
	admin.HandleFunc("POST /api/v1/admin/rescue", handlers.Admin.Rescue)
	admin.HandleFunc("POST /api/v1/admin/accounts/credit", handlers.Admin.CreditAccount)
	admin.HandleFunc("POST /api/v1/admin/accounts/debit", handlers.Admin.DebitAccount)
	admin.HandleFunc("GET /api/v1/admin/audit", handlers.Admin.Audit)
	admin.HandleFunc("GET /api/v1/admin/archives", handlers.Admin.Archives)
	mux.Handle("/api/v1/admin/", middleware.Auth(cfg.AdminKey)(admin))

	// WebSocket event stream.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Prometheus scrape endpoint.
	if infra.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(infra.Gatherer, promhttp.HandlerOpts{}))
	}

	var h http.Handler = mux
	h = middleware.Logging(logger, infra.Metrics)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight
// requests to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

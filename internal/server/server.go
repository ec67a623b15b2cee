// Package server exposes the ledger over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/bondable/internal/domain"
	"github.com/alanyoungcy/bondable/internal/server/handler"
	"github.com/alanyoungcy/bondable/internal/server/middleware"
	"github.com/alanyoungcy/bondable/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the per-client request cap per RateWindow; zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health  *handler.HealthHandler
	Markets *handler.MarketHandler
	Bonds   *handler.BondHandler
	Admin   *handler.AdminHandler
	Events  *handler.EventHandler
}

// Server is the HTTP + WebSocket API server for the bond ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes and builds the middleware chain. wsHub and
// limiter may be nil when Redis is not wired.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Markets.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("POST /api/markets", handlers.Markets.CreateMarket)
	mux.HandleFunc("GET /api/markets/keys", handlers.Markets.ListKeys)
	mux.HandleFunc("GET /api/markets/{underlying}/{maturity}", handlers.Markets.GetMarket)

	// Minting and redemption.
	mux.HandleFunc("POST /api/markets/{underlying}/{maturity}/mint", handlers.Bonds.Mint)
	mux.HandleFunc("POST /api/markets/{underlying}/{maturity}/redeem", handlers.Bonds.Redeem)

	// Balances.
	mux.HandleFunc("GET /api/markets/{underlying}/{maturity}/balances/{holder}", handlers.Bonds.GetBalance)
	mux.HandleFunc("GET /api/balances", handlers.Bonds.ListBalances)

	// Admin capability.
	mux.HandleFunc("GET /api/admin", handlers.Admin.GetAdmin)
	mux.HandleFunc("POST /api/admin/transfer", handlers.Admin.TransferAdmin)

	// Event journal and stream catch-up.
	mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	mux.HandleFunc("GET /api/events/stream", handlers.Events.StreamEvents)
	mux.HandleFunc("GET /api/markets/{underlying}/{maturity}/events", handlers.Events.ListMarketEvents)

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
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

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

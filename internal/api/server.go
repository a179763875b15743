// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/whalewatch/engine/internal/backfill"
	"github.com/whalewatch/engine/internal/broadcast"
	"github.com/whalewatch/engine/internal/copier"
	"github.com/whalewatch/engine/internal/metrics"
	"github.com/whalewatch/engine/internal/priceoracle"
	"github.com/whalewatch/engine/internal/storage"
)

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	config     *ServerConfig

	whales      *storage.WhaleRepository
	trades      *storage.TradeRepository
	events      *storage.EventRepository
	holdings    *storage.HoldingRepository
	metricsRepo *storage.MetricsRepository
	backfills   *storage.BackfillRepository
	backtests   *storage.BacktestRepository

	engine       *metrics.Engine
	oracle       *priceoracle.Oracle
	orchestrator *backfill.Orchestrator
	broadcaster  *broadcast.Broadcaster
	sessions     *copier.Manager
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	whales *storage.WhaleRepository,
	trades *storage.TradeRepository,
	events *storage.EventRepository,
	holdings *storage.HoldingRepository,
	metricsRepo *storage.MetricsRepository,
	backfills *storage.BackfillRepository,
	backtests *storage.BacktestRepository,
	engine *metrics.Engine,
	oracle *priceoracle.Oracle,
	orchestrator *backfill.Orchestrator,
	broadcaster *broadcast.Broadcaster,
	sessions *copier.Manager,
) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		config:       config,
		whales:       whales,
		trades:       trades,
		events:       events,
		holdings:     holdings,
		metricsRepo:  metricsRepo,
		backfills:    backfills,
		backtests:    backtests,
		engine:       engine,
		oracle:       oracle,
		orchestrator: orchestrator,
		broadcaster:  broadcaster,
		sessions:     sessions,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSec)

	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))
	s.router.Use(CompressionMiddleware)

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/dashboard/summary", s.handleDashboardSummary).Methods("GET")

	api.HandleFunc("/whales", s.handleListWhales).Methods("GET")
	api.HandleFunc("/whales", s.handleCreateWhale).Methods("POST")
	api.HandleFunc("/whales/top", s.handleTopWhales).Methods("GET")
	api.HandleFunc("/whales/{id}", s.handlePatchWhale).Methods("PATCH")
	api.HandleFunc("/whales/{id}", s.handleDeleteWhale).Methods("DELETE")
	api.HandleFunc("/whales/{id}/backfill_status", s.handleBackfillStatus).Methods("GET")
	api.HandleFunc("/whales/{id}/backfill", s.handleStartBackfill).Methods("POST")
	api.HandleFunc("/whales/{id}/reset_hyperliquid", s.handleResetHyperliquid).Methods("POST")

	api.HandleFunc("/wallets/{chain}/{address}", s.handleWalletDetail).Methods("GET")
	api.HandleFunc("/wallets/{chain}/{address}/roi-history", s.handleROIHistory).Methods("GET")
	api.HandleFunc("/wallets/{chain}/{address}/portfolio-history", s.handlePortfolioHistory).Methods("GET")
	api.HandleFunc("/wallets/{chain}/{address}/trades", s.handleWalletTrades).Methods("GET")
	api.HandleFunc("/wallets/{chain}/{address}/positions", s.handleWalletPositions).Methods("GET")

	api.HandleFunc("/events/recent", s.handleEventsRecent).Methods("GET")
	api.HandleFunc("/events/live", s.handleEventsRecent).Methods("GET")
	api.HandleFunc("/events/ws/live", s.handleEventsWebSocket)

	api.HandleFunc("/backtest/copier", s.handleBacktestCopier).Methods("POST")
	api.HandleFunc("/backtest/live/start", s.handleLiveStart).Methods("POST")
	api.HandleFunc("/backtest/live/stop", s.handleLiveStop).Methods("POST")
	api.HandleFunc("/backtest/live/status", s.handleLiveStatus).Methods("GET")
	api.HandleFunc("/backtest/live/active", s.handleLiveActive).Methods("GET")
	api.HandleFunc("/backtest/live-trades", s.handleLiveTrades).Methods("GET")
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "whalewatch-engine",
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}

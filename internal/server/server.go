// Package server hosts the REST and websocket API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/openpredict/ammd/internal/crypto"
	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/server/handler"
	"github.com/openpredict/ammd/internal/server/middleware"
	"github.com/openpredict/ammd/internal/server/ws"
)

// Config carries the server-level settings.
type Config struct {
	Port        int
	CORSOrigins []string
	AdminAuth   *crypto.HMACAuth // nil disables admin auth
	RateLimiter domain.RateLimiter
	RateLimit   int
	RateWindow  time.Duration
}

// Handlers aggregates the route handlers the server mounts.
type Handlers struct {
	Health     *handler.HealthHandler
	Market     *handler.MarketHandler
	Trade      *handler.TradeHandler
	Transfer   *handler.TransferHandler
	Settlement *handler.SettlementHandler
	Callback   *handler.CallbackHandler
	Storage    *handler.StorageHandler
	Admin      *handler.AdminHandler
	Hub        *ws.Hub
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(cfg Config, h Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health.Health)

	mux.HandleFunc("GET /api/markets", h.Market.ListMarkets)
	mux.HandleFunc("POST /api/markets", h.Market.CreateMarket)
	mux.HandleFunc("GET /api/markets/{id}", h.Market.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/pool", h.Market.GetPool)
	mux.HandleFunc("GET /api/markets/{id}/prices", h.Market.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/balances/{account}", h.Market.GetBalances)
	mux.HandleFunc("GET /api/markets/{id}/events", h.Market.ListEvents)

	mux.HandleFunc("POST /api/markets/{id}/sell", h.Trade.Sell)
	mux.HandleFunc("POST /api/markets/{id}/exit", h.Trade.ExitLiquidity)
	mux.HandleFunc("POST /api/markets/{id}/fees/withdraw", h.Trade.WithdrawFees)
	mux.HandleFunc("POST /api/markets/{id}/redeem", h.Trade.RedeemCollateral)

	mux.HandleFunc("POST /api/markets/{id}/claim", h.Settlement.ClaimEarnings)
	mux.HandleFunc("POST /api/markets/{id}/refund/retry", h.Settlement.RetryRefund)

	mux.HandleFunc("POST /api/transfers", h.Transfer.HandleTransfer)
	mux.HandleFunc("POST /api/oracle/callbacks", h.Callback.Resolve)

	mux.HandleFunc("GET /api/storage/{account}", h.Storage.GetBalance)
	mux.HandleFunc("POST /api/storage/deposit", h.Storage.Deposit)
	mux.HandleFunc("POST /api/storage/withdraw", h.Storage.Withdraw)

	if h.Hub != nil {
		mux.Handle("GET /ws", h.Hub)
	}

	adminAuth := middleware.AdminAuth(cfg.AdminAuth)
	admin := func(hf http.HandlerFunc) http.Handler { return adminAuth(hf) }
	mux.Handle("GET /api/admin/status", admin(h.Admin.Status))
	mux.Handle("POST /api/admin/pause", admin(h.Admin.Pause))
	mux.Handle("POST /api/admin/resume", admin(h.Admin.Resume))
	mux.Handle("POST /api/admin/markets/{id}/enable", admin(h.Admin.EnableMarket))
	mux.Handle("POST /api/admin/markets/{id}/disable", admin(h.Admin.DisableMarket))
	mux.Handle("POST /api/admin/markets/{id}/archive", admin(h.Admin.ArchiveMarket))
	mux.Handle("POST /api/admin/archive/events", admin(h.Admin.ArchiveEvents))

	var root http.Handler = mux
	root = middleware.RateLimit(cfg.RateLimiter, cfg.RateLimit, cfg.RateWindow, logger)(root)
	root = middleware.Logging(logger)(root)
	root = middleware.CORS(cfg.CORSOrigins)(root)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving requests until the listener fails or Shutdown is
// called.
func (s *Server) Start() error {
	s.logger.Info("server: listening", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	return s.httpServer.Shutdown(ctx)
}

package app

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openpredict/ammd/internal/crypto"
	"github.com/openpredict/ammd/internal/ledger"
	"github.com/openpredict/ammd/internal/numeric"
	"github.com/openpredict/ammd/internal/server"
	"github.com/openpredict/ammd/internal/server/handler"
	"github.com/openpredict/ammd/internal/server/ws"
	"github.com/openpredict/ammd/internal/service"
)

const shutdownTimeout = 10 * time.Second

// services bundles the domain services a mode runs.
type services struct {
	pause      *service.Switch
	markets    *service.MarketService
	trading    *service.TradingService
	settlement *service.SettlementService
	storage    *service.StorageService
	gateway    *service.TransferGateway
}

func (a *App) buildServices(deps *Dependencies) *services {
	cfg := a.cfg
	accountant := ledger.New(numeric.FromUint64(cfg.Amm.StoragePricePerByte))
	pause := service.NewSwitch()
	lockTTL := cfg.Redis.LockTTL.Duration

	markets := service.NewMarketService(
		deps.Store, deps.MarketCache, deps.SignalBus, deps.Tokens,
		accountant, pause,
		cfg.Amm.CollateralWhitelist, cfg.Amm.MarketCreators,
		a.logger,
	)
	trading := service.NewTradingService(
		deps.Store, deps.LockManager, deps.MarketCache, deps.PriceCache,
		deps.SignalBus, deps.Tokens, accountant, pause, lockTTL,
		a.logger,
	)
	settlement := service.NewSettlementService(
		deps.Store, deps.LockManager, deps.MarketCache, deps.PriceCache,
		deps.SignalBus, deps.Tokens, deps.Oracle, deps.Archiver,
		accountant, pause, lockTTL,
		a.logger,
	)
	storage := service.NewStorageService(
		deps.Store, accountant, deps.Tokens, pause,
		cfg.Amm.StorageToken,
		a.logger,
	)
	gateway := service.NewTransferGateway(markets, trading, settlement, a.logger)

	return &services{
		pause:      pause,
		markets:    markets,
		trading:    trading,
		settlement: settlement,
		storage:    storage,
		gateway:    gateway,
	}
}

func (a *App) buildServer(deps *Dependencies, svcs *services, hub *ws.Hub) *server.Server {
	cfg := a.cfg

	var adminAuth *crypto.HMACAuth
	if cfg.Server.AdminAPIKey != "" {
		adminAuth = &crypto.HMACAuth{
			Key:    cfg.Server.AdminAPIKey,
			Secret: cfg.Server.AdminAPISecret,
		}
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(),
		Market:     handler.NewMarketHandler(svcs.markets, a.logger),
		Trade:      handler.NewTradeHandler(svcs.trading, a.logger),
		Transfer:   handler.NewTransferHandler(svcs.gateway, a.logger),
		Settlement: handler.NewSettlementHandler(svcs.settlement, a.logger),
		Callback:   handler.NewCallbackHandler(deps.SignalBus, service.SettlementStream, a.logger),
		Storage:    handler.NewStorageHandler(svcs.storage, a.logger),
		Admin:      handler.NewAdminHandler(svcs.pause, svcs.markets, deps.Archiver, a.logger),
		Hub:        hub,
	}

	return server.NewServer(server.Config{
		Port:        cfg.Server.Port,
		CORSOrigins: cfg.Server.CORSOrigins,
		AdminAuth:   adminAuth,
		RateLimiter: deps.RateLimiter,
		RateLimit:   cfg.Server.RateLimit,
		RateWindow:  cfg.Server.RateWindow.Duration,
	}, handlers, a.logger)
}

// ServerMode runs the REST API and websocket hub without the settlement
// consumer. Oracle callbacks are still accepted and queued; a settlement
// instance drains them.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)
	hub := ws.NewHub(deps.SignalBus, a.logger)
	srv := a.buildServer(deps, svcs, hub)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(ctx, hub.Run(ctx)) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

// SettlementMode runs only the oracle callback consumer. It pairs with one
// or more server instances sharing the same Redis stream.
func (a *App) SettlementMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)
	return ignoreCancel(ctx, svcs.settlement.Run(ctx, a.cfg.Oracle.PollInterval.Duration))
}

// FullMode runs the API server, websocket hub, and settlement consumer in
// one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	svcs := a.buildServices(deps)
	hub := ws.NewHub(deps.SignalBus, a.logger)
	srv := a.buildServer(deps, svcs, hub)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCancel(ctx, hub.Run(ctx)) })
	g.Go(func() error {
		return ignoreCancel(ctx, svcs.settlement.Run(ctx, a.cfg.Oracle.PollInterval.Duration))
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return g.Wait()
}

// ignoreCancel collapses context cancellation into a clean exit so that a
// normal shutdown does not surface as an error.
func ignoreCancel(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return nil
	}
	return err
}

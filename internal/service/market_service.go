package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/ledger"
	"github.com/openpredict/ammd/internal/pool"
)

// MarketService handles market creation, lifecycle flags and read queries.
type MarketService struct {
	store     domain.Ledger
	cache     domain.MarketCache
	bus       domain.SignalBus
	tokens    domain.TokenGateway
	storage   *ledger.Accountant
	pause     *Switch
	whitelist map[string]bool
	creators  map[string]bool
	now       func() domain.Millis
	logger    *slog.Logger
}

// NewMarketService creates a MarketService. Collateral tokens outside the
// whitelist are refused at market creation; an empty whitelist accepts any
// token the gateway can resolve. An empty creators list means open market
// creation.
func NewMarketService(
	store domain.Ledger,
	cache domain.MarketCache,
	bus domain.SignalBus,
	tokens domain.TokenGateway,
	storage *ledger.Accountant,
	pause *Switch,
	collateralWhitelist []string,
	marketCreators []string,
	logger *slog.Logger,
) *MarketService {
	wl := make(map[string]bool, len(collateralWhitelist))
	for _, t := range collateralWhitelist {
		wl[t] = true
	}
	cr := make(map[string]bool, len(marketCreators))
	for _, c := range marketCreators {
		cr[c] = true
	}
	return &MarketService{
		store:     store,
		cache:     cache,
		bus:       bus,
		tokens:    tokens,
		storage:   storage,
		pause:     pause,
		whitelist: wl,
		creators:  cr,
		now:       domain.NowMillis,
		logger:    logger,
	}
}

const (
	minOutcomes = 2
	maxOutcomes = 8
)

// Create validates and persists a new market. The market is enabled only
// once construction fully succeeds, so it is never tradable half-built.
func (s *MarketService) Create(ctx context.Context, creator string, args domain.CreateMarketArgs) (uint64, error) {
	if s.pause.Paused() {
		return 0, domain.ErrPaused
	}
	now := s.now()

	if len(s.creators) > 0 && !s.creators[creator] {
		return 0, fmt.Errorf("market_service: creator %q: %w", creator, domain.ErrUnauthorized)
	}
	if len(s.whitelist) > 0 && !s.whitelist[args.CollateralToken] {
		return 0, fmt.Errorf("market_service: %q: %w", args.CollateralToken, domain.ErrInvalidCollateral)
	}
	if n := len(args.OutcomeTags); n < minOutcomes || n > maxOutcomes {
		return 0, fmt.Errorf("market_service: %d outcomes: %w", len(args.OutcomeTags), domain.ErrInvalidTagCount)
	}
	if args.EndTime <= now {
		return 0, fmt.Errorf("market_service: %w", domain.ErrInvalidEndTime)
	}
	if args.ResolutionTime < args.EndTime {
		return 0, fmt.Errorf("market_service: %w", domain.ErrInvalidResolutionTime)
	}
	if args.IsScalar {
		if len(args.OutcomeTags) != 2 {
			return 0, fmt.Errorf("market_service: scalar market with %d outcomes: %w", len(args.OutcomeTags), domain.ErrInvalidTagCount)
		}
		if args.Scalar == nil || !args.Scalar.LowerBound.Lt(args.Scalar.UpperBound) {
			return 0, fmt.Errorf("market_service: %w", domain.ErrInvalidScalarBounds)
		}
	}

	info, err := s.tokens.Info(ctx, args.CollateralToken)
	if err != nil {
		return 0, fmt.Errorf("market_service: collateral metadata: %w", err)
	}

	p, err := pool.New(0, args.CollateralToken, info.Decimals, args.SwapFee, uint16(len(args.OutcomeTags)))
	if err != nil {
		return 0, fmt.Errorf("market_service: %w", err)
	}

	m := &domain.Market{
		Description:     args.Description,
		ExtraInfo:       args.ExtraInfo,
		OutcomeTags:     args.OutcomeTags,
		Categories:      args.Categories,
		Sources:         args.Sources,
		EndTime:         args.EndTime,
		ResolutionTime:  args.ResolutionTime,
		ChallengePeriod: args.ChallengePeriod,
		Pool:            p,
		IsScalar:        args.IsScalar,
		Scalar:          args.Scalar,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	id, err := s.store.CreateMarket(ctx, m)
	if err != nil {
		return 0, fmt.Errorf("market_service: create market: %w", err)
	}

	// Enable now that the record exists, charging the creator for the
	// bytes the market occupies.
	m.Enabled = true
	mut := domain.Mutation{Market: m}
	after, err := measureFootprint(s.storage, m, nil, nil)
	if err != nil {
		return 0, fmt.Errorf("market_service: %w", err)
	}
	if err := settleStorage(ctx, s.store, s.storage, creator, 0, after, &mut); err != nil {
		return 0, fmt.Errorf("market_service: %w", err)
	}
	mut.Events = append(mut.Events,
		s.event(id, domain.EventMarketCreated, creator, map[string]any{"description": args.Description}),
		s.event(id, domain.EventMarketEnabled, creator, nil),
	)
	if err := s.store.Commit(ctx, mut); err != nil {
		return 0, fmt.Errorf("market_service: enable market %d: %w", id, err)
	}

	s.publishEvents(ctx, mut.Events)
	s.logger.InfoContext(ctx, "market_service: market created",
		slog.Uint64("market_id", id),
		slog.String("creator", creator),
		slog.Int("outcomes", len(args.OutcomeTags)),
		slog.Bool("scalar", args.IsScalar),
	)
	return id, nil
}

// SetEnabled flips the trading gate on a market.
func (s *MarketService) SetEnabled(ctx context.Context, id uint64, enabled bool) error {
	if s.pause.Paused() {
		return domain.ErrPaused
	}
	m, err := s.store.GetMarket(ctx, id)
	if err != nil {
		return fmt.Errorf("market_service: get market %d: %w", id, err)
	}
	if m.Finalized {
		return fmt.Errorf("market_service: %w", domain.ErrMarketFinalized)
	}
	if m.Enabled == enabled {
		return nil
	}

	m.Enabled = enabled
	m.UpdatedAt = s.now()
	kind := domain.EventMarketEnabled
	if !enabled {
		kind = domain.EventMarketDisabled
	}
	mut := domain.Mutation{
		Market: m,
		Events: []domain.Event{s.event(id, kind, "", nil)},
	}
	if err := s.store.Commit(ctx, mut); err != nil {
		return fmt.Errorf("market_service: set enabled %d: %w", id, err)
	}

	s.invalidate(ctx, id)
	s.publishEvents(ctx, mut.Events)
	return nil
}

// Get retrieves a market, cache first.
func (s *MarketService) Get(ctx context.Context, id uint64) (*domain.Market, error) {
	if m, err := s.cache.Get(ctx, id); err == nil {
		return m, nil
	}

	m, err := s.store.GetMarket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("market_service: get market %d: %w", id, err)
	}
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "market_service: cache set failed",
			slog.Uint64("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// List returns markets with pagination and optional filters.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	ms, err := s.store.ListMarkets(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return ms, nil
}

// Count returns the total number of markets ever created.
func (s *MarketService) Count(ctx context.Context) (int64, error) {
	n, err := s.store.CountMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: count markets: %w", err)
	}
	return n, nil
}

// PoolBalances returns the pool's outcome reserves.
func (s *MarketService) PoolBalances(ctx context.Context, id uint64) ([]domain.U128, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.Pool.Reserves, nil
}

// SpotPrice returns the fee-inclusive marginal price of an outcome.
func (s *MarketService) SpotPrice(ctx context.Context, id uint64, outcome uint16) (domain.U128, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return domain.U128{}, err
	}
	return pool.SpotPrice(&m.Pool, outcome)
}

// SpotPriceSansFee returns the marginal price of an outcome without fee.
func (s *MarketService) SpotPriceSansFee(ctx context.Context, id uint64, outcome uint16) (domain.U128, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return domain.U128{}, err
	}
	return pool.SpotPriceSansFee(&m.Pool, outcome)
}

// ShareBalance returns an account's balance of one outcome token.
func (s *MarketService) ShareBalance(ctx context.Context, id uint64, outcome uint16, account string) (domain.U128, error) {
	bal, err := s.store.GetShareBalance(ctx, id, outcome, account)
	if err != nil {
		return domain.U128{}, fmt.Errorf("market_service: share balance: %w", err)
	}
	return bal, nil
}

// PoolTokenBalance returns an account's LP token balance.
func (s *MarketService) PoolTokenBalance(ctx context.Context, id uint64, account string) (domain.U128, error) {
	lb, err := s.store.GetLPBalance(ctx, id, account)
	if err != nil {
		return domain.U128{}, fmt.Errorf("market_service: lp balance: %w", err)
	}
	return lb.Balance, nil
}

// WithdrawableFees returns the fees an LP could withdraw right now.
func (s *MarketService) WithdrawableFees(ctx context.Context, id uint64, account string) (domain.U128, error) {
	m, err := s.Get(ctx, id)
	if err != nil {
		return domain.U128{}, err
	}
	lb, err := s.store.GetLPBalance(ctx, id, account)
	if err != nil {
		return domain.U128{}, fmt.Errorf("market_service: lp balance: %w", err)
	}
	return pool.WithdrawableFees(&m.Pool, lb)
}

// ShareBalances returns an account's balance for every outcome of a market.
func (s *MarketService) ShareBalances(ctx context.Context, id uint64, account string) ([]domain.ShareBalance, error) {
	bals, err := s.store.ListShareBalances(ctx, id, account)
	if err != nil {
		return nil, fmt.Errorf("market_service: share balances: %w", err)
	}
	return bals, nil
}

// Events returns the event log of a market in chronological order.
func (s *MarketService) Events(ctx context.Context, id uint64, opts domain.ListOpts) ([]domain.Event, error) {
	evs, err := s.store.ListEvents(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list events: %w", err)
	}
	return evs, nil
}

func (s *MarketService) event(marketID uint64, kind, account string, payload map[string]any) domain.Event {
	return domain.Event{
		ID:       uuid.NewString(),
		MarketID: marketID,
		Kind:     kind,
		Account:  account,
		Payload:  payload,
		At:       s.now(),
	}
}

func (s *MarketService) invalidate(ctx context.Context, id uint64) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (s *MarketService) publishEvents(ctx context.Context, events []domain.Event) {
	publishEvents(ctx, s.bus, s.logger, events)
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/ledger"
	"github.com/openpredict/ammd/internal/numeric"
	"github.com/openpredict/ammd/internal/pool"
)

// TradingService executes swaps and liquidity operations. Every mutating
// call runs under the market's distributed lock so concurrent trades always
// price against committed reserves.
type TradingService struct {
	store   domain.Ledger
	locks   domain.LockManager
	cache   domain.MarketCache
	prices  domain.PriceCache
	bus     domain.SignalBus
	tokens  domain.TokenGateway
	storage *ledger.Accountant
	pause   *Switch
	lockTTL time.Duration
	now     func() domain.Millis
	logger  *slog.Logger
}

// NewTradingService creates a TradingService with all required dependencies.
func NewTradingService(
	store domain.Ledger,
	locks domain.LockManager,
	cache domain.MarketCache,
	prices domain.PriceCache,
	bus domain.SignalBus,
	tokens domain.TokenGateway,
	storage *ledger.Accountant,
	pause *Switch,
	lockTTL time.Duration,
	logger *slog.Logger,
) *TradingService {
	return &TradingService{
		store:   store,
		locks:   locks,
		cache:   cache,
		prices:  prices,
		bus:     bus,
		tokens:  tokens,
		storage: storage,
		pause:   pause,
		lockTTL: lockTTL,
		now:     domain.NowMillis,
		logger:  logger,
	}
}

func (s *TradingService) lockMarket(ctx context.Context, id uint64) (func(), error) {
	unlock, err := s.locks.Acquire(ctx, marketLockPrefix+strconv.FormatUint(id, 10), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("trading_service: lock market %d: %w", id, err)
	}
	return unlock, nil
}

// tradableMarket loads a market under the caller's lock and checks it
// accepts the deposit.
func (s *TradingService) tradableMarket(ctx context.Context, id uint64, token string) (*domain.Market, error) {
	m, err := s.store.GetMarket(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("trading_service: get market %d: %w", id, err)
	}
	if token != m.Pool.CollateralToken {
		return nil, fmt.Errorf("trading_service: deposit in %q: %w", token, domain.ErrInvalidCollateral)
	}
	now := s.now()
	switch {
	case m.Finalized:
		return nil, domain.ErrMarketFinalized
	case !m.Enabled:
		return nil, domain.ErrMarketNotEnabled
	case now >= m.EndTime:
		return nil, domain.ErrTradingClosed
	}
	return m, nil
}

// Buy swaps an incoming collateral deposit into shares of the target
// outcome. Funded exclusively through the transfer gateway.
func (s *TradingService) Buy(ctx context.Context, sender, token string, amount domain.U128, args domain.BuyArgs) error {
	if s.pause.Paused() {
		return domain.ErrPaused
	}
	if amount.IsZero() {
		return domain.ErrZeroAmount
	}
	unlock, err := s.lockMarket(ctx, args.MarketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := s.tradableMarket(ctx, args.MarketID, token)
	if err != nil {
		return err
	}

	held, err := s.store.GetShareBalance(ctx, m.ID, args.OutcomeTarget, sender)
	if err != nil {
		return fmt.Errorf("trading_service: share balance: %w", err)
	}
	before, err := measureFootprint(s.storage, m,
		[]domain.ShareBalance{{MarketID: m.ID, Outcome: args.OutcomeTarget, Account: sender, Balance: held}}, nil)
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}

	res, err := pool.Buy(&m.Pool, amount, args.OutcomeTarget, args.MinSharesOut)
	if err != nil {
		return fmt.Errorf("trading_service: buy market %d: %w", m.ID, err)
	}
	newHeld, err := held.Add(res.SharesOut)
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}

	m.UpdatedAt = s.now()
	row := domain.ShareBalance{MarketID: m.ID, Outcome: args.OutcomeTarget, Account: sender, Balance: newHeld}
	mut := domain.Mutation{Market: m, Shares: []domain.ShareBalance{row}}
	after, err := measureFootprint(s.storage, m, []domain.ShareBalance{row}, nil)
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	if err := settleStorage(ctx, s.store, s.storage, sender, before, after, &mut); err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	mut.Events = append(mut.Events, s.event(m.ID, domain.EventBuy, sender, map[string]any{
		"outcome":    args.OutcomeTarget,
		"amount_in":  amount.String(),
		"shares_out": res.SharesOut.String(),
		"fee":        res.Fee.String(),
	}))

	if err := s.store.Commit(ctx, mut); err != nil {
		return fmt.Errorf("trading_service: commit buy: %w", err)
	}

	s.afterTrade(ctx, m, mut.Events)
	return nil
}

// Sell swaps outcome shares back into exactly amountOut collateral, which
// is transferred to the seller.
func (s *TradingService) Sell(ctx context.Context, sender string, marketID uint64, amountOut domain.U128, target uint16, maxSharesIn domain.U128) error {
	if s.pause.Paused() {
		return domain.ErrPaused
	}
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("trading_service: get market %d: %w", marketID, err)
	}
	if !m.CanTrade(s.now()) {
		if m.Finalized {
			return domain.ErrMarketFinalized
		}
		return domain.ErrTradingClosed
	}

	held, err := s.store.GetShareBalance(ctx, marketID, target, sender)
	if err != nil {
		return fmt.Errorf("trading_service: share balance: %w", err)
	}
	before, err := measureFootprint(s.storage, m,
		[]domain.ShareBalance{{MarketID: marketID, Outcome: target, Account: sender, Balance: held}}, nil)
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}

	res, err := pool.Sell(&m.Pool, amountOut, target, maxSharesIn)
	if err != nil {
		return fmt.Errorf("trading_service: sell market %d: %w", marketID, err)
	}
	if held.Lt(res.SharesIn) {
		return fmt.Errorf("trading_service: hold %s, need %s: %w", held, res.SharesIn, domain.ErrInsufficientShares)
	}
	newHeld, err := held.Sub(res.SharesIn)
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}

	m.UpdatedAt = s.now()
	row := domain.ShareBalance{MarketID: marketID, Outcome: target, Account: sender, Balance: newHeld}
	mut := domain.Mutation{Market: m, Shares: []domain.ShareBalance{row}}
	after, err := measureFootprint(s.storage, m, []domain.ShareBalance{row}, nil)
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	if err := settleStorage(ctx, s.store, s.storage, sender, before, after, &mut); err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	mut.Events = append(mut.Events, s.event(marketID, domain.EventSell, sender, map[string]any{
		"outcome":    target,
		"amount_out": amountOut.String(),
		"shares_in":  res.SharesIn.String(),
		"fee":        res.Fee.String(),
	}))

	if err := s.store.Commit(ctx, mut); err != nil {
		return fmt.Errorf("trading_service: commit sell: %w", err)
	}

	s.payout(ctx, m.Pool.CollateralToken, sender, amountOut, "sell proceeds")
	s.afterTrade(ctx, m, mut.Events)
	return nil
}

// AddLiquidity deposits collateral into the pool. Funded exclusively
// through the transfer gateway.
func (s *TradingService) AddLiquidity(ctx context.Context, sender, token string, amount domain.U128, args domain.AddLiquidityArgs) error {
	if s.pause.Paused() {
		return domain.ErrPaused
	}
	if amount.IsZero() {
		return domain.ErrZeroAmount
	}
	unlock, err := s.lockMarket(ctx, args.MarketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := s.tradableMarket(ctx, args.MarketID, token)
	if err != nil {
		return err
	}

	lb, err := s.store.GetLPBalance(ctx, m.ID, sender)
	if err != nil {
		return fmt.Errorf("trading_service: lp balance: %w", err)
	}
	shares, err := s.store.ListShareBalances(ctx, m.ID, sender)
	if err != nil {
		return fmt.Errorf("trading_service: share balances: %w", err)
	}
	before, err := measureFootprint(s.storage, m, shares, []domain.LPBalance{lb})
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}

	res, err := pool.AddLiquidity(&m.Pool, amount, args.WeightIndication)
	if err != nil {
		return fmt.Errorf("trading_service: add liquidity market %d: %w", m.ID, err)
	}

	if lb.Balance, err = lb.Balance.Add(res.Minted); err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	if lb.WithdrawnFees, err = lb.WithdrawnFees.Add(res.IneligibleFees); err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	for i := range shares {
		if res.Leftover[i].IsZero() {
			continue
		}
		if shares[i].Balance, err = shares[i].Balance.Add(res.Leftover[i]); err != nil {
			return fmt.Errorf("trading_service: %w", err)
		}
	}

	m.UpdatedAt = s.now()
	mut := domain.Mutation{Market: m, Shares: shares, LP: []domain.LPBalance{lb}}
	after, err := measureFootprint(s.storage, m, shares, []domain.LPBalance{lb})
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	if err := settleStorage(ctx, s.store, s.storage, sender, before, after, &mut); err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	mut.Events = append(mut.Events, s.event(m.ID, domain.EventLiquidityAdded, sender, map[string]any{
		"amount": amount.String(),
		"minted": res.Minted.String(),
	}))

	if err := s.store.Commit(ctx, mut); err != nil {
		return fmt.Errorf("trading_service: commit add liquidity: %w", err)
	}

	s.afterTrade(ctx, m, mut.Events)
	return nil
}

// ExitLiquidity burns pool tokens for a pro-rata slice of the reserves plus
// any accrued fees. Allowed at any point in the market lifecycle; after
// finalization the received shares feed ClaimEarnings.
func (s *TradingService) ExitLiquidity(ctx context.Context, sender string, marketID uint64, totalIn domain.U128) error {
	if s.pause.Paused() {
		return domain.ErrPaused
	}
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("trading_service: get market %d: %w", marketID, err)
	}

	lb, err := s.store.GetLPBalance(ctx, marketID, sender)
	if err != nil {
		return fmt.Errorf("trading_service: lp balance: %w", err)
	}
	shares, err := s.store.ListShareBalances(ctx, marketID, sender)
	if err != nil {
		return fmt.Errorf("trading_service: share balances: %w", err)
	}
	before, err := measureFootprint(s.storage, m, shares, []domain.LPBalance{lb})
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}

	res, err := pool.ExitLiquidity(&m.Pool, lb, totalIn)
	if err != nil {
		return fmt.Errorf("trading_service: exit liquidity market %d: %w", marketID, err)
	}
	if lb.Balance, err = lb.Balance.Sub(totalIn); err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	lb.WithdrawnFees = res.WithdrawnFees
	for i := range shares {
		if shares[i].Balance, err = shares[i].Balance.Add(res.SharesOut[i]); err != nil {
			return fmt.Errorf("trading_service: %w", err)
		}
	}

	m.UpdatedAt = s.now()
	mut := domain.Mutation{Market: m, Shares: shares, LP: []domain.LPBalance{lb}}
	after, err := measureFootprint(s.storage, m, shares, []domain.LPBalance{lb})
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	if err := settleStorage(ctx, s.store, s.storage, sender, before, after, &mut); err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	mut.Events = append(mut.Events, s.event(marketID, domain.EventLiquidityExited, sender, map[string]any{
		"burned":    totalIn.String(),
		"fees_paid": res.FeesPaid.String(),
	}))

	if err := s.store.Commit(ctx, mut); err != nil {
		return fmt.Errorf("trading_service: commit exit liquidity: %w", err)
	}

	if !res.FeesPaid.IsZero() {
		s.payout(ctx, m.Pool.CollateralToken, sender, res.FeesPaid, "lp fees")
	}
	s.afterTrade(ctx, m, mut.Events)
	return nil
}

// WithdrawFees pays out an LP's accrued fees without touching its pool
// tokens.
func (s *TradingService) WithdrawFees(ctx context.Context, sender string, marketID uint64) (domain.U128, error) {
	if s.pause.Paused() {
		return numeric.Zero(), domain.ErrPaused
	}
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return numeric.Zero(), err
	}
	defer unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("trading_service: get market %d: %w", marketID, err)
	}
	lb, err := s.store.GetLPBalance(ctx, marketID, sender)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("trading_service: lp balance: %w", err)
	}

	paid, withdrawn, err := pool.WithdrawFees(&m.Pool, lb)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("trading_service: withdraw fees market %d: %w", marketID, err)
	}
	if paid.IsZero() {
		return numeric.Zero(), domain.ErrNothingToClaim
	}
	lb.WithdrawnFees = withdrawn

	m.UpdatedAt = s.now()
	mut := domain.Mutation{
		Market: m,
		LP:     []domain.LPBalance{lb},
		Events: []domain.Event{s.event(marketID, domain.EventFeesWithdrawn, sender, map[string]any{
			"amount": paid.String(),
		})},
	}
	if err := s.store.Commit(ctx, mut); err != nil {
		return numeric.Zero(), fmt.Errorf("trading_service: commit withdraw fees: %w", err)
	}

	s.payout(ctx, m.Pool.CollateralToken, sender, paid, "lp fees")
	s.afterTrade(ctx, m, mut.Events)
	return paid, nil
}

// RedeemCollateral burns an equal amount of every outcome share for the
// same amount of collateral, independent of prices. Available until the
// market finalizes; afterwards ClaimEarnings values shares instead.
func (s *TradingService) RedeemCollateral(ctx context.Context, sender string, marketID uint64, amount domain.U128) error {
	if s.pause.Paused() {
		return domain.ErrPaused
	}
	if amount.IsZero() {
		return domain.ErrZeroAmount
	}
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("trading_service: get market %d: %w", marketID, err)
	}
	if m.Finalized {
		return domain.ErrMarketFinalized
	}

	shares, err := s.store.ListShareBalances(ctx, marketID, sender)
	if err != nil {
		return fmt.Errorf("trading_service: share balances: %w", err)
	}
	before, err := measureFootprint(s.storage, m, shares, nil)
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	for i := range shares {
		if shares[i].Balance.Lt(amount) {
			return fmt.Errorf("trading_service: outcome %d holds %s: %w", i, shares[i].Balance, domain.ErrInsufficientShares)
		}
		if shares[i].Balance, err = shares[i].Balance.Sub(amount); err != nil {
			return fmt.Errorf("trading_service: %w", err)
		}
	}

	m.UpdatedAt = s.now()
	mut := domain.Mutation{Market: m, Shares: shares}
	after, err := measureFootprint(s.storage, m, shares, nil)
	if err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	if err := settleStorage(ctx, s.store, s.storage, sender, before, after, &mut); err != nil {
		return fmt.Errorf("trading_service: %w", err)
	}
	mut.Events = append(mut.Events, s.event(marketID, domain.EventRedeemed, sender, map[string]any{
		"amount": amount.String(),
	}))

	if err := s.store.Commit(ctx, mut); err != nil {
		return fmt.Errorf("trading_service: commit redeem: %w", err)
	}

	s.payout(ctx, m.Pool.CollateralToken, sender, amount, "redeem")
	s.afterTrade(ctx, m, mut.Events)
	return nil
}

// payout transfers collateral out. The ledger commit is the source of
// truth; a failed transfer is surfaced to operators through the log and the
// event stream rather than by rolling back state.
func (s *TradingService) payout(ctx context.Context, token, to string, amount domain.U128, reason string) {
	if err := s.tokens.Transfer(ctx, token, to, amount); err != nil {
		s.logger.ErrorContext(ctx, "trading_service: payout transfer failed",
			slog.String("token", token),
			slog.String("to", to),
			slog.String("amount", amount.String()),
			slog.String("reason", reason),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradingService) afterTrade(ctx context.Context, m *domain.Market, events []domain.Event) {
	s.refreshPrices(ctx, m)
	if err := s.cache.Invalidate(ctx, m.ID); err != nil {
		s.logger.WarnContext(ctx, "trading_service: cache invalidate failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	publishEvents(ctx, s.bus, s.logger, events)
}

func (s *TradingService) refreshPrices(ctx context.Context, m *domain.Market) {
	if !m.Pool.Seeded() {
		return
	}
	prices := make([]domain.U128, len(m.Pool.Reserves))
	for i := range prices {
		p, err := pool.SpotPriceSansFee(&m.Pool, uint16(i))
		if err != nil {
			s.logger.WarnContext(ctx, "trading_service: price refresh failed",
				slog.Uint64("market_id", m.ID),
				slog.Int("outcome", i),
				slog.String("error", err.Error()),
			)
			return
		}
		prices[i] = p
	}
	if err := s.prices.SetPrices(ctx, m.ID, prices, s.now().Time()); err != nil {
		s.logger.WarnContext(ctx, "trading_service: price cache set failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *TradingService) event(marketID uint64, kind, account string, payload map[string]any) domain.Event {
	return domain.Event{
		ID:       uuid.NewString(),
		MarketID: marketID,
		Kind:     kind,
		Account:  account,
		Payload:  payload,
		At:       s.now(),
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
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

// SettlementService drives the resolution lifecycle: accepting the validity
// bond, creating the oracle data request, finalizing on the oracle's answer
// and paying out claims.
type SettlementService struct {
	store    domain.Ledger
	locks    domain.LockManager
	cache    domain.MarketCache
	prices   domain.PriceCache
	bus      domain.SignalBus
	tokens   domain.TokenGateway
	oracle   domain.OracleGateway
	archiver domain.Archiver
	storage  *ledger.Accountant
	pause    *Switch
	lockTTL  time.Duration
	now      func() domain.Millis
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService with all required
// dependencies. The archiver may be nil when cold storage is disabled.
func NewSettlementService(
	store domain.Ledger,
	locks domain.LockManager,
	cache domain.MarketCache,
	prices domain.PriceCache,
	bus domain.SignalBus,
	tokens domain.TokenGateway,
	oracle domain.OracleGateway,
	archiver domain.Archiver,
	storage *ledger.Accountant,
	pause *Switch,
	lockTTL time.Duration,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		store:    store,
		locks:    locks,
		cache:    cache,
		prices:   prices,
		bus:      bus,
		tokens:   tokens,
		oracle:   oracle,
		archiver: archiver,
		storage:  storage,
		pause:    pause,
		lockTTL:  lockTTL,
		now:      domain.NowMillis,
		logger:   logger,
	}
}

func (s *SettlementService) lockMarket(ctx context.Context, id uint64) (func(), error) {
	unlock, err := s.locks.Acquire(ctx, marketLockPrefix+strconv.FormatUint(id, 10), s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: lock market %d: %w", id, err)
	}
	return unlock, nil
}

// CreateDataRequest accepts a bond deposit and opens the oracle data
// request for a market past its resolution time. The request survives a
// failed excess refund: the refund is recorded and retried instead of
// unwinding the oracle side.
func (s *SettlementService) CreateDataRequest(ctx context.Context, sender, token string, amount domain.U128, args domain.CreateDataRequestArgs) error {
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

	m, err := s.store.GetMarket(ctx, args.MarketID)
	if err != nil {
		return fmt.Errorf("settlement_service: get market %d: %w", args.MarketID, err)
	}
	switch m.State(s.now()) {
	case domain.StateOpen:
		return domain.ErrResolutionTimeNotReached
	case domain.StateDataRequestPending:
		return domain.ErrRequestPending
	case domain.StateDataRequestCreated:
		return domain.ErrRequestCreated
	case domain.StateFinalized:
		return domain.ErrAlreadyFinalized
	}

	// Mark the fetch in flight before any remote call so a concurrent
	// deposit is refused instead of double-funding the request.
	m.PendingRequestID = uuid.NewString()
	m.UpdatedAt = s.now()
	if err := s.store.Commit(ctx, domain.Mutation{Market: m}); err != nil {
		return fmt.Errorf("settlement_service: mark pending: %w", err)
	}

	cfg, err := s.oracle.FetchConfig(ctx)
	if err != nil {
		s.clearPending(ctx, m)
		s.logger.WarnContext(ctx, "settlement_service: oracle config fetch failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %v", domain.ErrOracleConfigFetchFailed, err)
	}
	if token != cfg.BondToken {
		s.clearPending(ctx, m)
		return fmt.Errorf("settlement_service: bond in %q, oracle wants %q: %w", token, cfg.BondToken, domain.ErrInvalidPaymentToken)
	}
	if amount.Lt(cfg.ValidityBond) {
		s.clearPending(ctx, m)
		return fmt.Errorf("settlement_service: attached %s, bond %s: %w", amount, cfg.ValidityBond, domain.ErrInsufficientBond)
	}

	bondUsed, err := s.oracle.CreateRequest(ctx, cfg.ValidityBond, s.requestArgs(m, sender))
	if err != nil {
		s.clearPending(ctx, m)
		return fmt.Errorf("settlement_service: create request market %d: %w", m.ID, err)
	}

	now := s.now()
	m.PendingRequestID = ""
	m.DataRequest = &domain.DataRequestLink{
		PaymentToken: token,
		Creator:      sender,
		ValidityBond: bondUsed,
		CreatedAt:    now,
	}
	m.UpdatedAt = now
	mut := domain.Mutation{Market: m}
	mut.Events = append(mut.Events,
		s.event(m.ID, domain.EventRequestCreated, sender, map[string]any{"bond": bondUsed.String()}),
		s.transitionEvent(m.ID, domain.StateDataRequestCreated),
	)

	// Refund whatever the oracle did not keep. A failed refund leg must
	// not unwind the request, so it is parked on the market and retried.
	excess, err := amount.Sub(bondUsed)
	if err != nil {
		return fmt.Errorf("settlement_service: %w", err)
	}
	if !excess.IsZero() {
		if terr := s.tokens.Transfer(ctx, token, sender, excess); terr != nil {
			m.RefundPending = &domain.PendingRefund{
				Account: sender,
				Token:   token,
				Amount:  excess,
				Reason:  "bond excess refund failed",
			}
			mut.Events = append(mut.Events, s.event(m.ID, domain.EventRefundDeferred, sender, map[string]any{
				"amount": excess.String(),
				"error":  terr.Error(),
			}))
			s.logger.ErrorContext(ctx, "settlement_service: bond refund deferred",
				slog.Uint64("market_id", m.ID),
				slog.String("account", sender),
				slog.String("amount", excess.String()),
				slog.String("error", terr.Error()),
			)
		}
	}

	if err := s.store.Commit(ctx, mut); err != nil {
		return fmt.Errorf("settlement_service: commit data request: %w", err)
	}

	s.invalidate(ctx, m.ID)
	publishEvents(ctx, s.bus, s.logger, mut.Events)
	s.logger.InfoContext(ctx, "settlement_service: data request created",
		slog.Uint64("market_id", m.ID),
		slog.String("creator", sender),
		slog.String("bond", bondUsed.String()),
	)
	return nil
}

// requestArgs builds the oracle request body. Scalar markets resolve to a
// scaled number; categorical markets resolve to one of the outcome tags.
func (s *SettlementService) requestArgs(m *domain.Market, creator string) domain.NewDataRequestArgs {
	args := domain.NewDataRequestArgs{
		Description:     m.Description,
		Tags:            []string{strconv.FormatUint(m.ID, 10)},
		Sources:         m.Sources,
		ChallengePeriod: m.ChallengePeriod,
		Creator:         creator,
	}
	if m.IsScalar {
		multiplier := m.Scalar.Multiplier
		args.DataType = domain.DataRequestDataType{Number: &multiplier}
	} else {
		args.Outcomes = m.OutcomeTags
	}
	return args
}

func (s *SettlementService) clearPending(ctx context.Context, m *domain.Market) {
	m.PendingRequestID = ""
	m.UpdatedAt = s.now()
	if err := s.store.Commit(ctx, domain.Mutation{Market: m}); err != nil {
		s.logger.ErrorContext(ctx, "settlement_service: clear pending failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Finalize applies the oracle's resolution. An absent or unmatchable answer
// voids the market: every share then redeems at an equal slice.
func (s *SettlementService) Finalize(ctx context.Context, cb domain.ResolutionCallback) error {
	unlock, err := s.lockMarket(ctx, cb.MarketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := s.store.GetMarket(ctx, cb.MarketID)
	if err != nil {
		return fmt.Errorf("settlement_service: get market %d: %w", cb.MarketID, err)
	}
	if m.Finalized {
		return domain.ErrAlreadyFinalized
	}
	if m.DataRequest == nil {
		return fmt.Errorf("settlement_service: market %d has no data request: %w", m.ID, domain.ErrNotFound)
	}

	numerators, err := s.numerators(m, cb.Answer)
	if err != nil {
		return fmt.Errorf("settlement_service: market %d: %w", m.ID, err)
	}

	m.Finalized = true
	m.Enabled = false
	m.PayoutNumerator = numerators
	m.UpdatedAt = s.now()
	mut := domain.Mutation{Market: m}
	mut.Events = append(mut.Events,
		s.transitionEvent(m.ID, domain.StateFinalized),
		s.event(m.ID, domain.EventFinalized, "", map[string]any{"void": numerators == nil}),
	)
	if err := s.store.Commit(ctx, mut); err != nil {
		return fmt.Errorf("settlement_service: commit finalize: %w", err)
	}

	s.invalidate(ctx, m.ID)
	if err := s.prices.Invalidate(ctx, m.ID); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: price invalidate failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)

	if s.archiver != nil {
		if err := s.archiver.ArchiveMarket(ctx, m.ID); err != nil {
			s.logger.WarnContext(ctx, "settlement_service: archive failed",
				slog.Uint64("market_id", m.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.InfoContext(ctx, "settlement_service: market finalized",
		slog.Uint64("market_id", m.ID),
		slog.Bool("void", numerators == nil),
	)
	return nil
}

// numerators maps an oracle answer onto payout numerators; nil means void.
func (s *SettlementService) numerators(m *domain.Market, answer *domain.Answer) ([]domain.U128, error) {
	if answer == nil || answer.Invalid() {
		return nil, nil
	}
	denom := m.Pool.Denom()
	if m.IsScalar {
		if answer.Number == nil {
			return nil, nil
		}
		return pool.ScalarNumerators(*m.Scalar, *answer.Number, denom)
	}
	if answer.String == nil {
		return nil, nil
	}
	for i, tag := range m.OutcomeTags {
		if tag == *answer.String {
			return pool.CategoricalNumerators(m.OutcomeCount(), uint16(i), denom)
		}
	}
	// The oracle settled on something that is not an outcome of this
	// market; treat it as invalid rather than guessing.
	return nil, nil
}

// ClaimEarnings values and pays out the caller's outcome shares on a
// finalized market, settling any outstanding LP fees in the same claim.
func (s *SettlementService) ClaimEarnings(ctx context.Context, sender string, marketID uint64) (domain.U128, error) {
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
		return numeric.Zero(), fmt.Errorf("settlement_service: get market %d: %w", marketID, err)
	}
	if !m.Finalized {
		return numeric.Zero(), domain.ErrMarketNotFinalized
	}

	shares, err := s.store.ListShareBalances(ctx, marketID, sender)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: share balances: %w", err)
	}
	lb, err := s.store.GetLPBalance(ctx, marketID, sender)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: lp balance: %w", err)
	}
	before, err := measureFootprint(s.storage, m, shares, []domain.LPBalance{lb})
	if err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: %w", err)
	}

	balances := make([]domain.U128, len(shares))
	for i, sb := range shares {
		balances[i] = sb.Balance
	}
	var payout domain.U128
	if m.PayoutNumerator == nil {
		payout, err = pool.PayoutVoid(balances)
	} else {
		payout, err = pool.Payout(balances, m.PayoutNumerator, m.Pool.Denom())
	}
	if err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: payout market %d: %w", marketID, err)
	}

	fees, withdrawn, err := pool.WithdrawFees(&m.Pool, lb)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: %w", err)
	}
	lb.WithdrawnFees = withdrawn

	total, err := payout.Add(fees)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: %w", err)
	}
	if total.IsZero() {
		return numeric.Zero(), domain.ErrNothingToClaim
	}

	for i := range shares {
		shares[i].Balance = numeric.Zero()
	}
	m.UpdatedAt = s.now()
	mut := domain.Mutation{Market: m, Shares: shares, LP: []domain.LPBalance{lb}}
	after, err := measureFootprint(s.storage, m, shares, []domain.LPBalance{lb})
	if err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: %w", err)
	}
	if err := settleStorage(ctx, s.store, s.storage, sender, before, after, &mut); err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: %w", err)
	}
	mut.Events = append(mut.Events, s.event(marketID, domain.EventClaimed, sender, map[string]any{
		"payout": payout.String(),
		"fees":   fees.String(),
	}))

	if err := s.store.Commit(ctx, mut); err != nil {
		return numeric.Zero(), fmt.Errorf("settlement_service: commit claim: %w", err)
	}

	if err := s.tokens.Transfer(ctx, m.Pool.CollateralToken, sender, total); err != nil {
		s.logger.ErrorContext(ctx, "settlement_service: claim transfer failed",
			slog.Uint64("market_id", marketID),
			slog.String("account", sender),
			slog.String("amount", total.String()),
			slog.String("error", err.Error()),
		)
	}
	publishEvents(ctx, s.bus, s.logger, mut.Events)
	return total, nil
}

// RetryRefund retries a parked bond refund.
func (s *SettlementService) RetryRefund(ctx context.Context, marketID uint64) error {
	unlock, err := s.lockMarket(ctx, marketID)
	if err != nil {
		return err
	}
	defer unlock()

	m, err := s.store.GetMarket(ctx, marketID)
	if err != nil {
		return fmt.Errorf("settlement_service: get market %d: %w", marketID, err)
	}
	if m.RefundPending == nil {
		return domain.ErrNothingToClaim
	}

	r := m.RefundPending
	if err := s.tokens.Transfer(ctx, r.Token, r.Account, r.Amount); err != nil {
		return fmt.Errorf("settlement_service: retry refund market %d: %w", marketID, err)
	}

	m.RefundPending = nil
	m.UpdatedAt = s.now()
	if err := s.store.Commit(ctx, domain.Mutation{Market: m}); err != nil {
		return fmt.Errorf("settlement_service: commit refund clear: %w", err)
	}
	s.invalidate(ctx, marketID)
	return nil
}

// Run consumes the durable settlement stream until the context ends,
// finalizing markets as oracle callbacks arrive. Malformed entries are
// logged and skipped; transient failures leave the cursor in place so the
// entry is retried.
func (s *SettlementService) Run(ctx context.Context, pollInterval time.Duration) error {
	s.logger.InfoContext(ctx, "settlement_service: callback consumer started")
	lastID := "0"
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "settlement_service: callback consumer stopped")
			return ctx.Err()
		case <-ticker.C:
		}

		msgs, err := s.bus.StreamRead(ctx, SettlementStream, lastID, 16)
		if err != nil {
			s.logger.WarnContext(ctx, "settlement_service: stream read failed",
				slog.String("error", err.Error()),
			)
			continue
		}
		for _, msg := range msgs {
			var cb domain.ResolutionCallback
			if err := json.Unmarshal(msg.Payload, &cb); err != nil {
				s.logger.ErrorContext(ctx, "settlement_service: bad callback entry",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
				lastID = msg.ID
				continue
			}
			if err := s.Finalize(ctx, cb); err != nil {
				if errorsIsTerminal(err) {
					lastID = msg.ID
					continue
				}
				s.logger.WarnContext(ctx, "settlement_service: finalize retry",
					slog.Uint64("market_id", cb.MarketID),
					slog.String("error", err.Error()),
				)
				break
			}
			lastID = msg.ID
		}
	}
}

// errorsIsTerminal reports whether a finalize failure can never succeed on
// retry, so the stream cursor should advance past the entry.
func errorsIsTerminal(err error) bool {
	return errors.Is(err, domain.ErrAlreadyFinalized) || errors.Is(err, domain.ErrNotFound)
}

func (s *SettlementService) event(marketID uint64, kind, account string, payload map[string]any) domain.Event {
	return domain.Event{
		ID:       uuid.NewString(),
		MarketID: marketID,
		Kind:     kind,
		Account:  account,
		Payload:  payload,
		At:       s.now(),
	}
}

func (s *SettlementService) transitionEvent(marketID uint64, state domain.ResolutionState) domain.Event {
	return s.event(marketID, domain.EventStateTransition, "", map[string]any{"state": string(state)})
}

func (s *SettlementService) invalidate(ctx context.Context, id uint64) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "settlement_service: cache invalidate failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

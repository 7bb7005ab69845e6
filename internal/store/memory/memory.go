// Package memory provides a mutex-guarded in-process implementation of the
// ledger, used by tests and by single-node deployments that do not need
// durability.
package memory

import (
	"context"
	"sync"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

type shareKey struct {
	market  uint64
	outcome uint16
	account string
}

type lpKey struct {
	market  uint64
	account string
}

// Store implements domain.Ledger over in-process maps. Commit applies the
// whole mutation under one lock, matching the transactional semantics of
// the database-backed store.
type Store struct {
	mu      sync.RWMutex
	markets []*domain.Market
	shares  map[shareKey]domain.U128
	lp      map[lpKey]domain.LPBalance
	storage map[string]domain.StorageBalance
	events  map[uint64][]domain.Event
}

// New returns an empty store.
func New() *Store {
	return &Store{
		shares:  make(map[shareKey]domain.U128),
		lp:      make(map[lpKey]domain.LPBalance),
		storage: make(map[string]domain.StorageBalance),
		events:  make(map[uint64][]domain.Event),
	}
}

func cloneMarket(m *domain.Market) *domain.Market {
	c := *m
	c.OutcomeTags = append([]string(nil), m.OutcomeTags...)
	c.Categories = append([]string(nil), m.Categories...)
	c.Sources = append([]domain.Source(nil), m.Sources...)
	c.PayoutNumerator = append([]domain.U128(nil), m.PayoutNumerator...)
	c.Pool.Reserves = append([]domain.U128(nil), m.Pool.Reserves...)
	c.Pool.Weights = append([]domain.U128(nil), m.Pool.Weights...)
	if m.Scalar != nil {
		s := *m.Scalar
		c.Scalar = &s
	}
	if m.DataRequest != nil {
		d := *m.DataRequest
		c.DataRequest = &d
	}
	if m.RefundPending != nil {
		r := *m.RefundPending
		c.RefundPending = &r
	}
	return &c
}

// CreateMarket appends the market at the next dense id, starting at zero.
func (s *Store) CreateMarket(_ context.Context, m *domain.Market) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uint64(len(s.markets))
	m.ID = id
	m.Pool.MarketID = id
	s.markets = append(s.markets, cloneMarket(m))
	return id, nil
}

func (s *Store) GetMarket(_ context.Context, id uint64) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id >= uint64(len(s.markets)) {
		return nil, domain.ErrNotFound
	}
	return cloneMarket(s.markets[id]), nil
}

func (s *Store) ListMarkets(_ context.Context, opts domain.ListOpts) ([]*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Market
	skipped := 0
	for _, m := range s.markets {
		if opts.EnabledOnly && !m.Enabled {
			continue
		}
		if opts.Category != "" && !hasCategory(m, opts.Category) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, cloneMarket(m))
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	return out, nil
}

func hasCategory(m *domain.Market, category string) bool {
	for _, c := range m.Categories {
		if c == category {
			return true
		}
	}
	return false
}

func (s *Store) CountMarkets(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.markets)), nil
}

// Commit applies the mutation atomically.
func (s *Store) Commit(_ context.Context, mut domain.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mut.Market != nil {
		if mut.Market.ID >= uint64(len(s.markets)) {
			return domain.ErrNotFound
		}
		s.markets[mut.Market.ID] = cloneMarket(mut.Market)
	}
	for _, sb := range mut.Shares {
		s.shares[shareKey{sb.MarketID, sb.Outcome, sb.Account}] = sb.Balance
	}
	for _, lb := range mut.LP {
		s.lp[lpKey{lb.MarketID, lb.Account}] = lb
	}
	for _, st := range mut.Storage {
		s.storage[st.Account] = st
	}
	for _, ev := range mut.Events {
		s.events[ev.MarketID] = append(s.events[ev.MarketID], ev)
	}
	return nil
}

func (s *Store) GetShareBalance(_ context.Context, marketID uint64, outcome uint16, account string) (domain.U128, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shares[shareKey{marketID, outcome, account}], nil
}

func (s *Store) ListShareBalances(_ context.Context, marketID uint64, account string) ([]domain.ShareBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if marketID >= uint64(len(s.markets)) {
		return nil, domain.ErrNotFound
	}
	outcomes := s.markets[marketID].OutcomeCount()
	out := make([]domain.ShareBalance, 0, outcomes)
	for o := uint16(0); o < outcomes; o++ {
		out = append(out, domain.ShareBalance{
			MarketID: marketID,
			Outcome:  o,
			Account:  account,
			Balance:  s.shares[shareKey{marketID, o, account}],
		})
	}
	return out, nil
}

func (s *Store) GetLPBalance(_ context.Context, marketID uint64, account string) (domain.LPBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.lp[lpKey{marketID, account}]; ok {
		return b, nil
	}
	return domain.LPBalance{MarketID: marketID, Account: account, Balance: numeric.Zero(), WithdrawnFees: numeric.Zero()}, nil
}

func (s *Store) ListLPHolders(_ context.Context, marketID uint64) ([]domain.LPBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.LPBalance
	for k, b := range s.lp {
		if k.market == marketID && !b.Balance.IsZero() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) GetStorage(_ context.Context, account string) (domain.StorageBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.storage[account]; ok {
		return b, nil
	}
	return domain.StorageBalance{Account: account}, nil
}

func (s *Store) ListEvents(_ context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evs := s.events[marketID]
	if opts.Offset >= len(evs) {
		return nil, nil
	}
	evs = evs[opts.Offset:]
	if opts.Limit > 0 && len(evs) > opts.Limit {
		evs = evs[:opts.Limit]
	}
	return append([]domain.Event(nil), evs...), nil
}

// ListEventsBefore returns every event older than the cutoff, across all
// markets.
func (s *Store) ListEventsBefore(_ context.Context, before domain.Millis) ([]domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Event
	for _, evs := range s.events {
		for _, ev := range evs {
			if ev.At < before {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}

var _ domain.Ledger = (*Store)(nil)

package domain

import (
	"context"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	// EnabledOnly filters to markets open for trading.
	EnabledOnly bool
	// Category filters to markets carrying the given category. Empty means
	// no filter.
	Category string
}

// ShareBalance is an account's balance of one outcome token.
type ShareBalance struct {
	MarketID uint64
	Outcome  uint16
	Account  string
	Balance  U128
}

// LPBalance is an account's pool token balance alongside the fees already
// attributed to it. WithdrawnFees grows at mint time and on payout so the
// withdrawable amount is always balance-share-of-fee-pool minus this figure.
type LPBalance struct {
	MarketID      uint64
	Account       string
	Balance       U128
	WithdrawnFees U128
}

// StorageBalance tracks an account's storage deposit: what it has paid in
// and how much is currently consumed by its state footprint.
type StorageBalance struct {
	Account string
	Deposit U128
	Used    U128
}

// Available returns the refundable portion of the deposit.
func (s StorageBalance) Available() (U128, error) {
	return s.Deposit.Sub(s.Used)
}

// Event is an append-only record of a state change, published to the signal
// bus and archived after finalization.
type Event struct {
	ID       string         `json:"id"`
	MarketID uint64         `json:"market_id"`
	Kind     string         `json:"kind"`
	Account  string         `json:"account,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	At       Millis         `json:"at"`
}

// Event kinds.
const (
	EventMarketCreated    = "market_created"
	EventMarketEnabled    = "market_enabled"
	EventMarketDisabled   = "market_disabled"
	EventLiquidityAdded   = "liquidity_added"
	EventLiquidityExited  = "liquidity_exited"
	EventBuy              = "buy"
	EventSell             = "sell"
	EventFeesWithdrawn    = "fees_withdrawn"
	EventRedeemed         = "redeemed"
	EventStateTransition  = "state_transition"
	EventRequestCreated   = "data_request_created"
	EventFinalized        = "market_finalized"
	EventClaimed          = "earnings_claimed"
	EventRefundDeferred   = "refund_deferred"
	EventStorageDeposited = "storage_deposited"
	EventStorageWithdrawn = "storage_withdrawn"
)

// Mutation is the atomic unit of ledger change. Every balance entry carries
// the absolute post-change value; services compute new balances under a
// market lock and the store applies the whole set in one transaction.
type Mutation struct {
	// Market, when non-nil, replaces the stored market (pool included).
	Market *Market

	Shares  []ShareBalance
	LP      []LPBalance
	Storage []StorageBalance

	Events []Event
}

// Ledger is the persistence boundary for markets and balances. CreateMarket
// assigns the next dense id; all other writes go through Commit.
type Ledger interface {
	CreateMarket(ctx context.Context, m *Market) (uint64, error)
	GetMarket(ctx context.Context, id uint64) (*Market, error)
	ListMarkets(ctx context.Context, opts ListOpts) ([]*Market, error)
	CountMarkets(ctx context.Context) (int64, error)

	Commit(ctx context.Context, mut Mutation) error

	GetShareBalance(ctx context.Context, marketID uint64, outcome uint16, account string) (U128, error)
	ListShareBalances(ctx context.Context, marketID uint64, account string) ([]ShareBalance, error)
	GetLPBalance(ctx context.Context, marketID uint64, account string) (LPBalance, error)
	ListLPHolders(ctx context.Context, marketID uint64) ([]LPBalance, error)

	GetStorage(ctx context.Context, account string) (StorageBalance, error)

	ListEvents(ctx context.Context, marketID uint64, opts ListOpts) ([]Event, error)
}

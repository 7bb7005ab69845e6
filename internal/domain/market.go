// Package domain defines the core entities of the AMM engine: markets,
// liquidity pools, balance ledgers, transfer payloads, and the interfaces
// implemented by the storage, cache, and gateway layers.
package domain

import (
	"strconv"
	"time"

	"github.com/openpredict/ammd/internal/numeric"
)

// U128 is the unsigned 128-bit balance type used for every monetary amount
// in the engine. Aliased here so domain types and signatures stay short.
type U128 = numeric.U128

// Millis is a timestamp in milliseconds since the Unix epoch. Gateways encode
// timestamps as decimal strings on the wire, so Millis accepts both a JSON
// string and a bare number.
type Millis int64

// NowMillis returns the current time as Millis.
func NowMillis() Millis {
	return Millis(time.Now().UnixMilli())
}

// Time converts to time.Time.
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// MarshalJSON encodes the timestamp as a decimal string.
func (m Millis) MarshalJSON() ([]byte, error) {
	return []byte(`"` + strconv.FormatInt(int64(m), 10) + `"`), nil
}

// UnmarshalJSON accepts "1700000000000" or 1700000000000.
func (m *Millis) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*m = Millis(n)
	return nil
}

// ResolutionState is the settlement lifecycle state of a market. It is
// derived from persisted fields rather than stored, so a state read after an
// asynchronous gap always reflects committed storage.
type ResolutionState string

const (
	// StateOpen: trading window active, resolution time not reached.
	StateOpen ResolutionState = "open"
	// StateAwaitingDataRequest: resolution time reached, no oracle request yet.
	StateAwaitingDataRequest ResolutionState = "awaiting_data_request"
	// StateDataRequestPending: oracle config fetch in flight.
	StateDataRequestPending ResolutionState = "data_request_pending"
	// StateDataRequestCreated: bond settled, the oracle owns resolution.
	StateDataRequestCreated ResolutionState = "data_request_created"
	// StateFinalized: payout numerators set, claims open.
	StateFinalized ResolutionState = "finalized"
)

// Source is a data source the oracle should consult when resolving.
type Source struct {
	EndPoint   string `json:"end_point"`
	SourcePath string `json:"source_path"`
}

// DataRequestLink records the oracle data request tied to a market. It is
// written exactly once, when the request-creation leg settles.
type DataRequestLink struct {
	PaymentToken string `json:"payment_token"`
	Creator      string `json:"dr_creator"`
	ValidityBond U128   `json:"validity_bond"`
	CreatedAt    Millis `json:"created_at"`
}

// ScalarRange bounds a scalar market. The reported value is clamped into
// [LowerBound, UpperBound] and linearly interpolated into short/long payout
// weights. Multiplier is the value scale communicated to the oracle's
// numeric data type.
type ScalarRange struct {
	LowerBound U128 `json:"lower_bound"`
	UpperBound U128 `json:"upper_bound"`
	Multiplier U128 `json:"multiplier"`
}

// PendingRefund is the compensation record for an excess-bond refund that
// failed after the data request was already created. The request is not
// rolled back; the refund is retried out of band.
type PendingRefund struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  U128   `json:"amount"`
	Reason  string `json:"reason"`
}

// Market is a single prediction market. Markets are appended to the ledger
// at dense, monotonically increasing ids and never deleted.
type Market struct {
	ID              uint64   `json:"id"`
	Description     string   `json:"description"`
	ExtraInfo       string   `json:"extra_info"`
	OutcomeTags     []string `json:"outcome_tags"`
	Categories      []string `json:"categories"`
	Sources         []Source `json:"sources"`
	EndTime         Millis   `json:"end_time"`
	ResolutionTime  Millis   `json:"resolution_time"`
	ChallengePeriod Millis   `json:"challenge_period"`

	Pool Pool `json:"pool"`

	// Enabled gates trading; flipped to true only after construction fully
	// succeeds so a market is never tradable mid-construction.
	Enabled   bool `json:"enabled"`
	Finalized bool `json:"finalized"`

	IsScalar bool         `json:"is_scalar"`
	Scalar   *ScalarRange `json:"scalar,omitempty"`

	// PayoutNumerator is nil until finalization and immutable afterwards.
	// A finalized market with nil numerators is void: every outcome share
	// redeems 1:1 against an equal slice of the remaining reserves.
	PayoutNumerator []U128 `json:"payout_numerator,omitempty"`

	// PendingRequestID is the handle of an in-flight oracle config fetch;
	// empty when no request leg is pending.
	PendingRequestID string `json:"pending_request_id,omitempty"`

	DataRequest *DataRequestLink `json:"data_request,omitempty"`

	RefundPending *PendingRefund `json:"refund_pending,omitempty"`

	CreatedAt Millis `json:"created_at"`
	UpdatedAt Millis `json:"updated_at"`
}

// State derives the resolution lifecycle state at the given time.
func (m *Market) State(now Millis) ResolutionState {
	switch {
	case m.Finalized:
		return StateFinalized
	case m.DataRequest != nil:
		return StateDataRequestCreated
	case m.PendingRequestID != "":
		return StateDataRequestPending
	case now >= m.ResolutionTime:
		return StateAwaitingDataRequest
	default:
		return StateOpen
	}
}

// CanTrade reports whether buy/sell/add/exit liquidity are permitted.
func (m *Market) CanTrade(now Millis) bool {
	return m.Enabled && !m.Finalized && now < m.EndTime
}

// OutcomeCount returns the number of outcomes.
func (m *Market) OutcomeCount() uint16 {
	return uint16(len(m.OutcomeTags))
}

// Pool is the liquidity pool owned by exactly one market. Reserves and LP
// supply change on every trade; weights are fixed once liquidity is first
// seeded. The swap fee is the integer fraction SwapFee / Denom(), where the
// denominator is one whole collateral unit (10^decimals), so fee math stays
// in integers end to end.
type Pool struct {
	MarketID           uint64 `json:"market_id"`
	CollateralToken    string `json:"collateral_token"`
	CollateralDecimals uint8  `json:"collateral_decimals"`
	SwapFee            U128   `json:"swap_fee"`

	// Reserves holds the pool-owned balance of each outcome token.
	Reserves []U128 `json:"reserves"`
	// Weights are the denormalized pricing weights, set at the first
	// liquidity add and never changed afterwards.
	Weights []U128 `json:"weights"`

	TotalLPSupply U128 `json:"total_lp_supply"`

	// FeePoolWeight and TotalWithdrawnFees implement pro-rata LP fee
	// accrual: an LP's withdrawable fees are its share of FeePoolWeight
	// minus the fees already attributed at mint time or paid out.
	FeePoolWeight      U128 `json:"fee_pool_weight"`
	TotalWithdrawnFees U128 `json:"total_withdrawn_fees"`
}

// Denom returns one whole collateral unit, 10^decimals. It is both the
// price scale (prices over all outcomes sum to one Denom sans fee) and the
// swap-fee denominator.
func (p *Pool) Denom() U128 {
	return numeric.Pow10(p.CollateralDecimals)
}

// OutcomeCount returns the number of outcome reserves.
func (p *Pool) OutcomeCount() uint16 {
	return uint16(len(p.Reserves))
}

// Seeded reports whether liquidity has ever been added.
func (p *Pool) Seeded() bool {
	return !p.TotalLPSupply.IsZero()
}

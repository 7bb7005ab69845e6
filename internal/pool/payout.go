package pool

import (
	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

// Payout numerators are scaled so they sum to one whole collateral unit:
// a share of outcome i redeems at numerator[i] / denom collateral.

// CategoricalNumerators returns the numerators for a categorical market
// resolved to the given winning outcome.
func CategoricalNumerators(outcomes uint16, winner uint16, denom domain.U128) ([]domain.U128, error) {
	if winner >= outcomes {
		return nil, domain.ErrInvalidOutcome
	}
	nums := make([]domain.U128, outcomes)
	nums[winner] = denom
	return nums, nil
}

// ScalarNumerators interpolates a reported value into short/long numerators.
// The value is clamped into [LowerBound, UpperBound]; outcome 0 is the short
// side and outcome 1 the long side, so a value at the upper bound pays the
// long side in full.
func ScalarNumerators(r domain.ScalarRange, value domain.U128, denom domain.U128) ([]domain.U128, error) {
	if !r.LowerBound.Lt(r.UpperBound) {
		return nil, domain.ErrInvalidScalarBounds
	}
	if value.Lt(r.LowerBound) {
		value = r.LowerBound
	}
	if value.Gt(r.UpperBound) {
		value = r.UpperBound
	}

	span, err := r.UpperBound.Sub(r.LowerBound)
	if err != nil {
		return nil, err
	}
	offset, err := value.Sub(r.LowerBound)
	if err != nil {
		return nil, err
	}
	long, err := offset.MulDiv(denom, span)
	if err != nil {
		return nil, err
	}
	short, err := denom.Sub(long)
	if err != nil {
		return nil, err
	}
	return []domain.U128{short, long}, nil
}

// Payout values a set of outcome share balances against the payout
// numerators of a finalized market.
func Payout(balances, numerators []domain.U128, denom domain.U128) (domain.U128, error) {
	total := numeric.Zero()
	for i, bal := range balances {
		part, err := bal.MulDiv(numerators[i], denom)
		if err != nil {
			return numeric.Zero(), err
		}
		if total, err = total.Add(part); err != nil {
			return numeric.Zero(), err
		}
	}
	return total, nil
}

// PayoutVoid values balances for a market finalized without an answer:
// every outcome redeems at an equal slice of one collateral unit.
func PayoutVoid(balances []domain.U128) (domain.U128, error) {
	if len(balances) == 0 {
		return numeric.Zero(), nil
	}
	sum, err := numeric.Sum(balances)
	if err != nil {
		return numeric.Zero(), err
	}
	return sum.Div(numeric.FromUint64(uint64(len(balances))))
}

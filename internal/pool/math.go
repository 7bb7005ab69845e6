// Package pool implements constant-product pricing and liquidity accounting
// for multi-outcome prediction market pools. All arithmetic is checked
// 128-bit integer math at the pool's collateral scale; functions mutate the
// passed pool in place and return the balance changes the caller must apply
// to account ledgers.
package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

// SpotPriceSansFee returns the marginal price of the target outcome, scaled
// so that prices over all outcomes sum to one whole collateral unit. The
// price of an outcome is the product of the other outcomes' reserves over
// the sum of such products across all outcomes.
func SpotPriceSansFee(p *domain.Pool, target uint16) (domain.U128, error) {
	if int(target) >= len(p.Reserves) {
		return numeric.Zero(), domain.ErrInvalidOutcome
	}
	if !p.Seeded() {
		return numeric.Zero(), domain.ErrPoolNotSeeded
	}

	weightTarget, weightSum, err := oddsWeights(p.Reserves, target)
	if err != nil {
		return numeric.Zero(), err
	}
	if weightSum.IsZero() {
		return numeric.Zero(), domain.ErrPoolNotSeeded
	}

	num := new(uint256.Int)
	if _, overflow := num.MulOverflow(p.Denom().Big(), weightTarget); overflow {
		return numeric.Zero(), fmt.Errorf("pool: spot price: %w", numeric.ErrOverflow)
	}
	return numeric.FromBig(num.Div(num, weightSum))
}

// SpotPrice returns the effective buy price of the target outcome with the
// swap fee folded in: sans-fee price divided by (one - fee).
func SpotPrice(p *domain.Pool, target uint16) (domain.U128, error) {
	sansFee, err := SpotPriceSansFee(p, target)
	if err != nil {
		return numeric.Zero(), err
	}
	denom := p.Denom()
	scalar, err := denom.Sub(p.SwapFee)
	if err != nil || scalar.IsZero() {
		return numeric.Zero(), domain.ErrFeeTooHigh
	}
	return sansFee.MulDiv(denom, scalar)
}

// oddsWeights computes the product of all reserves except index i, for the
// target index and summed across every index. Intermediates are 256-bit;
// pools with many outcomes and very deep reserves can overflow, which is
// reported rather than wrapped.
func oddsWeights(reserves []domain.U128, target uint16) (forTarget, sum *uint256.Int, err error) {
	sum = new(uint256.Int)
	for i := range reserves {
		w := uint256.NewInt(1)
		for j, b := range reserves {
			if j == i {
				continue
			}
			if _, overflow := w.MulOverflow(w, b.Big()); overflow {
				return nil, nil, fmt.Errorf("pool: odds weight: %w", numeric.ErrOverflow)
			}
		}
		if i == int(target) {
			forTarget = w
		}
		if _, overflow := sum.AddOverflow(sum, w); overflow {
			return nil, nil, fmt.Errorf("pool: odds weight sum: %w", numeric.ErrOverflow)
		}
	}
	return forTarget, sum, nil
}

// CalcBuyAmount returns the outcome shares received for amountIn collateral,
// fee included, without mutating the pool.
func CalcBuyAmount(p *domain.Pool, amountIn domain.U128, target uint16) (domain.U128, error) {
	if int(target) >= len(p.Reserves) {
		return numeric.Zero(), domain.ErrInvalidOutcome
	}
	fee, err := amountIn.MulDiv(p.SwapFee, p.Denom())
	if err != nil {
		return numeric.Zero(), err
	}
	invested, err := amountIn.Sub(fee)
	if err != nil {
		return numeric.Zero(), err
	}

	// Investing mints `invested` of every outcome into the pool; the new
	// target reserve follows from keeping the product of reserves constant
	// across the other outcomes.
	newTarget := p.Reserves[target]
	for i, b := range p.Reserves {
		if i == int(target) {
			continue
		}
		grown, err := b.Add(invested)
		if err != nil {
			return numeric.Zero(), err
		}
		newTarget, err = newTarget.MulDivCeil(b, grown)
		if err != nil {
			return numeric.Zero(), err
		}
	}

	withInvested, err := p.Reserves[target].Add(invested)
	if err != nil {
		return numeric.Zero(), err
	}
	return withInvested.Sub(newTarget)
}

// CalcSellSharesIn returns the outcome shares that must be sold to receive
// amountOut collateral, fee included, without mutating the pool.
func CalcSellSharesIn(p *domain.Pool, amountOut domain.U128, target uint16) (domain.U128, error) {
	if int(target) >= len(p.Reserves) {
		return numeric.Zero(), domain.ErrInvalidOutcome
	}
	denom := p.Denom()
	feeScalar, err := denom.Sub(p.SwapFee)
	if err != nil || feeScalar.IsZero() {
		return numeric.Zero(), domain.ErrFeeTooHigh
	}
	totalOutPlusFee, err := amountOut.MulDivCeil(denom, feeScalar)
	if err != nil {
		return numeric.Zero(), err
	}

	newTarget := p.Reserves[target]
	for i, b := range p.Reserves {
		if i == int(target) {
			continue
		}
		shrunk, err := b.Sub(totalOutPlusFee)
		if err != nil || shrunk.IsZero() {
			// A reserve cannot cover the withdrawal.
			return numeric.Zero(), fmt.Errorf("pool: sell drains outcome %d reserve", i)
		}
		newTarget, err = newTarget.MulDivCeil(b, shrunk)
		if err != nil {
			return numeric.Zero(), err
		}
	}

	withFee, err := newTarget.Add(totalOutPlusFee)
	if err != nil {
		return numeric.Zero(), err
	}
	return withFee.Sub(p.Reserves[target])
}

// FeeForAmountIn returns the fee charged on a buy of amountIn.
func FeeForAmountIn(p *domain.Pool, amountIn domain.U128) (domain.U128, error) {
	return amountIn.MulDiv(p.SwapFee, p.Denom())
}

// FeeForAmountOut returns the fee charged on a sell paying out amountOut:
// amountOut * fee / (one - fee).
func FeeForAmountOut(p *domain.Pool, amountOut domain.U128) (domain.U128, error) {
	scalar, err := p.Denom().Sub(p.SwapFee)
	if err != nil || scalar.IsZero() {
		return numeric.Zero(), domain.ErrFeeTooHigh
	}
	return amountOut.MulDivCeil(p.SwapFee, scalar)
}

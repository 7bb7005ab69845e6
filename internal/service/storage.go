package service

import (
	"context"
	"fmt"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/ledger"
)

// measureFootprint sums the stored footprint of a market record and the
// balance rows that exist. Rows with nothing left in them are dropped from
// storage, so they count as zero bytes.
func measureFootprint(acct *ledger.Accountant, m *domain.Market, shares []domain.ShareBalance, lps []domain.LPBalance) (int64, error) {
	total, err := acct.Measure(m)
	if err != nil {
		return 0, err
	}
	for _, sb := range shares {
		if sb.Balance.IsZero() {
			continue
		}
		n, err := acct.Measure(sb)
		if err != nil {
			return 0, err
		}
		total += n
	}
	for _, lb := range lps {
		if lb.Balance.IsZero() && lb.WithdrawnFees.IsZero() {
			continue
		}
		n, err := acct.Measure(lb)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

// settleStorage charges or refunds the byte delta caused by an operation
// against the payer's storage deposit and stages the updated balance on the
// mutation. Growth beyond the deposit aborts the operation.
func settleStorage(ctx context.Context, store domain.Ledger, acct *ledger.Accountant, payer string, before, after int64, mut *domain.Mutation) error {
	if before == after {
		return nil
	}
	bal, err := store.GetStorage(ctx, payer)
	if err != nil {
		return fmt.Errorf("storage balance for %q: %w", payer, err)
	}
	settled, err := acct.Settle(bal, before, after)
	if err != nil {
		return err
	}
	mut.Storage = append(mut.Storage, settled)
	return nil
}

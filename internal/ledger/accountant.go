// Package ledger implements storage accounting: accounts prepay for the
// bytes their state occupies, and every mutating operation settles the byte
// delta it caused against the payer's deposit.
package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

// Accountant prices state growth. PricePerByte is denominated in the
// deposit currency's smallest unit.
type Accountant struct {
	pricePerByte domain.U128
}

// New returns an accountant charging pricePerByte per stored byte.
func New(pricePerByte domain.U128) *Accountant {
	return &Accountant{pricePerByte: pricePerByte}
}

// Measure returns the stored footprint of a record in bytes, defined as the
// length of its canonical JSON encoding.
func (a *Accountant) Measure(v any) (int64, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("ledger: measure: %w", err)
	}
	return int64(len(b)), nil
}

// Settle applies a byte delta to the payer's storage balance: growth debits
// the deposit's used portion, shrinkage credits it back. Growth beyond the
// available deposit fails with ErrInsufficientStorage and the operation that
// caused it must be rolled back.
func (a *Accountant) Settle(bal domain.StorageBalance, beforeBytes, afterBytes int64) (domain.StorageBalance, error) {
	if beforeBytes == afterBytes {
		return bal, nil
	}

	if afterBytes > beforeBytes {
		cost, err := a.cost(afterBytes - beforeBytes)
		if err != nil {
			return bal, err
		}
		used, err := bal.Used.Add(cost)
		if err != nil {
			return bal, err
		}
		if used.Gt(bal.Deposit) {
			return bal, fmt.Errorf("%w: need %s, deposit %s", domain.ErrInsufficientStorage, used, bal.Deposit)
		}
		bal.Used = used
		return bal, nil
	}

	refund, err := a.cost(beforeBytes - afterBytes)
	if err != nil {
		return bal, err
	}
	if refund.Gt(bal.Used) {
		// Pricing changes between debit and credit can leave the used
		// figure behind the refund; clamp instead of underflowing.
		refund = bal.Used
	}
	bal.Used, err = bal.Used.Sub(refund)
	return bal, err
}

// Deposit adds funds to an account's storage balance.
func (a *Accountant) Deposit(bal domain.StorageBalance, amount domain.U128) (domain.StorageBalance, error) {
	if amount.IsZero() {
		return bal, domain.ErrZeroAmount
	}
	var err error
	bal.Deposit, err = bal.Deposit.Add(amount)
	return bal, err
}

// Withdraw releases up to amount of the unused deposit; a zero amount
// releases everything available. The withdrawn figure is returned for the
// refund transfer.
func (a *Accountant) Withdraw(bal domain.StorageBalance, amount domain.U128) (domain.StorageBalance, domain.U128, error) {
	available, err := bal.Available()
	if err != nil {
		return bal, numeric.Zero(), err
	}
	if amount.IsZero() {
		amount = available
	}
	if amount.Gt(available) {
		return bal, numeric.Zero(), fmt.Errorf("%w: requested %s, available %s", domain.ErrStorageInUse, amount, available)
	}
	bal.Deposit, err = bal.Deposit.Sub(amount)
	if err != nil {
		return bal, numeric.Zero(), err
	}
	return bal, amount, nil
}

func (a *Accountant) cost(bytes int64) (domain.U128, error) {
	return a.pricePerByte.Mul(numeric.FromUint64(uint64(bytes)))
}

package ledger_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/ledger"
	"github.com/openpredict/ammd/internal/numeric"
)

func u(v uint64) domain.U128 { return numeric.FromUint64(v) }

func TestSettleDebitsGrowth(t *testing.T) {
	acct := ledger.New(u(10))
	bal := domain.StorageBalance{Account: "alice", Deposit: u(1_000)}

	bal, err := acct.Settle(bal, 0, 50)
	require.NoError(t, err)
	require.Equal(t, u(500), bal.Used)

	avail, err := bal.Available()
	require.NoError(t, err)
	require.Equal(t, u(500), avail)
}

func TestSettleCreditsShrinkage(t *testing.T) {
	acct := ledger.New(u(10))
	bal := domain.StorageBalance{Account: "alice", Deposit: u(1_000), Used: u(500)}

	bal, err := acct.Settle(bal, 50, 20)
	require.NoError(t, err)
	require.Equal(t, u(200), bal.Used)
}

func TestSettleRejectsGrowthBeyondDeposit(t *testing.T) {
	acct := ledger.New(u(10))
	bal := domain.StorageBalance{Account: "alice", Deposit: u(100)}

	_, err := acct.Settle(bal, 0, 11)
	require.ErrorIs(t, err, domain.ErrInsufficientStorage)
}

func TestSettleNoDelta(t *testing.T) {
	acct := ledger.New(u(10))
	bal := domain.StorageBalance{Account: "alice", Deposit: u(100), Used: u(40)}

	got, err := acct.Settle(bal, 7, 7)
	require.NoError(t, err)
	require.Equal(t, bal, got)
}

func TestWithdrawReleasesUnused(t *testing.T) {
	acct := ledger.New(u(10))
	bal := domain.StorageBalance{Account: "alice", Deposit: u(1_000), Used: u(300)}

	bal, released, err := acct.Withdraw(bal, u(0))
	require.NoError(t, err)
	require.Equal(t, u(700), released)
	require.Equal(t, u(300), bal.Deposit)

	_, _, err = acct.Withdraw(bal, u(1))
	require.ErrorIs(t, err, domain.ErrStorageInUse)
}

func TestMeasureTracksRecordSize(t *testing.T) {
	acct := ledger.New(u(1))

	small, err := acct.Measure(map[string]string{"a": "b"})
	require.NoError(t, err)
	large, err := acct.Measure(map[string]string{"a": "b", "c": "a much longer value"})
	require.NoError(t, err)
	require.Greater(t, large, small)
}

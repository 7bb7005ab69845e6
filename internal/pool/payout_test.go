package pool_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/pool"
)

func TestCategoricalNumerators(t *testing.T) {
	nums, err := pool.CategoricalNumerators(3, 1, u(1_000_000))
	require.NoError(t, err)
	require.Equal(t, []domain.U128{u(0), u(1_000_000), u(0)}, nums)

	_, err = pool.CategoricalNumerators(3, 3, u(1_000_000))
	require.ErrorIs(t, err, domain.ErrInvalidOutcome)
}

func TestScalarNumeratorsInterpolation(t *testing.T) {
	r := domain.ScalarRange{LowerBound: u(1_000), UpperBound: u(3_000)}

	// Value three quarters of the way up the range.
	nums, err := pool.ScalarNumerators(r, u(2_500), u(1_000_000))
	require.NoError(t, err)
	require.Equal(t, []domain.U128{u(250_000), u(750_000)}, nums)
}

func TestScalarNumeratorsClamping(t *testing.T) {
	r := domain.ScalarRange{LowerBound: u(1_000), UpperBound: u(3_000)}

	below, err := pool.ScalarNumerators(r, u(0), u(1_000_000))
	require.NoError(t, err)
	require.Equal(t, []domain.U128{u(1_000_000), u(0)}, below, "below range pays short in full")

	above, err := pool.ScalarNumerators(r, u(9_999), u(1_000_000))
	require.NoError(t, err)
	require.Equal(t, []domain.U128{u(0), u(1_000_000)}, above, "above range pays long in full")
}

func TestScalarNumeratorsInvalidBounds(t *testing.T) {
	r := domain.ScalarRange{LowerBound: u(3_000), UpperBound: u(3_000)}

	_, err := pool.ScalarNumerators(r, u(3_000), u(1_000_000))
	require.ErrorIs(t, err, domain.ErrInvalidScalarBounds)
}

func TestPayout(t *testing.T) {
	payout, err := pool.Payout(
		[]domain.U128{u(10), u(20)},
		[]domain.U128{u(0), u(1_000_000)},
		u(1_000_000),
	)
	require.NoError(t, err)
	require.Equal(t, u(20), payout)

	// Scalar-style split numerators value both sides.
	payout, err = pool.Payout(
		[]domain.U128{u(100), u(100)},
		[]domain.U128{u(250_000), u(750_000)},
		u(1_000_000),
	)
	require.NoError(t, err)
	require.Equal(t, u(100), payout)
}

func TestPayoutVoid(t *testing.T) {
	payout, err := pool.PayoutVoid([]domain.U128{u(30), u(60), u(90)})
	require.NoError(t, err)
	require.Equal(t, u(60), payout)
}

// Package numeric provides checked unsigned 128-bit integer arithmetic for
// the pool math engine. All balances and prices in the engine are u128
// magnitudes in collateral-token base units; intermediate products use the
// full 256-bit width so a*b/c never loses precision. There is no floating
// point anywhere in this package.
package numeric

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when a result does not fit in 128 bits or an
	// unsigned subtraction would go negative.
	ErrOverflow = errors.New("numeric: u128 overflow")

	// ErrDivideByZero is returned on division by zero.
	ErrDivideByZero = errors.New("numeric: divide by zero")
)

// U128 is an unsigned 128-bit integer. The zero value is 0 and ready to use.
// Values are immutable; every operation returns a new U128.
type U128 struct {
	v uint256.Int
}

// Zero returns the zero value.
func Zero() U128 { return U128{} }

// FromUint64 converts a uint64.
func FromUint64(u uint64) U128 {
	var x U128
	x.v.SetUint64(u)
	return x
}

// FromString parses a base-10 string. It rejects negative values and values
// that do not fit in 128 bits.
func FromString(s string) (U128, error) {
	var x U128
	if err := x.v.SetFromDecimal(s); err != nil {
		return U128{}, fmt.Errorf("numeric: parse %q: %w", s, err)
	}
	if !fits128(&x.v) {
		return U128{}, ErrOverflow
	}
	return x, nil
}

// MustFromString is FromString that panics on error. For constants in tests
// and package initialisation only.
func MustFromString(s string) U128 {
	x, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return x
}

// Pow10 returns 10^n, n <= 38.
func Pow10(n uint8) U128 {
	x := FromUint64(1)
	ten := FromUint64(10)
	for i := uint8(0); i < n; i++ {
		x, _ = x.Mul(ten)
	}
	return x
}

// fits128 reports whether the upper two limbs are clear.
func fits128(v *uint256.Int) bool {
	return v[2] == 0 && v[3] == 0
}

// Add returns a+b or ErrOverflow.
func (a U128) Add(b U128) (U128, error) {
	var r U128
	r.v.Add(&a.v, &b.v)
	if !fits128(&r.v) {
		return U128{}, ErrOverflow
	}
	return r, nil
}

// Sub returns a-b or ErrOverflow when b > a.
func (a U128) Sub(b U128) (U128, error) {
	if a.v.Lt(&b.v) {
		return U128{}, ErrOverflow
	}
	var r U128
	r.v.Sub(&a.v, &b.v)
	return r, nil
}

// Mul returns a*b or ErrOverflow. The 256-bit product of two u128 values is
// exact; only the final narrowing can fail.
func (a U128) Mul(b U128) (U128, error) {
	var r U128
	r.v.Mul(&a.v, &b.v)
	if !fits128(&r.v) {
		return U128{}, ErrOverflow
	}
	return r, nil
}

// Div returns floor(a/b) or ErrDivideByZero.
func (a U128) Div(b U128) (U128, error) {
	if b.v.IsZero() {
		return U128{}, ErrDivideByZero
	}
	var r U128
	r.v.Div(&a.v, &b.v)
	return r, nil
}

// MulDiv returns floor(a*b/c) computed with a 256-bit intermediate product,
// so it never overflows as long as the final quotient fits in 128 bits.
func (a U128) MulDiv(b, c U128) (U128, error) {
	if c.v.IsZero() {
		return U128{}, ErrDivideByZero
	}
	var prod uint256.Int
	prod.Mul(&a.v, &b.v)
	var r U128
	r.v.Div(&prod, &c.v)
	if !fits128(&r.v) {
		return U128{}, ErrOverflow
	}
	return r, nil
}

// MulDivCeil is MulDiv rounding the quotient up.
func (a U128) MulDivCeil(b, c U128) (U128, error) {
	if c.v.IsZero() {
		return U128{}, ErrDivideByZero
	}
	var prod, rem uint256.Int
	prod.Mul(&a.v, &b.v)
	var r U128
	r.v.DivMod(&prod, &c.v, &rem)
	if !rem.IsZero() {
		r.v.AddUint64(&r.v, 1)
	}
	if !fits128(&r.v) {
		return U128{}, ErrOverflow
	}
	return r, nil
}

// Big returns the value widened to a fresh 256-bit integer, for callers that
// need intermediate products beyond 128 bits.
func (a U128) Big() *uint256.Int {
	v := a.v
	return &v
}

// FromBig narrows a 256-bit intermediate back to U128, failing with
// ErrOverflow when the value does not fit.
func FromBig(v *uint256.Int) (U128, error) {
	if !fits128(v) {
		return U128{}, ErrOverflow
	}
	return U128{v: *v}, nil
}

// Cmp returns -1, 0 or +1.
func (a U128) Cmp(b U128) int { return a.v.Cmp(&b.v) }

// Lt reports a < b.
func (a U128) Lt(b U128) bool { return a.v.Lt(&b.v) }

// Gt reports a > b.
func (a U128) Gt(b U128) bool { return a.v.Gt(&b.v) }

// Eq reports a == b.
func (a U128) Eq(b U128) bool { return a.v.Eq(&b.v) }

// IsZero reports a == 0.
func (a U128) IsZero() bool { return a.v.IsZero() }

// Uint64 returns the low 64 bits; the caller must know the value fits.
func (a U128) Uint64() uint64 { return a.v.Uint64() }

// String returns the base-10 representation.
func (a U128) String() string { return a.v.Dec() }

// MarshalJSON encodes the value as a decimal string, the wire form used for
// every balance that crosses the JSON boundary (128-bit integers do not
// survive JSON numbers).
func (a U128) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.v.Dec() + `"`), nil
}

// UnmarshalJSON accepts a decimal string or a bare JSON number.
func (a *U128) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	x, err := FromString(s)
	if err != nil {
		return err
	}
	*a = x
	return nil
}

// Sum adds all values, failing on overflow.
func Sum(xs []U128) (U128, error) {
	total := Zero()
	var err error
	for _, x := range xs {
		if total, err = total.Add(x); err != nil {
			return U128{}, err
		}
	}
	return total, nil
}

// Max returns the largest value in xs, or zero for an empty slice.
func Max(xs []U128) U128 {
	m := Zero()
	for _, x := range xs {
		if x.Gt(m) {
			m = x
		}
	}
	return m
}

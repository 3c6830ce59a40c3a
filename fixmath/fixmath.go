// Package fixmath implements mantissa-scaled fixed-point arithmetic at 1e18
// precision. Every operation reports overflow explicitly instead of wrapping;
// callers treat a non-nil error as a fatal computation failure.
package fixmath

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow signals that an intermediate product or sum exceeded 256 bits.
	ErrOverflow = errors.New("fixmath: overflow")
	// ErrNegative signals a negative input where only unsigned magnitudes are valid.
	ErrNegative = errors.New("fixmath: negative value")
	// ErrDivisionByZero signals a zero divisor.
	ErrDivisionByZero = errors.New("fixmath: division by zero")
)

// expScale is the mantissa denominator: a value of 1.0 carries mantissa 1e18.
var expScale = uint256.NewInt(1e18)

// Exp is an unsigned fixed-point number scaled by 1e18.
type Exp struct {
	Mantissa *uint256.Int
}

// Zero returns an Exp with mantissa zero.
func Zero() Exp {
	return Exp{Mantissa: uint256.NewInt(0)}
}

// One returns an Exp representing 1.0.
func One() Exp {
	return Exp{Mantissa: new(uint256.Int).Set(expScale)}
}

// NewExp wraps a raw mantissa. A nil mantissa is treated as zero.
func NewExp(mantissa *uint256.Int) Exp {
	if mantissa == nil {
		return Zero()
	}
	return Exp{Mantissa: new(uint256.Int).Set(mantissa)}
}

// FromBig converts a big integer mantissa into an Exp. Negative values and
// values exceeding 256 bits are rejected.
func FromBig(mantissa *big.Int) (Exp, error) {
	v, err := UintFromBig(mantissa)
	if err != nil {
		return Zero(), err
	}
	return Exp{Mantissa: v}, nil
}

// UintFromBig converts a big integer amount into a uint256, rejecting
// negative or oversized inputs.
func UintFromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return uint256.NewInt(0), nil
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNegative, v.String())
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("%w: %s exceeds 256 bits", ErrOverflow, v.String())
	}
	return out, nil
}

// IsZero reports whether the mantissa is zero.
func (e Exp) IsZero() bool {
	return e.Mantissa == nil || e.Mantissa.IsZero()
}

// Cmp compares two Exp values.
func (e Exp) Cmp(other Exp) int {
	return e.mantissa().Cmp(other.mantissa())
}

// ToBig returns the mantissa as a fresh big integer.
func (e Exp) ToBig() *big.Int {
	return e.mantissa().ToBig()
}

func (e Exp) mantissa() *uint256.Int {
	if e.Mantissa == nil {
		return uint256.NewInt(0)
	}
	return e.Mantissa
}

// Mul multiplies two scaled values: (a*b)/1e18.
func Mul(a, b Exp) (Exp, error) {
	product, err := mulCheck(a.mantissa(), b.mantissa())
	if err != nil {
		return Zero(), err
	}
	return Exp{Mantissa: product.Div(product, expScale)}, nil
}

// Div divides two scaled values: (a*1e18)/b.
func Div(a, b Exp) (Exp, error) {
	if b.IsZero() {
		return Zero(), ErrDivisionByZero
	}
	scaled, err := mulCheck(a.mantissa(), expScale)
	if err != nil {
		return Zero(), err
	}
	return Exp{Mantissa: scaled.Div(scaled, b.mantissa())}, nil
}

// Add sums two scaled values.
func Add(a, b Exp) (Exp, error) {
	sum, overflow := new(uint256.Int).AddOverflow(a.mantissa(), b.mantissa())
	if overflow {
		return Zero(), ErrOverflow
	}
	return Exp{Mantissa: sum}, nil
}

// SubSaturate subtracts b from a, clamping at zero instead of underflowing.
// The clamp is what turns the collateral/borrow totals into the
// liquidity-or-shortfall pair: exactly one side of the subtraction survives.
func SubSaturate(a, b Exp) Exp {
	if a.mantissa().Cmp(b.mantissa()) <= 0 {
		return Zero()
	}
	return Exp{Mantissa: new(uint256.Int).Sub(a.mantissa(), b.mantissa())}
}

// MulScalar multiplies a scaled value by an unscaled integer, keeping the
// result scaled.
func MulScalar(a Exp, scalar *uint256.Int) (Exp, error) {
	if scalar == nil {
		return Zero(), nil
	}
	product, err := mulCheck(a.mantissa(), scalar)
	if err != nil {
		return Zero(), err
	}
	return Exp{Mantissa: product}, nil
}

// MulScalarTruncate multiplies a scaled value by an unscaled integer and
// truncates the result back to an unscaled integer: (a*scalar)/1e18.
func MulScalarTruncate(a Exp, scalar *uint256.Int) (*uint256.Int, error) {
	scaled, err := MulScalar(a, scalar)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Div(scaled.mantissa(), expScale), nil
}

// MulScalarTruncateAdd computes (a*scalar)/1e18 + addend with overflow checks.
func MulScalarTruncateAdd(a Exp, scalar, addend *uint256.Int) (*uint256.Int, error) {
	truncated, err := MulScalarTruncate(a, scalar)
	if err != nil {
		return nil, err
	}
	if addend == nil {
		return truncated, nil
	}
	sum, overflow := new(uint256.Int).AddOverflow(truncated, addend)
	if overflow {
		return nil, ErrOverflow
	}
	return sum, nil
}

func mulCheck(a, b *uint256.Int) (*uint256.Int, error) {
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product, nil
}

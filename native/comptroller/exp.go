package comptroller

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

var (
	// ExpScale is the mantissa scale of factors, exchange rates and prices.
	ExpScale = uint256.NewInt(1e18)
	// RewardScale is the mantissa scale of reward indices.
	RewardScale = new(uint256.Int).Mul(uint256.NewInt(1e18), uint256.NewInt(1e18))
	// InitialIndex is the index every reward track starts from and the
	// baseline substituted for accounts that were never snapshotted.
	InitialIndex = new(uint256.Int).Set(RewardScale)

	maxIndex  = new(uint256.Int).Sub(new(uint256.Int).Lsh(uint256.NewInt(1), 224), uint256.NewInt(1))
	maxUint32 = uint256.NewInt(1<<32 - 1)
)

// Exp is an unsigned fixed point number. The mantissa is scaled by ExpScale;
// reward indices reuse the type with RewardScale through the *Scaled helpers.
// All operations truncate toward zero.
type Exp struct {
	Mantissa *uint256.Int
}

// NewExp wraps a mantissa; nil is read as zero.
func NewExp(mantissa *uint256.Int) Exp {
	return Exp{Mantissa: orZero(mantissa)}
}

// ParseMantissa converts a decimal string such as "0.75" or "1.08" into a
// 1e18 scaled mantissa. More than 18 fractional digits are rejected.
func ParseMantissa(value string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty decimal", ErrInvalidInput)
	}
	whole, frac, _ := strings.Cut(trimmed, ".")
	if len(frac) > 18 {
		return nil, fmt.Errorf("%w: %q has more than 18 decimals", ErrInvalidInput, value)
	}
	if whole == "" {
		whole = "0"
	}
	digits := whole + frac + strings.Repeat("0", 18-len(frac))
	for _, r := range digits {
		if r < '0' || r > '9' {
			return nil, fmt.Errorf("%w: %q is not a decimal", ErrInvalidInput, value)
		}
	}
	digits = strings.TrimLeft(digits, "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	out, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return out, nil
}

func (e Exp) IsZero() bool {
	return e.Mantissa == nil || e.Mantissa.IsZero()
}

func (e Exp) String() string {
	return orZero(e.Mantissa).Dec()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(orZero(a), orZero(b))
	if overflow {
		return nil, fmt.Errorf("%w: addition overflow", ErrMath)
	}
	return z, nil
}

func sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(orZero(a), orZero(b))
	if underflow {
		return nil, fmt.Errorf("%w: subtraction underflow", ErrMath)
	}
	return z, nil
}

func mul(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).MulOverflow(orZero(a), orZero(b))
	if overflow {
		return nil, fmt.Errorf("%w: multiplication overflow", ErrMath)
	}
	return z, nil
}

// mulDiv computes a*b/den, failing when the product overflows 256 bits or
// den is zero.
func mulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	if den == nil || den.IsZero() {
		return nil, fmt.Errorf("%w: division by zero", ErrMath)
	}
	product, err := mul(a, b)
	if err != nil {
		return nil, err
	}
	return product.Div(product, den), nil
}

// mulExp multiplies two fixed point values.
func mulExp(a, b Exp) (Exp, error) {
	z, err := mulDiv(a.Mantissa, b.Mantissa, ExpScale)
	if err != nil {
		return Exp{}, err
	}
	return Exp{Mantissa: z}, nil
}

// divExp divides two fixed point values.
func divExp(a, b Exp) (Exp, error) {
	z, err := mulDiv(a.Mantissa, ExpScale, b.Mantissa)
	if err != nil {
		return Exp{}, err
	}
	return Exp{Mantissa: z}, nil
}

// mulScalarTruncate multiplies a fixed point value by an integer and drops
// the fractional part.
func mulScalarTruncate(a Exp, scalar *uint256.Int) (*uint256.Int, error) {
	return mulDiv(a.Mantissa, scalar, ExpScale)
}

// mulScalarTruncateAdd returns truncate(a*scalar) + addend.
func mulScalarTruncateAdd(a Exp, scalar, addend *uint256.Int) (*uint256.Int, error) {
	product, err := mulScalarTruncate(a, scalar)
	if err != nil {
		return nil, err
	}
	return add(product, addend)
}

// fractionScaled returns num*scale/den, or zero when den is zero.
func fractionScaled(num, den, scale *uint256.Int) (*uint256.Int, error) {
	if den == nil || den.IsZero() {
		return new(uint256.Int), nil
	}
	return mulDiv(num, scale, den)
}

// mulScaled returns a*b/scale.
func mulScaled(a, b, scale *uint256.Int) (*uint256.Int, error) {
	return mulDiv(a, b, scale)
}

// lessThanOrEqual reports a <= b.
func lessThanOrEqual(a, b *uint256.Int) bool {
	return !orZero(a).Gt(orZero(b))
}

func safe224(v *uint256.Int) (*uint256.Int, error) {
	if v.Gt(maxIndex) {
		return nil, fmt.Errorf("%w: index exceeds 224 bits", ErrMath)
	}
	return v, nil
}

func safe32(v uint64) (uint32, error) {
	if v > maxUint32.Uint64() {
		return 0, fmt.Errorf("%w: timestamp exceeds 32 bits", ErrMath)
	}
	return uint32(v), nil
}

func zero() *uint256.Int { return new(uint256.Int) }

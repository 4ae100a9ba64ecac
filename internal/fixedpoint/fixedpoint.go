// Package fixedpoint implements exact-rounding decimal arithmetic over
// scaled big integers. All quantities in the ledger (collateral, token
// counts, prices, percentages) are Unsigned values scaled by 1e18.
package fixedpoint

import (
	"fmt"
	"math/big"
)

// DecimalPrecision is the number of decimal places in an Unsigned.
const DecimalPrecision = 18

// scale = 10^18, the raw units per "1.0".
var scale = big.NewInt(1_000_000_000_000_000_000)

// Unsigned is a non-negative fixed-point decimal. The zero value is 0.
// Values are immutable: every operation returns a fresh Unsigned.
type Unsigned struct {
	raw *big.Int
}

// Zero returns 0.
func Zero() Unsigned {
	return Unsigned{raw: new(big.Int)}
}

// One returns 1.0 (1e18 raw units).
func One() Unsigned {
	return Unsigned{raw: new(big.Int).Set(scale)}
}

// FromInt returns v scaled up by 1e18, i.e. the decimal value v.0.
// Panics if v is negative.
func FromInt(v int64) Unsigned {
	if v < 0 {
		panic(fmt.Sprintf("fixedpoint: negative value %d", v))
	}
	return Unsigned{raw: new(big.Int).Mul(big.NewInt(v), scale)}
}

// FromRaw returns an Unsigned holding exactly v raw (1e-18) units.
// Panics if v is negative.
func FromRaw(v int64) Unsigned {
	if v < 0 {
		panic(fmt.Sprintf("fixedpoint: negative raw value %d", v))
	}
	return Unsigned{raw: big.NewInt(v)}
}

// FromRawBig returns an Unsigned holding a copy of v raw units.
// Panics if v is negative.
func FromRawBig(v *big.Int) Unsigned {
	if v.Sign() < 0 {
		panic("fixedpoint: negative raw value")
	}
	return Unsigned{raw: new(big.Int).Set(v)}
}

// FromFraction returns num/den as a floor-rounded Unsigned.
func FromFraction(num, den int64) Unsigned {
	return FromInt(num).Div(FromInt(den))
}

// MustParse parses a decimal string like "0.966666666666666666".
// Panics on malformed input; intended for constants and tests.
func MustParse(s string) Unsigned {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Parse parses a non-negative decimal string with up to 18 fractional
// digits.
func Parse(s string) (Unsigned, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Unsigned{}, fmt.Errorf("fixedpoint: malformed decimal %q", s)
	}
	if r.Sign() < 0 {
		return Unsigned{}, fmt.Errorf("fixedpoint: negative decimal %q", s)
	}
	num := new(big.Int).Mul(r.Num(), scale)
	raw, rem := new(big.Int).QuoRem(num, r.Denom(), new(big.Int))
	if rem.Sign() != 0 {
		return Unsigned{}, fmt.Errorf("fixedpoint: %q has more than %d decimal places", s, DecimalPrecision)
	}
	return Unsigned{raw: raw}, nil
}

func (u Unsigned) rawOrZero() *big.Int {
	if u.raw == nil {
		return new(big.Int)
	}
	return u.raw
}

// Raw returns a copy of the underlying 1e18-scaled integer.
func (u Unsigned) Raw() *big.Int {
	return new(big.Int).Set(u.rawOrZero())
}

// Add returns u + v.
func (u Unsigned) Add(v Unsigned) Unsigned {
	return Unsigned{raw: new(big.Int).Add(u.rawOrZero(), v.rawOrZero())}
}

// Sub returns u - v. Panics if the result would be negative: callers
// must validate sufficiency before subtracting.
func (u Unsigned) Sub(v Unsigned) Unsigned {
	r := new(big.Int).Sub(u.rawOrZero(), v.rawOrZero())
	if r.Sign() < 0 {
		panic(fmt.Sprintf("fixedpoint: underflow %s - %s", u, v))
	}
	return Unsigned{raw: r}
}

// SubToZero returns u - v, clamped at zero.
func (u Unsigned) SubToZero(v Unsigned) Unsigned {
	r := new(big.Int).Sub(u.rawOrZero(), v.rawOrZero())
	if r.Sign() < 0 {
		return Zero()
	}
	return Unsigned{raw: r}
}

// Mul returns u * v rounded toward zero (floor).
func (u Unsigned) Mul(v Unsigned) Unsigned {
	p := new(big.Int).Mul(u.rawOrZero(), v.rawOrZero())
	return Unsigned{raw: p.Quo(p, scale)}
}

// MulCeil returns u * v rounded away from zero (ceiling).
func (u Unsigned) MulCeil(v Unsigned) Unsigned {
	p := new(big.Int).Mul(u.rawOrZero(), v.rawOrZero())
	return Unsigned{raw: ceilQuo(p, scale)}
}

// Div returns u / v rounded toward zero (floor). Panics on divide by
// zero.
func (u Unsigned) Div(v Unsigned) Unsigned {
	if v.IsZero() {
		panic("fixedpoint: divide by zero")
	}
	p := new(big.Int).Mul(u.rawOrZero(), scale)
	return Unsigned{raw: p.Quo(p, v.rawOrZero())}
}

// DivCeil returns u / v rounded away from zero (ceiling). Panics on
// divide by zero.
func (u Unsigned) DivCeil(v Unsigned) Unsigned {
	if v.IsZero() {
		panic("fixedpoint: divide by zero")
	}
	p := new(big.Int).Mul(u.rawOrZero(), scale)
	return Unsigned{raw: ceilQuo(p, v.rawOrZero())}
}

// ceilQuo returns ceil(num/den) for non-negative num and positive den.
func ceilQuo(num, den *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(num, den, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// Cmp returns -1, 0, or +1.
func (u Unsigned) Cmp(v Unsigned) int {
	return u.rawOrZero().Cmp(v.rawOrZero())
}

func (u Unsigned) IsZero() bool          { return u.rawOrZero().Sign() == 0 }
func (u Unsigned) Equal(v Unsigned) bool { return u.Cmp(v) == 0 }
func (u Unsigned) LT(v Unsigned) bool    { return u.Cmp(v) < 0 }
func (u Unsigned) LTE(v Unsigned) bool   { return u.Cmp(v) <= 0 }
func (u Unsigned) GT(v Unsigned) bool    { return u.Cmp(v) > 0 }
func (u Unsigned) GTE(v Unsigned) bool   { return u.Cmp(v) >= 0 }

// Min returns the smaller of u and v.
func Min(u, v Unsigned) Unsigned {
	if u.LTE(v) {
		return Unsigned{raw: new(big.Int).Set(u.rawOrZero())}
	}
	return Unsigned{raw: new(big.Int).Set(v.rawOrZero())}
}

// Float64 returns an approximate float representation, for metrics
// only. Never use it in ledger arithmetic.
func (u Unsigned) Float64() float64 {
	f, _ := new(big.Float).Quo(
		new(big.Float).SetInt(u.rawOrZero()),
		new(big.Float).SetInt(scale),
	).Float64()
	return f
}

// String renders the value as a decimal with trailing zeros trimmed.
func (u Unsigned) String() string {
	q, r := new(big.Int).QuoRem(u.rawOrZero(), scale, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := fmt.Sprintf("%018s", r.String())
	for len(frac) > 1 && frac[len(frac)-1] == '0' {
		frac = frac[:len(frac)-1]
	}
	return q.String() + "." + frac
}

// RawString renders the underlying scaled integer, the form used in
// the event log and API payloads.
func (u Unsigned) RawString() string {
	return u.rawOrZero().String()
}

// ParseRaw parses a raw 1e18-scaled integer string.
func ParseRaw(s string) (Unsigned, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Unsigned{}, fmt.Errorf("fixedpoint: malformed raw value %q", s)
	}
	if v.Sign() < 0 {
		return Unsigned{}, fmt.Errorf("fixedpoint: negative raw value %q", s)
	}
	return Unsigned{raw: v}, nil
}

// MarshalJSON encodes the value as its raw integer string.
func (u Unsigned) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.RawString() + `"`), nil
}

// UnmarshalJSON decodes a raw integer string.
func (u *Unsigned) UnmarshalJSON(b []byte) error {
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	v, err := ParseRaw(s)
	if err != nil {
		return err
	}
	u.raw = v.raw
	return nil
}

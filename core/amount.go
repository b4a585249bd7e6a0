package core

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
)

// MaxDecimals bounds a token's scale (the "de" genesis field).
const MaxDecimals = 8

var (
	// ErrScaleMismatch is returned when two amounts of different token
	// scales meet in an arithmetic operation.
	ErrScaleMismatch = fmt.Errorf("core: amount scale mismatch")

	// ErrAmountOverflow is returned when an amount leaves the uint256
	// range.
	ErrAmountOverflow = fmt.Errorf("core: amount overflow")

	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = fmt.Errorf("core: insufficient funds")
)

// Amount is a non-negative fixed-point token quantity. The integer
// value is held in base units (10^-scale tokens) on a uint256 so token
// supplies never round. Scale is fixed per token at GENESIS.
type Amount struct {
	value uint256.Int
	scale uint8
}

// Zero returns the zero amount at the given scale.
func Zero(scale uint8) Amount {
	return Amount{scale: scale}
}

// pow10 returns 10^n as uint64, n <= 19.
func pow10(n uint8) uint64 {
	p := uint64(1)
	for i := uint8(0); i < n; i++ {
		p *= 10
	}
	return p
}

// ParseAmount reads a decimal string into an amount at the given scale.
// The fraction part may carry at most scale digits.
func ParseAmount(s string, scale uint8) (Amount, error) {
	if scale > MaxDecimals {
		return Amount{}, fmt.Errorf("core: scale %d out of range", scale)
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if len(frac) > int(scale) {
		return Amount{}, fmt.Errorf("core: %q exceeds scale %d", s, scale)
	}
	// right-pad the fraction to scale digits and fold both parts into
	// one base-unit integer
	frac += strings.Repeat("0", int(scale)-len(frac))
	digits := whole + frac
	if digits == "" {
		return Amount{}, fmt.Errorf("core: empty amount")
	}
	var value uint256.Int
	ten := uint256.NewInt(10)
	for _, d := range digits {
		if d < '0' || d > '9' {
			return Amount{}, fmt.Errorf("core: bad amount %q", s)
		}
		var overflow bool
		_, overflow = value.MulOverflow(&value, ten)
		if overflow {
			return Amount{}, ErrAmountOverflow
		}
		_, overflow = value.AddOverflow(&value, uint256.NewInt(uint64(d-'0')))
		if overflow {
			return Amount{}, ErrAmountOverflow
		}
	}
	return Amount{value: value, scale: scale}, nil
}

// AmountFromFloat converts a journalled quantity (float64, the JSON
// number form) into an amount at the given scale. The float is printed
// with exactly scale fraction digits first, so sub-scale dust is
// rounded away the same way on every node.
func AmountFromFloat(qt float64, scale uint8) (Amount, error) {
	if qt < 0 {
		return Amount{}, fmt.Errorf("core: negative amount %v", qt)
	}
	return ParseAmount(strconv.FormatFloat(qt, 'f', int(scale), 64), scale)
}

// Scale returns the token scale the amount is expressed in.
func (a Amount) Scale() uint8 { return a.scale }

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool { return a.value.IsZero() }

// Cmp compares two amounts of the same scale (-1, 0, +1).
func (a Amount) Cmp(b Amount) int { return a.value.Cmp(&b.value) }

// Add returns a+b, failing on scale mismatch or uint256 overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if a.scale != b.scale {
		return Amount{}, ErrScaleMismatch
	}
	var sum uint256.Int
	if _, overflow := sum.AddOverflow(&a.value, &b.value); overflow {
		return Amount{}, ErrAmountOverflow
	}
	return Amount{value: sum, scale: a.scale}, nil
}

// Sub returns a-b, failing on scale mismatch or when b exceeds a.
func (a Amount) Sub(b Amount) (Amount, error) {
	if a.scale != b.scale {
		return Amount{}, ErrScaleMismatch
	}
	if a.value.Lt(&b.value) {
		return Amount{}, ErrInsufficientFunds
	}
	var diff uint256.Int
	diff.Sub(&a.value, &b.value)
	return Amount{value: diff, scale: a.scale}, nil
}

// String renders the amount with exactly scale fraction digits.
func (a Amount) String() string {
	if a.scale == 0 {
		return a.value.ToBig().String()
	}
	var quo, rem uint256.Int
	unit := uint256.NewInt(pow10(a.scale))
	quo.Div(&a.value, unit)
	rem.Mod(&a.value, unit)
	return fmt.Sprintf("%s.%0*d", quo.ToBig().String(), a.scale, rem.Uint64())
}

// MarshalJSON encodes the amount as its decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(a.String())), nil
}

// UnmarshalJSON decodes a decimal string, inferring the scale from the
// number of fraction digits (String always emits all of them).
func (a *Amount) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("core: amount is not a string: %v", err)
	}
	scale := 0
	if i := strings.IndexByte(s, '.'); i >= 0 {
		scale = len(s) - i - 1
	}
	parsed, err := ParseAmount(s, uint8(scale))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

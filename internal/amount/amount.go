// Package amount converts between atomic integer units (as stored on-chain
// and in wallet RPC responses) and fixed-point decimal strings (as shown to
// operators and embedded in webhook payloads), grounded on
// shopspring/decimal for arbitrary-precision arithmetic.
package amount

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ErrNonFinite is returned for negative amounts or a negative decimals
// scale, neither of which has a meaningful atomic representation.
var ErrNonFinite = errors.New("amount: negative or non-finite input")

// FormatAtomic converts atomic to a fixed-point decimal string with
// decimals fraction digits of scale, trailing zeros trimmed and no
// trailing dot. decimals = 0 yields the bare integer.
func FormatAtomic(atomic *big.Int, decimals int32) (string, error) {
	if atomic == nil || decimals < 0 || atomic.Sign() < 0 {
		return "", ErrNonFinite
	}
	d := decimal.NewFromBigInt(new(big.Int).Set(atomic), -decimals)
	return d.String(), nil
}

// ParseAtomic is the inverse of FormatAtomic: it accepts either an integer
// or decimal string and scales it up to atomic units. Strings encoding
// more fraction digits than decimals allows are rejected rather than
// silently truncated.
func ParseAtomic(s string, decimals int32) (*big.Int, error) {
	if decimals < 0 {
		return nil, ErrNonFinite
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("amount: parse %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNonFinite
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount: %q has more than %d fraction digits", s, decimals)
	}
	return scaled.Truncate(0).BigInt(), nil
}

// Normalize reformats a decimal string to the canonical trimmed form
// FormatAtomic would produce, for round-trip comparisons.
func Normalize(s string, decimals int32) (string, error) {
	atomic, err := ParseAtomic(s, decimals)
	if err != nil {
		return "", err
	}
	return FormatAtomic(atomic, decimals)
}

package domain

import (
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountRe  = regexp.MustCompile(`^\d+(\.\d{1,6})?$`)
	addressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	uuidV4Re  = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

// IsValidAmount reports whether s is a non-negative decimal with at most six
// fractional digits whose octa value fits in a uint64.
func IsValidAmount(s string) bool {
	if !amountRe.MatchString(s) {
		return false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.Shift(AptosDecimals).BigInt().IsUint64()
}

// IsValidAddress reports whether s is a 32-byte 0x-prefixed hex address.
func IsValidAddress(s string) bool {
	return addressRe.MatchString(s)
}

// IsValidPaymentID reports whether s is a UUIDv4.
func IsValidPaymentID(s string) bool {
	return uuidV4Re.MatchString(s)
}

// NormalizeAddress lowercases an address and left-pads it to 64 hex digits,
// so short forms like 0x1 compare equal to their long form.
func NormalizeAddress(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "0x")
	if len(s) < 64 {
		s = strings.Repeat("0", 64-len(s)) + s
	}
	return "0x" + s
}

// ParseAmount parses a protocol amount string.
func ParseAmount(s string) (decimal.Decimal, error) {
	if !IsValidAmount(s) {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return decimal.NewFromString(s)
}

// ToBaseUnits converts a token amount to octas. Digits beyond the token's
// precision are truncated. Negative amounts clamp to zero and amounts past
// the uint64 range clamp to math.MaxUint64.
func ToBaseUnits(amount decimal.Decimal) uint64 {
	units := amount.Shift(AptosDecimals).BigInt()
	switch {
	case units.Sign() < 0:
		return 0
	case !units.IsUint64():
		return math.MaxUint64
	}
	return units.Uint64()
}

// FromBaseUnits converts octas to a token amount.
func FromBaseUnits(units uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(units), -AptosDecimals)
}

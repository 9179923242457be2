// Money parsing and handling. Amounts are stored as integer cents and
// only converted to decimal form at the serialization boundary, so no
// rounding error accumulates inside the engine.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Money is a non-negative amount in cents.
type Money struct {
	Cents int64
}

// ParseMoney converts a decimal string to Money with half-up rounding
// on the third decimal place. It accepts both dot (12.34) and comma
// (12,34) separators. Zero is valid; negative values are not.
//
// Examples:
//
//	ParseMoney("12.34") -> 1234 cents
//	ParseMoney("12,345") -> 1234 cents (rounds down)
//	ParseMoney("12.346") -> 1235 cents (rounds up)
func ParseMoney(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return Money{}, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return Money{}, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return Money{}, ErrInvalidAmount
	}
	// Take first two fractional digits; half-up rounding on the third
	var fracCents int64
	if len(fracPart) > 0 {
		fracCents = int64(fracPart[0]-'0') * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return Money{Cents: iv*100 + fracCents}, nil
}

// IsZero reports whether the amount is zero cents.
func (m Money) IsZero() bool { return m.Cents == 0 }

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool { return m.Cents > 0 }

// Add returns m + other.
func (m Money) Add(other Money) Money { return Money{Cents: m.Cents + other.Cents} }

// Sub returns max(0, m - other).
func (m Money) Sub(other Money) Money {
	c := m.Cents - other.Cents
	if c < 0 {
		c = 0
	}
	return Money{Cents: c}
}

// Less reports whether m < other.
func (m Money) Less(other Money) bool { return m.Cents < other.Cents }

// String formats the amount as a plain 2-decimal string, e.g. "12.34".
func (m Money) String() string {
	c := m.Cents
	neg := c < 0
	if neg {
		c = -c
	}
	s := fmt.Sprintf("%d.%02d", c/100, c%100)
	if neg {
		return "-" + s
	}
	return s
}

// MarshalJSON encodes the amount as a 2-decimal JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "null" || s == "" {
		*m = Money{}
		return nil
	}
	parsed, err := ParseMoney(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

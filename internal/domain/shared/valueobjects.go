// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// Money
// ═══════════════════════════════════════════════════════════════════════════

// Money is a monetary amount in minor currency units (cents, tiyn, ...).
// All threshold comparisons in the engine happen in minor units so that
// float drift can never flip an eligibility decision.
type Money int64

// MoneyFromMajor converts a major-unit amount (e.g. "49.90") to minor units,
// rounding half away from zero.
func MoneyFromMajor(amount float64) Money {
	return Money(math.Round(amount * 100))
}

// ParseMoney parses a string or numeric raw value into minor units.
// Accepts "49.90", "49,90", "4990" (already minor when integral and the
// source is flagged as minor), and plain numbers.
func ParseMoney(raw any) (Money, bool) {
	switch v := raw.(type) {
	case nil:
		return 0, false
	case Money:
		return v, true
	case int:
		return MoneyFromMajor(float64(v)), true
	case int64:
		return MoneyFromMajor(float64(v)), true
	case float64:
		return MoneyFromMajor(v), true
	case float32:
		return MoneyFromMajor(float64(v)), true
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return MoneyFromMajor(f), true
	default:
		return 0, false
	}
}

// Major returns the amount in major units as a float (display only).
func (m Money) Major() float64 {
	return float64(m) / 100
}

// Minor returns the raw minor-unit value.
func (m Money) Minor() int64 {
	return int64(m)
}

// IsPositive reports whether the amount is strictly positive.
func (m Money) IsPositive() bool {
	return m > 0
}

// Sub returns m - other, clamped at zero. Used for "spend N more" display.
func (m Money) Sub(other Money) Money {
	if other >= m {
		return 0
	}
	return m - other
}

// DisplayMajor renders the amount in major units without trailing zeros,
// e.g. 4990 -> "49.90", 5000 -> "50".
func (m Money) DisplayMajor() string {
	if m%100 == 0 {
		return strconv.FormatInt(int64(m)/100, 10)
	}
	return fmt.Sprintf("%.2f", m.Major())
}

// ═══════════════════════════════════════════════════════════════════════════
// Identifiers
// ═══════════════════════════════════════════════════════════════════════════

// SessionToken identifies one browsing session. Persisted flags are scoped
// to it and die with it.
type SessionToken string

// IsValid checks that the token is non-empty and has no whitespace.
func (s SessionToken) IsValid() bool {
	t := string(s)
	return t != "" && !strings.ContainsAny(t, " \t\n\r")
}

// String returns the string representation.
func (s SessionToken) String() string {
	return string(s)
}

// ParseSessionToken trims and validates an externally supplied token.
func ParseSessionToken(raw string) (SessionToken, error) {
	token := SessionToken(strings.TrimSpace(raw))
	if !token.IsValid() {
		return "", NewDomainError("shared", "ParseSessionToken", ErrInvalidID, "session token is required")
	}
	return token, nil
}

// RuleKey is the identity key of a normalized rule, prefixed with its kind
// to avoid cross-kind collisions ("freegift:step2", "bxgy:summer-deal").
type RuleKey string

// IsValid checks that the key carries a kind prefix.
func (k RuleKey) IsValid() bool {
	return strings.Contains(string(k), ":") && !strings.HasPrefix(string(k), ":")
}

// String returns the string representation.
func (k RuleKey) String() string {
	return string(k)
}

// VariantID identifies a purchasable product variant on the storefront.
// Zero means unresolved.
type VariantID int64

// IsValid reports whether the variant resolves to an addable line item.
func (v VariantID) IsValid() bool {
	return v > 0
}

// Int64 returns the underlying int64 value.
func (v VariantID) Int64() int64 {
	return int64(v)
}

// String returns the decimal representation.
func (v VariantID) String() string {
	return strconv.FormatInt(int64(v), 10)
}

// ParseVariantID accepts numeric and string raw values, including Shopify-style
// GID suffixes ("gid://shopify/ProductVariant/123456").
func ParseVariantID(raw any) VariantID {
	switch v := raw.(type) {
	case int:
		return VariantID(v)
	case int64:
		return VariantID(v)
	case float64:
		return VariantID(int64(v))
	case string:
		s := strings.TrimSpace(v)
		if idx := strings.LastIndex(s, "/"); idx >= 0 {
			s = s[idx+1:]
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0
		}
		return VariantID(n)
	default:
		return 0
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Percentage
// ═══════════════════════════════════════════════════════════════════════════

// Percent is a progress percentage clamped to [0, 100].
type Percent float64

// ClampPercent clamps an arbitrary float into [0, 100].
func ClampPercent(v float64) Percent {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return Percent(v)
}

// Float returns the raw float value.
func (p Percent) Float() float64 {
	return float64(p)
}

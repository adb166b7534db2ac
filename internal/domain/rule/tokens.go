package rule

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Message templates carry {{token}} placeholders. Matching is
// case-insensitive and whitespace-tolerant inside the delimiters;
// a token with no value renders as an empty string so a stale template
// never breaks rendering.
var tokenRe = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// TokenValues maps lowercase token names to rendered values.
type TokenValues map[string]string

// Substitute renders a template against the given token values.
func Substitute(template string, values TokenValues) string {
	if template == "" {
		return ""
	}
	return tokenRe.ReplaceAllStringFunc(template, func(match string) string {
		name := tokenRe.FindStringSubmatch(match)[1]
		return values[strings.ToLower(name)]
	})
}

// Tokens builds the token set for a rule. Remaining is the outstanding
// amount toward the goal in minor units, clamped at zero by the caller;
// it feeds the {{goal}} token in "spend N more" templates.
func (r *Rule) Tokens(remaining shared.Money) TokenValues {
	values := TokenValues{
		"goal": remaining.DisplayMajor(),
	}
	if r.DiscountValue != "" {
		values["discount_value"] = r.DiscountValue
		values["discount_value_with_suffix"] = withSuffix(r.DiscountValue)
	}
	if r.DiscountCode != "" {
		values["discount_code"] = r.DiscountCode
	}
	if r.MinQuantity > 0 {
		values["x"] = strconv.Itoa(r.MinQuantity)
	}
	if r.GetQuantity > 0 {
		values["y"] = strconv.Itoa(r.GetQuantity)
	}
	return values
}

// withSuffix appends a percent sign when the value is a bare number;
// values already carrying a suffix ("15%", "10 USD") pass through.
func withSuffix(value string) string {
	v := strings.TrimSpace(value)
	for _, c := range v {
		if (c < '0' || c > '9') && c != '.' {
			return v
		}
	}
	return v + "%"
}

package rule

import (
	"strconv"
	"strings"
)

// Record is one raw merchant-configured rule as fetched from the catalog.
type Record map[string]any

// Field-alias tables. Merchant configurations come from several generations
// of the admin UI, so every canonical field has accumulated aliases. Each
// table is ordered: the first present alias wins, even when its value is
// empty. Lookup is exact-key; the admin always stored snake_case plus a few
// camelCase stragglers, which are listed explicitly.
var (
	aliasStatus = []string{"status", "enabled", "is_enabled", "isEnabled", "active", "is_active", "published", "state", "visible"}

	aliasID   = []string{"id", "_id", "rule_id", "ruleId", "uid", "key", "handle"}
	aliasName = []string{"name", "title", "label", "heading"}
	aliasSlot = []string{"step", "slot", "position", "order", "milestone", "tier"}
	aliasIcon = []string{"icon", "emoji", "icon_token", "symbol"}

	aliasGoalShipping = []string{"min_amount", "minimum", "minimum_amount", "free_shipping_min", "threshold", "amount", "goal"}
	aliasGoalDiscount = []string{"min_amount", "minimum", "minimum_amount", "discount_min", "threshold", "amount", "goal"}
	aliasGoalFreeGift = []string{"min_amount", "minimum", "minimum_amount", "gift_min", "threshold", "amount", "goal"}
	aliasMinPurchase  = []string{"min_purchase", "minimum_purchase", "min_amount", "minimum_amount", "threshold"}

	aliasBefore = []string{"before_message", "message_before", "locked_message", "before"}
	aliasAfter  = []string{"after_message", "message_after", "unlocked_message", "after"}
	aliasBelow  = []string{"below_message", "message_below", "subtext", "below"}

	aliasDiscountType  = []string{"discount_type", "sub_type", "mode", "method"}
	aliasDiscountCode  = []string{"code", "discount_code", "coupon", "coupon_code"}
	aliasDiscountValue = []string{"value", "discount_value", "percent", "percentage", "amount_off"}

	aliasBuyQty = []string{"x", "x_qty", "buy_qty", "buy_quantity", "min_qty", "minimum_quantity", "quantity"}
	aliasGetQty = []string{"y", "y_qty", "get_qty", "get_quantity", "free_qty"}

	aliasScope     = []string{"scope", "applies_to", "target"}
	aliasAllowList = []string{"product_ids", "products", "collection_ids", "collections", "allow_list", "ids"}

	aliasVariant   = []string{"variant_id", "reward_variant", "reward_variant_id", "gift_variant", "variant"}
	aliasCondition = []string{"custom_condition", "condition", "logic"}
)

// lookup returns the value of the first alias present in the record.
func (r Record) lookup(aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := r[key]; ok {
			return v, true
		}
	}
	return nil, false
}

// lookupString returns the first present alias coerced to a trimmed string.
func (r Record) lookupString(aliases []string) string {
	v, ok := r.lookup(aliases)
	if !ok {
		return ""
	}
	return coerceString(v)
}

// coerceString renders scalar raw values as trimmed strings.
func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		// Whole floats print without a decimal point ("2", not "2.000000").
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// coerceInt parses scalar raw values as integers. Returns (0, false) for
// anything non-numeric.
func coerceInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// truthy reports whether a raw value coerces to boolean true, using the
// legacy admin conventions.
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "on", "enabled", "active", "1":
			return true
		default:
			return false
		}
	default:
		return false
	}
}

// enabledStatus values recognized on string status fields.
var (
	statusEnabled  = map[string]bool{"active": true, "enabled": true, "on": true, "published": true, "1": true}
	statusDisabled = map[string]bool{"inactive": true, "disabled": true, "off": true, "draft": true, "0": true}
)

// resolveEnabled implements the legacy enabled-status resolution:
// no status-like field at all means enabled; a recognized string status
// decides directly; anything else falls back to boolean coercion of the
// first non-empty candidate.
func resolveEnabled(rec Record) bool {
	var present []any
	for _, key := range aliasStatus {
		if v, ok := rec[key]; ok {
			present = append(present, v)
		}
	}
	if len(present) == 0 {
		return true
	}

	for _, v := range present {
		if s, ok := v.(string); ok {
			norm := strings.ToLower(strings.TrimSpace(s))
			if statusEnabled[norm] {
				return true
			}
			if statusDisabled[norm] {
				return false
			}
		}
	}

	for _, v := range present {
		if coerceString(v) != "" {
			return truthy(v)
		}
	}
	return false
}

// lookupStringSlice parses an allow-list value: a []any of scalars, a
// []string, or a comma-separated string.
func (r Record) lookupStringSlice(aliases []string) []string {
	v, ok := r.lookup(aliases)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []string:
		return trimAll(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := coerceString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		return trimAll(strings.Split(t, ","))
	default:
		return nil
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// lookupCondition extracts an embedded jsonlogic object, if any.
func (r Record) lookupCondition() map[string]any {
	v, ok := r.lookup(aliasCondition)
	if !ok {
		return nil
	}
	if m, ok := v.(map[string]any); ok && len(m) > 0 {
		return m
	}
	return nil
}

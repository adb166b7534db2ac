package rule

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// iconLookup maps admin icon tokens to the emoji the overlay renders.
var iconLookup = map[string]string{
	"truck":    "🚚",
	"shipping": "🚚",
	"gift":     "🎁",
	"present":  "🎁",
	"tag":      "🏷️",
	"percent":  "💸",
	"coupon":   "🎟️",
	"star":     "⭐",
	"fire":     "🔥",
	"crown":    "👑",
	"heart":    "❤️",
	"party":    "🎉",
	"sparkles": "✨",
}

// defaultIconToken is used when a record carries no icon token or an
// unknown one.
const defaultIconToken = "sparkles"

// ResolveIcon maps an icon token onto its emoji, defaulting to sparkles.
func ResolveIcon(token string) string {
	if emoji, ok := iconLookup[strings.ToLower(strings.TrimSpace(token))]; ok {
		return emoji
	}
	return iconLookup[defaultIconToken]
}

var (
	stepTokenRe = regexp.MustCompile(`^step([1-9][0-9]*)$`)
	slotSepRe   = regexp.MustCompile(`[\s_\-.]+`)
	slugRe      = regexp.MustCompile(`[^a-z0-9]+`)
)

// InferSlot normalizes a raw slot value into an ordinal 1-4.
// Accepts explicit tokens ("step2", "Step 2", "STEP_2"), plain numerics,
// and numeric strings. Anything outside 1-4 is rejected.
func InferSlot(v any) (int, error) {
	if n, ok := coerceInt(v); ok && coerceString(v) != "" {
		if n >= 1 && n <= MaxStepSlots {
			return n, nil
		}
		return 0, shared.ErrRuleInvalidSlot
	}

	s := strings.ToLower(coerceString(v))
	if s == "" {
		return 0, shared.ErrRuleInvalidSlot
	}
	s = slotSepRe.ReplaceAllString(s, "")
	if m := stepTokenRe.FindStringSubmatch(s); m != nil {
		if n, _ := coerceInt(m[1]); n >= 1 && n <= MaxStepSlots {
			return n, nil
		}
	}
	return 0, shared.ErrRuleInvalidSlot
}

// slugify renders a name-like field into a key-safe slug.
func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = slugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// identityKey derives the rule's identity: explicit id, else step slot,
// else slugged name, each prefixed with the kind.
func identityKey(rec Record, kind Kind, slot int) (shared.RuleKey, error) {
	if id := rec.lookupString(aliasID); id != "" {
		return shared.RuleKey(fmt.Sprintf("%s:%s", kind, id)), nil
	}
	if slot >= 1 && slot <= MaxStepSlots {
		return shared.RuleKey(fmt.Sprintf("%s:step%d", kind, slot)), nil
	}
	if name := slugify(rec.lookupString(aliasName)); name != "" {
		return shared.RuleKey(fmt.Sprintf("%s:%s", kind, name)), nil
	}
	return "", shared.ErrRuleNoIdentity
}

// goalAliases returns the kind-specific minimum-amount alias table.
func goalAliases(kind Kind) []string {
	switch kind {
	case KindShipping:
		return aliasGoalShipping
	case KindDiscount:
		return aliasGoalDiscount
	case KindFreeGift:
		return aliasGoalFreeGift
	default:
		return aliasMinPurchase
	}
}

// extractGoal reads the kind-specific goal amount in minor units.
// The second return distinguishes "no goal field at all" from "present but
// unparsable or non-positive": the former rejects the rule, the latter
// leaves the step unresolved.
func extractGoal(rec Record, kind Kind) (shared.Money, bool) {
	v, present := rec.lookup(goalAliases(kind))
	if !present {
		return 0, false
	}
	m, ok := shared.ParseMoney(v)
	if !ok {
		return 0, true
	}
	return m, true
}

// Normalizer maps raw catalog records onto canonical Rules.
// It is stateless; a single instance serves all sessions.
type Normalizer struct{}

// NewNormalizer creates a Normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Normalize produces a canonical Rule from a raw record, or rejects it.
// Rejected rules are excluded from all downstream consideration.
func (n *Normalizer) Normalize(rec Record, kind Kind) (*Rule, error) {
	if rec == nil || !kind.IsValid() {
		return nil, shared.ErrRuleKindMismatch
	}
	if !resolveEnabled(rec) {
		return nil, shared.ErrRuleDisabled
	}

	slot := 0
	if v, ok := rec.lookup(aliasSlot); ok {
		if s, err := InferSlot(v); err == nil {
			slot = s
		}
	}

	key, err := identityKey(rec, kind, slot)
	if err != nil {
		return nil, err
	}

	r := &Rule{
		Kind:          kind,
		Key:           key,
		Slot:          slot,
		Title:         rec.lookupString(aliasName),
		Icon:          ResolveIcon(rec.lookupString(aliasIcon)),
		BeforeMessage: rec.lookupString(aliasBefore),
		AfterMessage:  rec.lookupString(aliasAfter),
		BelowMessage:  rec.lookupString(aliasBelow),
		Condition:     rec.lookupCondition(),
	}

	switch kind {
	case KindShipping, KindFreeGift:
		goal, present := extractGoal(rec, kind)
		if !present {
			return nil, shared.ErrRuleMissingGoal
		}
		r.Goal = goal
		if kind == KindFreeGift {
			r.RewardVariant = shared.ParseVariantID(rec.lookupString(aliasVariant))
		}

	case KindDiscount:
		goal, present := extractGoal(rec, kind)
		if !present {
			return nil, shared.ErrRuleMissingGoal
		}
		r.Goal = goal
		r.DiscountType = normalizeDiscountType(rec.lookupString(aliasDiscountType))
		r.DiscountCode = rec.lookupString(aliasDiscountCode)
		r.DiscountValue = rec.lookupString(aliasDiscountValue)
		// A configured code implies the code sub-type even when the
		// legacy type field is absent.
		if r.DiscountType == "" {
			if r.DiscountCode != "" {
				r.DiscountType = DiscountCode
			} else {
				r.DiscountType = DiscountAutomatic
			}
		}

	case KindBXGY, KindBuyXGetY:
		if v, present := rec.lookup(aliasMinPurchase); present {
			if m, ok := shared.ParseMoney(v); ok {
				r.MinPurchase = m
			}
		}
		if v, ok := rec.lookup(aliasBuyQty); ok {
			if q, ok := coerceInt(v); ok && q > 0 {
				r.MinQuantity = q
			}
		}
		if v, ok := rec.lookup(aliasGetQty); ok {
			if q, ok := coerceInt(v); ok && q > 0 {
				r.GetQuantity = q
			}
		}
		r.Scope = normalizeScope(rec.lookupString(aliasScope))
		r.AllowList = rec.lookupStringSlice(aliasAllowList)
		r.RewardVariant = shared.ParseVariantID(rec.lookupString(aliasVariant))
	}

	return r, nil
}

// normalizeDiscountType maps legacy type values onto the two sub-types.
func normalizeDiscountType(raw string) DiscountType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "code", "coupon", "manual":
		return DiscountCode
	case "automatic", "auto":
		return DiscountAutomatic
	default:
		return ""
	}
}

// normalizeScope maps legacy scope values, defaulting to store.
func normalizeScope(raw string) Scope {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "product", "products":
		return ScopeProduct
	case "collection", "collections":
		return ScopeCollection
	default:
		return ScopeStore
	}
}

// Rejection records why a raw record was excluded during catalog
// normalization.
type Rejection struct {
	Kind   Kind
	Reason error
}

// NormalizeCatalog normalizes every record of a raw catalog, collecting
// rejections instead of failing. Catalog order within each kind is
// preserved; BXGY single-winner selection depends on it.
func (n *Normalizer) NormalizeCatalog(raw *RawCatalog) (*Catalog, []Rejection) {
	cat := &Catalog{}
	var rejected []Rejection

	normalize := func(records []Record, kind Kind, dst *[]*Rule) {
		for _, rec := range records {
			r, err := n.Normalize(rec, kind)
			if err != nil {
				rejected = append(rejected, Rejection{Kind: kind, Reason: err})
				continue
			}
			*dst = append(*dst, r)
		}
	}

	if raw != nil {
		normalize(raw.Shipping, KindShipping, &cat.Shipping)
		normalize(raw.Discount, KindDiscount, &cat.Discount)
		normalize(raw.FreeGift, KindFreeGift, &cat.FreeGift)
		normalize(raw.BXGY, KindBXGY, &cat.BXGY)
		normalize(raw.BuyXGetY, KindBuyXGetY, &cat.BuyXGetY)
		cat.Fallback = raw.Fallback
	}
	return cat, rejected
}

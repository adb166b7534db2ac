// Package rule contains the canonical promotion rule model and the
// normalizer that maps heterogeneous merchant-configured records onto it.
// Raw records arrive as arbitrary key-value maps with years of accumulated
// field-name aliases; everything downstream only ever sees canonical Rules.
package rule

import (
	"fmt"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Kind discriminates the five canonical rule kinds.
type Kind string

const (
	// KindShipping unlocks free or discounted shipping at a subtotal goal.
	KindShipping Kind = "shipping"

	// KindDiscount unlocks a discount at a subtotal goal. Sub-typed into
	// automatic (occupies a step slot) and code (announcements only).
	KindDiscount Kind = "discount"

	// KindFreeGift grants a gift product at a subtotal goal.
	KindFreeGift Kind = "freegift"

	// KindBXGY is the threshold-based buy-X-get-Y offer family with
	// single-winner announcement semantics.
	KindBXGY Kind = "bxgy"

	// KindBuyXGetY is the scoped-quantity offer family; every configured
	// rule is evaluated and announced independently.
	KindBuyXGetY Kind = "buyxgety"
)

// IsValid checks that the kind is one of the five canonical kinds.
func (k Kind) IsValid() bool {
	switch k {
	case KindShipping, KindDiscount, KindFreeGift, KindBXGY, KindBuyXGetY:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (k Kind) String() string {
	return string(k)
}

// DiscountType is the sub-type of a discount rule.
type DiscountType string

const (
	// DiscountAutomatic applies without a code and occupies a step slot.
	DiscountAutomatic DiscountType = "automatic"

	// DiscountCode requires the customer to enter a code; it never takes
	// a step slot and only feeds the announcement list.
	DiscountCode DiscountType = "code"
)

// Scope restricts which cart lines count toward a BuyXGetY rule.
type Scope string

const (
	// ScopeStore considers the whole cart (default).
	ScopeStore Scope = "store"

	// ScopeProduct restricts to an explicit product allow-list.
	ScopeProduct Scope = "product"

	// ScopeCollection restricts to lines carrying an allowed collection.
	ScopeCollection Scope = "collection"
)

// MaxStepSlots is the number of fixed ordinal positions in the milestone
// progress track.
const MaxStepSlots = 4

// Rule is a normalized promotion rule. Field relevance depends on Kind;
// irrelevant fields hold zero values.
type Rule struct {
	// Kind is the canonical rule kind.
	Kind Kind

	// Key is the identity key, kind-prefixed ("freegift:step2").
	Key shared.RuleKey

	// Title is the display title.
	Title string

	// Icon is the resolved emoji for the rule's icon token.
	Icon string

	// Goal is the subtotal threshold in minor units for step-slot kinds.
	// Zero means unresolved; the progress calculator treats the step as
	// blocking and the enforcer treats granted rewards as invalid.
	Goal shared.Money

	// Slot is the step-slot ordinal (1-4), zero when the rule takes no slot.
	Slot int

	// BeforeMessage is the template shown while the goal is unmet.
	BeforeMessage string

	// AfterMessage is the template shown once the goal is met.
	AfterMessage string

	// BelowMessage is the secondary template rendered under the bar.
	BelowMessage string

	// DiscountType distinguishes code and automatic discounts.
	DiscountType DiscountType

	// DiscountCode is the code to announce (code discounts only).
	DiscountCode string

	// DiscountValue is the display value, e.g. "10" or "15%".
	DiscountValue string

	// MinPurchase is the minimum-purchase threshold for offer kinds.
	// Takes priority over MinQuantity when positive.
	MinPurchase shared.Money

	// MinQuantity is the buy-quantity (x) for offer kinds.
	MinQuantity int

	// GetQuantity is the reward quantity (y) for offer kinds.
	GetQuantity int

	// Scope restricts eligible lines for BuyXGetY rules.
	Scope Scope

	// AllowList is the product or collection identifiers for the scope.
	AllowList []string

	// RewardVariant is the variant granted when the rule completes.
	RewardVariant shared.VariantID

	// Condition is an optional merchant-defined jsonlogic predicate,
	// AND-ed with the built-in eligibility when present.
	Condition map[string]any
}

// GuardKey returns the key used for persisted popup/auto-add flags.
// FreeGift rules key by step slot so that replacing the configured gift
// does not re-trigger a prompt within the same session.
func (r *Rule) GuardKey() shared.RuleKey {
	if r.Kind == KindFreeGift && r.Slot > 0 {
		return shared.RuleKey(fmt.Sprintf("%s:step%d", KindFreeGift, r.Slot))
	}
	return r.Key
}

// TakesStepSlot reports whether the rule occupies a milestone step.
// Code discounts drive announcements only.
func (r *Rule) TakesStepSlot() bool {
	switch r.Kind {
	case KindShipping, KindFreeGift:
		return r.Slot >= 1 && r.Slot <= MaxStepSlots
	case KindDiscount:
		return r.DiscountType == DiscountAutomatic && r.Slot >= 1 && r.Slot <= MaxStepSlots
	default:
		return false
	}
}

// HasResolvedGoal reports whether the rule carries a usable numeric goal.
func (r *Rule) HasResolvedGoal() bool {
	return r.Goal.IsPositive()
}

// GrantsReward reports whether completing the rule inserts a cart line.
func (r *Rule) GrantsReward() bool {
	switch r.Kind {
	case KindFreeGift, KindBXGY, KindBuyXGetY:
		return r.RewardVariant.IsValid()
	default:
		return false
	}
}

// RewardQuantity returns the number of units a granted reward adds.
func (r *Rule) RewardQuantity() int {
	if r.GetQuantity > 0 {
		return r.GetQuantity
	}
	return 1
}

// AllowSet returns the allow-list as a membership set.
func (r *Rule) AllowSet() map[string]struct{} {
	if len(r.AllowList) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(r.AllowList))
	for _, id := range r.AllowList {
		set[id] = struct{}{}
	}
	return set
}

// Package eligibility computes completion state for offer rules (BXGY and
// BuyXGetY) against the current cart snapshot. Records are derived values:
// recomputed on every pass, never mutated in place.
package eligibility

import (
	"strconv"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Record is the derived eligibility state for one rule.
type Record struct {
	// Rule is the evaluated rule.
	Rule *rule.Rule

	// Key is the rule's identity key.
	Key shared.RuleKey

	// Complete reports whether the rule's threshold is currently met.
	Complete bool

	// BeforeMessage is the substituted locked-state text.
	BeforeMessage string

	// AfterMessage is the substituted unlocked-state text.
	AfterMessage string

	// CurrentMessage is AfterMessage when complete, BeforeMessage
	// otherwise.
	CurrentMessage string
}

// Evaluator computes eligibility records.
type Evaluator struct {
	// conditions evaluates optional merchant-defined custom predicates.
	// Nil disables custom conditions entirely.
	conditions rule.ConditionEvaluator
}

// NewEvaluator creates an Evaluator. The condition evaluator may be nil.
func NewEvaluator(conditions rule.ConditionEvaluator) *Evaluator {
	return &Evaluator{conditions: conditions}
}

// scopedAmounts resolves the subtotal and unit quantity visible to the rule
// under its scope. Reward lines never count toward their own eligibility.
func scopedAmounts(r *rule.Rule, snap *cart.Snapshot) (shared.Money, int) {
	switch r.Scope {
	case rule.ScopeProduct:
		allow := r.AllowSet()
		return snap.SubtotalOfProducts(allow), snap.QuantityOfProducts(allow)
	case rule.ScopeCollection:
		allow := r.AllowSet()
		return snap.SubtotalInCollections(allow), snap.QuantityInCollections(allow)
	default:
		return snap.Subtotal, snap.TotalQuantity()
	}
}

// complete applies the completion rule in priority order: a positive
// minimum-purchase threshold wins over a positive buy-quantity; a rule
// carrying neither can never complete.
func complete(r *rule.Rule, subtotal shared.Money, qty int) bool {
	// A restrictive scope with nothing eligible in the cart is always
	// incomplete, regardless of threshold math.
	if r.Scope != rule.ScopeStore && qty == 0 {
		return false
	}
	if r.MinPurchase.IsPositive() {
		return subtotal >= r.MinPurchase
	}
	if r.MinQuantity > 0 {
		return qty >= r.MinQuantity
	}
	return false
}

// Evaluate computes the eligibility record for a single offer rule.
func (e *Evaluator) Evaluate(r *rule.Rule, snap *cart.Snapshot) Record {
	subtotal, qty := scopedAmounts(r, snap)

	done := complete(r, subtotal, qty)
	if done && r.Condition != nil && e.conditions != nil {
		ok, err := e.conditions.Evaluate(r.Condition, conditionData(snap))
		// Evaluation failure counts as condition-not-met, never as a
		// pass failure.
		done = err == nil && ok
	}

	before := rule.Substitute(r.BeforeMessage, beforeTokens(r, subtotal, qty))
	after := rule.Substitute(r.AfterMessage, r.Tokens(0))

	rec := Record{
		Rule:          r,
		Key:           r.Key,
		Complete:      done,
		BeforeMessage: before,
		AfterMessage:  after,
	}
	if done {
		rec.CurrentMessage = after
	} else {
		rec.CurrentMessage = before
	}
	return rec
}

// beforeTokens builds the locked-state token set: {{goal}} renders the
// outstanding amount for purchase-threshold rules, {{x}} the outstanding
// quantity for quantity rules.
func beforeTokens(r *rule.Rule, subtotal shared.Money, qty int) rule.TokenValues {
	remaining := shared.Money(0)
	if r.MinPurchase.IsPositive() {
		remaining = r.MinPurchase.Sub(subtotal)
	}
	values := r.Tokens(remaining)
	if !r.MinPurchase.IsPositive() && r.MinQuantity > 0 {
		left := r.MinQuantity - qty
		if left < 0 {
			left = 0
		}
		values["x"] = strconv.Itoa(left)
	}
	return values
}

// EvaluateBest applies BXGY single-winner semantics over the rule list in
// catalog order: the first rule encountered is the fallback best, but the
// first complete rule wins immediately and stops iteration.
func (e *Evaluator) EvaluateBest(rules []*rule.Rule, snap *cart.Snapshot) (Record, bool) {
	var best Record
	found := false
	for _, r := range rules {
		rec := e.Evaluate(r, snap)
		if !found {
			best = rec
			found = true
		}
		if rec.Complete {
			return rec, true
		}
	}
	return best, found
}

// EvaluateAll evaluates every rule independently, catalog order preserved.
// Used for the BuyXGetY multi-rule list.
func (e *Evaluator) EvaluateAll(rules []*rule.Rule, snap *cart.Snapshot) []Record {
	if len(rules) == 0 {
		return nil
	}
	out := make([]Record, 0, len(rules))
	for _, r := range rules {
		out = append(out, e.Evaluate(r, snap))
	}
	return out
}

// conditionData projects the snapshot into the flat map custom conditions
// evaluate against.
func conditionData(snap *cart.Snapshot) map[string]any {
	items := make([]any, 0, len(snap.Items))
	for _, l := range snap.Items {
		items = append(items, map[string]any{
			"product_id": l.ProductID,
			"variant_id": l.VariantID.String(),
			"quantity":   l.Quantity,
			"line_price": l.LinePrice.Major(),
			"reward":     l.IsReward(),
		})
	}
	return map[string]any{
		"subtotal":   snap.Subtotal.Major(),
		"item_count": snap.ItemCount,
		"currency":   snap.Currency,
		"items":      items,
	}
}

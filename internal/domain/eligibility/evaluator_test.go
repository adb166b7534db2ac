package eligibility

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// stubConditions returns a fixed verdict for every condition.
type stubConditions struct {
	ok  bool
	err error
}

func (s stubConditions) Evaluate(_ map[string]any, _ map[string]any) (bool, error) {
	return s.ok, s.err
}

func offerRule(key string) *rule.Rule {
	return &rule.Rule{
		Kind:  rule.KindBXGY,
		Key:   shared.RuleKey(key),
		Scope: rule.ScopeStore,
	}
}

func snapshotWith(lines ...cart.LineItem) *cart.Snapshot {
	snap := &cart.Snapshot{Currency: "USD"}
	for i := range lines {
		lines[i].Index = i + 1
		snap.Items = append(snap.Items, lines[i])
		snap.Subtotal += lines[i].LinePrice
		snap.ItemCount += lines[i].Quantity
	}
	return snap
}

func TestEvaluate_MinPurchaseWinsOverMinQuantity(t *testing.T) {
	// Quantity alone would satisfy this rule, but a positive MinPurchase
	// takes priority and the subtotal falls short.
	r := offerRule("bxgy:both")
	r.MinPurchase = shared.Money(5000)
	r.MinQuantity = 1

	snap := snapshotWith(cart.LineItem{
		VariantID: 11, ProductID: "p1", Quantity: 3, LinePrice: shared.Money(3000),
	})

	rec := NewEvaluator(nil).Evaluate(r, snap)
	assert.False(t, rec.Complete)

	snap.Subtotal = shared.Money(5000)
	rec = NewEvaluator(nil).Evaluate(r, snap)
	assert.True(t, rec.Complete)
}

func TestEvaluate_MinQuantityWhenNoPurchaseThreshold(t *testing.T) {
	r := offerRule("bxgy:qty")
	r.MinQuantity = 2

	one := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(1000)})
	two := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 2, LinePrice: shared.Money(2000)})

	e := NewEvaluator(nil)
	assert.False(t, e.Evaluate(r, one).Complete)
	assert.True(t, e.Evaluate(r, two).Complete)
}

func TestEvaluate_NoThresholdNeverCompletes(t *testing.T) {
	r := offerRule("bxgy:none")

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 5, LinePrice: shared.Money(9000)})

	rec := NewEvaluator(nil).Evaluate(r, snap)
	assert.False(t, rec.Complete)
}

func TestEvaluate_ProductScopeCountsOnlyAllowedLines(t *testing.T) {
	r := offerRule("bxgy:scoped")
	r.Scope = rule.ScopeProduct
	r.AllowList = []string{"p1"}
	r.MinPurchase = shared.Money(2000)

	snap := snapshotWith(
		cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(1500)},
		cart.LineItem{VariantID: 12, ProductID: "p2", Quantity: 1, LinePrice: shared.Money(8000)},
	)

	// The out-of-scope line's amount does not count.
	rec := NewEvaluator(nil).Evaluate(r, snap)
	assert.False(t, rec.Complete)

	snap.Items[0].LinePrice = shared.Money(2000)
	rec = NewEvaluator(nil).Evaluate(r, snap)
	assert.True(t, rec.Complete)
}

func TestEvaluate_CollectionScope(t *testing.T) {
	r := offerRule("bxgy:coll")
	r.Scope = rule.ScopeCollection
	r.AllowList = []string{"summer"}
	r.MinQuantity = 2

	snap := snapshotWith(
		cart.LineItem{
			VariantID: 11, ProductID: "p1", Quantity: 2, LinePrice: shared.Money(2000),
			Properties: map[string]string{cart.PropCollections: "summer, clearance"},
		},
		cart.LineItem{VariantID: 12, ProductID: "p2", Quantity: 4, LinePrice: shared.Money(4000)},
	)

	rec := NewEvaluator(nil).Evaluate(r, snap)
	assert.True(t, rec.Complete)

	snap.Items[0].Quantity = 1
	rec = NewEvaluator(nil).Evaluate(r, snap)
	assert.False(t, rec.Complete)
}

func TestEvaluate_RestrictiveScopeWithEmptyMatchNeverCompletes(t *testing.T) {
	r := offerRule("bxgy:empty")
	r.Scope = rule.ScopeProduct
	r.AllowList = []string{"p9"}
	// A zero threshold would trivially hold against a zero subtotal, but
	// nothing in the cart matches the scope so the rule stays incomplete.
	r.MinQuantity = 0
	r.MinPurchase = shared.Money(0)

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 3, LinePrice: shared.Money(3000)})

	rec := NewEvaluator(nil).Evaluate(r, snap)
	assert.False(t, rec.Complete)
}

func TestEvaluate_RewardLinesExcludedFromOwnEligibility(t *testing.T) {
	r := offerRule("bxgy:self")
	r.MinQuantity = 2

	snap := snapshotWith(
		cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(1000)},
		cart.LineItem{
			VariantID: 99, ProductID: "p9", Quantity: 1, LinePrice: shared.Money(0),
			Properties: map[string]string{cart.PropReward: "true", cart.PropRuleKey: "bxgy:self"},
		},
	)

	rec := NewEvaluator(nil).Evaluate(r, snap)
	assert.False(t, rec.Complete)
}

func TestEvaluate_CustomConditionGatesCompletion(t *testing.T) {
	r := offerRule("bxgy:cond")
	r.MinQuantity = 1
	r.Condition = map[string]any{">": []any{map[string]any{"var": "subtotal"}, 10}}

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(2500)})

	assert.True(t, NewEvaluator(stubConditions{ok: true}).Evaluate(r, snap).Complete)
	assert.False(t, NewEvaluator(stubConditions{ok: false}).Evaluate(r, snap).Complete)

	// Evaluation failure counts as condition-not-met, not as an error.
	failed := NewEvaluator(stubConditions{err: errors.New("malformed")}).Evaluate(r, snap)
	assert.False(t, failed.Complete)

	// A nil condition evaluator disables custom conditions entirely.
	assert.True(t, NewEvaluator(nil).Evaluate(r, snap).Complete)
}

func TestEvaluate_ConditionSkippedWhenThresholdUnmet(t *testing.T) {
	r := offerRule("bxgy:cond-unmet")
	r.MinQuantity = 5
	r.Condition = map[string]any{"==": []any{1, 1}}

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(1000)})

	// The condition alone can never complete a rule.
	rec := NewEvaluator(stubConditions{ok: true}).Evaluate(r, snap)
	assert.False(t, rec.Complete)
}

func TestEvaluate_MessageSubstitution(t *testing.T) {
	r := offerRule("bxgy:msg")
	r.MinPurchase = shared.Money(5000)
	r.BeforeMessage = "Spend {{goal}} more to unlock"
	r.AfterMessage = "Offer unlocked!"

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(3000)})

	rec := NewEvaluator(nil).Evaluate(r, snap)
	assert.Equal(t, "Spend 20 more to unlock", rec.BeforeMessage)
	assert.Equal(t, "Offer unlocked!", rec.AfterMessage)
	assert.Equal(t, rec.BeforeMessage, rec.CurrentMessage)

	snap.Items[0].LinePrice = shared.Money(6000)
	snap.Subtotal = shared.Money(6000)
	rec = NewEvaluator(nil).Evaluate(r, snap)
	assert.True(t, rec.Complete)
	assert.Equal(t, rec.AfterMessage, rec.CurrentMessage)
}

func TestEvaluate_QuantityTokenRendersRemainingUnits(t *testing.T) {
	r := offerRule("bxgy:xtoken")
	r.MinQuantity = 3
	r.BeforeMessage = "Add {{x}} more items"

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(1000)})

	rec := NewEvaluator(nil).Evaluate(r, snap)
	assert.Equal(t, "Add 2 more items", rec.BeforeMessage)

	// Overshoot clamps the outstanding quantity at zero.
	snap.Items[0].Quantity = 5
	rec = NewEvaluator(nil).Evaluate(r, snap)
	assert.Equal(t, "Add 0 more items", rec.BeforeMessage)
}

func TestEvaluate_DeterministicForIdenticalInputs(t *testing.T) {
	r := offerRule("bxgy:det")
	r.MinPurchase = shared.Money(5000)
	r.BeforeMessage = "Spend {{goal}} more to unlock"

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 2, LinePrice: shared.Money(3000)})

	e := NewEvaluator(nil)
	assert.Equal(t, e.Evaluate(r, snap), e.Evaluate(r, snap))
}

func TestEvaluateBest_FirstCompleteWins(t *testing.T) {
	first := offerRule("bxgy:a")
	first.MinPurchase = shared.Money(9000)
	second := offerRule("bxgy:b")
	second.MinQuantity = 1
	third := offerRule("bxgy:c")
	third.MinQuantity = 1

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(1000)})

	best, ok := NewEvaluator(nil).EvaluateBest([]*rule.Rule{first, second, third}, snap)
	assert.True(t, ok)
	assert.True(t, best.Complete)
	// The second rule wins even though the third would also complete.
	assert.Equal(t, shared.RuleKey("bxgy:b"), best.Key)
}

func TestEvaluateBest_FallsBackToFirstRule(t *testing.T) {
	first := offerRule("bxgy:a")
	first.MinPurchase = shared.Money(9000)
	second := offerRule("bxgy:b")
	second.MinPurchase = shared.Money(8000)

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(1000)})

	best, ok := NewEvaluator(nil).EvaluateBest([]*rule.Rule{first, second}, snap)
	assert.True(t, ok)
	assert.False(t, best.Complete)
	assert.Equal(t, shared.RuleKey("bxgy:a"), best.Key)
}

func TestEvaluateBest_EmptyList(t *testing.T) {
	_, ok := NewEvaluator(nil).EvaluateBest(nil, snapshotWith())
	assert.False(t, ok)
}

func TestEvaluateAll_PreservesCatalogOrder(t *testing.T) {
	first := offerRule("bxgy:a")
	first.MinQuantity = 1
	second := offerRule("bxgy:b")
	second.MinPurchase = shared.Money(9000)

	snap := snapshotWith(cart.LineItem{VariantID: 11, ProductID: "p1", Quantity: 1, LinePrice: shared.Money(1000)})

	recs := NewEvaluator(nil).EvaluateAll([]*rule.Rule{first, second}, snap)
	assert.Len(t, recs, 2)
	assert.Equal(t, shared.RuleKey("bxgy:a"), recs[0].Key)
	assert.True(t, recs[0].Complete)
	assert.Equal(t, shared.RuleKey("bxgy:b"), recs[1].Key)
	assert.False(t, recs[1].Complete)

	assert.Nil(t, NewEvaluator(nil).EvaluateAll(nil, snap))
}

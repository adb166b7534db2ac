package announce

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

func codeRule(code, before, after string) *rule.Rule {
	return &rule.Rule{
		Kind:          rule.KindDiscount,
		Key:           shared.RuleKey("discount:" + code),
		DiscountType:  rule.DiscountCode,
		DiscountCode:  code,
		BeforeMessage: before,
		AfterMessage:  after,
	}
}

func record(key, msg string) eligibility.Record {
	return eligibility.Record{Key: shared.RuleKey(key), CurrentMessage: msg}
}

func TestBuild_PriorityOrder(t *testing.T) {
	snap := &cart.Snapshot{DiscountCodes: []string{"SAVE10"}}
	code := codeRule("SAVE10", "Use SAVE10 at checkout", "SAVE10 applied")
	best := record("bxgy:a", "Best offer message")
	offers := []eligibility.Record{
		record("buyxgety:a", "First multi offer"),
		record("buyxgety:b", "Second multi offer"),
	}
	fallback := []string{"Free returns on all orders"}

	got := NewAggregator().Build([]*rule.Rule{code}, snap, &best, offers, fallback)

	assert.Equal(t, []string{
		"SAVE10 applied",
		"Best offer message",
		"First multi offer",
		"Second multi offer",
		"Free returns on all orders",
	}, got)
}

func TestBuild_CodeDiscountStateFollowsCart(t *testing.T) {
	code := codeRule("SAVE10", "Use code {{discount_code}} for {{discount_value_with_suffix}} off", "Code {{discount_code}} applied")
	code.DiscountValue = "10"

	without := NewAggregator().Build([]*rule.Rule{code}, &cart.Snapshot{}, nil, nil, nil)
	assert.Equal(t, []string{"Use code SAVE10 for 10% off"}, without)

	// Code matching is case-insensitive.
	snap := &cart.Snapshot{DiscountCodes: []string{"save10"}}
	with := NewAggregator().Build([]*rule.Rule{code}, snap, nil, nil, nil)
	assert.Equal(t, []string{"Code SAVE10 applied"}, with)
}

func TestBuild_DedupesCaseInsensitively(t *testing.T) {
	best := record("bxgy:a", "Free shipping unlocked")
	offers := []eligibility.Record{
		record("buyxgety:a", "  FREE SHIPPING UNLOCKED  "),
		record("buyxgety:b", "Another message"),
	}

	got := NewAggregator().Build(nil, nil, &best, offers, []string{"another message"})

	// First-seen casing wins; later variants are dropped.
	assert.Equal(t, []string{"Free shipping unlocked", "Another message"}, got)
}

func TestBuild_SkipsEmptyMessages(t *testing.T) {
	best := record("bxgy:a", "   ")
	offers := []eligibility.Record{record("buyxgety:a", "")}

	got := NewAggregator().Build(nil, nil, &best, offers, []string{"", "Only real message"})
	assert.Equal(t, []string{"Only real message"}, got)
}

func TestBuild_NilInputs(t *testing.T) {
	assert.Empty(t, NewAggregator().Build(nil, nil, nil, nil, nil))
}

func TestBuild_NilSnapshotRendersLockedCodeMessage(t *testing.T) {
	code := codeRule("SAVE10", "Unlock with {{discount_code}}", "Applied")

	got := NewAggregator().Build([]*rule.Rule{code}, nil, nil, nil, nil)
	assert.Equal(t, []string{"Unlock with SAVE10"}, got)
}

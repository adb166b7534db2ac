package rule

import (
	"context"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// RawCatalog is the merchant configuration as fetched: named record arrays,
// one per rule kind, each record an arbitrary key-value map.
type RawCatalog struct {
	Shipping []Record `json:"shipping" yaml:"shipping"`
	Discount []Record `json:"discount" yaml:"discount"`
	FreeGift []Record `json:"free_gift" yaml:"free_gift"`
	BXGY     []Record `json:"bxgy" yaml:"bxgy"`
	BuyXGetY []Record `json:"buy_x_get_y" yaml:"buy_x_get_y"`

	// Fallback is the external fallback announcement list appended after
	// all rule-derived messages.
	Fallback []string `json:"fallback_messages" yaml:"fallback_messages"`
}

// IsEmpty reports whether the raw catalog carries no records at all.
func (rc *RawCatalog) IsEmpty() bool {
	if rc == nil {
		return true
	}
	return len(rc.Shipping)+len(rc.Discount)+len(rc.FreeGift)+len(rc.BXGY)+len(rc.BuyXGetY) == 0
}

// Catalog is the normalized rule catalog: enabled, canonical rules only,
// catalog order preserved per kind.
type Catalog struct {
	Shipping []*Rule
	Discount []*Rule
	FreeGift []*Rule
	BXGY     []*Rule
	BuyXGetY []*Rule

	// Fallback carries the external fallback announcement list through.
	Fallback []string
}

// Empty returns a catalog with no rules, the degraded state used when the
// catalog source is unavailable.
func Empty() *Catalog {
	return &Catalog{}
}

// All returns every rule across kinds, kind blocks in fixed order.
func (c *Catalog) All() []*Rule {
	out := make([]*Rule, 0, c.Len())
	out = append(out, c.Shipping...)
	out = append(out, c.Discount...)
	out = append(out, c.FreeGift...)
	out = append(out, c.BXGY...)
	out = append(out, c.BuyXGetY...)
	return out
}

// Len counts rules across kinds.
func (c *Catalog) Len() int {
	return len(c.Shipping) + len(c.Discount) + len(c.FreeGift) + len(c.BXGY) + len(c.BuyXGetY)
}

// Find looks a rule up by identity key across all kinds.
func (c *Catalog) Find(key shared.RuleKey) (*Rule, bool) {
	if key == "" {
		return nil, false
	}
	for _, r := range c.All() {
		if r.Key == key {
			return r, true
		}
	}
	return nil, false
}

// StepRules returns the rules occupying step slots, indexed by slot (1-4).
// Exactly one rule may occupy a slot; on a merchant misconfiguration the
// first rule in kind order wins and later claimants are ignored.
func (c *Catalog) StepRules() map[int]*Rule {
	slots := make(map[int]*Rule, MaxStepSlots)
	for _, r := range c.All() {
		if !r.TakesStepSlot() {
			continue
		}
		if _, taken := slots[r.Slot]; taken {
			continue
		}
		slots[r.Slot] = r
	}
	return slots
}

// CodeDiscounts returns discount rules of the code sub-type, catalog order.
func (c *Catalog) CodeDiscounts() []*Rule {
	var out []*Rule
	for _, r := range c.Discount {
		if r.DiscountType == DiscountCode {
			out = append(out, r)
		}
	}
	return out
}

// CatalogSource fetches the raw merchant catalog.
type CatalogSource interface {
	// Fetch returns the raw catalog for the session's shop.
	// Returns an error wrapping shared.ErrCatalogUnavailable on failure.
	Fetch(ctx context.Context, session shared.SessionToken) (*RawCatalog, error)
}

// ConditionEvaluator evaluates a merchant-defined custom condition against
// a data projection of the cart. Implementations live in infrastructure;
// the jsonlogic adapter is the production one.
type ConditionEvaluator interface {
	// Evaluate returns whether the condition holds. Errors are treated by
	// callers as condition-not-met, never as pass failures.
	Evaluate(condition map[string]any, data map[string]any) (bool, error)
}

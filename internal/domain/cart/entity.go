// Package cart contains the cart snapshot model the engine evaluates against.
// A snapshot is immutable per evaluation pass: it is replaced wholesale on
// every fetch and never patched in place.
package cart

import (
	"strings"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Marker property keys on reward line items. The engine writes them when
// granting a reward and reads them back when reconciling.
const (
	// PropReward marks a line item as engine-inserted.
	PropReward = "_perks_reward"

	// PropRuleKey carries the identity key of the originating rule.
	PropRuleKey = "_perks_rule_key"

	// PropHide asks the overlay to hide the line from the regular list.
	PropHide = "_perks_hide"

	// PropCollections carries a comma-separated list of collection
	// identifiers the product belongs to, as projected by the storefront.
	PropCollections = "_collection_ids"
)

// LineItem is one line of the cart snapshot.
type LineItem struct {
	// Index is the 1-based position of the line in the cart. Mutations
	// address lines by this index.
	Index int

	// Key is the storefront's stable line identifier, when it has one.
	Key string

	// VariantID identifies the purchasable variant.
	VariantID shared.VariantID

	// ProductID identifies the product (scope matching uses this).
	ProductID string

	// Quantity is the current line quantity.
	Quantity int

	// UnitPrice is the per-unit amount in minor units.
	UnitPrice shared.Money

	// LinePrice is the total line amount in minor units.
	LinePrice shared.Money

	// Title is the display title of the product.
	Title string

	// Image is the product image URL (display only).
	Image string

	// Properties is the free-form key-value bag attached to the line.
	Properties map[string]string
}

// IsReward reports whether this line was inserted by the engine.
func (l LineItem) IsReward() bool {
	v, ok := l.Properties[PropReward]
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

// RewardRuleKey returns the identity key of the rule that inserted this
// line, or empty if the line is not a reward line.
func (l LineItem) RewardRuleKey() shared.RuleKey {
	if !l.IsReward() {
		return ""
	}
	return shared.RuleKey(strings.TrimSpace(l.Properties[PropRuleKey]))
}

// CollectionIDs returns the collection identifiers projected onto this line.
func (l LineItem) CollectionIDs() []string {
	raw, ok := l.Properties[PropCollections]
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}

// InCollection reports whether the line belongs to any of the given
// collection identifiers.
func (l LineItem) InCollection(allow map[string]struct{}) bool {
	for _, id := range l.CollectionIDs() {
		if _, ok := allow[id]; ok {
			return true
		}
	}
	return false
}

// Snapshot is the full cart state at one point in time.
type Snapshot struct {
	// Items is the ordered line list, Index ascending.
	Items []LineItem

	// Subtotal is the cart subtotal in minor units.
	Subtotal shared.Money

	// ItemCount is the total unit count across lines.
	ItemCount int

	// Currency is the ISO currency code of all amounts.
	Currency string

	// DiscountCodes lists the discount codes currently applied.
	DiscountCodes []string

	// Attributes is the cart-level key-value bag.
	Attributes map[string]string
}

// HasDiscountCode reports whether the given code is applied,
// case-insensitively.
func (s *Snapshot) HasDiscountCode(code string) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	for _, c := range s.DiscountCodes {
		if strings.EqualFold(strings.TrimSpace(c), code) {
			return true
		}
	}
	return false
}

// RewardLines returns all engine-inserted lines, cart order preserved.
func (s *Snapshot) RewardLines() []LineItem {
	var out []LineItem
	for _, l := range s.Items {
		if l.IsReward() {
			out = append(out, l)
		}
	}
	return out
}

// FindRewardLine looks up the reward line granted by the given rule.
func (s *Snapshot) FindRewardLine(key shared.RuleKey) (LineItem, bool) {
	if key == "" {
		return LineItem{}, false
	}
	for _, l := range s.Items {
		if l.RewardRuleKey() == key {
			return l, true
		}
	}
	return LineItem{}, false
}

// QuantityOfProducts sums quantities of lines whose product ID is in the
// allow set. Reward lines never count toward their own eligibility.
func (s *Snapshot) QuantityOfProducts(allow map[string]struct{}) int {
	total := 0
	for _, l := range s.Items {
		if l.IsReward() {
			continue
		}
		if _, ok := allow[l.ProductID]; ok {
			total += l.Quantity
		}
	}
	return total
}

// QuantityInCollections sums quantities of lines belonging to any allowed
// collection, excluding reward lines.
func (s *Snapshot) QuantityInCollections(allow map[string]struct{}) int {
	total := 0
	for _, l := range s.Items {
		if l.IsReward() {
			continue
		}
		if l.InCollection(allow) {
			total += l.Quantity
		}
	}
	return total
}

// TotalQuantity sums all non-reward line quantities.
func (s *Snapshot) TotalQuantity() int {
	total := 0
	for _, l := range s.Items {
		if l.IsReward() {
			continue
		}
		total += l.Quantity
	}
	return total
}

// SubtotalOfProducts sums line amounts for products in the allow set,
// excluding reward lines.
func (s *Snapshot) SubtotalOfProducts(allow map[string]struct{}) shared.Money {
	var total shared.Money
	for _, l := range s.Items {
		if l.IsReward() {
			continue
		}
		if _, ok := allow[l.ProductID]; ok {
			total += l.LinePrice
		}
	}
	return total
}

// SubtotalInCollections sums line amounts for lines in allowed collections,
// excluding reward lines.
func (s *Snapshot) SubtotalInCollections(allow map[string]struct{}) shared.Money {
	var total shared.Money
	for _, l := range s.Items {
		if l.IsReward() {
			continue
		}
		if l.InCollection(allow) {
			total += l.LinePrice
		}
	}
	return total
}

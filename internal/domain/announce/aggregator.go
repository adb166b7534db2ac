// Package announce merges the human-readable status messages from all rule
// kinds into the single ordered list the overlay rotates through.
package announce

import (
	"strings"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// Aggregator builds announcement lists. Stateless.
type Aggregator struct{}

// NewAggregator creates an Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Build collects messages in fixed priority order: code-discount status,
// the single best BXGY message, every BuyXGetY current message, then the
// external fallback list. Duplicates are dropped case-insensitively on
// trimmed text, first-seen order preserved.
func (a *Aggregator) Build(
	codeDiscounts []*rule.Rule,
	snap *cart.Snapshot,
	best *eligibility.Record,
	offers []eligibility.Record,
	fallback []string,
) []string {
	var out []string
	seen := make(map[string]struct{})

	add := func(msg string) {
		msg = strings.TrimSpace(msg)
		if msg == "" {
			return
		}
		norm := strings.ToLower(msg)
		if _, dup := seen[norm]; dup {
			return
		}
		seen[norm] = struct{}{}
		out = append(out, msg)
	}

	// Code discounts announce their applied state: the after template
	// once the code is on the cart, the before template while it is not.
	for _, r := range codeDiscounts {
		if snap != nil && snap.HasDiscountCode(r.DiscountCode) {
			add(rule.Substitute(r.AfterMessage, r.Tokens(0)))
		} else {
			add(rule.Substitute(r.BeforeMessage, r.Tokens(r.Goal.Sub(snapSubtotal(snap)))))
		}
	}

	if best != nil {
		add(best.CurrentMessage)
	}

	for _, rec := range offers {
		add(rec.CurrentMessage)
	}

	for _, msg := range fallback {
		add(msg)
	}

	return out
}

func snapSubtotal(snap *cart.Snapshot) shared.Money {
	if snap == nil {
		return 0
	}
	return snap.Subtotal
}

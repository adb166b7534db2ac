package cart

import (
	"context"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// AddLineIntent asks the storefront to insert a reward line.
type AddLineIntent struct {
	// VariantID is the variant to add.
	VariantID shared.VariantID

	// Quantity is the number of units to add (at least 1).
	Quantity int

	// Properties are the marker properties to attach to the line.
	Properties map[string]string
}

// RuleKey extracts the originating rule key from the intent's markers.
func (i AddLineIntent) RuleKey() shared.RuleKey {
	return shared.RuleKey(i.Properties[PropRuleKey])
}

// ChangeLineIntent asks the storefront to set a line's quantity.
// Quantity zero removes the line.
type ChangeLineIntent struct {
	// LineIndex is the 1-based index of the line to change.
	LineIndex int

	// Quantity is the new quantity.
	Quantity int
}

// Source fetches the current cart snapshot from the storefront.
type Source interface {
	// Fetch returns a fresh snapshot for the session's cart.
	// Returns an error wrapping shared.ErrCartUnavailable on failure.
	Fetch(ctx context.Context, session shared.SessionToken) (*Snapshot, error)
}

// Mutator executes cart mutation intents against the storefront.
// Implementations must be safe for sequential reuse; the engine never
// issues overlapping mutations for one session.
type Mutator interface {
	// AddLine inserts a line item into the cart.
	AddLine(ctx context.Context, session shared.SessionToken, intent AddLineIntent) error

	// ChangeLine sets the quantity of an existing line.
	ChangeLine(ctx context.Context, session shared.SessionToken, intent ChangeLineIntent) error
}

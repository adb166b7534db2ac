package notification

import (
	"time"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// PopupIntent asks the overlay to open a celebration prompt.
type PopupIntent struct {
	// Kind is the originating rule kind.
	Kind rule.Kind

	// GuardKey identifies the guarded transition.
	GuardKey shared.RuleKey

	// Title is the rule's display title.
	Title string

	// Body is the token-substituted unlocked-state message.
	Body string

	// Icon is the rule's resolved emoji.
	Icon string

	// AutoCloseAfter closes the prompt without interaction when positive.
	// Free gifts are inherently non-interactive, so their prompts always
	// carry a delay.
	AutoCloseAfter time.Duration
}

// Action is one guarded transition decided during a pass. The caller
// executes the cart mutation (if any) and then commits the action so its
// guard flags persist; a failed mutation leaves flags untouched and the
// transition retries on the next eligible pass.
type Action struct {
	// GuardKey identifies the transition.
	GuardKey shared.RuleKey

	// Kind is the originating rule kind.
	Kind rule.Kind

	// Popup is the prompt to open, nil for silent auto-adds.
	Popup *PopupIntent

	// Add is the reward line to insert, nil when the transition only
	// shows a prompt.
	Add *cart.AddLineIntent

	// flagKeys are persisted on Commit.
	flagKeys []FlagKey
}

// Candidate pairs a reward-granting rule with its recomputed completion.
type Candidate struct {
	Rule     *rule.Rule
	Complete bool
}

// Decisions is the outcome of one state-machine pass.
type Decisions struct {
	// Actions are the transitions to execute and commit, catalog order.
	Actions []Action

	// Cleared lists guard keys whose flags were deleted because
	// completion lapsed.
	Cleared []shared.RuleKey

	// Skipped lists guard keys skipped because their reward variant did
	// not resolve.
	Skipped []shared.RuleKey
}

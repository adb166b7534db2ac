package command

import (
	"context"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
	"github.com/cartperks/cartperks-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APPLY REWARD COMMAND
// Inserts a reward line into the cart, idempotently: if a line carrying the
// same rule-identity marker already exists, the command is a no-op success.
// Without this guard two coalesced triggers could both observe "not yet
// added" and double-insert.
// ══════════════════════════════════════════════════════════════════════════════

// ApplyRewardResult reports whether a line was actually inserted.
type ApplyRewardResult struct {
	// Added is false when a matching reward line was already present.
	Added bool
}

// ApplyRewardHandler executes reward add intents.
type ApplyRewardHandler struct {
	mutator cart.Mutator
	log     *logger.Logger
}

// NewApplyRewardHandler creates the handler.
func NewApplyRewardHandler(mutator cart.Mutator, log *logger.Logger) *ApplyRewardHandler {
	if log == nil {
		log = logger.Default()
	}
	return &ApplyRewardHandler{mutator: mutator, log: log.With(logger.Component("apply_reward"))}
}

// Handle inserts the reward line described by the intent unless the
// snapshot already carries it.
func (h *ApplyRewardHandler) Handle(ctx context.Context, session shared.SessionToken, snap *cart.Snapshot, intent cart.AddLineIntent) (*ApplyRewardResult, error) {
	if !intent.VariantID.IsValid() {
		return nil, shared.ErrVariantUnknown
	}

	if snap != nil {
		if _, exists := snap.FindRewardLine(intent.RuleKey()); exists {
			h.log.Debug("reward line already present, skipping add",
				logger.Session(session),
				logger.RuleKey(intent.RuleKey()))
			return &ApplyRewardResult{Added: false}, nil
		}
	}

	if intent.Quantity < 1 {
		intent.Quantity = 1
	}
	if err := h.mutator.AddLine(ctx, session, intent); err != nil {
		return nil, shared.WrapError("cart", "AddLine", shared.ErrMutationFailed, "add reward line failed", err)
	}

	h.log.Info("reward line added",
		logger.Session(session),
		logger.RuleKey(intent.RuleKey()),
		logger.Variant(intent.VariantID),
		logger.Int("quantity", intent.Quantity))
	return &ApplyRewardResult{Added: true}, nil
}

// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"sync"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
	"github.com/cartperks/cartperks-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENFORCE REWARDS COMMAND
// Reconciles reward line items already in the cart against recomputed
// entitlement, removing lines that are stale or orphaned. Runs first in
// every evaluation pass so downstream components see a consistent cart.
// ══════════════════════════════════════════════════════════════════════════════

// RemovedLine describes one reward line the enforcer zeroed out.
type RemovedLine struct {
	// LineIndex is the 1-based cart index of the removed line.
	LineIndex int

	// RuleKey is the identity key the line carried.
	RuleKey shared.RuleKey

	// Reason is why the line lost entitlement.
	Reason RemovalReason
}

// RemovalReason classifies why a reward line was removed.
type RemovalReason string

const (
	// ReasonOrphaned - the originating rule no longer exists.
	ReasonOrphaned RemovalReason = "orphaned"

	// ReasonInvalid - the rule exists but no longer validates
	// (goal missing or non-positive).
	ReasonInvalid RemovalReason = "invalid"

	// ReasonIneligible - the rule validates but the cart no longer meets
	// its threshold.
	ReasonIneligible RemovalReason = "ineligible"
)

// EnforceRewardsResult is the outcome of one enforcement pass.
type EnforceRewardsResult struct {
	// Removed lists the lines zeroed out, in removal order
	// (descending line index).
	Removed []RemovedLine

	// Snapshot is the re-fetched cart when any line was removed,
	// otherwise the input snapshot unchanged.
	Snapshot *cart.Snapshot

	// Coalesced is true when another enforcement pass was already in
	// flight and this trigger was absorbed into it.
	Coalesced bool
}

// EnforceRewardsHandler runs enforcement passes.
type EnforceRewardsHandler struct {
	source    cart.Source
	mutator   cart.Mutator
	evaluator *eligibility.Evaluator
	log       *logger.Logger

	// running guards against overlapping passes on the same cart: a
	// quantity edit firing while a refresh is in flight coalesces instead
	// of racing. Keyed per session so one cart's pass never absorbs
	// another's.
	mu      sync.Mutex
	running map[shared.SessionToken]bool
}

// NewEnforceRewardsHandler creates the handler.
func NewEnforceRewardsHandler(source cart.Source, mutator cart.Mutator, evaluator *eligibility.Evaluator, log *logger.Logger) *EnforceRewardsHandler {
	if log == nil {
		log = logger.Default()
	}
	return &EnforceRewardsHandler{
		source:    source,
		mutator:   mutator,
		evaluator: evaluator,
		log:       log.With(logger.Component("enforcer")),
		running:   make(map[shared.SessionToken]bool),
	}
}

// acquire marks the session's pass as running. It reports false when a
// pass for that session is already in flight.
func (h *EnforceRewardsHandler) acquire(session shared.SessionToken) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running[session] {
		return false
	}
	h.running[session] = true
	return true
}

func (h *EnforceRewardsHandler) release(session shared.SessionToken) {
	h.mu.Lock()
	delete(h.running, session)
	h.mu.Unlock()
}

// Handle reconciles the snapshot's reward lines against the catalog.
// Overlapping invocations for the same session coalesce: the second
// caller gets the input snapshot back with Coalesced set rather than
// racing the first. Passes for different sessions proceed independently.
func (h *EnforceRewardsHandler) Handle(ctx context.Context, session shared.SessionToken, catalog *rule.Catalog, snap *cart.Snapshot) (*EnforceRewardsResult, error) {
	if !h.acquire(session) {
		h.log.Debug("enforcement pass coalesced", logger.Session(session))
		return &EnforceRewardsResult{Snapshot: snap, Coalesced: true}, nil
	}
	defer h.release(session)

	stale := h.collectStale(catalog, snap)
	if len(stale) == 0 {
		return &EnforceRewardsResult{Snapshot: snap}, nil
	}

	// Remove in descending line-index order so earlier removals do not
	// shift the indexes of later ones.
	for i := len(stale) - 1; i >= 0; i-- {
		line := stale[i]
		intent := cart.ChangeLineIntent{LineIndex: line.LineIndex, Quantity: 0}
		if err := h.mutator.ChangeLine(ctx, session, intent); err != nil {
			h.log.Error("failed to remove stale reward line",
				logger.Session(session),
				logger.LineIndex(line.LineIndex),
				logger.RuleKey(line.RuleKey),
				logger.Err(err))
			return nil, shared.WrapError("enforcer", "RemoveLine", shared.ErrMutationFailed, "set line quantity 0 failed", err)
		}
		h.log.Info("removed stale reward line",
			logger.Session(session),
			logger.LineIndex(line.LineIndex),
			logger.RuleKey(line.RuleKey),
			logger.String("reason", string(line.Reason)))
	}

	fresh, err := h.source.Fetch(ctx, session)
	if err != nil {
		return nil, shared.WrapError("enforcer", "Refetch", shared.ErrCartUnavailable, "post-enforcement cart fetch failed", err)
	}

	// Report in removal order.
	removed := make([]RemovedLine, 0, len(stale))
	for i := len(stale) - 1; i >= 0; i-- {
		removed = append(removed, stale[i])
	}
	return &EnforceRewardsResult{Removed: removed, Snapshot: fresh}, nil
}

// collectStale identifies reward lines that lost entitlement, ascending
// line index.
func (h *EnforceRewardsHandler) collectStale(catalog *rule.Catalog, snap *cart.Snapshot) []RemovedLine {
	var stale []RemovedLine
	for _, line := range snap.RewardLines() {
		key := line.RewardRuleKey()
		r, ok := catalog.Find(key)
		if !ok {
			stale = append(stale, RemovedLine{LineIndex: line.Index, RuleKey: key, Reason: ReasonOrphaned})
			continue
		}
		if !h.validates(r) {
			stale = append(stale, RemovedLine{LineIndex: line.Index, RuleKey: key, Reason: ReasonInvalid})
			continue
		}
		if !h.entitled(r, snap) {
			stale = append(stale, RemovedLine{LineIndex: line.Index, RuleKey: key, Reason: ReasonIneligible})
		}
	}
	return stale
}

// validates checks the rule still carries usable goal data.
func (h *EnforceRewardsHandler) validates(r *rule.Rule) bool {
	switch r.Kind {
	case rule.KindBXGY, rule.KindBuyXGetY:
		return r.MinPurchase.IsPositive() || r.MinQuantity > 0
	default:
		return r.HasResolvedGoal()
	}
}

// entitled recomputes eligibility for the rule against the current cart.
func (h *EnforceRewardsHandler) entitled(r *rule.Rule, snap *cart.Snapshot) bool {
	switch r.Kind {
	case rule.KindBXGY, rule.KindBuyXGetY:
		return h.evaluator.Evaluate(r, snap).Complete
	default:
		return r.HasResolvedGoal() && snap.Subtotal >= r.Goal
	}
}

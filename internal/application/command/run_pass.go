package command

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/cartperks/cartperks-engine/internal/domain/announce"
	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/eligibility"
	"github.com/cartperks/cartperks-engine/internal/domain/notification"
	"github.com/cartperks/cartperks-engine/internal/domain/progress"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
	"github.com/cartperks/cartperks-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RUN PASS COMMAND
// One full evaluation pass: enforce reward lines, recompute progress and
// eligibility from the reconciled cart, run the notification state machine,
// build announcements. A pass either fully succeeds or falls back to its
// documented degraded state; it never propagates a panic or partial state
// to the caller.
// ══════════════════════════════════════════════════════════════════════════════

// RunPassCommand describes one pass request.
type RunPassCommand struct {
	// Session identifies the browsing session.
	Session shared.SessionToken

	// Prime marks the first evaluation after a page or catalog load:
	// completion state is recorded as the baseline and nothing fires.
	Prime bool

	// DrawerOpen reports whether the overlay drawer is visible.
	DrawerOpen bool
}

// Validate validates the command.
func (c RunPassCommand) Validate() error {
	if !c.Session.IsValid() {
		return shared.NewDomainError("pass", "Validate", shared.ErrInvalidID, "session token is required")
	}
	return nil
}

// EvaluationResult is the pure value a pass produces. It is recomputed
// wholesale every pass and never mutated in place.
type EvaluationResult struct {
	// PassID correlates logs and events of one pass.
	PassID string

	// Unavailable is set when the cart could not be loaded; no render
	// intents are produced in that state.
	Unavailable bool

	// Degraded is set when the catalog was unavailable and the pass ran
	// against an empty catalog.
	Degraded bool

	// Primed reports that this pass only established the baseline.
	Primed bool

	// Progress is the milestone descriptor.
	Progress progress.Descriptor

	// Best is the single-winner BXGY record, nil when none configured.
	Best *eligibility.Record

	// Offers are the BuyXGetY records, catalog order.
	Offers []eligibility.Record

	// Announcements is the merged, deduplicated message list.
	Announcements []string

	// Popups are the prompt-open intents emitted this pass.
	Popups []notification.PopupIntent

	// RewardsAdded are the reward lines inserted this pass.
	RewardsAdded []cart.AddLineIntent

	// Removed are the reward lines the enforcer zeroed out.
	Removed []RemovedLine
}

// PassSettings are the host-controlled behavior switches, sourced from
// feature flags in the composition root.
type PassSettings struct {
	// EnforcerEnabled runs cart reconciliation before evaluation.
	EnforcerEnabled bool

	// PopupsEnabled allows prompt-open intents.
	PopupsEnabled bool

	// AutoAddEnabled allows automatic reward insertion.
	AutoAddEnabled bool
}

// DefaultPassSettings enables everything.
func DefaultPassSettings() PassSettings {
	return PassSettings{EnforcerEnabled: true, PopupsEnabled: true, AutoAddEnabled: true}
}

// RunPassHandler orchestrates evaluation passes.
type RunPassHandler struct {
	catalogSource rule.CatalogSource
	cartSource    cart.Source
	normalizer    *rule.Normalizer
	calculator    *progress.Calculator
	evaluator     *eligibility.Evaluator
	machine       *notification.Machine
	aggregator    *announce.Aggregator
	enforcer      *EnforceRewardsHandler
	applier       *ApplyRewardHandler
	bus           shared.EventBus
	settings      PassSettings
	log           *logger.Logger
}

// RunPassDeps bundles the handler's collaborators.
type RunPassDeps struct {
	CatalogSource rule.CatalogSource
	CartSource    cart.Source
	Normalizer    *rule.Normalizer
	Calculator    *progress.Calculator
	Evaluator     *eligibility.Evaluator
	Machine       *notification.Machine
	Aggregator    *announce.Aggregator
	Enforcer      *EnforceRewardsHandler
	Applier       *ApplyRewardHandler
	Bus           shared.EventBus
	Settings      PassSettings
	Logger        *logger.Logger
}

// NewRunPassHandler creates the orchestrator.
func NewRunPassHandler(deps RunPassDeps) *RunPassHandler {
	log := deps.Logger
	if log == nil {
		log = logger.Default()
	}
	return &RunPassHandler{
		catalogSource: deps.CatalogSource,
		cartSource:    deps.CartSource,
		normalizer:    deps.Normalizer,
		calculator:    deps.Calculator,
		evaluator:     deps.Evaluator,
		machine:       deps.Machine,
		aggregator:    deps.Aggregator,
		enforcer:      deps.Enforcer,
		applier:       deps.Applier,
		bus:           deps.Bus,
		settings:      deps.Settings,
		log:           log.With(logger.Component("pass")),
	}
}

// Handle runs one evaluation pass.
func (h *RunPassHandler) Handle(ctx context.Context, cmd RunPassCommand) (*EvaluationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	passID := uuid.NewString()
	log := h.log.With(logger.PassID(passID), logger.Session(cmd.Session))
	result := &EvaluationResult{PassID: passID, Primed: cmd.Prime}

	catalog := h.loadCatalog(ctx, cmd.Session, passID, log, result)

	snap, err := h.cartSource.Fetch(ctx, cmd.Session)
	if err != nil {
		// Fatal for this pass: surface the unable-to-load state, emit
		// nothing, recover on the next trigger.
		log.Error("cart snapshot unavailable, aborting pass", logger.Err(err))
		h.publish(shared.PassFailedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventPassFailed, cmd.Session.String()).WithCorrelationID(passID),
			PassID:    passID,
			Reason:    "cart_unavailable",
		})
		result.Unavailable = true
		return result, nil
	}

	if h.settings.EnforcerEnabled {
		snap = h.enforce(ctx, cmd.Session, catalog, snap, log, result)
		if snap == nil {
			result.Unavailable = true
			return result, nil
		}
	}

	result.Progress = h.calculator.Compute(catalog, snap.Subtotal)

	if best, ok := h.evaluator.EvaluateBest(catalog.BXGY, snap); ok {
		result.Best = &best
	}
	result.Offers = h.evaluator.EvaluateAll(catalog.BuyXGetY, snap)

	h.notify(ctx, cmd, catalog, snap, log, result)

	result.Announcements = h.aggregator.Build(catalog.CodeDiscounts(), snap, result.Best, result.Offers, catalog.Fallback)

	h.publish(shared.PassCompletedEvent{
		BaseEvent:      shared.NewBaseEvent(shared.EventPassCompleted, cmd.Session.String()).WithCorrelationID(passID),
		PassID:         passID,
		RuleCount:      catalog.Len(),
		CompletedSteps: result.Progress.CompletedCount,
		FillPercent:    result.Progress.FillPercent.Float(),
		IntentCount:    len(result.Popups) + len(result.RewardsAdded),
		Primed:         cmd.Prime,
	})
	return result, nil
}

// loadCatalog fetches and normalizes the catalog, degrading to empty on
// failure.
func (h *RunPassHandler) loadCatalog(ctx context.Context, session shared.SessionToken, passID string, log *logger.Logger, result *EvaluationResult) *rule.Catalog {
	raw, err := h.catalogSource.Fetch(ctx, session)
	if err != nil {
		log.Warn("catalog unavailable, degrading to empty", logger.Err(err))
		result.Degraded = true
		h.publish(shared.CatalogDegradedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventCatalogDegraded, session.String()).WithCorrelationID(passID),
			Reason:    err.Error(),
		})
		return rule.Empty()
	}

	catalog, rejected := h.normalizer.NormalizeCatalog(raw)
	for _, rej := range rejected {
		h.publish(shared.RuleRejectedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventRuleRejected, session.String()).WithCorrelationID(passID),
			Kind:      rej.Kind.String(),
			Reason:    rej.Reason.Error(),
		})
	}
	return catalog
}

// enforce runs cart reconciliation. A mutation failure downgrades to the
// pre-enforcement snapshot; a failed post-enforcement refetch aborts the
// pass (nil return).
func (h *RunPassHandler) enforce(ctx context.Context, session shared.SessionToken, catalog *rule.Catalog, snap *cart.Snapshot, log *logger.Logger, result *EvaluationResult) *cart.Snapshot {
	res, err := h.enforcer.Handle(ctx, session, catalog, snap)
	if err != nil {
		if errors.Is(err, shared.ErrCartUnavailable) {
			log.Error("post-enforcement refetch failed, aborting pass", logger.Err(err))
			return nil
		}
		log.Warn("enforcement mutation failed, continuing with current cart", logger.Err(err))
		return snap
	}
	result.Removed = res.Removed
	for _, rm := range res.Removed {
		h.publish(shared.RewardLineRemovedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventRewardLineRemoved, session.String()).WithCorrelationID(result.PassID),
			LineIndex: rm.LineIndex,
			RuleKey:   rm.RuleKey.String(),
			Reason:    string(rm.Reason),
		})
	}
	return res.Snapshot
}

// notify runs the state machine and executes its decided transitions.
func (h *RunPassHandler) notify(ctx context.Context, cmd RunPassCommand, catalog *rule.Catalog, snap *cart.Snapshot, log *logger.Logger, result *EvaluationResult) {
	candidates := h.candidates(catalog, snap, result)
	if len(candidates) == 0 {
		return
	}

	decisions, err := h.machine.Decide(ctx, cmd.Session, candidates, notification.Options{
		Primed:     cmd.Prime,
		DrawerOpen: cmd.DrawerOpen,
	})
	if err != nil {
		log.Error("state machine pass failed", logger.Err(err))
		return
	}

	for _, guard := range decisions.Cleared {
		h.publish(shared.FlagsClearedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventFlagsCleared, cmd.Session.String()).WithCorrelationID(result.PassID),
			GuardKey:  guard.String(),
		})
	}
	for _, guard := range decisions.Skipped {
		log.Warn("reward variant unresolved, rule skipped", logger.GuardKey(guard))
		h.publish(shared.RewardGrantedEvent{
			BaseEvent: shared.NewBaseEvent(shared.EventRewardUnresolved, cmd.Session.String()).WithCorrelationID(result.PassID),
			GuardKey:  guard.String(),
		})
	}

	// At most one prompt per pass: the first in catalog order wins,
	// later qualifying rules keep their flags unset and fire on a
	// subsequent pass.
	promptUsed := false
	for _, action := range decisions.Actions {
		if action.Popup != nil {
			if !h.settings.PopupsEnabled {
				continue
			}
			if promptUsed {
				continue
			}
		}
		if action.Add != nil && !h.settings.AutoAddEnabled && action.Popup == nil {
			continue
		}

		if action.Add != nil {
			applied, err := h.applier.Handle(ctx, cmd.Session, snap, *action.Add)
			if err != nil {
				// Flags stay unset so the transition retries on
				// the next eligible pass.
				log.Error("reward add failed, transition deferred",
					logger.GuardKey(action.GuardKey), logger.Err(err))
				continue
			}
			if applied.Added {
				result.RewardsAdded = append(result.RewardsAdded, *action.Add)
				h.publish(shared.RewardGrantedEvent{
					BaseEvent: shared.NewBaseEvent(shared.EventRewardGranted, cmd.Session.String()).WithCorrelationID(result.PassID),
					GuardKey:  action.GuardKey.String(),
					VariantID: action.Add.VariantID.Int64(),
					Quantity:  action.Add.Quantity,
				})
			}
		}

		if err := h.machine.Commit(ctx, cmd.Session, action); err != nil {
			log.Error("flag commit failed", logger.GuardKey(action.GuardKey), logger.Err(err))
			continue
		}

		if action.Popup != nil {
			promptUsed = true
			result.Popups = append(result.Popups, *action.Popup)
			h.publish(shared.PopupShownEvent{
				BaseEvent: shared.NewBaseEvent(shared.EventPopupShown, cmd.Session.String()).WithCorrelationID(result.PassID),
				GuardKey:  action.GuardKey.String(),
				Kind:      action.Kind.String(),
				AutoAdd:   action.Add != nil,
			})
		}
	}
}

// candidates assembles the reward-granting rules the machine evaluates:
// free-gift steps, the best BXGY rule, and every BuyXGetY rule.
func (h *RunPassHandler) candidates(catalog *rule.Catalog, snap *cart.Snapshot, result *EvaluationResult) []notification.Candidate {
	var out []notification.Candidate

	for _, r := range catalog.FreeGift {
		out = append(out, notification.Candidate{
			Rule:     r,
			Complete: r.HasResolvedGoal() && snap.Subtotal >= r.Goal,
		})
	}
	if result.Best != nil && result.Best.Rule.GrantsReward() {
		out = append(out, notification.Candidate{Rule: result.Best.Rule, Complete: result.Best.Complete})
	}
	for _, rec := range result.Offers {
		out = append(out, notification.Candidate{Rule: rec.Rule, Complete: rec.Complete})
	}
	return out
}

func (h *RunPassHandler) publish(event shared.Event) {
	if h.bus == nil {
		return
	}
	if err := h.bus.Publish(event); err != nil {
		h.log.Warn("event publish failed", logger.String("event", string(event.EventType())), logger.Err(err))
	}
}

// Package eventhandler contains domain event handlers. Handlers are the
// reactive part of the engine: they observe evaluation passes and drive
// side channels such as analytics counters, without ever feeding back into
// eligibility decisions.
package eventhandler

import (
	"log/slog"
	"sync"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON REWARD GRANTED HANDLER
// Tracks granted rewards per session for the merchant analytics surface.
// Rendering never reads these counters; they exist for reporting only.
// ═══════════════════════════════════════════════════════════════════════════

// OnRewardGrantedHandler counts reward grants and popup shows.
type OnRewardGrantedHandler struct {
	logger *slog.Logger

	mu     sync.Mutex
	grants map[string]int // guard key -> grant count
	popups map[string]int // guard key -> popup count
}

// NewOnRewardGrantedHandler creates the handler.
func NewOnRewardGrantedHandler(logger *slog.Logger) *OnRewardGrantedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnRewardGrantedHandler{
		logger: logger,
		grants: make(map[string]int),
		popups: make(map[string]int),
	}
}

// Register subscribes the handler on the bus.
func (h *OnRewardGrantedHandler) Register(bus shared.EventBus) error {
	if err := bus.Subscribe(shared.EventRewardGranted, h.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventPopupShown, h.Handle)
}

// Handle processes reward and popup events.
func (h *OnRewardGrantedHandler) Handle(event shared.Event) error {
	payload := event.Payload()
	guard, _ := payload["guard_key"].(string)
	if guard == "" {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch event.EventType() {
	case shared.EventRewardGranted:
		h.grants[guard]++
		h.logger.Info("reward granted",
			"guard_key", guard,
			"variant_id", payload["variant_id"],
			"quantity", payload["quantity"],
			"session", event.AggregateID())
	case shared.EventPopupShown:
		h.popups[guard]++
		h.logger.Debug("popup shown",
			"guard_key", guard,
			"kind", payload["kind"],
			"session", event.AggregateID())
	}
	return nil
}

// Counts returns a copy of the per-guard grant counters.
func (h *OnRewardGrantedHandler) Counts() (grants, popups map[string]int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	grants = make(map[string]int, len(h.grants))
	for k, v := range h.grants {
		grants[k] = v
	}
	popups = make(map[string]int, len(h.popups))
	for k, v := range h.popups {
		popups[k] = v
	}
	return grants, popups
}

// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened during an evaluation pass; the host subscribes for analytics
// and rendering side channels.
const (
	// Catalog events
	EventCatalogLoaded   EventType = "catalog.loaded"
	EventCatalogDegraded EventType = "catalog.degraded"
	EventRuleRejected    EventType = "catalog.rule_rejected"

	// Pass events
	EventPassStarted   EventType = "pass.started"
	EventPassCompleted EventType = "pass.completed"
	EventPassFailed    EventType = "pass.failed"
	EventPassPrimed    EventType = "pass.primed"

	// Milestone events
	EventStepCompleted EventType = "progress.step_completed"
	EventAllStepsDone  EventType = "progress.all_steps_done"

	// Notification events
	EventPopupShown   EventType = "notification.popup_shown"
	EventPopupClosed  EventType = "notification.popup_closed"
	EventFlagsCleared EventType = "notification.flags_cleared"

	// Reward events
	EventRewardGranted    EventType = "reward.granted"
	EventRewardDuplicate  EventType = "reward.duplicate_suppressed"
	EventRewardUnresolved EventType = "reward.unresolved"

	// Enforcer events
	EventRewardLineRemoved EventType = "enforcer.line_removed"
	EventEnforcerCoalesced EventType = "enforcer.coalesced"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For this engine that is the session token, or the rule key for
	// rule-scoped events.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventBus distributes domain events to subscribed handlers.
type EventBus interface {
	// Subscribe registers a handler for a specific event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error

	// Publish delivers an event to all matching handlers.
	Publish(event Event) error

	// Close shuts the bus down and waits for in-flight handlers.
	Close() error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing a pass.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Pass Events
// ═══════════════════════════════════════════════════════════════════════════

// PassCompletedEvent is emitted after a full evaluation pass.
type PassCompletedEvent struct {
	BaseEvent
	PassID         string  `json:"pass_id"`
	RuleCount      int     `json:"rule_count"`
	CompletedSteps int     `json:"completed_steps"`
	FillPercent    float64 `json:"fill_percent"`
	IntentCount    int     `json:"intent_count"`
	Primed         bool    `json:"primed"`
}

// Payload implements Event interface.
func (e PassCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"pass_id":         e.PassID,
		"rule_count":      e.RuleCount,
		"completed_steps": e.CompletedSteps,
		"fill_percent":    e.FillPercent,
		"intent_count":    e.IntentCount,
		"primed":          e.Primed,
	}
}

// PassFailedEvent is emitted when a pass aborts (cart unavailable).
type PassFailedEvent struct {
	BaseEvent
	PassID string `json:"pass_id"`
	Reason string `json:"reason"`
}

// Payload implements Event interface.
func (e PassFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"pass_id": e.PassID, "reason": e.Reason}
}

// ═══════════════════════════════════════════════════════════════════════════
// Catalog Events
// ═══════════════════════════════════════════════════════════════════════════

// RuleRejectedEvent is emitted when a raw record fails normalization.
type RuleRejectedEvent struct {
	BaseEvent
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

// Payload implements Event interface.
func (e RuleRejectedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"kind": e.Kind, "reason": e.Reason}
}

// CatalogDegradedEvent is emitted when a catalog fetch failed and the pass
// continues with an empty catalog.
type CatalogDegradedEvent struct {
	BaseEvent
	Reason string `json:"reason"`
}

// Payload implements Event interface.
func (e CatalogDegradedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"reason": e.Reason}
}

// ═══════════════════════════════════════════════════════════════════════════
// Notification / Reward Events
// ═══════════════════════════════════════════════════════════════════════════

// PopupShownEvent is emitted when the state machine requests a popup.
type PopupShownEvent struct {
	BaseEvent
	GuardKey string `json:"guard_key"`
	Kind     string `json:"kind"`
	AutoAdd  bool   `json:"auto_add"`
}

// Payload implements Event interface.
func (e PopupShownEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"guard_key": e.GuardKey, "kind": e.Kind, "auto_add": e.AutoAdd}
}

// RewardGrantedEvent is emitted when a reward line was added to the cart.
type RewardGrantedEvent struct {
	BaseEvent
	GuardKey  string `json:"guard_key"`
	VariantID int64  `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

// Payload implements Event interface.
func (e RewardGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"guard_key":  e.GuardKey,
		"variant_id": e.VariantID,
		"quantity":   e.Quantity,
	}
}

// FlagsClearedEvent is emitted when eligibility lapsed and guard flags were
// deleted so the rule can fire again later.
type FlagsClearedEvent struct {
	BaseEvent
	GuardKey string `json:"guard_key"`
	Kind     string `json:"kind"`
}

// Payload implements Event interface.
func (e FlagsClearedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"guard_key": e.GuardKey, "kind": e.Kind}
}

// RewardLineRemovedEvent is emitted for every stale reward line the enforcer
// zeroed out.
type RewardLineRemovedEvent struct {
	BaseEvent
	LineIndex int    `json:"line_index"`
	RuleKey   string `json:"rule_key"`
	Reason    string `json:"reason"`
}

// Payload implements Event interface.
func (e RewardLineRemovedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"line_index": e.LineIndex,
		"rule_key":   e.RuleKey,
		"reason":     e.Reason,
	}
}

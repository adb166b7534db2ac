package eventhandler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
	"github.com/cartperks/cartperks-engine/internal/infrastructure/messaging"
)

func TestOnRewardGranted_CountsPerGuardKey(t *testing.T) {
	cfg := messaging.DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = false
	bus := messaging.NewInMemoryEventBus(cfg)
	defer bus.Close()

	h := NewOnRewardGrantedHandler(nil)
	assert.NoError(t, h.Register(bus))

	grant := shared.RewardGrantedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventRewardGranted, "sess-1"),
		GuardKey:  "freegift:step2",
		VariantID: 9001,
		Quantity:  1,
	}
	popup := shared.PopupShownEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventPopupShown, "sess-1"),
		GuardKey:  "bxgy:socks",
		Kind:      "bxgy",
	}

	assert.NoError(t, bus.Publish(grant))
	assert.NoError(t, bus.Publish(grant))
	assert.NoError(t, bus.Publish(popup))

	grants, popups := h.Counts()
	assert.Equal(t, 2, grants["freegift:step2"])
	assert.Equal(t, 1, popups["bxgy:socks"])
	assert.Empty(t, grants["bxgy:socks"])
}

func TestOnRewardGranted_IgnoresEventsWithoutGuardKey(t *testing.T) {
	h := NewOnRewardGrantedHandler(nil)

	err := h.Handle(shared.RewardGrantedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventRewardGranted, "sess-1"),
	})
	assert.NoError(t, err)

	grants, _ := h.Counts()
	assert.Empty(t, grants)
}

package messaging

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartperks/cartperks-engine/internal/domain/shared"
)

func syncBusConfig() InMemoryEventBusConfig {
	cfg := DefaultInMemoryEventBusConfig()
	cfg.AsyncMode = false
	return cfg
}

func grantedEvent(session string) shared.RewardGrantedEvent {
	return shared.RewardGrantedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventRewardGranted, session),
		GuardKey:  "freegift:step2",
		VariantID: 9001,
		Quantity:  1,
	}
}

func TestEventBus_PublishToTypedSubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	var got []shared.Event
	err := bus.Subscribe(shared.EventRewardGranted, func(e shared.Event) error {
		got = append(got, e)
		return nil
	})
	assert.NoError(t, err)

	assert.NoError(t, bus.Publish(grantedEvent("sess-1")))
	assert.NoError(t, bus.Publish(shared.PassFailedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventPassFailed, "sess-1"),
		Reason:    "cart_unavailable",
	}))

	// Only the subscribed type was delivered.
	assert.Len(t, got, 1)
	assert.Equal(t, shared.EventRewardGranted, got[0].EventType())
	assert.Equal(t, "sess-1", got[0].AggregateID())
}

func TestEventBus_SubscribeAllSeesEverything(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	count := 0
	assert.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		count++
		return nil
	}))

	assert.NoError(t, bus.Publish(grantedEvent("sess-1")))
	assert.NoError(t, bus.Publish(grantedEvent("sess-2")))
	assert.Equal(t, 2, count)
}

func TestEventBus_AsyncDelivery(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultInMemoryEventBusConfig())

	var mu sync.Mutex
	count := 0
	assert.NoError(t, bus.Subscribe(shared.EventRewardGranted, func(shared.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 10; i++ {
		assert.NoError(t, bus.Publish(grantedEvent("sess-1")))
	}

	// Close waits for in-flight handlers.
	assert.NoError(t, bus.Close())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}

func TestEventBus_ClosedRejectsOperations(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	assert.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(grantedEvent("sess-1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventRewardGranted, func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)

	// Close is idempotent.
	assert.NoError(t, bus.Close())
}

func TestEventBus_NilArguments(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	assert.Error(t, bus.Subscribe(shared.EventRewardGranted, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestEventBus_MetricsCountPublishesAndErrors(t *testing.T) {
	bus := NewInMemoryEventBus(syncBusConfig())
	defer bus.Close()

	assert.NoError(t, bus.Subscribe(shared.EventRewardGranted, func(shared.Event) error {
		return errors.New("handler failure")
	}))

	assert.NoError(t, bus.Publish(grantedEvent("sess-1")))
	assert.NoError(t, bus.Publish(grantedEvent("sess-1")))

	m := bus.Metrics()
	assert.Equal(t, int64(2), m.Published(shared.EventRewardGranted))
	assert.Equal(t, int64(2), m.HandlerErrors(shared.EventRewardGranted))
	assert.Equal(t, int64(0), m.Published(shared.EventPassFailed))
}

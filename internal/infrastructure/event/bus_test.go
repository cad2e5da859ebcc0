package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/ipaas/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu     sync.Mutex
	types  []string
	seen   []shared.DomainEvent
	err    error
	panics bool
}

func (h *recordingHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.panics {
		panic("handler exploded")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, event)
	return h.err
}

func (h *recordingHandler) EventTypes() []string {
	return h.types
}

func (h *recordingHandler) events() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.seen...)
}

func newTestEvent(eventType string) shared.DomainEvent {
	e := shared.NewBaseDomainEvent(eventType, "CorrelationRecord", uuid.New())
	return &e
}

func TestInMemoryEventBus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers events to subscribed handlers", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())
		require.NoError(t, bus.Start(ctx))
		defer bus.Stop(ctx)

		handler := &recordingHandler{types: []string{"ticket.ingested"}}
		bus.Subscribe(handler)

		require.NoError(t, bus.Publish(ctx, newTestEvent("ticket.ingested")))
		require.NoError(t, bus.Publish(ctx, newTestEvent("ticket.status_changed")))

		events := handler.events()
		require.Len(t, events, 1)
		assert.Equal(t, "ticket.ingested", events[0].EventType())
	})

	t.Run("wildcard handler receives every event", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())

		handler := &recordingHandler{}
		bus.Subscribe(handler)

		require.NoError(t, bus.Publish(ctx,
			newTestEvent("ticket.ingested"),
			newTestEvent("ticket.status_changed"),
			newTestEvent("delivery.dead_lettered"),
		))

		assert.Len(t, handler.events(), 3)
	})

	t.Run("explicit event types override handler interests", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())

		handler := &recordingHandler{types: []string{"ticket.ingested"}}
		bus.Subscribe(handler, "delivery.dead_lettered")

		require.NoError(t, bus.Publish(ctx, newTestEvent("ticket.ingested")))
		require.NoError(t, bus.Publish(ctx, newTestEvent("delivery.dead_lettered")))

		events := handler.events()
		require.Len(t, events, 1)
		assert.Equal(t, "delivery.dead_lettered", events[0].EventType())
	})

	t.Run("failing handler does not block the others", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())

		failing := &recordingHandler{err: errors.New("boom")}
		healthy := &recordingHandler{}
		bus.Subscribe(failing, "ticket.ingested")
		bus.Subscribe(healthy, "ticket.ingested")

		require.NoError(t, bus.Publish(ctx, newTestEvent("ticket.ingested")))

		assert.Len(t, healthy.events(), 1)
	})

	t.Run("panicking handler is contained", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())

		bus.Subscribe(&recordingHandler{panics: true}, "ticket.ingested")
		healthy := &recordingHandler{}
		bus.Subscribe(healthy, "ticket.ingested")

		require.NotPanics(t, func() {
			_ = bus.Publish(ctx, newTestEvent("ticket.ingested"))
		})
		assert.Len(t, healthy.events(), 1)
	})

	t.Run("unsubscribed handler stops receiving events", func(t *testing.T) {
		bus := NewInMemoryEventBus(zap.NewNop())

		handler := &recordingHandler{}
		bus.Subscribe(handler, "ticket.ingested")
		bus.Unsubscribe(handler)

		require.NoError(t, bus.Publish(ctx, newTestEvent("ticket.ingested")))
		assert.Empty(t, handler.events())
	})
}

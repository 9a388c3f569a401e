package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	boom := errors.New("broker down")

	d.Subscribe(EventSLAEscalated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return boom
	})
	d.Subscribe(EventSLAEscalated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketAssigned, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventSLAEscalated, TicketID: "t-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatcherWithoutHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	assert.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketStatusChanged}))
}

func TestDispatcherRecoversPanics(t *testing.T) {
	d := NewInMemoryDispatcher()
	ran := false
	d.Subscribe(EventSLAEscalated, func(context.Context, Event) error {
		panic("nil payload")
	})
	d.Subscribe(EventSLAEscalated, func(context.Context, Event) error {
		ran = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventSLAEscalated})
	assert.ErrorIs(t, err, ErrHandlerPanicked)
	assert.Contains(t, err.Error(), "nil payload")
	assert.True(t, ran)
}

func TestDispatcherStopsOnCancelledContext(t *testing.T) {
	d := NewInMemoryDispatcher()
	calls := 0
	d.Subscribe(EventSLAEscalated, func(context.Context, Event) error {
		calls++
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := d.Publish(ctx, Event{Type: EventSLAEscalated})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

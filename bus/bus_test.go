package bus

import (
	"context"
	"errors"
	"testing"

	"github.com/hupe1980/crmflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_On_ExactDelivery(t *testing.T) {
	b := New()
	var got []string
	b.On("leads.created", func(_ context.Context, ev core.Event) error {
		got = append(got, ev.Type)
		return nil
	})

	b.Emit(context.Background(), core.NewEvent("leads.created", nil))
	b.Emit(context.Background(), core.NewEvent("deals.updated", nil))

	assert.Equal(t, []string{"leads.created"}, got)
}

func TestBus_Wildcard_SeesEveryEvent(t *testing.T) {
	b := New()
	var count int
	b.On(Wildcard, func(context.Context, core.Event) error {
		count++
		return nil
	})

	b.Emit(context.Background(), core.NewEvent("leads.created", nil))
	b.Emit(context.Background(), core.NewEvent("deals.won", nil))
	b.Emit(context.Background(), core.NewEvent("tasks.completed", nil))

	assert.Equal(t, 3, count)
}

func TestBus_OnPattern_PrefixFilter(t *testing.T) {
	b := New()
	var got []string
	b.OnPattern("leads.*", func(_ context.Context, ev core.Event) error {
		got = append(got, ev.Type)
		return nil
	})

	b.Emit(context.Background(), core.NewEvent("leads.created", nil))
	b.Emit(context.Background(), core.NewEvent("leads.updated", nil))
	b.Emit(context.Background(), core.NewEvent("deals.created", nil))

	assert.Equal(t, []string{"leads.created", "leads.updated"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	var count int
	unsub := b.On("leads.created", func(context.Context, core.Event) error {
		count++
		return nil
	})

	b.Emit(context.Background(), core.NewEvent("leads.created", nil))
	unsub()
	unsub() // second call is a no-op
	b.Emit(context.Background(), core.NewEvent("leads.created", nil))

	assert.Equal(t, 1, count)
	// Unsubscribing does not retroactively remove log entries.
	assert.Len(t, b.RecentEvents(0), 2)
}

func TestBus_EmitEntityEvent(t *testing.T) {
	b := New()
	var seen core.Event
	b.On("leads.created", func(_ context.Context, ev core.Event) error {
		seen = ev
		return nil
	})

	b.EmitEntityEvent(context.Background(), "created", "leads", "abc-123", map[string]any{"name": "Bob"}, "user-1")

	assert.Equal(t, "leads.created", seen.Type)
	assert.Equal(t, "leads", seen.Entity)
	assert.Equal(t, "abc-123", seen.EntityID)
	assert.Equal(t, "Bob", seen.Data["name"])
	assert.Equal(t, "user-1", seen.UserID)
}

func TestBus_RecentEvents_OrderAndLimit(t *testing.T) {
	b := New()
	for _, typ := range []string{"a.x", "b.x", "c.x"} {
		b.Emit(context.Background(), core.NewEvent(typ, nil))
	}

	recent := b.RecentEvents(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b.x", recent[0].Type)
	assert.Equal(t, "c.x", recent[1].Type)
}

func TestBus_LogEviction(t *testing.T) {
	b := New(func(o *Options) { o.MaxRecentEvents = 3 })
	for _, typ := range []string{"e.1", "e.2", "e.3", "e.4"} {
		b.Emit(context.Background(), core.NewEvent(typ, nil))
	}

	recent := b.RecentEvents(0)
	require.Len(t, recent, 3)
	assert.Equal(t, "e.2", recent[0].Type)
	assert.Equal(t, "e.4", recent[2].Type)
}

func TestBus_HandlerErrorIsolation(t *testing.T) {
	b := New()
	var order []string
	b.On("leads.created", func(context.Context, core.Event) error {
		order = append(order, "first")
		return errors.New("boom")
	})
	b.On("leads.created", func(context.Context, core.Event) error {
		order = append(order, "second")
		return nil
	})

	assert.NotPanics(t, func() {
		b.Emit(context.Background(), core.NewEvent("leads.created", nil))
	})
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestBus_HandlerPanicIsolation(t *testing.T) {
	b := New()
	var reached bool
	b.On("leads.created", func(context.Context, core.Event) error {
		panic("handler bug")
	})
	b.On("leads.created", func(context.Context, core.Event) error {
		reached = true
		return nil
	})

	assert.NotPanics(t, func() {
		b.Emit(context.Background(), core.NewEvent("leads.created", nil))
	})
	assert.True(t, reached)
}

func TestBus_RegistrationOrderAcrossExactAndWildcard(t *testing.T) {
	b := New()
	var order []string
	b.On(Wildcard, func(context.Context, core.Event) error {
		order = append(order, "wildcard")
		return nil
	})
	b.On("leads.created", func(context.Context, core.Event) error {
		order = append(order, "exact")
		return nil
	})

	b.Emit(context.Background(), core.NewEvent("leads.created", nil))

	assert.Equal(t, []string{"wildcard", "exact"}, order)
}

func TestBus_DedupesHandlerRegisteredExactAndWildcard(t *testing.T) {
	b := New()
	var count int
	handler := func(context.Context, core.Event) error {
		count++
		return nil
	}
	b.On("leads.created", Handler(handler))
	b.On(Wildcard, Handler(handler))

	b.Emit(context.Background(), core.NewEvent("leads.created", nil))

	assert.Equal(t, 1, count)
}

func TestBus_Reset(t *testing.T) {
	b := New()
	var count int
	b.On("leads.created", func(context.Context, core.Event) error {
		count++
		return nil
	})
	b.Emit(context.Background(), core.NewEvent("leads.created", nil))

	b.Reset()
	b.Emit(context.Background(), core.NewEvent("leads.created", nil))

	assert.Equal(t, 1, count)
	// Only the post-reset event is retained.
	assert.Len(t, b.RecentEvents(0), 1)
}

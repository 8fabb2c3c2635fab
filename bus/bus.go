package bus

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/hupe1980/crmflow/core"
	"github.com/hupe1980/crmflow/logging"
)

// Wildcard subscribes a handler to every event regardless of type.
const Wildcard = "*"

// DefaultMaxRecentEvents bounds the diagnostic event log.
const DefaultMaxRecentEvents = 100

// Handler processes one emitted event. A non-nil error (or a panic) is
// logged and isolated; it never reaches the emitter or later handlers.
type Handler func(ctx context.Context, ev core.Event) error

// UnsubscribeFunc removes exactly the subscription it was returned for.
// Calling it more than once is a no-op.
type UnsubscribeFunc func()

// subscription is one registered handler. identity is derived from the user
// supplied function so the same handler registered both exactly and as a
// wildcard is invoked once per emit. filter is set for pattern subscriptions.
type subscription struct {
	handler  Handler
	identity uintptr
	filter   func(eventType string) bool
	seq      uint64
}

// Options configures a Bus instance.
type Options struct {
	// MaxRecentEvents bounds the diagnostic ring log. Defaults to
	// DefaultMaxRecentEvents when <= 0.
	MaxRecentEvents int

	// Logger receives handler failure reports. Defaults to NoOp.
	Logger logging.Logger
}

// Bus is an in-memory publish/subscribe hub for domain events. It decouples
// event producers from consumers and fans one event out to many subscribers
// without letting a subscriber's failure affect others or the producer.
//
// Contract:
//   - Handlers for a single Emit run sequentially in registration order,
//     each completing before the next starts.
//   - Handler errors and panics are logged and swallowed; Emit never fails
//     because of a subscriber.
//   - The event log is a bounded ring retained for diagnostics only.
type Bus struct {
	mu       sync.Mutex
	exact    map[string][]*subscription
	wildcard []*subscription
	log      []core.Event
	maxLog   int
	nextSeq  uint64
	logger   logging.Logger
}

// New constructs an empty Bus with optional overrides.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		MaxRecentEvents: DefaultMaxRecentEvents,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxRecentEvents <= 0 {
		opts.MaxRecentEvents = DefaultMaxRecentEvents
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Bus{
		exact:  map[string][]*subscription{},
		maxLog: opts.MaxRecentEvents,
		logger: opts.Logger,
	}
}

// On registers a handler for an exact event type, or for every event when
// eventType is Wildcard ("*"). The returned function removes exactly this
// subscription.
func (b *Bus) On(eventType string, handler Handler) UnsubscribeFunc {
	return b.subscribe(eventType, handler, nil)
}

// OnPattern registers a handler for a prefix pattern of the form "prefix.*"
// (e.g. "leads.*" matches "leads.created" and "leads.updated"). It is
// implemented as a wildcard subscription carrying a prefix filter, so its
// unsubscription semantics are identical to On.
func (b *Bus) OnPattern(pattern string, handler Handler) UnsubscribeFunc {
	prefix := strings.TrimSuffix(pattern, "*")
	return b.subscribe(Wildcard, handler, func(eventType string) bool {
		return strings.HasPrefix(eventType, prefix)
	})
}

func (b *Bus) subscribe(eventType string, handler Handler, filter func(string) bool) UnsubscribeFunc {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		handler:  handler,
		identity: reflect.ValueOf(handler).Pointer(),
		filter:   filter,
		seq:      b.nextSeq,
	}
	b.nextSeq++

	if eventType == Wildcard {
		b.wildcard = append(b.wildcard, sub)
	} else {
		b.exact[eventType] = append(b.exact[eventType], sub)
	}

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, sub) })
	}
}

func (b *Bus) unsubscribe(eventType string, sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remove := func(subs []*subscription) []*subscription {
		for i, s := range subs {
			if s == sub {
				return append(subs[:i:i], subs[i+1:]...)
			}
		}
		return subs
	}

	if eventType == Wildcard {
		b.wildcard = remove(b.wildcard)
	} else {
		b.exact[eventType] = remove(b.exact[eventType])
		if len(b.exact[eventType]) == 0 {
			delete(b.exact, eventType)
		}
	}
}

// Emit appends the event to the bounded log and invokes the matching
// handlers (exact-type plus wildcard) sequentially in registration order.
// A handler that is registered both exactly and as a wildcard for the same
// event is invoked once. Handler failures are logged and do not stop
// subsequent handlers or surface to the caller; side effects of all handlers
// are observable once Emit returns.
func (b *Bus) Emit(ctx context.Context, ev core.Event) {
	b.mu.Lock()
	b.log = append(b.log, ev)
	if len(b.log) > b.maxLog {
		b.log = b.log[len(b.log)-b.maxLog:]
	}
	matched := b.matchedLocked(ev.Type)
	b.mu.Unlock()

	for _, sub := range matched {
		b.invoke(ctx, sub, ev)
	}
}

// matchedLocked computes the handler set for an event type: exact handlers
// union wildcard handlers (pattern filters applied), deduplicated on handler
// identity and ordered by registration sequence. Caller must hold b.mu.
func (b *Bus) matchedLocked(eventType string) []*subscription {
	seen := map[uintptr]bool{}
	matched := make([]*subscription, 0, len(b.exact[eventType])+len(b.wildcard))

	for _, sub := range b.exact[eventType] {
		if seen[sub.identity] {
			continue
		}
		seen[sub.identity] = true
		matched = append(matched, sub)
	}
	for _, sub := range b.wildcard {
		if sub.filter != nil && !sub.filter(eventType) {
			continue
		}
		if seen[sub.identity] {
			continue
		}
		seen[sub.identity] = true
		matched = append(matched, sub)
	}

	// Restore global registration order across the two sets.
	for i := 1; i < len(matched); i++ {
		for j := i; j > 0 && matched[j-1].seq > matched[j].seq; j-- {
			matched[j-1], matched[j] = matched[j], matched[j-1]
		}
	}
	return matched
}

func (b *Bus) invoke(ctx context.Context, sub *subscription, ev core.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event_type", ev.Type, "panic", fmt.Sprintf("%v", r))
		}
	}()
	if err := sub.handler(ctx, ev); err != nil {
		b.logger.Error("event handler failed", "event_type", ev.Type, "error", err.Error())
	}
}

// EmitEntityEvent is a convenience that builds an "<entity>.<action>" event
// and delegates to Emit.
func (b *Bus) EmitEntityEvent(ctx context.Context, action, entity, entityID string, data map[string]any, userID string) {
	b.Emit(ctx, core.NewEntityEvent(action, entity, entityID, data, userID))
}

// RecentEvents returns the most recent limit events, oldest-first within the
// returned slice. A non-positive limit returns the whole retained log.
func (b *Bus) RecentEvents(limit int) []core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if limit <= 0 || limit > len(b.log) {
		limit = len(b.log)
	}
	out := make([]core.Event, limit)
	copy(out, b.log[len(b.log)-limit:])
	return out
}

// Reset clears all handler registrations (exact and wildcard) and the event
// log. Used for test isolation and session teardown.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exact = map[string][]*subscription{}
	b.wildcard = nil
	b.log = nil
}

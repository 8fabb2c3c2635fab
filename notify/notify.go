// Package notify provides in-memory implementations of the notification
// sink and audit change log that workflow action steps write to. Both are
// fire-and-forget from the engine's perspective; production deployments
// typically replace them with store-backed implementations.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/crmflow/core"
)

// InMemorySink is a volatile NotificationSink storing notifications in a
// process local slice. Safe for concurrent access; best suited for tests and
// demo sessions.
type InMemorySink struct {
	mu            sync.RWMutex
	notifications []core.Notification
}

var _ core.NotificationSink = (*InMemorySink)(nil)

// NewInMemorySink constructs an empty in-memory sink.
func NewInMemorySink() *InMemorySink {
	return &InMemorySink{}
}

// CreateNotification implements core.NotificationSink. Missing IDs and
// timestamps are filled in.
func (s *InMemorySink) CreateNotification(_ context.Context, n core.Notification) error {
	if n.ID == "" {
		n.ID = core.NewID()
	}
	if n.Created.IsZero() {
		n.Created = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = append(s.notifications, n)
	return nil
}

// Notifications returns a copy of all stored notifications, oldest first.
func (s *InMemorySink) Notifications() []core.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Notification, len(s.notifications))
	copy(out, s.notifications)
	return out
}

// ForUser returns the notifications addressed to the given user.
func (s *InMemorySink) ForUser(userID string) []core.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// InMemoryChangeLog is a volatile ChangeLogger keeping audit entries in
// memory. Safe for concurrent access.
type InMemoryChangeLog struct {
	mu      sync.RWMutex
	entries []core.ChangeEntry
}

var _ core.ChangeLogger = (*InMemoryChangeLog)(nil)

// NewInMemoryChangeLog constructs an empty in-memory change log.
func NewInMemoryChangeLog() *InMemoryChangeLog {
	return &InMemoryChangeLog{}
}

// LogChange implements core.ChangeLogger.
func (l *InMemoryChangeLog) LogChange(_ context.Context, entry core.ChangeEntry) error {
	if entry.ID == "" {
		entry.ID = core.NewID()
	}
	if entry.Created.IsZero() {
		entry.Created = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	return nil
}

// Entries returns a copy of all audit entries, oldest first.
func (l *InMemoryChangeLog) Entries() []core.ChangeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]core.ChangeEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

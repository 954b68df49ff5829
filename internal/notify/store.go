// Package notify holds the user-facing notification state: the persistent
// notification center store and the ephemeral toast projection derived
// from it.
package notify

import (
	"sync"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/metrics"
	"github.com/google/uuid"
)

// Notification types.
const (
	TypeInfo       = "info"
	TypeSuccess    = "success"
	TypeWarning    = "warning"
	TypeError      = "error"
	TypeSubmission = "submission"
	TypeApproval   = "approval"
	TypeRejection  = "rejection"
)

// Metadata is the descriptive payload collaborators attach to a
// notification, used for display and deep-linking only.
type Metadata struct {
	OrganizationID   string `json:"organizationId,omitempty"`
	OrganizationName string `json:"organizationName,omitempty"`
	SubmissionID     string `json:"submissionId,omitempty"`
	UserID           string `json:"userId,omitempty"`
	Month            int    `json:"month,omitempty"` // 1-12
	Year             int    `json:"year,omitempty"`
}

// Notification is one persistent notification-center entry. Entries are
// never auto-expired; only their toast projection is.
type Notification struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"createdAt"`
	ActionURL  string    `json:"actionUrl,omitempty"`
	ActionText string    `json:"actionText,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// Incoming is the collaborator-supplied part of a notification; the store
// assigns id, timestamp, and the unread flag.
type Incoming struct {
	Type       string    `json:"type"`
	Title      string    `json:"title"`
	Message    string    `json:"message"`
	ActionURL  string    `json:"actionUrl,omitempty"`
	ActionText string    `json:"actionText,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// Store is the authoritative in-memory registry of notifications, newest
// first. Goroutine-safe; change listeners fire synchronously after each
// mutation, outside the lock.
type Store struct {
	mu     sync.RWMutex
	list   []*Notification
	unread int
	now    func() time.Time

	listenerMu sync.Mutex
	listeners  []func()
}

// NewStore creates an empty notification store.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// OnChange registers a listener invoked after every mutation.
func (s *Store) OnChange(fn func()) {
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenerMu.Unlock()
}

func (s *Store) notify() {
	metrics.UnreadNotifications.Set(float64(s.Unread()))

	s.listenerMu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// Add creates a notification from the incoming data: a fresh id, the
// current timestamp, unread. Prepended so the list stays newest-first.
// Returns the stored record.
func (s *Store) Add(in Incoming) Notification {
	s.mu.Lock()
	n := &Notification{
		ID:         uuid.NewString(),
		Type:       in.Type,
		Title:      in.Title,
		Message:    in.Message,
		CreatedAt:  s.now(),
		ActionURL:  in.ActionURL,
		ActionText: in.ActionText,
		Metadata:   in.Metadata,
	}
	s.list = append([]*Notification{n}, s.list...)
	s.unread++
	stored := *n
	s.mu.Unlock()

	metrics.NotificationsRaised.WithLabelValues(n.Type).Inc()
	s.notify()
	return stored
}

// MarkAsRead flips the read flag. No-op when the id is unknown or the
// entry is already read.
func (s *Store) MarkAsRead(id string) {
	s.mu.Lock()
	changed := false
	for _, n := range s.list {
		if n.ID == id {
			if !n.Read {
				n.Read = true
				if s.unread > 0 {
					s.unread--
				}
				changed = true
			}
			break
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// MarkAllAsRead flips every entry to read and zeroes the counter.
func (s *Store) MarkAllAsRead() {
	s.mu.Lock()
	for _, n := range s.list {
		n.Read = true
	}
	s.unread = 0
	s.mu.Unlock()
	s.notify()
}

// Delete removes the entry. If it was unread, the counter is decremented.
// Unknown ids are a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	changed := false
	for i, n := range s.list {
		if n.ID == id {
			if !n.Read && s.unread > 0 {
				s.unread--
			}
			s.list = append(s.list[:i], s.list[i+1:]...)
			changed = true
			break
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify()
	}
}

// ClearAll removes every notification after the confirm callback approves
// it. The host UI supplies the confirmation dialog; a nil confirm never
// clears. Reports whether the store was cleared.
func (s *Store) ClearAll(confirm func() bool) bool {
	if confirm == nil || !confirm() {
		return false
	}

	s.mu.Lock()
	s.list = nil
	s.unread = 0
	s.mu.Unlock()

	s.notify()
	return true
}

// Notifications returns a copy of the stored list, newest first.
func (s *Store) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() []Notification {
	result := make([]Notification, len(s.list))
	for i, n := range s.list {
		result[i] = *n
	}
	return result
}

// Unread returns the current unread count.
func (s *Store) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread
}

// Filter is a pure read-side projection: entries of the given type (""
// for all), optionally unread only. Never mutates state.
func (s *Store) Filter(typ string, unreadOnly bool) []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Notification, 0, len(s.list))
	for _, n := range s.list {
		if typ != "" && n.Type != typ {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		result = append(result, *n)
	}
	return result
}

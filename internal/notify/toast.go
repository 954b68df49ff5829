package notify

import (
	"sync"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/metrics"
)

// Toast display policy: at most MaxToasts of the most recent unread
// notifications, each auto-dismissing after ToastTTL.
const (
	MaxToasts = 3
	ToastTTL  = 5 * time.Second
)

// Toaster is a read-only projection of the notification store: whenever
// the list changes it recomputes the most recent unread entries as the
// visible toast set. Each toast auto-dismisses after its TTL; dismissal
// (auto or manual) removes it from the visible set only and never touches
// the underlying notification.
type Toaster struct {
	store *Store
	ttl   time.Duration

	mu        sync.Mutex
	visible   []Notification
	timers    map[string]*time.Timer // pending expiry per visible toast id
	dismissed map[string]bool        // ids whose toast window is over
	closed    bool

	onChange func([]Notification)
}

// NewToaster wires a toast projection onto the store and starts reacting
// to its changes. ttl <= 0 falls back to ToastTTL. onChange receives the
// visible toast set after every projection change; it may be nil.
func NewToaster(store *Store, ttl time.Duration, onChange func([]Notification)) *Toaster {
	if ttl <= 0 {
		ttl = ToastTTL
	}
	t := &Toaster{
		store:     store,
		ttl:       ttl,
		timers:    make(map[string]*time.Timer),
		dismissed: make(map[string]bool),
		onChange:  onChange,
	}
	store.OnChange(t.recompute)
	t.recompute()
	return t
}

// Visible returns the current toast set, newest first.
func (t *Toaster) Visible() []Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]Notification, len(t.visible))
	copy(result, t.visible)
	return result
}

// Dismiss removes a toast from the visible set (the "×" button). The
// notification itself stays untouched in the store.
func (t *Toaster) Dismiss(id string) {
	t.expire(id)
}

// Close cancels all pending expiry timers and empties the visible set.
// Called on session teardown.
func (t *Toaster) Close() {
	t.mu.Lock()
	t.closed = true
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
	t.visible = nil
	t.mu.Unlock()
}

// recompute re-derives the toast set from the store after a list change:
// the MaxToasts most recent unread notifications, excluding toasts already
// dismissed. Dismissal state is keyed by notification id so a re-derivation
// can never resurrect a dismissed toast.
func (t *Toaster) recompute() {
	all := t.store.Notifications()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	live := make(map[string]bool, len(all))
	next := make([]Notification, 0, MaxToasts)
	for _, n := range all {
		if len(next) == MaxToasts {
			break
		}
		if n.Read || t.dismissed[n.ID] {
			continue
		}
		next = append(next, n)
		live[n.ID] = true
	}

	// Cancel timers for toasts that fell out of the projection (read,
	// deleted, or pushed past the window by newer entries).
	for id, timer := range t.timers {
		if !live[id] {
			timer.Stop()
			delete(t.timers, id)
		}
	}

	// Schedule expiry for newly shown toasts. The timer handle is kept so
	// manual dismissal and store changes can cancel it cleanly.
	for _, n := range next {
		if _, scheduled := t.timers[n.ID]; !scheduled {
			id := n.ID
			t.timers[id] = time.AfterFunc(t.ttl, func() { t.expire(id) })
			metrics.ToastsShown.Inc()
		}
	}

	// Drop dismissal memory for notifications no longer in the store.
	if len(t.dismissed) > 0 {
		exists := make(map[string]bool, len(all))
		for _, n := range all {
			exists[n.ID] = true
		}
		for id := range t.dismissed {
			if !exists[id] {
				delete(t.dismissed, id)
			}
		}
	}

	changed := !sameToasts(t.visible, next)
	t.visible = next
	onChange := t.onChange
	t.mu.Unlock()

	if changed && onChange != nil {
		onChange(next)
	}
}

// expire ends a toast's visibility window: cancel its timer, remember the
// dismissal, and remove it from the visible set. The store is not touched,
// so no recompute happens and nothing backfills the freed slot.
func (t *Toaster) expire(id string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}

	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
	t.dismissed[id] = true

	changed := false
	for i, n := range t.visible {
		if n.ID == id {
			t.visible = append(t.visible[:i], t.visible[i+1:]...)
			changed = true
			break
		}
	}
	visible := make([]Notification, len(t.visible))
	copy(visible, t.visible)
	onChange := t.onChange
	t.mu.Unlock()

	if changed && onChange != nil {
		onChange(visible)
	}
}

func sameToasts(a, b []Notification) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

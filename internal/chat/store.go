package chat

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/metrics"
)

// Store is the authoritative in-memory registry of conversations and their
// per-conversation message sequences. It owns the unread-count and
// read-receipt invariants: after every mutation, UnreadCount on a
// conversation equals the number of its messages authored by someone else
// that the local user has not read.
//
// The store is goroutine-safe. Mutations run to completion under the lock;
// change listeners fire synchronously after the lock is released.
type Store struct {
	mu            sync.RWMutex
	user          *User
	order         []string // conversation ids, most recently created first
	conversations map[string]*Conversation
	messages      map[string][]*Message
	active        string

	listenerMu sync.Mutex
	listeners  []func()
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
		messages:      make(map[string][]*Message),
	}
}

// OnChange registers a listener invoked after every store mutation.
// Listeners are called synchronously, outside the store lock.
func (s *Store) OnChange(fn func()) {
	s.listenerMu.Lock()
	s.listeners = append(s.listeners, fn)
	s.listenerMu.Unlock()
}

func (s *Store) notify() {
	metrics.UnreadMessages.Set(float64(s.UnreadTotal()))

	s.listenerMu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenerMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// SetCurrentUser sets the local actor for the session. The first call wins;
// repeated calls are ignored so the identity cannot drift mid-session.
func (s *Store) SetCurrentUser(user User) {
	s.mu.Lock()
	if s.user == nil {
		u := user
		s.user = &u
	}
	s.mu.Unlock()
}

// CurrentUser returns the local actor, or nil if not yet set.
func (s *Store) CurrentUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// CreateConversation registers a new conversation at the head of the list.
// The conversation must contain exactly two participants, one of which is
// the local user.
func (s *Store) CreateConversation(conv Conversation) error {
	s.mu.Lock()

	if s.user == nil {
		s.mu.Unlock()
		return fmt.Errorf("chat: create conversation: current user not set")
	}
	if !conv.HasParticipant(s.user.ID) {
		s.mu.Unlock()
		return fmt.Errorf("chat: create conversation %s: local user %s is not a participant", conv.ID, s.user.ID)
	}
	if _, exists := s.conversations[conv.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("chat: create conversation: %s already exists", conv.ID)
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = conv.CreatedAt
	}

	c := conv
	s.conversations[c.ID] = &c
	s.order = append([]string{c.ID}, s.order...)
	s.mu.Unlock()

	s.notify()
	return nil
}

// SetActiveConversation records which conversation is open in the UI.
// Pure selection: it never touches unread counts. Pass "" to clear.
func (s *Store) SetActiveConversation(id string) {
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	s.notify()
}

// ActiveConversation returns the currently selected conversation id,
// or "" if none.
func (s *Store) ActiveConversation() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// AddMessage appends a message to the conversation's sequence and,
// atomically with the append, updates LastMessage/LastMessageAt and
// increments UnreadCount iff the sender is not the local user.
//
// Messages for unknown conversations are dropped with a log line: the
// store is purely in-memory and recovers on the next full fetch, so a
// stray event is not fatal.
func (s *Store) AddMessage(conversationID string, msg Message) {
	s.mu.Lock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		log.Printf("[chat] drop message %s for unknown conversation %s", msg.ID, conversationID)
		return
	}

	msg.ConversationID = conversationID
	// The sender has necessarily seen their own message.
	if msg.SenderID != "" && !msg.ReadByUser(msg.SenderID) {
		msg.ReadBy = append(msg.ReadBy, msg.SenderID)
	}

	m := msg
	s.messages[conversationID] = append(s.messages[conversationID], &m)

	conv.LastMessage = &m
	conv.LastMessageAt = m.CreatedAt
	if s.user == nil || m.SenderID != s.user.ID {
		conv.UnreadCount++
	}

	s.mu.Unlock()
	s.notify()
}

// MarkAsRead zeroes the conversation's unread count and adds userID to the
// read set of every message in the sequence. Idempotent; readers are never
// removed. Unknown conversation ids are a no-op.
func (s *Store) MarkAsRead(conversationID, userID string) {
	s.mu.Lock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		s.mu.Unlock()
		return
	}

	conv.UnreadCount = 0
	for _, m := range s.messages[conversationID] {
		if !m.ReadByUser(userID) {
			m.ReadBy = append(m.ReadBy, userID)
		}
	}

	s.mu.Unlock()
	s.notify()
}

// Conversation returns a copy of the conversation record, or nil if unknown.
func (s *Store) Conversation(id string) *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	c := *conv
	return &c
}

// Conversations returns the canonical display order: all conversations
// sorted by LastMessageAt descending.
func (s *Store) Conversations() []Conversation {
	s.mu.RLock()
	result := make([]Conversation, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, *s.conversations[id])
	}
	s.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastMessageAt.After(result[j].LastMessageAt)
	})
	return result
}

// Messages returns the conversation's message sequence in append
// (chronological) order. Returns an empty slice for unknown conversations.
func (s *Store) Messages(conversationID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq := s.messages[conversationID]
	result := make([]Message, len(seq))
	for i, m := range seq {
		result[i] = *m
	}
	return result
}

// UnreadTotal sums the unread counts across all conversations. This backs
// the global badge on the messaging entry point.
func (s *Store) UnreadTotal() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, conv := range s.conversations {
		total += conv.UnreadCount
	}
	return total
}

// Search returns conversations whose other participant matches the query
// case-insensitively by display name or organization code, in canonical
// display order. An empty query returns everything.
func (s *Store) Search(query string) []Conversation {
	all := s.Conversations()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all
	}

	s.mu.RLock()
	userID := ""
	if s.user != nil {
		userID = s.user.ID
	}
	s.mu.RUnlock()

	result := make([]Conversation, 0, len(all))
	for _, conv := range all {
		other := conv.Other(userID)
		if strings.Contains(strings.ToLower(other.DisplayName), query) ||
			strings.Contains(strings.ToLower(other.OrganizationCode), query) {
			result = append(result, conv)
		}
	}
	return result
}

// Package feed delivers backend events into the client-side stores. It
// subscribes to the NATS subjects that concern the signed-in user, decodes
// the event envelopes and applies them to the conversation and notification
// stores.
package feed

import (
	"log"
	"sync"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/events"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/notify"
)

// Bus is the subset of the messaging client the feed needs. Satisfied by
// *messaging.NATSClient.
type Bus interface {
	SubscribeToConversation(conversationID string, handler func(data []byte)) error
	UnsubscribeFromConversation(conversationID string) error
	SubscribeToNotifications(userID string, handler func(data []byte)) error
	UnsubscribeFromNotifications(userID string) error
}

// Feed pushes backend events into the local stores as they arrive.
type Feed struct {
	bus   Bus
	chats *chat.Store
	notes *notify.Store

	userID string

	mu      sync.Mutex
	watched map[string]bool
	closed  bool
}

// New creates a feed for the given user. Call Start to begin receiving
// notifications and WatchConversation for each open conversation.
func New(bus Bus, chats *chat.Store, notes *notify.Store, userID string) *Feed {
	return &Feed{
		bus:     bus,
		chats:   chats,
		notes:   notes,
		userID:  userID,
		watched: make(map[string]bool),
	}
}

// Start subscribes to the user's notification subject.
func (f *Feed) Start() error {
	return f.bus.SubscribeToNotifications(f.userID, f.handleNotification)
}

// WatchConversation subscribes to message events for a conversation.
// Watching an already watched conversation is a no-op.
func (f *Feed) WatchConversation(conversationID string) error {
	f.mu.Lock()
	if f.closed || f.watched[conversationID] {
		f.mu.Unlock()
		return nil
	}
	f.watched[conversationID] = true
	f.mu.Unlock()

	if err := f.bus.SubscribeToConversation(conversationID, f.handleMessage); err != nil {
		f.mu.Lock()
		delete(f.watched, conversationID)
		f.mu.Unlock()
		return err
	}
	return nil
}

// UnwatchConversation drops the subscription for a conversation.
func (f *Feed) UnwatchConversation(conversationID string) error {
	f.mu.Lock()
	if !f.watched[conversationID] {
		f.mu.Unlock()
		return nil
	}
	delete(f.watched, conversationID)
	f.mu.Unlock()

	return f.bus.UnsubscribeFromConversation(conversationID)
}

// Close drops every subscription held by the feed.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	watched := make([]string, 0, len(f.watched))
	for id := range f.watched {
		watched = append(watched, id)
	}
	f.watched = make(map[string]bool)
	f.mu.Unlock()

	for _, id := range watched {
		if err := f.bus.UnsubscribeFromConversation(id); err != nil {
			log.Printf("[feed] unwatch %s: %v", id, err)
		}
	}
	if err := f.bus.UnsubscribeFromNotifications(f.userID); err != nil {
		log.Printf("[feed] unsubscribe notifications: %v", err)
	}
}

func (f *Feed) handleMessage(data []byte) {
	typ, parsed, err := events.Parse(data)
	if err != nil {
		log.Printf("[feed] bad message event: %v", err)
		return
	}
	ev, ok := parsed.(events.MessageEvent)
	if !ok {
		log.Printf("[feed] unexpected event type %q on conversation subject", typ)
		return
	}
	// The sender's own store already holds the confirmed echo from the
	// send path. Applying it again would double the message.
	if ev.Message.SenderID == f.userID {
		return
	}
	f.chats.AddMessage(ev.ConversationID, ev.Message)
}

func (f *Feed) handleNotification(data []byte) {
	typ, parsed, err := events.Parse(data)
	if err != nil {
		log.Printf("[feed] bad notification event: %v", err)
		return
	}
	ev, ok := parsed.(events.NotificationEvent)
	if !ok {
		log.Printf("[feed] unexpected event type %q on notification subject", typ)
		return
	}
	f.notes.Add(ev.Notification)
}

// Package session wires the messaging engine together for one signed-in
// user: conversation and notification stores, the composer, the toast
// scheduler and the live event feed share a single lifecycle owned by the
// Session.
package session

import (
	"context"
	"log"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/compose"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/feed"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/notify"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/record"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/transport"
)

// Config carries everything a Session needs at construction time.
type Config struct {
	User   chat.User
	Sender transport.Sender
	Bus    feed.Bus

	// ToastTTL overrides the default toast lifetime when positive.
	// Tests use short values.
	ToastTTL time.Duration

	// OnToasts receives the visible toast set whenever it changes.
	OnToasts func([]notify.Notification)
}

// Session owns the per-user engine state. Create one when the user signs
// in and Close it when they sign out.
type Session struct {
	user chat.User

	Chats    *chat.Store
	Notes    *notify.Store
	Toaster  *notify.Toaster
	Composer *compose.Composer
	Feed     *feed.Feed
}

// New builds the engine for one user and starts the notification feed.
func New(cfg Config) (*Session, error) {
	chats := chat.NewStore()
	chats.SetCurrentUser(cfg.User)

	notes := notify.NewStore()
	toaster := notify.NewToaster(notes, cfg.ToastTTL, cfg.OnToasts)
	composer := compose.NewComposer(chats, cfg.Sender, notes)

	f := feed.New(cfg.Bus, chats, notes, cfg.User.ID)
	if err := f.Start(); err != nil {
		toaster.Close()
		return nil, err
	}

	return &Session{
		user:     cfg.User,
		Chats:    chats,
		Notes:    notes,
		Toaster:  toaster,
		Composer: composer,
		Feed:     f,
	}, nil
}

// User returns the signed-in user.
func (s *Session) User() chat.User {
	return s.user
}

// OpenConversation makes the conversation active, marks it read and
// subscribes to its live events.
func (s *Session) OpenConversation(conversationID string) error {
	s.Chats.SetActiveConversation(conversationID)
	s.Chats.MarkAsRead(conversationID, s.user.ID)
	return s.Feed.WatchConversation(conversationID)
}

// CloseConversation clears the active conversation. The live subscription
// stays up so unread counts keep tracking inbound messages.
func (s *Session) CloseConversation() {
	s.Chats.SetActiveConversation("")
}

// Send routes a draft through the composer.
func (s *Session) Send(ctx context.Context, conversationID string, draft compose.Draft) (*chat.Message, error) {
	return s.Composer.Send(ctx, conversationID, draft)
}

// NewRecorder builds a voice recorder whose confirmed clip is sent to the
// given conversation through the composer.
func (s *Session) NewRecorder(conversationID string, device record.Device, onElapsed func(seconds int)) *record.Recorder {
	sink := func(clip transport.AudioClip) error {
		_, err := s.Composer.Send(context.Background(), conversationID, compose.Draft{Audio: &clip})
		return err
	}
	return record.NewRecorder(device, sink, onElapsed)
}

// Close tears the engine down: feed subscriptions are dropped and pending
// toast timers cancelled. Stores stay readable after Close.
func (s *Session) Close() {
	s.Feed.Close()
	s.Toaster.Close()
	log.Printf("[session] closed for user %s", s.user.ID)
}

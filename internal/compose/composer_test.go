package compose

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/notify"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/transport"
	"github.com/google/uuid"
)

// fakeSender records send-boundary calls and echoes an authoritative
// message the way the backend would: fresh id, resolved URLs, timestamp.
type fakeSender struct {
	mu         sync.Mutex
	textCalls  int
	fileCalls  int
	audioCalls int
	lastFiles  []transport.FilePayload
	lastClip   *transport.AudioClip
	fail       error
	block      chan struct{} // when set, calls wait until closed
}

func (f *fakeSender) echo(conversationID string, msg transport.OutgoingMessage, messageType string, attachments []chat.Attachment) (*chat.Message, error) {
	if f.block != nil {
		<-f.block
	}
	if f.fail != nil {
		return nil, f.fail
	}
	return &chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       msg.SenderID,
		SenderName:     msg.SenderName,
		SenderType:     msg.SenderType,
		Content:        msg.Content,
		MessageType:    messageType,
		Attachments:    attachments,
		CreatedAt:      time.Now(),
	}, nil
}

func (f *fakeSender) SendMessage(_ context.Context, conversationID string, msg transport.OutgoingMessage) (*chat.Message, error) {
	f.mu.Lock()
	f.textCalls++
	f.mu.Unlock()
	return f.echo(conversationID, msg, chat.TypeText, nil)
}

func (f *fakeSender) SendMessageWithFiles(_ context.Context, conversationID string, msg transport.OutgoingMessage, files []transport.FilePayload) (*chat.Message, error) {
	f.mu.Lock()
	f.fileCalls++
	f.lastFiles = files
	f.mu.Unlock()

	attachments := make([]chat.Attachment, len(files))
	for i, file := range files {
		attachments[i] = chat.Attachment{
			ID:       uuid.NewString(),
			FileName: file.Name,
			FileType: FileTypeForMIME(file.MIME),
			FileURL:  "https://files.example/" + file.Name,
			FileSize: file.Size,
		}
	}
	return f.echo(conversationID, msg, chat.TypeFile, attachments)
}

func (f *fakeSender) SendMessageWithAudio(_ context.Context, conversationID string, msg transport.OutgoingMessage, clip transport.AudioClip) (*chat.Message, error) {
	f.mu.Lock()
	f.audioCalls++
	c := clip
	f.lastClip = &c
	f.mu.Unlock()

	return f.echo(conversationID, msg, chat.TypeAudio, []chat.Attachment{{
		ID:       uuid.NewString(),
		FileName: clip.FileName,
		FileType: chat.FileAudio,
		FileURL:  "https://files.example/" + clip.FileName,
		FileSize: int64(len(clip.Data)),
	}})
}

func newComposerFixture(t *testing.T) (*Composer, *chat.Store, *notify.Store, *fakeSender) {
	t.Helper()

	store := chat.NewStore()
	store.SetCurrentUser(chat.User{ID: "u-org", DisplayName: "Harbor Exchange", Kind: chat.ActorOrganization, OrganizationCode: "HBX-007"})
	if err := store.CreateConversation(chat.Conversation{
		ID: "conv-1",
		Participants: [2]chat.Participant{
			{ID: "u-org", DisplayName: "Harbor Exchange"},
			{ID: "u-admin", DisplayName: "Supervision Desk"},
		},
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	notes := notify.NewStore()
	sender := &fakeSender{}
	return NewComposer(store, sender, notes), store, notes, sender
}

func TestSendTextAppendsEchoOnSuccess(t *testing.T) {
	c, store, _, sender := newComposerFixture(t)

	msg, err := c.Send(context.Background(), "conv-1", Draft{Text: "  figures submitted  "})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.Content != "figures submitted" {
		t.Errorf("content not trimmed: %q", msg.Content)
	}
	if sender.textCalls != 1 {
		t.Errorf("expected 1 text send, got %d", sender.textCalls)
	}

	msgs := store.Messages("conv-1")
	if len(msgs) != 1 || msgs[0].ID != msg.ID {
		t.Fatalf("echo not appended to store: %+v", msgs)
	}
	// Own sends never bump the local unread count.
	if got := store.Conversation("conv-1").UnreadCount; got != 0 {
		t.Errorf("own send bumped unread to %d", got)
	}
}

func TestSendEmptyDraftRejectedWithoutNetworkCall(t *testing.T) {
	c, store, _, sender := newComposerFixture(t)

	_, err := c.Send(context.Background(), "conv-1", Draft{Text: "   \t\n"})
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
	if sender.textCalls+sender.fileCalls+sender.audioCalls != 0 {
		t.Error("empty draft reached the send boundary")
	}
	if got := len(store.Messages("conv-1")); got != 0 {
		t.Errorf("store mutated on rejected send: %d messages", got)
	}
}

func TestSendEmptyTextWithFilesIsValid(t *testing.T) {
	c, _, _, sender := newComposerFixture(t)

	msg, err := c.Send(context.Background(), "conv-1", Draft{
		Files: []File{{Name: "report.pdf", MIME: "application/pdf", Size: 1024, Data: []byte("%PDF")}},
	})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if msg.MessageType != chat.TypeFile {
		t.Errorf("message type %q, want file", msg.MessageType)
	}
	if len(msg.Attachments) != 1 || msg.Attachments[0].FileURL == "" {
		t.Errorf("attachment URL not resolved: %+v", msg.Attachments)
	}
	if sender.fileCalls != 1 {
		t.Errorf("expected 1 file send, got %d", sender.fileCalls)
	}
}

func TestAudioTakesPrecedenceOverFiles(t *testing.T) {
	c, _, _, sender := newComposerFixture(t)

	draft := Draft{
		Files: []File{{Name: "stale.pdf", MIME: "application/pdf", Size: 10}},
		Audio: &transport.AudioClip{FileName: "voice-message.webm", MIME: "audio/webm", Data: []byte("opus"), Duration: 3 * time.Second},
	}
	msg, err := c.Send(context.Background(), "conv-1", draft)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	if sender.audioCalls != 1 || sender.fileCalls != 0 {
		t.Fatalf("audio=%d file=%d calls; audio must win", sender.audioCalls, sender.fileCalls)
	}
	if msg.MessageType != chat.TypeAudio {
		t.Errorf("message type %q, want audio", msg.MessageType)
	}
	if sender.lastClip.FileName != "voice-message.webm" {
		t.Errorf("clip filename %q", sender.lastClip.FileName)
	}
}

func TestSendFailureLeavesStoreUntouchedAndSurfacesBackendMessage(t *testing.T) {
	c, store, notes, sender := newComposerFixture(t)
	sender.fail = &transport.APIError{StatusCode: 422, Message: "attachment rejected by policy"}

	_, err := c.Send(context.Background(), "conv-1", Draft{Text: "hello"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := len(store.Messages("conv-1")); got != 0 {
		t.Fatalf("store mutated on failed send: %d messages", got)
	}

	list := notes.Notifications()
	if len(list) != 1 {
		t.Fatalf("expected 1 failure notification, got %d", len(list))
	}
	if list[0].Type != notify.TypeError {
		t.Errorf("notification type %q", list[0].Type)
	}
	if list[0].Message != "attachment rejected by policy" {
		t.Errorf("backend message not surfaced: %q", list[0].Message)
	}
}

func TestSendFailureGenericMessageWhenBackendSilent(t *testing.T) {
	c, _, notes, sender := newComposerFixture(t)
	sender.fail = errors.New("connection reset")

	if _, err := c.Send(context.Background(), "conv-1", Draft{Text: "hello"}); err == nil {
		t.Fatal("expected error")
	}

	list := notes.Notifications()
	if len(list) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(list))
	}
	if list[0].Message == "connection reset" {
		t.Error("raw transport error leaked to the user")
	}
	if list[0].Message == "" {
		t.Error("no generic failure message")
	}
}

func TestSendInFlightGuardPerConversation(t *testing.T) {
	c, store, _, sender := newComposerFixture(t)
	if err := store.CreateConversation(chat.Conversation{
		ID: "conv-2",
		Participants: [2]chat.Participant{
			{ID: "u-org"}, {ID: "u-other"},
		},
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}

	sender.block = make(chan struct{})
	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Send(context.Background(), "conv-1", Draft{Text: "first"})
		firstDone <- err
	}()

	// Wait for the first send to enter the boundary.
	deadline := time.After(time.Second)
	for {
		sender.mu.Lock()
		started := sender.textCalls == 1
		sender.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first send never reached the boundary")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	// Same conversation: rejected while in flight.
	if _, err := c.Send(context.Background(), "conv-1", Draft{Text: "second"}); !errors.Is(err, ErrSendInFlight) {
		t.Errorf("expected ErrSendInFlight, got %v", err)
	}

	// Different conversation: unaffected. Release the block first so the
	// call can complete.
	close(sender.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	sender.block = nil
	if _, err := c.Send(context.Background(), "conv-2", Draft{Text: "other"}); err != nil {
		t.Errorf("send on second conversation failed: %v", err)
	}

	// Guard released after completion.
	if _, err := c.Send(context.Background(), "conv-1", Draft{Text: "third"}); err != nil {
		t.Errorf("send after completion failed: %v", err)
	}
}

func TestSendOverlongTextRejectedWithoutNetworkCall(t *testing.T) {
	c, store, _, sender := newComposerFixture(t)

	long := make([]byte, chat.MaxContentChars+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err := c.Send(context.Background(), "conv-1", Draft{Text: string(long)})
	if err == nil {
		t.Fatal("expected rejection for overlong text")
	}
	if sender.textCalls != 0 {
		t.Error("overlong draft reached the send boundary")
	}
	if got := len(store.Messages("conv-1")); got != 0 {
		t.Errorf("store mutated on rejected send: %d messages", got)
	}
}

func TestSendWithoutUserRejected(t *testing.T) {
	store := chat.NewStore()
	c := NewComposer(store, &fakeSender{}, nil)

	if _, err := c.Send(context.Background(), "conv-1", Draft{Text: "hi"}); !errors.Is(err, ErrNoUser) {
		t.Fatalf("expected ErrNoUser, got %v", err)
	}
}

package compose

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/metrics"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/notify"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/transport"
)

var (
	// ErrNoContent rejects a send whose text is empty/whitespace and that
	// carries no attachment. No network call is made.
	ErrNoContent = errors.New("compose: message has no text and no attachments")

	// ErrSendInFlight rejects a send while another one for the same
	// conversation has not completed yet.
	ErrSendInFlight = errors.New("compose: send already in flight for this conversation")

	// ErrNoUser rejects sends before the session identity is known.
	ErrNoUser = errors.New("compose: current user not set")
)

// Draft is everything the user has staged for one message: text, selected
// files, and at most one voice clip. On any send failure the draft is left
// untouched in the caller's hands, so nothing already typed is lost.
type Draft struct {
	Text  string
	Files []File
	Audio *transport.AudioClip
}

// Composer assembles one outgoing message per send and drives it through
// the send boundary. Only a successful boundary response mutates the
// conversation store; the appended record is the backend echo, which
// carries the authoritative id, attachment URLs, and timestamp.
//
// Precedence when a draft somehow carries several kinds of content:
// audio > files > text-only. Audio sends ignore any pending file selection.
type Composer struct {
	store  *chat.Store
	sender transport.Sender
	notes  *notify.Store // failure surface; may be nil

	mu       sync.Mutex
	inflight map[string]bool
}

// NewComposer creates a composer bound to the conversation store and send
// boundary. notes receives a dismissible error notification on transport
// failures and may be nil.
func NewComposer(store *chat.Store, sender transport.Sender, notes *notify.Store) *Composer {
	return &Composer{
		store:    store,
		sender:   sender,
		notes:    notes,
		inflight: make(map[string]bool),
	}
}

// Send validates the draft, invokes the send boundary, and on success
// appends the echoed message to the conversation store. One send may be in
// flight per conversation at a time; callers should disable the send
// action until Send returns.
func (c *Composer) Send(ctx context.Context, conversationID string, draft Draft) (*chat.Message, error) {
	user := c.store.CurrentUser()
	if user == nil {
		return nil, ErrNoUser
	}

	text := strings.TrimSpace(draft.Text)
	if text == "" && len(draft.Files) == 0 && draft.Audio == nil {
		metrics.SendFailures.WithLabelValues("validation").Inc()
		return nil, ErrNoContent
	}
	if err := chat.ValidateContent(text); err != nil {
		metrics.SendFailures.WithLabelValues("validation").Inc()
		return nil, fmt.Errorf("compose: %w", err)
	}

	c.mu.Lock()
	if c.inflight[conversationID] {
		c.mu.Unlock()
		return nil, ErrSendInFlight
	}
	c.inflight[conversationID] = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inflight, conversationID)
		c.mu.Unlock()
	}()

	out := transport.OutgoingMessage{
		SenderID:      user.ID,
		SenderName:    user.DisplayName,
		SenderType:    user.Kind,
		SenderOrgCode: user.OrganizationCode,
		Content:       text,
	}

	var (
		msg     *chat.Message
		err     error
		sent    string
		started = time.Now()
	)
	switch {
	case draft.Audio != nil:
		sent = chat.TypeAudio
		msg, err = c.sender.SendMessageWithAudio(ctx, conversationID, out, *draft.Audio)
	case len(draft.Files) > 0:
		sent = chat.TypeFile
		out.MessageType = chat.TypeFile
		msg, err = c.sender.SendMessageWithFiles(ctx, conversationID, out, filePayloads(draft.Files))
	default:
		sent = chat.TypeText
		out.MessageType = chat.TypeText
		msg, err = c.sender.SendMessage(ctx, conversationID, out)
	}
	metrics.SendLatency.Observe(time.Since(started).Seconds())

	if err != nil {
		metrics.SendFailures.WithLabelValues("transport").Inc()
		log.Printf("[compose] send failed conversation=%s type=%s: %v", conversationID, sent, err)
		c.surfaceFailure(err)
		return nil, fmt.Errorf("compose: send %s message: %w", sent, err)
	}

	c.store.AddMessage(conversationID, *msg)
	metrics.MessagesSent.WithLabelValues(sent).Inc()
	return msg, nil
}

// surfaceFailure raises a dismissible error notification, using the
// backend-provided message when the boundary supplied one.
func (c *Composer) surfaceFailure(err error) {
	if c.notes == nil {
		return
	}

	message := "Your message could not be sent. Please try again."
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		message = apiErr.Message
	}

	c.notes.Add(notify.Incoming{
		Type:    notify.TypeError,
		Title:   "Message not sent",
		Message: message,
	})
}

func filePayloads(files []File) []transport.FilePayload {
	payloads := make([]transport.FilePayload, len(files))
	for i, f := range files {
		payloads[i] = transport.FilePayload{
			Name: f.Name,
			MIME: f.MIME,
			Size: f.Size,
			Data: f.Data,
		}
	}
	return payloads
}

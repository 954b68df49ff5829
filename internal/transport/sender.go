// Package transport implements the client side of the send boundary: the
// three request/response calls that durably persist a message on the
// backend and return its authoritative record, with attachment URLs
// resolved.
package transport

import (
	"context"
	"time"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
)

// OutgoingMessage carries the sender-identifying fields and content for
// one send. MessageType is set by the caller for text/file sends; the
// backend assigns "audio" for voice sends.
type OutgoingMessage struct {
	SenderID      string `json:"senderId"`
	SenderName    string `json:"senderName"`
	SenderType    string `json:"senderType"`
	SenderOrgCode string `json:"senderOrgCode,omitempty"`
	Content       string `json:"content"`
	MessageType   string `json:"messageType,omitempty"`
}

// FilePayload is one attachment upload: raw bytes plus picker metadata.
type FilePayload struct {
	Name string
	MIME string
	Size int64
	Data []byte
}

// AudioClip is a finished voice recording: a single opaque blob in a
// webm/opus-equivalent container.
type AudioClip struct {
	FileName string // voice-message.<ext> convention
	MIME     string // audio/webm or equivalent
	Data     []byte
	Duration time.Duration
}

// Sender is the send boundary consumed by the Message Composer. Each call
// is fire-to-completion: there is no client-side cancellation of an
// in-flight send, and the returned message is the authoritative record to
// feed into the conversation store.
type Sender interface {
	SendMessage(ctx context.Context, conversationID string, msg OutgoingMessage) (*chat.Message, error)
	SendMessageWithFiles(ctx context.Context, conversationID string, msg OutgoingMessage, files []FilePayload) (*chat.Message, error)
	SendMessageWithAudio(ctx context.Context, conversationID string, msg OutgoingMessage, clip AudioClip) (*chat.Message, error)
}

// APIError is a rejection from the backend that carried a user-facing
// message. The composer surfaces Message verbatim.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

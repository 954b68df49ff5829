// Package events defines the wire events the message backend fans out to
// client sessions. All events are serialized as JSON and follow a
// consistent envelope format with a type discriminator.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/notify"
)

// Event type constants.
const (
	TypeMessage      = "message"      // a message was appended to a conversation
	TypeNotification = "notification" // a domain notification for a user
)

// Envelope holds the event type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field so the rest of the payload can be decoded later into the
// appropriate concrete struct.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("events: unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("events: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// MessageEvent announces a message appended to a conversation. The
// embedded message is the authoritative backend record, attachment URLs
// resolved.
type MessageEvent struct {
	Type           string       `json:"type"`
	ConversationID string       `json:"conversationId"`
	Message        chat.Message `json:"message"`
}

// NewMessageEvent builds a message event ready for publishing.
func NewMessageEvent(conversationID string, msg chat.Message) MessageEvent {
	return MessageEvent{
		Type:           TypeMessage,
		ConversationID: conversationID,
		Message:        msg,
	}
}

// NotificationEvent carries a domain notification (submission received,
// approved, rejected, ...) raised for a specific user.
type NotificationEvent struct {
	Type         string          `json:"type"`
	UserID       string          `json:"userId"`
	Notification notify.Incoming `json:"notification"`
}

// NewNotificationEvent builds a notification event ready for publishing.
func NewNotificationEvent(userID string, n notify.Incoming) NotificationEvent {
	return NotificationEvent{
		Type:         TypeNotification,
		UserID:       userID,
		Notification: n,
	}
}

// Parse decodes raw event bytes into the concrete struct for its type.
// Returns the event type, the decoded event, and any error.
func Parse(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}

	switch env.Type {
	case TypeMessage:
		var ev MessageEvent
		if err := json.Unmarshal(env.Raw, &ev); err != nil {
			return env.Type, nil, fmt.Errorf("events: unmarshal message event: %w", err)
		}
		return env.Type, ev, nil
	case TypeNotification:
		var ev NotificationEvent
		if err := json.Unmarshal(env.Raw, &ev); err != nil {
			return env.Type, nil, fmt.Errorf("events: unmarshal notification event: %w", err)
		}
		return env.Type, ev, nil
	default:
		return env.Type, nil, fmt.Errorf("events: unknown event type %q", env.Type)
	}
}

package server

import (
	"sync"

	"github.com/SIDEHUSTLE-WORK/amlstat-system-sub000/internal/chat"
)

// MaxBufferMessages is the number of recent messages retained per
// conversation in the in-memory cache.
const MaxBufferMessages = 50

// MessageBuffer stores the last N persisted messages per conversation so
// the recent-messages endpoint can answer without a database round trip.
// It is goroutine-safe and uses a ring buffer internally.
type MessageBuffer struct {
	mu      sync.RWMutex
	buffers map[string]*ringBuffer // conversationID -> ring buffer
}

// ringBuffer is a fixed-size circular buffer of messages.
type ringBuffer struct {
	items []chat.Message
	pos   int
	count int
}

// NewMessageBuffer creates a new empty MessageBuffer.
func NewMessageBuffer() *MessageBuffer {
	return &MessageBuffer{
		buffers: make(map[string]*ringBuffer),
	}
}

// Add appends a message to the conversation's ring buffer. If the buffer
// is full, the oldest message is overwritten.
func (mb *MessageBuffer) Add(conversationID string, msg chat.Message) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	rb, ok := mb.buffers[conversationID]
	if !ok {
		rb = &ringBuffer{
			items: make([]chat.Message, MaxBufferMessages),
		}
		mb.buffers[conversationID] = rb
	}

	rb.items[rb.pos] = msg
	rb.pos = (rb.pos + 1) % MaxBufferMessages
	if rb.count < MaxBufferMessages {
		rb.count++
	}
}

// Recent returns up to limit of the conversation's newest buffered
// messages in chronological order (oldest first). A limit <= 0 or larger
// than the buffer returns everything buffered.
func (mb *MessageBuffer) Recent(conversationID string, limit int) []chat.Message {
	mb.mu.RLock()
	defer mb.mu.RUnlock()

	rb, ok := mb.buffers[conversationID]
	if !ok {
		return []chat.Message{}
	}

	n := rb.count
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]chat.Message, n)
	// The oldest wanted message is n slots back from the write position.
	start := (rb.pos - n + MaxBufferMessages) % MaxBufferMessages
	for i := 0; i < n; i++ {
		result[i] = rb.items[(start+i)%MaxBufferMessages]
	}
	return result
}

// Remove deletes the buffer for a conversation.
func (mb *MessageBuffer) Remove(conversationID string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	delete(mb.buffers, conversationID)
}

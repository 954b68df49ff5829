// Package messaging provides a NATS client wrapper for the portal's event
// fan-out. The message backend publishes conversation and notification
// events; client sessions subscribe to the subjects that concern them.
package messaging

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATS subject patterns.
const (
	// SubjectConversation + .<conversation_id> carries message-appended
	// events for one conversation.
	SubjectConversation = "portal.conv"

	// SubjectNotify + .<user_id> carries domain notifications for one user.
	SubjectNotify = "portal.notify"
)

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           "nats://localhost:4222",
		Name:          "portal",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig) (*NATSClient, error) {
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("[nats] disconnected: %v", err)
			} else {
				log.Printf("[nats] disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("[nats] reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Printf("[nats] connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Printf("[nats] connected to %s", nc.ConnectedUrl())

	return &NATSClient{
		conn: nc,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(msg *nats.Msg)) error {
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// PublishMessageEvent publishes a message-appended event to the
// conversation's subject.
func (c *NATSClient) PublishMessageEvent(conversationID string, data []byte) error {
	return c.Publish(SubjectConversation+"."+conversationID, data)
}

// PublishNotification publishes a domain notification to a user's subject.
func (c *NATSClient) PublishNotification(userID string, data []byte) error {
	return c.Publish(SubjectNotify+"."+userID, data)
}

// SubscribeToConversation subscribes to message events for one
// conversation and passes the raw payload to the handler.
func (c *NATSClient) SubscribeToConversation(conversationID string, handler func(data []byte)) error {
	subject := SubjectConversation + "." + conversationID
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeFromConversation drops the subscription for one conversation.
func (c *NATSClient) UnsubscribeFromConversation(conversationID string) error {
	return c.unsubscribe(SubjectConversation + "." + conversationID)
}

// SubscribeToNotifications subscribes to domain notifications for a user.
func (c *NATSClient) SubscribeToNotifications(userID string, handler func(data []byte)) error {
	subject := SubjectNotify + "." + userID
	return c.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
}

// UnsubscribeFromNotifications drops the user's notification subscription.
func (c *NATSClient) UnsubscribeFromNotifications(userID string) error {
	return c.unsubscribe(SubjectNotify + "." + userID)
}

// unsubscribe removes and drains a stored subscription. Unknown keys are a
// no-op.
func (c *NATSClient) unsubscribe(key string) error {
	c.mu.Lock()
	sub, ok := c.subs[key]
	if ok {
		delete(c.subs, key)
	}
	c.mu.Unlock()

	if !ok {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", key, err)
	}
	return nil
}

// Close drains all subscriptions and closes the connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	for key, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Printf("[nats] unsubscribe %s: %v", key, err)
		}
		delete(c.subs, key)
	}
	c.mu.Unlock()

	c.conn.Close()
}

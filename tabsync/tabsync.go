// Package tabsync propagates authentication state transitions between
// sibling client instances so none keeps operating on a revoked session.
// Delivery is best-effort: an instance that misses a message self-corrects
// on its next authenticated request, so sync is a latency optimization,
// not a correctness requirement.
package tabsync

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Message types broadcast between instances
const (
	// TypeSignOut tells every instance to clear local credential state
	// and return to the sign-in entry point.
	TypeSignOut = "sign_out"

	// TypeTokenRefreshed announces a successful token refresh
	TypeTokenRefreshed = "token_refreshed"
)

// Message is the wire shape exchanged between instances
type Message struct {
	// Type identifies the state transition
	Type string `json:"type"`

	// Payload carries transition-specific data
	Payload json.RawMessage `json:"payload,omitempty"`

	// Timestamp is the send time in Unix milliseconds
	Timestamp int64 `json:"timestamp"`

	// SenderID identifies the sending instance; receivers ignore their
	// own messages.
	SenderID string `json:"sender_id"`
}

// Broadcaster delivers messages to every subscribed instance, including
// the sender (self-echo filtering happens in Channel).
type Broadcaster interface {
	// Broadcast publishes a message to all instances
	Broadcast(msg Message) error

	// Subscribe registers a handler for incoming messages.
	// The returned cancel function removes the subscription.
	Subscribe(handler func(Message)) (cancel func())

	// Close releases broadcaster resources
	Close() error
}

// Channel is one instance's handle on the sync fabric. It stamps outgoing
// messages with the instance identity and suppresses self-echoes on
// receive.
type Channel struct {
	id     string
	b      Broadcaster
	logger *slog.Logger
}

// NewChannel creates a channel with a fresh instance identity
func NewChannel(b Broadcaster, logger *slog.Logger) *Channel {
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		id:     uuid.NewString(),
		b:      b,
		logger: logger,
	}
}

// ID returns this instance's identity
func (c *Channel) ID() string {
	return c.id
}

// Publish broadcasts a state transition to sibling instances
func (c *Channel) Publish(msgType string, payload any) error {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = data
	}

	return c.b.Broadcast(Message{
		Type:      msgType,
		Payload:   raw,
		Timestamp: time.Now().UnixMilli(),
		SenderID:  c.id,
	})
}

// Listen registers a handler for messages from other instances.
// Messages this channel sent itself are dropped.
func (c *Channel) Listen(handler func(Message)) (cancel func()) {
	return c.b.Subscribe(func(msg Message) {
		if msg.SenderID == c.id {
			return
		}
		handler(msg)
	})
}

// Close releases the underlying broadcaster
func (c *Channel) Close() error {
	return c.b.Close()
}

// Select picks a delivery strategy by capability: a shared-file watcher
// when a sync file path is configured and usable (reaches instances in
// other processes), otherwise the in-process bus.
func Select(filePath string, pollInterval time.Duration, logger *slog.Logger) Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}

	if filePath != "" {
		fb, err := NewFileBroadcaster(filePath, pollInterval, logger)
		if err == nil {
			return fb
		}
		logger.Warn("sync file unusable, falling back to in-process delivery",
			"path", filePath, "error", err)
	}

	return NewBus()
}

/*
Package hub contains the connection lifecycle and message fan-out logic of the
communication hub.

This file defines the inbound send types and the outbound wire envelope pushed
to resolved connections.
*/
package hub

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"commhub/internal/app/chatstore"
)

// EventType tags outbound envelopes so clients can dispatch on them.
type EventType string

const (
	// EventMessage carries a persisted chat message.
	EventMessage EventType = "MESSAGE"

	// EventNotification carries an out-of-band notification.
	EventNotification EventType = "NOTIFICATION"
)

// Envelope is the JSON frame delivered to every resolved connection.
type Envelope struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// newEnvelope builds and marshals an outbound frame.
func newEnvelope(eventType EventType, payload any) ([]byte, error) {
	env := Envelope{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	return json.Marshal(env)
}

// Identity is the authenticated claim set read once at connect time.
type Identity struct {
	UserID      string
	DisplayName string
	Language    string
}

// MessageInput describes one message to persist and fan out.
type MessageInput struct {
	// ConversationID is the destination conversation.
	ConversationID string

	// Type selects the routing rule. When empty, the persisted
	// conversation's own type is used.
	Type chatstore.ChatType

	// SenderID and ReceiverID mirror the stored message fields; ReceiverID
	// is informational for individual chats and empty for groups.
	SenderID   string
	ReceiverID string

	Content     string
	Attachments []chatstore.Attachment
}

// Notification is an out-of-band payload addressed to explicit users rather
// than a conversation.
type Notification struct {
	UserIDs []string `json:"userIds"`
	Content string   `json:"content"`
}

// SendResult reports the outcome of a SendMessage call. The sender learns
// whether the message was persisted and how wide the fan-out was, but never
// which individual connections were unreachable.
type SendResult struct {
	Conversation chatstore.Conversation `json:"chat"`
	Message      chatstore.Message      `json:"message"`
	Targets      []string               `json:"-"`
	Delivered    int                    `json:"delivered"`
}

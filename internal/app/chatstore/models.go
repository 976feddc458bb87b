/*
Package chatstore persists conversations and their messages in PostgreSQL.

It is the durable side of the communication hub: the presence registry caches
reachability, while this package holds the authoritative participant lists
and message history the fan-out resolver routes against.
*/
package chatstore

import (
	"encoding/json"
	"time"
)

// MaxContentBytes is the maximum allowed size of a message's text content.
const MaxContentBytes = 5000

// ChatType tags how a conversation routes messages.
type ChatType string

const (
	// ChatTypeIndividual routes by the conversation's participant list.
	ChatTypeIndividual ChatType = "individual"

	// ChatTypeGroup routes by the connect-time room cache.
	ChatTypeGroup ChatType = "group"
)

// Valid reports whether t is a known chat type tag.
func (t ChatType) Valid() bool {
	return t == ChatTypeIndividual || t == ChatTypeGroup
}

// MessageStatus tracks a message through its read lifecycle.
type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Valid reports whether s is a known message status.
func (s MessageStatus) Valid() bool {
	return s == StatusSent || s == StatusDelivered || s == StatusRead
}

// Conversation is a chat between two users or a named group.
type Conversation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name,omitempty"`
	Type         ChatType  `json:"type"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"creationDate"`

	// Messages is populated only by single-conversation reads; list queries
	// leave it nil.
	Messages []Message `json:"messages,omitempty"`
}

// Message is one entry in a conversation's history.
type Message struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"chatId"`
	SenderID       string          `json:"senderId"`
	ReceiverID     string          `json:"receiverId,omitempty"`
	Content        string          `json:"content"`
	Attachments    json.RawMessage `json:"attachments,omitempty"`
	Status         MessageStatus   `json:"status"`
	SentAt         time.Time       `json:"timestamp"`
}

package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a single chat message. It is never modified after creation.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID and the current time
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Content:   content,
		Role:      role,
		Timestamp: time.Now(),
	}
}

// Log is the append-only, ordered message history of one conversation.
// Position in the log is conversation order; timestamps are for display.
// A Log is not safe for concurrent use; its owner serializes access.
type Log struct {
	messages []Message
}

// Append adds msg after all current entries.
// An empty role or content is a programming error.
func (l *Log) Append(msg Message) {
	if msg.Role == "" || msg.Content == "" {
		panic(fmt.Sprintf("session: appending message with empty role or content (id=%q)", msg.ID))
	}
	l.messages = append(l.messages, msg)
}

// Messages returns a copy of the log in order
func (l *Log) Messages() []Message {
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of messages in the log
func (l *Log) Len() int {
	return len(l.messages)
}

// State is a point-in-time view of a chat session, handed to the presentation layer
type State struct {
	Messages  []Message `json:"messages"`
	Pending   bool      `json:"pending"`
	LastError string    `json:"lastError,omitempty"`
}

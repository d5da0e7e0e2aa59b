package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message statuses. StatusReady is the default; interim statuses such as
// "thinking" come from status events correlated with an in-flight reply.
const (
	StatusReady    = "ready"
	StatusThinking = "thinking"
)

// ConversationMessage is one entry of the rendered conversation. User messages
// are synthesized locally on send; assistant messages are derived from backend
// message events. Messages are append-only and never mutated after creation,
// except for status refinement while the correlated reply is still in flight.
type ConversationMessage struct {
	ID            string      `json:"id"`
	Role          Role        `json:"role"`
	Text          string      `json:"text"`
	CreatedAt     time.Time   `json:"createdAt"`
	Status        string      `json:"status,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
	Attachment    *Attachment `json:"attachment,omitempty"`
}

// NewUserMessage creates a locally-authored user message. The message id
// doubles as the correlation id linking backend replies to this turn.
func NewUserMessage(text string) ConversationMessage {
	id := uuid.NewString()
	return ConversationMessage{
		ID:            id,
		Role:          RoleUser,
		Text:          text,
		CreatedAt:     time.Now().UTC(),
		Status:        StatusReady,
		CorrelationID: id,
	}
}

package conversation

import (
	"context"
	"time"
)

// Service describes how the slot-filling engine should behave.
type Service interface {
	ProcessMessage(ctx context.Context, req MessageRequest) (*Response, error)
}

// MessageRequest represents a single inbound turn in a conversation.
type MessageRequest struct {
	OrgID          string            `json:"org_id"`
	ConversationID string            `json:"conversation_id"`
	From           string            `json:"from"`
	To             string            `json:"to"`
	Text           string            `json:"text"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// Reply is one outbound message produced by the engine for a turn.
// Options, when present, are quick-reply choices the transport may render.
type Reply struct {
	Text    string   `json:"text"`
	Options []string `json:"options,omitempty"`
}

// Response is the DTO returned to the worker/API layer for one turn.
type Response struct {
	ConversationID string    `json:"conversation_id"`
	Replies        []Reply   `json:"replies"`
	Confirmed      bool      `json:"confirmed"`
	Timestamp      time.Time `json:"timestamp"`
}

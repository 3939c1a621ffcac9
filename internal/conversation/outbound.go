package conversation

import "context"

// ReplyMessenger delivers engine replies back to the end user (e.g. via
// WhatsApp or SMS).
type ReplyMessenger interface {
	SendReply(ctx context.Context, reply OutboundReply) error
}

// OutboundReply carries the data required to push one message to the user.
type OutboundReply struct {
	OrgID          string
	ConversationID string
	To             string
	From           string
	Body           string
	Options        []string
	Metadata       map[string]string
}

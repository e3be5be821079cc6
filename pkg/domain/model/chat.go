package model

import (
	"time"

	"github.com/helixa-health/scribe/pkg/domain/types"
)

// StreamingMessageID is the transient placeholder ID of an assistant message
// that is still being streamed. It is merged into the final message once the
// stream terminates.
const StreamingMessageID = "streaming"

// ChatMessage is one message in an assistant chat session
type ChatMessage struct {
	ID        string
	Role      types.ChatRole
	Content   string
	Timestamp time.Time
}

// IsStreaming reports whether the message is the transient streaming placeholder
func (x *ChatMessage) IsStreaming() bool {
	return x.ID == StreamingMessageID
}

package llm

import (
	"context"
	"time"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"

	defaultChatTimeout      = 1 * time.Minute
	defaultEmbeddingTimeout = 30 * time.Second
)

// messageRole returns the role of the i-th message of a conversation: even messages are sent by
// the user, odd ones by the assistant.
func messageRole(i int) string {
	if i%2 == 1 {
		return roleAssistant
	}
	return roleUser
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

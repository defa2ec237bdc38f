// Package history holds the bounded per-conversation message log shared
// by the session manager and the orchestrator.
package history

import (
	"fmt"
	"strings"
	"time"
)

const messageLimit = 20

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// History is append-only and keeps the most recent messageLimit entries.
// It is not goroutine-safe; the owning session serializes access.
type History struct {
	messages []Message
}

func (h *History) Add(role, content string, now time.Time) {
	msg := Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
	}

	if len(h.messages) >= messageLimit {
		h.messages = append(h.messages[1:], msg)
	} else {
		h.messages = append(h.messages, msg)
	}
}

func (h *History) All() []Message {
	out := make([]Message, len(h.messages))
	copy(out, h.messages)

	return out
}

func (h *History) Len() int {
	return len(h.messages)
}

func Format(messages []Message) string {
	if len(messages) == 0 {
		return "No recent messages"
	}

	var builder strings.Builder

	for _, msg := range messages {
		builder.WriteString(fmt.Sprintf("%s: %s\n", msg.Role, msg.Content))
	}

	return builder.String()
}

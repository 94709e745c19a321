package buffer

import (
	"fmt"
	"strings"
)

// conversationBuffer keeps full messages with one-at-a-time FIFO eviction
// and no summarization. It additionally exposes role-filtered access,
// substring search, and a rough token estimate.
type conversationBuffer struct {
	cfg      Config
	messages []Message
}

func newConversationBuffer(cfg Config) *conversationBuffer {
	return &conversationBuffer{cfg: cfg}
}

func (b *conversationBuffer) Add(msg Message) error {
	b.messages = append(b.messages, msg)
	if len(b.messages) > b.cfg.MaxSize {
		b.messages = b.messages[1:]
	}
	return nil
}

func (b *conversationBuffer) Trim() {
	for len(b.messages) > b.cfg.MaxSize {
		b.messages = b.messages[1:]
	}
}

func (b *conversationBuffer) Messages() []Message {
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *conversationBuffer) Clear() {
	b.messages = nil
}

func (b *conversationBuffer) Len() int { return len(b.messages) }

func (b *conversationBuffer) Context() string {
	if len(b.messages) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, msg := range b.messages {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// ByRole returns buffered messages with the given role, in order.
func (b *conversationBuffer) ByRole(role string) []Message {
	var out []Message
	for _, msg := range b.messages {
		if msg.Role == role {
			out = append(out, msg)
		}
	}
	return out
}

// Search returns messages whose content contains query, case-insensitive.
func (b *conversationBuffer) Search(query string) []Message {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var out []Message
	for _, msg := range b.messages {
		if strings.Contains(strings.ToLower(msg.Content), query) {
			out = append(out, msg)
		}
	}
	return out
}

// EstimateTokens approximates the token count of the buffered content
// at roughly four characters per token.
func (b *conversationBuffer) EstimateTokens() int {
	total := 0
	for _, msg := range b.messages {
		total += len(msg.Content)
	}
	return total / 4
}

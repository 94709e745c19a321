package buffer

import (
	"fmt"
	"strings"
)

// windowBuffer keeps the most recent maxSize messages.
type windowBuffer struct {
	cfg      Config
	messages []Message
}

func newWindowBuffer(cfg Config) *windowBuffer {
	return &windowBuffer{cfg: cfg}
}

func (b *windowBuffer) Add(msg Message) error {
	b.messages = append(b.messages, msg)
	b.Trim()
	return nil
}

func (b *windowBuffer) Trim() {
	for len(b.messages) > b.cfg.MaxSize {
		b.messages = b.messages[1:]
	}
}

func (b *windowBuffer) Messages() []Message {
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *windowBuffer) Clear() {
	b.messages = nil
}

func (b *windowBuffer) Len() int { return len(b.messages) }

func (b *windowBuffer) Context() string {
	if len(b.messages) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, msg := range b.messages {
		fmt.Fprintf(&sb, "%s: %s\n", msg.Role, msg.Content)
	}
	return strings.TrimRight(sb.String(), "\n")
}

package buffer

import (
	"fmt"
	"sort"
	"strings"
)

const maxReasoningChain = 20

// workingBuffer keeps recent messages plus derived scratch state for an
// in-flight task: the current step label, a variable map, and a bounded
// reasoning chain. Scratch state is populated only from the enumerated
// metadata fields on Message.
type workingBuffer struct {
	cfg         Config
	messages    []Message
	currentStep string
	variables   map[string]string
	reasoning   []string
}

func newWorkingBuffer(cfg Config) *workingBuffer {
	return &workingBuffer{cfg: cfg, variables: make(map[string]string)}
}

func (b *workingBuffer) Add(msg Message) error {
	b.messages = append(b.messages, msg)
	b.Trim()
	b.extractHints(msg.Metadata)
	return nil
}

// extractHints maps recognized metadata fields onto scratch state.
func (b *workingBuffer) extractHints(md Metadata) {
	if md.CurrentStep != "" {
		b.currentStep = md.CurrentStep
	}
	for k, v := range md.Variables {
		b.variables[k] = v
	}
	if md.Reasoning != "" {
		b.reasoning = append(b.reasoning, md.Reasoning)
	}
	if md.ToolCall != "" {
		b.reasoning = append(b.reasoning, "tool: "+md.ToolCall)
	}
	for len(b.reasoning) > maxReasoningChain {
		b.reasoning = b.reasoning[1:]
	}
}

func (b *workingBuffer) Trim() {
	for len(b.messages) > b.cfg.MaxSize {
		b.messages = b.messages[1:]
	}
}

func (b *workingBuffer) Messages() []Message {
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

func (b *workingBuffer) Clear() {
	b.messages = nil
	b.currentStep = ""
	b.variables = make(map[string]string)
	b.reasoning = nil
}

func (b *workingBuffer) Len() int { return len(b.messages) }

// CurrentStep returns the most recent step label seen, if any.
func (b *workingBuffer) CurrentStep() string { return b.currentStep }

// Variables returns a copy of the accumulated variable map.
func (b *workingBuffer) Variables() map[string]string {
	out := make(map[string]string, len(b.variables))
	for k, v := range b.variables {
		out[k] = v
	}
	return out
}

// Reasoning returns the reasoning chain, oldest first.
func (b *workingBuffer) Reasoning() []string {
	out := make([]string, len(b.reasoning))
	copy(out, b.reasoning)
	return out
}

func (b *workingBuffer) Context() string {
	var parts []string
	if b.currentStep != "" {
		parts = append(parts, "current step: "+b.currentStep)
	}
	if len(b.variables) > 0 {
		keys := make([]string, 0, len(b.variables))
		for k := range b.variables {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, b.variables[k]))
		}
		parts = append(parts, "variables: "+strings.Join(pairs, ", "))
	}
	if n := len(b.reasoning); n > 0 {
		start := n - 3
		if start < 0 {
			start = 0
		}
		for _, r := range b.reasoning[start:] {
			parts = append(parts, "reasoning: "+r)
		}
	}
	n := len(b.messages)
	start := n - 5
	if start < 0 {
		start = 0
	}
	for _, msg := range b.messages[start:] {
		parts = append(parts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return strings.Join(parts, "\n")
}

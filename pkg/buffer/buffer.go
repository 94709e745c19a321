// Package buffer implements bounded, per-session message buffers.
//
// Five strategies share one contract: Window (recency), Summary (rolling
// summarization), Conversation (plain FIFO history), Working (scratch state
// for in-flight reasoning), and Episodic (time/topic segmented history).
// A buffer never exceeds its configured capacity after any mutating call
// returns, and a failed operation leaves the buffer in its prior state.
package buffer

import (
	"errors"
	"fmt"
	"time"
)

// Type identifies a buffer strategy.
type Type string

const (
	Window       Type = "window"
	Summary      Type = "summary"
	Conversation Type = "conversation"
	Working      Type = "working"
	Episodic     Type = "episodic"
)

// Types lists every supported strategy.
func Types() []Type {
	return []Type{Window, Summary, Conversation, Working, Episodic}
}

// Valid reports whether t names a known strategy.
func (t Type) Valid() bool {
	switch t {
	case Window, Summary, Conversation, Working, Episodic:
		return true
	}
	return false
}

// ErrConfig indicates a constructor-time configuration defect.
var ErrConfig = errors.New("buffer: invalid configuration")

// Error wraps a strategy-specific failure.
type Error struct {
	Strategy Type
	Op       string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("buffer %s: %s: %v", e.Strategy, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Metadata carries the message fields buffers are allowed to react to.
// The set is enumerated on purpose: strategies extract hints from named
// fields, never from an open bag.
type Metadata struct {
	Importance  float64
	Tags        []string
	CurrentStep string
	Reasoning   string
	ToolCall    string
	Variables   map[string]string
	Extra       map[string]string
}

// Message is one buffered unit of conversation.
type Message struct {
	Role      string
	Content   string
	Timestamp time.Time
	Metadata  Metadata
}

// Buffer is the uniform contract all strategies implement.
//
// Add never fails for well-formed input; configuration defects surface at
// construction. Messages returns buffered messages in insertion order.
// Context renders the buffer for prompt injection. Trim enforces the
// capacity bound and is idempotent with Add's own eviction.
type Buffer interface {
	Add(msg Message) error
	Messages() []Message
	Clear()
	Context() string
	Trim()
	Len() int
}

// Config carries per-strategy settings. Zero values fall back to the
// strategy's defaults; MaxSize < 1 after defaulting is a config error.
type Config struct {
	MaxSize                int
	SummarizationThreshold int
	EpisodeTimeout         time.Duration
}

const (
	defaultMaxSize                = 50
	defaultSummarizationThreshold = 20
	defaultEpisodeTimeout         = 30 * time.Minute
)

func (c Config) withDefaults() Config {
	if c.MaxSize == 0 {
		c.MaxSize = defaultMaxSize
	}
	if c.SummarizationThreshold == 0 {
		c.SummarizationThreshold = defaultSummarizationThreshold
	}
	if c.EpisodeTimeout == 0 {
		c.EpisodeTimeout = defaultEpisodeTimeout
	}
	return c
}

func (c Config) validate(t Type) error {
	if c.MaxSize < 1 {
		return fmt.Errorf("%w: %s maxSize must be >= 1, got %d", ErrConfig, t, c.MaxSize)
	}
	if t == Summary && c.SummarizationThreshold < 2 {
		return fmt.Errorf("%w: summary threshold must be >= 2, got %d", ErrConfig, c.SummarizationThreshold)
	}
	if t == Episodic && c.EpisodeTimeout <= 0 {
		return fmt.Errorf("%w: episode timeout must be positive", ErrConfig)
	}
	return nil
}

// New constructs a buffer of the requested strategy.
func New(t Type, cfg Config) (Buffer, error) {
	cfg = cfg.withDefaults()
	if !t.Valid() {
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrConfig, t)
	}
	if err := cfg.validate(t); err != nil {
		return nil, err
	}
	switch t {
	case Window:
		return newWindowBuffer(cfg), nil
	case Summary:
		return newSummaryBuffer(cfg), nil
	case Conversation:
		return newConversationBuffer(cfg), nil
	case Working:
		return newWorkingBuffer(cfg), nil
	default:
		return newEpisodicBuffer(cfg), nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

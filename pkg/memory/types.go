// Package memory implements per-session working memory: validated item
// storage with TTL expiry, importance scoring, buffer fan-out, runtime and
// form state, session summarization, and consolidation of important items
// into a long-term vector store.
package memory

import (
	"time"

	"github.com/dotsetgreg/mnemo/pkg/buffer"
	"github.com/dotsetgreg/mnemo/pkg/vector"
)

// Kind classifies a working-memory item by its origin.
type Kind string

const (
	KindUser        Kind = "user"
	KindAssistant   Kind = "assistant"
	KindSystem      Kind = "system"
	KindTool        Kind = "tool"
	KindObservation Kind = "observation"
	KindHuman       Kind = "human"
	KindReasoning   Kind = "reasoning"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindUser, KindAssistant, KindSystem, KindTool, KindObservation, KindHuman, KindReasoning:
		return true
	}
	return false
}

// ItemMetadata holds the recognized optional fields of an item. Extra is
// the residual open map for forward-compatible extension fields; engine
// behavior never depends on it.
type ItemMetadata struct {
	Importance       float64           `json:"importance"`
	Tags             []string          `json:"tags,omitempty"`
	ExecutionID      string            `json:"execution_id,omitempty"`
	AgentID          string            `json:"agent_id,omitempty"`
	NodeID           string            `json:"node_id,omitempty"`
	ToolCall         string            `json:"tool_call,omitempty"`
	Reasoning        string            `json:"reasoning,omitempty"`
	CurrentStep      string            `json:"current_step,omitempty"`
	Variables        map[string]string `json:"variables,omitempty"`
	HumanInteraction bool              `json:"human_interaction,omitempty"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// Item is one unit of working memory, scoped to a session.
type Item struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	Timestamp time.Time    `json:"timestamp"`
	Kind      Kind         `json:"kind"`
	Content   string       `json:"content"`
	Metadata  ItemMetadata `json:"metadata"`
}

// GetOptions filters GetItems results. Zero values mean no filtering.
type GetOptions struct {
	Kinds []Kind
	Since time.Time
	// Limit keeps only the most recent N matching items.
	Limit int
}

// StateOp is one runtime-state mutation. Ops are applied strictly in the
// order given, against a copy of the current state.
type StateOp struct {
	Key   string `json:"key"`
	Op    string `json:"op"` // set, append, merge, delete
	Value any    `json:"value,omitempty"`
}

// ConsolidationStatus is the overall outcome of a consolidation run.
type ConsolidationStatus string

const (
	ConsolidationSuccess ConsolidationStatus = "success"
	ConsolidationFailed  ConsolidationStatus = "failed"
	ConsolidationSkipped ConsolidationStatus = "skipped"
)

// ConsolidationResult reports one consolidation run. It is returned to
// the caller and never persisted. A non-empty Errors list with created
// memories means partial success; Status is failed iff Errors is
// non-empty.
type ConsolidationResult struct {
	SessionID       string                    `json:"session_id"`
	Status          ConsolidationStatus       `json:"status"`
	ItemsProcessed  int                       `json:"items_processed"`
	MemoriesCreated int                       `json:"memories_created"`
	ByType          map[vector.MemoryType]int `json:"by_type,omitempty"`
	Elapsed         time.Duration             `json:"elapsed"`
	Errors          []string                  `json:"errors,omitempty"`
}

// SessionSummary is the statistical digest Summarize produces.
type SessionSummary struct {
	SessionID         string         `json:"session_id"`
	ItemCount         int            `json:"item_count"`
	TokenCount        int            `json:"token_count"`
	TimeSpan          time.Duration  `json:"time_span"`
	KeyPoints         []string       `json:"key_points,omitempty"`
	Topics            []string       `json:"topics,omitempty"`
	Sentiment         string         `json:"sentiment"`
	Executions        int            `json:"executions"`
	Agents            int            `json:"agents"`
	HumanInteractions int            `json:"human_interactions"`
	ToolCalls         int            `json:"tool_calls"`
	RuntimeState      map[string]any `json:"runtime_state,omitempty"`
	FormData          map[string]any `json:"form_data,omitempty"`
}

// Config configures the working-memory manager.
type Config struct {
	// MaxItems caps stored items per session; oldest are dropped past it.
	MaxItems int
	// TTL bounds item lifetime. Expired items are invisible to reads and
	// removed by the background sweep.
	TTL time.Duration
	// CompressionThreshold is the per-session item count at which a
	// compression-needed event is published.
	CompressionThreshold int
	// SweepInterval is the cadence of the background expiry sweep.
	SweepInterval time.Duration
	// Buffers lists the enabled buffer strategies and their settings.
	Buffers map[buffer.Type]buffer.Config
}

func (c Config) withDefaults() Config {
	if c.MaxItems <= 0 {
		c.MaxItems = 1000
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.CompressionThreshold <= 0 {
		c.CompressionThreshold = 100
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.Buffers == nil {
		c.Buffers = map[buffer.Type]buffer.Config{
			buffer.Window:       {},
			buffer.Conversation: {},
		}
	}
	return c
}

// toMessage projects an item onto the buffer message shape.
func toMessage(item Item) buffer.Message {
	return buffer.Message{
		Role:      string(item.Kind),
		Content:   item.Content,
		Timestamp: item.Timestamp,
		Metadata: buffer.Metadata{
			Importance:  item.Metadata.Importance,
			Tags:        item.Metadata.Tags,
			CurrentStep: item.Metadata.CurrentStep,
			Reasoning:   item.Metadata.Reasoning,
			ToolCall:    item.Metadata.ToolCall,
			Variables:   item.Metadata.Variables,
			Extra:       item.Metadata.Extra,
		},
	}
}

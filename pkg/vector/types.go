// Package vector implements an exact, in-memory vector index with
// metadata filtering, plus the store contract long-term memory backends
// implement. Search is brute-force cosine similarity, which is the right
// trade-off up to tens of thousands of records.
package vector

import (
	"context"
	"time"
)

// MemoryType classifies a long-term memory record.
type MemoryType string

const (
	TypeFact       MemoryType = "fact"
	TypeExperience MemoryType = "experience"
	TypePreference MemoryType = "preference"
	TypeContext    MemoryType = "context"
	TypeSkill      MemoryType = "skill"
)

// Valid reports whether t is a known memory type.
func (t MemoryType) Valid() bool {
	switch t {
	case TypeFact, TypeExperience, TypePreference, TypeContext, TypeSkill:
		return true
	}
	return false
}

// Metadata describes a record. Well-known fields are typed; Extra holds
// forward-compatible extension fields.
type Metadata struct {
	Type       MemoryType        `json:"type"`
	Importance float64           `json:"importance"`
	Confidence float64           `json:"confidence"`
	SessionID  string            `json:"session_id,omitempty"`
	Tags       []string          `json:"tags,omitempty"`
	Relations  []string          `json:"relations,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Record is one stored long-term memory.
type Record struct {
	ID           string     `json:"id"`
	Vector       []float32  `json:"vector"`
	Content      string     `json:"content"`
	Summary      string     `json:"summary,omitempty"`
	Metadata     Metadata   `json:"metadata"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed time.Time  `json:"last_accessed"`
	LastModified time.Time  `json:"last_modified"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Query describes a similarity search. Vector is required at this layer;
// text queries are embedded by the caller before they reach a store.
type Query struct {
	Vector   []float32
	Limit    int
	MinScore float64
	Filter   Filter
}

// Result pairs a matched record with its similarity score in [0,1].
type Result struct {
	Record Record
	Score  float64
}

// Stats summarizes a store's contents.
type Stats struct {
	Count       int
	Dimensions  int
	MemoryBytes int64
}

// Store is the contract long-term memory backends implement. Index is the
// canonical implementation; the chromem subpackage provides an embedded
// alternative. Missing ids passed to Delete are silently ignored.
type Store interface {
	Upsert(ctx context.Context, records []Record) error
	Search(ctx context.Context, q Query) ([]Result, error)
	Get(ctx context.Context, id string) (Record, error)
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, ids []string) error
	Stats(ctx context.Context) (Stats, error)
}

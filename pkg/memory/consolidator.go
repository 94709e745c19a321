package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/dotsetgreg/mnemo/pkg/embedding"
	"github.com/dotsetgreg/mnemo/pkg/event"
	"github.com/dotsetgreg/mnemo/pkg/vector"
)

// ConsolidatorConfig tunes promotion of working memory into long-term
// storage.
type ConsolidatorConfig struct {
	// ImportanceFloor is exclusive: only items scoring strictly above it
	// are promoted.
	ImportanceFloor float64
	// MinItems is the session size below which a run is skipped outright.
	MinItems int
	// MaxSummaryLength bounds the stored summary excerpt.
	MaxSummaryLength int
}

func (c ConsolidatorConfig) withDefaults() ConsolidatorConfig {
	if c.ImportanceFloor <= 0 {
		c.ImportanceFloor = 0.7
	}
	if c.MinItems <= 0 {
		c.MinItems = 5
	}
	if c.MaxSummaryLength <= 0 {
		c.MaxSummaryLength = 200
	}
	return c
}

// Consolidator promotes high-importance working-memory items into the
// long-term vector store. Runs are idempotent per item content only in
// the sense that re-running creates new records; callers decide cadence.
type Consolidator struct {
	cfg      ConsolidatorConfig
	manager  *Manager
	embedder embedding.Provider
	store    vector.Store
	log      *logrus.Entry
}

// NewConsolidator wires a consolidator over an existing manager, embedder,
// and long-term store.
func NewConsolidator(cfg ConsolidatorConfig, mgr *Manager, embedder embedding.Provider, store vector.Store) *Consolidator {
	return &Consolidator{
		cfg:      cfg.withDefaults(),
		manager:  mgr,
		embedder: embedder,
		store:    store,
		log:      mgr.log.WithField("component", "consolidator"),
	}
}

// Consolidate runs one promotion pass over the session. Items at or below
// the importance floor are left in working memory untouched. Per-item
// failures are recorded and the run continues; Status is failed only when
// at least one error occurred.
func (c *Consolidator) Consolidate(ctx context.Context, sessionID string) (ConsolidationResult, error) {
	started := time.Now()
	res := ConsolidationResult{
		SessionID: sessionID,
		Status:    ConsolidationSuccess,
		ByType:    make(map[vector.MemoryType]int),
	}

	// The session lock is held for the whole run so concurrent AddItem or
	// ClearItems calls cannot interleave with the promotion pass.
	lock := c.manager.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	items, err := c.manager.GetItems(ctx, sessionID, GetOptions{})
	if err != nil {
		return res, &Error{Code: CodeConsolidation, Op: "consolidate", SessionID: sessionID, Err: err}
	}
	if len(items) < c.cfg.MinItems {
		res.Status = ConsolidationSkipped
		res.Elapsed = time.Since(started)
		return res, nil
	}

	for _, item := range items {
		if item.Metadata.Importance <= c.cfg.ImportanceFloor {
			continue
		}
		res.ItemsProcessed++

		vec, err := c.embedder.Embed(ctx, item.Content)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("embed %s: %v", item.ID, err))
			continue
		}
		memType := classifyMemory(item)
		rec := vector.Record{
			ID:      ulid.Make().String(),
			Vector:  vec,
			Content: item.Content,
			Summary: excerpt(item.Content, c.cfg.MaxSummaryLength),
			Metadata: vector.Metadata{
				Type:       memType,
				Importance: item.Metadata.Importance,
				Confidence: memoryConfidence[memType],
				SessionID:  sessionID,
				Tags:       item.Metadata.Tags,
			},
			CreatedAt: item.Timestamp,
		}
		if err := c.store.Upsert(ctx, []vector.Record{rec}); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("store %s: %v", item.ID, err))
			continue
		}
		res.MemoriesCreated++
		res.ByType[memType]++
	}

	if len(res.Errors) > 0 {
		res.Status = ConsolidationFailed
	}
	res.Elapsed = time.Since(started)

	c.log.WithFields(logrus.Fields{
		"session": sessionID,
		"created": res.MemoriesCreated,
		"errors":  len(res.Errors),
	}).Info("consolidation run finished")
	c.manager.events.Publish(event.Event{
		Type:      event.Consolidated,
		SessionID: sessionID,
		Payload: map[string]string{
			"created": strconv.Itoa(res.MemoriesCreated),
			"status":  string(res.Status),
		},
	})
	return res, nil
}

// memoryConfidence is the initial confidence assigned per memory type.
var memoryConfidence = map[vector.MemoryType]float64{
	vector.TypePreference: 0.8,
	vector.TypeSkill:      0.7,
	vector.TypeExperience: 0.7,
	vector.TypeFact:       0.75,
}

var preferenceMarkers = []string{"prefer", "favorite", "i like", "i love", "i hate", "rather", "always use", "never use"}
var skillMarkers = []string{"how to", "steps to", "procedure", "recipe", "in order to", "first you", "then you"}

// classifyMemory decides the long-term memory type from content markers,
// falling back on the item's origin kind.
func classifyMemory(item Item) vector.MemoryType {
	lower := strings.ToLower(item.Content)
	for _, marker := range preferenceMarkers {
		if strings.Contains(lower, marker) {
			return vector.TypePreference
		}
	}
	for _, marker := range skillMarkers {
		if strings.Contains(lower, marker) {
			return vector.TypeSkill
		}
	}
	if item.Kind == KindUser || item.Kind == KindHuman {
		return vector.TypeExperience
	}
	return vector.TypeFact
}

func excerpt(content string, max int) string {
	if len(content) <= max {
		return content
	}
	return content[:max]
}

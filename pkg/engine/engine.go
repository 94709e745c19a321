// Package engine ties the memory subsystems together behind one facade:
// working memory with session buffers, long-term vector storage with
// semantic retrieval, and consolidation between the two.
package engine

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"github.com/dotsetgreg/mnemo/pkg/embedding"
	"github.com/dotsetgreg/mnemo/pkg/event"
	"github.com/dotsetgreg/mnemo/pkg/memory"
	"github.com/dotsetgreg/mnemo/pkg/vector"
)

// Config configures a complete engine.
type Config struct {
	Memory        memory.Config
	Consolidation memory.ConsolidatorConfig
	Index         vector.IndexConfig
	// RetrievalCacheSize bounds the query result cache. Zero disables it.
	RetrievalCacheSize int
	// RetrievalCacheTTL bounds result staleness under concurrent writers
	// bypassing this engine instance.
	RetrievalCacheTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Index.Dimensions <= 0 {
		c.Index.Dimensions = 256
	}
	if c.RetrievalCacheTTL <= 0 {
		c.RetrievalCacheTTL = 5 * time.Minute
	}
	return c
}

// Engine is the top-level memory facade.
type Engine struct {
	cfg        Config
	manager    *memory.Manager
	consol     *memory.Consolidator
	embedder   embedding.Provider
	store      vector.Store
	memStorage memory.Storage
	events     *event.Queue
	logger     *logrus.Logger
	log        *logrus.Entry
	cache      *lru.LRU[string, []vector.Result]
	clock      func() time.Time
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithStore replaces the default exact-search index backend.
func WithStore(s vector.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithEmbedder replaces the default hashing embedder.
func WithEmbedder(p embedding.Provider) Option {
	return func(e *Engine) { e.embedder = p }
}

// WithMemoryStorage selects the working-memory persistence backend.
func WithMemoryStorage(s memory.Storage) Option {
	return func(e *Engine) { e.memStorage = s }
}

// WithLogger sets the structured logger for all subsystems.
func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New assembles an engine. The returned engine owns a background sweep
// goroutine; callers must Close it.
func New(cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    cfg.withDefaults(),
		events: event.NewQueue(256),
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.embedder == nil {
		e.embedder = embedding.NewCachingProvider(
			embedding.NewHashProvider(e.cfg.Index.Dimensions), 0, 0)
	}
	if e.embedder.Dimensions() != e.cfg.Index.Dimensions {
		return nil, fmt.Errorf("engine: embedder dimensions %d != index dimensions %d",
			e.embedder.Dimensions(), e.cfg.Index.Dimensions)
	}
	if e.store == nil {
		idx, err := vector.NewIndex(e.cfg.Index)
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		e.store = idx
	}
	if e.logger == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		e.logger = l
	}
	e.log = e.logger.WithField("component", "engine")
	if e.cfg.RetrievalCacheSize > 0 {
		e.cache = lru.NewLRU[string, []vector.Result](
			e.cfg.RetrievalCacheSize, nil, e.cfg.RetrievalCacheTTL)
	}

	mgrOpts := []memory.ManagerOption{
		memory.WithEventQueue(e.events),
		memory.WithLogger(e.logger),
	}
	if e.memStorage != nil {
		mgrOpts = append(mgrOpts, memory.WithStorage(e.memStorage))
	}
	e.manager = memory.NewManager(e.cfg.Memory, mgrOpts...)
	e.consol = memory.NewConsolidator(e.cfg.Consolidation, e.manager, e.embedder, e.store)
	return e, nil
}

// Close stops background work and releases backends.
func (e *Engine) Close() error {
	return e.manager.Close()
}

// Memory exposes the working-memory manager for session-level operations.
func (e *Engine) Memory() *memory.Manager { return e.manager }

// Events exposes the shared lifecycle event queue.
func (e *Engine) Events() *event.Queue { return e.events }

// Embedder exposes the embedding provider in use.
func (e *Engine) Embedder() embedding.Provider { return e.embedder }

// Embed returns the embedding vector for text using the engine's provider.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embedder.Embed(ctx, text)
}

// RetrieveOptions narrows a semantic retrieval.
type RetrieveOptions struct {
	Limit    int
	MinScore float64
	Filter   vector.Filter
}

// Store embeds content and writes it to long-term memory, returning the
// stored record. Metadata type defaults to fact.
func (e *Engine) Store(ctx context.Context, content string, md vector.Metadata) (vector.Record, error) {
	if content == "" {
		return vector.Record{}, fmt.Errorf("engine store: empty content")
	}
	if md.Type == "" {
		md.Type = vector.TypeFact
	}
	if !md.Type.Valid() {
		return vector.Record{}, fmt.Errorf("engine store: unknown memory type %q", md.Type)
	}
	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return vector.Record{}, fmt.Errorf("engine store: embed: %w", err)
	}
	now := e.clock()
	rec := vector.Record{
		ID:           ulid.Make().String(),
		Vector:       vec,
		Content:      content,
		Metadata:     md,
		CreatedAt:    now,
		LastModified: now,
	}
	if err := e.store.Upsert(ctx, []vector.Record{rec}); err != nil {
		return vector.Record{}, fmt.Errorf("engine store: %w", err)
	}
	e.invalidateCache()
	e.log.WithFields(logrus.Fields{"record": rec.ID, "type": md.Type}).Debug("stored long-term memory")
	e.events.Publish(event.Event{
		Type:      event.LongTermStored,
		SessionID: md.SessionID,
		Payload:   map[string]string{"record_id": rec.ID, "type": string(md.Type)},
	})
	return rec, nil
}

// Retrieve embeds the query text and returns the closest long-term
// memories. Results are cached until the next write.
func (e *Engine) Retrieve(ctx context.Context, query string, opts RetrieveOptions) ([]vector.Result, error) {
	if query == "" {
		return nil, fmt.Errorf("engine retrieve: empty query")
	}
	key := retrievalKey(query, opts)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			out := make([]vector.Result, len(cached))
			copy(out, cached)
			return out, nil
		}
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("engine retrieve: embed: %w", err)
	}
	results, err := e.store.Search(ctx, vector.Query{
		Vector:   vec,
		Limit:    opts.Limit,
		MinScore: opts.MinScore,
		Filter:   opts.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("engine retrieve: %w", err)
	}
	if e.cache != nil {
		snapshot := make([]vector.Result, len(results))
		copy(snapshot, results)
		e.cache.Add(key, snapshot)
	}
	return results, nil
}

// Search runs a raw vector query against the long-term store, bypassing
// the embedder and the result cache.
func (e *Engine) Search(ctx context.Context, q vector.Query) ([]vector.Result, error) {
	return e.store.Search(ctx, q)
}

// Get returns one long-term record by id.
func (e *Engine) Get(ctx context.Context, id string) (vector.Record, error) {
	return e.store.Get(ctx, id)
}

// UpdateRecord describes a partial update to a long-term record. Nil
// fields are left unchanged.
type UpdateRecord struct {
	Content    *string
	Summary    *string
	Importance *float64
	Confidence *float64
	Tags       []string
	ExpiresAt  *time.Time
}

// Update modifies an existing record. Changing the content re-embeds it
// so retrieval stays consistent with what is stored.
func (e *Engine) Update(ctx context.Context, id string, upd UpdateRecord) (vector.Record, error) {
	rec, err := e.store.Get(ctx, id)
	if err != nil {
		return vector.Record{}, fmt.Errorf("engine update: %w", err)
	}
	if upd.Content != nil && *upd.Content != rec.Content {
		vec, err := e.embedder.Embed(ctx, *upd.Content)
		if err != nil {
			return vector.Record{}, fmt.Errorf("engine update: embed: %w", err)
		}
		rec.Content = *upd.Content
		rec.Vector = vec
	}
	if upd.Summary != nil {
		rec.Summary = *upd.Summary
	}
	if upd.Importance != nil {
		rec.Metadata.Importance = *upd.Importance
	}
	if upd.Confidence != nil {
		rec.Metadata.Confidence = *upd.Confidence
	}
	if upd.Tags != nil {
		rec.Metadata.Tags = upd.Tags
	}
	if upd.ExpiresAt != nil {
		rec.ExpiresAt = upd.ExpiresAt
	}
	rec.LastModified = e.clock()
	if err := e.store.Upsert(ctx, []vector.Record{rec}); err != nil {
		return vector.Record{}, fmt.Errorf("engine update: %w", err)
	}
	e.invalidateCache()
	return rec, nil
}

// Delete removes long-term records by id. Missing ids are ignored.
func (e *Engine) Delete(ctx context.Context, ids ...string) error {
	if err := e.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("engine delete: %w", err)
	}
	e.invalidateCache()
	e.events.Publish(event.Event{
		Type:    event.LongTermDeleted,
		Payload: map[string]string{"count": strconv.Itoa(len(ids))},
	})
	return nil
}

// Stats reports long-term store statistics.
func (e *Engine) Stats(ctx context.Context) (vector.Stats, error) {
	return e.store.Stats(ctx)
}

// Consolidate promotes the session's high-importance working items into
// long-term memory and invalidates the retrieval cache on success.
func (e *Engine) Consolidate(ctx context.Context, sessionID string) (memory.ConsolidationResult, error) {
	res, err := e.consol.Consolidate(ctx, sessionID)
	if err != nil {
		return res, err
	}
	if res.MemoriesCreated > 0 {
		e.invalidateCache()
	}
	return res, nil
}

func (e *Engine) invalidateCache() {
	if e.cache != nil {
		e.cache.Purge()
	}
}

// retrievalKey derives a stable cache key from the query and options.
func retrievalKey(query string, opts RetrieveOptions) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s\x00%d\x00%g", query, opts.Limit, opts.MinScore)
	if len(opts.Filter) > 0 {
		keys := make([]string, 0, len(opts.Filter))
		for k := range opts.Filter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(h, "\x00%s=%v", k, opts.Filter[k])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

const defaultSearchLimit = 10

// IndexConfig configures an Index.
type IndexConfig struct {
	// Dimensions is the required vector length for every record and query.
	Dimensions int
	// Capacity caps the number of stored records. Zero means unbounded.
	Capacity int
}

// Index is the canonical Store implementation: exact cosine-similarity
// search over an in-memory record set, guarded by a single RWMutex.
//
// The normalized search structure is rebuilt lazily: writes mark the
// index dirty and the next search rebuilds before scanning.
type Index struct {
	cfg IndexConfig

	mu      sync.RWMutex
	records map[string]Record
	units   map[string][]float32
	ordered []string
	dirty   bool
}

var _ Store = (*Index)(nil)

// NewIndex creates an empty index.
func NewIndex(cfg IndexConfig) (*Index, error) {
	if cfg.Dimensions < 1 {
		return nil, fmt.Errorf("%w: dimensions must be >= 1, got %d", ErrBadQuery, cfg.Dimensions)
	}
	if cfg.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must be >= 0, got %d", ErrBadQuery, cfg.Capacity)
	}
	return &Index{
		cfg:     cfg,
		records: make(map[string]Record),
		units:   make(map[string][]float32),
	}, nil
}

// Upsert validates and inserts or replaces records by id. The whole batch
// is rejected, with nothing written, when it would exceed capacity or when
// any record is malformed.
func (ix *Index) Upsert(_ context.Context, records []Record) error {
	for _, rec := range records {
		if rec.ID == "" {
			return &OpError{Op: "upsert", Err: ErrMissingID}
		}
		if len(rec.Vector) != ix.cfg.Dimensions {
			return &OpError{Op: "upsert", RecordID: rec.ID,
				Err: fmt.Errorf("%w: got %d, index dimension %d", ErrDimensionMismatch, len(rec.Vector), ix.cfg.Dimensions)}
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.cfg.Capacity > 0 {
		added := 0
		for _, rec := range records {
			if _, exists := ix.records[rec.ID]; !exists {
				added++
			}
		}
		if len(ix.records)+added > ix.cfg.Capacity {
			return &OpError{Op: "upsert",
				Err: fmt.Errorf("%w: %d stored, batch adds %d, capacity %d", ErrCapacity, len(ix.records), added, ix.cfg.Capacity)}
		}
	}

	now := time.Now()
	for _, rec := range records {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.LastModified = now
		ix.records[rec.ID] = rec
		ix.units[rec.ID] = normalize(rec.Vector)
	}
	ix.dirty = true
	return nil
}

// Search scans every stored vector, scores by cosine similarity mapped to
// [0,1], applies minScore then the metadata filter, and truncates to the
// query limit.
func (ix *Index) Search(_ context.Context, q Query) ([]Result, error) {
	if len(q.Vector) == 0 {
		return nil, &OpError{Op: "search", Err: fmt.Errorf("%w: query vector is required", ErrBadQuery)}
	}
	if len(q.Vector) != ix.cfg.Dimensions {
		return nil, &OpError{Op: "search",
			Err: fmt.Errorf("%w: query has %d, index dimension %d", ErrDimensionMismatch, len(q.Vector), ix.cfg.Dimensions)}
	}
	if q.Filter != nil {
		if err := q.Filter.Validate(); err != nil {
			return nil, &OpError{Op: "search", Err: err}
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	ix.ensureClean()

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	unit := normalize(q.Vector)
	scored := make([]Result, 0, len(ix.ordered))
	for _, id := range ix.ordered {
		rec, ok := ix.records[id]
		if !ok {
			continue
		}
		score := (dot(unit, ix.units[id]) + 1) / 2
		scored = append(scored, Result{Record: rec, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	out := make([]Result, 0, limit)
	for _, res := range scored {
		if res.Score < q.MinScore {
			continue
		}
		if q.Filter != nil {
			matched, err := q.Filter.Matches(res.Record.Metadata)
			if err != nil {
				return nil, &OpError{Op: "search", Err: err}
			}
			if !matched {
				continue
			}
		}
		out = append(out, res)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Get returns a record by id, bumping its last-accessed time.
func (ix *Index) Get(_ context.Context, id string) (Record, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	rec, ok := ix.records[id]
	if !ok {
		return Record{}, &OpError{Op: "get", RecordID: id, Err: ErrNotFound}
	}
	rec.LastAccessed = time.Now()
	ix.records[id] = rec
	return rec, nil
}

// List returns all records ordered by creation time, oldest first.
func (ix *Index) List(_ context.Context) ([]Record, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Record, 0, len(ix.records))
	for _, rec := range ix.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes matching records. Missing ids are silently ignored.
func (ix *Index) Delete(_ context.Context, ids []string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, id := range ids {
		if _, ok := ix.records[id]; ok {
			delete(ix.records, id)
			delete(ix.units, id)
			ix.dirty = true
		}
	}
	return nil
}

// Stats reports the record count, configured dimension, and an estimated
// in-memory footprint.
func (ix *Index) Stats(_ context.Context) (Stats, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var bytes int64
	for _, rec := range ix.records {
		// Two float32 copies per record (raw + normalized) plus text and
		// bookkeeping overhead.
		bytes += int64(8*len(rec.Vector) + len(rec.Content) + len(rec.Summary) + 256)
	}
	return Stats{Count: len(ix.records), Dimensions: ix.cfg.Dimensions, MemoryBytes: bytes}, nil
}

// ensureClean rebuilds the scan order if writes have happened since the
// last search.
func (ix *Index) ensureClean() {
	ix.mu.RLock()
	dirty := ix.dirty
	ix.mu.RUnlock()
	if !dirty {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.dirty {
		return
	}
	ix.ordered = ix.ordered[:0]
	for id := range ix.records {
		ix.ordered = append(ix.ordered, id)
	}
	sort.Strings(ix.ordered)
	ix.dirty = false
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(vec))
	if norm == 0 {
		return out
	}
	inv := float32(1 / norm)
	for i, v := range vec {
		out[i] = v * inv
	}
	return out
}

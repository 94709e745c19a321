// Package chromem adapts the embedded chromem-go database to the
// vector.Store contract, as an alternative to the exact in-memory index.
//
// chromem handles candidate retrieval; record bodies, list/get access and
// the metadata filter language are served from a local record table so the
// adapter honors the same search semantics as vector.Index. Search fetches
// four times the requested limit from chromem and filters locally, doubling
// the candidate set up to the full collection when the filter proves more
// selective than that bound.
package chromem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/dotsetgreg/mnemo/pkg/vector"
)

const collectionName = "memories"

// Store wraps a chromem collection behind vector.Store.
type Store struct {
	dims     int
	capacity int

	mu      sync.RWMutex
	col     *chromem.Collection
	records map[string]vector.Record
}

var _ vector.Store = (*Store)(nil)

// New creates an empty chromem-backed store.
func New(dims, capacity int) (*Store, error) {
	if dims < 1 {
		return nil, fmt.Errorf("%w: dimensions must be >= 1, got %d", vector.ErrBadQuery, dims)
	}
	db := chromem.NewDB()
	// Embeddings are always provided by the caller, so no embedding func.
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create chromem collection: %w", err)
	}
	return &Store{
		dims:     dims,
		capacity: capacity,
		col:      col,
		records:  make(map[string]vector.Record),
	}, nil
}

func (s *Store) Upsert(ctx context.Context, records []vector.Record) error {
	for _, rec := range records {
		if rec.ID == "" {
			return &vector.OpError{Op: "upsert", Err: vector.ErrMissingID}
		}
		if len(rec.Vector) != s.dims {
			return &vector.OpError{Op: "upsert", RecordID: rec.ID,
				Err: fmt.Errorf("%w: got %d, store dimension %d", vector.ErrDimensionMismatch, len(rec.Vector), s.dims)}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 {
		added := 0
		for _, rec := range records {
			if _, exists := s.records[rec.ID]; !exists {
				added++
			}
		}
		if len(s.records)+added > s.capacity {
			return &vector.OpError{Op: "upsert",
				Err: fmt.Errorf("%w: %d stored, batch adds %d, capacity %d", vector.ErrCapacity, len(s.records), added, s.capacity)}
		}
	}

	now := time.Now()
	for _, rec := range records {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.LastModified = now

		doc := chromem.Document{
			ID:        rec.ID,
			Content:   rec.Content,
			Embedding: rec.Vector,
			Metadata: map[string]string{
				"type":       string(rec.Metadata.Type),
				"session_id": rec.Metadata.SessionID,
			},
		}
		if err := s.col.AddDocument(ctx, doc); err != nil {
			return &vector.OpError{Op: "upsert", RecordID: rec.ID,
				Err: fmt.Errorf("chromem add document: %w", err)}
		}
		s.records[rec.ID] = rec
	}
	return nil
}

func (s *Store) Search(ctx context.Context, q vector.Query) ([]vector.Result, error) {
	if len(q.Vector) == 0 {
		return nil, &vector.OpError{Op: "search", Err: fmt.Errorf("%w: query vector is required", vector.ErrBadQuery)}
	}
	if len(q.Vector) != s.dims {
		return nil, &vector.OpError{Op: "search",
			Err: fmt.Errorf("%w: query has %d, store dimension %d", vector.ErrDimensionMismatch, len(q.Vector), s.dims)}
	}
	if q.Filter != nil {
		if err := q.Filter.Validate(); err != nil {
			return nil, &vector.OpError{Op: "search", Err: err}
		}
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := s.col.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem requires nResults <= collection size. Over-fetch so
	// post-filtering still has enough candidates to fill the limit, and
	// widen the candidate set whenever a selective filter thins the hits
	// below the limit. The loop terminates once the limit is filled or
	// the whole collection has been scanned.
	n := limit * 4
	if n > count {
		n = count
	}
	for {
		hits, err := s.col.QueryEmbedding(ctx, q.Vector, n, nil, nil)
		if err != nil {
			return nil, &vector.OpError{Op: "search", Err: fmt.Errorf("chromem query: %w", err)}
		}

		results := make([]vector.Result, 0, limit)
		for _, hit := range hits {
			rec, ok := s.records[hit.ID]
			if !ok {
				continue
			}
			score := (float64(hit.Similarity) + 1) / 2
			if score < q.MinScore {
				continue
			}
			if q.Filter != nil {
				matched, err := q.Filter.Matches(rec.Metadata)
				if err != nil {
					return nil, &vector.OpError{Op: "search", Err: err}
				}
				if !matched {
					continue
				}
			}
			results = append(results, vector.Result{Record: rec, Score: score})
			if len(results) == limit {
				break
			}
		}
		if len(results) == limit || n == count {
			return results, nil
		}
		n *= 2
		if n > count {
			n = count
		}
	}
}

func (s *Store) Get(_ context.Context, id string) (vector.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return vector.Record{}, &vector.OpError{Op: "get", RecordID: id, Err: vector.ErrNotFound}
	}
	rec.LastAccessed = time.Now()
	s.records[id] = rec
	return rec, nil
}

func (s *Store) List(_ context.Context) ([]vector.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]vector.Record, 0, len(s.records))
	for _, rec := range s.records {
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

func (s *Store) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := s.records[id]; ok {
			existing = append(existing, id)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := s.col.Delete(ctx, nil, nil, existing...); err != nil {
		return &vector.OpError{Op: "delete", Err: fmt.Errorf("chromem delete: %w", err)}
	}
	for _, id := range existing {
		delete(s.records, id)
	}
	return nil
}

func (s *Store) Stats(_ context.Context) (vector.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var bytes int64
	for _, rec := range s.records {
		bytes += int64(8*len(rec.Vector) + len(rec.Content) + len(rec.Summary) + 256)
	}
	return vector.Stats{Count: len(s.records), Dimensions: s.dims, MemoryBytes: bytes}, nil
}

package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, dims, capacity int) *Index {
	t.Helper()
	ix, err := NewIndex(IndexConfig{Dimensions: dims, Capacity: capacity})
	require.NoError(t, err)
	return ix
}

func rec(id string, vec []float32, md Metadata) Record {
	return Record{ID: id, Vector: vec, Content: "content-" + id, Metadata: md}
}

func TestIndex_SearchRoundTrip(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 3, 0)

	require.NoError(t, ix.Upsert(ctx, []Record{
		rec("a", []float32{1, 0, 0}, Metadata{Type: TypeFact}),
		rec("b", []float32{0, 1, 0}, Metadata{Type: TypeFact}),
		rec("c", []float32{0.2, 0.9, 0.1}, Metadata{Type: TypeFact}),
	}))

	results, err := ix.Search(ctx, Query{Vector: []float32{1, 0, 0}, Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a", results[0].Record.ID)
	assert.GreaterOrEqual(t, results[0].Score, 0.999)
}

func TestIndex_UpsertValidation(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 3, 0)

	err := ix.Upsert(ctx, []Record{rec("", []float32{1, 0, 0}, Metadata{})})
	assert.ErrorIs(t, err, ErrMissingID)

	err = ix.Upsert(ctx, []Record{rec("short", []float32{1, 0}, Metadata{})})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	var opErr *OpError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "upsert", opErr.Op)
	assert.Equal(t, "short", opErr.RecordID)
}

func TestIndex_CapacityRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 2, 2)

	require.NoError(t, ix.Upsert(ctx, []Record{rec("a", []float32{1, 0}, Metadata{})}))

	err := ix.Upsert(ctx, []Record{
		rec("b", []float32{0, 1}, Metadata{}),
		rec("c", []float32{1, 1}, Metadata{}),
	})
	assert.ErrorIs(t, err, ErrCapacity)

	// Nothing from the rejected batch was written.
	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)

	// Replacing an existing record does not count against capacity.
	require.NoError(t, ix.Upsert(ctx, []Record{
		rec("a", []float32{0, 1}, Metadata{}),
		rec("b", []float32{1, 1}, Metadata{}),
	}))
}

func TestIndex_MetadataFilter(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 2, 0)

	require.NoError(t, ix.Upsert(ctx, []Record{
		rec("fact", []float32{1, 0}, Metadata{Type: TypeFact, Importance: 0.9}),
		rec("pref", []float32{0.99, 0.1}, Metadata{Type: TypePreference, Importance: 0.4}),
	}))

	results, err := ix.Search(ctx, Query{
		Vector: []float32{1, 0},
		Filter: Filter{"type": map[string]any{"$in": []any{"fact"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fact", results[0].Record.ID)

	results, err = ix.Search(ctx, Query{
		Vector: []float32{1, 0},
		Filter: Filter{"importance": map[string]any{"$gte": 0.7}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fact", results[0].Record.ID)

	results, err = ix.Search(ctx, Query{
		Vector: []float32{1, 0},
		Filter: Filter{"type": map[string]any{"$nin": []any{"fact", "skill"}}},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pref", results[0].Record.ID)
}

func TestIndex_TagMembershipAndEquality(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 2, 0)

	require.NoError(t, ix.Upsert(ctx, []Record{
		rec("tagged", []float32{1, 0}, Metadata{Type: TypeFact, Tags: []string{"go", "infra"}}),
		rec("plain", []float32{1, 0}, Metadata{Type: TypeFact}),
	}))

	results, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, Filter: Filter{"tags": "go"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged", results[0].Record.ID)

	results, err = ix.Search(ctx, Query{Vector: []float32{1, 0}, Filter: Filter{"type": "fact"}})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestIndex_MinScoreAndLimit(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 2, 0)

	require.NoError(t, ix.Upsert(ctx, []Record{
		rec("close", []float32{1, 0}, Metadata{}),
		rec("far", []float32{-1, 0}, Metadata{}),
	}))

	results, err := ix.Search(ctx, Query{Vector: []float32{1, 0}, MinScore: 0.9})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "close", results[0].Record.ID)

	for i := 0; i < 15; i++ {
		require.NoError(t, ix.Upsert(ctx, []Record{
			rec(string(rune('a'+i)), []float32{1, 0}, Metadata{}),
		}))
	}
	results, err = ix.Search(ctx, Query{Vector: []float32{1, 0}})
	require.NoError(t, err)
	assert.Len(t, results, defaultSearchLimit)
}

func TestIndex_SearchValidation(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 3, 0)

	_, err := ix.Search(ctx, Query{})
	assert.ErrorIs(t, err, ErrBadQuery)

	_, err = ix.Search(ctx, Query{Vector: []float32{1, 0}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = ix.Search(ctx, Query{
		Vector: []float32{1, 0, 0},
		Filter: Filter{"importance": map[string]any{"$between": []any{0, 1}}},
	})
	assert.ErrorIs(t, err, ErrBadFilter)
}

func TestIndex_DeleteAndGet(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 2, 0)

	require.NoError(t, ix.Upsert(ctx, []Record{rec("a", []float32{1, 0}, Metadata{})}))

	got, err := ix.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.LastAccessed.IsZero())

	// Missing ids are ignored.
	require.NoError(t, ix.Delete(ctx, []string{"a", "missing"}))

	_, err = ix.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrNotFound)

	results, err := ix.Search(ctx, Query{Vector: []float32{1, 0}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestIndex_StatsFootprint(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, 4, 0)
	require.NoError(t, ix.Upsert(ctx, []Record{rec("a", []float32{1, 0, 0, 0}, Metadata{})}))

	stats, err := ix.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count)
	assert.Equal(t, 4, stats.Dimensions)
	assert.Greater(t, stats.MemoryBytes, int64(0))
}

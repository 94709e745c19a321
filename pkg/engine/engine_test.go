package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/mnemo/pkg/memory"
	"github.com/dotsetgreg/mnemo/pkg/vector"
)

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *Engine {
	t.Helper()
	if cfg.Memory.SweepInterval == 0 {
		cfg.Memory.SweepInterval = time.Hour
	}
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, e.Close())
	})
	return e
}

func TestStoreRetrieveRoundTrip(t *testing.T) {
	e := newTestEngine(t, Config{Index: vector.IndexConfig{Dimensions: 128}})
	ctx := context.Background()

	rec, err := e.Store(ctx, "the deployment pipeline runs nightly at 2am", vector.Metadata{
		Type:       vector.TypeFact,
		Importance: 0.8,
		Tags:       []string{"ops"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Len(t, rec.Vector, 128)

	results, err := e.Retrieve(ctx, "the deployment pipeline runs nightly at 2am", RetrieveOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, rec.ID, results[0].Record.ID)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)
}

func TestStoreValidation(t *testing.T) {
	e := newTestEngine(t, Config{Index: vector.IndexConfig{Dimensions: 64}})
	ctx := context.Background()

	_, err := e.Store(ctx, "", vector.Metadata{})
	assert.Error(t, err)

	_, err = e.Store(ctx, "content", vector.Metadata{Type: vector.MemoryType("dream")})
	assert.Error(t, err)

	rec, err := e.Store(ctx, "untyped content", vector.Metadata{})
	require.NoError(t, err)
	assert.Equal(t, vector.TypeFact, rec.Metadata.Type)
}

func TestUpdateReembedsOnContentChange(t *testing.T) {
	e := newTestEngine(t, Config{Index: vector.IndexConfig{Dimensions: 128}})
	ctx := context.Background()

	rec, err := e.Store(ctx, "old content about invoices", vector.Metadata{})
	require.NoError(t, err)

	newContent := "new content about shipping schedules"
	updated, err := e.Update(ctx, rec.ID, UpdateRecord{Content: &newContent})
	require.NoError(t, err)
	assert.Equal(t, newContent, updated.Content)
	assert.NotEqual(t, rec.Vector, updated.Vector)

	// Retrieval must follow the new content, not the old.
	results, err := e.Retrieve(ctx, newContent, RetrieveOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, rec.ID, results[0].Record.ID)
	assert.InDelta(t, 1.0, results[0].Score, 0.001)

	imp := 0.95
	bumped, err := e.Update(ctx, rec.ID, UpdateRecord{Importance: &imp})
	require.NoError(t, err)
	assert.Equal(t, 0.95, bumped.Metadata.Importance)
	assert.Equal(t, newContent, bumped.Content)
}

func TestDeleteRemovesRecords(t *testing.T) {
	e := newTestEngine(t, Config{Index: vector.IndexConfig{Dimensions: 64}})
	ctx := context.Background()

	rec, err := e.Store(ctx, "short lived", vector.Metadata{})
	require.NoError(t, err)
	require.NoError(t, e.Delete(ctx, rec.ID, "missing-id-is-fine"))

	_, err = e.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, vector.ErrNotFound)
}

type countingStore struct {
	vector.Store
	searches int
}

func (s *countingStore) Search(ctx context.Context, q vector.Query) ([]vector.Result, error) {
	s.searches++
	return s.Store.Search(ctx, q)
}

func TestRetrievalCache(t *testing.T) {
	idx, err := vector.NewIndex(vector.IndexConfig{Dimensions: 64})
	require.NoError(t, err)
	counting := &countingStore{Store: idx}

	e := newTestEngine(t, Config{
		Index:              vector.IndexConfig{Dimensions: 64},
		RetrievalCacheSize: 32,
	}, WithStore(counting))
	ctx := context.Background()

	_, err = e.Store(ctx, "cached fact", vector.Metadata{})
	require.NoError(t, err)

	_, err = e.Retrieve(ctx, "cached fact", RetrieveOptions{Limit: 3})
	require.NoError(t, err)
	_, err = e.Retrieve(ctx, "cached fact", RetrieveOptions{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 1, counting.searches, "second identical retrieve should hit the cache")

	// Different options miss the cache.
	_, err = e.Retrieve(ctx, "cached fact", RetrieveOptions{Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 2, counting.searches)

	// Any write invalidates.
	_, err = e.Store(ctx, "another fact", vector.Metadata{})
	require.NoError(t, err)
	_, err = e.Retrieve(ctx, "cached fact", RetrieveOptions{Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, counting.searches)
}

func TestConsolidationEndToEnd(t *testing.T) {
	e := newTestEngine(t, Config{
		Index:         vector.IndexConfig{Dimensions: 128},
		Consolidation: memory.ConsolidatorConfig{MinItems: 5},
	})
	ctx := context.Background()
	mgr := e.Memory()

	exchanges := []struct {
		user      string
		assistant string
	}{
		{"my team always deploys on friday afternoons", "noted, friday afternoon deploys"},
		{"the staging database password rotates monthly", "understood, monthly rotation"},
		{"I prefer short status updates over long reports", "short updates from now on"},
		{"our main customer is in the healthcare sector", "healthcare customer recorded"},
		{"how to restart the queue: first you drain it, then you restart workers", "got it"},
	}
	for _, ex := range exchanges {
		_, err := mgr.AddItem(ctx, "s1", memory.KindUser, ex.user, memory.ItemMetadata{Importance: 0.85})
		require.NoError(t, err)
		_, err = mgr.AddItem(ctx, "s1", memory.KindAssistant, ex.assistant, memory.ItemMetadata{Importance: 0.4})
		require.NoError(t, err)
	}

	res, err := e.Consolidate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, memory.ConsolidationSuccess, res.Status)
	assert.Equal(t, 5, res.MemoriesCreated, "only the high-importance user items promote")

	// The original message must come back near the top.
	results, err := e.Retrieve(ctx, "my team always deploys on friday afternoons", RetrieveOptions{Limit: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	found := false
	for _, r := range results {
		if r.Record.Content == "my team always deploys on friday afternoons" {
			found = true
		}
	}
	assert.True(t, found, "promoted memory not in top 3 results")

	// Working memory keeps everything; consolidation copies, not moves.
	items, err := mgr.GetItems(ctx, "s1", memory.GetOptions{})
	require.NoError(t, err)
	assert.Len(t, items, 10)
}

func TestExportImportRoundTrip(t *testing.T) {
	src := newTestEngine(t, Config{Index: vector.IndexConfig{Dimensions: 64}})
	ctx := context.Background()

	contents := []string{"first fact", "second fact", "third fact"}
	for _, c := range contents {
		_, err := src.Store(ctx, c, vector.Metadata{Tags: []string{"export"}})
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	exported, err := src.Export(ctx, &buf)
	require.NoError(t, err)
	assert.Equal(t, 3, exported)

	dst := newTestEngine(t, Config{Index: vector.IndexConfig{Dimensions: 64}})
	imported, err := dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, imported)

	stats, err := dst.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Count)

	results, err := dst.Retrieve(ctx, "second fact", RetrieveOptions{Limit: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "second fact", results[0].Record.Content)
}

func TestImportRejectsDimensionMismatch(t *testing.T) {
	src := newTestEngine(t, Config{Index: vector.IndexConfig{Dimensions: 64}})
	ctx := context.Background()
	_, err := src.Store(ctx, "a fact", vector.Metadata{})
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = src.Export(ctx, &buf)
	require.NoError(t, err)

	dst := newTestEngine(t, Config{Index: vector.IndexConfig{Dimensions: 128}})
	_, err = dst.Import(ctx, bytes.NewReader(buf.Bytes()))
	assert.ErrorContains(t, err, "dimensions")
}

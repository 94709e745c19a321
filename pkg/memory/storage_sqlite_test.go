package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("open sqlite storage: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close: %v", err)
		}
	})
	return store
}

func TestSQLiteItemRoundTrip(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	item := Item{
		ID:        "itm-1",
		SessionID: "s1",
		Timestamp: time.Now().Truncate(time.Millisecond),
		Kind:      KindUser,
		Content:   "persist me",
		Metadata: ItemMetadata{
			Importance: 0.8,
			Tags:       []string{"db", "test"},
			Variables:  map[string]string{"env": "dev"},
		},
	}
	if err := store.AddItem(ctx, item); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.AddItem(ctx, Item{ID: "itm-2", SessionID: "s1", Timestamp: time.Now(), Kind: KindTool, Content: "second"}); err != nil {
		t.Fatalf("add second: %v", err)
	}

	items, err := store.GetItems(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	got := items[0]
	if got.ID != item.ID || got.Kind != item.Kind || got.Content != item.Content {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.Timestamp.Equal(item.Timestamp) {
		t.Fatalf("timestamp mismatch: %v vs %v", got.Timestamp, item.Timestamp)
	}
	if got.Metadata.Importance != 0.8 || len(got.Metadata.Tags) != 2 || got.Metadata.Variables["env"] != "dev" {
		t.Fatalf("metadata mismatch: %+v", got.Metadata)
	}

	if err := store.RemoveItems(ctx, "s1", []string{"itm-1"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	items, err = store.GetItems(ctx, "s1")
	if err != nil {
		t.Fatalf("get after remove: %v", err)
	}
	if len(items) != 1 || items[0].ID != "itm-2" {
		t.Fatalf("remove kept wrong items: %+v", items)
	}
}

func TestSQLiteStateBuckets(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if err := store.SetRuntimeState(ctx, "s1", map[string]any{"phase": "build", "count": float64(2)}); err != nil {
		t.Fatalf("set runtime: %v", err)
	}
	if err := store.SetFormData(ctx, "s1", map[string]any{"name": "terry"}); err != nil {
		t.Fatalf("set form: %v", err)
	}

	state, err := store.GetRuntimeState(ctx, "s1")
	if err != nil {
		t.Fatalf("get runtime: %v", err)
	}
	if state["phase"] != "build" || state["count"] != float64(2) {
		t.Fatalf("runtime state mismatch: %v", state)
	}
	form, err := store.GetFormData(ctx, "s1")
	if err != nil {
		t.Fatalf("get form: %v", err)
	}
	if form["name"] != "terry" || len(form) != 1 {
		t.Fatalf("form data mismatch: %v", form)
	}

	empty, err := store.GetRuntimeState(ctx, "nobody")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("missing session returned state: %v", empty)
	}
}

func TestSQLiteSessionLifecycle(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	if err := store.AddItem(ctx, Item{ID: "a", SessionID: "s1", Timestamp: time.Now(), Kind: KindUser, Content: "x"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := store.SetRuntimeState(ctx, "s2", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("state: %v", err)
	}

	ids, err := store.SessionIDs(ctx)
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %v", ids)
	}

	if err := store.ClearSession(ctx, "s1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	items, err := store.GetItems(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("clear left items: %v", items)
	}
}

package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage persists working-memory sessions in a local SQLite file.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates/opens the working-memory database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create memory db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// Single-process memory service. Use one shared connection to avoid
	// writer lock contention with SQLite under concurrent goroutines.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStorage{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStorage) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS working_items (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			content TEXT NOT NULL,
			importance REAL NOT NULL DEFAULT 0,
			metadata_json TEXT NOT NULL DEFAULT '{}',
			created_at_ms INTEGER NOT NULL,
			seq INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS working_items_session_idx ON working_items(session_id, seq);`,
		`CREATE TABLE IF NOT EXISTS session_state (
			session_id TEXT NOT NULL,
			bucket TEXT NOT NULL,
			state_json TEXT NOT NULL DEFAULT '{}',
			updated_at_ms INTEGER NOT NULL,
			PRIMARY KEY(session_id, bucket)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func (s *SQLiteStorage) AddItem(ctx context.Context, item Item) error {
	meta, err := json.Marshal(item.Metadata)
	if err != nil {
		return fmt.Errorf("encode item metadata: %w", err)
	}
	var seq int64
	row := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM working_items WHERE session_id = ?`, item.SessionID)
	if err := row.Scan(&seq); err != nil {
		return fmt.Errorf("next item seq: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO working_items
			(id, session_id, kind, content, importance, metadata_json, created_at_ms, seq)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.SessionID, string(item.Kind), item.Content,
		item.Metadata.Importance, string(meta), item.Timestamp.UnixMilli(), seq+1)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetItems(ctx context.Context, sessionID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, content, metadata_json, created_at_ms
		 FROM working_items WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var (
			it      Item
			kind    string
			metaRaw string
			ms      int64
		)
		if err := rows.Scan(&it.ID, &kind, &it.Content, &metaRaw, &ms); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.SessionID = sessionID
		it.Kind = Kind(kind)
		it.Timestamp = time.UnixMilli(ms)
		if err := json.Unmarshal([]byte(metaRaw), &it.Metadata); err != nil {
			return nil, fmt.Errorf("decode item metadata: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) RemoveItems(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM working_items WHERE session_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetRuntimeState(ctx context.Context, sessionID string) (map[string]any, error) {
	return s.getState(ctx, sessionID, "runtime")
}

func (s *SQLiteStorage) SetRuntimeState(ctx context.Context, sessionID string, state map[string]any) error {
	return s.setState(ctx, sessionID, "runtime", state)
}

func (s *SQLiteStorage) GetFormData(ctx context.Context, sessionID string) (map[string]any, error) {
	return s.getState(ctx, sessionID, "form")
}

func (s *SQLiteStorage) SetFormData(ctx context.Context, sessionID string, data map[string]any) error {
	return s.setState(ctx, sessionID, "form", data)
}

func (s *SQLiteStorage) getState(ctx context.Context, sessionID, bucket string) (map[string]any, error) {
	var raw string
	row := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM session_state WHERE session_id = ? AND bucket = ?`, sessionID, bucket)
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("query session state: %w", err)
	}
	state := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return state, nil
}

func (s *SQLiteStorage) setState(ctx context.Context, sessionID, bucket string, state map[string]any) error {
	if state == nil {
		state = map[string]any{}
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_state (session_id, bucket, state_json, updated_at_ms)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(session_id, bucket) DO UPDATE SET
			state_json = excluded.state_json,
			updated_at_ms = excluded.updated_at_ms`,
		sessionID, bucket, string(raw), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert session state: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SessionIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id FROM working_items
		 UNION SELECT session_id FROM session_state`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStorage) ClearSession(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM working_items WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear session items: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM session_state WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("clear session state: %w", err)
	}
	return nil
}

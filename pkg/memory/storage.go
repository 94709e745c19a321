package memory

import "context"

// Storage is the pluggable persistence backend for working-memory state.
// Every method is a suspension point; implementations must be safe for
// concurrent use. Items are returned in insertion order per session.
type Storage interface {
	AddItem(ctx context.Context, item Item) error
	GetItems(ctx context.Context, sessionID string) ([]Item, error)
	RemoveItems(ctx context.Context, sessionID string, ids []string) error

	GetRuntimeState(ctx context.Context, sessionID string) (map[string]any, error)
	SetRuntimeState(ctx context.Context, sessionID string, state map[string]any) error
	GetFormData(ctx context.Context, sessionID string) (map[string]any, error)
	SetFormData(ctx context.Context, sessionID string, data map[string]any) error

	SessionIDs(ctx context.Context) ([]string, error)
	ClearSession(ctx context.Context, sessionID string) error

	Close() error
}

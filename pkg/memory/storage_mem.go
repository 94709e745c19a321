package memory

import (
	"context"
	"sync"
)

// memoryStorage keeps everything in process memory. It is the default
// backend and the one the tests exercise.
type memoryStorage struct {
	mu    sync.RWMutex
	items map[string][]Item
	state map[string]map[string]any
	forms map[string]map[string]any
}

// NewMemoryStorage returns an in-process Storage backend.
func NewMemoryStorage() Storage {
	return &memoryStorage{
		items: make(map[string][]Item),
		state: make(map[string]map[string]any),
		forms: make(map[string]map[string]any),
	}
}

func (s *memoryStorage) AddItem(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.SessionID] = append(s.items[item.SessionID], item)
	return nil
}

func (s *memoryStorage) GetItems(ctx context.Context, sessionID string) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored := s.items[sessionID]
	out := make([]Item, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *memoryStorage) RemoveItems(ctx context.Context, sessionID string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.items[sessionID]
	kept := stored[:0]
	for _, it := range stored {
		if _, ok := drop[it.ID]; !ok {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		delete(s.items, sessionID)
	} else {
		s.items[sessionID] = kept
	}
	return nil
}

func (s *memoryStorage) GetRuntimeState(ctx context.Context, sessionID string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStateMap(s.state[sessionID]), nil
}

func (s *memoryStorage) SetRuntimeState(ctx context.Context, sessionID string, state map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[sessionID] = cloneStateMap(state)
	return nil
}

func (s *memoryStorage) GetFormData(ctx context.Context, sessionID string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneStateMap(s.forms[sessionID]), nil
}

func (s *memoryStorage) SetFormData(ctx context.Context, sessionID string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forms[sessionID] = cloneStateMap(data)
	return nil
}

func (s *memoryStorage) SessionIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{}, len(s.items))
	for id := range s.items {
		seen[id] = struct{}{}
	}
	for id := range s.state {
		seen[id] = struct{}{}
	}
	for id := range s.forms {
		seen[id] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

func (s *memoryStorage) ClearSession(ctx context.Context, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, sessionID)
	delete(s.state, sessionID)
	delete(s.forms, sessionID)
	return nil
}

func (s *memoryStorage) Close() error { return nil }

func cloneStateMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

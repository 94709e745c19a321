package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dotsetgreg/mnemo/pkg/buffer"
	"github.com/dotsetgreg/mnemo/pkg/event"
)

const maxContentLength = 100_000

// Manager is the working-memory engine: it validates and scores incoming
// items, stores them with TTL expiry, fans them out to the configured
// session buffers, and maintains runtime and form state per session.
type Manager struct {
	cfg     Config
	storage Storage
	events  *event.Queue
	log     *logrus.Entry
	clock   func() time.Time

	mu       sync.Mutex
	buffers  map[string]map[buffer.Type]buffer.Buffer
	sessions map[string]*sync.Mutex

	stopCh chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// ManagerOption customizes a Manager at construction time.
type ManagerOption func(*Manager)

// WithStorage replaces the default in-memory backend.
func WithStorage(s Storage) ManagerOption {
	return func(m *Manager) { m.storage = s }
}

// WithEventQueue routes lifecycle events to q instead of a private queue.
func WithEventQueue(q *event.Queue) ManagerOption {
	return func(m *Manager) { m.events = q }
}

// WithLogger sets the structured logger.
func WithLogger(l *logrus.Logger) ManagerOption {
	return func(m *Manager) { m.log = l.WithField("component", "memory") }
}

func withClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = now }
}

// NewManager builds a Manager and starts its background expiry sweep.
// Callers must Close it to stop the sweep goroutine.
func NewManager(cfg Config, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:      cfg.withDefaults(),
		buffers:  make(map[string]map[buffer.Type]buffer.Buffer),
		sessions: make(map[string]*sync.Mutex),
		clock:    time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.storage == nil {
		m.storage = NewMemoryStorage()
	}
	if m.events == nil {
		m.events = event.NewQueue(256)
	}
	if m.log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		m.log = l.WithField("component", "memory")
	}

	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

// Events exposes the manager's lifecycle event queue.
func (m *Manager) Events() *event.Queue { return m.events }

// Close stops the background sweep and releases the storage backend.
func (m *Manager) Close() error {
	m.once.Do(func() {
		close(m.stopCh)
	})
	m.wg.Wait()
	return m.storage.Close()
}

// sessionLock returns the mutex serializing writes for one session.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.sessions[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.sessions[sessionID] = lock
	}
	return lock
}

// AddItem validates, scores, stores, and fans out one working-memory item.
// A zero metadata importance is treated as unset and computed from the
// item's kind and content.
func (m *Manager) AddItem(ctx context.Context, sessionID string, kind Kind, content string, md ItemMetadata) (Item, error) {
	if sessionID == "" {
		return Item{}, &Error{Code: CodeValidation, Op: "add_item", Err: fmt.Errorf("empty session id")}
	}
	if !kind.Valid() {
		return Item{}, &Error{Code: CodeValidation, Op: "add_item", SessionID: sessionID, Err: fmt.Errorf("unknown kind %q", kind)}
	}
	if strings.TrimSpace(content) == "" {
		return Item{}, &Error{Code: CodeValidation, Op: "add_item", SessionID: sessionID, Err: fmt.Errorf("empty content")}
	}
	if len(content) > maxContentLength {
		return Item{}, &Error{Code: CodeValidation, Op: "add_item", SessionID: sessionID, Err: fmt.Errorf("content length %d exceeds %d", len(content), maxContentLength)}
	}
	if md.Importance < 0 || md.Importance > 1 {
		return Item{}, &Error{Code: CodeValidation, Op: "add_item", SessionID: sessionID, Err: fmt.Errorf("importance %v out of [0,1]", md.Importance)}
	}

	item := Item{
		ID:        "itm-" + uuid.NewString(),
		SessionID: sessionID,
		Timestamp: m.clock(),
		Kind:      kind,
		Content:   content,
		Metadata:  md,
	}
	if item.Metadata.Importance == 0 {
		item.Metadata.Importance = scoreImportance(item)
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.storage.AddItem(ctx, item); err != nil {
		return Item{}, &Error{Code: CodeStorage, Op: "add_item", SessionID: sessionID, Err: err}
	}

	count, err := m.enforceMaxItems(ctx, sessionID)
	if err != nil {
		m.log.WithError(err).WithField("session", sessionID).Warn("max-items eviction failed")
	}

	if err := m.fanOut(sessionID, item); err != nil {
		m.log.WithError(err).WithField("session", sessionID).Warn("buffer fan-out failed")
	}

	m.events.Publish(event.Event{
		Type:      event.ItemAdded,
		SessionID: sessionID,
		Payload: map[string]string{
			"item_id":    item.ID,
			"kind":       string(item.Kind),
			"importance": strconv.FormatFloat(item.Metadata.Importance, 'f', 2, 64),
		},
	})
	if count >= m.cfg.CompressionThreshold {
		m.events.Publish(event.Event{
			Type:      event.CompressionNeeded,
			SessionID: sessionID,
			Payload:   map[string]string{"item_count": strconv.Itoa(count)},
		})
	}
	return item, nil
}

// enforceMaxItems drops the oldest items past the configured cap and
// returns the resulting live item count.
func (m *Manager) enforceMaxItems(ctx context.Context, sessionID string) (int, error) {
	items, err := m.storage.GetItems(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if len(items) <= m.cfg.MaxItems {
		return len(items), nil
	}
	excess := items[:len(items)-m.cfg.MaxItems]
	ids := make([]string, len(excess))
	for i, it := range excess {
		ids[i] = it.ID
	}
	if err := m.storage.RemoveItems(ctx, sessionID, ids); err != nil {
		return len(items), err
	}
	return m.cfg.MaxItems, nil
}

// fanOut adds the item to every enabled buffer for the session. A failing
// buffer does not block the others; errors are collected per buffer and
// joined. Storage is already committed by the time fan-out runs.
func (m *Manager) fanOut(sessionID string, item Item) error {
	msg := toMessage(item)
	var errs []error
	for _, t := range buffer.Types() {
		if _, enabled := m.cfg.Buffers[t]; !enabled {
			continue
		}
		buf, err := m.bufferFor(sessionID, t)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := buf.Add(msg); err != nil {
			errs = append(errs, fmt.Errorf("%s buffer: %w", t, err))
		}
	}
	return errors.Join(errs...)
}

// GetOrCreateBuffer returns the session's buffer of the given strategy,
// creating it on first use. An optional cfg overrides the manager-level
// settings for that strategy; it only applies at creation time.
func (m *Manager) GetOrCreateBuffer(sessionID string, t buffer.Type, cfg ...buffer.Config) (buffer.Buffer, error) {
	if !t.Valid() {
		return nil, &Error{Code: CodeBuffer, Op: "get_buffer", SessionID: sessionID, Err: fmt.Errorf("unknown strategy %q", t)}
	}
	return m.bufferFor(sessionID, t, cfg...)
}

func (m *Manager) bufferFor(sessionID string, t buffer.Type, cfg ...buffer.Config) (buffer.Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byType, ok := m.buffers[sessionID]
	if !ok {
		byType = make(map[buffer.Type]buffer.Buffer)
		m.buffers[sessionID] = byType
	}
	if buf, ok := byType[t]; ok {
		return buf, nil
	}
	bufCfg := m.cfg.Buffers[t]
	if len(cfg) > 0 {
		bufCfg = cfg[0]
	}
	buf, err := buffer.New(t, bufCfg)
	if err != nil {
		return nil, &Error{Code: CodeBuffer, Op: "create_buffer", SessionID: sessionID, Err: err}
	}
	byType[t] = buf
	return buf, nil
}

// GetItems returns the session's live items in insertion order, filtered
// by opts. Limit keeps the most recent N after all other filters.
func (m *Manager) GetItems(ctx context.Context, sessionID string, opts GetOptions) ([]Item, error) {
	items, err := m.storage.GetItems(ctx, sessionID)
	if err != nil {
		return nil, &Error{Code: CodeStorage, Op: "get_items", SessionID: sessionID, Err: err}
	}
	items = liveItems(items, m.cfg.TTL, m.clock())

	if len(opts.Kinds) > 0 {
		want := make(map[Kind]struct{}, len(opts.Kinds))
		for _, k := range opts.Kinds {
			want[k] = struct{}{}
		}
		kept := items[:0]
		for _, it := range items {
			if _, ok := want[it.Kind]; ok {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	if !opts.Since.IsZero() {
		kept := items[:0]
		for _, it := range items {
			if !it.Timestamp.Before(opts.Since) {
				kept = append(kept, it)
			}
		}
		items = kept
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[len(items)-opts.Limit:]
	}
	return items, nil
}

// GetContext renders the combined prompt context from the session's
// buffers, sections labeled by strategy, empties skipped. With no types
// given, every existing buffer contributes.
func (m *Manager) GetContext(sessionID string, types ...buffer.Type) string {
	m.mu.Lock()
	byType := m.buffers[sessionID]
	bufs := make(map[buffer.Type]buffer.Buffer, len(byType))
	for t, b := range byType {
		bufs[t] = b
	}
	m.mu.Unlock()

	ordered := buffer.Types()
	if len(types) > 0 {
		ordered = types
	}
	var sections []string
	for _, t := range ordered {
		buf, ok := bufs[t]
		if !ok {
			continue
		}
		if part := strings.TrimSpace(buf.Context()); part != "" {
			sections = append(sections, fmt.Sprintf("=== %s ===\n%s", t, part))
		}
	}
	return strings.Join(sections, "\n\n")
}

// SetRuntimeState replaces the session's runtime state wholesale.
func (m *Manager) SetRuntimeState(ctx context.Context, sessionID string, state map[string]any) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	if err := m.storage.SetRuntimeState(ctx, sessionID, state); err != nil {
		return &Error{Code: CodeStorage, Op: "set_runtime_state", SessionID: sessionID, Err: err}
	}
	m.events.Publish(event.Event{
		Type:      event.RuntimeStateUpdate,
		SessionID: sessionID,
		Payload:   map[string]string{"bucket": "runtime", "ops": "replace"},
	})
	return nil
}

// SetFormData replaces the session's form data wholesale.
func (m *Manager) SetFormData(ctx context.Context, sessionID string, data map[string]any) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()
	if err := m.storage.SetFormData(ctx, sessionID, data); err != nil {
		return &Error{Code: CodeStorage, Op: "set_form_data", SessionID: sessionID, Err: err}
	}
	m.events.Publish(event.Event{
		Type:      event.RuntimeStateUpdate,
		SessionID: sessionID,
		Payload:   map[string]string{"bucket": "form", "ops": "replace"},
	})
	return nil
}

// UpdateRuntimeState applies ops to the session's runtime scratch state.
// Ops apply to a copy; any failure leaves the stored state untouched.
func (m *Manager) UpdateRuntimeState(ctx context.Context, sessionID string, ops []StateOp) (map[string]any, error) {
	return m.updateState(ctx, sessionID, "runtime", ops,
		m.storage.GetRuntimeState, m.storage.SetRuntimeState)
}

// GetRuntimeState returns a copy of the session's runtime state.
func (m *Manager) GetRuntimeState(ctx context.Context, sessionID string) (map[string]any, error) {
	state, err := m.storage.GetRuntimeState(ctx, sessionID)
	if err != nil {
		return nil, &Error{Code: CodeStorage, Op: "get_runtime_state", SessionID: sessionID, Err: err}
	}
	return state, nil
}

// UpdateFormData applies ops to the session's form data.
func (m *Manager) UpdateFormData(ctx context.Context, sessionID string, ops []StateOp) (map[string]any, error) {
	return m.updateState(ctx, sessionID, "form", ops,
		m.storage.GetFormData, m.storage.SetFormData)
}

// GetFormData returns a copy of the session's form data.
func (m *Manager) GetFormData(ctx context.Context, sessionID string) (map[string]any, error) {
	data, err := m.storage.GetFormData(ctx, sessionID)
	if err != nil {
		return nil, &Error{Code: CodeStorage, Op: "get_form_data", SessionID: sessionID, Err: err}
	}
	return data, nil
}

func (m *Manager) updateState(
	ctx context.Context, sessionID, bucket string, ops []StateOp,
	get func(context.Context, string) (map[string]any, error),
	set func(context.Context, string, map[string]any) error,
) (map[string]any, error) {
	if len(ops) == 0 {
		return nil, &Error{Code: CodeValidation, Op: "update_" + bucket, SessionID: sessionID, Err: fmt.Errorf("no operations")}
	}
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	state, err := get(ctx, sessionID)
	if err != nil {
		return nil, &Error{Code: CodeStorage, Op: "update_" + bucket, SessionID: sessionID, Err: err}
	}
	next, err := applyStateOps(state, ops)
	if err != nil {
		return nil, &Error{Code: CodeState, Op: "update_" + bucket, SessionID: sessionID, Err: err}
	}
	if err := set(ctx, sessionID, next); err != nil {
		return nil, &Error{Code: CodeStorage, Op: "update_" + bucket, SessionID: sessionID, Err: err}
	}
	m.events.Publish(event.Event{
		Type:      event.RuntimeStateUpdate,
		SessionID: sessionID,
		Payload:   map[string]string{"bucket": bucket, "ops": strconv.Itoa(len(ops))},
	})
	return next, nil
}

// Summarize builds the statistical digest of the session's live items
// plus its current runtime and form state.
func (m *Manager) Summarize(ctx context.Context, sessionID string) (SessionSummary, error) {
	items, err := m.GetItems(ctx, sessionID, GetOptions{})
	if err != nil {
		return SessionSummary{}, err
	}
	sum := summarizeItems(sessionID, items)
	if state, err := m.storage.GetRuntimeState(ctx, sessionID); err == nil && len(state) > 0 {
		sum.RuntimeState = state
	}
	if form, err := m.storage.GetFormData(ctx, sessionID); err == nil && len(form) > 0 {
		sum.FormData = form
	}
	return sum, nil
}

// ClearItems removes the session's stored items and resets its buffers,
// keeping runtime and form state intact.
func (m *Manager) ClearItems(ctx context.Context, sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	items, err := m.storage.GetItems(ctx, sessionID)
	if err != nil {
		return &Error{Code: CodeStorage, Op: "clear_items", SessionID: sessionID, Err: err}
	}
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	if err := m.storage.RemoveItems(ctx, sessionID, ids); err != nil {
		return &Error{Code: CodeStorage, Op: "clear_items", SessionID: sessionID, Err: err}
	}
	m.mu.Lock()
	delete(m.buffers, sessionID)
	m.mu.Unlock()
	return nil
}

// ClearSession removes the session's items, state, and buffers.
func (m *Manager) ClearSession(ctx context.Context, sessionID string) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if err := m.storage.ClearSession(ctx, sessionID); err != nil {
		return &Error{Code: CodeStorage, Op: "clear_session", SessionID: sessionID, Err: err}
	}
	m.mu.Lock()
	delete(m.buffers, sessionID)
	m.mu.Unlock()

	m.events.Publish(event.Event{Type: event.SessionCleared, SessionID: sessionID})
	return nil
}

// Sessions lists the ids of every session with stored items or state.
func (m *Manager) Sessions(ctx context.Context) ([]string, error) {
	ids, err := m.storage.SessionIDs(ctx)
	if err != nil {
		return nil, &Error{Code: CodeStorage, Op: "sessions", Err: err}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweep(context.Background())
		}
	}
}

// sweep removes expired items across all sessions. Sessions whose last
// item expires keep their runtime state; only explicit clears drop it.
func (m *Manager) sweep(ctx context.Context) {
	ids, err := m.storage.SessionIDs(ctx)
	if err != nil {
		m.log.WithError(err).Warn("sweep: list sessions failed")
		return
	}
	now := m.clock()
	cutoff := now.Add(-m.cfg.TTL)
	removed := 0
	for _, sessionID := range ids {
		lock := m.sessionLock(sessionID)
		lock.Lock()
		items, err := m.storage.GetItems(ctx, sessionID)
		if err != nil {
			lock.Unlock()
			m.log.WithError(err).WithField("session", sessionID).Warn("sweep: read failed")
			continue
		}
		var expired []string
		for _, it := range items {
			if !it.Timestamp.After(cutoff) {
				expired = append(expired, it.ID)
			}
		}
		if len(expired) > 0 {
			if err := m.storage.RemoveItems(ctx, sessionID, expired); err != nil {
				m.log.WithError(err).WithField("session", sessionID).Warn("sweep: remove failed")
			} else {
				removed += len(expired)
				if len(expired) == len(items) {
					// Session fully expired; its buffers go too.
					m.mu.Lock()
					delete(m.buffers, sessionID)
					m.mu.Unlock()
				}
			}
		}
		lock.Unlock()
	}
	if removed > 0 {
		m.log.WithField("removed", removed).Debug("expiry sweep completed")
	}
	m.events.Publish(event.Event{
		Type:    event.SweepCompleted,
		Payload: map[string]string{"removed": strconv.Itoa(removed)},
	})
}

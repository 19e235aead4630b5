package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// MemoryStore is the in-process Store used when no Redis URL is configured.
// Entries carry the same TTL semantics as the Redis backend; expiry is
// checked lazily on read.
type MemoryStore struct {
	mu      sync.RWMutex
	opts    Options
	states  map[string]memoryEntry
	history map[string][]HistoryEntry
	seqs    map[string]int64
	plans   map[string]planEntry
	now     func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type planEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(opts Options) *MemoryStore {
	return &MemoryStore{
		opts:    opts.withDefaults(),
		states:  make(map[string]memoryEntry),
		history: make(map[string][]HistoryEntry),
		seqs:    make(map[string]int64),
		plans:   make(map[string]planEntry),
		now:     time.Now,
	}
}

// Get returns the session state, or ErrSessionNotFound.
func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*State, error) {
	m.mu.RLock()
	entry, ok := m.states[sessionID]
	m.mu.RUnlock()
	if !ok || m.now().After(entry.expiresAt) {
		return nil, &core.PlanError{
			Op:      "session.Get",
			Code:    core.CodeInputInvalid,
			Message: fmt.Sprintf("session %s not found", sessionID),
			Err:     core.ErrSessionNotFound,
		}
	}

	var state State
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Save stores the state and refreshes its TTL.
func (m *MemoryStore) Save(ctx context.Context, state *State) error {
	if state.ID == "" {
		return &core.PlanError{
			Op:      "session.Save",
			Code:    core.CodeInputInvalid,
			Message: "session state has no id",
			Err:     core.ErrInputInvalid,
		}
	}
	now := m.now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.ID, err)
	}

	m.mu.Lock()
	m.states[state.ID] = memoryEntry{data: data, expiresAt: now.Add(m.opts.TTL)}
	m.mu.Unlock()
	return nil
}

// Delete removes the session, its history, and its sequence counter.
func (m *MemoryStore) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	delete(m.states, sessionID)
	delete(m.history, sessionID)
	delete(m.seqs, sessionID)
	m.mu.Unlock()
	return nil
}

// NextSeq advances the per-session sequence counter.
func (m *MemoryStore) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	m.seqs[sessionID]++
	seq := m.seqs[sessionID]
	m.mu.Unlock()
	return seq, nil
}

// AppendHistory records one request, keeping the sliding window.
func (m *MemoryStore) AppendHistory(ctx context.Context, sessionID string, entry HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now()
	}
	m.mu.Lock()
	list := append(m.history[sessionID], entry)
	if len(list) > m.opts.MaxHistory {
		list = list[len(list)-m.opts.MaxHistory:]
	}
	m.history[sessionID] = list
	m.mu.Unlock()
	return nil
}

// History returns the most recent entries, oldest first.
func (m *MemoryStore) History(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error) {
	m.mu.RLock()
	list := m.history[sessionID]
	m.mu.RUnlock()

	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]HistoryEntry, limit)
	copy(out, list[len(list)-limit:])
	return out, nil
}

// SavePlan stores a finished plan result by request id.
func (m *MemoryStore) SavePlan(ctx context.Context, requestID string, result *core.PlanResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", requestID, err)
	}
	m.mu.Lock()
	m.plans[requestID] = planEntry{data: data, expiresAt: m.now().Add(m.opts.TTL)}
	m.mu.Unlock()
	return nil
}

// Plan returns a stored plan result, or ErrPlanNotFound.
func (m *MemoryStore) Plan(ctx context.Context, requestID string) (*core.PlanResult, error) {
	m.mu.RLock()
	entry, ok := m.plans[requestID]
	m.mu.RUnlock()
	if !ok || m.now().After(entry.expiresAt) {
		return nil, &core.PlanError{
			Op:      "session.Plan",
			Code:    core.CodeInputInvalid,
			Message: fmt.Sprintf("plan %s not found", requestID),
			Err:     core.ErrPlanNotFound,
		}
	}

	var result core.PlanResult
	if err := json.Unmarshal(entry.data, &result); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", requestID, err)
	}
	return &result, nil
}

// ActiveSessions lists the ids of unexpired sessions.
func (m *MemoryStore) ActiveSessions(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.now()
	ids := make([]string, 0, len(m.states))
	for id, entry := range m.states {
		if now.Before(entry.expiresAt) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Close is a no-op for the memory backend.
func (m *MemoryStore) Close() error { return nil }

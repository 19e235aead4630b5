// Package session persists per-session planning state: the constraints and
// profile carried between follow-up messages, the last itinerary for edit
// patches, a numbered request history, and finished plans addressable by
// request id. Two backends exist: Redis for deployments, memory for tests
// and single-node runs.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// Default store tuning. Overridable through Options.
const (
	DefaultTTL        = 24 * time.Hour
	DefaultMaxHistory = 50
)

// State is everything the pipeline needs from a prior turn.
type State struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Constraints *core.TripConstraints `json:"constraints,omitempty"`
	Profile     *core.UserProfile     `json:"profile,omitempty"`

	// LastItinerary is the plan edit patches apply to.
	LastItinerary *core.Itinerary `json:"last_itinerary,omitempty"`
	LastRequestID string          `json:"last_request_id,omitempty"`
}

// HistoryEntry is one numbered request within a session.
type HistoryEntry struct {
	Seq       int64           `json:"seq"`
	RequestID string          `json:"request_id"`
	Message   string          `json:"message,omitempty"`
	Status    core.PlanStatus `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// Options tunes a store.
type Options struct {
	// TTL bounds how long idle sessions and stored plans live.
	TTL time.Duration
	// MaxHistory is the per-session history sliding window.
	MaxHistory int
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = DefaultMaxHistory
	}
	return o
}

// Store persists session state, history, and finished plans.
//
// Get returns ErrSessionNotFound (wrapped) for unknown sessions; Plan returns
// ErrPlanNotFound for unknown request ids.
type Store interface {
	Get(ctx context.Context, sessionID string) (*State, error)
	Save(ctx context.Context, state *State) error
	Delete(ctx context.Context, sessionID string) error

	// NextSeq atomically advances the per-session sequence number.
	NextSeq(ctx context.Context, sessionID string) (int64, error)
	AppendHistory(ctx context.Context, sessionID string, entry HistoryEntry) error
	History(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error)

	SavePlan(ctx context.Context, requestID string, result *core.PlanResult) error
	Plan(ctx context.Context, requestID string) (*core.PlanResult, error)

	Close() error
}

// KeyedMutex serializes work per session id. The HTTP layer holds the
// session's lock for the whole request so follow-ups cannot interleave with
// an in-flight plan for the same session.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the lock for key and returns its release function. Lock
// entries are dropped once the last holder releases, so the map stays
// proportional to in-flight sessions.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

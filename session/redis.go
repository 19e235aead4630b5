package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/djc-jpg/travel-planning-agent/core"
)

// schemaVersion is bumped whenever stored JSON shapes change incompatibly.
// A mismatched version in Redis means the keyspace belongs to a different
// build and the store refuses to start rather than misread it.
const schemaVersion = "1"

// RedisStore is the Redis-backed Store. Session state and plan results are
// stored as JSON strings, history as a trimmed list, sequence numbers via
// INCR. All keys carry the configured TTL.
type RedisStore struct {
	client *redis.Client
	opts   Options
	logger core.Logger
}

// NewRedisStore connects to Redis, verifies the connection and the schema
// version key, and returns the store.
func NewRedisStore(redisURL string, opts Options, logger core.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	s := &RedisStore{client: client, opts: opts.withDefaults(), logger: logger}
	if err := s.ensureSchema(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("Session store connected", map[string]interface{}{
		"operation": "session_store_init",
		"backend":   "redis",
		"ttl":       s.opts.TTL.String(),
	})
	return s, nil
}

// ensureSchema claims the schema version key or verifies it matches.
func (s *RedisStore) ensureSchema(ctx context.Context) error {
	ok, err := s.client.SetNX(ctx, s.schemaKey(), schemaVersion, 0).Result()
	if err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	if ok {
		return nil
	}
	current, err := s.client.Get(ctx, s.schemaKey()).Result()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current != schemaVersion {
		return &core.PlanError{
			Op:      "session.NewRedisStore",
			Code:    core.CodeInvariantViolated,
			Message: fmt.Sprintf("redis keyspace has schema %s, this build expects %s", current, schemaVersion),
			Err:     core.ErrInvariantViolated,
		}
	}
	return nil
}

// Get returns the session state, or ErrSessionNotFound.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*State, error) {
	data, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, &core.PlanError{
			Op:      "session.Get",
			Code:    core.CodeInputInvalid,
			Message: fmt.Sprintf("session %s not found", sessionID),
			Err:     core.ErrSessionNotFound,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &state, nil
}

// Save stores the state and refreshes the TTL on all of the session's keys.
func (s *RedisStore) Save(ctx context.Context, state *State) error {
	if state.ID == "" {
		return &core.PlanError{
			Op:      "session.Save",
			Code:    core.CodeInputInvalid,
			Message: "session state has no id",
			Err:     core.ErrInputInvalid,
		}
	}
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	state.UpdatedAt = now

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", state.ID, err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.sessionKey(state.ID), data, s.opts.TTL)
	pipe.Expire(ctx, s.historyKey(state.ID), s.opts.TTL)
	pipe.Expire(ctx, s.seqKey(state.ID), s.opts.TTL)
	pipe.SAdd(ctx, s.activeKey(), state.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save session %s: %w", state.ID, err)
	}
	return nil
}

// Delete removes the session and everything hanging off it.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.Del(ctx, s.historyKey(sessionID))
	pipe.Del(ctx, s.seqKey(sessionID))
	pipe.SRem(ctx, s.activeKey(), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// NextSeq advances the per-session sequence number.
func (s *RedisStore) NextSeq(ctx context.Context, sessionID string) (int64, error) {
	pipe := s.client.Pipeline()
	incr := pipe.Incr(ctx, s.seqKey(sessionID))
	pipe.Expire(ctx, s.seqKey(sessionID), s.opts.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("next seq for %s: %w", sessionID, err)
	}
	return incr.Val(), nil
}

// AppendHistory records one request, trimmed to the sliding window.
func (s *RedisStore) AppendHistory(ctx context.Context, sessionID string, entry HistoryEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	key := s.historyKey(sessionID)
	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -int64(s.opts.MaxHistory), -1)
	pipe.Expire(ctx, key, s.opts.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append history for %s: %w", sessionID, err)
	}
	return nil
}

// History returns the most recent entries, oldest first. Undecodable
// entries are skipped.
func (s *RedisStore) History(ctx context.Context, sessionID string, limit int) ([]HistoryEntry, error) {
	start := int64(0)
	if limit > 0 {
		start = -int64(limit)
	}
	results, err := s.client.LRange(ctx, s.historyKey(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history for %s: %w", sessionID, err)
	}

	entries := make([]HistoryEntry, 0, len(results))
	for _, raw := range results {
		var entry HistoryEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			s.logger.Warn("Skipping undecodable history entry", map[string]interface{}{
				"operation": "session_history",
				"session":   sessionID,
				"error":     err.Error(),
			})
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SavePlan stores a finished plan result by request id.
func (s *RedisStore) SavePlan(ctx context.Context, requestID string, result *core.PlanResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", requestID, err)
	}
	if err := s.client.Set(ctx, s.planKey(requestID), data, s.opts.TTL).Err(); err != nil {
		return fmt.Errorf("save plan %s: %w", requestID, err)
	}
	return nil
}

// Plan returns a stored plan result, or ErrPlanNotFound.
func (s *RedisStore) Plan(ctx context.Context, requestID string) (*core.PlanResult, error) {
	data, err := s.client.Get(ctx, s.planKey(requestID)).Bytes()
	if err == redis.Nil {
		return nil, &core.PlanError{
			Op:      "session.Plan",
			Code:    core.CodeInputInvalid,
			Message: fmt.Sprintf("plan %s not found", requestID),
			Err:     core.ErrPlanNotFound,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("get plan %s: %w", requestID, err)
	}

	var result core.PlanResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", requestID, err)
	}
	return &result, nil
}

// ActiveSessions lists known session ids, including ones whose state key has
// already expired; callers treat the set as advisory.
func (s *RedisStore) ActiveSessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.activeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

// Close closes the underlying connection pool.
func (s *RedisStore) Close() error { return s.client.Close() }

// Key helpers.
func (s *RedisStore) sessionKey(id string) string { return "planner:session:" + id }
func (s *RedisStore) historyKey(id string) string { return "planner:session:" + id + ":history" }
func (s *RedisStore) seqKey(id string) string     { return "planner:session:" + id + ":seq" }
func (s *RedisStore) planKey(id string) string    { return "planner:plan:" + id }
func (s *RedisStore) activeKey() string           { return "planner:sessions:active" }
func (s *RedisStore) schemaKey() string           { return "planner:schema_version" }

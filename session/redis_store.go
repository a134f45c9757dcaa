package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"supportdesk/config"
)

// tabScopeTTL bounds tab-only selections: long enough to outlive a working
// shift at a shared terminal, short enough not to survive to the next one.
const tabScopeTTL = 12 * time.Hour

// RedisStore is a Redis-backed StateStore. The configured scope policy picks
// the key TTL: cross-session selections persist until logout deletes them,
// tab-only selections expire on their own.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed state store applying the given scope.
func NewRedisStore(client *redis.Client, scope config.IdentityScope) *RedisStore {
	ttl := time.Duration(0)
	if scope == config.ScopeTabOnly {
		ttl = tabScopeTTL
	}
	return &RedisStore{
		client: client,
		prefix: "identity_state:",
		ttl:    ttl,
	}
}

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

func (r *RedisStore) Save(ctx context.Context, key string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: marshal state: %w", err)
	}
	return r.client.Set(ctx, r.key(key), data, r.ttl).Err()
}

func (r *RedisStore) Load(ctx context.Context, key string) (State, bool, error) {
	val, err := r.client.Get(ctx, r.key(key)).Result()
	if err == redis.Nil {
		return State{}, false, nil
	}
	if err != nil {
		return State{}, false, err
	}

	var state State
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return State{}, false, fmt.Errorf("session: unmarshal state: %w", err)
	}
	return state, true, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

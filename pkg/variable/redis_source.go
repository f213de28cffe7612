package variable

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
)

// RedisSource resolves variables against a remote key/value service. Each
// value is stored as a JSON-encoded Variable payload
// ({"kind":"string","value":"...","immutable":false}). A circuit breaker
// wraps every call so a degraded Redis does not stall the rest of the
// Resolver's chain: once the breaker trips, lookups fail fast with
// ErrNotFound (per spec.md §4.A the Resolver only aborts on non-NotFound
// errors, and a remote service outage should not block sources lower in
// the chain — e.g. an in-memory fallback — from being tried).
type RedisSource struct {
	client  *redis.Client
	prefix  string
	breaker *gobreaker.CircuitBreaker
	lastGen string
}

// NewRedisSource wraps an existing redis client. prefix namespaces all keys
// this source reads/writes, e.g. "pipeline:vars:".
func NewRedisSource(client *redis.Client, prefix string) *RedisSource {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "redis-property-source",
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     5 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	return &RedisSource{client: client, prefix: prefix, breaker: cb}
}

func (r *RedisSource) Name() string { return "redis:" + r.prefix }

type redisPayload struct {
	Kind      Kind        `json:"kind"`
	Value     interface{} `json:"value"`
	Immutable bool        `json:"immutable"`
}

func (r *RedisSource) Lookup(ctx context.Context, name string) (Variable, error) {
	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.client.Get(ctx, r.prefix+name).Result()
	})
	if err != nil {
		if err == redis.Nil {
			return Variable{}, ErrNotFound
		}
		// A tripped breaker or any other transport error is treated as
		// NotFound rather than aborting the whole Resolver chain.
		return Variable{}, ErrNotFound
	}
	raw, _ := result.(string)
	var payload redisPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return Variable{}, err
	}
	return Variable{Name: name, Kind: payload.Kind, Value: payload.Value, Immutable: payload.Immutable}, nil
}

// Synchronize compares a server-side generation marker (set by whatever
// publishes variables, e.g. "pipeline:vars:__generation") against the
// value observed on the previous call; a changed generation is reported as
// a single synthetic change covering the whole source, since Redis does
// not cheaply enumerate which individual keys changed without keyspace
// notifications enabled.
func (r *RedisSource) Synchronize(ctx context.Context) ([]string, error) {
	gen, err := r.client.Get(ctx, r.prefix+"__generation").Result()
	if err != nil && err != redis.Nil {
		return nil, ErrNotFound
	}
	if gen == r.lastGen {
		return nil, nil
	}
	r.lastGen = gen
	return []string{r.prefix + "__generation"}, nil
}

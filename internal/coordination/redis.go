// Package coordination provides the distributed-lock and leader-election
// primitives needed to run more than one Orchestrator instance against the
// same Gateway: at most one instance may hold the proposal-compute lock at
// a time. Grounded on the lease/fencing pattern in FluxForge's
// coordination/leader.go and store/redis.go.
package coordination

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lease is the distributed-lock primitive a LeaderElector needs. Redis
// provides the production implementation; tests use an in-memory double.
type Lease interface {
	AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key, value string) error
	IncrementEpoch(ctx context.Context, key string) (int64, error)
}

// RedisLease implements Lease against a Redis server.
type RedisLease struct {
	client *redis.Client
}

// NewRedisLease connects to addr and verifies the connection with a ping.
func NewRedisLease(ctx context.Context, addr, password string, db int) (*RedisLease, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	return &RedisLease{client: client}, nil
}

// Close releases the underlying connection.
func (r *RedisLease) Close() error { return r.client.Close() }

func (r *RedisLease) AcquireLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

// RenewLease extends the lease's TTL only if value still owns it.
func (r *RedisLease) RenewLease(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	script := `
		local held = redis.call("get", KEYS[1])
		if not held then
			return -1
		end
		if held == ARGV[1] then
			return redis.call("pexpire", KEYS[1], tonumber(ARGV[2]))
		end
		return -2
	`
	res, err := r.client.Eval(ctx, script, []string{key}, value, int64(ttl/time.Millisecond)).Result()
	if err != nil {
		return false, err
	}
	n, ok := res.(int64)
	if !ok {
		return false, errors.New("coordination: unexpected renew script result")
	}
	return n == 1, nil
}

// ReleaseLease deletes the lease only if value still owns it.
func (r *RedisLease) ReleaseLease(ctx context.Context, key, value string) error {
	script := `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`
	return r.client.Eval(ctx, script, []string{key}, value).Err()
}

// IncrementEpoch returns a durable, monotonically increasing fencing token.
func (r *RedisLease) IncrementEpoch(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key+":epoch").Result()
}

// Set stores a plain string value with a TTL, used by the idempotency store.
func (r *RedisLease) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get returns "" with no error when the key is absent, matching the
// teacher's not-found convention for this backend.
func (r *RedisLease) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

// Package registry implements the station-ownership lease: a Redis-backed
// "who owns this station id" lock, so a simulator process refuses to dial
// a station id another process already holds.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/evfleet/station-simulator/internal/config"
)

// ErrAlreadyOwned is returned by Acquire when another owner currently holds
// the station id's lease.
var ErrAlreadyOwned = errors.New("registry: station id already owned by another process")

// renewScript renews a lease only if ownerID still holds it, so a process
// that lost its lease (e.g. to a TTL expiry during a long GC pause) cannot
// silently re-extend someone else's ownership.
const renewScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`

// releaseScript deletes a lease only if ownerID still holds it.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// Registry is the Redis-backed ownership lease for station ids.
type Registry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New dials Redis per cfg and verifies connectivity with Ping.
func New(cfg config.RedisConfig) (*Registry, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("connect to registry redis at %s: %w", cfg.Addr, err)
	}

	return &Registry{client: client, prefix: "station-lease:", ttl: cfg.LeaseTTL}, nil
}

// NewWithClient injects an already-constructed client, used by tests with
// go-redis/redismock.
func NewWithClient(client *redis.Client, ttl time.Duration) *Registry {
	return &Registry{client: client, prefix: "station-lease:", ttl: ttl}
}

func (r *Registry) key(stationID string) string {
	return r.prefix + stationID
}

// Acquire attempts to take ownership of stationID for ownerID. It succeeds
// if no lease exists or the lease is already held by ownerID (idempotent
// reacquire on process restart); it returns ErrAlreadyOwned if another
// owner holds it.
func (r *Registry) Acquire(ctx context.Context, stationID, ownerID string) error {
	ok, err := r.client.SetNX(ctx, r.key(stationID), ownerID, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lease for %s: %w", stationID, err)
	}
	if ok {
		return nil
	}

	current, err := r.client.Get(ctx, r.key(stationID)).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("read lease for %s: %w", stationID, err)
	}
	if current == ownerID {
		return r.renew(ctx, stationID, ownerID)
	}
	return ErrAlreadyOwned
}

// Renew extends an already-held lease's TTL. It returns ErrAlreadyOwned if
// the lease is no longer held by ownerID.
func (r *Registry) Renew(ctx context.Context, stationID, ownerID string) error {
	return r.renew(ctx, stationID, ownerID)
}

func (r *Registry) renew(ctx context.Context, stationID, ownerID string) error {
	res, err := r.client.Eval(ctx, renewScript, []string{r.key(stationID)}, ownerID, r.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("renew lease for %s: %w", stationID, err)
	}
	if n, ok := res.(int64); !ok || n == 0 {
		return ErrAlreadyOwned
	}
	return nil
}

// Release drops ownerID's lease on stationID, if it still holds it.
func (r *Registry) Release(ctx context.Context, stationID, ownerID string) error {
	_, err := r.client.Eval(ctx, releaseScript, []string{r.key(stationID)}, ownerID).Result()
	if err != nil {
		return fmt.Errorf("release lease for %s: %w", stationID, err)
	}
	return nil
}

// Close closes the underlying Redis client.
func (r *Registry) Close() error {
	return r.client.Close()
}

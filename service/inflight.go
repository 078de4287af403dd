package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/AnTengye/leaseflow/config"
	"github.com/AnTengye/leaseflow/lifecycle"
)

// InflightGuard admits at most one mutation per contract at a time. Acquire
// fails with lifecycle.ErrBusy while another holder has the contract; the
// returned release func must be called exactly once.
type InflightGuard interface {
	Acquire(ctx context.Context, contractID string) (release func(), err error)
}

// LocalGuard tracks in-flight contracts inside one process.
type LocalGuard struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{inflight: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(ctx context.Context, contractID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, busy := g.inflight[contractID]; busy {
		return nil, lifecycle.ErrBusy
	}
	g.inflight[contractID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.inflight, contractID)
			g.mu.Unlock()
		})
	}, nil
}

// InFlight reports whether a mutation currently holds contractID.
func (g *LocalGuard) InFlight(contractID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.inflight[contractID]
	return busy
}

const inflightKeyPrefix = "leaseflow:inflight:"

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard shares in-flight state between instances through a Redis lock
// per contract. The TTL bounds how long a crashed holder blocks a contract.
type RedisGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, ttl time.Duration) *RedisGuard {
	return &RedisGuard{client: client, ttl: ttl}
}

// NewRedisClient creates a client from the redis config section
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func inflightKey(contractID string) string {
	return inflightKeyPrefix + contractID
}

func (g *RedisGuard) Acquire(ctx context.Context, contractID string) (func(), error) {
	key := inflightKey(contractID)
	token := uuid.New().String()

	ok, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire lock: %v", lifecycle.ErrPersistenceUnavailable, err)
	}
	if !ok {
		return nil, lifecycle.ErrBusy
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// the caller's context may already be done
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := releaseScript.Run(releaseCtx, g.client, []string{key}, token).Err(); err != nil {
				slog.Warn("failed to release inflight lock", "contract_id", contractID, "error", err)
			}
		})
	}, nil
}

package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"learnhub-backend/pkg/config"
)

// ErrRedisDegraded is returned by Safe* operations while Redis is unavailable
var ErrRedisDegraded = errors.New("redis is in degraded mode")

// RedisDB wraps a Redis client with degraded mode support. While degraded,
// Safe* operations fail fast instead of waiting on a dead server. A nil
// *RedisDB behaves as permanently degraded, which is how a deployment with
// Redis disabled runs.
type RedisDB struct {
	Client *redis.Client

	degradedMu    sync.RWMutex
	degraded      bool
	healthCheckMu sync.Mutex
	onDegraded    func(bool)
}

// NewRedisDB creates a new Redis client and verifies it with a ping
func NewRedisDB(ctx context.Context, cfg *config.RedisConfig) (*RedisDB, error) {
	client := newClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout(cfg))
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisDB{Client: client}, nil
}

// NewDegradedRedisDB creates a client that starts in degraded mode, for when
// Redis is down at startup. HealthCheck brings it back once Redis answers.
func NewDegradedRedisDB(cfg *config.RedisConfig) *RedisDB {
	return &RedisDB{Client: newClient(cfg), degraded: true}
}

func dialTimeout(cfg *config.RedisConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return 5 * time.Second
	}
	return cfg.Timeout
}

func newClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  dialTimeout(cfg),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
	})
}

// Close closes the Redis connection
func (db *RedisDB) Close() error {
	if db == nil {
		return nil
	}
	return db.Client.Close()
}

// OnDegradedChange registers a hook called whenever degraded mode flips
func (db *RedisDB) OnDegradedChange(fn func(degraded bool)) {
	db.degradedMu.Lock()
	defer db.degradedMu.Unlock()
	db.onDegraded = fn
}

// IsDegraded returns true if Redis is in degraded mode
func (db *RedisDB) IsDegraded() bool {
	if db == nil {
		return true
	}
	db.degradedMu.RLock()
	defer db.degradedMu.RUnlock()
	return db.degraded
}

// SetDegraded forces the degraded state
func (db *RedisDB) SetDegraded(degraded bool) {
	db.degradedMu.Lock()
	changed := db.degraded != degraded
	db.degraded = degraded
	hook := db.onDegraded
	db.degradedMu.Unlock()

	if changed && hook != nil {
		hook(degraded)
	}
}

// HealthCheck pings Redis and updates degraded mode
func (db *RedisDB) HealthCheck(ctx context.Context) error {
	db.healthCheckMu.Lock()
	defer db.healthCheckMu.Unlock()

	healthCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := db.Client.Ping(healthCtx).Err(); err != nil {
		db.SetDegraded(true)
		return fmt.Errorf("redis health check failed: %w", err)
	}

	db.SetDegraded(false)
	return nil
}

// StartHealthCheck checks Redis every interval until ctx is done
func (db *RedisDB) StartHealthCheck(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = db.HealthCheck(ctx)
			}
		}
	}()
}

// SafeSetNX performs a SET NX with degraded mode handling
func (db *RedisDB) SafeSetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if db.IsDegraded() {
		return redis.NewBoolResult(false, fmt.Errorf("%w, setnx skipped", ErrRedisDegraded))
	}
	return db.Client.SetNX(ctx, key, value, expiration)
}

// SafeDel performs a DEL with degraded mode handling
func (db *RedisDB) SafeDel(ctx context.Context, keys ...string) *redis.IntCmd {
	if db.IsDegraded() {
		return redis.NewIntResult(0, fmt.Errorf("%w, del skipped", ErrRedisDegraded))
	}
	return db.Client.Del(ctx, keys...)
}

// SafeHIncrBy performs an HINCRBY with degraded mode handling
func (db *RedisDB) SafeHIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd {
	if db.IsDegraded() {
		return redis.NewIntResult(0, fmt.Errorf("%w, hincrby skipped", ErrRedisDegraded))
	}
	return db.Client.HIncrBy(ctx, key, field, incr)
}

// SafeHDel performs an HDEL with degraded mode handling
func (db *RedisDB) SafeHDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	if db.IsDegraded() {
		return redis.NewIntResult(0, fmt.Errorf("%w, hdel skipped", ErrRedisDegraded))
	}
	return db.Client.HDel(ctx, key, fields...)
}

// SafeHGetAll performs an HGETALL with degraded mode handling
func (db *RedisDB) SafeHGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	if db.IsDegraded() {
		return redis.NewMapStringStringResult(nil, fmt.Errorf("%w, hgetall skipped", ErrRedisDegraded))
	}
	return db.Client.HGetAll(ctx, key)
}

// SafeExpire performs an EXPIRE with degraded mode handling
func (db *RedisDB) SafeExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	if db.IsDegraded() {
		return redis.NewBoolResult(false, fmt.Errorf("%w, expire skipped", ErrRedisDegraded))
	}
	return db.Client.Expire(ctx, key, expiration)
}

// SafeIncr performs an INCR with degraded mode handling
func (db *RedisDB) SafeIncr(ctx context.Context, key string) *redis.IntCmd {
	if db.IsDegraded() {
		return redis.NewIntResult(0, fmt.Errorf("%w, incr skipped", ErrRedisDegraded))
	}
	return db.Client.Incr(ctx, key)
}

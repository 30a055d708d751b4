package database

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"learnhub-backend/pkg/config"
)

func TestRedisDB_NilIsDegraded(t *testing.T) {
	var db *RedisDB

	assert.True(t, db.IsDegraded())
	assert.NoError(t, db.Close())

	err := db.SafeSetNX(context.Background(), "k", "v", time.Minute).Err()
	assert.ErrorIs(t, err, ErrRedisDegraded)
}

func TestRedisDB_DegradedShortCircuits(t *testing.T) {
	// Nothing listens here; degraded mode must keep every call off the network.
	db := &RedisDB{Client: redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})}
	defer db.Close()

	var flips []bool
	db.OnDegradedChange(func(d bool) { flips = append(flips, d) })

	db.SetDegraded(true)
	db.SetDegraded(true)

	ctx := context.Background()
	assert.ErrorIs(t, db.SafeHIncrBy(ctx, "h", "a", 1).Err(), ErrRedisDegraded)
	assert.ErrorIs(t, db.SafeHDel(ctx, "h", "a").Err(), ErrRedisDegraded)
	assert.ErrorIs(t, db.SafeHGetAll(ctx, "h").Err(), ErrRedisDegraded)
	assert.ErrorIs(t, db.SafeExpire(ctx, "s", time.Minute).Err(), ErrRedisDegraded)
	assert.ErrorIs(t, db.SafeDel(ctx, "s").Err(), ErrRedisDegraded)
	assert.ErrorIs(t, db.SafeIncr(ctx, "n").Err(), ErrRedisDegraded)

	db.SetDegraded(false)
	assert.False(t, db.IsDegraded())
	assert.Equal(t, []bool{true, false}, flips)
}

func TestRedisDB_HealthCheckEntersDegradedMode(t *testing.T) {
	db := &RedisDB{Client: redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})}
	defer db.Close()

	assert.Error(t, db.HealthCheck(context.Background()))
	assert.True(t, db.IsDegraded())
}

func TestNewDegradedRedisDB(t *testing.T) {
	db := NewDegradedRedisDB(&config.RedisConfig{Host: "127.0.0.1", Port: 1})
	defer db.Close()

	assert.True(t, db.IsDegraded())
	assert.ErrorIs(t, db.SafeIncr(context.Background(), "n").Err(), ErrRedisDegraded)
}

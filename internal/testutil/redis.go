package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
)

const RedisEnv = "RIDE_TEST_REDIS_ADDR"

// NewRedis connects to database 15 of RIDE_TEST_REDIS_ADDR and flushes it.
func NewRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := os.Getenv(RedisEnv)
	if addr == "" {
		t.Skip(RedisEnv + " not set; skipping Redis-backed tests")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() { _ = rdb.Close() })

	if err := rdb.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
	return rdb
}

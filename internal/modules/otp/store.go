// README: OTP stores: an in-process map for single-node deployments and Redis for shared state.
package otp

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type Store interface {
	Save(ctx context.Context, e Entry) error
	// Get returns the entry for address; ok is false when none is stored.
	// Callers still check expiry: stores are allowed to return stale entries.
	Get(ctx context.Context, address string) (e Entry, ok bool, err error)
	Delete(ctx context.Context, address string) error
}

// MemoryStore keeps entries in a map guarded by a RWMutex. Entries for
// different addresses never contend beyond the map lock itself.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Save(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Address] = e
	return nil
}

func (s *MemoryStore) Get(_ context.Context, address string) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[address]
	return e, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, address)
	return nil
}

// Purge drops every entry expired at now and returns how many were removed.
func (s *MemoryStore) Purge(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for addr, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, addr)
			n++
		}
	}
	return n
}

// RunPurger periodically removes expired entries until ctx is done.
func (s *MemoryStore) RunPurger(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.Purge(now)
		}
	}
}

// RedisStore keeps one hash per address; Redis expires the key at ExpiresAt.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) key(address string) string { return "otp:email:" + address }

func (s *RedisStore) Save(ctx context.Context, e Entry) error {
	key := s.key(e.Address)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"code", e.Code,
		"expires_at", strconv.FormatInt(e.ExpiresAt.UnixMilli(), 10),
	)
	pipe.PExpireAt(ctx, key, e.ExpiresAt)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, address string) (Entry, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(address)).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	if len(vals) == 0 {
		return Entry{}, false, nil
	}
	ms, err := strconv.ParseInt(vals["expires_at"], 10, 64)
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Address: address, Code: vals["code"], ExpiresAt: time.UnixMilli(ms)}, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, address string) error {
	return s.rdb.Del(ctx, s.key(address)).Err()
}

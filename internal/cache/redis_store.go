package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	fieldData      = "data"
	fieldUpdatedAt = "updated_at"
	fieldStale     = "stale"
)

// RedisStore keeps entries in Redis hashes so several bidder processes share
// the same snapshots.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore wraps an existing client. A zero ttl keeps entries forever.
func NewRedisStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "lot-auction:cache:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

// OpenRedisStore dials the Redis instance at url (redis://...).
func OpenRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisStore(redis.NewClient(opt), "", ttl), nil
}

// Close releases the underlying client
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) key(k Key) string {
	return s.prefix + k.String()
}

func (s *RedisStore) Load(ctx context.Context, key Key) (Entry, bool, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key(key)).Result()
	if err != nil {
		return Entry{}, false, fmt.Errorf("redis load %s: %w", key, err)
	}
	if len(vals) == 0 {
		return Entry{}, false, nil
	}

	e := Entry{
		Data:  []byte(vals[fieldData]),
		Stale: vals[fieldStale] == "1",
	}
	if ts := vals[fieldUpdatedAt]; ts != "" {
		e.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Entry{}, false, fmt.Errorf("redis load %s: bad timestamp: %w", key, err)
		}
	}
	return e, true, nil
}

func (s *RedisStore) Save(ctx context.Context, key Key, entry Entry) error {
	stale := "0"
	if entry.Stale {
		stale = "1"
	}

	k := s.key(key)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k,
		fieldData, string(entry.Data),
		fieldUpdatedAt, entry.UpdatedAt.UTC().Format(time.RFC3339Nano),
		fieldStale, stale,
	)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

// markStale flags an existing hash only, so an entry that expires meanwhile
// is not recreated without its data
var markStale = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return redis.call("HSET", KEYS[1], ARGV[1], "1")
end
return 0
`)

func (s *RedisStore) MarkStale(ctx context.Context, key Key) error {
	if err := markStale.Run(ctx, s.rdb, []string{s.key(key)}, fieldStale).Err(); err != nil {
		return fmt.Errorf("redis mark stale %s: %w", key, err)
	}
	return nil
}

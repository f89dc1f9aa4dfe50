package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStorage keeps stores in Redis so several edge instances can share them.
//
//	<prefix>stores          set of store names
//	<prefix>entries:<store> hash key -> gob Entry
//	<prefix>meta:<store>    hash key -> gob Meta
type RedisStorage struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

type redisStore struct {
	owner *RedisStorage
	name  string
}

// RedisOptions configures the Redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// NewRedisStorage connects to Redis and verifies the connection.
func NewRedisStorage(ctx context.Context, opts RedisOptions) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewRedisStorageWithClient(client, opts.Prefix), nil
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client *redis.Client, prefix string) *RedisStorage {
	if prefix == "" {
		prefix = "go_pantry:"
	}
	return &RedisStorage{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisStorage) storesKey() string { return r.prefix + "stores" }

func (r *RedisStorage) entriesKey(name string) string { return r.prefix + "entries:" + name }

func (r *RedisStorage) metaKey(name string) string { return r.prefix + "meta:" + name }

func (r *RedisStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := r.client.SAdd(ctx, r.storesKey(), name).Err(); err != nil {
		return nil, wrapRedis(err)
	}
	return &redisStore{owner: r, name: name}, nil
}

func (r *RedisStorage) Has(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.storesKey(), name).Result()
	return ok, wrapRedis(err)
}

func (r *RedisStorage) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, r.storesKey(), name)
		pipe.Del(ctx, r.entriesKey(name), r.metaKey(name))
		return nil
	})
	if err != nil {
		return false, wrapRedis(err)
	}
	return removed.Val() > 0, nil
}

func (r *RedisStorage) Names(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.storesKey()).Result()
	if err != nil {
		return nil, wrapRedis(err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

func (s *redisStore) Name() string { return s.name }

func (s *redisStore) Match(ctx context.Context, key string) (Entry, bool, error) {
	b, err := s.owner.client.HGet(ctx, s.owner.entriesKey(s.name), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, wrapRedis(err)
	}
	var ent Entry
	if err := decodeGob(b, &ent); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry %s: %w", key, err)
	}
	ent.LastAccess = s.owner.now().UnixNano()
	if mb, err := encodeGob(Meta{Key: key, Size: int64(len(b)), StoredAt: ent.StoredAt, LastAccess: ent.LastAccess}); err == nil {
		_, _ = s.touch(ctx, key, mb)
	}
	return ent, true, nil
}

// touchScript rewrites the meta of a key only while its entry still exists,
// so a Match racing a Delete or Sweep cannot leave orphan meta behind.
var touchScript = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	redis.call("HSET", KEYS[2], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

func (s *redisStore) touch(ctx context.Context, key string, meta []byte) (bool, error) {
	n, err := touchScript.Run(ctx, s.owner.client, []string{s.owner.entriesKey(s.name), s.owner.metaKey(s.name)}, key, meta).Int()
	if err != nil {
		return false, wrapRedis(err)
	}
	return n == 1, nil
}

func (s *redisStore) Put(ctx context.Context, key string, ent Entry) error {
	now := s.owner.now().UnixNano()
	ent.Header = StorableHeader(ent.Header)
	if ent.StoredAt == 0 {
		ent.StoredAt = now
	}
	ent.LastAccess = now
	eb, err := encodeGob(ent)
	if err != nil {
		return fmt.Errorf("encode entry %s: %w", key, err)
	}
	mb, err := encodeGob(Meta{Key: key, Size: int64(len(eb)), StoredAt: ent.StoredAt, LastAccess: now})
	if err != nil {
		return fmt.Errorf("encode meta %s: %w", key, err)
	}
	_, err = s.owner.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.owner.storesKey(), s.name)
		pipe.HSet(ctx, s.owner.entriesKey(s.name), key, eb)
		pipe.HSet(ctx, s.owner.metaKey(s.name), key, mb)
		return nil
	})
	return wrapRedis(err)
}

func (s *redisStore) Delete(ctx context.Context, key string) (bool, error) {
	var removed *redis.IntCmd
	_, err := s.owner.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.HDel(ctx, s.owner.entriesKey(s.name), key)
		pipe.HDel(ctx, s.owner.metaKey(s.name), key)
		return nil
	})
	if err != nil {
		return false, wrapRedis(err)
	}
	return removed.Val() > 0, nil
}

func (s *redisStore) Entries(ctx context.Context) ([]Meta, error) {
	raw, err := s.owner.client.HGetAll(ctx, s.owner.metaKey(s.name)).Result()
	if err != nil {
		return nil, wrapRedis(err)
	}
	out := make([]Meta, 0, len(raw))
	for _, v := range raw {
		var m Meta
		if err := decodeGob([]byte(v), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func wrapRedis(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return ErrClosed
	}
	return err
}

package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNilClient = errors.New("genstore: nil redis client")

// bumpScript increments a generation and, when ARGV[1] > 0, refreshes the
// key's idle lifetime in the same round-trip. A pipeline could leave a counter
// without its expiry if the connection dropped between the two commands.
var bumpScript = redis.NewScript(`
local g = redis.call("INCR", KEYS[1])
local ttl = tonumber(ARGV[1])
if ttl > 0 then
	redis.call("PEXPIRE", KEYS[1], ttl)
end
return g
`)

// RedisOptions configure a Redis generation store.
type RedisOptions struct {
	// Namespace separates independent caches sharing one Redis. "" => "default".
	Namespace string
	// TTL bounds how long a generation key lives after its last Bump. An
	// expired key reads as 0 again, which invalidates triggers observed at a
	// higher generation. <= 0 keeps keys forever.
	TTL time.Duration
}

// Redis shares generations across processes and survives restarts, so one
// replica's Bump invalidates dependent entries in every replica's cache.
type Redis struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ GenStore = (*Redis)(nil)

// NewRedis wraps client. The caller keeps ownership of client.
func NewRedis(client redis.UniversalClient, opts RedisOptions) (*Redis, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	ns := opts.Namespace
	if ns == "" {
		ns = "default"
	}
	return &Redis{rdb: client, prefix: "gen:" + ns + ":", ttl: opts.TTL}, nil
}

func (s *Redis) redisKey(k string) string { return s.prefix + k }

func (s *Redis) Snapshot(ctx context.Context, key string) (uint64, error) {
	res, err := s.rdb.Get(ctx, s.redisKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return parseGen(key, res)
}

// SnapshotMany reads every key with one MGET.
func (s *Redis) SnapshotMany(ctx context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	rk := make([]string, len(keys))
	for i, k := range keys {
		rk[i] = s.redisKey(k)
	}
	vals, err := s.rdb.MGet(ctx, rk...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		g, err := parseGen(keys[i], v)
		if err != nil {
			return nil, err
		}
		out[keys[i]] = g
	}
	return out, nil
}

func (s *Redis) Bump(ctx context.Context, key string) (uint64, error) {
	return bumpScript.Run(ctx, s.rdb, []string{s.redisKey(key)}, s.ttl.Milliseconds()).Uint64()
}

// Cleanup is a no-op; Redis expires keys itself when a TTL is set.
func (s *Redis) Cleanup(time.Duration) {}

// Close does not close the client.
func (s *Redis) Close(context.Context) error { return nil }

// parseGen converts a GET/MGET reply into a generation. nil is a missing key.
func parseGen(key string, v any) (uint64, error) {
	var str string
	switch vv := v.(type) {
	case nil:
		return 0, nil
	case string:
		str = vv
	case []byte:
		str = string(vv)
	default:
		return 0, fmt.Errorf("genstore: %s: unexpected reply %T", key, v)
	}
	g, err := strconv.ParseUint(str, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: parse %s: %w", key, err)
	}
	return g, nil
}

// Package redis keeps spilled frames in Redis, so demoted values outlive the
// process and are shared by every replica pointing at the same server.
package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/expcache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // true only if the provider exclusively owns Client
	// MaxValueBytes rejects larger frames with ok=false instead of sending
	// them. 0 => no limit.
	MaxValueBytes int
}

// Redis is a spill provider. Promotion uses GETDEL so a frame is revived by
// at most one replica.
type Redis struct {
	rdb      goredis.UniversalClient
	owned    bool
	maxValue int
}

var (
	_ pr.Provider = (*Redis)(nil)
	_ pr.Taker    = (*Redis)(nil)
)

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, owned: cfg.CloseClient, maxValue: cfg.MaxValueBytes}, nil
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return reply(p.rdb.Get(ctx, key))
}

// Take reads and deletes key atomically.
func (p *Redis) Take(ctx context.Context, key string) ([]byte, bool, error) {
	return reply(p.rdb.GetDel(ctx, key))
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	if p.maxValue > 0 && len(value) > p.maxValue {
		return false, nil
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, key).Err()
}

// Close releases the client only when the provider owns it.
func (p *Redis) Close(context.Context) error {
	if !p.owned {
		return nil
	}
	if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return err
	}
	return nil
}

func reply(cmd *goredis.StringCmd) ([]byte, bool, error) {
	b, err := cmd.Bytes()
	switch {
	case errors.Is(err, goredis.Nil):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	return b, true, nil
}

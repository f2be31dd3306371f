package identity

import (
	"context"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Denylist records revoked token IDs until their expiry.
type Denylist interface {
	Add(ctx context.Context, jti string, until time.Time) error
	Contains(ctx context.Context, jti string) (bool, error)
}

type MemoryDenylist struct {
	mu  sync.Mutex
	m   map[string]time.Time
	now func() time.Time
}

func NewMemoryDenylist() *MemoryDenylist {
	return &MemoryDenylist{m: map[string]time.Time{}, now: time.Now}
}

func (d *MemoryDenylist) Add(_ context.Context, jti string, until time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, exp := range d.m {
		if !exp.After(now) {
			delete(d.m, k)
		}
	}
	d.m[jti] = until
	return nil
}

func (d *MemoryDenylist) Contains(_ context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.m[jti]
	return ok && exp.After(d.now()), nil
}

// RedisDenylist shares revocations across gateway replicas.
type RedisDenylist struct {
	rdb    *goredis.Client
	prefix string
}

func NewRedisDenylist(rdb *goredis.Client) *RedisDenylist {
	return &RedisDenylist{rdb: rdb, prefix: "schooltests:revoked:"}
}

// DialRedis connects and pings, closing the client on failure.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (d *RedisDenylist) Add(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.rdb.Set(ctx, d.prefix+jti, 1, ttl).Err()
}

func (d *RedisDenylist) Contains(ctx context.Context, jti string) (bool, error) {
	n, err := d.rdb.Exists(ctx, d.prefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Package redisrepo keeps the session in Redis so several processes can share it.
package redisrepo

import (
	"context"
	"errors"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/jrsteele09/militex-client/session"
)

var _ session.Repo = (*Repo)(nil)

type Repo struct {
	rdb    redis.UniversalClient
	prefix string
	owns   bool
}

// Option defines a function type to modify the Repo instance.
type Option func(*Repo)

// WithPrefix namespaces every key, e.g. per device or per user.
func WithPrefix(prefix string) Option {
	return func(r *Repo) {
		r.prefix = prefix
	}
}

// Connect parses a redis:// URL, pings the server and returns a repo that owns the client.
func Connect(ctx context.Context, url string, options ...Option) (*Repo, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "[redisrepo.Connect] invalid redis url")
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, pkgerrors.Wrap(err, "[redisrepo.Connect] ping")
	}

	r := New(rdb, options...)
	r.owns = true
	return r, nil
}

// New wraps an existing client. The caller keeps ownership of rdb.
func New(rdb redis.UniversalClient, options ...Option) *Repo {
	r := &Repo{rdb: rdb}
	for _, opt := range options {
		opt(r)
	}
	return r
}

func (r *Repo) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.rdb.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, pkgerrors.Wrap(err, "[redisrepo.Get]")
	}
	return value, true, nil
}

func (r *Repo) Set(ctx context.Context, key, value string) error {
	return pkgerrors.Wrap(r.rdb.Set(ctx, r.prefix+key, value, 0).Err(), "[redisrepo.Set]")
}

// Delete issues a single DEL, which Redis applies atomically.
func (r *Repo) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = r.prefix + key
	}
	return pkgerrors.Wrap(r.rdb.Del(ctx, prefixed...).Err(), "[redisrepo.Delete]")
}

func (r *Repo) Close() error {
	if !r.owns {
		return nil
	}
	return r.rdb.Close()
}

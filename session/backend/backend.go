// Package backend opens the session.Repo selected by configuration.
package backend

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"github.com/jrsteele09/militex-client/internal/config"
	apperrors "github.com/jrsteele09/militex-client/internal/errors"
	"github.com/jrsteele09/militex-client/session"
	"github.com/jrsteele09/militex-client/session/filerepo"
	"github.com/jrsteele09/militex-client/session/redisrepo"
	"github.com/jrsteele09/militex-client/session/sqliterepo"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open returns the configured repo and a closer the caller must call on shutdown.
func Open(ctx context.Context, cfg config.StorageConfig) (session.Repo, io.Closer, error) {
	switch cfg.GetStore() {
	case config.StoreMemory:
		return session.NewInMemoryRepo(), nopCloser{}, nil

	case config.StoreFile:
		r, err := filerepo.New(cfg.GetStorePath(), filerepo.WithPassphrase(cfg.GetStorePassphrase()))
		if err != nil {
			return nil, nil, errors.Wrap(err, "[backend.Open] file")
		}
		return r, nopCloser{}, nil

	case config.StoreSQLite:
		r, err := sqliterepo.New(cfg.GetStorePath())
		if err != nil {
			return nil, nil, errors.Wrap(err, "[backend.Open] sqlite")
		}
		return r, r, nil

	case config.StoreRedis:
		r, err := redisrepo.Connect(ctx, cfg.GetRedisURL())
		if err != nil {
			return nil, nil, errors.Wrap(err, "[backend.Open] redis")
		}
		return r, r, nil
	}
	return nil, nil, errors.Wrapf(apperrors.ErrUnsupported, "[backend.Open] store %q", cfg.GetStore())
}

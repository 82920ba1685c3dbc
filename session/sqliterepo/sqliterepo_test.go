package sqliterepo_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/militex-client/session"
	"github.com/jrsteele09/militex-client/session/repotest"
	"github.com/jrsteele09/militex-client/session/sqliterepo"
)

func TestRepo_InMemory(t *testing.T) {
	repotest.Run(t, func(t *testing.T) session.Repo {
		r, err := sqliterepo.NewInMemory()
		require.NoError(t, err)
		t.Cleanup(func() { r.Close() })
		return r
	})
}

func TestRepo_FilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "session.db")

	r, err := sqliterepo.New(path)
	require.NoError(t, err)
	require.NoError(t, r.Set(ctx, session.KeyAccessToken, "kept"))
	require.NoError(t, r.Close())

	reopened, err := sqliterepo.New(path)
	require.NoError(t, err)
	t.Cleanup(func() { reopened.Close() })

	value, ok, err := reopened.Get(ctx, session.KeyAccessToken)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "kept", value)
}

// Package repotest holds the behaviour every session.Repo backend must share.
package repotest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/militex-client/session"
)

// Run exercises a Repo implementation. newRepo must return an empty repo.
func Run(t *testing.T, newRepo func(t *testing.T) session.Repo) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		r := newRepo(t)
		value, ok, err := r.Get(ctx, session.KeyAccessToken)
		require.NoError(t, err)
		require.False(t, ok)
		require.Empty(t, value)
	})

	t.Run("set then get", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Set(ctx, session.KeyAccessToken, "a.b.c"))
		value, ok, err := r.Get(ctx, session.KeyAccessToken)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "a.b.c", value)
	})

	t.Run("set overwrites", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Set(ctx, session.KeyRefreshToken, "first"))
		require.NoError(t, r.Set(ctx, session.KeyRefreshToken, "second"))
		value, _, err := r.Get(ctx, session.KeyRefreshToken)
		require.NoError(t, err)
		require.Equal(t, "second", value)
	})

	t.Run("delete many", func(t *testing.T) {
		r := newRepo(t)
		for _, key := range session.AllKeys {
			require.NoError(t, r.Set(ctx, key, "v-"+key))
		}
		require.NoError(t, r.Delete(ctx, session.AllKeys...))
		for _, key := range session.AllKeys {
			_, ok, err := r.Get(ctx, key)
			require.NoError(t, err)
			require.False(t, ok, key)
		}
	})

	t.Run("delete missing is not an error", func(t *testing.T) {
		r := newRepo(t)
		require.NoError(t, r.Delete(ctx, "never-set"))
		require.NoError(t, r.Delete(ctx))
	})

	t.Run("values are opaque strings", func(t *testing.T) {
		r := newRepo(t)
		raw := `{"username":"ünïcode","note":"line\nbreak"}`
		require.NoError(t, r.Set(ctx, session.KeyUser, raw))
		value, ok, err := r.Get(ctx, session.KeyUser)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, raw, value)
	})
}

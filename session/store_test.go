package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/militex-client/internal/utils"
	"github.com/jrsteele09/militex-client/session"
	"github.com/jrsteele09/militex-client/session/repotest"
	"github.com/jrsteele09/militex-client/users"
)

func TestInMemoryRepo(t *testing.T) {
	repotest.Run(t, func(t *testing.T) session.Repo {
		return session.NewInMemoryRepo()
	})
}

func TestStore_Tokens(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(session.NewInMemoryRepo())

	require.NoError(t, store.SetTokens(ctx, "access-1", "refresh-1"))
	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "access-1", access)

	t.Run("empty refresh keeps existing", func(t *testing.T) {
		require.NoError(t, store.SetTokens(ctx, "access-2", ""))
		refresh, err := store.RefreshToken(ctx)
		require.NoError(t, err)
		require.Equal(t, "refresh-1", refresh)
	})

	t.Run("setting empty access deletes it", func(t *testing.T) {
		require.NoError(t, store.SetAccessToken(ctx, ""))
		access, err := store.AccessToken(ctx)
		require.NoError(t, err)
		require.Empty(t, access)
	})
}

func TestStore_User(t *testing.T) {
	ctx := context.Background()
	store := session.NewStore(session.NewInMemoryRepo())

	user, err := store.User(ctx)
	require.NoError(t, err)
	require.Nil(t, user)

	profile := &users.UserProfile{
		Username:    "jdoe",
		Email:       "jdoe@example.com",
		PhoneNumber: utils.Ptr("+15555551234"),
		IsMilitary:  true,
	}
	require.NoError(t, store.SetUser(ctx, profile))

	cached, err := store.User(ctx)
	require.NoError(t, err)
	require.Equal(t, profile, cached)

	require.NoError(t, store.SetUser(ctx, nil))
	cached, err = store.User(ctx)
	require.NoError(t, err)
	require.Nil(t, cached)
}

func TestStore_CorruptUserIsDiscarded(t *testing.T) {
	ctx := context.Background()
	repo := session.NewInMemoryRepo()
	require.NoError(t, repo.Set(ctx, session.KeyUser, "{not json"))

	store := session.NewStore(repo)
	user, err := store.User(ctx)
	require.NoError(t, err)
	require.Nil(t, user)

	_, ok, err := repo.Get(ctx, session.KeyUser)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStore_ClearEmptiesAllKeys(t *testing.T) {
	ctx := context.Background()
	repo := session.NewInMemoryRepo()
	store := session.NewStore(repo)

	require.NoError(t, store.SetTokens(ctx, "access", "refresh"))
	require.NoError(t, store.SetUser(ctx, &users.UserProfile{Username: "jdoe"}))
	require.Equal(t, 3, repo.Len())

	require.NoError(t, store.Clear(ctx))
	require.Zero(t, repo.Len())

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.True(t, snap.Empty())
}

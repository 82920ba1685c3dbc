package session

import "context"

// Keys under which the session is persisted. They match the browser client so a
// repository can be shared with it.
const (
	KeyAccessToken  = "militex_token"
	KeyRefreshToken = "militex_refresh_token"
	KeyUser         = "militex_user"
)

// AllKeys lists every key owned by the session.
var AllKeys = []string{KeyAccessToken, KeyRefreshToken, KeyUser}

// Repo is a durable string map. Implementations enforce no expiry.
type Repo interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Delete removes all keys in one operation. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

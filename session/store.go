package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/militex-client/users"
)

// Session is a point-in-time copy of everything the Store holds.
type Session struct {
	AccessToken  string
	RefreshToken string
	User         *users.UserProfile
}

// Empty reports whether nothing is stored.
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.User == nil
}

// Store is the single owner of the persisted session. It is safe for concurrent use.
type Store struct {
	repo   Repo
	mu     sync.Mutex
	logger zerolog.Logger
}

// StoreOption defines a function type to modify the Store instance.
type StoreOption func(*Store)

// WithLogger sets the logger used for recoverable storage problems.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(repo Repo, options ...StoreOption) *Store {
	if repo == nil {
		repo = NewInMemoryRepo()
	}
	s := &Store{
		repo:   repo,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *Store) AccessToken(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyAccessToken)
}

func (s *Store) SetAccessToken(ctx context.Context, access string) error {
	return s.setString(ctx, KeyAccessToken, access)
}

func (s *Store) RefreshToken(ctx context.Context) (string, error) {
	return s.getString(ctx, KeyRefreshToken)
}

func (s *Store) SetRefreshToken(ctx context.Context, refresh string) error {
	return s.setString(ctx, KeyRefreshToken, refresh)
}

// SetTokens stores both tokens. An empty refresh token leaves the stored one untouched.
func (s *Store) SetTokens(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.put(ctx, KeyAccessToken, access); err != nil {
		return err
	}
	if refresh == "" {
		return nil
	}
	return s.put(ctx, KeyRefreshToken, refresh)
}

// User returns the cached profile, or nil when none is cached. An entry that no longer
// decodes is dropped and reported as absent.
func (s *Store) User(ctx context.Context) (*users.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user(ctx)
}

func (s *Store) SetUser(ctx context.Context, user *users.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user == nil {
		return errors.Wrap(s.repo.Delete(ctx, KeyUser), "[Store.SetUser] delete")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, "[Store.SetUser] json.Marshal")
	}
	return s.put(ctx, KeyUser, string(data))
}

// Snapshot reads all three entries under one lock.
func (s *Store) Snapshot(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		sess Session
		err  error
	)
	if sess.AccessToken, _, err = s.repo.Get(ctx, KeyAccessToken); err != nil {
		return Session{}, errors.Wrap(err, "[Store.Snapshot] access token")
	}
	if sess.RefreshToken, _, err = s.repo.Get(ctx, KeyRefreshToken); err != nil {
		return Session{}, errors.Wrap(err, "[Store.Snapshot] refresh token")
	}
	if sess.User, err = s.user(ctx); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Clear removes the access token, refresh token and cached user in one repository call.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.Delete(ctx, AllKeys...); err != nil {
		return errors.Wrap(err, "[Store.Clear] repo.Delete")
	}
	return nil
}

func (s *Store) user(ctx context.Context) (*users.UserProfile, error) {
	raw, ok, err := s.repo.Get(ctx, KeyUser)
	if err != nil {
		return nil, errors.Wrap(err, "[Store.User] repo.Get")
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var user users.UserProfile
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		s.logger.Warn().Err(err).Str("key", KeyUser).Msg("discarding unreadable cached user")
		_ = s.repo.Delete(ctx, KeyUser)
		return nil, nil
	}
	return &user, nil
}

func (s *Store) getString(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, _, err := s.repo.Get(ctx, key)
	if err != nil {
		return "", errors.Wrapf(err, "[Store] get %s", key)
	}
	return value, nil
}

func (s *Store) setString(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, key, value)
}

func (s *Store) put(ctx context.Context, key, value string) error {
	if value == "" {
		return errors.Wrapf(s.repo.Delete(ctx, key), "[Store] delete %s", key)
	}
	if err := s.repo.Set(ctx, key, value); err != nil {
		return errors.Wrapf(err, "[Store] set %s", key)
	}
	return nil
}

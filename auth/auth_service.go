package auth

import (
	"context"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/militex-client/apiclient"
	apperrors "github.com/jrsteele09/militex-client/internal/errors"
	"github.com/jrsteele09/militex-client/session"
	"github.com/jrsteele09/militex-client/token"
	"github.com/jrsteele09/militex-client/users"
)

// Service implements login, logout, token refresh and profile access on top of the
// session store owned by the API client.
type Service struct {
	client *apiclient.Client
	store  *session.Store
	logger zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

func NewService(client *apiclient.Client, options ...ServiceOption) *Service {
	s := &Service{
		client: client,
		store:  client.Store(),
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Login replaces any existing session with one for username. On failure nothing is
// stored and the error is an *AuthenticationError, or a *ValidationError when the
// input is incomplete.
func (s *Service) Login(ctx context.Context, username, password string) (*users.UserProfile, error) {
	creds := users.Credentials{Username: username, Password: password}
	if fieldErrs := users.Validate(creds); fieldErrs != nil {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	if err := s.store.Clear(ctx); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] clear session")
	}
	s.ensureCSRF(ctx)

	var pair token.Pair
	err := s.client.Do(ctx, &apiclient.Request{
		Method:   http.MethodPost,
		Path:     apiclient.RouteToken,
		Body:     creds,
		SkipAuth: true,
	}, &pair)
	if err != nil {
		authErr := newAuthenticationError(err)
		s.logger.Info().Str("username", username).Str("kind", authErr.Kind.String()).Int("status", authErr.Status).Msg("login failed")
		return nil, authErr
	}
	if pair.Access == "" || pair.Refresh == "" {
		return nil, &AuthenticationError{Kind: KindUnknown, Err: errors.Wrap(apperrors.ErrInvalidToken, "token response missing access or refresh")}
	}

	if err := s.store.SetTokens(ctx, pair.Access, pair.Refresh); err != nil {
		return nil, errors.Wrap(err, "[Service.Login] store tokens")
	}

	profile, err := s.FetchCurrentUser(ctx)
	if err != nil {
		if clearErr := s.store.Clear(ctx); clearErr != nil {
			s.logger.Error().Err(clearErr).Msg("clearing session after failed profile fetch")
		}
		return nil, err
	}
	s.logger.Info().Str("username", profile.Username).Msg("logged in")
	return profile, nil
}

// Logout drops the local session. Tokens are stateless so the server is not called.
func (s *Service) Logout(ctx context.Context) error {
	return errors.Wrap(s.store.Clear(ctx), "[Service.Logout]")
}

// CurrentUser returns the cached profile, fetching it when nothing is cached.
func (s *Service) CurrentUser(ctx context.Context) (*users.UserProfile, error) {
	cached, err := s.store.User(ctx)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}
	return s.FetchCurrentUser(ctx)
}

// FetchCurrentUser loads the profile from the server and replaces the cached copy.
// It needs a valid access token. If the server still rejects the session after the
// client's single refresh attempt, the session is dropped and a SessionExpired
// AuthenticationError is returned.
func (s *Service) FetchCurrentUser(ctx context.Context) (*users.UserProfile, error) {
	if !s.IsAuthenticated(ctx) {
		return nil, apperrors.ErrNotAuthenticated
	}

	var profile users.UserProfile
	if err := s.client.Get(ctx, apiclient.RouteUsersMe, nil, &profile); err != nil {
		return nil, s.handleSessionError(ctx, err, "[Service.FetchCurrentUser]")
	}
	if err := s.store.SetUser(ctx, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// RefreshToken exchanges the refresh token for a new access token. Any failure ends
// the session, except cancellation of ctx, which leaves the store untouched.
func (s *Service) RefreshToken(ctx context.Context) (string, error) {
	access, err := s.client.RefreshAccessToken(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", errors.Wrap(ctxErr, "[Service.RefreshToken]")
		}
		if logoutErr := s.Logout(ctx); logoutErr != nil {
			s.logger.Error().Err(logoutErr).Msg("logout after failed refresh")
		}
		return "", sessionExpiredError(err)
	}
	return access, nil
}

// IsTokenValid reports whether rawToken decodes and has not expired. Undecodable
// tokens are invalid.
func (s *Service) IsTokenValid(rawToken string) bool {
	return token.IsValid(rawToken)
}

func (s *Service) IsAuthenticated(ctx context.Context) bool {
	access, err := s.store.AccessToken(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reading access token")
		return false
	}
	return s.IsTokenValid(access)
}

// Register creates an account. It does not log in.
func (s *Service) Register(ctx context.Context, reg users.Registration) (*users.UserProfile, error) {
	if fieldErrs := users.Validate(reg); fieldErrs != nil {
		return nil, &ValidationError{Fields: fieldErrs}
	}
	s.ensureCSRF(ctx)

	var profile users.UserProfile
	err := s.client.Do(ctx, &apiclient.Request{
		Method:   http.MethodPost,
		Path:     apiclient.RouteUsers,
		Body:     reg,
		SkipAuth: true,
	}, &profile)
	if err != nil {
		if fields := apiclient.FieldErrorsOf(err); fields != nil && apiclient.StatusOf(err) == http.StatusBadRequest {
			return nil, &ValidationError{Fields: fields}
		}
		return nil, newAuthenticationError(err)
	}
	return &profile, nil
}

// UpdateProfile applies a partial update to the current user and caches the result.
func (s *Service) UpdateProfile(ctx context.Context, update users.ProfileUpdate) (*users.UserProfile, error) {
	if fieldErrs := users.Validate(update); fieldErrs != nil {
		return nil, &ValidationError{Fields: fieldErrs}
	}
	if !s.IsAuthenticated(ctx) {
		return nil, apperrors.ErrNotAuthenticated
	}
	s.ensureCSRF(ctx)

	var profile users.UserProfile
	if err := s.client.Patch(ctx, apiclient.RouteUsersMe, update, &profile); err != nil {
		if fields := apiclient.FieldErrorsOf(err); fields != nil && apiclient.StatusOf(err) == http.StatusBadRequest {
			return nil, &ValidationError{Fields: fields}
		}
		return nil, s.handleSessionError(ctx, err, "[Service.UpdateProfile]")
	}
	if err := s.store.SetUser(ctx, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

// TokenSource exposes the session as an oauth2.TokenSource. An expired access token is
// refreshed on demand.
func (s *Service) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, service: s}
}

type sessionTokenSource struct {
	ctx     context.Context
	service *Service
}

func (ts *sessionTokenSource) Token() (*oauth2.Token, error) {
	access, err := ts.service.store.AccessToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	if !ts.service.IsTokenValid(access) {
		if access, err = ts.service.RefreshToken(ts.ctx); err != nil {
			return nil, err
		}
	}
	refresh, err := ts.service.store.RefreshToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	return token.ToOAuth2(access, refresh), nil
}

// handleSessionError turns a rejected session into logout plus SessionExpired. Other
// failures are returned wrapped and leave the session alone.
func (s *Service) handleSessionError(ctx context.Context, err error, op string) error {
	if errors.Is(err, apperrors.ErrSessionExpired) || apiclient.StatusOf(err) == http.StatusUnauthorized {
		if logoutErr := s.Logout(ctx); logoutErr != nil {
			s.logger.Error().Err(logoutErr).Msg("logout after rejected session")
		}
		return sessionExpiredError(err)
	}
	return errors.Wrap(err, op)
}

func (s *Service) ensureCSRF(ctx context.Context) {
	if err := s.client.EnsureCSRF(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("csrf token unavailable")
	}
}

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	apperrors "github.com/jrsteele09/militex-client/internal/errors"
	"github.com/jrsteele09/militex-client/session"
	"github.com/jrsteele09/militex-client/token"
)

const maxResponseBytes = 10 << 20

// Navigator is told when a failed refresh ends the session. CurrentRoute lets the
// client skip the redirect when the user is already on the login route.
type Navigator interface {
	CurrentRoute() string
	RedirectToLogin()
}

type nopNavigator struct{}

func (nopNavigator) CurrentRoute() string { return "" }
func (nopNavigator) RedirectToLogin()     {}

// Client sends requests to the Militex API on behalf of the session held in store.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	store      *session.Store
	navigator  Navigator
	loginRoute string
	logger     zerolog.Logger

	coalesceRefresh bool
	refreshGroup    singleflight.Group

	csrfMu    sync.RWMutex
	csrfToken string

	newRequestID func() string
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client. The client is copied, so a cookie
// jar or timeout added by New never changes hc itself.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout, whichever http.Client is in use.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = d
	}
}

func WithNavigator(n Navigator) ClientOption {
	return func(c *Client) {
		c.navigator = n
	}
}

// WithLoginRoute sets the route on which a failed refresh does not redirect.
func WithLoginRoute(route string) ClientOption {
	return func(c *Client) {
		c.loginRoute = route
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRefreshCoalescing makes concurrent refreshes share one call to the refresh endpoint.
// Off by default: every 401 refreshes independently. The shared call is not cancelled
// with the caller that started it; a cancelled caller stops waiting and leaves the
// session alone.
func WithRefreshCoalescing(enabled bool) ClientOption {
	return func(c *Client) {
		c.coalesceRefresh = enabled
	}
}

// WithRequestIDFunc sets the generator for X-Request-ID (primarily for testing).
func WithRequestIDFunc(fn func() string) ClientOption {
	return func(c *Client) {
		c.newRequestID = fn
	}
}

func New(baseURL string, store *session.Store, options ...ClientOption) (*Client, error) {
	if store == nil {
		return nil, errors.New("[apiclient.New] store is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[apiclient.New] invalid base url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Errorf("[apiclient.New] base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		baseURL:      u,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		store:        store,
		navigator:    nopNavigator{},
		loginRoute:   "/login",
		logger:       log.Logger,
		newRequestID: uuid.NewString,
	}
	for _, opt := range options {
		opt(c)
	}

	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Wrap(err, "[apiclient.New] cookiejar.New")
		}
		hc.Jar = jar
	}
	c.httpClient = &hc
	return c, nil
}

func (c *Client) Store() *session.Store {
	return c.store
}

func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, &Request{Method: http.MethodDelete, Path: path}, nil)
}

// Upload POSTs a multipart body.
func (c *Client) Upload(ctx context.Context, path string, upload *Upload, out any) error {
	return c.Do(ctx, &Request{Method: http.MethodPost, Path: path, Upload: upload}, out)
}

// Do sends req and decodes a successful JSON response into out (which may be nil).
//
// A 401 on an authenticated, not yet retried request triggers one refresh. If the
// refresh succeeds the request is re-sent once with Retried set; if it fails the
// session is cleared, the navigator is sent to login and an error wrapping
// ErrSessionExpired is returned.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	status, body, target, err := c.send(ctx, req)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && !req.SkipAuth && !req.Retried {
		return c.refreshAndRetry(ctx, req, out, newHTTPError(req.Method, target, status, body))
	}
	if status >= http.StatusBadRequest {
		return newHTTPError(req.Method, target, status, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "[Client.Do] decode %s %s", req.Method, target)
	}
	return nil
}

func (c *Client) refreshAndRetry(ctx context.Context, req *Request, out any, original *HTTPError) error {
	refresh, err := c.store.RefreshToken(ctx)
	if err != nil {
		return err
	}
	if refresh == "" {
		return original
	}

	if _, err := c.RefreshAccessToken(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Wrap(ctxErr, "[Client.refreshAndRetry]")
		}
		c.logger.Info().Err(err).Str("url", original.URL).Msg("token refresh after 401 failed")
		c.expireSession(ctx)
		return fmt.Errorf("%w: %w", apperrors.ErrSessionExpired, err)
	}
	return c.Do(ctx, req.retry(), out)
}

// RefreshAccessToken exchanges the stored refresh token for a new access token and
// stores it, along with a rotated refresh token when the server sends one.
func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	if !c.coalesceRefresh {
		return c.refreshAccessToken(ctx)
	}
	shared := c.refreshGroup.DoChan("refresh", func() (any, error) {
		return c.refreshAccessToken(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "[Client.RefreshAccessToken]")
	case res := <-shared:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) refreshAccessToken(ctx context.Context) (string, error) {
	refresh, err := c.store.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", apperrors.ErrNoRefreshToken
	}

	if err := c.EnsureCSRF(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("refreshing without csrf token")
	}

	var resp token.RefreshResponse
	err = c.Do(ctx, &Request{
		Method:   http.MethodPost,
		Path:     RouteTokenRefresh,
		Body:     token.RefreshRequest{Refresh: refresh},
		SkipAuth: true,
	}, &resp)
	if err != nil {
		return "", errors.Wrap(err, "[Client.RefreshAccessToken]")
	}
	if resp.Access == "" {
		return "", errors.Wrap(apperrors.ErrInvalidToken, "[Client.RefreshAccessToken] empty access token")
	}
	if err := c.store.SetTokens(ctx, resp.Access, resp.Refresh); err != nil {
		return "", err
	}
	c.logger.Debug().Bool("rotated", resp.Refresh != "").Msg("access token refreshed")
	return resp.Access, nil
}

func (c *Client) expireSession(ctx context.Context) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Msg("clearing expired session")
	}
	if c.navigator.CurrentRoute() == c.loginRoute {
		return
	}
	c.navigator.RedirectToLogin()
}

// send performs one HTTP exchange and returns the status, the (size-limited) body and the target URL.
func (c *Client) send(ctx context.Context, req *Request) (int, []byte, string, error) {
	target := c.url(req)
	payload, contentType, err := req.encode()
	if err != nil {
		return 0, nil, target, err
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return 0, nil, target, errors.Wrap(err, "[Client.send] NewRequest")
	}
	for name, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(name, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")

	requestID := c.newRequestID()
	httpReq.Header.Set(RequestIDHeader, requestID)

	if !req.SkipAuth {
		access, err := c.store.AccessToken(ctx)
		if err != nil {
			return 0, nil, target, err
		}
		if access != "" {
			httpReq.Header.Set("Authorization", "Bearer "+access)
		}
	}
	if req.isUnsafe() {
		if csrf := c.CSRFToken(); csrf != "" {
			httpReq.Header.Set(CSRFHeaderName, csrf)
		}
	}

	c.logRequest(req, target, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, target, errors.Wrapf(ctxErr, "[Client.send] %s %s", req.Method, target)
		}
		c.logger.Warn().Err(err).Str("method", req.Method).Str("url", target).Msg("api request failed")
		return 0, nil, target, &NetworkError{Method: req.Method, URL: target, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, target, &NetworkError{Method: req.Method, URL: target, Err: err}
	}

	c.logger.Debug().
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("api response")
	return resp.StatusCode, respBody, target, nil
}

// logRequest never logs bodies. Uploads are summarised by file and field counts.
func (c *Client) logRequest(req *Request, target, requestID string) {
	ev := c.logger.Debug().
		Str("method", req.Method).
		Str("url", target).
		Str("request_id", requestID)
	if req.Upload != nil {
		ev = ev.Int("files", len(req.Upload.Files)).Int("fields", len(req.Upload.Fields))
	}
	if req.Retried {
		ev = ev.Bool("retried", true)
	}
	ev.Msg("api request")
}

func (c *Client) url(req *Request) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(req.Path, "/")
	u.RawPath = ""
	u.RawQuery = ""
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	return u.String()
}

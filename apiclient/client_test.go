package apiclient_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/militex-client/apiclient"
	"github.com/jrsteele09/militex-client/internal/apistub"
	apperrors "github.com/jrsteele09/militex-client/internal/errors"
	"github.com/jrsteele09/militex-client/session"
	"github.com/jrsteele09/militex-client/users"
)

type fakeNavigator struct {
	mu        sync.Mutex
	route     string
	redirects int
}

func (n *fakeNavigator) CurrentRoute() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

func (n *fakeNavigator) RedirectToLogin() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirects++
}

func (n *fakeNavigator) Redirects() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.redirects
}

type fixture struct {
	stub   *apistub.Server
	srv    *httptest.Server
	store  *session.Store
	client *apiclient.Client
	nav    *fakeNavigator
}

func newFixture(t *testing.T, stubOpts []apistub.Option, clientOpts ...apiclient.ClientOption) *fixture {
	t.Helper()
	stub := apistub.New(stubOpts...)
	require.NoError(t, stub.AddUser("sgt.pepper", "Lonely4Hearts", users.UserProfile{Email: "pepper@example.com", IsMilitary: true}))
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	nav := &fakeNavigator{}
	store := session.NewStore(session.NewInMemoryRepo())
	opts := append([]apiclient.ClientOption{apiclient.WithNavigator(nav), apiclient.WithLogger(zerolog.Nop())}, clientOpts...)
	client, err := apiclient.New(srv.URL, store, opts...)
	require.NoError(t, err)
	return &fixture{stub: stub, srv: srv, store: store, client: client, nav: nav}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	pair, err := f.stub.IssueTokens("sgt.pepper")
	require.NoError(t, err)
	require.NoError(t, f.store.SetTokens(context.Background(), pair.Access, pair.Refresh))
}

func TestNew(t *testing.T) {
	store := session.NewStore(nil)

	_, err := apiclient.New("ftp://example.com", store)
	require.Error(t, err)

	_, err = apiclient.New("http://example.com", nil)
	require.Error(t, err)

	c, err := apiclient.New("https://api.militex.example/", store)
	require.NoError(t, err)
	require.Equal(t, "https://api.militex.example", c.BaseURL())
	require.Same(t, store, c.Store())
}

func TestClient_AttachesBearerAndRequestID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, apiclient.WithRequestIDFunc(func() string { return "req-42" }))
	f.login(t)

	var profile users.UserProfile
	require.NoError(t, f.client.Get(ctx, apiclient.RouteUsersMe, nil, &profile))
	require.Equal(t, "sgt.pepper", profile.Username)

	access, err := f.store.AccessToken(ctx)
	require.NoError(t, err)
	header := f.stub.LastHeader(apistub.RouteUsersMe)
	require.Equal(t, "Bearer "+access, header.Get("Authorization"))
	require.Equal(t, "req-42", header.Get(apiclient.RequestIDHeader))
}

func TestClient_AnonymousRequestHasNoBearer(t *testing.T) {
	f := newFixture(t, nil)
	err := f.client.Get(context.Background(), apiclient.RouteUsersMe, nil, nil)
	require.Equal(t, http.StatusUnauthorized, apiclient.StatusOf(err))
	require.Empty(t, f.stub.LastHeader(apistub.RouteUsersMe).Get("Authorization"))
	require.Zero(t, f.stub.Calls(apistub.RouteTokenRefresh))
}

func TestClient_RefreshesOnceOn401(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.login(t)
	before, err := f.store.AccessToken(ctx)
	require.NoError(t, err)

	f.stub.RevokeAccessTokens()

	var profile users.UserProfile
	require.NoError(t, f.client.Get(ctx, apiclient.RouteUsersMe, nil, &profile))
	require.Equal(t, "sgt.pepper", profile.Username)
	require.Equal(t, 1, f.stub.Calls(apistub.RouteTokenRefresh))
	require.Equal(t, 2, f.stub.Calls(apistub.RouteUsersMe))

	after, err := f.store.AccessToken(ctx)
	require.NoError(t, err)
	require.NotEqual(t, before, after)
	require.Zero(t, f.nav.Redirects())
}

func TestClient_StoresRotatedRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []apistub.Option{apistub.WithRotatingRefresh(true)})
	f.login(t)
	before, err := f.store.RefreshToken(ctx)
	require.NoError(t, err)

	f.stub.RevokeAccessTokens()
	require.NoError(t, f.client.Get(ctx, apiclient.RouteUsersMe, nil, nil))

	after, err := f.store.RefreshToken(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, after)
	require.NotEqual(t, before, after)
}

func TestClient_401WithoutRefreshToken(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	pair, err := f.stub.IssueTokens("sgt.pepper")
	require.NoError(t, err)
	require.NoError(t, f.store.SetAccessToken(ctx, pair.Access))
	f.stub.RevokeAccessTokens()

	err = f.client.Get(ctx, apiclient.RouteUsersMe, nil, nil)
	var httpErr *apiclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnauthorized, httpErr.Status)
	require.Zero(t, f.stub.Calls(apistub.RouteTokenRefresh))
	require.Zero(t, f.nav.Redirects())
}

func TestClient_RefreshFailureExpiresSession(t *testing.T) {
	t.Run("clears store and redirects", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t, nil)
		f.login(t)
		require.NoError(t, f.store.SetUser(ctx, &users.UserProfile{Username: "sgt.pepper"}))
		f.stub.RevokeAccessTokens()
		f.stub.RevokeRefreshTokens()

		err := f.client.Get(ctx, apiclient.RouteUsersMe, nil, nil)
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
		require.Equal(t, 1, f.stub.Calls(apistub.RouteUsersMe))
		require.Equal(t, 1, f.nav.Redirects())

		snap, err := f.store.Snapshot(ctx)
		require.NoError(t, err)
		require.True(t, snap.Empty())
	})

	t.Run("no redirect on login route", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t, nil, apiclient.WithLoginRoute("/signin"))
		f.nav.route = "/signin"
		f.login(t)
		f.stub.RevokeAccessTokens()
		f.stub.RevokeRefreshTokens()

		err := f.client.Get(ctx, apiclient.RouteUsersMe, nil, nil)
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
		require.Zero(t, f.nav.Redirects())
	})

	t.Run("refresh server error", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t, nil)
		f.login(t)
		f.stub.RevokeAccessTokens()
		f.stub.FailNext(apistub.RouteTokenRefresh, http.StatusBadGateway)

		err := f.client.Get(ctx, apiclient.RouteUsersMe, nil, nil)
		require.ErrorIs(t, err, apperrors.ErrSessionExpired)
		require.Equal(t, http.StatusBadGateway, apiclient.StatusOf(err))
		require.Equal(t, 1, f.nav.Redirects())
	})
}

func TestClient_RetriedRequestIsNotRefreshedAgain(t *testing.T) {
	var meCalls, refreshCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiclient.RouteTokenRefresh, func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		_, _ = w.Write([]byte(`{"access":"fresh"}`))
	})
	mux.HandleFunc("GET "+apiclient.RouteUsersMe, func(w http.ResponseWriter, r *http.Request) {
		meCalls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"still no"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	store := session.NewStore(nil)
	require.NoError(t, store.SetTokens(ctx, "stale", "refresh"))
	nav := &fakeNavigator{}
	client, err := apiclient.New(srv.URL, store, apiclient.WithNavigator(nav), apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	err = client.Get(ctx, apiclient.RouteUsersMe, nil, nil)
	var httpErr *apiclient.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, "still no", httpErr.Detail)
	require.EqualValues(t, 1, refreshCalls.Load())
	require.EqualValues(t, 2, meCalls.Load())
	require.Zero(t, nav.Redirects())

	access, err := store.AccessToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "fresh", access)
}

func TestClient_CSRF(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []apistub.Option{apistub.WithCSRFRequired(true)})
	f.login(t)
	firstName := "Pepper"

	err := f.client.Patch(ctx, apiclient.RouteUsersMe, users.ProfileUpdate{FirstName: &firstName}, nil)
	require.Equal(t, http.StatusForbidden, apiclient.StatusOf(err))

	tok, err := f.client.FetchCSRF(ctx)
	require.NoError(t, err)
	require.Equal(t, f.stub.CSRFToken(), tok)
	require.Equal(t, tok, f.client.CSRFToken())

	var profile users.UserProfile
	require.NoError(t, f.client.Patch(ctx, apiclient.RouteUsersMe, users.ProfileUpdate{FirstName: &firstName}, &profile))
	require.Equal(t, "Pepper", profile.FirstName)
	require.Equal(t, tok, f.stub.LastHeader(apistub.RouteUsersMe).Get(apiclient.CSRFHeaderName))

	require.NoError(t, f.client.Get(ctx, apiclient.RouteUsersMe, nil, nil))
	require.Empty(t, f.stub.LastHeader(apistub.RouteUsersMe).Get(apiclient.CSRFHeaderName))
}

func TestClient_RefreshFetchesCSRF(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, []apistub.Option{apistub.WithCSRFRequired(true)})
	f.login(t)
	f.stub.RevokeAccessTokens()

	require.NoError(t, f.client.Get(ctx, apiclient.RouteUsersMe, nil, nil))
	require.Equal(t, 1, f.stub.Calls(apistub.RouteCSRF))
	require.Equal(t, f.stub.CSRFToken(), f.stub.LastHeader(apistub.RouteTokenRefresh).Get(apiclient.CSRFHeaderName))
	require.Empty(t, f.stub.LastHeader(apistub.RouteTokenRefresh).Get("Authorization"))
}

func TestClient_FieldErrors(t *testing.T) {
	f := newFixture(t, nil)
	err := f.client.Post(context.Background(), apiclient.RouteUsers, map[string]string{"username": "x", "email": "nope"}, nil)
	require.Equal(t, http.StatusBadRequest, apiclient.StatusOf(err))
	fields := apiclient.FieldErrorsOf(err)
	require.Contains(t, fields.Fields(), "email")
	require.Contains(t, fields.Fields(), "password")
}

func TestClient_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := apiclient.New(url, session.NewStore(nil), apiclient.WithLogger(zerolog.Nop()), apiclient.WithTimeout(2*time.Second))
	require.NoError(t, err)
	err = client.Get(context.Background(), apiclient.RouteCars, nil, nil)
	require.True(t, apiclient.IsNetworkError(err))
	require.Zero(t, apiclient.StatusOf(err))
}

func TestClient_UploadLogsCountsNotBodies(t *testing.T) {
	var gotFiles int
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiclient.RouteCars, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		gotFiles = len(r.MultipartForm.File["images"])
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "car-1"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var logs bytes.Buffer
	logger := zerolog.New(&logs).Level(zerolog.DebugLevel)
	client, err := apiclient.New(srv.URL, session.NewStore(nil), apiclient.WithLogger(logger))
	require.NoError(t, err)

	var out struct {
		ID string `json:"id"`
	}
	err = client.Upload(context.Background(), apiclient.RouteCars, &apiclient.Upload{
		Fields: map[string]string{"make": "Jeep"},
		Files: []apiclient.File{
			{Field: "images", Name: "front.jpg", Content: strings.NewReader("secret-front-bytes")},
			{Field: "images", Name: "back.jpg", Content: strings.NewReader("secret-back-bytes")},
		},
	}, &out)
	require.NoError(t, err)
	require.Equal(t, "car-1", out.ID)
	require.Equal(t, 2, gotFiles)

	require.Contains(t, logs.String(), `"files":2`)
	require.Contains(t, logs.String(), `"fields":1`)
	require.NotContains(t, logs.String(), "secret-front-bytes")
}

func TestClient_UploadRetryResendsBody(t *testing.T) {
	var attempts atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiclient.RouteTokenRefresh, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access":"fresh"}`))
	})
	mux.HandleFunc("POST "+apiclient.RouteCars, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			attempts.Add(1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Jeep", r.FormValue("make"))
		file, _, err := r.FormFile("images")
		assert.NoError(t, err)
		defer file.Close()
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(file)
		assert.Equal(t, "jpeg-bytes", buf.String())
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	store := session.NewStore(nil)
	require.NoError(t, store.SetTokens(ctx, "stale", "refresh"))
	client, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	require.NoError(t, client.Upload(ctx, apiclient.RouteCars, &apiclient.Upload{
		Fields: map[string]string{"make": "Jeep"},
		Files:  []apiclient.File{{Field: "images", Name: "front.jpg", Content: strings.NewReader("jpeg-bytes")}},
	}, nil))
	require.EqualValues(t, 1, attempts.Load())
}

func TestClient_RefreshCoalescing(t *testing.T) {
	const callers = 5

	run := func(t *testing.T, coalesce bool) int32 {
		var refreshCalls atomic.Int32
		mux := http.NewServeMux()
		mux.HandleFunc("POST "+apiclient.RouteTokenRefresh, func(w http.ResponseWriter, r *http.Request) {
			refreshCalls.Add(1)
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte(`{"access":"fresh"}`))
		})
		mux.HandleFunc("GET "+apiclient.RouteUsersMe, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"username":"sgt.pepper"}`))
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		ctx := context.Background()
		store := session.NewStore(nil)
		require.NoError(t, store.SetTokens(ctx, "stale", "refresh"))
		client, err := apiclient.New(srv.URL, store, apiclient.WithLogger(zerolog.Nop()), apiclient.WithRefreshCoalescing(coalesce))
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make(chan error, callers)
		for range callers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- client.Get(ctx, apiclient.RouteUsersMe, nil, nil)
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
		return refreshCalls.Load()
	}

	t.Run("independent by default", func(t *testing.T) {
		require.EqualValues(t, callers, run(t, false))
	})

	t.Run("coalesced", func(t *testing.T) {
		require.EqualValues(t, 1, run(t, true))
	})
}

func TestClient_TimeoutAppliesToCopyOfHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	tests := []struct {
		name string
		opts func(hc *http.Client) []apiclient.ClientOption
	}{
		{"timeout before http client", func(hc *http.Client) []apiclient.ClientOption {
			return []apiclient.ClientOption{apiclient.WithTimeout(50 * time.Millisecond), apiclient.WithHTTPClient(hc)}
		}},
		{"timeout after http client", func(hc *http.Client) []apiclient.ClientOption {
			return []apiclient.ClientOption{apiclient.WithHTTPClient(hc), apiclient.WithTimeout(50 * time.Millisecond)}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc := &http.Client{}
			opts := append(tt.opts(hc), apiclient.WithLogger(zerolog.Nop()))
			client, err := apiclient.New(srv.URL, session.NewStore(nil), opts...)
			require.NoError(t, err)

			start := time.Now()
			err = client.Get(context.Background(), apiclient.RouteCars, nil, nil)
			require.True(t, apiclient.IsNetworkError(err), "got %v", err)
			require.Less(t, time.Since(start), 500*time.Millisecond)

			require.Zero(t, hc.Timeout)
			require.Nil(t, hc.Jar)
		})
	}
}

func TestClient_CoalescedRefreshOutlivesCancelledCaller(t *testing.T) {
	var refreshCalls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	var startOnce sync.Once

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+apiclient.RouteTokenRefresh, func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		startOnce.Do(func() { close(started) })
		<-release
		_, _ = w.Write([]byte(`{"access":"fresh"}`))
	})
	mux.HandleFunc("GET "+apiclient.RouteUsersMe, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"username":"sgt.pepper"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx := context.Background()
	nav := &fakeNavigator{}
	store := session.NewStore(nil)
	require.NoError(t, store.SetTokens(ctx, "stale", "refresh"))
	client, err := apiclient.New(srv.URL, store,
		apiclient.WithLogger(zerolog.Nop()),
		apiclient.WithNavigator(nav),
		apiclient.WithRefreshCoalescing(true),
	)
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(ctx)
	firstErr := make(chan error, 1)
	go func() { firstErr <- client.Get(firstCtx, apiclient.RouteUsersMe, nil, nil) }()
	<-started

	secondErr := make(chan error, 1)
	go func() { secondErr <- client.Get(ctx, apiclient.RouteUsersMe, nil, nil) }()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	require.NoError(t, <-secondErr)
	require.EqualValues(t, 1, refreshCalls.Load())
	require.Zero(t, nav.Redirects())

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "fresh", snap.AccessToken)
	require.Equal(t, "refresh", snap.RefreshToken)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/militex-client/apiclient"
	"github.com/jrsteele09/militex-client/auth"
	"github.com/jrsteele09/militex-client/authstate"
	"github.com/jrsteele09/militex-client/internal/config"
	"github.com/jrsteele09/militex-client/internal/logging"
	"github.com/jrsteele09/militex-client/listings"
	"github.com/jrsteele09/militex-client/session"
	"github.com/jrsteele09/militex-client/session/backend"
)

type rootOptions struct {
	configPath string
	envFile    string
	apiURL     string
	logLevel   string
}

// app is the composition root: one session store shared by the client, the auth
// service and the listing endpoints.
type app struct {
	cfg     config.Config
	logger  zerolog.Logger
	closer  io.Closer
	store   *session.Store
	client  *apiclient.Client
	service *auth.Service
	out     io.Writer
	errOut  io.Writer
}

func newApp(ctx context.Context, opts rootOptions, out, errOut io.Writer) (*app, error) {
	if err := loadEnvFile(opts.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	level := cfg.GetLogLevel()
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := logging.Setup(errOut, level, cfg.GetEnv())

	repo, closer, err := backend.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := session.NewStore(repo, session.WithLogger(logger))

	apiURL := cfg.GetAPIURL()
	if opts.apiURL != "" {
		apiURL = opts.apiURL
	}
	client, err := apiclient.New(apiURL, store,
		apiclient.WithTimeout(cfg.GetHTTPTimeout()),
		apiclient.WithLoginRoute(cfg.GetLoginRoute()),
		apiclient.WithNavigator(cliNavigator{w: errOut}),
		apiclient.WithRefreshCoalescing(cfg.GetCoalesceRefresh()),
		apiclient.WithLogger(logger),
	)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		closer:  closer,
		store:   store,
		client:  client,
		service: auth.NewService(client, auth.WithLogger(logger)),
		out:     out,
		errOut:  errOut,
	}, nil
}

func (a *app) Close() error {
	return a.closer.Close()
}

func (a *app) provider(options ...authstate.ProviderOption) *authstate.Provider {
	options = append([]authstate.ProviderOption{
		authstate.WithCheckInterval(a.cfg.GetTokenCheckInterval()),
		authstate.WithLogger(a.logger),
	}, options...)
	return authstate.NewProvider(a.service, options...)
}

func (a *app) cars() *listings.Cars {
	return listings.NewCars(a.client)
}

func (a *app) fundraisers() *listings.Fundraisers {
	return listings.NewFundraisers(a.client)
}

// loadEnvFile loads path into the environment without overriding variables that are
// already set. A missing file is ignored.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// cliNavigator stands in for the login page redirect.
type cliNavigator struct {
	w io.Writer
}

func (cliNavigator) CurrentRoute() string { return "" }

func (n cliNavigator) RedirectToLogin() {
	fmt.Fprintln(n.w, "Your session has expired. Run `militex login` to sign in again.")
}

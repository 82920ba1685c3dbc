package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/militex-client/internal/apistub"
	"github.com/jrsteele09/militex-client/internal/config"
	"github.com/jrsteele09/militex-client/internal/logging"
)

// stubapi serves the in-memory fake of the Militex API for local development:
//
//	go run ./cmd/stubapi -addr :8000 -access-ttl 1m
//	MILITEX_API_URL=http://localhost:8000 militex login -u demo -p Militex2024
func main() {
	_ = godotenv.Load()

	addr := flag.String("addr", config.GetEnv("MILITEX_STUB_ADDR", ":8000"), "listen address")
	accessTTL := flag.Duration("access-ttl", config.GetEnvDuration("MILITEX_STUB_ACCESS_TTL", 5*time.Minute), "access token lifetime")
	rotate := flag.Bool("rotate-refresh", config.GetEnvBool("MILITEX_STUB_ROTATE_REFRESH", false), "rotate refresh tokens on every refresh")
	csrf := flag.Bool("require-csrf", config.GetEnvBool("MILITEX_STUB_REQUIRE_CSRF", true), "reject unsafe requests without a CSRF header")
	flag.Parse()

	cfg := config.New()
	logging.Setup(os.Stderr, cfg.GetLogLevel(), cfg.GetEnv())

	opts := []apistub.Option{
		apistub.WithDemoData(),
		apistub.WithAccessTTL(*accessTTL),
		apistub.WithRotatingRefresh(*rotate),
		apistub.WithCSRFRequired(*csrf),
		apistub.WithLogger(log.Logger),
	}
	if err := run(*addr, cfg.GetAppName()+" API", opts); err != nil {
		log.Fatal().Err(err).Msg("stub api stopped")
	}
	log.Info().Msg("stub api stopped")
}

func run(addr, appname string, opts []apistub.Option) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	displayAppname(appname)
	server := &http.Server{Addr: addr, Handler: apistub.New(opts...), ReadHeaderTimeout: 10 * time.Second}
	errs := make(chan error, 1)
	go func() { errs <- listenAndServe(server) }()

	select {
	case err := <-errs:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(server)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("stub api listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}

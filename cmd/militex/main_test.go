package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/militex-client/internal/apistub"
	"github.com/jrsteele09/militex-client/listings"
)

type cli struct {
	t *testing.T
}

func (c cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(strings.NewReader(stdin), &out, &errOut)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func newCLI(t *testing.T, store string) (cli, *apistub.Server) {
	t.Helper()
	stub := apistub.New(apistub.WithDemoData(), apistub.WithLogger(zerolog.Nop()))
	stub.AddFundraiser(listings.Fundraiser{ID: "f-1", Title: "Care Packages", Goal: 1000, Raised: 100})
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("MILITEX_API_URL", srv.URL)
	t.Setenv("MILITEX_STORE", store)
	t.Setenv("MILITEX_STORE_PATH", filepath.Join(dir, "session"))
	t.Setenv("MILITEX_CONFIG", "")
	t.Setenv("MILITEX_LOG_LEVEL", "error")
	t.Setenv("ENV", "TEST")
	return cli{t: t}, stub
}

func TestCLI_SessionLifecycle(t *testing.T) {
	for _, store := range []string{"file", "sqlite"} {
		t.Run(store, func(t *testing.T) {
			c, stub := newCLI(t, store)

			_, err := c.run("", "whoami")
			require.Error(t, err)

			out, err := c.run("Militex2024\n", "login", "-u", "demo")
			require.NoError(t, err)
			require.Contains(t, out, "Logged in as Dana Reyes")

			out, err = c.run("", "whoami")
			require.NoError(t, err)
			require.Contains(t, out, "username: demo")
			require.Contains(t, out, "military: yes")

			out, err = c.run("", "status")
			require.NoError(t, err)
			require.Contains(t, out, "authenticated: yes")
			require.Contains(t, out, "user:          demo")

			out, err = c.run("", "token")
			require.NoError(t, err)
			require.NotEmpty(t, strings.TrimSpace(out))

			stub.RevokeAccessTokens()
			out, err = c.run("", "whoami", "--fresh")
			require.NoError(t, err)
			require.Contains(t, out, "username: demo")
			require.Equal(t, 1, stub.Calls(apistub.RouteTokenRefresh))

			out, err = c.run("", "refresh")
			require.NoError(t, err)
			require.Contains(t, out, "Access token refreshed")

			out, err = c.run("", "logout")
			require.NoError(t, err)
			require.Contains(t, out, "Logged out")

			out, err = c.run("", "status")
			require.NoError(t, err)
			require.Contains(t, out, "authenticated: no")
			require.Contains(t, out, "refresh token: none")
		})
	}
}

func TestCLI_LoginFailure(t *testing.T) {
	c, stub := newCLI(t, "file")

	_, err := c.run("", "login", "-u", "demo", "-p", "wrong")
	require.EqualError(t, err, "Invalid username or password.")

	stub.LockUser("demo")
	_, err = c.run("", "login", "-u", "demo", "-p", "Militex2024")
	require.EqualError(t, err, "Your account has been locked. Please contact support.")
}

func TestCLI_Register(t *testing.T) {
	c, _ := newCLI(t, "file")

	_, err := c.run("", "register", "-u", "lt.dan", "--email", "bad", "-p", "Shrimp4Ever")
	require.ErrorContains(t, err, "email: Enter a valid email address.")

	out, err := c.run("", "register", "-u", "lt.dan", "--email", "dan@example.com", "-p", "Shrimp4Ever", "--first-name", "Dan", "--military")
	require.NoError(t, err)
	require.Contains(t, out, "Welcome, Dan")

	out, err = c.run("", "whoami")
	require.NoError(t, err)
	require.Contains(t, out, "username: lt.dan")
}

func TestCLI_Listings(t *testing.T) {
	c, _ := newCLI(t, "file")

	out, err := c.run("", "cars", "list", "--make", "jeep")
	require.NoError(t, err)
	require.Contains(t, out, "Wrangler")
	require.NotContains(t, out, "Tacoma")
	require.Contains(t, out, "1 of 1 shown")

	out, err = c.run("", "fundraisers", "list")
	require.NoError(t, err)
	require.Contains(t, out, "Care Packages")
	require.Contains(t, out, "10%")

	_, err = c.run("", "donate", "f-1", "--amount", "25")
	require.Error(t, err, "donating requires a session")

	_, err = c.run("", "login", "-u", "demo", "-p", "Militex2024")
	require.NoError(t, err)
	out, err = c.run("", "donate", "f-1", "--amount", "25")
	require.NoError(t, err)
	require.Contains(t, out, "Donated $25.00, fundraiser has now raised $125.00")
}

func TestCLI_Version(t *testing.T) {
	c, _ := newCLI(t, "memory")
	out, err := c.run("", "version")
	require.NoError(t, err)
	require.Contains(t, out, "militex dev")
}

package main

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/militex-client/token"
	"github.com/jrsteele09/militex-client/users"
)

func newLoginCmd(withApp appRunner) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if username == "" {
				if username, err = prompt(in, cmd.ErrOrStderr(), "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = prompt(in, cmd.ErrOrStderr(), "Password: "); err != nil {
					return err
				}
			}
			profile, err := a.service.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Logged in as %s\n", profile.DisplayName())
			return nil
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func newLogoutCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if err := a.service.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Logged out")
			return nil
		}),
	}
}

func newWhoamiCmd(withApp appRunner) *cobra.Command {
	var fresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed in user",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			fetch := a.service.CurrentUser
			if fresh {
				fetch = a.service.FetchCurrentUser
			}
			profile, err := fetch(cmd.Context())
			if err != nil {
				return err
			}
			printProfile(a.out, profile)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&fresh, "fresh", false, "bypass the cached profile")
	return cmd
}

func newStatusCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the local session holds",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			snap, err := a.store.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "api:           %s\n", a.client.BaseURL())
			fmt.Fprintf(a.out, "store:         %s\n", a.cfg.GetStore())
			fmt.Fprintf(a.out, "authenticated: %s\n", yesNo(a.service.IsTokenValid(snap.AccessToken)))
			fmt.Fprintf(a.out, "access token:  %s\n", describeToken(snap.AccessToken))
			fmt.Fprintf(a.out, "refresh token: %s\n", describeToken(snap.RefreshToken))
			if snap.User != nil {
				fmt.Fprintf(a.out, "user:          %s\n", snap.User.Username)
			}
			return nil
		}),
	}
}

func newRefreshCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new access token",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			access, err := a.service.RefreshToken(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Access token refreshed, %s\n", describeToken(access))
			return nil
		}),
	}
}

func newTokenCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a valid access token, refreshing it if needed",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			tok, err := a.service.TokenSource(cmd.Context()).Token()
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, tok.AccessToken)
			return nil
		}),
	}
}

func newRegisterCmd(withApp appRunner) *cobra.Command {
	var reg users.Registration
	var phone string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			if reg.Password == "" {
				pw, err := prompt(bufio.NewReader(cmd.InOrStdin()), cmd.ErrOrStderr(), "Password: ")
				if err != nil {
					return err
				}
				reg.Password = pw
			}
			if reg.Password2 == "" {
				reg.Password2 = reg.Password
			}
			if phone != "" {
				reg.PhoneNumber = &phone
			}

			p := a.provider()
			defer p.Close()
			if err := p.Register(cmd.Context(), reg); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Welcome, %s\n", p.Snapshot().User.DisplayName())
			return nil
		}),
	}
	f := cmd.Flags()
	f.StringVarP(&reg.Username, "username", "u", "", "username")
	f.StringVar(&reg.Email, "email", "", "email address")
	f.StringVarP(&reg.Password, "password", "p", "", "password (prompted when omitted)")
	f.StringVar(&reg.FirstName, "first-name", "", "first name")
	f.StringVar(&reg.LastName, "last-name", "", "last name")
	f.StringVar(&phone, "phone", "", "phone number in +E.164 format")
	f.BoolVar(&reg.IsMilitary, "military", false, "service member or veteran")
	return cmd
}

func printProfile(w io.Writer, p *users.UserProfile) {
	fmt.Fprintf(w, "username: %s\n", p.Username)
	fmt.Fprintf(w, "name:     %s\n", p.DisplayName())
	fmt.Fprintf(w, "email:    %s\n", p.Email)
	if phone := p.Phone(); phone != "" {
		fmt.Fprintf(w, "phone:    %s\n", phone)
	}
	fmt.Fprintf(w, "military: %s\n", yesNo(p.IsMilitary))
	fmt.Fprintf(w, "verified: %s\n", yesNo(p.IsVerified))
}

func describeToken(raw string) string {
	if raw == "" {
		return "none"
	}
	exp, err := token.ExpiresAt(raw)
	if err != nil {
		return "unreadable"
	}
	if remaining := token.TimeToExpiry(raw); remaining > 0 {
		return fmt.Sprintf("expires in %s", remaining.Round(time.Second))
	}
	return "expired at " + exp.Local().Format(time.RFC1123)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

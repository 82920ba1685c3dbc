package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/spf13/cobra"

	"github.com/jrsteele09/militex-client/auth"
)

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	var opts rootOptions
	root := &cobra.Command{
		Use:           "militex",
		Short:         "Command line client for the Militex marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "YAML config file (default $MILITEX_CONFIG)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading configuration")
	flags.StringVar(&opts.apiURL, "api-url", "", "API base URL (overrides MILITEX_API_URL)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (overrides MILITEX_LOG_LEVEL)")

	withApp := func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return describe(run(cmd, a, args))
		}
	}

	root.AddCommand(
		newLoginCmd(withApp),
		newLogoutCmd(withApp),
		newWhoamiCmd(withApp),
		newStatusCmd(withApp),
		newRefreshCmd(withApp),
		newTokenCmd(withApp),
		newRegisterCmd(withApp),
		newWatchCmd(withApp),
		newCarsCmd(withApp),
		newFundraisersCmd(withApp),
		newDonateCmd(withApp),
		newVersionCmd(),
	)

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\n\n%s", err, cmd.UsageString())
	})
	return root
}

type appRunner func(run func(cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error

// describe swaps auth failures for their user facing message.
func describe(err error) error {
	if err == nil {
		return nil
	}
	var authErr *auth.AuthenticationError
	if errors.As(err, &authErr) {
		return errors.New(authErr.UserMessage())
	}
	var valErr *auth.ValidationError
	if errors.As(err, &valErr) {
		var b strings.Builder
		b.WriteString("please correct the following:")
		for _, field := range valErr.Fields.Fields() {
			fmt.Fprintf(&b, "\n  %s: %s", field, strings.Join(valErr.Fields[field], " "))
		}
		return errors.New(b.String())
	}
	return err
}

func displayAppname(w io.Writer, appname string) {
	fmt.Fprintln(w, figure.NewFigure(appname, "cybermedium", true).String())
}

// prompt reads one line from in after printing label. Used for credentials not
// passed as flags.
func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

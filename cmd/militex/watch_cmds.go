package main

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrsteele09/militex-client/authstate"
)

func newWatchCmd(withApp appRunner) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the session fresh until interrupted",
		Long: "watch restores the stored session and checks the access token on an interval, " +
			"refreshing it when it has expired. It exits when the session ends or on Ctrl+C.",
		Args: cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
			displayAppname(a.out, a.cfg.GetAppName())

			var options []authstate.ProviderOption
			if interval > 0 {
				options = append(options, authstate.WithCheckInterval(interval))
			}
			p := a.provider(options...)
			defer p.Close()

			ended := make(chan struct{})
			var endOnce sync.Once
			var wasAuthenticated atomic.Bool
			unsubscribe := p.Subscribe(func(s authstate.Snapshot) {
				line := fmt.Sprintf("[%s] %s", time.Now().Format(time.Kitchen), s.State)
				if s.User != nil {
					line += " as " + s.User.Username
				}
				fmt.Fprintln(a.out, line)
				switch {
				case s.State == authstate.StateAuthenticated:
					wasAuthenticated.Store(true)
				case s.State == authstate.StateAnonymous && wasAuthenticated.Load():
					endOnce.Do(func() { close(ended) })
				}
			})
			defer unsubscribe()

			if snap := p.Start(cmd.Context()); !snap.IsAuthenticated() {
				return fmt.Errorf("not signed in, run `militex login` first")
			}

			select {
			case <-cmd.Context().Done():
				fmt.Fprintln(a.out, "stopping")
			case <-ended:
			}
			return nil
		}),
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "token check interval (default MILITEX_TOKEN_CHECK_INTERVAL)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			displayAppname(cmd.OutOrStdout(), "Militex")
			fmt.Fprintf(cmd.OutOrStdout(), "militex %s\n", version)
		},
	}
}

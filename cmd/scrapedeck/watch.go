package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func watchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow task notifications from the live channel",
		Long: `Connect to the live channel and print task notifications as they
arrive. While the channel is down the task list is polled instead.
Stop with Ctrl+C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			s := c.session()
			events, cancel := s.Notifications.Subscribe(64)
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- s.Run(ctx) }()

			out := cmd.OutOrStdout()
			for {
				select {
				case n, ok := <-events:
					if !ok {
						return <-done
					}
					renderNotification(out, n)
				case err := <-done:
					if err != nil && ctx.Err() == nil {
						return err
					}
					return nil
				}
			}
		},
	}
}

// signalContext is shared by the long-running commands.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

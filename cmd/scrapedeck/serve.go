package main

import (
	"context"
	"errors"
	"time"

	transporthttp "github.com/scrapedeck/console/internal/transport/http"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(c *cli) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session behind the operator console API",
		Long: `Keep a live session running and expose it as a JSON API.

Examples:
  scrapedeck serve
  scrapedeck serve --addr 0.0.0.0:8090`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = c.cfg.Console.Address()
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			s := c.session()
			app := transporthttp.NewApp(transporthttp.RouterConfig{
				Registry:      s.Registry,
				Notifications: s.Notifications,
				Channel:       s.Channel,
				Logger:        c.log.Named("console"),
				APIKey:        c.cfg.Console.APIKey,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return s.Run(gctx)
			})
			g.Go(func() error {
				c.log.Infow("console_listening", "addr", addr)
				return app.Listen(addr)
			})
			g.Go(func() error {
				<-gctx.Done()
				c.log.Infow("console_shutting_down")
				return app.ShutdownWithTimeout(shutdownTimeout)
			})

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from console.host and console.port)")
	return cmd
}

package main

import (
	"fmt"

	"github.com/scrapedeck/console/internal/config"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/internal/session"
	"github.com/spf13/cobra"
)

// cli carries the state every subcommand shares once the root pre-run has
// loaded it.
type cli struct {
	configPath string
	output     string
	verbose    bool

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	rootCmd := &cobra.Command{
		Use:           "scrapedeck",
		Short:         "Operator client for the scraping task backend",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (yaml)")
	flags.StringVarP(&c.output, "output", "o", formatTable, "output format: table, json or yaml")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(
		listCmd(c),
		getCmd(c),
		createCmd(c),
		executeCmd(c),
		retryCmd(c),
		deleteCmd(c),
		logsCmd(c),
		resultsCmd(c),
		watchCmd(c),
		serveCmd(c),
	)
	return rootCmd
}

func (c *cli) load() error {
	if _, err := parseFormat(c.output); err != nil {
		return err
	}

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if c.verbose {
		cfg.Logger.Level = "debug"
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	c.cfg = cfg
	c.log = log
	return nil
}

func (c *cli) session(opts ...session.Option) *session.Session {
	opts = append([]session.Option{
		session.WithLogger(c.log),
		session.WithVersion(Version),
	}, opts...)
	return session.New(c.cfg, opts...)
}

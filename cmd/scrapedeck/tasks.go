package main

import (
	"encoding/json"
	"fmt"

	"github.com/scrapedeck/console/internal/domain"
	"github.com/spf13/cobra"
)

func listCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scraping tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.session()
			defer s.Close()

			if err := s.Registry.Refresh(cmd.Context()); err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), c.output, s.Registry.List())
		},
	}
}

func getCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.session()
			defer s.Close()

			task, err := s.Registry.Fetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), c.output, task)
		},
	}
}

func createCmd(c *cli) *cobra.Command {
	var (
		spec       domain.TaskSpec
		configJSON string
		execute    bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a scraping task",
		Long: `Create a scraping task on the backend.

Examples:
  scrapedeck create --url https://example.com --description "front page"
  scrapedeck create --url https://example.com --config '{"max_pages": 3}' --execute`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configJSON != "" {
				if err := json.Unmarshal([]byte(configJSON), &spec.Config); err != nil {
					return fmt.Errorf("invalid --config: %w", err)
				}
			}

			s := c.session()
			defer s.Close()

			id, err := s.Registry.Create(cmd.Context(), spec)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)

			if execute {
				if _, err := s.Registry.Execute(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "task %s started\n", id)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&spec.URL, "url", "", "page to scrape")
	cmd.Flags().StringVarP(&spec.Description, "description", "d", "", "what to extract")
	cmd.Flags().StringVar(&spec.ExportFormat, "export-format", "", "json, csv or excel")
	cmd.Flags().StringVar(&configJSON, "config", "", "scraper config as a JSON object")
	cmd.Flags().BoolVar(&execute, "execute", false, "start the task right away")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}

func executeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <task-id>",
		Short: "Start a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.session()
			defer s.Close()

			resp, err := s.Registry.Execute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), c.output, resp)
		},
	}
}

func retryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <task-id>",
		Short: "Retry a failed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.session()
			defer s.Close()

			if err := s.Registry.Retry(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "retry requested for %s\n", args[0])
			return nil
		},
	}
}

func deleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <task-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.session()
			defer s.Close()

			if err := s.Registry.Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func logsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <task-id>",
		Short: "Show a task's execution logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.session()
			defer s.Close()

			logs, err := s.Registry.FetchLogs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), c.output, logs)
		},
	}
}

func resultsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "results <task-id>",
		Short: "Show a task's scraped results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := c.session()
			defer s.Close()

			results, err := s.Registry.FetchResults(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), c.output, results)
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/scrapedeck/console/internal/domain"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func parseFormat(s string) (string, error) {
	switch s {
	case formatTable, formatJSON, formatYAML:
		return s, nil
	case "yml":
		return formatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
}

// render writes v in the requested format. Table output falls back to JSON
// for values without a tabular form.
func render(w io.Writer, format string, v any) error {
	format, err := parseFormat(format)
	if err != nil {
		return err
	}

	switch format {
	case formatYAML:
		return renderYAML(w, v)
	case formatTable:
		if tasks, ok := v.([]domain.Task); ok {
			return renderTaskTable(w, tasks)
		}
		if task, ok := v.(domain.Task); ok {
			return renderTaskTable(w, []domain.Task{task})
		}
	}
	return renderJSON(w, v)
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderYAML goes through JSON first so json tags and raw backend payloads
// render the same way in both formats.
func renderYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func renderTaskTable(w io.Writer, tasks []domain.Task) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tURL\tCREATED\tDESCRIPTION")
	for _, t := range tasks {
		created := "-"
		if !t.CreatedAt.IsZero() {
			created = t.CreatedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.URL, created, t.Description)
	}
	return tw.Flush()
}

func renderNotification(w io.Writer, n domain.Notification) {
	fmt.Fprintf(w, "%s [%s] %s\n", n.CreatedAt.Format("15:04:05"), n.Severity, n.Message)
}

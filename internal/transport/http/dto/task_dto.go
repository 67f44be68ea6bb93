package dto

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/scrapedeck/console/internal/domain"
)

var exportFormats = map[string]bool{"": true, "json": true, "csv": true, "excel": true}

type CreateTaskRequest struct {
	URL          string       `json:"url"`
	Description  string       `json:"description"`
	Config       domain.JSONB `json:"config,omitempty"`
	ExportFormat string       `json:"export_format,omitempty"`
}

func (r *CreateTaskRequest) Validate() []string {
	var errors []string

	if strings.TrimSpace(r.URL) == "" {
		errors = append(errors, "url is required")
	} else if u, err := url.Parse(r.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errors = append(errors, "url must be an absolute http(s) URL")
	}

	if !exportFormats[r.ExportFormat] {
		errors = append(errors, "export_format must be one of: json, csv, excel")
	}

	return errors
}

func (r *CreateTaskRequest) ToSpec() domain.TaskSpec {
	return domain.TaskSpec{
		URL:          strings.TrimSpace(r.URL),
		Description:  r.Description,
		Config:       r.Config,
		ExportFormat: r.ExportFormat,
	}
}

type TaskListResponse struct {
	Tasks   []domain.Task `json:"tasks"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"`
}

type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
}

// PassthroughResponse wraps a backend body the console does not interpret.
type PassthroughResponse struct {
	TaskID string          `json:"task_id"`
	Data   json.RawMessage `json:"data"`
}

type ChannelResponse struct {
	State       domain.ChannelState `json:"state"`
	Attempt     int                 `json:"attempt"`
	MaxAttempts int                 `json:"max_attempts"`
	NextDelayMS int64               `json:"next_delay_ms"`
}

func ChannelToResponse(status domain.ChannelStatus) ChannelResponse {
	return ChannelResponse{
		State:       status.State,
		Attempt:     status.Attempt,
		MaxAttempts: status.MaxAttempts,
		NextDelayMS: status.NextDelay.Milliseconds(),
	}
}

type ErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

package domain

import (
	"encoding/json"
	"time"
)

// ==================== ENUMS ====================

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal reports whether no further transitions are expected.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

func (s Severity) Valid() bool {
	switch s {
	case SeveritySuccess, SeverityError, SeverityWarning, SeverityInfo:
		return true
	}
	return false
}

type ChannelState string

const (
	ChannelConnecting     ChannelState = "connecting"
	ChannelOpen           ChannelState = "open"
	ChannelClosedRetrying ChannelState = "closed-retrying"
	ChannelClosedFinal    ChannelState = "closed-final"
)

// ==================== JSONB TYPES ====================

// JSONB holds free-form metadata exactly as the backend sent it.
type JSONB map[string]interface{}

// Clone copies j along with every nested object and array.
func (j JSONB) Clone() JSONB {
	if j == nil {
		return nil
	}
	out := make(JSONB, len(j))
	for k, v := range j {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(JSONB(val).Clone())
	case JSONB:
		return val.Clone()
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	}
	return v
}

// ==================== ENTITIES ====================

// Task is the client-side snapshot of one scraping job. ID is always the
// canonical identifier.
type Task struct {
	ID          string          `json:"id"`
	URL         string          `json:"url"`
	Description string          `json:"description"`
	Status      TaskStatus      `json:"status"`
	CreatedAt   Timestamp       `json:"created_at"`
	UpdatedAt   *Timestamp      `json:"updated_at,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	ResultsID   *string         `json:"results_id,omitempty"`
	TemplateID  *string         `json:"template_id,omitempty"`
	Metadata    JSONB           `json:"metadata"`
}

// Clone returns a copy that shares no mutable state with t.
func (t Task) Clone() Task {
	out := t
	if t.UpdatedAt != nil {
		ts := *t.UpdatedAt
		out.UpdatedAt = &ts
	}
	if t.Config != nil {
		out.Config = append(json.RawMessage(nil), t.Config...)
	}
	if t.ResultsID != nil {
		v := *t.ResultsID
		out.ResultsID = &v
	}
	if t.TemplateID != nil {
		v := *t.TemplateID
		out.TemplateID = &v
	}
	out.Metadata = t.Metadata.Clone()
	return out
}

// TaskSpec is the payload submitted to create a task.
type TaskSpec struct {
	URL          string `json:"url"`
	Description  string `json:"description"`
	Config       JSONB  `json:"config,omitempty"`
	ExportFormat string `json:"export_format,omitempty"`
}

type Notification struct {
	ID        string        `json:"id"`
	Severity  Severity      `json:"type"`
	Message   string        `json:"message"`
	Duration  time.Duration `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
}

// ChannelStatus is a point-in-time view of the live channel.
type ChannelStatus struct {
	State       ChannelState  `json:"state"`
	Attempt     int           `json:"attempt"`
	MaxAttempts int           `json:"max_attempts"`
	NextDelay   time.Duration `json:"-"`
}

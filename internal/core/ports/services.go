package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/scrapedeck/console/internal/domain"
)

// TaskAPI is the request/response surface of the scraping backend. Task
// records are returned undecoded so the registry can canonicalize them.
type TaskAPI interface {
	ListTasks(ctx context.Context) ([]json.RawMessage, error)
	GetTask(ctx context.Context, id string) (json.RawMessage, error)
	CreateTask(ctx context.Context, spec domain.TaskSpec) (string, error)
	ExecuteTask(ctx context.Context, id string) (json.RawMessage, error)
	RetryTask(ctx context.Context, id string) error
	DeleteTask(ctx context.Context, id string) error
	TaskLogs(ctx context.Context, id string) (json.RawMessage, error)
	TaskResults(ctx context.Context, id string) (json.RawMessage, error)
}

type TaskRegistry interface {
	Refresh(ctx context.Context) error
	Merge(patch domain.TaskPatch) (domain.Task, error)
	Fetch(ctx context.Context, id string) (domain.Task, error)
	Create(ctx context.Context, spec domain.TaskSpec) (string, error)
	Execute(ctx context.Context, id string) (json.RawMessage, error)
	Retry(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	FetchLogs(ctx context.Context, id string) (json.RawMessage, error)
	FetchResults(ctx context.Context, id string) (json.RawMessage, error)
	Get(id string) (domain.Task, bool)
	List() []domain.Task
	Loading() bool
	Err() string
}

// TaskMerger is the slice of the registry the push path writes through.
type TaskMerger interface {
	Merge(patch domain.TaskPatch) (domain.Task, error)
	Get(id string) (domain.Task, bool)
}

// Refresher is the slice of the registry the fallback poller needs.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Notifier interface {
	Notify(message string, severity domain.Severity, duration time.Duration) domain.Notification
}

type NotificationService interface {
	Notifier
	Dismiss(id string) bool
	List() []domain.Notification
	Subscribe(buffer int) (<-chan domain.Notification, func())
}

type LiveChannel interface {
	State() domain.ChannelState
	Status() domain.ChannelStatus
	Reconnect() error
	Send(message any) error
}

package live

import (
	"fmt"
	"sync"

	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
)

const defaultFailureMessage = "Task failed"

// Dispatcher routes decoded push events to the registry and the notifier.
// Frames it cannot decode are logged and dropped; they never reach the
// connection loop as errors.
type Dispatcher struct {
	registry ports.TaskMerger
	notifier ports.Notifier
	logger   *logger.Logger

	mu sync.Mutex
	// announced holds the terminal status already notified per task so a
	// repeated completion frame raises one alert. Entries are re-armed when
	// the registry shows the task non-terminal again and pruned once the
	// task leaves the registry.
	announced map[string]domain.TaskStatus
}

func NewDispatcher(registry ports.TaskMerger, notifier ports.Notifier, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Dispatcher{
		registry:  registry,
		notifier:  notifier,
		logger:    log,
		announced: make(map[string]domain.TaskStatus),
	}
}

func (d *Dispatcher) HandleMessage(data []byte) {
	ev, err := domain.DecodeEvent(data)
	if err != nil {
		d.logger.Warnw("live_frame_dropped", "error", err, "size", len(data))
		return
	}

	switch e := ev.(type) {
	case domain.TaskUpdated:
		task, ok := d.merge(e.Task)
		if ok && !task.Status.IsTerminal() {
			d.forget(task.ID)
		}

	case domain.TaskCompleted:
		patch := e.Task
		if patch.Status == nil {
			status := domain.TaskStatusCompleted
			patch.Status = &status
		}
		task, ok := d.mergeTerminal(patch)
		if !ok {
			return
		}
		if d.announce(task.ID, task.Status) {
			d.notifier.Notify(fmt.Sprintf("Task %s completed successfully", task.ID), domain.SeveritySuccess, 0)
		}

	case domain.TaskFailed:
		message := e.Error
		if message == "" {
			message = defaultFailureMessage
		}
		if e.Task == nil {
			d.notifier.Notify(message, domain.SeverityError, 0)
			return
		}
		patch := *e.Task
		if patch.Status == nil {
			status := domain.TaskStatusFailed
			patch.Status = &status
		}
		task, ok := d.mergeTerminal(patch)
		if !ok {
			return
		}
		if d.announce(task.ID, task.Status) {
			d.notifier.Notify(message, domain.SeverityError, 0)
		}

	default:
		d.logger.Debugw("live_event_ignored", "type", ev.Kind())
	}
}

func (d *Dispatcher) merge(patch domain.TaskPatch) (domain.Task, bool) {
	task, err := d.registry.Merge(patch)
	if err != nil {
		d.logger.Warnw("live_merge_failed", "id", patch.ID, "error", err)
		return domain.Task{}, false
	}
	d.logger.Debugw("live_task_merged", "id", task.ID, "status", task.Status)
	return task, true
}

// mergeTerminal merges a completion or failure. The registry may have
// moved the task back to a running state through a refresh (a retry, for
// instance), so its pre-merge status decides whether the task is re-armed.
func (d *Dispatcher) mergeTerminal(patch domain.TaskPatch) (domain.Task, bool) {
	if id, err := domain.NormalizeID(patch.ID); err == nil {
		if prev, found := d.registry.Get(id); !found || !prev.Status.IsTerminal() {
			d.forget(id)
		}
	}
	return d.merge(patch)
}

// announce records a terminal status and reports whether it is new for the
// task.
func (d *Dispatcher) announce(id string, status domain.TaskStatus) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.announced[id]; ok && prev == status {
		return false
	}
	d.announced[id] = status

	for other := range d.announced {
		if other == id {
			continue
		}
		if _, ok := d.registry.Get(other); !ok {
			delete(d.announced, other)
		}
	}
	return true
}

func (d *Dispatcher) forget(id string) {
	d.mu.Lock()
	delete(d.announced, id)
	d.mu.Unlock()
}

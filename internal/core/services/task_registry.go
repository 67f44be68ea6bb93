package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/domain"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/internal/infrastructure/remote"
)

// TaskRegistry is the client-side source of truth for task snapshots. Pull
// refreshes replace it wholesale; push events are merged into it.
//
// While a refresh is in flight, merged patches and local deletions are
// journaled and replayed on top of the refreshed baseline, so a push or a
// Remove that raced the refresh is never undone by an older full listing.
type TaskRegistry struct {
	api    ports.TaskAPI
	logger *logger.Logger

	mu       sync.RWMutex
	tasks    map[string]*domain.Task
	order    []string
	lastErr  string
	loading  int
	inflight int
	seq      uint64
	journal  []journaledPatch
}

type journaledPatch struct {
	seq   uint64
	patch domain.TaskPatch
	// removed marks a tombstone for patch.ID.
	removed bool
}

type TaskRegistryConfig struct {
	API    ports.TaskAPI
	Logger *logger.Logger
}

func NewTaskRegistry(cfg TaskRegistryConfig) *TaskRegistry {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &TaskRegistry{
		api:    cfg.API,
		logger: log,
		tasks:  make(map[string]*domain.Task),
	}
}

var _ ports.TaskRegistry = (*TaskRegistry)(nil)

// ==================== Pull path ====================

// Refresh replaces the registry with the backend's task list. On transport
// or server failure the previous contents are kept. Records without a
// usable identifier are skipped and reported with ErrValidation after the
// valid ones have been applied.
func (r *TaskRegistry) Refresh(ctx context.Context) error {
	r.mu.Lock()
	r.loading++
	r.inflight++
	startSeq := r.seq
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.loading--
		r.inflight--
		if r.inflight == 0 {
			r.journal = nil
		}
		r.mu.Unlock()
	}()

	records, err := r.api.ListTasks(ctx)
	if err != nil {
		r.logger.Warnw("registry_refresh_failed", "error", err)
		return r.fail(domain.ErrFetch, err)
	}

	tasks := make([]domain.Task, 0, len(records))
	var invalid []error
	for i, rec := range records {
		patch, err := domain.DecodeTaskPatch(rec)
		if err != nil {
			r.logger.Warnw("registry_record_rejected", "index", i, "error", err)
			invalid = append(invalid, err)
			continue
		}
		tasks = append(tasks, patch.Task())
	}

	r.mu.Lock()
	r.replaceLocked(tasks)
	replayed := 0
	for _, j := range r.journal {
		if j.seq <= startSeq {
			continue
		}
		if j.removed {
			r.deleteLocked(j.patch.ID)
		} else {
			r.applyLocked(j.patch)
		}
		replayed++
	}
	count := len(r.order)
	if len(invalid) > 0 {
		r.lastErr = fmt.Sprintf("%d task record(s) rejected", len(invalid))
	} else {
		r.lastErr = ""
	}
	r.mu.Unlock()

	r.logger.Infow("registry_refreshed", "count", count, "replayed", replayed, "rejected", len(invalid))
	if len(invalid) > 0 {
		return fmt.Errorf("refresh: %w", errors.Join(invalid...))
	}
	return nil
}

// Fetch reads one task from the backend and merges it.
func (r *TaskRegistry) Fetch(ctx context.Context, id string) (domain.Task, error) {
	id, err := domain.NormalizeID(id)
	if err != nil {
		return domain.Task{}, err
	}

	raw, err := r.api.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, r.fail(domain.ErrFetch, err)
	}
	patch, err := domain.DecodeTaskPatch(raw)
	if err != nil {
		return domain.Task{}, r.fail(domain.ErrFetch, err)
	}
	return r.Merge(patch)
}

// Create submits a task and refreshes to pick up its assigned identifier
// and initial status. A failed follow-up refresh only sets the error flag.
func (r *TaskRegistry) Create(ctx context.Context, spec domain.TaskSpec) (string, error) {
	r.setLoading(1)
	id, err := r.api.CreateTask(ctx, spec)
	r.setLoading(-1)
	if err != nil {
		r.logger.Warnw("registry_create_failed", "url", spec.URL, "error", err)
		return "", r.fail(domain.ErrSubmission, err)
	}

	r.logger.Infow("registry_task_created", "id", id, "url", spec.URL)
	r.refreshAfter(ctx, "create")
	return id, nil
}

// Execute asks the backend to start a task. A conflict answer means the
// task already moved past the requested state and is not an error.
func (r *TaskRegistry) Execute(ctx context.Context, id string) (json.RawMessage, error) {
	id, err := domain.NormalizeID(id)
	if err != nil {
		return nil, err
	}

	resp, err := r.api.ExecuteTask(ctx, id)
	if err != nil && !isConflict(err) {
		r.logger.Warnw("registry_execute_failed", "id", id, "error", err)
		return nil, r.fail(domain.ErrExecution, err)
	}

	r.refreshAfter(ctx, "execute")
	return resp, nil
}

func (r *TaskRegistry) Retry(ctx context.Context, id string) error {
	id, err := domain.NormalizeID(id)
	if err != nil {
		return err
	}

	if err := r.api.RetryTask(ctx, id); err != nil && !isConflict(err) {
		r.logger.Warnw("registry_retry_failed", "id", id, "error", err)
		return r.fail(domain.ErrExecution, err)
	}

	r.refreshAfter(ctx, "retry")
	return nil
}

// Remove deletes the task on the backend, then drops the local entry.
func (r *TaskRegistry) Remove(ctx context.Context, id string) error {
	id, err := domain.NormalizeID(id)
	if err != nil {
		return err
	}

	if err := r.api.DeleteTask(ctx, id); err != nil {
		r.logger.Warnw("registry_delete_failed", "id", id, "error", err)
		return r.fail(domain.ErrDeletion, err)
	}

	r.mu.Lock()
	r.deleteLocked(id)
	r.journalLocked(domain.TaskPatch{ID: id}, true)
	r.mu.Unlock()

	r.logger.Infow("registry_task_removed", "id", id)
	return nil
}

func (r *TaskRegistry) FetchLogs(ctx context.Context, id string) (json.RawMessage, error) {
	id, err := domain.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	logs, err := r.api.TaskLogs(ctx, id)
	if err != nil {
		return nil, r.fail(domain.ErrFetch, err)
	}
	return logs, nil
}

func (r *TaskRegistry) FetchResults(ctx context.Context, id string) (json.RawMessage, error) {
	id, err := domain.NormalizeID(id)
	if err != nil {
		return nil, err
	}
	results, err := r.api.TaskResults(ctx, id)
	if err != nil {
		return nil, r.fail(domain.ErrFetch, err)
	}
	return results, nil
}

// ==================== Push path ====================

// Merge upserts a partial record: only fields present in the patch are
// overwritten, and unknown ids are inserted. Applying the same patch twice
// leaves the registry as applying it once.
func (r *TaskRegistry) Merge(patch domain.TaskPatch) (domain.Task, error) {
	id, err := domain.NormalizeID(patch.ID)
	if err != nil {
		return domain.Task{}, err
	}
	patch.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()

	task := r.applyLocked(patch)
	r.journalLocked(patch, false)
	return task.Clone(), nil
}

// ==================== Reads ====================

func (r *TaskRegistry) Get(id string) (domain.Task, bool) {
	id, err := domain.NormalizeID(id)
	if err != nil {
		return domain.Task{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return task.Clone(), true
}

// List returns the tasks in backend order, with push-inserted tasks after.
func (r *TaskRegistry) List() []domain.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Task, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tasks[id].Clone())
	}
	return out
}

func (r *TaskRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

func (r *TaskRegistry) Loading() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loading > 0
}

// Err returns the message of the last failed pull operation, or "".
func (r *TaskRegistry) Err() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *TaskRegistry) ClearErr() {
	r.mu.Lock()
	r.lastErr = ""
	r.mu.Unlock()
}

// ==================== Internals ====================

func (r *TaskRegistry) applyLocked(patch domain.TaskPatch) *domain.Task {
	task, ok := r.tasks[patch.ID]
	if !ok {
		t := patch.Task()
		r.tasks[patch.ID] = &t
		r.order = append(r.order, patch.ID)
		return &t
	}
	patch.ApplyTo(task)
	return task
}

func (r *TaskRegistry) journalLocked(patch domain.TaskPatch, removed bool) {
	if r.inflight == 0 {
		return
	}
	r.seq++
	r.journal = append(r.journal, journaledPatch{seq: r.seq, patch: patch, removed: removed})
}

func (r *TaskRegistry) replaceLocked(tasks []domain.Task) {
	r.tasks = make(map[string]*domain.Task, len(tasks))
	r.order = make([]string, 0, len(tasks))
	for i := range tasks {
		t := tasks[i]
		if _, dup := r.tasks[t.ID]; !dup {
			r.order = append(r.order, t.ID)
		}
		r.tasks[t.ID] = &t
	}
}

func (r *TaskRegistry) deleteLocked(id string) {
	if _, ok := r.tasks[id]; !ok {
		return
	}
	delete(r.tasks, id)
	for i, other := range r.order {
		if other == id {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *TaskRegistry) refreshAfter(ctx context.Context, op string) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warnw("registry_refresh_after_failed", "op", op, "error", err)
	}
}

func (r *TaskRegistry) setLoading(delta int) {
	r.mu.Lock()
	r.loading += delta
	r.mu.Unlock()
}

func (r *TaskRegistry) fail(kind, err error) error {
	wrapped := fmt.Errorf("%w: %w", kind, err)
	r.mu.Lock()
	r.lastErr = wrapped.Error()
	r.mu.Unlock()
	return wrapped
}

func isConflict(err error) bool {
	var statusErr *remote.StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict
}

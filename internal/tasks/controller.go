package tasks

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"tasktracker/internal/logging"
	"tasktracker/internal/model"
)

type Remote interface {
	FetchTasks(ctx context.Context, studentID string) ([]model.Task, error)
	CreateTask(ctx context.Context, studentID string, draft model.Draft) (model.Task, error)
	FetchTask(ctx context.Context, taskID int64) (model.Task, error)
	UpdateTask(ctx context.Context, task model.Task) error
	SetDone(ctx context.Context, taskID int64, done bool) error
	DeleteTask(ctx context.Context, taskID int64) error
}

type SessionLoader interface {
	Load(ctx context.Context) (model.Session, bool, error)
}

// DoneOutcome describes an optimistic completion toggle. When Err is set the
// cache still holds Done; the caller either rolls back or refreshes.
type DoneOutcome struct {
	TaskID int64
	Found  bool
	Prior  bool
	Done   bool
	Err    error
}

func (o DoneOutcome) Confirmed() bool {
	return o.Err == nil
}

// Controller owns the task list cache of one session and reconciles it with
// the task service. Remote-backed operations run one at a time; reads of the
// cache never wait on the network.
type Controller struct {
	remote   Remote
	sessions SessionLoader
	logger   *zap.Logger
	cache    *Cache

	ops     sync.Mutex
	refresh singleflight.Group

	mu          sync.Mutex
	studentID   string
	generation  uint64
	unconfirmed map[int64]struct{}
}

func NewController(remote Remote, sessions SessionLoader, logger *zap.Logger) *Controller {
	return &Controller{
		remote:      remote,
		sessions:    sessions,
		logger:      logging.OrNop(logger),
		cache:       NewCache(),
		unconfirmed: make(map[int64]struct{}),
	}
}

// Mount rehydrates the session from the store and refreshes the list. A
// different student than the one currently bound discards the cache first.
func (c *Controller) Mount(ctx context.Context) ([]model.Task, error) {
	sess, ok, err := c.sessions.Load(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		c.Reset()
		return nil, ErrNoSession
	}
	c.bind(sess.StudentID)
	return c.Refresh(ctx)
}

// Focus is the trigger for the list view regaining focus, including after
// returning from create and update flows.
func (c *Controller) Focus(ctx context.Context) ([]model.Task, error) {
	return c.Mount(ctx)
}

// Refresh replaces the cache with the server's list. On failure the cache is
// left as it was. Concurrent calls for the same session share one request,
// which runs to completion even if the caller that started it gives up.
func (c *Controller) Refresh(ctx context.Context) ([]model.Task, error) {
	studentID, gen := c.current()
	if studentID == "" {
		return nil, ErrNoSession
	}
	shared := context.WithoutCancel(ctx)
	ch := c.refresh.DoChan(fmt.Sprintf("refresh:%d", gen), func() (interface{}, error) {
		c.ops.Lock()
		defer c.ops.Unlock()
		return c.refreshLocked(shared)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	tasks := res.Val.([]model.Task)
	out := make([]model.Task, len(tasks))
	copy(out, tasks)
	return out, nil
}

func (c *Controller) refreshLocked(ctx context.Context) ([]model.Task, error) {
	studentID, gen := c.current()
	if studentID == "" {
		return nil, ErrNoSession
	}
	fetched, err := c.remote.FetchTasks(ctx, studentID)
	if err != nil {
		c.logger.Warn("failed to fetch tasks", zap.String("student_id", studentID), zap.Error(err))
		return nil, err
	}

	owned := fetched[:0:0]
	for _, task := range fetched {
		if task.StudentID != "" && task.StudentID != studentID {
			c.logger.Warn("dropping task owned by another student",
				zap.Int64("task_id", task.ID), zap.String("student_id", studentID))
			continue
		}
		owned = append(owned, task)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return nil, ErrSessionChanged
	}
	c.cache.Replace(owned)
	c.unconfirmed = make(map[int64]struct{})
	return c.cache.Snapshot(), nil
}

// Create validates the draft and posts it. The cache is not patched; the
// caller refreshes (Focus) to pick up the new task.
func (c *Controller) Create(ctx context.Context, draft model.Draft) (model.Task, error) {
	priority, err := validateFields(draft.Name, draft.Course, string(draft.Priority), draft.Deadline)
	if err != nil {
		return model.Task{}, err
	}
	draft.Priority = priority
	studentID := c.StudentID()
	if studentID == "" {
		return model.Task{}, &ValidationError{Field: "student_id", Reason: "no active session", Err: ErrNoSession}
	}

	c.ops.Lock()
	defer c.ops.Unlock()
	created, err := c.remote.CreateTask(ctx, studentID, draft)
	if err != nil {
		c.logger.Warn("failed to add task", zap.String("student_id", studentID), zap.Error(err))
		return model.Task{}, err
	}
	return created, nil
}

// Task loads one task from the server, e.g. to fill an edit form. The cache is untouched.
func (c *Controller) Task(ctx context.Context, taskID int64) (model.Task, error) {
	if c.StudentID() == "" {
		return model.Task{}, ErrNoSession
	}
	task, err := c.remote.FetchTask(ctx, taskID)
	if err != nil {
		c.logger.Warn("failed to fetch task", zap.Int64("task_id", taskID), zap.Error(err))
		return model.Task{}, err
	}
	return task, nil
}

// SetDone writes the flag into the cache first, then sends it. A failed send
// leaves the optimistic value in place and marks the controller as drifted
// until Rollback or the next successful refresh.
func (c *Controller) SetDone(ctx context.Context, taskID int64, done bool) (DoneOutcome, error) {
	c.ops.Lock()
	defer c.ops.Unlock()

	c.mu.Lock()
	if c.studentID == "" {
		c.mu.Unlock()
		return DoneOutcome{TaskID: taskID, Done: done}, ErrNoSession
	}
	gen := c.generation
	prior, found := c.cache.SetDone(taskID, done)
	if found {
		c.unconfirmed[taskID] = struct{}{}
	}
	c.mu.Unlock()

	outcome := DoneOutcome{TaskID: taskID, Found: found, Prior: prior, Done: done}
	if err := c.remote.SetDone(ctx, taskID, done); err != nil {
		c.logger.Warn("failed to update task status", zap.Int64("task_id", taskID), zap.Bool("done", done), zap.Error(err))
		outcome.Err = err
		return outcome, err
	}

	c.mu.Lock()
	if c.generation == gen {
		delete(c.unconfirmed, taskID)
	}
	c.mu.Unlock()
	return outcome, nil
}

// Rollback restores the prior flag of a failed SetDone, unless something
// already overwrote the optimistic value.
func (c *Controller) Rollback(outcome DoneOutcome) []model.Task {
	if outcome.Confirmed() || !outcome.Found {
		return c.Snapshot()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if task, ok := c.cache.Get(outcome.TaskID); ok && bool(task.MarkAsDone) == outcome.Done {
		c.cache.SetDone(outcome.TaskID, outcome.Prior)
		delete(c.unconfirmed, outcome.TaskID)
	}
	return c.cache.Snapshot()
}

// Update sends the full task and, once acknowledged, replaces the cached entry in place.
func (c *Controller) Update(ctx context.Context, task model.Task) ([]model.Task, error) {
	if task.ID <= 0 {
		return nil, &ValidationError{Field: "id", Reason: "must be a server-assigned id"}
	}
	priority, err := validateFields(task.Name, task.Course, string(task.Priority), task.Deadline)
	if err != nil {
		return nil, err
	}
	task.Priority = priority
	studentID, gen := c.current()
	if studentID == "" {
		return nil, ErrNoSession
	}
	if task.StudentID != "" && task.StudentID != studentID {
		return nil, &ValidationError{Field: "student_id", Reason: "task belongs to another student"}
	}
	task.StudentID = studentID

	c.ops.Lock()
	defer c.ops.Unlock()
	if err := c.remote.UpdateTask(ctx, task); err != nil {
		c.logger.Warn("failed to update task", zap.Int64("task_id", task.ID), zap.Error(err))
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return nil, ErrSessionChanged
	}
	c.cache.Put(task)
	return c.cache.Snapshot(), nil
}

// Delete removes the task remotely and then refreshes with the bound student
// id. The cache is only rebuilt from the server's post-delete list.
func (c *Controller) Delete(ctx context.Context, taskID int64) ([]model.Task, error) {
	studentID := c.StudentID()
	if studentID == "" {
		return nil, ErrNoSession
	}

	c.ops.Lock()
	defer c.ops.Unlock()
	if err := c.remote.DeleteTask(ctx, taskID); err != nil {
		c.logger.Warn("failed to delete task", zap.Int64("task_id", taskID), zap.Error(err))
		return nil, err
	}
	return c.refreshLocked(ctx)
}

// Reset drops the session binding and the cache. Calls still in flight will
// discard their results.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.studentID = ""
	c.generation++
	c.unconfirmed = make(map[int64]struct{})
	c.cache.Reset()
}

func (c *Controller) Snapshot() []model.Task {
	return c.cache.Snapshot()
}

func (c *Controller) StudentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studentID
}

// Drifted reports whether the cache holds optimistic writes the server has not confirmed.
func (c *Controller) Drifted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unconfirmed) > 0
}

func (c *Controller) bind(studentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.studentID == studentID {
		return
	}
	c.studentID = studentID
	c.generation++
	c.unconfirmed = make(map[int64]struct{})
	c.cache.Reset()
}

func (c *Controller) current() (string, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.studentID, c.generation
}

func validateFields(name, course, priority, deadline string) (model.Priority, error) {
	if strings.TrimSpace(name) == "" {
		return "", &ValidationError{Field: "name", Reason: "required"}
	}
	if strings.TrimSpace(course) == "" {
		return "", &ValidationError{Field: "course", Reason: "required"}
	}
	if strings.TrimSpace(priority) == "" {
		return "", &ValidationError{Field: "priority", Reason: "required"}
	}
	parsed, err := model.ParsePriority(priority)
	if err != nil {
		return "", &ValidationError{Field: "priority", Reason: "must be high, medium or low"}
	}
	if strings.TrimSpace(deadline) == "" {
		return "", &ValidationError{Field: "deadline", Reason: "required"}
	}
	if _, err := model.ParseDeadline(deadline); err != nil {
		return "", &ValidationError{Field: "deadline", Reason: "must be a date (YYYY-MM-DD)"}
	}
	return parsed, nil
}

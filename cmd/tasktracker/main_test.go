package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"tasktracker/internal/account"
	"tasktracker/internal/clients"
	"tasktracker/internal/model"
	"tasktracker/internal/tasks"
)

type backend struct {
	mu        sync.Mutex
	tasks     []model.Task
	nextID    int64
	addCalls  int
	failPatch bool
}

func (b *backend) router() http.Handler {
	r := chi.NewRouter()
	r.Post("/login", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			StudentID string `json:"student_id"`
			Password  string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.StudentID != "S100" || req.Password != "pw" {
			respond(w, http.StatusUnauthorized, map[string]string{"error": "invalid_credentials"})
			return
		}
		respond(w, http.StatusOK, map[string]interface{}{
			"user":         map[string]string{"student_id": "S100", "firstname": "Ana", "middlename": "Maria", "lastname": "Cruz"},
			"access_token": "secret-token",
		})
	})
	r.Get("/tasklist", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		respond(w, http.StatusOK, b.tasks)
	})
	r.Post("/add_task", func(w http.ResponseWriter, r *http.Request) {
		var task model.Task
		_ = json.NewDecoder(r.Body).Decode(&task)
		b.mu.Lock()
		defer b.mu.Unlock()
		b.addCalls++
		b.nextID++
		task.ID = b.nextID
		b.tasks = append(b.tasks, task)
		respond(w, http.StatusCreated, task)
	})
	r.Get("/tbl_tasklist/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, task := range b.tasks {
			if task.ID == id {
				respond(w, http.StatusOK, []model.Task{task})
				return
			}
		}
		respond(w, http.StatusNotFound, map[string]string{"error": "task_not_found"})
	})
	r.Patch("/update_task/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, _ := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		var req struct {
			MarkAsDone model.Flag `json:"mark_as_done"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.failPatch {
			respond(w, http.StatusServiceUnavailable, map[string]string{"error": "unavailable"})
			return
		}
		for i := range b.tasks {
			if b.tasks[i].ID == id {
				b.tasks[i].MarkAsDone = req.MarkAsDone
			}
		}
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Put("/update_task/{id}", func(w http.ResponseWriter, r *http.Request) {
		var task model.Task
		_ = json.NewDecoder(r.Body).Decode(&task)
		b.mu.Lock()
		defer b.mu.Unlock()
		for i := range b.tasks {
			if b.tasks[i].ID == task.ID {
				b.tasks[i] = task
			}
		}
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/delete_task", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID int64 `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		defer b.mu.Unlock()
		kept := b.tasks[:0]
		for _, task := range b.tasks {
			if task.ID != req.ID {
				kept = append(kept, task)
			}
		}
		b.tasks = kept
		respond(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func respond(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type cli struct {
	t       *testing.T
	backend *backend
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	b := &backend{}
	srv := httptest.NewServer(b.router())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("TASKTRACKER_API_URL", srv.URL)
	t.Setenv("TASKTRACKER_SESSION_BACKEND", "bolt")
	t.Setenv("TASKTRACKER_SESSION_PATH", filepath.Join(dir, "session.db"))
	return &cli{t: t, backend: b}
}

func (c *cli) run(args ...string) (string, error) {
	c.t.Helper()
	rootCmd, a := newRootCmd()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	a.close()
	return out.String(), err
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err, out)
	return out
}

func TestLoginListLogout(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("login", "--student-id", "S100", "--password", "pw")
	assert.Contains(t, out, "Welcome, Ana M. Cruz")
	assert.Contains(t, out, "No tasks yet.")

	out = c.mustRun("whoami", "-o", "yaml")
	var sess map[string]interface{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &sess))
	assert.Equal(t, "S100", sess["student_id"])
	assert.NotContains(t, out, "secret-token")

	out = c.mustRun("whoami", "-o", "json")
	assert.NotContains(t, out, "secret-token")

	c.mustRun("logout")
	_, err := c.run("list")
	assert.ErrorIs(t, err, tasks.ErrNoSession)
	assert.Equal(t, "not logged in", describe(err))
}

func TestTaskLifecycle(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "--student-id", "S100", "--password", "pw")

	out := c.mustRun("add", "--name", "Essay", "--course", "ENG101", "--deadline", "2024-05-01")
	assert.Contains(t, out, "Task 1 added")
	assert.Contains(t, out, "Essay")

	out = c.mustRun("list", "-o", "json")
	var list []model.Task
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, model.PriorityMedium, list[0].Priority)
	assert.Equal(t, "S100", list[0].StudentID)

	c.mustRun("done", "1")
	out = c.mustRun("show", "1", "-o", "json")
	var task model.Task
	require.NoError(t, json.Unmarshal([]byte(out), &task))
	assert.True(t, bool(task.MarkAsDone))

	c.mustRun("undone", "1")
	c.mustRun("update", "1", "--name", "Essay v2", "--priority", "HIGH")
	out = c.mustRun("show", "1", "-o", "yaml")
	require.NoError(t, yaml.Unmarshal([]byte(out), &task))
	assert.Equal(t, "Essay v2", task.Name)
	assert.Equal(t, model.PriorityHigh, task.Priority)
	assert.Equal(t, "ENG101", task.Course)
	assert.False(t, bool(task.MarkAsDone))

	out = c.mustRun("delete", "1")
	assert.Contains(t, out, "No tasks yet.")

	_, err := c.run("show", "1")
	assert.ErrorIs(t, err, clients.ErrNotFound)
}

func TestAddValidationSkipsBackend(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "--student-id", "S100", "--password", "pw")

	_, err := c.run("add", "--name", "Essay", "--deadline", "2024-05-01")
	var verr *tasks.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "course", verr.Field)
	assert.Equal(t, "Please fill all the fields: course is empty", describe(err))
	assert.Equal(t, 0, c.backend.addCalls)
}

func TestDoneFailureReported(t *testing.T) {
	c := newCLI(t)
	c.mustRun("login", "--student-id", "S100", "--password", "pw")
	c.mustRun("add", "--name", "Essay", "--course", "ENG101", "--deadline", "2024-05-01")

	c.backend.mu.Lock()
	c.backend.failPatch = true
	c.backend.mu.Unlock()

	_, err := c.run("done", "1")
	assert.True(t, clients.IsStatus(err, http.StatusServiceUnavailable))

	out := c.mustRun("list", "-o", "json")
	var list []model.Task
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	assert.False(t, bool(list[0].MarkAsDone))
}

func TestLoginRejected(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("login", "--student-id", "S100", "--password", "nope")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)

	_, err = c.run("whoami")
	assert.ErrorIs(t, err, tasks.ErrNoSession)
}

func TestInvalidArguments(t *testing.T) {
	c := newCLI(t)
	_, err := c.run("list", "-o", "xml")
	assert.EqualError(t, err, `unknown output format "xml"`)

	_, err = c.run("done", "abc")
	var verr *tasks.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = c.run("list", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	wrapped := fmt.Errorf("%w: %w", account.ErrUnreachable, errors.New("dial tcp: refused"))
	assert.Equal(t, wrapped.Error(), describe(wrapped))
	rejected := fmt.Errorf("%w: %w", account.ErrRejected, &clients.TransportError{Op: "login", Method: "POST", Path: "/login", Status: http.StatusBadRequest})
	assert.Equal(t, "login request rejected: login: POST /login: status 400", describe(rejected))
	assert.Equal(t, "Task not found", describe(&clients.TransportError{Op: "fetchTask", Status: http.StatusNotFound}))
	assert.Equal(t, "boom", describe(errors.New("boom")))
}

func TestPrintTasksTable(t *testing.T) {
	a := &app{format: "table"}
	var out bytes.Buffer
	require.NoError(t, a.printTasks(&out, []model.Task{
		{ID: 7, Name: "Lab", Course: "CS1", Priority: model.PriorityLow, Deadline: "2024-02-02", MarkAsDone: true},
	}))
	assert.Contains(t, out.String(), "ID  DONE")
	assert.Contains(t, out.String(), "[x]")
	assert.Contains(t, out.String(), "Lab")
}

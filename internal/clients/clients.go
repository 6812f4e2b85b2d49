package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tasktracker/internal/logging"
	"tasktracker/internal/model"
)

const maxResponseBytes = 4 << 20

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
	// Token returns the bearer token to attach, or "" for none.
	Token func(ctx context.Context) string
}

// TaskClient maps each remote task-service operation to one HTTP exchange.
// It never retries and never caches.
type TaskClient struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
	token   func(ctx context.Context) string
}

func New(opts Options) (*TaskClient, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid api url %q: scheme must be http or https", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &TaskClient{
		baseURL: base,
		http:    httpClient,
		logger:  logging.OrNop(opts.Logger),
		token:   opts.Token,
	}, nil
}

type LoginResult struct {
	User        *model.Session `json:"user"`
	AccessToken string         `json:"access_token"`
}

type loginRequest struct {
	StudentID string `json:"student_id"`
	Password  string `json:"password"`
}

type addTaskRequest struct {
	StudentID string         `json:"student_id"`
	Name      string         `json:"task_name"`
	Course    string         `json:"task_course"`
	Priority  model.Priority `json:"priority"`
	Deadline  string         `json:"deadline"`
}

type setDoneRequest struct {
	MarkAsDone int `json:"mark_as_done"`
}

type deleteTaskRequest struct {
	ID int64 `json:"id"`
}

func (c *TaskClient) Login(ctx context.Context, studentID, password string) (LoginResult, error) {
	var out LoginResult
	err := c.do(ctx, "login", http.MethodPost, "/login", nil, loginRequest{StudentID: studentID, Password: password}, &out)
	if err != nil {
		return LoginResult{}, err
	}
	return out, nil
}

func (c *TaskClient) FetchTasks(ctx context.Context, studentID string) ([]model.Task, error) {
	query := url.Values{"student_id": []string{studentID}}
	var out []model.Task
	if err := c.do(ctx, "fetchTasks", http.MethodGet, "/tasklist", query, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Task{}
	}
	return out, nil
}

// CreateTask posts a new task. Servers that answer with a bare ack yield a task with ID 0.
func (c *TaskClient) CreateTask(ctx context.Context, studentID string, draft model.Draft) (model.Task, error) {
	req := addTaskRequest{
		StudentID: studentID,
		Name:      draft.Name,
		Course:    draft.Course,
		Priority:  draft.Priority,
		Deadline:  draft.Deadline,
	}
	var raw json.RawMessage
	if err := c.do(ctx, "createTask", http.MethodPost, "/add_task", nil, req, &raw); err != nil {
		return model.Task{}, err
	}
	created := model.Task{
		StudentID: studentID,
		Name:      draft.Name,
		Course:    draft.Course,
		Priority:  draft.Priority,
		Deadline:  draft.Deadline,
	}
	var echoed model.Task
	if len(raw) > 0 && json.Unmarshal(raw, &echoed) == nil && echoed.ID != 0 {
		created.ID = echoed.ID
		created.MarkAsDone = echoed.MarkAsDone
	}
	return created, nil
}

func (c *TaskClient) FetchTask(ctx context.Context, taskID int64) (model.Task, error) {
	var out []model.Task
	if err := c.do(ctx, "fetchTask", http.MethodGet, "/tbl_tasklist/"+id(taskID), nil, nil, &out); err != nil {
		return model.Task{}, err
	}
	if len(out) == 0 {
		return model.Task{}, fmt.Errorf("fetchTask %d: %w", taskID, ErrNotFound)
	}
	return out[0], nil
}

func (c *TaskClient) UpdateTask(ctx context.Context, task model.Task) error {
	return c.do(ctx, "updateTask", http.MethodPut, "/update_task/"+id(task.ID), nil, task, nil)
}

func (c *TaskClient) SetDone(ctx context.Context, taskID int64, done bool) error {
	body := setDoneRequest{MarkAsDone: model.Flag(done).Int()}
	return c.do(ctx, "setDone", http.MethodPatch, "/update_task/"+id(taskID), nil, body, nil)
}

func (c *TaskClient) DeleteTask(ctx context.Context, taskID int64) error {
	return c.do(ctx, "deleteTask", http.MethodPost, "/delete_task", nil, deleteTaskRequest{ID: taskID}, nil)
}

func (c *TaskClient) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) error {
	target := *c.baseURL
	target.Path = c.baseURL.Path + path
	if query != nil {
		target.RawQuery = query.Encode()
	}
	fail := func(status int, err error) *TransportError {
		return &TransportError{Op: op, Method: method, Path: path, Status: status, Err: err}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fail(0, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return fail(0, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		if token := c.token(ctx); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("task service request failed",
			zap.String("op", op), zap.String("method", method), zap.String("path", path),
			zap.String("request_id", requestID), zap.Error(err))
		return fail(0, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.logger.Debug("task service request",
		zap.String("op", op), zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.String("request_id", requestID),
		zap.Duration("elapsed", time.Since(start)))
	if err != nil {
		return fail(resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		te := fail(resp.StatusCode, errors.New(http.StatusText(resp.StatusCode)))
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil {
			te.Code = payload.Error
		}
		return te
	}

	if out == nil {
		return nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if _, ack := out.(*json.RawMessage); ack {
			return nil
		}
		return fail(resp.StatusCode, errors.New("empty response body"))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fail(resp.StatusCode, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func id(taskID int64) string {
	return strconv.FormatInt(taskID, 10)
}

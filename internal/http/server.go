package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tasktracker/internal/auth"
	"tasktracker/internal/config"
	"tasktracker/internal/db"
	"tasktracker/internal/logging"
	"tasktracker/internal/model"
)

// Repository is the persistence the task service needs; *db.Store implements it.
type Repository interface {
	GetStudent(ctx context.Context, studentID string) (model.Student, error)
	ListTasks(ctx context.Context, studentID string) ([]model.Task, error)
	GetTask(ctx context.Context, id int64) (model.Task, error)
	CreateTask(ctx context.Context, task model.Task) (model.Task, error)
	UpdateTask(ctx context.Context, task model.Task) error
	SetTaskDone(ctx context.Context, id int64, done bool) error
	DeleteTask(ctx context.Context, id int64) error
}

type Server struct {
	cfg      config.Config
	repo     Repository
	logger   *zap.Logger
	registry *prometheus.Registry
	requests *prometheus.CounterVec
}

func NewServer(cfg config.Config, repo Repository, logger *zap.Logger) *Server {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tasktracker_http_requests_total",
		Help: "Task service requests by route, method and status.",
	}, []string{"route", "method", "status"})
	registry.MustRegister(requests, collectors.NewGoCollector())

	return &Server{
		cfg:      cfg,
		repo:     repo,
		logger:   logging.OrNop(logger),
		registry: registry,
		requests: requests,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware, s.metricsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/tasklist", s.handleListTasks)
		r.Post("/add_task", s.handleAddTask)
		r.Get("/tbl_tasklist/{taskId}", s.handleGetTask)
		r.Patch("/update_task/{taskId}", s.handlePatchTask)
		r.Put("/update_task/{taskId}", s.handlePutTask)
		r.Post("/delete_task", s.handleDeleteTask)
	})

	return r
}

// Middleware

type requestIDKey struct{}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		s.logger.Debug("request",
			zap.String("method", r.Method), zap.String("route", route), zap.Int("status", status),
			zap.String("request_id", requestIDFromContext(r.Context())), zap.Duration("elapsed", time.Since(start)))
	})
}

type claimsKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.RequireAuth {
			next.ServeHTTP(w, r)
			return
		}
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := auth.ParseToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}

// allowed reports whether the caller may act for studentID. Without auth every caller may.
func allowed(ctx context.Context, studentID string) bool {
	claims := claimsFromContext(ctx)
	return claims == nil || claims.StudentID == studentID
}

// Models

type loginRequest struct {
	StudentID string `json:"student_id"`
	Password  string `json:"password"`
}

type loginResponse struct {
	User        model.Session `json:"user"`
	AccessToken string        `json:"access_token,omitempty"`
}

type addTaskRequest struct {
	StudentID string `json:"student_id"`
	Name      string `json:"task_name"`
	Course    string `json:"task_course"`
	Priority  string `json:"priority"`
	Deadline  string `json:"deadline"`
}

type patchTaskRequest struct {
	MarkAsDone *model.Flag `json:"mark_as_done"`
}

type deleteTaskRequest struct {
	ID int64 `json:"id"`
}

// Handlers

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.StudentID = strings.TrimSpace(req.StudentID)
	if req.StudentID == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	student, err := s.repo.GetStudent(r.Context(), req.StudentID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		s.serverError(w, r, "get student", err)
		return
	}
	if err := auth.CheckPassword(student.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	resp := loginResponse{User: student.Session()}
	if s.cfg.JWTSecret != "" {
		token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AccessTokenTTL, student.StudentID)
		if err != nil {
			s.serverError(w, r, "issue token", err)
			return
		}
		resp.AccessToken = token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	studentID := strings.TrimSpace(r.URL.Query().Get("student_id"))
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "missing_student_id")
		return
	}
	if !allowed(r.Context(), studentID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	tasks, err := s.repo.ListTasks(r.Context(), studentID)
	if err != nil {
		s.serverError(w, r, "list tasks", err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleAddTask(w http.ResponseWriter, r *http.Request) {
	var req addTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	task := model.Task{
		StudentID: strings.TrimSpace(req.StudentID),
		Name:      strings.TrimSpace(req.Name),
		Course:    strings.TrimSpace(req.Course),
		Deadline:  strings.TrimSpace(req.Deadline),
	}
	if task.StudentID == "" || task.Name == "" || task.Course == "" || req.Priority == "" || task.Deadline == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if code := normalizeTask(&task, req.Priority); code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}
	if !allowed(r.Context(), task.StudentID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	created, err := s.repo.CreateTask(r.Context(), task)
	if err != nil {
		if errors.Is(err, db.ErrUnknownStudent) {
			writeError(w, http.StatusNotFound, "student_not_found")
			return
		}
		s.serverError(w, r, "create task", err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.loadTask(w, r, chi.URLParam(r, "taskId"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, []model.Task{task})
}

func (s *Server) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	var req patchTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.MarkAsDone == nil {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	task, ok := s.loadTask(w, r, chi.URLParam(r, "taskId"))
	if !ok {
		return
	}
	if err := s.repo.SetTaskDone(r.Context(), task.ID, bool(*req.MarkAsDone)); err != nil {
		s.taskWriteError(w, r, "set task done", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePutTask(w http.ResponseWriter, r *http.Request) {
	var req model.Task
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	existing, ok := s.loadTask(w, r, chi.URLParam(r, "taskId"))
	if !ok {
		return
	}

	task := model.Task{
		ID:         existing.ID,
		StudentID:  existing.StudentID,
		Name:       strings.TrimSpace(req.Name),
		Course:     strings.TrimSpace(req.Course),
		Deadline:   strings.TrimSpace(req.Deadline),
		MarkAsDone: req.MarkAsDone,
	}
	if task.Name == "" || task.Course == "" || req.Priority == "" || task.Deadline == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}
	if code := normalizeTask(&task, string(req.Priority)); code != "" {
		writeError(w, http.StatusBadRequest, code)
		return
	}
	if err := s.repo.UpdateTask(r.Context(), task); err != nil {
		s.taskWriteError(w, r, "update task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	var req deleteTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.ID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return
	}
	task, ok := s.loadTask(w, r, strconv.FormatInt(req.ID, 10))
	if !ok {
		return
	}
	if err := s.repo.DeleteTask(r.Context(), task.ID); err != nil {
		s.taskWriteError(w, r, "delete task", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// loadTask resolves a task id, writing the error response itself when it fails.
func (s *Server) loadTask(w http.ResponseWriter, r *http.Request, rawID string) (model.Task, bool) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id")
		return model.Task{}, false
	}
	task, err := s.repo.GetTask(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "task_not_found")
			return model.Task{}, false
		}
		s.serverError(w, r, "get task", err)
		return model.Task{}, false
	}
	if !allowed(r.Context(), task.StudentID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return model.Task{}, false
	}
	return task, true
}

func (s *Server) taskWriteError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "task_not_found")
		return
	}
	s.serverError(w, r, op, err)
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error("handler failed", zap.String("op", op),
		zap.String("request_id", requestIDFromContext(r.Context())), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "server_error")
}

func normalizeTask(task *model.Task, priority string) string {
	parsed, err := model.ParsePriority(priority)
	if err != nil {
		return "invalid_priority"
	}
	task.Priority = parsed
	deadline, err := model.ParseDeadline(task.Deadline)
	if err != nil {
		return "invalid_deadline"
	}
	task.Deadline = deadline.Format("2006-01-02")
	return ""
}

// Utilities

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

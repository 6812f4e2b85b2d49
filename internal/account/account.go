package account

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"tasktracker/internal/clients"
	"tasktracker/internal/logging"
	"tasktracker/internal/model"
	"tasktracker/internal/tasks"
)

var (
	ErrInvalidCredentials = errors.New("invalid student id or password")
	ErrUnreachable        = errors.New("task service unreachable")
	ErrRejected           = errors.New("login request rejected")
)

type Authenticator interface {
	Login(ctx context.Context, studentID, password string) (clients.LoginResult, error)
}

type SessionStore interface {
	Save(ctx context.Context, s model.Session) error
	Load(ctx context.Context) (model.Session, bool, error)
	Clear(ctx context.Context) error
}

// TaskCache is the part of the sync controller that must forget a session's tasks.
type TaskCache interface {
	Reset()
}

// Controller is the only writer of the session store.
type Controller struct {
	remote   Authenticator
	sessions SessionStore
	tasks    TaskCache
	logger   *zap.Logger
}

func NewController(remote Authenticator, sessions SessionStore, taskCache TaskCache, logger *zap.Logger) *Controller {
	return &Controller{
		remote:   remote,
		sessions: sessions,
		tasks:    taskCache,
		logger:   logging.OrNop(logger),
	}
}

func (c *Controller) Login(ctx context.Context, studentID, password string) (model.Session, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return model.Session{}, &tasks.ValidationError{Field: "student_id", Reason: "required"}
	}
	if password == "" {
		return model.Session{}, &tasks.ValidationError{Field: "password", Reason: "required"}
	}

	res, err := c.remote.Login(ctx, studentID, password)
	if err != nil {
		if clients.IsStatus(err, http.StatusUnauthorized) {
			return model.Session{}, ErrInvalidCredentials
		}
		var te *clients.TransportError
		if errors.As(err, &te) && te.Status >= 400 && te.Status < 500 {
			c.logger.Warn("login rejected", zap.String("student_id", studentID), zap.Error(err))
			return model.Session{}, fmt.Errorf("%w: %w", ErrRejected, err)
		}
		c.logger.Warn("error logging in", zap.String("student_id", studentID), zap.Error(err))
		return model.Session{}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if res.User == nil || !res.User.Valid() {
		return model.Session{}, ErrInvalidCredentials
	}

	sess := *res.User
	sess.AccessToken = res.AccessToken
	c.tasks.Reset()
	if err := c.sessions.Save(ctx, sess); err != nil {
		return model.Session{}, fmt.Errorf("persist session: %w", err)
	}
	c.logger.Info("logged in", zap.String("student_id", sess.StudentID))
	return sess, nil
}

// Logout clears the stored session and the task cache. The cache is dropped
// even when the store fails to clear.
func (c *Controller) Logout(ctx context.Context) error {
	c.tasks.Reset()
	if err := c.sessions.Clear(ctx); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

func (c *Controller) Current(ctx context.Context) (model.Session, bool, error) {
	return c.sessions.Load(ctx)
}

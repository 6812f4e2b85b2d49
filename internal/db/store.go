package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tasktracker/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrUnknownStudent = errors.New("unknown student")
)

const deadlineLayout = "2006-01-02"

type Store struct {
	Pool *pgxpool.Pool
}

func NewPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		student_id      TEXT PRIMARY KEY,
		password_hash   TEXT NOT NULL,
		firstname       TEXT NOT NULL,
		middlename      TEXT NOT NULL DEFAULT '',
		lastname        TEXT NOT NULL,
		profile_picture TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id           BIGSERIAL PRIMARY KEY,
		student_id   TEXT NOT NULL REFERENCES students (student_id) ON DELETE CASCADE,
		task_name    TEXT NOT NULL,
		task_course  TEXT NOT NULL,
		priority     TEXT NOT NULL CHECK (priority IN ('high', 'medium', 'low')),
		deadline     DATE NOT NULL,
		mark_as_done BOOLEAN NOT NULL DEFAULT false,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS tasks_student_id_idx ON tasks (student_id, id)`,
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for _, stmt := range schema {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) UpsertStudent(ctx context.Context, student model.Student) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO students (student_id, password_hash, firstname, middlename, lastname, profile_picture)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			firstname = EXCLUDED.firstname,
			middlename = EXCLUDED.middlename,
			lastname = EXCLUDED.lastname,
			profile_picture = EXCLUDED.profile_picture
	`, student.StudentID, student.PasswordHash, student.FirstName, student.MiddleName, student.LastName, student.ProfilePictureURL)
	return err
}

func (s *Store) GetStudent(ctx context.Context, studentID string) (model.Student, error) {
	var student model.Student
	row := s.Pool.QueryRow(ctx, `
		SELECT student_id, password_hash, firstname, middlename, lastname, profile_picture, created_at
		FROM students
		WHERE student_id = $1
	`, studentID)
	err := row.Scan(
		&student.StudentID,
		&student.PasswordHash,
		&student.FirstName,
		&student.MiddleName,
		&student.LastName,
		&student.ProfilePictureURL,
		&student.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Student{}, ErrNotFound
	}
	return student, err
}

func (s *Store) ListTasks(ctx context.Context, studentID string) ([]model.Task, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, student_id, task_name, task_course, priority, deadline, mark_as_done
		FROM tasks
		WHERE student_id = $1
		ORDER BY id
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, rows.Err()
}

func (s *Store) GetTask(ctx context.Context, id int64) (model.Task, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT id, student_id, task_name, task_course, priority, deadline, mark_as_done
		FROM tasks
		WHERE id = $1
	`, id)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Task{}, ErrNotFound
	}
	return task, err
}

func (s *Store) CreateTask(ctx context.Context, task model.Task) (model.Task, error) {
	deadline, err := model.ParseDeadline(task.Deadline)
	if err != nil {
		return model.Task{}, err
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO tasks (student_id, task_name, task_course, priority, deadline, mark_as_done)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, student_id, task_name, task_course, priority, deadline, mark_as_done
	`, task.StudentID, task.Name, task.Course, string(task.Priority), deadline, bool(task.MarkAsDone))
	created, err := scanTask(row)
	if isForeignKeyViolation(err) {
		return model.Task{}, ErrUnknownStudent
	}
	return created, err
}

func (s *Store) UpdateTask(ctx context.Context, task model.Task) error {
	deadline, err := model.ParseDeadline(task.Deadline)
	if err != nil {
		return err
	}
	tag, err := s.Pool.Exec(ctx, `
		UPDATE tasks
		SET task_name = $2, task_course = $3, priority = $4, deadline = $5, mark_as_done = $6
		WHERE id = $1
	`, task.ID, task.Name, task.Course, string(task.Priority), deadline, bool(task.MarkAsDone))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetTaskDone(ctx context.Context, id int64, done bool) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE tasks SET mark_as_done = $2 WHERE id = $1`, id, done)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (model.Task, error) {
	var (
		task     model.Task
		priority string
		deadline time.Time
		done     bool
	)
	if err := row.Scan(&task.ID, &task.StudentID, &task.Name, &task.Course, &priority, &deadline, &done); err != nil {
		return model.Task{}, err
	}
	task.Priority = model.Priority(priority)
	task.Deadline = deadline.Format(deadlineLayout)
	task.MarkAsDone = model.Flag(done)
	return task, nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

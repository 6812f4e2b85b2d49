package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

func ParsePriority(value string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(value))) {
	case PriorityHigh:
		return PriorityHigh, nil
	case PriorityMedium:
		return PriorityMedium, nil
	case PriorityLow:
		return PriorityLow, nil
	default:
		return "", fmt.Errorf("invalid priority %q", value)
	}
}

// Session is the authenticated student as returned by POST /login.
type Session struct {
	StudentID         string `json:"student_id" yaml:"student_id"`
	FirstName         string `json:"firstname" yaml:"firstname"`
	MiddleName        string `json:"middlename,omitempty" yaml:"middlename,omitempty"`
	LastName          string `json:"lastname" yaml:"lastname"`
	ProfilePictureURL string `json:"profile_picture,omitempty" yaml:"profile_picture,omitempty"`
	AccessToken       string `json:"access_token,omitempty" yaml:"-"`
}

func (s Session) Valid() bool {
	return strings.TrimSpace(s.StudentID) != ""
}

// DisplayName renders "First M. Last", dropping the initial when there is no middle name.
func (s Session) DisplayName() string {
	middle := strings.TrimSpace(s.MiddleName)
	if middle == "" {
		return strings.TrimSpace(s.FirstName + " " + s.LastName)
	}
	initial := []rune(middle)[0]
	return fmt.Sprintf("%s %c. %s", s.FirstName, initial, s.LastName)
}

type Task struct {
	ID         int64    `json:"id" yaml:"id"`
	StudentID  string   `json:"student_id,omitempty" yaml:"student_id,omitempty"`
	Name       string   `json:"task_name" yaml:"task_name"`
	Course     string   `json:"task_course" yaml:"task_course"`
	Priority   Priority `json:"priority" yaml:"priority"`
	Deadline   string   `json:"deadline" yaml:"deadline"`
	MarkAsDone Flag     `json:"mark_as_done" yaml:"mark_as_done"`
}

// Draft carries the fields of a task the server has not assigned an id to yet.
type Draft struct {
	Name     string
	Course   string
	Priority Priority
	Deadline string
}

func NewDraft(name, course, deadline string) Draft {
	return Draft{Name: name, Course: course, Priority: PriorityMedium, Deadline: deadline}
}

// Student is the backend row behind a Session.
type Student struct {
	StudentID         string
	PasswordHash      string
	FirstName         string
	MiddleName        string
	LastName          string
	ProfilePictureURL string
	CreatedAt         time.Time
}

func (s Student) Session() Session {
	return Session{
		StudentID:         s.StudentID,
		FirstName:         s.FirstName,
		MiddleName:        s.MiddleName,
		LastName:          s.LastName,
		ProfilePictureURL: s.ProfilePictureURL,
	}
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"}

// ParseDeadline accepts a calendar date, optionally with a time component.
func ParseDeadline(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid deadline %q", value)
}

// Flag is a completion flag that tolerates the 0/1 encoding some backends use.
type Flag bool

var errInvalidFlag = errors.New("invalid mark_as_done value")

func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "true", "1", `"1"`, `"true"`:
		*f = true
	case "false", "0", `"0"`, `"false"`, "null", `""`:
		*f = false
	default:
		return fmt.Errorf("%w: %s", errInvalidFlag, data)
	}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	return json.Marshal(bool(f))
}

// Int is the 0/1 form sent in PATCH bodies.
func (f Flag) Int() int {
	if f {
		return 1
	}
	return 0
}

package clients

import (
	"errors"
	"fmt"
	"net/http"
)

var ErrNotFound = errors.New("not found")

// TransportError is any failed exchange with the task service: unreachable host,
// timeout, non-success status or an undecodable body. Err keeps the cause.
type TransportError struct {
	Op     string
	Method string
	Path   string
	Status int
	Code   string
	Err    error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Code != "":
		return fmt.Sprintf("%s: %s %s: status %d (%s)", e.Op, e.Method, e.Path, e.Status, e.Code)
	case e.Status != 0:
		return fmt.Sprintf("%s: %s %s: status %d", e.Op, e.Method, e.Path, e.Status)
	default:
		return fmt.Sprintf("%s: %s %s: %v", e.Op, e.Method, e.Path, e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

func IsStatus(err error, status int) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Status == status
}

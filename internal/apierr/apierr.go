package apierr

import "fmt"

// Error carries the HTTP status and envelope code a handler should render.
type Error struct {
	Status int
	Code   int
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code int, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

package store

import (
	"fmt"
	"strings"
)

// ValidationError is a local failure detected before any remote call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Field)
}

func missingFields(fields []string) *ValidationError {
	reason := "missing required field"
	if len(fields) > 1 {
		reason = "missing required fields"
	}
	return &ValidationError{Field: strings.Join(fields, ", "), Reason: reason}
}

// TransportError wraps a rejected or unreachable remote log call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Result is returned by every mutation; mutations never return a Go error.
type Result struct {
	Success bool   `json:"success"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

func ok(id string) Result {
	return Result{Success: true, ID: id}
}

func failed(err error) Result {
	return Result{Error: err.Error(), Err: err}
}

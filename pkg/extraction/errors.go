package extraction

import (
	"errors"
	"fmt"
	"time"
)

// Task failure classes drive the worker's retry decision.
type failureClass int

const (
	classTransient failureClass = iota
	classPermanent
	classRateLimited
	classMemory
)

// Error codes persisted on permanently failed tasks.
const (
	CodeMissingCampaign     = "MISSING_CAMPAIGN"
	CodeDeletedResource     = "DELETED_RESOURCE"
	CodeMalformedPayload    = "MALFORMED_PAYLOAD"
	CodeMemoryLimitExceeded = "MEMORY_LIMIT_EXCEEDED"
	CodeRateLimited         = "RATE_LIMITED"
)

// TaskError carries the classification the worker needs.
type TaskError struct {
	class      failureClass
	Code       string
	RetryAfter time.Duration
	Err        error
}

func (e *TaskError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Err.Error()
}

func (e *TaskError) Unwrap() error { return e.Err }

// Permanent wraps an error that must never be retried.
func Permanent(code string, err error) *TaskError {
	return &TaskError{class: classPermanent, Code: code, Err: err}
}

// Transient wraps an error worth retrying with backoff.
func Transient(err error) *TaskError {
	return &TaskError{class: classTransient, Err: err}
}

// RateLimited wraps a provider 429 with its retry-after hint.
func RateLimited(retryAfter time.Duration, err error) *TaskError {
	return &TaskError{class: classRateLimited, Code: CodeRateLimited, RetryAfter: retryAfter, Err: err}
}

// Memory wraps an oversized-payload failure; the caller must split the file.
func Memory(err error) *TaskError {
	return &TaskError{class: classMemory, Code: CodeMemoryLimitExceeded, Err: err}
}

// classify resolves any error into a failure class, defaulting unknown
// errors to transient (network errors and 5xx dominate that bucket).
func classify(err error) *TaskError {
	var te *TaskError
	if errors.As(err, &te) {
		return te
	}
	return Transient(err)
}

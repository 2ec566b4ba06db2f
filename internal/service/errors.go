package service

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the job service. The API layer maps them to
// status codes; callers check them with errors.Is.
var (
	// ErrNotOwned indicates a resource is owned by a different user than the one making the request.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrInvalidRequest is the umbrella for input rejected before anything is queued.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidQuantity indicates a blog quantity outside 1..20.
	ErrInvalidQuantity = fmt.Errorf("%w: quantity must be between 1 and 20", ErrInvalidRequest)

	// ErrUnknownTemplate indicates a template key that is not registered.
	ErrUnknownTemplate = fmt.Errorf("%w: unknown template", ErrInvalidRequest)

	// ErrWebsiteNotReady indicates more blogs were requested for a website
	// whose generation has not finished.
	// API layer should map this to HTTP 409 Conflict.
	ErrWebsiteNotReady = errors.New("website generation has not finished")

	// ErrJobNotCancellable indicates a cancel request for a job that is
	// already running or finished.
	ErrJobNotCancellable = errors.New("job is active or finished and cannot be cancelled")
)

// ServiceError wraps an unexpected failure with the service and operation
// it happened in.
type ServiceError struct {
	Service string
	Op      string
	Err     error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s service %s operation failed", e.Service, e.Op)
	}
	return fmt.Sprintf("%s service %s operation failed: %v", e.Service, e.Op, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

func wrapJobError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{Service: "job", Op: op, Err: err}
}

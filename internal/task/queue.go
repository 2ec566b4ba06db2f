package task

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrJobNotFound is returned when no job has the requested ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrStaleClaim is returned when a worker reports on an attempt that is no
	// longer current, e.g. after the job was recovered as stalled and re-claimed.
	ErrStaleClaim = errors.New("job claim is no longer current")

	// ErrJobTimeout is the failure recorded when an attempt exceeds its timeout.
	ErrJobTimeout = errors.New("job attempt timed out")

	// ErrJobCancelled is the cleanup cause for jobs that were cancelled or
	// cleared after an attempt had already written content.
	ErrJobCancelled = errors.New("job cancelled after an attempt ran")

	// ErrJobStalled is the failure recorded when an active job's worker
	// stopped reporting before the lease ran out.
	ErrJobStalled = errors.New("job stalled")
)

// Stats counts jobs by status.
type Stats struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Paused    bool  `json:"paused"`
}

// Queue is the control side of the job queue used by request handlers.
type Queue interface {
	// Enqueue durably records a job. It either returns the stored job or fails.
	Enqueue(ctx context.Context, spec JobSpec) (*Job, error)

	// Get returns the job with the given ID or ErrJobNotFound.
	Get(ctx context.Context, id string) (*Job, error)

	// Cancel cancels a waiting or delayed job and reports whether it did.
	// Active and finished jobs are left untouched. A cancelled job that
	// already ran an attempt is handed to TakeAbandoned for cleanup.
	Cancel(ctx context.Context, id string) (bool, error)

	// Pause stops workers from claiming jobs; queued jobs are kept.
	Pause(ctx context.Context) error

	// Resume lets workers claim jobs again.
	Resume(ctx context.Context) error

	// ClearPending removes all waiting and delayed jobs and returns how many
	// were removed. Active jobs are never touched. Removed jobs that already
	// ran an attempt are handed to TakeAbandoned for cleanup.
	ClearPending(ctx context.Context) (int, error)

	// Stats returns job counts by status.
	Stats(ctx context.Context) (Stats, error)
}

// WorkSource is the worker side of the job queue.
type WorkSource interface {
	// Claim atomically moves the next due job to active, increments its
	// attempt count and returns it. It returns nil, nil when nothing is due
	// or the queue is paused.
	Claim(ctx context.Context) (*Job, error)

	// UpdateProgress raises the progress of the current attempt. Lower values
	// than the recorded progress are ignored.
	UpdateProgress(ctx context.Context, id string, attempt, progress int) error

	// Complete records the result of the attempt and marks the job completed.
	Complete(ctx context.Context, id string, attempt int, result json.RawMessage) error

	// Retry records the failure of the attempt and schedules the job to run
	// again at runAt.
	Retry(ctx context.Context, id string, attempt int, reason string, runAt time.Time) error

	// Fail records the failure of the attempt and marks the job failed for good.
	Fail(ctx context.Context, id string, attempt int, reason string) error

	// RecoverStalled returns active jobs whose lease expired to the delayed
	// set, or fails them when no attempts remain. It returns the jobs it failed.
	RecoverStalled(ctx context.Context) ([]*Job, error)

	// TakeAbandoned returns jobs that were cancelled or cleared after at least
	// one attempt ran, so their partial work can be undone. Each job is
	// returned once.
	TakeAbandoned(ctx context.Context) ([]*Job, error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The runner fails the job
// immediately and runs final-failure cleanup.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

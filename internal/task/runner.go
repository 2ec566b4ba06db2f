package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/sitegen-api/internal/events"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
)

// ProgressFunc reports the progress percentage of the running attempt.
// It returns ErrStaleClaim when the attempt lost its claim on the job.
type ProgressFunc func(ctx context.Context, progress int) error

// Handler executes jobs. A single handler serves every job type and
// dispatches on Job.Type.
type Handler interface {
	// Handle runs one attempt of the job and returns its result.
	Handle(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error)

	// OnFinalFailure undoes partial work after the last attempt failed.
	// It must not return an error; failures are logged by the handler.
	OnFinalFailure(ctx context.Context, job *Job, cause error)
}

// RunnerConfig holds configuration for the job runner
type RunnerConfig struct {
	// WorkerCount determines how many jobs are processed concurrently
	WorkerCount int

	// PollInterval is how long an idle worker waits before claiming again
	PollInterval time.Duration

	// StalledCheckInterval defines how often to look for jobs whose worker died
	StalledCheckInterval time.Duration

	// CleanupTimeout bounds the final-failure cleanup of one job
	CleanupTimeout time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:          2,
		PollInterval:         time.Second,
		StalledCheckInterval: time.Minute,
		CleanupTimeout:       time.Minute,
	}
}

// Runner pulls jobs from a WorkSource and executes them with a Handler,
// applying the per-attempt timeout, retry with exponential backoff and
// final-failure cleanup.
type Runner struct {
	source  WorkSource
	handler Handler
	config  RunnerConfig
	logger  *slog.Logger
	emitter events.EventEmitter

	// ctx stops claiming; jobCtx is the parent of running attempts and is
	// only cancelled when a graceful stop times out.
	ctx       context.Context
	cancel    context.CancelFunc
	jobCtx    context.Context
	jobCancel context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	wake      chan struct{}
}

var (
	ErrNilWorkSource = errors.New("work source cannot be nil")
	ErrNilHandler    = errors.New("handler cannot be nil")
)

// NewRunner creates a Runner. The emitter may be nil.
func NewRunner(
	source WorkSource,
	handler Handler,
	config RunnerConfig,
	logger *slog.Logger,
	emitter events.EventEmitter,
) (*Runner, error) {
	if source == nil {
		return nil, ErrNilWorkSource
	}
	if handler == nil {
		return nil, ErrNilHandler
	}
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultRunnerConfig()
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", defaults.WorkerCount)
		config.WorkerCount = defaults.WorkerCount
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.StalledCheckInterval <= 0 {
		config.StalledCheckInterval = defaults.StalledCheckInterval
	}
	if config.CleanupTimeout <= 0 {
		config.CleanupTimeout = defaults.CleanupTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	jobCtx, jobCancel := context.WithCancel(context.Background())

	return &Runner{
		source:    source,
		handler:   handler,
		config:    config,
		logger:    logger.With("component", "job_runner"),
		emitter:   emitter,
		ctx:       ctx,
		cancel:    cancel,
		jobCtx:    jobCtx,
		jobCancel: jobCancel,
		wake:      make(chan struct{}, config.WorkerCount),
	}, nil
}

// Start launches the workers and the stalled-job monitor.
func (r *Runner) Start() {
	r.startOnce.Do(func() {
		r.logger.Info("starting job runner", "worker_count", r.config.WorkerCount)
		for i := 0; i < r.config.WorkerCount; i++ {
			r.wg.Add(1)
			go r.worker(i)
		}
		r.wg.Add(1)
		go r.stalledJobMonitor()
	})
}

// Notify wakes an idle worker, e.g. right after a job was enqueued in-process.
func (r *Runner) Notify() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Stop stops claiming new jobs and waits for running attempts to finish.
// If ctx expires first, running attempts are cancelled and Stop waits for
// them to unwind before returning ctx's error.
func (r *Runner) Stop(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.jobCancel()
		return nil
	case <-ctx.Done():
		r.logger.Warn("graceful stop timed out, cancelling running jobs")
		r.jobCancel()
		<-done
		return ctx.Err()
	}
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()
	r.logger.Debug("starting worker", "worker_id", id)

	for {
		if r.ctx.Err() != nil {
			r.logger.Debug("stopping worker", "worker_id", id)
			return
		}

		job, err := r.source.Claim(r.ctx)
		if err != nil && r.ctx.Err() == nil {
			r.logger.Error("failed to claim job", "worker_id", id, "error", err)
		}
		if job != nil {
			r.processJob(job, id)
			continue
		}

		select {
		case <-r.ctx.Done():
		case <-r.wake:
		case <-time.After(r.config.PollInterval):
		}
	}
}

// processJob runs one claimed attempt and records its outcome.
func (r *Runner) processJob(job *Job, workerID int) {
	log := r.logger.With(
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.AttemptsMade,
		"max_attempts", job.MaxAttempts,
		"worker_id", workerID,
	)
	base := logger.WithLogger(r.jobCtx, log)

	log.Info("processing job")
	start := time.Now()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultOptions(job.Type).Timeout
	}
	attemptCtx, cancel := context.WithTimeout(base, timeout)
	result, err := r.handle(attemptCtx, job, log)
	timedOut := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil && timedOut {
		err = fmt.Errorf("%w after %s: %v", ErrJobTimeout, timeout, err)
	}
	duration := time.Since(start)

	// Outcome bookkeeping must survive a cancelled jobCtx.
	ctx := logger.WithLogger(context.Background(), log)

	if err == nil {
		if cErr := r.source.Complete(ctx, job.ID, job.AttemptsMade, result); cErr != nil {
			log.Error("failed to mark job completed", "error", cErr)
			return
		}
		log.Info("job completed", "duration_ms", duration.Milliseconds())
		r.emit(ctx, events.JobCompleted, job, duration, "")
		return
	}

	if errors.Is(err, ErrStaleClaim) {
		log.Warn("job claim lost during attempt, outcome discarded", "error", err)
		return
	}

	reason := err.Error()
	if !IsPermanent(err) && !job.IsFinalAttempt() {
		runAt := time.Now().Add(job.Backoff())
		if rErr := r.source.Retry(ctx, job.ID, job.AttemptsMade, reason, runAt); rErr != nil {
			log.Error("failed to schedule job retry", "error", rErr)
			return
		}
		log.Warn("job attempt failed, retry scheduled",
			"error", err,
			"retry_at", runAt)
		r.emit(ctx, events.JobRetryScheduled, job, duration, reason)
		return
	}

	log.Error("job failed", "error", err, "permanent", IsPermanent(err))
	// Fail checks the claim, so cleanup never runs for an attempt that was
	// already superseded.
	if fErr := r.source.Fail(ctx, job.ID, job.AttemptsMade, reason); fErr != nil {
		if errors.Is(fErr, ErrStaleClaim) {
			log.Warn("job claim lost before failure was recorded, skipping cleanup")
			return
		}
		log.Error("failed to mark job failed", "error", fErr)
		return
	}
	r.cleanup(ctx, job, err)
	r.emit(ctx, events.JobFailed, job, duration, reason)
}

// handle calls the handler, turning a panic into an error.
func (r *Runner) handle(ctx context.Context, job *Job, log *slog.Logger) (result json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("job handler panicked", "panic", p)
			err = fmt.Errorf("job handler panicked: %v", p)
		}
	}()

	progress := func(ctx context.Context, pct int) error {
		if pErr := r.source.UpdateProgress(ctx, job.ID, job.AttemptsMade, pct); pErr != nil {
			if errors.Is(pErr, ErrStaleClaim) {
				return pErr
			}
			log.Warn("failed to record job progress", "progress", pct, "error", pErr)
		}
		return nil
	}
	return r.handler.Handle(ctx, job, progress)
}

func (r *Runner) cleanup(ctx context.Context, job *Job, cause error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.CleanupTimeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			logger.FromContext(ctx).Error("final-failure cleanup panicked", "panic", p)
		}
	}()
	r.handler.OnFinalFailure(ctx, job, cause)
}

func (r *Runner) emit(ctx context.Context, eventType string, job *Job, d time.Duration, reason string) {
	if r.emitter == nil {
		return
	}
	event := events.NewJobEvent(eventType, job.ID, string(job.Type), job.AttemptsMade, d, reason)
	if err := r.emitter.EmitEvent(ctx, event); err != nil {
		r.logger.Warn("failed to emit job event", "event_type", eventType, "job_id", job.ID, "error", err)
	}
}

// stalledJobMonitor periodically recovers jobs whose worker vanished, cleans
// up after the ones that ran out of attempts and after abandoned jobs.
func (r *Runner) stalledJobMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StalledCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.RecoverStalled(r.ctx)
			r.CleanupAbandoned(r.ctx)
		}
	}
}

// RecoverStalled runs one stalled-job sweep.
func (r *Runner) RecoverStalled(ctx context.Context) {
	failed, err := r.source.RecoverStalled(ctx)
	if err != nil {
		r.logger.Error("failed to recover stalled jobs", "error", err)
		return
	}

	for _, job := range failed {
		log := r.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.AttemptsMade)
		log.Error("stalled job exhausted its attempts")
		jobCtx := logger.WithLogger(context.Background(), log)
		r.cleanup(jobCtx, job, ErrJobStalled)
		r.emit(jobCtx, events.JobFailed, job, 0, ErrJobStalled.Error())
	}
}

// CleanupAbandoned undoes the partial work of jobs that were cancelled or
// cleared between attempts.
func (r *Runner) CleanupAbandoned(ctx context.Context) {
	abandoned, err := r.source.TakeAbandoned(ctx)
	if err != nil {
		r.logger.Error("failed to take abandoned jobs", "error", err)
		return
	}

	for _, job := range abandoned {
		log := r.logger.With("job_id", job.ID, "job_type", job.Type, "attempt", job.AttemptsMade)
		log.Info("cleaning up after abandoned job")
		r.cleanup(logger.WithLogger(context.Background(), log), job, ErrJobCancelled)
	}
}

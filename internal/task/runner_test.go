package task

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/sitegen-api/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSource is an in-memory WorkSource that hands out the jobs it was
// seeded with and records the outcome of each attempt.
type memSource struct {
	mu        sync.Mutex
	pending   []*Job
	progress  map[string][]int
	completed map[string]json.RawMessage
	retried   map[string]time.Time
	failed    map[string]string
	stalled   []*Job
	abandoned []*Job
	staleFrom map[string]bool
}

func newMemSource(jobs ...*Job) *memSource {
	return &memSource{
		pending:   jobs,
		progress:  make(map[string][]int),
		completed: make(map[string]json.RawMessage),
		retried:   make(map[string]time.Time),
		failed:    make(map[string]string),
		staleFrom: make(map[string]bool),
	}
}

func (s *memSource) Claim(ctx context.Context) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	job := s.pending[0]
	s.pending = s.pending[1:]
	job.AttemptsMade++
	job.Status = JobStatusActive
	return job, nil
}

func (s *memSource) UpdateProgress(ctx context.Context, id string, attempt, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleFrom[id] {
		return ErrStaleClaim
	}
	s.progress[id] = append(s.progress[id], progress)
	return nil
}

func (s *memSource) Complete(ctx context.Context, id string, attempt int, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[id] = result
	return nil
}

func (s *memSource) Retry(ctx context.Context, id string, attempt int, reason string, runAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retried[id] = runAt
	return nil
}

func (s *memSource) Fail(ctx context.Context, id string, attempt int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staleFrom[id] {
		return ErrStaleClaim
	}
	s.failed[id] = reason
	return nil
}

func (s *memSource) RecoverStalled(ctx context.Context) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stalled
	s.stalled = nil
	return out, nil
}

func (s *memSource) TakeAbandoned(ctx context.Context) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.abandoned
	s.abandoned = nil
	return out, nil
}

func (s *memSource) snapshot() (completed, failed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed), len(s.failed)
}

type handlerFunc struct {
	handle  func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error)
	mu      sync.Mutex
	cleaned []string
	causes  []error
}

func (h *handlerFunc) Handle(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
	return h.handle(ctx, job, progress)
}

func (h *handlerFunc) OnFinalFailure(ctx context.Context, job *Job, cause error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleaned = append(h.cleaned, job.ID)
	h.causes = append(h.causes, cause)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*events.JobEvent
}

func (e *recordingEmitter) EmitEvent(ctx context.Context, event *events.JobEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
	return nil
}

func (e *recordingEmitter) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

func testJob(id string, attempts int) *Job {
	return &Job{
		ID:           id,
		Type:         JobTypeGenerateWebsite,
		Payload:      json.RawMessage(`{}`),
		Status:       JobStatusWaiting,
		AttemptsMade: attempts,
		MaxAttempts:  2,
		Timeout:      time.Second,
		BackoffBase:  5 * time.Second,
	}
}

func newTestRunner(t *testing.T, src WorkSource, h Handler, em events.EventEmitter) *Runner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r, err := NewRunner(src, h, RunnerConfig{WorkerCount: 1, PollInterval: 5 * time.Millisecond}, logger, em)
	require.NoError(t, err)
	return r
}

func TestNewRunner_Validation(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewRunner(nil, &handlerFunc{}, DefaultRunnerConfig(), logger, nil)
	assert.ErrorIs(t, err, ErrNilWorkSource)

	_, err = NewRunner(newMemSource(), nil, DefaultRunnerConfig(), logger, nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	r, err := NewRunner(newMemSource(), &handlerFunc{}, RunnerConfig{}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRunnerConfig(), r.config)
}

func TestRunner_ProcessJob_Success(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	em := &recordingEmitter{}
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		require.NoError(t, progress(ctx, 50))
		require.NoError(t, progress(ctx, 100))
		return json.RawMessage(`{"ok":true}`), nil
	}}
	r := newTestRunner(t, src, h, em)

	r.processJob(testJob("j1", 1), 0)

	assert.JSONEq(t, `{"ok":true}`, string(src.completed["j1"]))
	assert.Equal(t, []int{50, 100}, src.progress["j1"])
	assert.Empty(t, src.failed)
	assert.Equal(t, []string{events.JobCompleted}, em.types())
}

func TestRunner_ProcessJob_RetriesWithBackoff(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	em := &recordingEmitter{}
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		return nil, errors.New("model unavailable")
	}}
	r := newTestRunner(t, src, h, em)

	before := time.Now()
	r.processJob(testJob("j1", 1), 0)

	require.Contains(t, src.retried, "j1")
	assert.WithinDuration(t, before.Add(5*time.Second), src.retried["j1"], time.Second)
	assert.Empty(t, src.failed)
	assert.Empty(t, h.cleaned)
	assert.Equal(t, []string{events.JobRetryScheduled}, em.types())
}

func TestRunner_ProcessJob_FinalAttemptFails(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	em := &recordingEmitter{}
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		return nil, errors.New("model unavailable")
	}}
	r := newTestRunner(t, src, h, em)

	r.processJob(testJob("j1", 2), 0)

	assert.Equal(t, "model unavailable", src.failed["j1"])
	assert.Empty(t, src.retried)
	assert.Equal(t, []string{"j1"}, h.cleaned)
	assert.Equal(t, []string{events.JobFailed}, em.types())
}

func TestRunner_ProcessJob_PermanentErrorSkipsRetry(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		return nil, Permanent(errors.New("domain deleted"))
	}}
	r := newTestRunner(t, src, h, nil)

	r.processJob(testJob("j1", 1), 0)

	assert.Contains(t, src.failed, "j1")
	assert.Empty(t, src.retried)
	assert.Equal(t, []string{"j1"}, h.cleaned)
}

func TestRunner_ProcessJob_Timeout(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := newTestRunner(t, src, h, nil)

	job := testJob("j1", 2)
	job.Timeout = 20 * time.Millisecond
	r.processJob(job, 0)

	require.Len(t, h.causes, 1)
	assert.ErrorIs(t, h.causes[0], ErrJobTimeout)
	assert.Contains(t, src.failed["j1"], ErrJobTimeout.Error())
}

func TestRunner_ProcessJob_PanicBecomesFailure(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		panic("boom")
	}}
	r := newTestRunner(t, src, h, nil)

	r.processJob(testJob("j1", 1), 0)

	assert.Contains(t, src.retried, "j1")
}

func TestRunner_ProcessJob_StaleClaimDiscardsOutcome(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	src.staleFrom["j1"] = true
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		if err := progress(ctx, 10); err != nil {
			return nil, err
		}
		return json.RawMessage(`{}`), nil
	}}
	r := newTestRunner(t, src, h, nil)

	r.processJob(testJob("j1", 1), 0)

	assert.Empty(t, src.completed)
	assert.Empty(t, src.retried)
	assert.Empty(t, src.failed)
	assert.Empty(t, h.cleaned)
}

func TestRunner_ProcessJob_StaleFailureSkipsCleanup(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	src.staleFrom["j1"] = true
	em := &recordingEmitter{}
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		return nil, Permanent(errors.New("domain deleted"))
	}}
	r := newTestRunner(t, src, h, em)

	r.processJob(testJob("j1", 1), 0)

	assert.Empty(t, src.failed)
	assert.Empty(t, h.cleaned, "a superseded attempt must not undo the current attempt's work")
	assert.Empty(t, em.types())
}

func TestRunner_CleanupAbandoned(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	src.abandoned = []*Job{testJob("gone", 1)}
	h := &handlerFunc{}
	r := newTestRunner(t, src, h, nil)

	r.CleanupAbandoned(context.Background())
	r.CleanupAbandoned(context.Background())

	assert.Equal(t, []string{"gone"}, h.cleaned)
	require.Len(t, h.causes, 1)
	assert.ErrorIs(t, h.causes[0], ErrJobCancelled)
}

func TestRunner_RecoverStalledRunsCleanup(t *testing.T) {
	t.Parallel()

	src := newMemSource()
	src.stalled = []*Job{testJob("dead", 2)}
	em := &recordingEmitter{}
	h := &handlerFunc{}
	r := newTestRunner(t, src, h, em)

	r.RecoverStalled(context.Background())

	assert.Equal(t, []string{"dead"}, h.cleaned)
	assert.ErrorIs(t, h.causes[0], ErrJobStalled)
	assert.Equal(t, []string{events.JobFailed}, em.types())
}

func TestRunner_StartStop(t *testing.T) {
	t.Parallel()

	src := newMemSource(testJob("a", 0), testJob("b", 0), testJob("c", 0))
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		return json.RawMessage(`{}`), nil
	}}
	r := newTestRunner(t, src, h, nil)

	r.Start()
	require.Eventually(t, func() bool {
		completed, _ := src.snapshot()
		return completed == 3
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Stop(ctx))
}

func TestRunner_StopWaitsForRunningJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	src := newMemSource(testJob("slow", 0))
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		close(started)
		<-release
		return json.RawMessage(`{}`), nil
	}}
	r := newTestRunner(t, src, h, nil)
	r.Start()
	<-started

	stopped := make(chan error, 1)
	go func() { stopped <- r.Stop(context.Background()) }()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a job was running")
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-stopped)
	completed, _ := src.snapshot()
	assert.Equal(t, 1, completed)
}

func TestRunner_StopDeadlineCancelsRunningJob(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	src := newMemSource(testJob("stuck", 0))
	h := &handlerFunc{handle: func(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := newTestRunner(t, src, h, nil)
	r.Start()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Stop(ctx), context.DeadlineExceeded)

	// The cancelled attempt is a retryable failure, not a final one.
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Contains(t, src.retried, "stuck")
}

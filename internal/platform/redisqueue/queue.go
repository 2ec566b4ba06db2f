package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/config"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/task"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrNilClient is returned when the queue is constructed without a client.
	ErrNilClient = errors.New("redis client cannot be nil")
	// ErrEmptyName is returned when the queue is constructed without a name.
	ErrEmptyName = errors.New("queue name is required")
)

// abandonedBatch bounds how many abandoned jobs one TakeAbandoned call returns.
const abandonedBatch = 100

// Queue is a Redis-backed job queue. Each job lives in a hash and its ID sits
// in exactly one status set: waiting, delayed, active, completed, failed or
// cancelled. Cleared jobs that already ran an attempt sit in no status set;
// only the abandoned list references them until their cleanup is taken.
type Queue struct {
	client     redis.UniversalClient
	prefix     string
	stallGrace time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

var (
	_ task.Queue      = (*Queue)(nil)
	_ task.WorkSource = (*Queue)(nil)
)

// Option customizes a Queue.
type Option func(*Queue)

// WithClock replaces the time source used for scheduling.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue named cfg.Name on the given client.
func New(client redis.UniversalClient, cfg config.QueueConfig, logger *slog.Logger, opts ...Option) (*Queue, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if cfg.Name == "" {
		return nil, ErrEmptyName
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		client:     client,
		prefix:     "sitegen:" + cfg.Name + ":",
		stallGrace: cfg.StallGrace,
		logger:     logger.With("component", "redis_queue", "queue", cfg.Name),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

func (q *Queue) key(name string) string { return q.prefix + name }
func (q *Queue) jobPrefix() string      { return q.prefix + "job:" }
func (q *Queue) jobKey(id string) string {
	return q.jobPrefix() + id
}

func (q *Queue) nowMillis() int64 { return q.now().UnixMilli() }

// Enqueue implements task.Queue.
func (q *Queue) Enqueue(ctx context.Context, spec task.JobSpec) (*task.Job, error) {
	log := logger.FromContextOrDefault(ctx, q.logger)

	id := uuid.NewString()
	now := q.nowMillis()
	runAt := int64(0)
	if spec.Options.Delay > 0 {
		runAt = now + spec.Options.Delay.Milliseconds()
	}

	keys := []string{q.key("waiting"), q.key("delayed"), q.key("seq"), q.jobKey(id)}
	args := []any{
		id,
		string(spec.Type),
		string(spec.Payload),
		spec.Options.MaxAttempts,
		spec.Options.Timeout.Milliseconds(),
		spec.Options.BackoffBase.Milliseconds(),
		spec.Options.Priority,
		now,
		runAt,
	}
	status, err := enqueueScript.Run(ctx, q.client, keys, args...).Text()
	if err != nil {
		log.Error("failed to enqueue job", "job_type", spec.Type, "error", err)
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	log.Debug("job enqueued", "job_id", id, "job_type", spec.Type)

	// The job is stored; describe it from what was written rather than
	// reading it back.
	job := &task.Job{
		ID:          id,
		Type:        spec.Type,
		Payload:     spec.Payload,
		Status:      task.JobStatus(status),
		MaxAttempts: spec.Options.MaxAttempts,
		Timeout:     time.Duration(spec.Options.Timeout.Milliseconds()) * time.Millisecond,
		BackoffBase: time.Duration(spec.Options.BackoffBase.Milliseconds()) * time.Millisecond,
		Priority:    spec.Options.Priority,
		CreatedAt:   time.UnixMilli(now).UTC(),
	}
	if job.Status == task.JobStatusDelayed {
		t := time.UnixMilli(runAt).UTC()
		job.RunAt = &t
	}
	return job, nil
}

// Get implements task.Queue.
func (q *Queue) Get(ctx context.Context, id string) (*task.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, task.ErrJobNotFound
	}
	return decodeJob(fields)
}

// Cancel implements task.Queue.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	keys := []string{q.jobKey(id), q.key("waiting"), q.key("delayed"), q.key("cancelled"), q.key("abandoned")}
	n, err := cancelScript.Run(ctx, q.client, keys, id, q.nowMillis()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %s: %w", id, err)
	}
	switch n {
	case -1:
		return false, task.ErrJobNotFound
	case 0:
		return false, nil
	default:
		logger.FromContextOrDefault(ctx, q.logger).Info("job cancelled", "job_id", id)
		return true, nil
	}
}

// Pause implements task.Queue.
func (q *Queue) Pause(ctx context.Context) error {
	if err := q.client.Set(ctx, q.key("paused"), "1", 0).Err(); err != nil {
		return fmt.Errorf("failed to pause queue: %w", err)
	}
	return nil
}

// Resume implements task.Queue.
func (q *Queue) Resume(ctx context.Context) error {
	if err := q.client.Del(ctx, q.key("paused")).Err(); err != nil {
		return fmt.Errorf("failed to resume queue: %w", err)
	}
	return nil
}

// ClearPending implements task.Queue.
func (q *Queue) ClearPending(ctx context.Context) (int, error) {
	keys := []string{q.key("waiting"), q.key("delayed"), q.key("abandoned")}
	n, err := clearPendingScript.Run(ctx, q.client, keys, q.jobPrefix(), q.nowMillis()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to clear pending jobs: %w", err)
	}
	logger.FromContextOrDefault(ctx, q.logger).Info("pending jobs cleared", "count", n)
	return n, nil
}

// Stats implements task.Queue.
func (q *Queue) Stats(ctx context.Context) (task.Stats, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.ZCard(ctx, q.key("waiting"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	active := pipe.ZCard(ctx, q.key("active"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	cancelled := pipe.ZCard(ctx, q.key("cancelled"))
	paused := pipe.Exists(ctx, q.key("paused"))
	if _, err := pipe.Exec(ctx); err != nil {
		return task.Stats{}, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return task.Stats{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Cancelled: cancelled.Val(),
		Paused:    paused.Val() == 1,
	}, nil
}

// Claim implements task.WorkSource.
func (q *Queue) Claim(ctx context.Context) (*task.Job, error) {
	keys := []string{q.key("waiting"), q.key("delayed"), q.key("active"), q.key("paused"), q.key("seq")}
	raw, err := claimScript.Run(ctx, q.client, keys, q.nowMillis(), q.jobPrefix(), q.stallGrace.Milliseconds()).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return decodeJob(pairs(raw))
}

// UpdateProgress implements task.WorkSource.
func (q *Queue) UpdateProgress(ctx context.Context, id string, attempt, progress int) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	n, err := progressScript.Run(ctx, q.client, []string{q.jobKey(id)}, id, attempt, progress).Int()
	return claimResult(id, n, err, "update progress of")
}

// Complete implements task.WorkSource.
func (q *Queue) Complete(ctx context.Context, id string, attempt int, result json.RawMessage) error {
	keys := []string{q.jobKey(id), q.key("active"), q.key("completed")}
	n, err := completeScript.Run(ctx, q.client, keys, id, attempt, string(result), q.nowMillis()).Int()
	return claimResult(id, n, err, "complete")
}

// Retry implements task.WorkSource.
func (q *Queue) Retry(ctx context.Context, id string, attempt int, reason string, runAt time.Time) error {
	keys := []string{q.jobKey(id), q.key("active"), q.key("delayed")}
	n, err := retryScript.Run(ctx, q.client, keys, id, attempt, reason, runAt.UnixMilli()).Int()
	return claimResult(id, n, err, "retry")
}

// Fail implements task.WorkSource.
func (q *Queue) Fail(ctx context.Context, id string, attempt int, reason string) error {
	keys := []string{q.jobKey(id), q.key("active"), q.key("failed")}
	n, err := failScript.Run(ctx, q.client, keys, id, attempt, reason, q.nowMillis()).Int()
	return claimResult(id, n, err, "fail")
}

// RecoverStalled implements task.WorkSource.
func (q *Queue) RecoverStalled(ctx context.Context) ([]*task.Job, error) {
	keys := []string{q.key("active"), q.key("delayed"), q.key("failed")}
	ids, err := recoverStalledScript.Run(ctx, q.client, keys,
		q.nowMillis(), q.jobPrefix(), task.ErrJobStalled.Error()).StringSlice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to recover stalled jobs: %w", err)
	}

	jobs := make([]*task.Job, 0, len(ids))
	for _, id := range ids {
		job, err := q.Get(ctx, id)
		if err != nil {
			q.logger.Error("failed to load stalled job", "job_id", id, "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// TakeAbandoned implements task.WorkSource.
func (q *Queue) TakeAbandoned(ctx context.Context) ([]*task.Job, error) {
	raw, err := takeAbandonedScript.Run(ctx, q.client, []string{q.key("abandoned")},
		q.jobPrefix(), abandonedBatch).Slice()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to take abandoned jobs: %w", err)
	}

	jobs := make([]*task.Job, 0, len(raw))
	for _, item := range raw {
		fields, ok := item.([]any)
		if !ok {
			continue
		}
		flat := make([]string, 0, len(fields))
		for _, f := range fields {
			if str, ok := f.(string); ok {
				flat = append(flat, str)
			}
		}
		job, err := decodeJob(pairs(flat))
		if err != nil {
			q.logger.Error("failed to decode abandoned job", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func claimResult(id string, n int, err error, op string) error {
	if err != nil {
		return fmt.Errorf("failed to %s job %s: %w", op, id, err)
	}
	switch n {
	case -1:
		return task.ErrJobNotFound
	case -2:
		return task.ErrStaleClaim
	}
	return nil
}

// pairs turns a flat HGETALL reply into a map.
func pairs(raw []string) map[string]string {
	m := make(map[string]string, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		m[raw[i]] = raw[i+1]
	}
	return m
}

func decodeJob(f map[string]string) (*task.Job, error) {
	job := &task.Job{
		ID:           f["id"],
		Type:         task.JobType(f["type"]),
		Status:       task.JobStatus(f["status"]),
		FailedReason: f["failed_reason"],
	}
	if job.ID == "" {
		return nil, fmt.Errorf("%w: job hash has no id", task.ErrJobNotFound)
	}
	if p := f["payload"]; p != "" {
		job.Payload = json.RawMessage(p)
	}
	if r := f["result"]; r != "" {
		job.Result = json.RawMessage(r)
	}

	job.Progress = atoi(f["progress"])
	job.AttemptsMade = atoi(f["attempts"])
	job.MaxAttempts = atoi(f["max_attempts"])
	job.Priority = atoi(f["priority"])
	job.Timeout = time.Duration(atoi64(f["timeout_ms"])) * time.Millisecond
	job.BackoffBase = time.Duration(atoi64(f["backoff_ms"])) * time.Millisecond
	job.CreatedAt = time.UnixMilli(atoi64(f["created_at"])).UTC()
	job.ProcessedAt = optionalTime(f["processed_at"])
	job.FinishedAt = optionalTime(f["finished_at"])
	job.RunAt = optionalTime(f["run_at"])
	return job, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// atoi64 also accepts the float formatting Lua may produce for large numbers.
func atoi64(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	f, _ := strconv.ParseFloat(s, 64)
	return int64(f)
}

func optionalTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t := time.UnixMilli(atoi64(s)).UTC()
	return &t
}

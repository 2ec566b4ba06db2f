package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobStatus represents the current state of a job.
type JobStatus string

// Possible job status values
const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusActive    JobStatus = "active"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether a job in this status will never run again.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// JobType discriminates the payload and result variants of a job.
type JobType string

// Job types handled by the generation worker.
const (
	JobTypeGenerateWebsite   JobType = "generate-website"
	JobTypeGenerateMoreBlogs JobType = "generate-more-blogs"
)

// Default job options.
const (
	DefaultMaxAttempts      = 2
	DefaultBackoffBase      = 5 * time.Second
	DefaultWebsiteTimeout   = 20 * time.Minute
	DefaultMoreBlogsTimeout = 10 * time.Minute
	DefaultBlogQuantity     = 3
	MaxBlogQuantity         = 20
	MaxPriority             = 1000
)

var (
	ErrUnknownJobType = errors.New("unknown job type")
	ErrInvalidPayload = errors.New("invalid job payload")
)

var validate = validator.New()

// Job is a unit of background work as recorded by the queue.
type Job struct {
	ID      string          `json:"id"`
	Type    JobType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Status  JobStatus       `json:"status"`
	// Progress is a percentage, non-decreasing within one attempt.
	Progress     int             `json:"progress"`
	AttemptsMade int             `json:"attemptsMade"`
	MaxAttempts  int             `json:"maxAttempts"`
	Timeout      time.Duration   `json:"timeout"`
	BackoffBase  time.Duration   `json:"backoffBase"`
	Priority     int             `json:"priority"`
	Result       json.RawMessage `json:"result,omitempty"`
	FailedReason string          `json:"failedReason,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	ProcessedAt  *time.Time      `json:"processedAt,omitempty"`
	FinishedAt   *time.Time      `json:"finishedAt,omitempty"`
	RunAt        *time.Time      `json:"runAt,omitempty"`
}

// IsFinalAttempt reports whether the attempt in progress is the last one allowed.
func (j *Job) IsFinalAttempt() bool {
	return j.AttemptsMade >= j.MaxAttempts
}

// Backoff returns the delay before the retry that follows the current
// attempt: base * 2^(attempt-1).
func (j *Job) Backoff() time.Duration {
	base := j.BackoffBase
	if base <= 0 {
		base = DefaultBackoffBase
	}
	n := j.AttemptsMade
	if n < 1 {
		n = 1
	}
	if n > 16 {
		n = 16
	}
	return base << (n - 1)
}

// WebsitePayload decodes the payload of a generate-website job.
func (j *Job) WebsitePayload() (GenerateWebsitePayload, error) {
	var p GenerateWebsitePayload
	if j.Type != JobTypeGenerateWebsite {
		return p, fmt.Errorf("%w: %s is not %s", ErrInvalidPayload, j.Type, JobTypeGenerateWebsite)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, p.Validate()
}

// MoreBlogsPayload decodes the payload of a generate-more-blogs job.
func (j *Job) MoreBlogsPayload() (GenerateMoreBlogsPayload, error) {
	var p GenerateMoreBlogsPayload
	if j.Type != JobTypeGenerateMoreBlogs {
		return p, fmt.Errorf("%w: %s is not %s", ErrInvalidPayload, j.Type, JobTypeGenerateMoreBlogs)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, p.Validate()
}

// OwnerID returns the user that requested the job, or uuid.Nil when the
// payload cannot be decoded.
func (j *Job) OwnerID() uuid.UUID {
	var owner struct {
		UserID uuid.UUID `json:"userId"`
	}
	if err := json.Unmarshal(j.Payload, &owner); err != nil {
		return uuid.Nil
	}
	return owner.UserID
}

// Payload is implemented by every job payload variant.
type Payload interface {
	JobType() JobType
	Validate() error
}

// GenerateWebsitePayload requests generation of the website for a domain.
type GenerateWebsitePayload struct {
	DomainID           uuid.UUID `json:"domainId" validate:"required"`
	UserID             uuid.UUID `json:"userId" validate:"required"`
	TemplateKey        string    `json:"templateKey" validate:"required,max=64"`
	ContactFormEnabled bool      `json:"contactFormEnabled"`
}

// JobType implements Payload.
func (GenerateWebsitePayload) JobType() JobType { return JobTypeGenerateWebsite }

// Validate implements Payload.
func (p GenerateWebsitePayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// GenerateMoreBlogsPayload requests additional blog sections for a website.
type GenerateMoreBlogsPayload struct {
	WebsiteID uuid.UUID `json:"websiteId" validate:"required"`
	UserID    uuid.UUID `json:"userId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1,max=20"`
}

// JobType implements Payload.
func (GenerateMoreBlogsPayload) JobType() JobType { return JobTypeGenerateMoreBlogs }

// Validate implements Payload.
func (p GenerateMoreBlogsPayload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// GenerateWebsiteResult is the result of a completed generate-website job.
type GenerateWebsiteResult struct {
	WebsiteID      uuid.UUID `json:"websiteId"`
	Subdomain      string    `json:"subdomain"`
	AlreadyExisted bool      `json:"alreadyExisted"`
	BlogCount      int       `json:"blogCount"`
}

// GenerateMoreBlogsResult is the result of a completed generate-more-blogs job.
type GenerateMoreBlogsResult struct {
	WebsiteID       uuid.UUID `json:"websiteId"`
	Added           int       `json:"added"`
	FirstOrderIndex int       `json:"firstOrderIndex"`
	LastOrderIndex  int       `json:"lastOrderIndex"`
}

// Options control how a job is scheduled and retried.
type Options struct {
	MaxAttempts int
	BackoffBase time.Duration
	Timeout     time.Duration
	// Priority orders waiting jobs; lower runs first. Jobs of equal priority are FIFO.
	Priority int
	// Delay postpones the first attempt.
	Delay time.Duration
}

// DefaultOptions returns the options a job type is enqueued with unless overridden.
func DefaultOptions(t JobType) Options {
	opts := Options{
		MaxAttempts: DefaultMaxAttempts,
		BackoffBase: DefaultBackoffBase,
		Timeout:     DefaultWebsiteTimeout,
	}
	if t == JobTypeGenerateMoreBlogs {
		opts.Timeout = DefaultMoreBlogsTimeout
	}
	return opts
}

// JobSpec is a validated request to enqueue a job.
type JobSpec struct {
	Type    JobType
	Payload json.RawMessage
	Options Options
}

// NewJobSpec validates and encodes a payload variant.
func NewJobSpec(p Payload, opts Options) (JobSpec, error) {
	if p == nil {
		return JobSpec{}, fmt.Errorf("%w: nil payload", ErrInvalidPayload)
	}
	switch p.JobType() {
	case JobTypeGenerateWebsite, JobTypeGenerateMoreBlogs:
	default:
		return JobSpec{}, fmt.Errorf("%w: %s", ErrUnknownJobType, p.JobType())
	}
	if err := p.Validate(); err != nil {
		return JobSpec{}, err
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return JobSpec{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	defaults := DefaultOptions(p.JobType())
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaults.MaxAttempts
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = defaults.BackoffBase
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaults.Timeout
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Priority < 0 {
		opts.Priority = 0
	}
	if opts.Priority > MaxPriority {
		opts.Priority = MaxPriority
	}

	return JobSpec{Type: p.JobType(), Payload: raw, Options: opts}, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/store"
	"github.com/phrazzld/sitegen-api/internal/task"
)

// Caller identifies who is making a request.
type Caller struct {
	UserID uuid.UUID
	Admin  bool
}

// canAccess reports whether the caller may act on a resource owned by owner.
func (c Caller) canAccess(owner uuid.UUID) bool {
	return c.Admin || (c.UserID != uuid.Nil && c.UserID == owner)
}

// GenerateWebsiteRequest asks for the website of a domain to be generated.
type GenerateWebsiteRequest struct {
	DomainID           uuid.UUID
	TemplateKey        string
	ContactFormEnabled bool
}

// MoreBlogsRequest asks for blog sections to be appended to a website.
// A nil Quantity means task.DefaultBlogQuantity.
type MoreBlogsRequest struct {
	WebsiteID uuid.UUID
	Quantity  *int
}

// JobService is the control surface of the generation pipeline.
type JobService interface {
	// EnqueueWebsiteGeneration validates the request and queues a generate-website job.
	EnqueueWebsiteGeneration(ctx context.Context, caller Caller, req GenerateWebsiteRequest) (*task.Job, error)

	// EnqueueMoreBlogs validates the request and queues a generate-more-blogs job.
	EnqueueMoreBlogs(ctx context.Context, caller Caller, req MoreBlogsRequest) (*task.Job, error)

	// GetStatus returns a job the caller owns.
	GetStatus(ctx context.Context, caller Caller, jobID string) (*task.Job, error)

	// Cancel cancels a job the caller owns that has not started yet.
	// Returns ErrJobNotCancellable for active and finished jobs.
	Cancel(ctx context.Context, caller Caller, jobID string) error

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	ClearPending(ctx context.Context) (int, error)
	Stats(ctx context.Context) (task.Stats, error)
}

// JobOptions are the scheduling options applied to enqueued jobs.
type JobOptions struct {
	MaxAttempts      int
	BackoffBase      time.Duration
	WebsiteTimeout   time.Duration
	MoreBlogsTimeout time.Duration
}

// EnqueueHook observes every job accepted by the queue.
type EnqueueHook func(job *task.Job)

type jobServiceImpl struct {
	queue    task.Queue
	domains  store.DomainStore
	websites store.WebsiteStore
	opts     JobOptions
	hooks    []EnqueueHook
	logger   *slog.Logger
}

var _ JobService = (*jobServiceImpl)(nil)

// NewJobService creates a JobService. Hooks run after each successful enqueue.
func NewJobService(
	queue task.Queue,
	domains store.DomainStore,
	websites store.WebsiteStore,
	opts JobOptions,
	logger *slog.Logger,
	hooks ...EnqueueHook,
) (JobService, error) {
	if queue == nil {
		return nil, &ServiceError{Service: "job", Op: "create_service", Err: errors.New("queue cannot be nil")}
	}
	if domains == nil || websites == nil {
		return nil, &ServiceError{Service: "job", Op: "create_service", Err: errors.New("content stores cannot be nil")}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &jobServiceImpl{
		queue:    queue,
		domains:  domains,
		websites: websites,
		opts:     opts,
		hooks:    hooks,
		logger:   logger.With("component", "job_service"),
	}, nil
}

func (s *jobServiceImpl) EnqueueWebsiteGeneration(
	ctx context.Context,
	caller Caller,
	req GenerateWebsiteRequest,
) (*task.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if req.DomainID == uuid.Nil {
		return nil, fmt.Errorf("%w: domainId is required", ErrInvalidRequest)
	}
	if !domain.IsKnownTemplate(req.TemplateKey) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, req.TemplateKey)
	}

	d, err := s.domains.GetByID(ctx, req.DomainID)
	if err != nil {
		if errors.Is(err, store.ErrDomainNotFound) {
			return nil, err
		}
		return nil, wrapJobError("enqueue_website", err)
	}
	if !caller.canAccess(d.UserID) {
		log.Warn("website generation requested for a domain of another user",
			"domain_id", d.ID, "user_id", caller.UserID)
		return nil, ErrNotOwned
	}

	payload := task.GenerateWebsitePayload{
		DomainID:           d.ID,
		UserID:             d.UserID,
		TemplateKey:        req.TemplateKey,
		ContactFormEnabled: req.ContactFormEnabled,
	}
	return s.enqueue(ctx, "enqueue_website", payload, task.Options{
		MaxAttempts: s.opts.MaxAttempts,
		BackoffBase: s.opts.BackoffBase,
		Timeout:     s.opts.WebsiteTimeout,
	})
}

func (s *jobServiceImpl) EnqueueMoreBlogs(ctx context.Context, caller Caller, req MoreBlogsRequest) (*task.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	quantity := task.DefaultBlogQuantity
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 || quantity > task.MaxBlogQuantity {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if req.WebsiteID == uuid.Nil {
		return nil, fmt.Errorf("%w: websiteId is required", ErrInvalidRequest)
	}

	w, err := s.websites.GetByID(ctx, req.WebsiteID)
	if err != nil {
		if errors.Is(err, store.ErrWebsiteNotFound) {
			return nil, err
		}
		return nil, wrapJobError("enqueue_more_blogs", err)
	}
	if !caller.canAccess(w.UserID) {
		log.Warn("more blogs requested for a website of another user",
			"website_id", w.ID, "user_id", caller.UserID)
		return nil, ErrNotOwned
	}
	if !w.IsReady() {
		return nil, ErrWebsiteNotReady
	}

	payload := task.GenerateMoreBlogsPayload{
		WebsiteID: w.ID,
		UserID:    w.UserID,
		Quantity:  quantity,
	}
	return s.enqueue(ctx, "enqueue_more_blogs", payload, task.Options{
		MaxAttempts: s.opts.MaxAttempts,
		BackoffBase: s.opts.BackoffBase,
		Timeout:     s.opts.MoreBlogsTimeout,
	})
}

func (s *jobServiceImpl) enqueue(ctx context.Context, op string, payload task.Payload, opts task.Options) (*task.Job, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	spec, err := task.NewJobSpec(payload, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	job, err := s.queue.Enqueue(ctx, spec)
	if err != nil {
		log.Error("failed to enqueue job", "error", err, "job_type", spec.Type)
		return nil, wrapJobError(op, err)
	}

	for _, hook := range s.hooks {
		hook(job)
	}

	log.Info("job enqueued", "job_id", job.ID, "job_type", job.Type)
	return job, nil
}

func (s *jobServiceImpl) GetStatus(ctx context.Context, caller Caller, jobID string) (*task.Job, error) {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, task.ErrJobNotFound) {
			return nil, err
		}
		return nil, wrapJobError("get_status", err)
	}
	if !caller.canAccess(job.OwnerID()) {
		return nil, ErrNotOwned
	}
	return job, nil
}

func (s *jobServiceImpl) Cancel(ctx context.Context, caller Caller, jobID string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if _, err := s.GetStatus(ctx, caller, jobID); err != nil {
		return err
	}

	cancelled, err := s.queue.Cancel(ctx, jobID)
	if err != nil {
		if errors.Is(err, task.ErrJobNotFound) {
			return err
		}
		return wrapJobError("cancel", err)
	}
	if !cancelled {
		return ErrJobNotCancellable
	}

	log.Info("job cancelled", "job_id", jobID, "user_id", caller.UserID)
	return nil
}

func (s *jobServiceImpl) Pause(ctx context.Context) error {
	if err := s.queue.Pause(ctx); err != nil {
		return wrapJobError("pause", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("queue paused")
	return nil
}

func (s *jobServiceImpl) Resume(ctx context.Context) error {
	if err := s.queue.Resume(ctx); err != nil {
		return wrapJobError("resume", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("queue resumed")
	return nil
}

func (s *jobServiceImpl) ClearPending(ctx context.Context) (int, error) {
	n, err := s.queue.ClearPending(ctx)
	if err != nil {
		return 0, wrapJobError("clear_pending", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).Info("pending jobs cleared", "count", n)
	return n, nil
}

func (s *jobServiceImpl) Stats(ctx context.Context) (task.Stats, error) {
	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return task.Stats{}, wrapJobError("stats", err)
	}
	return stats, nil
}

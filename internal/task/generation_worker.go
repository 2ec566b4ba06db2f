package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/generation"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/store"
)

// Progress checkpoints of a generation attempt. Blog progress is spread
// evenly between ProgressTitles and ProgressBlogsDone.
const (
	ProgressValidated = 10
	ProgressWebsite   = 20
	ProgressPage      = 30
	ProgressTitles    = 40
	ProgressBlogsDone = 90
)

var (
	ErrNilSequencer = errors.New("sequencer cannot be nil")
	ErrNilStore     = errors.New("content store cannot be nil")

	// ErrWebsiteNotReady is returned when blogs are requested for a website
	// whose initial generation has not finished.
	ErrWebsiteNotReady = errors.New("website generation has not finished")
)

// ContentStores groups the stores the generation worker writes to.
type ContentStores struct {
	Domains  store.DomainStore
	Websites store.WebsiteStore
	Pages    store.PageStore
	Sections store.SectionStore
}

func (s ContentStores) validate() error {
	if s.Domains == nil || s.Websites == nil || s.Pages == nil || s.Sections == nil {
		return ErrNilStore
	}
	return nil
}

// JobLookup reads jobs by ID. Queue satisfies it.
type JobLookup interface {
	Get(ctx context.Context, id string) (*Job, error)
}

// GenerationWorker executes generate-website and generate-more-blogs jobs.
type GenerationWorker struct {
	stores     ContentStores
	sequencer  *generation.Sequencer
	titleCount int
	jobs       JobLookup
	logger     *slog.Logger
}

var _ Handler = (*GenerationWorker)(nil)

// WorkerOption customizes a GenerationWorker.
type WorkerOption func(*GenerationWorker)

// WithJobLookup lets the worker check whether the job that started a
// half-built website can still finish it. Without it such a website is
// treated as owned by a live job.
func WithJobLookup(jobs JobLookup) WorkerOption {
	return func(w *GenerationWorker) { w.jobs = jobs }
}

// NewGenerationWorker creates a GenerationWorker. titleCount is the number of
// blogs generated for a new website.
func NewGenerationWorker(
	stores ContentStores,
	sequencer *generation.Sequencer,
	titleCount int,
	logger *slog.Logger,
	opts ...WorkerOption,
) (*GenerationWorker, error) {
	if err := stores.validate(); err != nil {
		return nil, err
	}
	if sequencer == nil {
		return nil, ErrNilSequencer
	}
	if titleCount <= 0 {
		titleCount = DefaultBlogQuantity
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &GenerationWorker{
		stores:     stores,
		sequencer:  sequencer,
		titleCount: titleCount,
		logger:     logger.With("component", "generation_worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Handle implements Handler.
func (w *GenerationWorker) Handle(ctx context.Context, job *Job, progress ProgressFunc) (json.RawMessage, error) {
	var (
		result any
		err    error
	)

	report := newProgressTracker(progress)
	switch job.Type {
	case JobTypeGenerateWebsite:
		p, pErr := job.WebsitePayload()
		if pErr != nil {
			return nil, Permanent(pErr)
		}
		result, err = w.generateWebsite(ctx, job, p, report)
	case JobTypeGenerateMoreBlogs:
		p, pErr := job.MoreBlogsPayload()
		if pErr != nil {
			return nil, Permanent(pErr)
		}
		result, err = w.generateMoreBlogs(ctx, job, p, report)
	default:
		return nil, Permanent(fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type))
	}

	if err != nil {
		if generation.IsConfigError(err) {
			return nil, Permanent(err)
		}
		return nil, err
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return nil, Permanent(fmt.Errorf("failed to encode job result: %w", err))
	}
	return raw, nil
}

func (w *GenerationWorker) generateWebsite(
	ctx context.Context,
	job *Job,
	p GenerateWebsitePayload,
	report *progressTracker,
) (*GenerateWebsiteResult, error) {
	log := logger.FromContextOrDefault(ctx, w.logger).With("domain_id", p.DomainID)

	d, err := w.stores.Domains.GetByID(ctx, p.DomainID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, Permanent(fmt.Errorf("domain %s: %w", p.DomainID, err))
		}
		return nil, fmt.Errorf("failed to load domain: %w", err)
	}
	if err := report.set(ctx, ProgressValidated); err != nil {
		return nil, err
	}

	existing, err := w.stores.Websites.GetByDomainID(ctx, d.ID)
	if err != nil && !store.IsNotFoundError(err) {
		return nil, fmt.Errorf("failed to check for existing website: %w", err)
	}
	if err == nil {
		stale, sErr := w.isStale(ctx, job, existing)
		if sErr != nil {
			return nil, sErr
		}
		if !stale {
			log.Info("website already exists, skipping generation", "website_id", existing.ID)
			return w.existingWebsiteResult(ctx, existing)
		}
		log.Info("discarding partial website",
			"website_id", existing.ID,
			"owner_job_id", existing.GenerationJobID)
		if _, err := w.stores.Websites.DeleteGenerating(ctx, d.ID, existing.GenerationJobID); err != nil {
			return nil, fmt.Errorf("failed to discard partial website: %w", err)
		}
	}

	site, err := domain.NewWebsite(d, p.TemplateKey, p.ContactFormEnabled, job.ID)
	if err != nil {
		return nil, Permanent(err)
	}
	if err := w.stores.Websites.Create(ctx, site); err != nil {
		if errors.Is(err, store.ErrWebsiteExists) {
			winner, gErr := w.stores.Websites.GetByDomainID(ctx, d.ID)
			if gErr != nil {
				return nil, fmt.Errorf("failed to load concurrently created website: %w", gErr)
			}
			log.Info("website created concurrently by another job", "website_id", winner.ID)
			return w.existingWebsiteResult(ctx, winner)
		}
		return nil, w.writeError("create website", err)
	}
	log = log.With("website_id", site.ID)
	if err := report.set(ctx, ProgressWebsite); err != nil {
		return nil, err
	}

	page, err := domain.NewHomePage(site.ID, d.Name)
	if err != nil {
		return nil, Permanent(err)
	}
	if err := w.stores.Pages.Create(ctx, page); err != nil {
		return nil, w.writeError("create home page", err)
	}
	hero, err := domain.NewSection(page.ID, domain.SectionKindHero, domain.HeroOrderIndex, job.ID,
		domain.NewBlock(domain.BlockKindTitle, d.Name),
		domain.NewBlock(domain.BlockKindText, heroTagline(d)),
	)
	if err != nil {
		return nil, Permanent(err)
	}
	if err := w.stores.Sections.Create(ctx, hero); err != nil {
		return nil, w.writeError("create hero section", err)
	}
	if err := report.set(ctx, ProgressPage); err != nil {
		return nil, err
	}

	firstIndex := domain.HeroOrderIndex + 1
	if err := w.runBlogs(ctx, job, page.ID, d.Topic(), w.titleCount, firstIndex, assetPrefix(site.ID), report); err != nil {
		return nil, err
	}

	footer, err := domain.NewSection(page.ID, domain.SectionKindFooter, firstIndex+w.titleCount, job.ID,
		footerBlocks(d, site)...)
	if err != nil {
		return nil, Permanent(err)
	}
	if err := w.stores.Sections.Create(ctx, footer); err != nil {
		return nil, w.writeError("create footer section", err)
	}

	if err := w.stores.Domains.UpdateStatus(ctx, d.ID, domain.DomainStatusActive); err != nil {
		return nil, w.writeError("activate domain", err)
	}
	if err := w.stores.Websites.MarkReady(ctx, site.ID); err != nil {
		return nil, w.writeError("mark website ready", err)
	}

	log.Info("website generated", "subdomain", site.Subdomain, "blog_count", w.titleCount)
	return &GenerateWebsiteResult{
		WebsiteID: site.ID,
		Subdomain: site.Subdomain,
		BlogCount: w.titleCount,
	}, nil
}

func (w *GenerationWorker) generateMoreBlogs(
	ctx context.Context,
	job *Job,
	p GenerateMoreBlogsPayload,
	report *progressTracker,
) (*GenerateMoreBlogsResult, error) {
	log := logger.FromContextOrDefault(ctx, w.logger).With("website_id", p.WebsiteID)

	site, err := w.stores.Websites.GetByID(ctx, p.WebsiteID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, Permanent(fmt.Errorf("website %s: %w", p.WebsiteID, err))
		}
		return nil, fmt.Errorf("failed to load website: %w", err)
	}
	if !site.IsReady() {
		return nil, Permanent(ErrWebsiteNotReady)
	}
	d, err := w.stores.Domains.GetByID(ctx, site.DomainID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, Permanent(fmt.Errorf("domain %s: %w", site.DomainID, err))
		}
		return nil, fmt.Errorf("failed to load domain: %w", err)
	}
	page, err := w.stores.Pages.GetBySlug(ctx, site.ID, domain.HomePageSlug)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, Permanent(fmt.Errorf("home page of website %s: %w", site.ID, err))
		}
		return nil, fmt.Errorf("failed to load home page: %w", err)
	}
	if err := report.set(ctx, ProgressValidated); err != nil {
		return nil, err
	}

	removed, err := w.stores.Sections.DeleteByJob(ctx, page.ID, job.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to remove sections of earlier attempts: %w", err)
	}
	if removed > 0 {
		log.Info("removed sections left by an earlier attempt", "count", removed)
	}

	highest, err := w.stores.Sections.MaxContentOrderIndex(ctx, page.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read section order: %w", err)
	}
	first := highest + 1
	last := highest + p.Quantity
	if err := w.stores.Sections.MoveFooter(ctx, page.ID, last+1); err != nil {
		return nil, w.writeError("move footer", err)
	}
	if err := report.set(ctx, ProgressPage); err != nil {
		return nil, err
	}

	if err := w.runBlogs(ctx, job, page.ID, d.Topic(), p.Quantity, first, assetPrefix(site.ID), report); err != nil {
		return nil, err
	}

	log.Info("blogs appended", "added", p.Quantity, "first_order_index", first, "last_order_index", last)
	return &GenerateMoreBlogsResult{
		WebsiteID:       site.ID,
		Added:           p.Quantity,
		FirstOrderIndex: first,
		LastOrderIndex:  last,
	}, nil
}

// runBlogs generates count blogs and persists blog i at firstIndex+i before
// the next one is requested.
func (w *GenerationWorker) runBlogs(
	ctx context.Context,
	job *Job,
	pageID uuid.UUID,
	topic string,
	count int,
	firstIndex int,
	prefix string,
	report *progressTracker,
) error {
	return w.sequencer.Run(ctx, generation.Plan{
		Topic:       topic,
		Count:       count,
		AssetPrefix: prefix,
	}, generation.Hooks{
		TitlesReady: func(ctx context.Context, _ []string) error {
			return report.set(ctx, ProgressTitles)
		},
		BlogReady: func(ctx context.Context, i int, blog *generation.Blog) error {
			section, err := domain.NewSection(pageID, domain.SectionKindBlog, firstIndex+i, job.ID,
				domain.NewBlock(domain.BlockKindTitle, blog.Title),
				domain.NewBlock(domain.BlockKindBody, blog.Body),
				domain.NewBlock(domain.BlockKindPreview, blog.Preview),
				domain.NewBlock(domain.BlockKindImage, blog.ImageURL),
			)
			if err != nil {
				return Permanent(err)
			}
			if err := w.stores.Sections.Create(ctx, section); err != nil {
				return w.writeError("create blog section", err)
			}
			return report.set(ctx, ProgressTitles+(i+1)*(ProgressBlogsDone-ProgressTitles)/count)
		},
	})
}

// OnFinalFailure implements Handler. It removes what the failed job wrote
// and never touches content created by other jobs.
func (w *GenerationWorker) OnFinalFailure(ctx context.Context, job *Job, cause error) {
	log := logger.FromContextOrDefault(ctx, w.logger).With("cleanup_cause", cause.Error())

	switch job.Type {
	case JobTypeGenerateWebsite:
		p, err := job.WebsitePayload()
		if err != nil {
			log.Warn("skipping cleanup of job with undecodable payload", "error", err)
			return
		}
		w.cleanupWebsite(ctx, log, job, p)
	case JobTypeGenerateMoreBlogs:
		p, err := job.MoreBlogsPayload()
		if err != nil {
			log.Warn("skipping cleanup of job with undecodable payload", "error", err)
			return
		}
		w.cleanupMoreBlogs(ctx, log, job, p)
	default:
		log.Warn("no cleanup defined for job type")
	}
}

func (w *GenerationWorker) cleanupWebsite(ctx context.Context, log *slog.Logger, job *Job, p GenerateWebsitePayload) {
	log = log.With("domain_id", p.DomainID)

	deleted, err := w.stores.Websites.DeleteGenerating(ctx, p.DomainID, job.ID)
	if err != nil {
		log.Error("failed to delete partial website", "error", err)
		return
	}
	if deleted {
		log.Info("deleted partial website")
	} else {
		site, err := w.stores.Websites.GetByDomainID(ctx, p.DomainID)
		switch {
		case err == nil:
			log.Info("website belongs to another job, leaving it in place", "website_id", site.ID)
			return
		case !store.IsNotFoundError(err):
			log.Error("failed to look up website for cleanup", "error", err)
			return
		}
	}

	if err := w.stores.Domains.UpdateStatus(ctx, p.DomainID, domain.DomainStatusPending); err != nil {
		if store.IsNotFoundError(err) {
			log.Info("domain no longer exists, skipping status reset")
			return
		}
		log.Error("failed to reset domain status", "error", err)
		return
	}
	log.Info("domain reset to pending")
}

func (w *GenerationWorker) cleanupMoreBlogs(ctx context.Context, log *slog.Logger, job *Job, p GenerateMoreBlogsPayload) {
	log = log.With("website_id", p.WebsiteID)

	page, err := w.stores.Pages.GetBySlug(ctx, p.WebsiteID, domain.HomePageSlug)
	if err != nil {
		if store.IsNotFoundError(err) {
			log.Info("website no longer exists, nothing to clean up")
			return
		}
		log.Error("failed to load home page for cleanup", "error", err)
		return
	}

	removed, err := w.stores.Sections.DeleteByJob(ctx, page.ID, job.ID)
	if err != nil {
		log.Error("failed to remove sections written by the job", "error", err)
		return
	}

	highest, err := w.stores.Sections.MaxContentOrderIndex(ctx, page.ID)
	if err != nil {
		log.Error("failed to read section order for footer placement", "error", err)
		return
	}
	if err := w.stores.Sections.MoveFooter(ctx, page.ID, highest+1); err != nil {
		log.Error("failed to re-place footer", "error", err)
		return
	}
	log.Info("removed sections written by the failed job", "count", removed)
}

// isStale reports whether an existing website is a partial build that this
// job should replace: either its own earlier attempt, or one whose owner job
// ended or disappeared without finishing it.
func (w *GenerationWorker) isStale(ctx context.Context, job *Job, site *domain.Website) (bool, error) {
	if site.IsReady() {
		return false, nil
	}
	if site.GenerationJobID == job.ID {
		return true, nil
	}
	if w.jobs == nil || site.GenerationJobID == "" {
		return false, nil
	}
	owner, err := w.jobs.Get(ctx, site.GenerationJobID)
	if errors.Is(err, ErrJobNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up owner of partial website: %w", err)
	}
	return owner.Status.IsTerminal(), nil
}

func (w *GenerationWorker) existingWebsiteResult(ctx context.Context, site *domain.Website) (*GenerateWebsiteResult, error) {
	result := &GenerateWebsiteResult{
		WebsiteID:      site.ID,
		Subdomain:      site.Subdomain,
		AlreadyExisted: true,
	}

	page, err := w.stores.Pages.GetBySlug(ctx, site.ID, domain.HomePageSlug)
	if err != nil {
		if store.IsNotFoundError(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to load home page: %w", err)
	}
	sections, err := w.stores.Sections.ListByPage(ctx, page.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sections: %w", err)
	}
	for _, s := range sections {
		if s.Kind == domain.SectionKindBlog {
			result.BlogCount++
		}
	}
	return result, nil
}

// writeError classifies a failed content write. A write rejected because
// its parent row vanished means the domain or website was deleted while the
// job ran; retrying cannot help.
func (w *GenerationWorker) writeError(op string, err error) error {
	wrapped := fmt.Errorf("failed to %s: %w", op, err)
	if errors.Is(err, store.ErrInvalidEntity) || store.IsNotFoundError(err) {
		return Permanent(wrapped)
	}
	return wrapped
}

func heroTagline(d *domain.Domain) string {
	if d.Meaning != "" {
		return d.Meaning
	}
	return "Welcome to " + d.Name
}

func footerBlocks(d *domain.Domain, site *domain.Website) []*domain.ContentBlock {
	blocks := []*domain.ContentBlock{
		domain.NewBlock(domain.BlockKindText, "© "+d.Name),
	}
	if site.ContactFormEnabled {
		blocks = append(blocks, domain.NewBlock(domain.BlockKindText, "contact-form"))
	}
	return blocks
}

func assetPrefix(websiteID uuid.UUID) string {
	return path.Join("websites", websiteID.String(), "images")
}

// progressTracker keeps reported progress non-decreasing within an attempt.
type progressTracker struct {
	report  ProgressFunc
	current int
}

func newProgressTracker(report ProgressFunc) *progressTracker {
	return &progressTracker{report: report}
}

func (t *progressTracker) set(ctx context.Context, pct int) error {
	if t.report == nil || pct <= t.current {
		return nil
	}
	t.current = pct
	return t.report(ctx, pct)
}

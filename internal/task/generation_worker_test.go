package task_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/generation"
	"github.com/phrazzld/sitegen-api/internal/mocks"
	"github.com/phrazzld/sitegen-api/internal/task"
	"github.com/phrazzld/sitegen-api/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workerFixture struct {
	cs     *testutils.ContentStore
	gen    *mocks.MockContentGenerator
	worker *task.GenerationWorker
	userID uuid.UUID
}

func newWorkerFixture(t *testing.T, opts ...task.WorkerOption) *workerFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cs := testutils.NewContentStore()
	gen := &mocks.MockContentGenerator{}
	seq, err := generation.NewSequencer(gen, &mocks.MockRelocator{}, logger)
	require.NoError(t, err)

	worker, err := task.NewGenerationWorker(task.ContentStores{
		Domains:  cs.Domains,
		Websites: cs.Websites,
		Pages:    cs.Pages,
		Sections: cs.Sections,
	}, seq, 3, logger, opts...)
	require.NoError(t, err)

	return &workerFixture{cs: cs, gen: gen, worker: worker, userID: uuid.New()}
}

func newJob(t *testing.T, p task.Payload, attempt int) *task.Job {
	t.Helper()
	spec, err := task.NewJobSpec(p, task.Options{})
	require.NoError(t, err)
	return &task.Job{
		ID:           uuid.NewString(),
		Type:         spec.Type,
		Payload:      spec.Payload,
		Status:       task.JobStatusActive,
		AttemptsMade: attempt,
		MaxAttempts:  spec.Options.MaxAttempts,
		Timeout:      spec.Options.Timeout,
		BackoffBase:  spec.Options.BackoffBase,
	}
}

// progressLog records reported progress values.
type progressLog struct{ values []int }

func (p *progressLog) report(ctx context.Context, pct int) error {
	p.values = append(p.values, pct)
	return nil
}

func (f *workerFixture) websiteJob(t *testing.T, d *domain.Domain) *task.Job {
	return newJob(t, task.GenerateWebsitePayload{
		DomainID:    d.ID,
		UserID:      f.userID,
		TemplateKey: domain.TemplateModernNews,
	}, 1)
}

func (f *workerFixture) sections(t *testing.T, websiteID uuid.UUID) []*domain.Section {
	t.Helper()
	ctx := context.Background()
	page, err := f.cs.Pages.GetBySlug(ctx, websiteID, domain.HomePageSlug)
	require.NoError(t, err)
	sections, err := f.cs.Sections.ListByPage(ctx, page.ID)
	require.NoError(t, err)
	return sections
}

func orderOf(sections []*domain.Section) ([]int, []domain.SectionKind) {
	var idx []int
	var kinds []domain.SectionKind
	for _, s := range sections {
		idx = append(idx, s.OrderIndex)
		kinds = append(kinds, s.Kind)
	}
	return idx, kinds
}

func TestNewGenerationWorker_Validation(t *testing.T) {
	t.Parallel()

	seq, err := generation.NewSequencer(&mocks.MockContentGenerator{}, &mocks.MockRelocator{}, nil)
	require.NoError(t, err)

	_, err = task.NewGenerationWorker(task.ContentStores{}, seq, 3, nil)
	assert.ErrorIs(t, err, task.ErrNilStore)

	cs := testutils.NewContentStore()
	stores := task.ContentStores{Domains: cs.Domains, Websites: cs.Websites, Pages: cs.Pages, Sections: cs.Sections}
	_, err = task.NewGenerationWorker(stores, nil, 3, nil)
	assert.ErrorIs(t, err, task.ErrNilSequencer)
}

func TestGenerateWebsite_ExampleDomain(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	job := f.websiteJob(t, d)
	progress := &progressLog{}

	raw, err := f.worker.Handle(ctx, job, progress.report)
	require.NoError(t, err)

	var result task.GenerateWebsiteResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.AlreadyExisted)
	assert.Equal(t, 3, result.BlogCount)
	assert.Regexp(t, `^example-[a-z0-9]{4}$`, result.Subdomain)

	site, err := f.cs.Websites.GetByID(ctx, result.WebsiteID)
	require.NoError(t, err)
	assert.True(t, site.IsReady())
	assert.Equal(t, domain.TemplateModernNews, site.TemplateKey)

	stored, err := f.cs.Domains.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DomainStatusActive, stored.Status)

	sections := f.sections(t, site.ID)
	idx, kinds := orderOf(sections)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, idx)
	assert.Equal(t, []domain.SectionKind{
		domain.SectionKindHero,
		domain.SectionKindBlog, domain.SectionKindBlog, domain.SectionKindBlog,
		domain.SectionKindFooter,
	}, kinds)

	for _, s := range sections[1:4] {
		require.Len(t, s.Blocks, 4)
		assert.NotEmpty(t, s.Block(domain.BlockKindTitle).Value)
		assert.NotEmpty(t, s.Block(domain.BlockKindBody).Value)
		assert.LessOrEqual(t, len([]rune(s.Block(domain.BlockKindPreview).Value)), generation.PreviewLength)
		assert.Contains(t, s.Block(domain.BlockKindImage).Value, "websites/"+site.ID.String())
	}

	assert.Equal(t, []int{10, 20, 30, 40, 56, 73, 90}, progress.values)
}

func TestGenerateWebsite_BlogPersistedBeforeNextRequested(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "bakery.io")
	var sectionsSeen []int
	f.gen.GenerateArticleFn = func(ctx context.Context, topic, title string) (string, error) {
		// hero plus every previous blog must already be stored
		sectionsSeen = append(sectionsSeen, f.cs.SectionCount())
		return "An article about " + title, nil
	}

	_, err := f.worker.Handle(context.Background(), f.websiteJob(t, d), nil)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, sectionsSeen)
}

func TestGenerateWebsite_Idempotent(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	site, _ := testutils.MustInsertReadyWebsite(t, f.cs, d, 3)

	raw, err := f.worker.Handle(context.Background(), f.websiteJob(t, d), nil)
	require.NoError(t, err)

	var result task.GenerateWebsiteResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.AlreadyExisted)
	assert.Equal(t, site.ID, result.WebsiteID)
	assert.Equal(t, site.Subdomain, result.Subdomain)
	assert.Equal(t, 3, result.BlogCount)
	assert.Empty(t, f.gen.CallLog(), "no content may be generated for an existing website")
	assert.Equal(t, 1, f.cs.WebsiteCount())
}

func TestGenerateWebsite_UniqueViolationRace(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "race.dev")
	var winner *domain.Website
	f.cs.BeforeWebsiteCreate = func(ctx context.Context, w *domain.Website) error {
		f.cs.BeforeWebsiteCreate = nil
		var err error
		winner, err = domain.NewWebsite(d, domain.TemplateMinimal, false, "other-job")
		require.NoError(t, err)
		return f.cs.Websites.Create(ctx, winner)
	}

	raw, err := f.worker.Handle(ctx, f.websiteJob(t, d), nil)
	require.NoError(t, err)

	var result task.GenerateWebsiteResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.AlreadyExisted)
	assert.Equal(t, winner.ID, result.WebsiteID)
	assert.Equal(t, 1, f.cs.WebsiteCount())
}

func TestGenerateWebsite_DomainMissingIsPermanent(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	d := testutils.CreateTestDomain(t, f.userID, "gone.net")
	_, err := f.worker.Handle(context.Background(), f.websiteJob(t, d), nil)

	require.Error(t, err)
	assert.True(t, task.IsPermanent(err))
	assert.Empty(t, f.gen.CallLog())
}

func TestGenerateWebsite_ConfigErrorIsPermanent(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "nokey.org")
	f.gen.GenerateTitlesFn = func(ctx context.Context, topic string, n int) ([]string, error) {
		return nil, generation.ErrInvalidConfig
	}

	_, err := f.worker.Handle(context.Background(), f.websiteJob(t, d), nil)
	require.Error(t, err)
	assert.True(t, task.IsPermanent(err))
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}

func TestGenerateWebsite_TransientErrorIsRetryable(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "flaky.com")
	f.gen.GenerateImageFn = func(ctx context.Context, prompt string) (*generation.ImageRef, error) {
		return nil, generation.ErrTransientFailure
	}

	_, err := f.worker.Handle(context.Background(), f.websiteJob(t, d), nil)
	require.Error(t, err)
	assert.False(t, task.IsPermanent(err))
}

func TestGenerateWebsite_RetryRebuildsPartialWebsite(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	var articles atomic.Int32
	f.gen.GenerateArticleFn = func(ctx context.Context, topic, title string) (string, error) {
		if articles.Add(1) == 2 {
			return "", errors.New("upstream 503")
		}
		return "An article about " + title, nil
	}

	job := f.websiteJob(t, d)
	_, err := f.worker.Handle(ctx, job, nil)
	require.Error(t, err)

	partial, err := f.cs.Websites.GetByDomainID(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, partial.IsReady())

	job.AttemptsMade = 2
	raw, err := f.worker.Handle(ctx, job, nil)
	require.NoError(t, err)

	var result task.GenerateWebsiteResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.AlreadyExisted)
	assert.NotEqual(t, partial.ID, result.WebsiteID)
	assert.Equal(t, 1, f.cs.WebsiteCount())

	idx, _ := orderOf(f.sections(t, result.WebsiteID))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, idx)
}

// jobTable is a JobLookup over a fixed set of jobs.
type jobTable map[string]*task.Job

func (j jobTable) Get(ctx context.Context, id string) (*task.Job, error) {
	job, ok := j[id]
	if !ok {
		return nil, task.ErrJobNotFound
	}
	return job, nil
}

type failingLookup struct{}

func (failingLookup) Get(ctx context.Context, id string) (*task.Job, error) {
	return nil, errors.New("redis: connection refused")
}

// insertPartialWebsite saves a website that ownerJobID started but did not
// finish: a home page with only its hero section.
func insertPartialWebsite(t *testing.T, f *workerFixture, d *domain.Domain, ownerJobID string) *domain.Website {
	t.Helper()
	ctx := context.Background()

	w, err := domain.NewWebsite(d, domain.TemplateModernNews, false, ownerJobID)
	require.NoError(t, err)
	require.NoError(t, f.cs.Websites.Create(ctx, w))
	page, err := domain.NewHomePage(w.ID, d.Name)
	require.NoError(t, err)
	require.NoError(t, f.cs.Pages.Create(ctx, page))
	hero, err := domain.NewSection(page.ID, domain.SectionKindHero, domain.HeroOrderIndex, ownerJobID,
		domain.NewBlock(domain.BlockKindTitle, d.Name))
	require.NoError(t, err)
	require.NoError(t, f.cs.Sections.Create(ctx, hero))
	return w
}

func TestGenerateWebsite_PartialWebsiteOfEndedJob(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ownerStatus task.JobStatus // empty: owner job no longer exists
		rebuilt     bool
	}{
		{name: "owner cancelled", ownerStatus: task.JobStatusCancelled, rebuilt: true},
		{name: "owner failed", ownerStatus: task.JobStatusFailed, rebuilt: true},
		{name: "owner cleared", rebuilt: true},
		{name: "owner waiting for retry", ownerStatus: task.JobStatusDelayed, rebuilt: false},
		{name: "owner running", ownerStatus: task.JobStatusActive, rebuilt: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			jobs := jobTable{}
			f := newWorkerFixture(t, task.WithJobLookup(jobs))
			ctx := context.Background()

			d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
			partial := insertPartialWebsite(t, f, d, "owner-job")
			if tt.ownerStatus != "" {
				jobs["owner-job"] = &task.Job{ID: "owner-job", Status: tt.ownerStatus}
			}

			raw, err := f.worker.Handle(ctx, f.websiteJob(t, d), nil)
			require.NoError(t, err)

			var result task.GenerateWebsiteResult
			require.NoError(t, json.Unmarshal(raw, &result))
			assert.Equal(t, 1, f.cs.WebsiteCount())

			if !tt.rebuilt {
				assert.True(t, result.AlreadyExisted)
				assert.Equal(t, partial.ID, result.WebsiteID)
				assert.Empty(t, f.gen.CallLog())
				return
			}

			assert.False(t, result.AlreadyExisted)
			assert.Equal(t, 3, result.BlogCount)
			site, err := f.cs.Websites.GetByDomainID(ctx, d.ID)
			require.NoError(t, err)
			assert.True(t, site.IsReady())
			assert.NotEqual(t, partial.ID, site.ID)
			_, kinds := orderOf(f.sections(t, site.ID))
			assert.Len(t, kinds, 5)
			stored, err := f.cs.Domains.GetByID(ctx, d.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.DomainStatusActive, stored.Status)
		})
	}
}

func TestGenerateWebsite_OwnerLookupErrorIsRetryable(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t, task.WithJobLookup(failingLookup{}))

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	insertPartialWebsite(t, f, d, "owner-job")

	_, err := f.worker.Handle(context.Background(), f.websiteJob(t, d), nil)
	require.Error(t, err)
	assert.False(t, task.IsPermanent(err))
	assert.Equal(t, 1, f.cs.WebsiteCount(), "the partial website is left for a later attempt")
}

func TestGenerateWebsite_CleanupOnFinalFailure(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	require.NoError(t, f.cs.Domains.UpdateStatus(ctx, d.ID, domain.DomainStatusActive))
	f.gen.GenerateImageFn = func(ctx context.Context, prompt string) (*generation.ImageRef, error) {
		return nil, errors.New("upstream 500")
	}

	job := f.websiteJob(t, d)
	job.AttemptsMade = job.MaxAttempts
	_, err := f.worker.Handle(ctx, job, nil)
	require.Error(t, err)
	require.Equal(t, 1, f.cs.WebsiteCount())

	f.worker.OnFinalFailure(ctx, job, err)

	assert.Equal(t, 0, f.cs.WebsiteCount())
	assert.Equal(t, 0, f.cs.SectionCount())
	stored, err := f.cs.Domains.GetByID(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DomainStatusPending, stored.Status)
}

func TestGenerateWebsite_CleanupKeepsOtherJobsWebsite(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	testutils.MustInsertReadyWebsite(t, f.cs, d, 3)

	f.worker.OnFinalFailure(ctx, f.websiteJob(t, d), errors.New("timeout"))

	assert.Equal(t, 1, f.cs.WebsiteCount())
}

func TestGenerateWebsite_CleanupSkipsDeletedDomain(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	job := f.websiteJob(t, d)
	f.cs.DeleteDomain(d.ID)

	assert.NotPanics(t, func() {
		f.worker.OnFinalFailure(context.Background(), job, errors.New("domain deleted"))
	})
	_, err := f.cs.Domains.GetByID(context.Background(), d.ID)
	assert.Error(t, err, "cleanup must not recreate the domain")
}

func TestGenerateWebsite_StaleClaimAborts(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	stale := func(ctx context.Context, pct int) error { return task.ErrStaleClaim }

	_, err := f.worker.Handle(context.Background(), f.websiteJob(t, d), stale)
	assert.ErrorIs(t, err, task.ErrStaleClaim)
	assert.Empty(t, f.gen.CallLog())
}

func TestHandle_UnknownJobType(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	job := &task.Job{ID: "x", Type: "resize-images", Payload: json.RawMessage(`{}`)}
	_, err := f.worker.Handle(context.Background(), job, nil)
	assert.ErrorIs(t, err, task.ErrUnknownJobType)
	assert.True(t, task.IsPermanent(err))
}

func (f *workerFixture) moreBlogsJob(t *testing.T, websiteID uuid.UUID, quantity int) *task.Job {
	return newJob(t, task.GenerateMoreBlogsPayload{
		WebsiteID: websiteID,
		UserID:    f.userID,
		Quantity:  quantity,
	}, 1)
}

func TestGenerateMoreBlogs_Appends(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	site, _ := testutils.MustInsertReadyWebsite(t, f.cs, d, 3)

	progress := &progressLog{}
	raw, err := f.worker.Handle(ctx, f.moreBlogsJob(t, site.ID, 2), progress.report)
	require.NoError(t, err)

	var result task.GenerateMoreBlogsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, task.GenerateMoreBlogsResult{
		WebsiteID:       site.ID,
		Added:           2,
		FirstOrderIndex: 4,
		LastOrderIndex:  5,
	}, result)

	idx, kinds := orderOf(f.sections(t, site.ID))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, idx)
	assert.Equal(t, domain.SectionKindFooter, kinds[len(kinds)-1])
	assert.Equal(t, []int{10, 30, 40, 65, 90}, progress.values)

	// A second job appends again.
	_, err = f.worker.Handle(ctx, f.moreBlogsJob(t, site.ID, 1), nil)
	require.NoError(t, err)
	idx, _ = orderOf(f.sections(t, site.ID))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7}, idx)
}

func TestGenerateMoreBlogs_RetryDoesNotDuplicate(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	site, _ := testutils.MustInsertReadyWebsite(t, f.cs, d, 3)

	var articles atomic.Int32
	f.gen.GenerateArticleFn = func(ctx context.Context, topic, title string) (string, error) {
		if articles.Add(1) == 2 {
			return "", errors.New("upstream 503")
		}
		return "An article about " + title, nil
	}

	job := f.moreBlogsJob(t, site.ID, 2)
	_, err := f.worker.Handle(ctx, job, nil)
	require.Error(t, err)

	job.AttemptsMade = 2
	raw, err := f.worker.Handle(ctx, job, nil)
	require.NoError(t, err)

	var result task.GenerateMoreBlogsResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, 4, result.FirstOrderIndex)

	idx, _ := orderOf(f.sections(t, site.ID))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6}, idx)
}

func TestGenerateMoreBlogs_CleanupOnFinalFailure(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	site, _ := testutils.MustInsertReadyWebsite(t, f.cs, d, 3)

	var articles atomic.Int32
	f.gen.GenerateArticleFn = func(ctx context.Context, topic, title string) (string, error) {
		if articles.Add(1) == 3 {
			return "", errors.New("upstream 503")
		}
		return "An article about " + title, nil
	}

	job := f.moreBlogsJob(t, site.ID, 3)
	job.AttemptsMade = job.MaxAttempts
	_, err := f.worker.Handle(ctx, job, nil)
	require.Error(t, err)

	f.worker.OnFinalFailure(ctx, job, err)

	idx, kinds := orderOf(f.sections(t, site.ID))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, idx)
	assert.Equal(t, domain.SectionKindFooter, kinds[4])
}

func TestGenerateMoreBlogs_MissingWebsiteIsPermanent(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)

	_, err := f.worker.Handle(context.Background(), f.moreBlogsJob(t, uuid.New(), 2), nil)
	require.Error(t, err)
	assert.True(t, task.IsPermanent(err))
}

func TestGenerateMoreBlogs_WebsiteNotReady(t *testing.T) {
	t.Parallel()
	f := newWorkerFixture(t)
	ctx := context.Background()

	d := testutils.MustInsertDomain(t, f.cs, f.userID, "example.com")
	site, err := domain.NewWebsite(d, domain.TemplateMinimal, false, "other")
	require.NoError(t, err)
	require.NoError(t, f.cs.Websites.Create(ctx, site))

	_, err = f.worker.Handle(ctx, f.moreBlogsJob(t, site.ID, 1), nil)
	assert.ErrorIs(t, err, task.ErrWebsiteNotReady)
	assert.True(t, task.IsPermanent(err))
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	}
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: uniqueViolationCode, ConstraintName: constraint}
}

func TestPostgresDomainStore_GetByID(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresDomainStore(db, nil)

	id := uuid.New()
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM domains")).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "name", "status", "meaning", "created_at", "updated_at"}).
			AddRow(id.String(), userID.String(), "example.com", "PENDING", "a blog about examples", now, now))

	d, err := s.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "example.com", d.Name)
	assert.Equal(t, domain.DomainStatusPending, d.Status)
	assert.Equal(t, userID, d.UserID)
}

func TestPostgresDomainStore_GetByID_NotFound(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresDomainStore(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM domains")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrDomainNotFound)
}

func TestPostgresDomainStore_Create(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresDomainStore(db, nil)

	d, err := domain.NewDomain(uuid.New(), "Example.com", "")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO domains")).
		WithArgs(d.ID, d.UserID, "example.com", d.Status, "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.Create(context.Background(), d))
}

func TestPostgresDomainStore_UpdateStatus(t *testing.T) {
	t.Run("updated", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresDomainStore(db, nil)
		id := uuid.New()

		mock.ExpectExec(regexp.QuoteMeta("UPDATE domains SET status")).
			WithArgs(domain.DomainStatusActive, sqlmock.AnyArg(), id).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.UpdateStatus(context.Background(), id, domain.DomainStatusActive))
	})

	t.Run("missing domain", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresDomainStore(db, nil)

		mock.ExpectExec(regexp.QuoteMeta("UPDATE domains SET status")).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := s.UpdateStatus(context.Background(), uuid.New(), domain.DomainStatusPending)
		assert.ErrorIs(t, err, store.ErrDomainNotFound)
	})

	t.Run("invalid status", func(t *testing.T) {
		db, _, done := newMock(t)
		defer done()
		s := NewPostgresDomainStore(db, nil)

		err := s.UpdateStatus(context.Background(), uuid.New(), domain.DomainStatus("GONE"))
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func newTestWebsite(t *testing.T) *domain.Website {
	t.Helper()
	d, err := domain.NewDomain(uuid.New(), "example.com", "")
	require.NoError(t, err)
	w, err := domain.NewWebsite(d, domain.TemplateModernNews, true, "job-1")
	require.NoError(t, err)
	return w
}

func TestPostgresWebsiteStore_Create(t *testing.T) {
	t.Run("inserted", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresWebsiteStore(db, nil)
		w := newTestWebsite(t)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO websites")).
			WithArgs(w.ID, w.DomainID, w.UserID, w.Subdomain, w.TemplateKey, true,
				w.Status, "job-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, s.Create(context.Background(), w))
	})

	t.Run("domain already has a website", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresWebsiteStore(db, nil)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO websites")).
			WillReturnError(uniqueViolation(websitesDomainIDKey))

		err := s.Create(context.Background(), newTestWebsite(t))
		assert.ErrorIs(t, err, store.ErrWebsiteExists)
	})

	t.Run("subdomain collision is a plain duplicate", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresWebsiteStore(db, nil)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO websites")).
			WillReturnError(uniqueViolation("websites_subdomain_key"))

		err := s.Create(context.Background(), newTestWebsite(t))
		assert.ErrorIs(t, err, store.ErrDuplicate)
		assert.NotErrorIs(t, err, store.ErrWebsiteExists)
	})

	t.Run("deleted domain", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresWebsiteStore(db, nil)

		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO websites")).
			WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode, ConstraintName: "websites_domain_id_fkey"})

		err := s.Create(context.Background(), newTestWebsite(t))
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestPostgresWebsiteStore_GetByDomainID(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresWebsiteStore(db, nil)
	w := newTestWebsite(t)

	cols := []string{"id", "domain_id", "user_id", "subdomain", "template_key", "contact_form_enabled",
		"status", "generation_job_id", "created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM websites WHERE domain_id = $1")).
		WithArgs(w.DomainID).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			w.ID.String(), w.DomainID.String(), w.UserID.String(), w.Subdomain, w.TemplateKey, true,
			"ready", "job-1", w.CreatedAt, w.UpdatedAt))
	mock.ExpectQuery(regexp.QuoteMeta("FROM websites WHERE domain_id = $1")).
		WillReturnRows(sqlmock.NewRows(cols))

	got, err := s.GetByDomainID(context.Background(), w.DomainID)
	require.NoError(t, err)
	assert.True(t, got.IsReady())
	assert.Equal(t, w.Subdomain, got.Subdomain)
	assert.Equal(t, "job-1", got.GenerationJobID)

	_, err = s.GetByDomainID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, store.ErrWebsiteNotFound)
}

func TestPostgresWebsiteStore_MarkReady(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresWebsiteStore(db, nil)
	id := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE websites SET status")).
		WithArgs(domain.WebsiteStatusReady, sqlmock.AnyArg(), id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE websites SET status")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	require.NoError(t, s.MarkReady(ctx, id))
	assert.ErrorIs(t, s.MarkReady(ctx, uuid.New()), store.ErrWebsiteNotFound)
}

func TestPostgresWebsiteStore_DeleteGenerating(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresWebsiteStore(db, nil)
	domainID := uuid.New()

	query := regexp.QuoteMeta("DELETE FROM websites WHERE domain_id = $1 AND generation_job_id = $2 AND status = $3")
	mock.ExpectExec(query).
		WithArgs(domainID, "job-1", domain.WebsiteStatusGenerating).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(query).
		WithArgs(domainID, "job-2", domain.WebsiteStatusGenerating).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(query).
		WillReturnError(errors.New("connection reset"))

	ctx := context.Background()
	deleted, err := s.DeleteGenerating(ctx, domainID, "job-1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = s.DeleteGenerating(ctx, domainID, "job-2")
	require.NoError(t, err)
	assert.False(t, deleted, "websites of other jobs are left alone")

	_, err = s.DeleteGenerating(ctx, domainID, "job-3")
	assert.Error(t, err)
}

func TestPostgresPageStore(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresPageStore(db, nil)

	websiteID := uuid.New()
	p, err := domain.NewHomePage(websiteID, "Example")
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pages")).
		WithArgs(p.ID, websiteID, domain.HomePageSlug, "Example", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pages")).
		WithArgs(websiteID, domain.HomePageSlug).
		WillReturnRows(sqlmock.NewRows([]string{"id", "website_id", "slug", "title", "created_at"}).
			AddRow(p.ID.String(), websiteID.String(), domain.HomePageSlug, "Example", p.CreatedAt))
	mock.ExpectQuery(regexp.QuoteMeta("FROM pages")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ctx := context.Background()
	require.NoError(t, s.Create(ctx, p))

	got, err := s.GetBySlug(ctx, websiteID, domain.HomePageSlug)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.GetBySlug(ctx, websiteID, "about")
	assert.ErrorIs(t, err, store.ErrPageNotFound)
}

func newBlogSection(t *testing.T, pageID uuid.UUID, orderIndex int) *domain.Section {
	t.Helper()
	s, err := domain.NewSection(pageID, domain.SectionKindBlog, orderIndex, "job-1",
		domain.NewBlock(domain.BlockKindTitle, "Title"),
		domain.NewBlock(domain.BlockKindBody, "Body"),
	)
	require.NoError(t, err)
	return s
}

func TestPostgresSectionStore_Create(t *testing.T) {
	t.Run("section and blocks in one transaction", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresSectionStore(db, nil)
		sec := newBlogSection(t, uuid.New(), 1)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sections")).
			WithArgs(sec.ID, sec.PageID, domain.SectionKindBlog, 1, "job-1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content_blocks")).
			WithArgs(sec.Blocks[0].ID, sec.ID, domain.BlockKindTitle, 0, "Title").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content_blocks")).
			WithArgs(sec.Blocks[1].ID, sec.ID, domain.BlockKindBody, 1, "Body").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, s.Create(context.Background(), sec))
	})

	t.Run("order index taken rolls back", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresSectionStore(db, nil)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sections")).
			WillReturnError(uniqueViolation(sectionsPageOrderIndexKey))
		mock.ExpectRollback()

		err := s.Create(context.Background(), newBlogSection(t, uuid.New(), 1))
		assert.ErrorIs(t, err, store.ErrOrderIndexTaken)
	})

	t.Run("block failure rolls back the section", func(t *testing.T) {
		db, mock, done := newMock(t)
		defer done()
		s := NewPostgresSectionStore(db, nil)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sections")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO content_blocks")).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		err := s.Create(context.Background(), newBlogSection(t, uuid.New(), 1))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")
	})

	t.Run("invalid section", func(t *testing.T) {
		db, _, done := newMock(t)
		defer done()
		s := NewPostgresSectionStore(db, nil)

		err := s.Create(context.Background(), &domain.Section{PageID: uuid.New(), Kind: domain.SectionKindBlog})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestPostgresSectionStore_ListByPage(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresSectionStore(db, nil)

	pageID := uuid.New()
	heroID, blogID, footerID := uuid.NewString(), uuid.NewString(), uuid.NewString()
	pid := pageID.String()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "page_id", "kind", "order_index", "generation_job_id", "created_at",
		"block_id", "block_kind", "position", "value",
	}).
		AddRow(heroID, pid, "hero", 0, "job-1", now, uuid.NewString(), "title", 0, "Example").
		AddRow(heroID, pid, "hero", 0, "job-1", now, uuid.NewString(), "text", 1, "Welcome").
		AddRow(blogID, pid, "blog", 1, "job-1", now, uuid.NewString(), "title", 0, "First post").
		AddRow(footerID, pid, "footer", 2, "job-1", now, nil, nil, nil, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sections s")).
		WithArgs(pageID).
		WillReturnRows(rows)

	sections, err := s.ListByPage(context.Background(), pageID)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, domain.SectionKindHero, sections[0].Kind)
	require.Len(t, sections[0].Blocks, 2)
	assert.Equal(t, "Welcome", sections[0].Block(domain.BlockKindText).Value)
	assert.Equal(t, 1, sections[1].OrderIndex)
	assert.Equal(t, "First post", sections[1].Block(domain.BlockKindTitle).Value)
	assert.Empty(t, sections[2].Blocks)
}

func TestPostgresSectionStore_OrderIndexOperations(t *testing.T) {
	db, mock, done := newMock(t)
	defer done()
	s := NewPostgresSectionStore(db, nil)
	pageID := uuid.New()
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(order_index), $2)")).
		WithArgs(pageID, store.NoSections, domain.SectionKindFooter).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET order_index = $1")).
		WithArgs(7, pageID, domain.SectionKindFooter).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET order_index = $1")).
		WillReturnError(uniqueViolation(sectionsPageOrderIndexKey))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sections")).
		WithArgs(pageID, "job-2", domain.SectionKindFooter).
		WillReturnResult(sqlmock.NewResult(0, 3))

	maxIndex, err := s.MaxContentOrderIndex(ctx, pageID)
	require.NoError(t, err)
	assert.Equal(t, 3, maxIndex)

	require.NoError(t, s.MoveFooter(ctx, pageID, 7))
	assert.ErrorIs(t, s.MoveFooter(ctx, pageID, 1), store.ErrOrderIndexTaken)

	n, err := s.DeleteByJob(ctx, pageID, "job-2")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

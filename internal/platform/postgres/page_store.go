package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/store"
)

// PostgresPageStore implements store.PageStore.
type PostgresPageStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresPageStore creates a new PostgresPageStore.
func NewPostgresPageStore(db store.DBTX, logger *slog.Logger) *PostgresPageStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPageStore{
		db:     db,
		logger: logger.With(slog.String("component", "page_store")),
	}
}

var _ store.PageStore = (*PostgresPageStore)(nil)

// Create implements store.PageStore.Create
func (s *PostgresPageStore) Create(ctx context.Context, p *domain.Page) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, website_id, slug, title, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, p.ID, p.WebsiteID, p.Slug, p.Title, p.CreatedAt)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create page",
			slog.String("error", err.Error()),
			slog.String("website_id", p.WebsiteID.String()))
		return MapError(err)
	}
	return nil
}

// GetBySlug implements store.PageStore.GetBySlug
func (s *PostgresPageStore) GetBySlug(ctx context.Context, websiteID uuid.UUID, slug string) (*domain.Page, error) {
	var p domain.Page
	err := s.db.QueryRowContext(ctx, `
		SELECT id, website_id, slug, title, created_at
		FROM pages
		WHERE website_id = $1 AND slug = $2
	`, websiteID, slug).Scan(&p.ID, &p.WebsiteID, &p.Slug, &p.Title, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrPageNotFound
		}
		return nil, fmt.Errorf("failed to get page: %w", MapError(err))
	}
	return &p, nil
}

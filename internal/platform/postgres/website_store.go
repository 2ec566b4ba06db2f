package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/store"
)

const websiteColumns = `id, domain_id, user_id, subdomain, template_key, contact_form_enabled,
	status, generation_job_id, created_at, updated_at`

// PostgresWebsiteStore implements the store.WebsiteStore interface
// using a PostgreSQL database as the storage backend.
type PostgresWebsiteStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresWebsiteStore creates a new PostgreSQL implementation of the WebsiteStore interface.
func NewPostgresWebsiteStore(db store.DBTX, logger *slog.Logger) *PostgresWebsiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresWebsiteStore{
		db:     db,
		logger: logger.With(slog.String("component", "website_store")),
	}
}

var _ store.WebsiteStore = (*PostgresWebsiteStore)(nil)

// Create implements store.WebsiteStore.Create
// The websites_domain_id_key constraint is the one-website-per-domain guard;
// violating it yields store.ErrWebsiteExists.
func (s *PostgresWebsiteStore) Create(ctx context.Context, w *domain.Website) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := w.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO websites (` + websiteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		w.ID, w.DomainID, w.UserID, w.Subdomain, w.TemplateKey, w.ContactFormEnabled,
		w.Status, w.GenerationJobID, w.CreatedAt, w.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err, websitesDomainIDKey) {
			log.Info("website already exists for domain",
				slog.String("domain_id", w.DomainID.String()))
			return fmt.Errorf("%w: %w", store.ErrWebsiteExists, err)
		}
		log.Error("failed to create website",
			slog.String("error", err.Error()),
			slog.String("website_id", w.ID.String()))
		return MapError(err)
	}

	log.Info("website created",
		slog.String("website_id", w.ID.String()),
		slog.String("subdomain", w.Subdomain))
	return nil
}

// GetByID implements store.WebsiteStore.GetByID
func (s *PostgresWebsiteStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Website, error) {
	return s.getOne(ctx, `SELECT `+websiteColumns+` FROM websites WHERE id = $1`, id)
}

// GetByDomainID implements store.WebsiteStore.GetByDomainID
func (s *PostgresWebsiteStore) GetByDomainID(ctx context.Context, domainID uuid.UUID) (*domain.Website, error) {
	return s.getOne(ctx, `SELECT `+websiteColumns+` FROM websites WHERE domain_id = $1`, domainID)
}

func (s *PostgresWebsiteStore) getOne(ctx context.Context, query string, arg uuid.UUID) (*domain.Website, error) {
	var w domain.Website
	var status string
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&w.ID, &w.DomainID, &w.UserID, &w.Subdomain, &w.TemplateKey, &w.ContactFormEnabled,
		&status, &w.GenerationJobID, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrWebsiteNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get website",
			slog.String("error", err.Error()),
			slog.String("key", arg.String()))
		return nil, fmt.Errorf("failed to get website: %w", MapError(err))
	}
	w.Status = domain.WebsiteStatus(status)
	return &w, nil
}

// MarkReady implements store.WebsiteStore.MarkReady
func (s *PostgresWebsiteStore) MarkReady(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE websites SET status = $1, updated_at = $2 WHERE id = $3`,
		domain.WebsiteStatusReady, time.Now().UTC(), id)
	if err != nil {
		return MapError(err)
	}
	return CheckRowsAffected(result, store.ErrWebsiteNotFound)
}

// DeleteGenerating implements store.WebsiteStore.DeleteGenerating
// Pages, sections and content blocks go with it through ON DELETE CASCADE.
func (s *PostgresWebsiteStore) DeleteGenerating(ctx context.Context, domainID uuid.UUID, jobID string) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM websites WHERE domain_id = $1 AND generation_job_id = $2 AND status = $3`,
		domainID, jobID, domain.WebsiteStatusGenerating)
	if err != nil {
		log.Error("failed to delete partial website",
			slog.String("error", err.Error()),
			slog.String("domain_id", domainID.String()))
		return false, MapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if n > 0 {
		log.Info("partial website deleted",
			slog.String("domain_id", domainID.String()),
			slog.String("job_id", jobID))
	}
	return n > 0, nil
}

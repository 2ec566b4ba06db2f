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

// PostgresDomainStore implements the store.DomainStore interface
// using a PostgreSQL database as the storage backend.
type PostgresDomainStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDomainStore creates a new PostgreSQL implementation of the DomainStore interface.
// If logger is nil, a default logger will be used.
func NewPostgresDomainStore(db store.DBTX, logger *slog.Logger) *PostgresDomainStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDomainStore{
		db:     db,
		logger: logger.With(slog.String("component", "domain_store")),
	}
}

var _ store.DomainStore = (*PostgresDomainStore)(nil)

// Create implements store.DomainStore.Create
func (s *PostgresDomainStore) Create(ctx context.Context, d *domain.Domain) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := d.Validate(); err != nil {
		log.Warn("domain validation failed during create",
			slog.String("error", err.Error()),
			slog.String("domain_id", d.ID.String()))
		return err
	}

	query := `
		INSERT INTO domains (id, user_id, name, status, meaning, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.UserID, d.Name, d.Status, d.Meaning, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		log.Error("failed to create domain",
			slog.String("error", err.Error()),
			slog.String("domain_id", d.ID.String()))
		return MapError(err)
	}

	log.Info("domain created", slog.String("domain_id", d.ID.String()), slog.String("name", d.Name))
	return nil
}

// GetByID implements store.DomainStore.GetByID
func (s *PostgresDomainStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Domain, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT id, user_id, name, status, meaning, created_at, updated_at
		FROM domains
		WHERE id = $1
	`

	var d domain.Domain
	var status string
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.UserID, &d.Name, &status, &d.Meaning, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("domain not found", slog.String("domain_id", id.String()))
			return nil, store.ErrDomainNotFound
		}
		log.Error("failed to get domain",
			slog.String("error", err.Error()),
			slog.String("domain_id", id.String()))
		return nil, fmt.Errorf("failed to get domain: %w", MapError(err))
	}

	d.Status = domain.DomainStatus(status)
	return &d, nil
}

// UpdateStatus implements store.DomainStore.UpdateStatus
func (s *PostgresDomainStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DomainStatus) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if !domain.IsValidDomainStatus(status) {
		return fmt.Errorf("%w: domain status %q", store.ErrInvalidEntity, status)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE domains SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id)
	if err != nil {
		log.Error("failed to update domain status",
			slog.String("error", err.Error()),
			slog.String("domain_id", id.String()))
		return MapError(err)
	}
	if err := CheckRowsAffected(result, store.ErrDomainNotFound); err != nil {
		return err
	}

	log.Info("domain status updated",
		slog.String("domain_id", id.String()),
		slog.String("status", string(status)))
	return nil
}

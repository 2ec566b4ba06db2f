package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/store"
)

// PostgresSectionStore implements the store.SectionStore interface
// using a PostgreSQL database as the storage backend. Content blocks are
// stored in their own table and always written together with their section.
type PostgresSectionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSectionStore creates a new PostgreSQL implementation of the SectionStore interface.
func NewPostgresSectionStore(db store.DBTX, logger *slog.Logger) *PostgresSectionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresSectionStore{
		db:     db,
		logger: logger.With(slog.String("component", "section_store")),
	}
}

var _ store.SectionStore = (*PostgresSectionStore)(nil)

// Create implements store.SectionStore.Create
// When the store wraps a *sql.DB the section and its blocks are inserted in
// a transaction of their own. A store built on a *sql.Tx writes into that
// transaction and leaves commit to the caller.
func (s *PostgresSectionStore) Create(ctx context.Context, section *domain.Section) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := section.Validate(); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}

	var err error
	if db, ok := s.db.(*sql.DB); ok {
		err = store.RunInTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return insertSection(ctx, tx, section)
		})
	} else {
		err = insertSection(ctx, s.db, section)
	}
	if err != nil {
		if IsUniqueViolation(err, sectionsPageOrderIndexKey) {
			log.Warn("section order index taken",
				slog.String("page_id", section.PageID.String()),
				slog.Int("order_index", section.OrderIndex))
			return fmt.Errorf("%w: %w", store.ErrOrderIndexTaken, err)
		}
		log.Error("failed to create section",
			slog.String("error", err.Error()),
			slog.String("section_id", section.ID.String()))
		return MapError(err)
	}

	log.Debug("section created",
		slog.String("section_id", section.ID.String()),
		slog.String("kind", string(section.Kind)),
		slog.Int("order_index", section.OrderIndex),
		slog.Int("blocks", len(section.Blocks)))
	return nil
}

func insertSection(ctx context.Context, db store.DBTX, section *domain.Section) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sections (id, page_id, kind, order_index, generation_job_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, section.ID, section.PageID, section.Kind, section.OrderIndex, section.GenerationJobID, section.CreatedAt)
	if err != nil {
		return err
	}

	for _, b := range section.Blocks {
		_, err := db.ExecContext(ctx, `
			INSERT INTO content_blocks (id, section_id, kind, position, value)
			VALUES ($1, $2, $3, $4, $5)
		`, b.ID, section.ID, b.Kind, b.Position, b.Value)
		if err != nil {
			return err
		}
	}
	return nil
}

// ListByPage implements store.SectionStore.ListByPage
func (s *PostgresSectionStore) ListByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.Section, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.page_id, s.kind, s.order_index, s.generation_job_id, s.created_at,
			b.id, b.kind, b.position, b.value
		FROM sections s
		LEFT JOIN content_blocks b ON b.section_id = s.id
		WHERE s.page_id = $1
		ORDER BY s.order_index, b.position
	`, pageID)
	if err != nil {
		log.Error("failed to list sections",
			slog.String("error", err.Error()),
			slog.String("page_id", pageID.String()))
		return nil, MapError(err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error("failed to close rows", slog.String("error", closeErr.Error()))
		}
	}()

	sections := []*domain.Section{}
	var current *domain.Section
	for rows.Next() {
		var sec domain.Section
		var kind string
		var blockID uuid.NullUUID
		var blockKind, blockValue sql.NullString
		var blockPosition sql.NullInt64

		if err := rows.Scan(
			&sec.ID, &sec.PageID, &kind, &sec.OrderIndex, &sec.GenerationJobID, &sec.CreatedAt,
			&blockID, &blockKind, &blockPosition, &blockValue,
		); err != nil {
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}

		if current == nil || current.ID != sec.ID {
			sec.Kind = domain.SectionKind(kind)
			current = &sec
			sections = append(sections, current)
		}
		if blockID.Valid {
			current.Blocks = append(current.Blocks, &domain.ContentBlock{
				ID:        blockID.UUID,
				SectionID: current.ID,
				Kind:      domain.BlockKind(blockKind.String),
				Position:  int(blockPosition.Int64),
				Value:     blockValue.String,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sections: %w", err)
	}

	return sections, nil
}

// MaxContentOrderIndex implements store.SectionStore.MaxContentOrderIndex
func (s *PostgresSectionStore) MaxContentOrderIndex(ctx context.Context, pageID uuid.UUID) (int, error) {
	var maxIndex int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(order_index), $2)
		FROM sections
		WHERE page_id = $1 AND kind <> $3
	`, pageID, store.NoSections, domain.SectionKindFooter).Scan(&maxIndex)
	if err != nil {
		return 0, fmt.Errorf("failed to get max order index: %w", MapError(err))
	}
	return maxIndex, nil
}

// MoveFooter implements store.SectionStore.MoveFooter
func (s *PostgresSectionStore) MoveFooter(ctx context.Context, pageID uuid.UUID, orderIndex int) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	_, err := s.db.ExecContext(ctx, `
		UPDATE sections SET order_index = $1
		WHERE page_id = $2 AND kind = $3
	`, orderIndex, pageID, domain.SectionKindFooter)
	if err != nil {
		if IsUniqueViolation(err, sectionsPageOrderIndexKey) {
			return fmt.Errorf("%w: %w", store.ErrOrderIndexTaken, err)
		}
		log.Error("failed to move footer",
			slog.String("error", err.Error()),
			slog.String("page_id", pageID.String()))
		return MapError(err)
	}

	log.Debug("footer moved",
		slog.String("page_id", pageID.String()),
		slog.Int("order_index", orderIndex))
	return nil
}

// DeleteByJob implements store.SectionStore.DeleteByJob
func (s *PostgresSectionStore) DeleteByJob(ctx context.Context, pageID uuid.UUID, jobID string) (int, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sections
		WHERE page_id = $1 AND generation_job_id = $2 AND kind <> $3
	`, pageID, jobID, domain.SectionKindFooter)
	if err != nil {
		log.Error("failed to delete job sections",
			slog.String("error", err.Error()),
			slog.String("page_id", pageID.String()),
			slog.String("job_id", jobID))
		return 0, MapError(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		log.Info("job sections deleted",
			slog.String("page_id", pageID.String()),
			slog.String("job_id", jobID),
			slog.Int64("count", n))
	}
	return int(n), nil
}

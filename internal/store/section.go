package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
)

// NoSections is returned by SectionStore.MaxContentOrderIndex for a page
// without content sections.
const NoSections = -1

// SectionStore defines the interface for section and content block persistence.
type SectionStore interface {
	// Create saves a section and all of its content blocks atomically.
	// Returns ErrOrderIndexTaken if the page already has a section at the
	// same order index.
	Create(ctx context.Context, s *domain.Section) error

	// ListByPage returns the sections of a page ordered by order index,
	// each with its content blocks ordered by position.
	ListByPage(ctx context.Context, pageID uuid.UUID) ([]*domain.Section, error)

	// MaxContentOrderIndex returns the highest order index among the page's
	// non-footer sections, or NoSections if there are none.
	MaxContentOrderIndex(ctx context.Context, pageID uuid.UUID) (int, error)

	// MoveFooter sets the order index of the page's footer section.
	// It is a no-op for pages without a footer.
	MoveFooter(ctx context.Context, pageID uuid.UUID, orderIndex int) error

	// DeleteByJob removes the content sections of a page written by the given
	// generation job and returns how many were removed.
	DeleteByJob(ctx context.Context, pageID uuid.UUID, jobID string) (int, error)
}

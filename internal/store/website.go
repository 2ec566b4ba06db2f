package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
)

// WebsiteStore defines the interface for website persistence.
type WebsiteStore interface {
	// Create saves a new website.
	// Returns ErrWebsiteExists if the domain already has a website.
	Create(ctx context.Context, w *domain.Website) error

	// GetByID retrieves a website by its unique ID.
	// Returns ErrWebsiteNotFound if the website does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Website, error)

	// GetByDomainID retrieves the website generated for a domain.
	// Returns ErrWebsiteNotFound if the domain has no website.
	GetByDomainID(ctx context.Context, domainID uuid.UUID) (*domain.Website, error)

	// MarkReady flags a website as fully generated.
	// Returns ErrWebsiteNotFound if the website does not exist.
	MarkReady(ctx context.Context, id uuid.UUID) error

	// DeleteGenerating removes the domain's website with its content, but only
	// while it is still generating and owned by jobID. It reports whether a
	// website was deleted.
	DeleteGenerating(ctx context.Context, domainID uuid.UUID, jobID string) (bool, error)
}

package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
)

// PageStore defines the interface for page persistence.
type PageStore interface {
	// Create saves a new page.
	Create(ctx context.Context, p *domain.Page) error

	// GetBySlug retrieves a page of a website by slug.
	// Returns ErrPageNotFound if no such page exists.
	GetBySlug(ctx context.Context, websiteID uuid.UUID, slug string) (*domain.Page, error)
}

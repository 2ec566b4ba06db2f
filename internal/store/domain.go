package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/domain"
)

// DomainStore defines the interface for domain persistence.
type DomainStore interface {
	// Create saves a new domain to the store.
	Create(ctx context.Context, d *domain.Domain) error

	// GetByID retrieves a domain by its unique ID.
	// Returns ErrDomainNotFound if the domain does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Domain, error)

	// UpdateStatus sets the provisioning status of a domain.
	// Returns ErrDomainNotFound if the domain does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DomainStatus) error
}

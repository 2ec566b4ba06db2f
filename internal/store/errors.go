package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity (e.g., a second website for the same domain).
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored, or references a row that does not exist.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// Entity-specific "not found" errors

	// ErrDomainNotFound indicates that the requested domain does not exist in the store.
	ErrDomainNotFound = fmt.Errorf("%w: domain", ErrNotFound)

	// ErrWebsiteNotFound indicates that the requested website does not exist in the store.
	ErrWebsiteNotFound = fmt.Errorf("%w: website", ErrNotFound)

	// ErrPageNotFound indicates that the requested page does not exist in the store.
	ErrPageNotFound = fmt.Errorf("%w: page", ErrNotFound)

	// Entity-specific "duplicate" errors

	// ErrWebsiteExists indicates that the domain already has a website.
	// Returned when the one-website-per-domain constraint rejects a create.
	ErrWebsiteExists = fmt.Errorf("%w: website for domain", ErrDuplicate)

	// ErrOrderIndexTaken indicates that a page already has a section at the
	// requested order index.
	ErrOrderIndexTaken = fmt.Errorf("%w: section order index", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidID is returned when an ID is malformed or invalid.
	ErrInvalidID = errors.New("invalid ID")

	// ErrInvalidDomainName is returned when a domain name has no usable first label.
	ErrInvalidDomainName = errors.New("invalid domain name")

	// ErrUnknownTemplate is returned when a website template key is not registered.
	ErrUnknownTemplate = errors.New("unknown website template")

	// ErrInvalidOrderIndex is returned when a section order index is negative.
	ErrInvalidOrderIndex = errors.New("invalid section order index")

	// ErrUnauthorized is returned when an operation is not permitted.
	ErrUnauthorized = errors.New("unauthorized operation")
)

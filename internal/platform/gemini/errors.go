package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrEmptyPrompt is returned when a prompt renders to an empty string.
	ErrEmptyPrompt = errors.New("prompt cannot be empty")

	// ErrNilLogger is returned by NewGenerator when no logger is supplied.
	ErrNilLogger = errors.New("logger cannot be nil")
)

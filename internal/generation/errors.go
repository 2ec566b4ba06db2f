package generation

import "errors"

// Common errors returned by the generation package
var (
	// ErrGenerationFailed is returned when content generation fails for any general reason
	ErrGenerationFailed = errors.New("failed to generate content")

	// ErrInvalidResponse is returned when the model response cannot be parsed or is malformed
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during content generation")

	// ErrInvalidConfig is returned when the generator configuration is invalid,
	// for example when no API credential is configured.
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrRelocationFailed is returned when a generated artifact cannot be
	// copied into the object store.
	ErrRelocationFailed = errors.New("failed to relocate generated artifact")
)

// IsConfigError reports whether err stems from missing or invalid generator
// configuration. Such errors do not go away on retry.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidConfig)
}

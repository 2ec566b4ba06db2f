package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/phrazzld/sitegen-api/internal/api/shared"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/service"
	"github.com/phrazzld/sitegen-api/internal/service/auth"
	"github.com/phrazzld/sitegen-api/internal/store"
	"github.com/phrazzld/sitegen-api/internal/task"
)

// MapErrorToStatusCode maps internal errors to HTTP status codes without
// exposing the error types themselves.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden

	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, task.ErrJobNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrWebsiteNotReady):
		return http.StatusConflict

	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, service.ErrJobNotCancellable),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a client-facing message for err that carries
// no internal detail.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid):
		return "Invalid token"
	case errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, domain.ErrUnauthorized):
		return "Authentication required"

	case errors.Is(err, service.ErrNotOwned):
		return "You do not have access to this resource"

	case errors.Is(err, store.ErrDomainNotFound):
		return "Domain not found"
	case errors.Is(err, store.ErrWebsiteNotFound):
		return "Website not found"
	case errors.Is(err, task.ErrJobNotFound):
		return "Job not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, service.ErrWebsiteNotReady):
		return "Website generation has not finished"
	case errors.Is(err, service.ErrJobNotCancellable):
		return "Job is already running or finished and cannot be cancelled"

	case errors.Is(err, service.ErrInvalidQuantity):
		return fmt.Sprintf("Quantity must be between 1 and %d", task.MaxBlogQuantity)
	case errors.Is(err, service.ErrUnknownTemplate):
		return "Unknown template"
	case errors.Is(err, domain.ErrInvalidID):
		return "Invalid ID"
	case errors.Is(err, service.ErrInvalidRequest),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation):
		return "Invalid request"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err and logs the
// redacted detail. fallback replaces the generic message for unmapped errors.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusForbidden || status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}

// SanitizeValidationError turns validator output into a message that names
// the JSON field and the failed rule only.
func SanitizeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Validation error"
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("Invalid %s: %s", fieldName(fe), getValidationTagMessage(fe.Tag())))
	}
	return strings.Join(msgs, "; ")
}

// fieldName converts a Go field name to its lowerCamel JSON name.
func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if strings.HasSuffix(name, "ID") {
		name = strings.TrimSuffix(name, "ID") + "Id"
	}
	if name == "" {
		return name
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "uuid", "uuid4":
		return "must be a UUID"
	case "min", "gte", "gt":
		return "too small"
	case "max", "lte", "lt":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

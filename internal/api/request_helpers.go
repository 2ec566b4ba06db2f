package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/api/shared"
	"github.com/phrazzld/sitegen-api/internal/domain"
	"github.com/phrazzld/sitegen-api/internal/platform/logger"
	"github.com/phrazzld/sitegen-api/internal/service"
)

// callerFromRequest builds the service caller from the claims placed in the
// context by the authentication middleware.
func callerFromRequest(r *http.Request) (service.Caller, bool) {
	claims, ok := shared.ClaimsFromContext(r.Context())
	if !ok {
		return service.Caller{}, false
	}
	return service.Caller{UserID: claims.UserID, Admin: claims.IsAdmin()}, true
}

// requireCaller is callerFromRequest that writes a 401 on failure.
func requireCaller(w http.ResponseWriter, r *http.Request) (service.Caller, bool) {
	caller, ok := callerFromRequest(r)
	if !ok {
		logger.FromContext(r.Context()).Warn("authenticated caller missing from request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
	}
	return caller, ok
}

// getPathUUID parses a UUID path parameter.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	raw := chi.URLParam(r, paramName)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrValidation, paramName)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s has invalid format", domain.ErrInvalidID, paramName)
	}
	return id, nil
}

// getJobID returns the jobId path parameter. Job IDs are opaque to the API.
func getJobID(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "jobId"))
	if id == "" {
		return "", fmt.Errorf("%w: jobId is required", domain.ErrValidation)
	}
	return id, nil
}

// handleCallerAndPathUUID extracts the caller and a UUID path parameter,
// writing an error response when either is missing.
func handleCallerAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
) (service.Caller, uuid.UUID, bool) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return service.Caller{}, uuid.Nil, false
	}

	id, err := getPathUUID(r, paramName)
	if err != nil {
		logger.FromContext(r.Context()).Debug("invalid path parameter",
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return service.Caller{}, uuid.Nil, false
	}
	return caller, id, true
}

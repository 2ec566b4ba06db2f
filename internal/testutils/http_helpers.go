package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/sitegen-api/internal/api/shared"
	"github.com/phrazzld/sitegen-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateTestServer starts an httptest server for handler and closes it
// when the test ends.
func CreateTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

// AuthHeader mints a bearer token for userID and role with jwtService.
func AuthHeader(t *testing.T, jwtService auth.JWTService, userID uuid.UUID, role string) string {
	t.Helper()
	token, err := jwtService.GenerateToken(context.Background(), userID, role)
	require.NoError(t, err, "failed to generate test token")
	return "Bearer " + token
}

// DoJSONRequest sends a request to server. A string body is sent verbatim,
// any other non-nil body is JSON encoded. The response body is closed when
// the test ends.
func DoJSONRequest(
	t *testing.T,
	server *httptest.Server,
	method, path, authHeader string,
	body any,
) *http.Response {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		encoded, err := json.Marshal(b)
		require.NoError(t, err, "failed to marshal request body")
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err, "failed to create request")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.Client().Do(req)
	require.NoError(t, err, "request failed")
	t.Cleanup(func() {
		if err := resp.Body.Close(); err != nil {
			t.Logf("failed to close response body: %v", err)
		}
	})
	return resp
}

// DecodeJSONResponse asserts the status code and decodes the body into v.
func DecodeJSONResponse(t *testing.T, resp *http.Response, expectedStatus int, v any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	require.Equal(t, expectedStatus, resp.StatusCode, "unexpected status, body: %s", body)
	require.NoError(t, json.Unmarshal(body, v), "failed to decode response body: %s", body)
}

// AssertErrorResponse checks the status code and that the error message
// contains expectedErrorMsgPart.
func AssertErrorResponse(t *testing.T, resp *http.Response, expectedStatus int, expectedErrorMsgPart string) {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "failed to read response body")
	assert.Equal(t, expectedStatus, resp.StatusCode, "unexpected status, body: %s", body)

	var errResp shared.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &errResp), "failed to decode error response: %s", body)
	assert.Contains(t, errResp.Error, expectedErrorMsgPart)
}

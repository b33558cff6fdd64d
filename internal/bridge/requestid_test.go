package bridge

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidRequestID(t *testing.T) {
	assert.True(t, isValidRequestID("abc-123_DEF"))
	assert.False(t, isValidRequestID(""))
	assert.False(t, isValidRequestID("has space"))
	assert.False(t, isValidRequestID(strings.Repeat("a", maxRequestIDLength+1)))
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conf", nil)
	req.Header.Set(RequestIDHeader, "front-end-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "front-end-42", seen)
	assert.Equal(t, "front-end-42", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/api/conf", nil)
	req.Header.Set(RequestIDHeader, "not valid!")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestServerSetsRequestID(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/conf", "")
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

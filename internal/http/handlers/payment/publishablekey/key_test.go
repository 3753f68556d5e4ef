package publishablekey

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestPublishableKeyHandler(t *testing.T) {
	handler := New(newNoopLogger(), "pk_test_xxx")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stripe/publishable-key", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	data, ok := got["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "pk_test_xxx", data["publishable_key"])
}

func TestPublishableKeyHandler_NotConfigured(t *testing.T) {
	handler := New(newNoopLogger(), "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stripe/publishable-key", nil)
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

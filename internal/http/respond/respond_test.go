package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasonEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Reason(rec, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var env Envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, Envelope{Code: 401, Message: "invalid email or password", Reason: "invalid_credentials"}, env)
}

func TestJSONOmitsEmptyData(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusOK, "ok", nil)
	assert.JSONEq(t, `{"code":200,"message":"ok"}`, rec.Body.String())
}

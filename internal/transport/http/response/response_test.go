package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagewise/internal/pkg/apperr"
)

func TestStatusByKind(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{apperr.MissingInput("x"), http.StatusBadRequest},
		{apperr.InvalidInputKind("x", nil), http.StatusUnprocessableEntity},
		{apperr.StorageUnavailable("x", nil), http.StatusServiceUnavailable},
		{apperr.CompletionService("x", nil), http.StatusBadGateway},
		{apperr.Deserialization("x", nil), http.StatusBadGateway},
		{apperr.Extraction("x", nil), http.StatusBadGateway},
		{apperr.New(apperr.KindNotAuthorized, "x", nil), http.StatusForbidden},
		{apperr.New(apperr.KindNotFound, "x", nil), http.StatusNotFound},
		{apperr.New(apperr.KindNameCollision, "x", nil), http.StatusConflict},
		{apperr.New(apperr.KindMissingGroundingDocument, "x", nil), http.StatusConflict},
		{fmt.Errorf("ingestion uploading: %w", apperr.StorageUnavailable("x", nil)), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		status, _, _ := Status(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
	}
}

func TestFailHidesInternalDetail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	Fail(c, errors.New("dsn secret leaked"), "list sessions failed")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "list sessions failed", body.Message)
	assert.Equal(t, "internal", body.Kind)
	assert.Equal(t, CodeInternalServer, body.Code)
}

func TestFailUsesKindMessage(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	Fail(c, fmt.Errorf("ingestion received: %w", apperr.MissingInput("pdf locator is required")), "ingestion failed")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pdf locator is required", body.Message)
	assert.Equal(t, "missing_input", body.Kind)
}

package problem

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteflow/server/internal/procedure"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetails {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var body ProblemDetails
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWrite_ExposesDetailOnlyWhenAsked(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/todos", nil)

	rec := httptest.NewRecorder()
	Write(rec, req, http.StatusBadRequest, procedure.CodeBadRequest, errors.New("boom"), true)
	body := decode(t, rec)
	assert.Equal(t, "boom", body.Detail)
	assert.Equal(t, "/api/todos", body.Instance)
	assert.Equal(t, procedure.CodeBadRequest, body.Code)
	assert.Equal(t, "Bad Request", body.Title)

	rec = httptest.NewRecorder()
	Write(rec, req, http.StatusBadRequest, procedure.CodeBadRequest, errors.New("boom"), false)
	assert.Empty(t, decode(t, rec).Detail)
}

func TestWriteError_Taxonomy(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expose     bool
		wantStatus int
		wantCode   string
		wantDetail string
	}{
		{
			name:       "validation",
			err:        &procedure.ValidationError{Message: "Input validation failed", Issues: []procedure.Issue{{Path: "text", Message: "must contain at least 1 character(s)"}}},
			wantStatus: http.StatusBadRequest,
			wantCode:   procedure.CodeBadRequest,
			wantDetail: "Input validation failed",
		},
		{
			name:       "unauthorized",
			err:        procedure.ErrUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantCode:   procedure.CodeUnauthorized,
			wantDetail: "Unauthorized",
		},
		{
			name:       "internal hidden",
			err:        fmt.Errorf("list todos: %w", errors.New("database is locked")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   procedure.CodeInternal,
			wantDetail: "Internal server error",
		},
		{
			name:       "internal exposed",
			err:        errors.New("database is locked"),
			expose:     true,
			wantStatus: http.StatusInternalServerError,
			wantCode:   procedure.CodeInternal,
			wantDetail: "database is locked",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, httptest.NewRequest(http.MethodPost, "/api/todos", nil), tt.err, tt.expose)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantDetail, body.Detail)
		})
	}
}

func TestWriteError_IncludesIssues(t *testing.T) {
	rec := httptest.NewRecorder()
	err := &procedure.ValidationError{Message: "Input validation failed", Issues: []procedure.Issue{{Path: "text", Message: "is required"}}}
	WriteError(rec, httptest.NewRequest(http.MethodPost, "/api/todos", nil), err, false)

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	data, ok := body["data"].(map[string]any)
	require.True(t, ok, "data member present")
	issues, ok := data["issues"].([]any)
	require.True(t, ok)
	require.Len(t, issues, 1)
	assert.Equal(t, "text", issues[0].(map[string]any)["path"])
}

func TestWrite_LogsByStatus(t *testing.T) {
	tests := []struct {
		status    int
		wantLevel string
	}{
		{status: http.StatusBadRequest, wantLevel: "warn"},
		{status: http.StatusInternalServerError, wantLevel: "error"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(logger.WithContext(req.Context()))

		Write(httptest.NewRecorder(), req, tt.status, "X", errors.New("boom"), false)

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, tt.wantLevel, line["level"])
		assert.Equal(t, "boom", line["error"])
	}
}

func TestNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	NotFound(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, procedure.CodeNotFound, body.Code)
	assert.Equal(t, "/nope", body.Instance)
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apierrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/shared/testutil"
)

type loadQuery struct {
	Selector string   `json:"selector" validate:"omitempty,selector"`
	Dates    []string `json:"dates" validate:"required,min=1,dive,isodate"`
	Assets   []string `json:"assets" validate:"required,min=1,unique,dive,assetid"`
	DType    string   `json:"dtype" validate:"omitempty,dtype"`
}

func newValidation(t *testing.T) *ValidationMiddleware {
	logger, _ := testutil.NewTestLogger(t)
	return NewValidationMiddleware(logger, apierrors.NewErrorHandler(logger, false), 64)
}

func TestValidateStruct(t *testing.T) {
	m := newValidation(t)

	valid := loadQuery{
		Selector: "Previous",
		Dates:    []string{"2024-01-02", "2024-01-03T00:00:00Z"},
		Assets:   []string{"AAPL", "MSFT"},
		DType:    "datetime64[ns]",
	}
	require.NoError(t, m.ValidateStruct(valid))

	tests := []struct {
		name   string
		mutate func(*loadQuery)
		field  string
	}{
		{"selector", func(q *loadQuery) { q.Selector = "sideways" }, "selector"},
		{"empty dates", func(q *loadQuery) { q.Dates = nil }, "dates"},
		{"bad date", func(q *loadQuery) { q.Dates = []string{"02/01/2024"} }, "dates[0]"},
		{"duplicate asset", func(q *loadQuery) { q.Assets = []string{"A", "A"} }, "assets"},
		{"blank asset", func(q *loadQuery) { q.Assets = []string{"A B"} }, "assets[0]"},
		{"dtype", func(q *loadQuery) { q.DType = "int8" }, "dtype"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			err := m.ValidateStruct(q)
			require.Error(t, err)

			apiErr, ok := err.(*apierrors.APIError)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
			details := apiErr.Details.(apierrors.ValidationErrors)
			require.NotEmpty(t, details.Errors)
			assert.Equal(t, tt.field, details.Errors[0].Field)
			assert.True(t, strings.HasPrefix(details.Errors[0].Message, tt.field+" "), details.Errors[0].Message)
		})
	}

	assert.Error(t, m.ValidateStruct("not a struct"))
}

func TestValidateRequest(t *testing.T) {
	m := newValidation(t)
	called := false
	h := m.ValidateRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	serve := func(method, body string) *httptest.ResponseRecorder {
		called = false
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/api/v1/estimates/load", strings.NewReader(body)))
		return rec
	}

	rec := serve(http.MethodPost, `{"dates":["2024-01-02"]}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, called)

	rec = serve(http.MethodPost, `{"dates":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)

	rec = serve(http.MethodPost, `{"assets":["`+strings.Repeat("A", 100)+`"]}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = serve(http.MethodGet, `garbage`)
	assert.True(t, called, "GET bodies are not inspected")
}

func TestContentTypeValidator(t *testing.T) {
	h := ContentTypeValidator("application/json")(http.HandlerFunc(okHandler))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "text/csv")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error_code":"UNSUPPORTED_MEDIA_TYPE"`)
	assert.Contains(t, rec.Body.String(), `"type":"/errors/unsupported-media-type"`)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/jsonx")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code, "media types match exactly")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryParamValidator_ValidateEnum(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	v := NewQueryParamValidator(apierrors.NewErrorHandler(logger, false))
	allowed := []string{"json", "csv", "xlsx"}

	rec := httptest.NewRecorder()
	got, ok := v.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/?format=csv", nil), "format", allowed, "json")
	assert.True(t, ok)
	assert.Equal(t, "csv", got)

	got, ok = v.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/", nil), "format", allowed, "json")
	assert.True(t, ok)
	assert.Equal(t, "json", got)

	rec = httptest.NewRecorder()
	_, ok = v.ValidateEnum(rec, httptest.NewRequest(http.MethodGet, "/?format=parquet", nil), "format", allowed, "json")
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/sharongu/zipline/internal/adjusted"
	apierrors "github.com/sharongu/zipline/internal/errors"
	"github.com/sharongu/zipline/internal/estimates"
)

const (
	defaultMaxQueryBytes = 10 << 20
	maxAssetIDLen        = 64
)

// fieldMessages renders a failed validator tag; %[1]s is the JSON field
// name, %[2]s the tag parameter
var fieldMessages = map[string]string{
	"required": "%[1]s is required",
	"min":      "%[1]s must have at least %[2]s entries",
	"max":      "%[1]s must have at most %[2]s entries",
	"gte":      "%[1]s must be greater than or equal to %[2]s",
	"lte":      "%[1]s must be less than or equal to %[2]s",
	"oneof":    "%[1]s must be one of: %[2]s",
	"unique":   "%[1]s must not contain duplicates",
	"isodate":  "%[1]s must be a YYYY-MM-DD date or RFC 3339 timestamp",
	"selector": "%[1]s must be next or previous",
	"dtype":    "%[1]s must be float64 or datetime64[ns]",
	"assetid":  "%[1]s must be a non-empty id without whitespace",
}

// ValidationMiddleware checks load query bodies before they reach a handler
// and validates decoded queries against their struct tags. The tags
// isodate, selector, dtype and assetid are registered for estimates queries.
type ValidationMiddleware struct {
	validate      *validator.Validate
	logger        *slog.Logger
	errorHandler  *apierrors.ErrorHandler
	maxQueryBytes int64
}

// NewValidationMiddleware creates a ValidationMiddleware. A maxQueryBytes of
// zero or less means 10MB.
func NewValidationMiddleware(logger *slog.Logger, errorHandler *apierrors.ErrorHandler, maxQueryBytes int64) *ValidationMiddleware {
	if maxQueryBytes <= 0 {
		maxQueryBytes = defaultMaxQueryBytes
	}

	v := validator.New()
	for tag, fn := range map[string]validator.Func{
		"isodate":  isISODate,
		"selector": isSelector,
		"dtype":    isDType,
		"assetid":  isAssetID,
	} {
		v.RegisterValidation(tag, fn)
	}
	v.RegisterTagNameFunc(jsonFieldName)

	return &ValidationMiddleware{
		validate:      v,
		logger:        logger.With(slog.String("component", "validation_middleware")),
		errorHandler:  errorHandler,
		maxQueryBytes: maxQueryBytes,
	}
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

// ValidateRequest rejects oversized and malformed JSON bodies. Requests
// without a body are passed on untouched.
func (m *ValidationMiddleware) ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !hasBody(r.Method) || r.Body == nil || r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		if r.ContentLength > m.maxQueryBytes {
			m.errorHandler.HandleError(w, r, apierrors.NewWithDetails(http.StatusRequestEntityTooLarge,
				"PAYLOAD_TOO_LARGE", "Load query exceeds the maximum body size",
				map[string]int64{"max_size": m.maxQueryBytes, "size": r.ContentLength}))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, m.maxQueryBytes))
		if err != nil {
			m.logger.WarnContext(r.Context(), "could not read query body",
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)
			m.errorHandler.HandleError(w, r, apierrors.InvalidRequestWithError(err))
			return
		}
		if !json.Valid(body) {
			m.errorHandler.HandleError(w, r, apierrors.New(http.StatusBadRequest,
				"INVALID_JSON", "Load query is not valid JSON"))
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		next.ServeHTTP(w, r)
	})
}

// ValidateStruct checks v against its validate tags. Every failing field is
// reported in one VALIDATION_FAILED error.
func (m *ValidationMiddleware) ValidateStruct(v interface{}) error {
	err := m.validate.Struct(v)
	var fieldErrs validator.ValidationErrors
	switch {
	case err == nil:
		return nil
	case !errors.As(err, &fieldErrs):
		return apierrors.InvalidRequestWithError(err)
	}

	out := make([]apierrors.ValidationError, len(fieldErrs))
	for i, fe := range fieldErrs {
		out[i] = apierrors.ValidationError{Field: fe.Field(), Message: fieldMessage(fe)}
	}
	return apierrors.NewValidationErrors(out)
}

func fieldMessage(fe validator.FieldError) string {
	format, ok := fieldMessages[fe.Tag()]
	if !ok {
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
	return fmt.Sprintf(format, fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
}

// ContentTypeValidator only lets bodies of the given media types through.
// Parameters such as charset are ignored.
func ContentTypeValidator(mediaTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasBody(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Content-Type")
			if header == "" {
				render.Render(w, r, apierrors.New(http.StatusBadRequest,
					"MISSING_CONTENT_TYPE", "Content-Type header is required").Problem(r.URL.Path))
				return
			}
			mediaType, _, err := mime.ParseMediaType(header)
			if err != nil || !slices.Contains(mediaTypes, mediaType) {
				render.Render(w, r, apierrors.NewWithDetails(http.StatusUnsupportedMediaType,
					"UNSUPPORTED_MEDIA_TYPE", "Unsupported content type",
					map[string]interface{}{"content_type": header, "allowed": mediaTypes}).Problem(r.URL.Path))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hasBody(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

func isISODate(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if _, err := time.Parse(layout, value); err == nil {
			return true
		}
	}
	return false
}

func isSelector(fl validator.FieldLevel) bool {
	_, err := estimates.ParseSelector(fl.Field().String())
	return err == nil
}

func isDType(fl validator.FieldLevel) bool {
	_, err := adjusted.ParseDType(fl.Field().String())
	return err == nil
}

// isAssetID accepts ids of up to 64 runes without whitespace or control runes
func isAssetID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	if id == "" || len(id) > maxAssetIDLen {
		return false
	}
	return strings.IndexFunc(id, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	}) < 0
}

// QueryParamValidator checks URL query parameters of estimates endpoints
type QueryParamValidator struct {
	errorHandler *apierrors.ErrorHandler
}

// NewQueryParamValidator creates a QueryParamValidator
func NewQueryParamValidator(errorHandler *apierrors.ErrorHandler) *QueryParamValidator {
	return &QueryParamValidator{errorHandler: errorHandler}
}

// ValidateEnum returns the value of param, or fallback when it is absent. A
// value outside allowed is answered with a validation problem and ok=false.
func (v *QueryParamValidator) ValidateEnum(w http.ResponseWriter, r *http.Request, param string, allowed []string, fallback string) (string, bool) {
	value := r.URL.Query().Get(param)
	switch {
	case value == "":
		return fallback, true
	case slices.Contains(allowed, value):
		return value, true
	}
	v.errorHandler.HandleError(w, r, apierrors.ErrValidation(param,
		fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", "))))
	return "", false
}

package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// Problem types, RFC 7807
const (
	TypeValidation       = "/errors/validation"
	TypeNotFound         = "/errors/not-found"
	TypeRateLimit        = "/errors/rate-limit"
	TypeInternal         = "/errors/internal"
	TypeTimeout          = "/errors/timeout"
	TypePayloadTooLarge  = "/errors/payload-too-large"
	TypeUnsupportedMedia = "/errors/unsupported-media-type"
	TypeMethodNotAllowed = "/errors/method-not-allowed"

	TypeSchemaMismatch   = "/errors/estimates/schema-mismatch"
	TypeInvalidParameter = "/errors/estimates/invalid-parameter"
	TypeFieldNotFound    = "/errors/estimates/field-not-found"
	TypeDataCorrupted    = "/errors/estimates/unreadable-events"
	TypeStorage          = "/errors/estimates/storage"
)

var problemTypes = map[string]string{
	"VALIDATION_FAILED":      TypeValidation,
	"INVALID_REQUEST":        TypeValidation,
	"INVALID_JSON":           TypeValidation,
	"MISSING_CONTENT_TYPE":   TypeValidation,
	"UNSUPPORTED_MEDIA_TYPE": TypeUnsupportedMedia,
	"PAYLOAD_TOO_LARGE":      TypePayloadTooLarge,
	"RATE_LIMIT_EXCEEDED":    TypeRateLimit,
	"TIMEOUT":                TypeTimeout,
	"NOT_FOUND":              TypeNotFound,
	"ROUTE_NOT_FOUND":        TypeNotFound,
	"METHOD_NOT_ALLOWED":     TypeMethodNotAllowed,
	"FIELD_NOT_FOUND":        TypeFieldNotFound,
	"SCHEMA_MISMATCH":        TypeSchemaMismatch,
	"INVALID_PARAMETER":      TypeInvalidParameter,
	"UNREADABLE_EVENTS":      TypeDataCorrupted,
	"STORAGE_FAILURE":        TypeStorage,
}

// ProblemDetails is an RFC 7807 problem. Extensions are written as top-level
// members next to the standard ones.
type ProblemDetails struct {
	Type     string
	Title    string
	Status   int
	Detail   string
	Instance string

	Extensions map[string]interface{}
}

// Problem turns e into the problem response for the request path instance.
// The error code and any details become extensions.
func (e *APIError) Problem(instance string) *ProblemDetails {
	problemType, ok := problemTypes[e.ErrorCode]
	if !ok {
		problemType = TypeInternal
	}
	p := &ProblemDetails{
		Type:       problemType,
		Title:      http.StatusText(e.StatusCode),
		Status:     e.StatusCode,
		Detail:     e.Message,
		Instance:   instance,
		Extensions: map[string]interface{}{"error_code": e.ErrorCode},
	}
	if e.Details != nil {
		p.Extensions["details"] = e.Details
	}
	return p
}

// Render sets the response status for go-chi/render
func (p *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, p.Status)
	return nil
}

func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(p.Extensions)+5)
	for k, v := range p.Extensions {
		out[k] = v
	}
	out["type"] = p.Type
	out["title"] = p.Title
	out["status"] = p.Status
	if p.Detail != "" {
		out["detail"] = p.Detail
	}
	if p.Instance != "" {
		out["instance"] = p.Instance
	}
	return json.Marshal(out)
}

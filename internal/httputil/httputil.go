// Package httputil holds request helpers shared by handlers and middleware.
package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/codec-agences/admin-backend/internal/apperr"
)

// MaxBodyBytes caps JSON request bodies
const MaxBodyBytes = 1 << 20

// Validator instance for request validation
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// GetValidator returns the validator instance
func GetValidator() *validator.Validate {
	return validate
}

// ClientIP returns the first X-Forwarded-For entry, else the socket address
// without its port
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// DecodeJSON reads the body into v and validates its struct tags. Failures
// come back as validation errors ready for rendering.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return apperr.Validation("Invalid request body", nil)
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, MaxBodyBytes)).Decode(v); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	return Validate(v)
}

// Validate runs struct tag validation on v
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("Request validation failed", nil)
	}
	details := make(map[string][]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = append(details[fe.Field()], describe(fe))
	}
	return apperr.Validation("Request validation failed", details)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "gt":
		return fe.Field() + " must be greater than " + fe.Param()
	case "oneof":
		return fe.Field() + " must be one of " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// ReadJSONFields reads a JSON object body into a generic map and restores
// the body so later handlers can decode it again. A body that is not a JSON
// object yields an empty map.
func ReadJSONFields(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, MaxBodyBytes+1))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]any{}, nil
	}
	return fields, nil
}

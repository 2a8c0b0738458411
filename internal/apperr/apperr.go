// Package apperr defines the typed errors returned by gates and services, and
// the terminal renderer that turns them into the JSON envelope.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies an error for rendering
type Kind int

const (
	KindUpstream Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindConflict
	KindRateLimit
	KindSecurityThreat
	KindNotFound
)

// Error codes carried in the envelope
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeAuthorization  = "FORBIDDEN"
	CodeConflict       = "SESSION_CONFLICT"
	CodeRateLimit      = "TOO_MANY_REQUESTS"
	CodeSecurityThreat = "SECURITY_THREAT"
	CodeNotFound       = "NOT_FOUND"
	CodeInternal       = "INTERNAL_ERROR"
)

// Error is the single error type understood by Write
type Error struct {
	Kind    Kind
	Code    string
	Message string

	// HasSession signals an existing session the client must confirm to displace
	HasSession bool
	// Logout tells the client to drop its session cookie
	Logout bool
	// RetryAfter is the block duration for rate limit errors
	RetryAfter time.Duration
	// Data is attached to conflict responses
	Data any
	// Details carries per-field validation messages
	Details map[string][]string

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the error kind to its HTTP status
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization, KindSecurityThreat:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusOK
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func Validation(message string, details map[string][]string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message, Details: details}
}

func Authentication(message string, err error) *Error {
	return &Error{Kind: KindAuthentication, Code: CodeAuthentication, Message: message, Err: err}
}

// Forbidden is the uniform authorization denial
func Forbidden(err error) *Error {
	return &Error{Kind: KindAuthorization, Code: CodeAuthorization, Message: "You do not have permission to perform this action", Err: err}
}

// NotFound reports a missing target resource
func NotFound(message string, err error) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: message, Err: err}
}

func Conflict(message string, data any) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: message, HasSession: true, Data: data}
}

func RateLimited(message string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimit, Code: CodeRateLimit, Message: message, RetryAfter: retryAfter}
}

// Threat is returned whenever request input matched an attack pattern. The
// message never names the pattern.
func Threat() *Error {
	return &Error{Kind: KindSecurityThreat, Code: CodeSecurityThreat, Message: "Request rejected"}
}

func Upstream(err error) *Error {
	return &Error{Kind: KindUpstream, Code: CodeInternal, Message: "An unexpected error occurred", Err: err}
}

// From converts any error into an *Error, treating unknown errors as upstream failures
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Upstream(err)
}

// Response is the JSON envelope shared by every endpoint
type Response struct {
	Success    bool                `json:"success"`
	Message    string              `json:"message,omitempty"`
	Code       string              `json:"code,omitempty"`
	HasSession bool                `json:"hasSession,omitempty"`
	Logout     bool                `json:"logout,omitempty"`
	Data       any                 `json:"data,omitempty"`
	Details    map[string][]string `json:"details,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
}

// Renderer writes errors to responses. In production upstream error text
// is never exposed.
type Renderer struct {
	Production bool
	Logger     *slog.Logger
}

// Write renders err as the terminal response of a request
func (rn Renderer) Write(w http.ResponseWriter, r *http.Request, err error) {
	appErr := From(err)
	log := rn.Logger
	if log == nil {
		log = slog.Default()
	}

	resp := Response{
		Code:       appErr.Code,
		Message:    appErr.Message,
		HasSession: appErr.HasSession,
		Logout:     appErr.Logout,
		Data:       appErr.Data,
		Details:    appErr.Details,
		Timestamp:  time.Now().UTC(),
	}

	switch appErr.Kind {
	case KindConflict:
		resp.Success = true
	case KindRateLimit:
		if appErr.RetryAfter > 0 {
			secs := int64(appErr.RetryAfter.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
			resp.Details = map[string][]string{"retry_after": {strconv.FormatInt(secs, 10)}}
		}
	case KindUpstream:
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", appErr.Err)
		if !rn.Production && appErr.Err != nil {
			resp.Details = map[string][]string{"cause": {appErr.Err.Error()}}
		}
	}

	WriteJSON(w, appErr.Status(), resp)
}

// OK writes a successful response carrying data
func OK(w http.ResponseWriter, status int, message string, data any) {
	WriteJSON(w, status, Response{Success: true, Message: message, Data: data, Timestamp: time.Now().UTC()})
}

// WriteJSON writes v as JSON with the given status
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

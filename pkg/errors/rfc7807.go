// Package errors provides the error taxonomy of the matching service and its
// RFC 7807 Problem Details rendering.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Standard error functions
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// Error kinds
const (
	KindInvalidArgument     = "InvalidArgument"
	KindNotFound            = "NotFound"
	KindInvalidState        = "InvalidState"
	KindConcurrencyConflict = "ConcurrencyConflict"
	KindStoreUnavailable    = "StoreUnavailable"
	KindInternal            = "Internal"
)

// FieldError represents a validation error for a specific field
type FieldError struct {
	Kind    string `json:"kind"`
	Field   string `json:"field"`
	Message string `json:"message,omitempty"`
}

func (f *FieldError) Error() string {
	return fmt.Sprintf("%s (%s): %s", f.Field, f.Kind, f.Message)
}

func NewFieldError(kind, field, reason string) FieldError {
	return FieldError{Kind: kind, Field: field, Message: reason}
}

// Sentinel errors. Use Explain/Wrap to derive a specific error; the sentinels
// themselves are never mutated.
var (
	InvalidArgument     = newKind(KindInvalidArgument, http.StatusBadRequest)
	NotFound            = newKind(KindNotFound, http.StatusNotFound)
	InvalidState        = newKind(KindInvalidState, http.StatusConflict)
	ConcurrencyConflict = newKind(KindConcurrencyConflict, http.StatusServiceUnavailable)
	StoreUnavailable    = newKind(KindStoreUnavailable, http.StatusServiceUnavailable)
)

// Error is a custom error type for passing more information
type Error struct {
	// Kind is the returned error type
	Kind string `json:"kind"`
	// Message is the human readable string that indicate the error
	Message string `json:"message"`
	// Fields used when there's validation error for a field.
	Fields []FieldError `json:"fields,omitempty"`

	status int
	cause  error
}

var _ error = (*Error)(nil)

func newKind(kind string, status int) *Error {
	return &Error{Kind: kind, status: status}
}

// Error implements error
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s]", e.Kind)
	if e.Message != "" {
		str += " " + e.Message
	}
	if e.cause != nil {
		str += fmt.Sprintf(" (%s)", e.cause)
	}
	return str
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Status returns the HTTP status associated with the error kind.
func (e *Error) Status() int {
	if e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

// Wrap returns a copy of the error with the cause set
func (e *Error) Wrap(cause error) *Error {
	err := *e
	err.cause = cause
	return &err
}

// Explain makes a copy of the error with given message
func (e *Error) Explain(message string, args ...any) *Error {
	err := *e
	err.Message = fmt.Sprintf(message, args...)
	return &err
}

// WithField returns a copy of error with the field appended.
func (e *Error) WithField(kind, field, message string) *Error {
	newError := *e
	newError.Fields = append(append([]FieldError(nil), e.Fields...), NewFieldError(kind, field, message))
	return &newError
}

// Is implements the needed interface for errors.Is
// It checks kind for equality
func (e *Error) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if other, ok := target.(*Error); ok {
		return other.Kind == e.Kind
	}
	return false
}

// KindOf returns the kind of the first *Error in the chain, or Internal.
func KindOf(err error) string {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// StatusOf returns the HTTP status for err.
func StatusOf(err error) int {
	var e *Error
	if As(err, &e) {
		return e.Status()
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the whole operation can safely be retried.
func IsRetryable(err error) bool {
	return Is(err, ConcurrencyConflict)
}

// Problem type URIs
const (
	TypeInvalidArgument     = "https://api.pincex.io/problems/invalid-argument"
	TypeNotFound            = "https://api.pincex.io/problems/not-found"
	TypeInvalidState        = "https://api.pincex.io/problems/invalid-state"
	TypeConcurrencyConflict = "https://api.pincex.io/problems/concurrency-conflict"
	TypeStoreUnavailable    = "https://api.pincex.io/problems/store-unavailable"
	TypeInternalError       = "https://api.pincex.io/problems/internal-error"
)

var problemTypes = map[string]struct{ uri, title string }{
	KindInvalidArgument:     {TypeInvalidArgument, "Invalid Argument"},
	KindNotFound:            {TypeNotFound, "Not Found"},
	KindInvalidState:        {TypeInvalidState, "Invalid State"},
	KindConcurrencyConflict: {TypeConcurrencyConflict, "Concurrency Conflict"},
	KindStoreUnavailable:    {TypeStoreUnavailable, "Store Unavailable"},
	KindInternal:            {TypeInternalError, "Internal Server Error"},
}

// ValidationError represents a validation error for RFC 7807
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	Errors   []ValidationError      `json:"errors,omitempty"`
	Extra    map[string]interface{} `json:"-"`
}

// Error implements the error interface
func (p *ProblemDetails) Error() string {
	return p.Detail
}

// WithTraceID adds a trace ID to the problem details
func (p *ProblemDetails) WithTraceID(traceID string) *ProblemDetails {
	p.TraceID = traceID
	return p
}

// WithExtra adds extra fields to the problem details (they will be serialized at the top level)
func (p *ProblemDetails) WithExtra(key string, value interface{}) *ProblemDetails {
	if p.Extra == nil {
		p.Extra = make(map[string]interface{})
	}
	p.Extra[key] = value
	return p
}

// MarshalJSON implements custom JSON marshaling to include extra fields at the top level
func (p *ProblemDetails) MarshalJSON() ([]byte, error) {
	result := make(map[string]interface{})
	result["type"] = p.Type
	result["title"] = p.Title
	result["status"] = p.Status
	if p.Detail != "" {
		result["detail"] = p.Detail
	}
	if p.Instance != "" {
		result["instance"] = p.Instance
	}
	if p.TraceID != "" {
		result["trace_id"] = p.TraceID
	}
	if len(p.Errors) > 0 {
		result["errors"] = p.Errors
	}
	for k, v := range p.Extra {
		result[k] = v
	}
	return json.Marshal(result)
}

// ToProblem converts any error into a problem document. Errors outside the
// taxonomy become 500s without leaking their text.
func ToProblem(err error, instance string) *ProblemDetails {
	var e *Error
	if !As(err, &e) {
		pt := problemTypes[KindInternal]
		return &ProblemDetails{
			Type:     pt.uri,
			Title:    pt.title,
			Status:   http.StatusInternalServerError,
			Detail:   "internal error",
			Instance: instance,
		}
	}

	pt, ok := problemTypes[e.Kind]
	if !ok {
		pt = problemTypes[KindInternal]
	}
	detail := e.Message
	if detail == "" {
		detail = pt.title
	}
	p := &ProblemDetails{
		Type:     pt.uri,
		Title:    pt.title,
		Status:   e.Status(),
		Detail:   detail,
		Instance: instance,
	}
	for _, f := range e.Fields {
		p.Errors = append(p.Errors, ValidationError{Field: f.Field, Message: f.Message, Code: f.Kind})
	}
	if IsRetryable(err) {
		p.WithExtra("retryable", true)
	}
	return p
}

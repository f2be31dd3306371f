// Package apierr is the error taxonomy shared by every package that reports to a user.
package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/hlog"
)

type Kind string

const (
	KindAuthRequired     Kind = "auth_required"
	KindForbidden        Kind = "forbidden"
	KindNotFound         Kind = "not_found"
	KindAlreadyCompleted Kind = "already_completed"
	KindConflict         Kind = "conflict"
	KindValidation       Kind = "validation_failed"
	KindUpstream         Kind = "upstream_failure"
	KindInternal         Kind = "internal"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind onto an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindAlreadyCompleted, KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func Wrap(kind Kind, code, msg string, err error) *Error {
	return &Error{Kind: kind, Code: code, Message: msg, Err: err}
}

// Validation builds a ValidationFailed error carrying one line per problem.
func Validation(msg string, details ...string) *Error {
	return &Error{Kind: KindValidation, Code: "validation_failed", Message: msg, Details: details}
}

func Upstream(msg string, err error) *Error {
	return Wrap(KindUpstream, "upstream_failure", msg, err)
}

// From returns the *Error in err's chain, or an Internal error hiding err.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(KindInternal, "internal", "something went wrong", err)
}

// KindOf reports the kind of err, Internal when err carries none.
func KindOf(err error) Kind {
	return From(err).Kind
}

type body struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

type envelope struct {
	Error body `json:"error"`
}

// Write sends err as a JSON envelope. Causes are logged, never returned to the client.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	WriteStatus(w, r, From(err).Status(), err)
}

// WriteStatus is Write with a fixed status, for handlers whose status
// convention differs from the kind mapping.
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, err error) {
	ae := From(err)
	ev := hlog.FromRequest(r).Warn()
	if status >= http.StatusInternalServerError {
		ev = hlog.FromRequest(r).Error()
	}
	ev.Err(err).Str("kind", string(ae.Kind)).Int("status", status).Msg("request failed")
	WriteJSON(w, status, envelope{Error: body{Code: ae.Code, Message: ae.Message, Details: ae.Details}})
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Package apperr maps errors from the hosted auth and data APIs into a closed
// set of kinds so callers never match on provider specific strings.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
)

type Kind int

const (
	Unknown Kind = iota
	AuthExpired
	AuthInvalid
	NotFound
	PermissionDenied
	Conflict
)

func (k Kind) String() string {
	switch k {
	case AuthExpired:
		return "auth_expired"
	case AuthInvalid:
		return "auth_invalid"
	case NotFound:
		return "not_found"
	case PermissionDenied:
		return "permission_denied"
	case Conflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Error is the structured form of a failed remote operation.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

var (
	// gotrue-go: "response status code 401: {...}"
	gotrueStatus = regexp.MustCompile(`^response status code (\d{3})(?::\s*(.*))?`)
	// postgrest-go: "(PGRST116) JSON object requested, multiple (or no) rows returned"
	postgrestCode = regexp.MustCompile(`^\(([0-9A-Z]+)\)\s*(.*)`)
)

// Classify converts any error into an *Error. Values that already are an
// *Error are returned unchanged. Nil stays nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	msg := err.Error()

	if m := gotrueStatus.FindStringSubmatch(msg); m != nil {
		status, _ := strconv.Atoi(m[1])
		detail := m[2]
		if detail == "" {
			detail = http.StatusText(status)
		}
		return &Error{Kind: kindForStatus(status), Code: m[1], Message: detail, Err: err}
	}

	if m := postgrestCode.FindStringSubmatch(msg); m != nil {
		return &Error{Kind: kindForPostgrestCode(m[1]), Code: m[1], Message: m[2], Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &Error{Kind: Unknown, Code: "timeout", Message: msg, Err: err}
	}

	return &Error{Kind: Unknown, Message: msg, Err: err}
}

// KindOf is shorthand for Classify(err).Kind.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	return Classify(err).Kind
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return AuthExpired
	case http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity:
		return AuthInvalid
	case http.StatusNotFound:
		return NotFound
	case http.StatusConflict:
		return Conflict
	default:
		return Unknown
	}
}

func kindForPostgrestCode(code string) Kind {
	switch code {
	case "PGRST116":
		return NotFound
	case "PGRST301", "PGRST303":
		return AuthExpired
	case "PGRST302":
		return AuthInvalid
	case "42501":
		return PermissionDenied
	case "23505", "23503":
		return Conflict
	default:
		return Unknown
	}
}

// HTTPStatus is the response status a handler should use for kind.
func HTTPStatus(kind Kind) int {
	switch kind {
	case AuthExpired, AuthInvalid:
		return http.StatusUnauthorized
	case NotFound:
		return http.StatusNotFound
	case PermissionDenied:
		return http.StatusForbidden
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

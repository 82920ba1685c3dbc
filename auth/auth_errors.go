package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/militex-client/apiclient"
	apperrors "github.com/jrsteele09/militex-client/internal/errors"
	"github.com/jrsteele09/militex-client/users"
)

// ErrorKind classifies authentication failures for display. It is derived from the
// HTTP status or error type only, never from message text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidCredentials
	KindAccountLocked
	KindRateLimited
	KindServerError
	KindNetworkError
	KindSessionExpired
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "InvalidCredentials"
	case KindAccountLocked:
		return "AccountLocked"
	case KindRateLimited:
		return "RateLimited"
	case KindServerError:
		return "ServerError"
	case KindNetworkError:
		return "NetworkError"
	case KindSessionExpired:
		return "SessionExpired"
	}
	return "Unknown"
}

// Message is the user facing text for k.
func (k ErrorKind) Message() string {
	switch k {
	case KindInvalidCredentials:
		return "Invalid username or password."
	case KindAccountLocked:
		return "Your account has been locked. Please contact support."
	case KindRateLimited:
		return "Too many attempts. Please wait a moment and try again."
	case KindServerError:
		return "The server encountered an error. Please try again later."
	case KindNetworkError:
		return "Unable to reach the server. Check your connection."
	case KindSessionExpired:
		return "Your session has expired. Please log in again."
	}
	return "An unexpected error occurred."
}

// AuthenticationError is returned when login, refresh or a profile fetch fails.
// Status is 0 when no HTTP response was received.
type AuthenticationError struct {
	Kind   ErrorKind
	Status int
	Detail string
	Err    error
}

func (e *AuthenticationError) Error() string {
	msg := "authentication failed: " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (%d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// UserMessage prefers the server's detail for a 400, since it explains what was wrong
// with the request.
func (e *AuthenticationError) UserMessage() string {
	if e.Status == http.StatusBadRequest && e.Detail != "" {
		return e.Detail
	}
	return e.Kind.Message()
}

// ValidationError carries per-field problems found locally or reported by the server.
type ValidationError struct {
	Fields users.FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields.Fields(), ", ")
}

// Classify maps err to an ErrorKind using its HTTP status or type.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, apperrors.ErrSessionExpired):
		return KindSessionExpired
	case apiclient.IsNetworkError(err):
		return KindNetworkError
	}

	status := apiclient.StatusOf(err)
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnauthorized:
		return KindInvalidCredentials
	case status == http.StatusForbidden:
		return KindAccountLocked
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= http.StatusInternalServerError:
		return KindServerError
	}
	return KindUnknown
}

// KindOf returns the kind carried by an AuthenticationError in err's chain, falling
// back to Classify.
func KindOf(err error) ErrorKind {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return Classify(err)
}

func newAuthenticationError(err error) *AuthenticationError {
	authErr := &AuthenticationError{
		Kind:   Classify(err),
		Status: apiclient.StatusOf(err),
		Err:    err,
	}
	var httpErr *apiclient.HTTPError
	if errors.As(err, &httpErr) {
		authErr.Detail = httpErr.Detail
	}
	return authErr
}

func sessionExpiredError(err error) *AuthenticationError {
	authErr := newAuthenticationError(err)
	authErr.Kind = KindSessionExpired
	return authErr
}

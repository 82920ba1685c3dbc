package apiclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/militex-client/users"
)

// NetworkError means no HTTP response was received.
type NetworkError struct {
	Method string
	URL    string
	Err    error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s %s: network error: %v", e.Method, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// HTTPError is a 4xx or 5xx response. Fields carries the server's field-level
// validation payload when it sent one.
type HTTPError struct {
	Method string
	URL    string
	Status int
	Detail string
	Fields users.FieldErrors
	Body   []byte
}

func (e *HTTPError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Status, http.StatusText(e.Status))
	if e.Detail != "" {
		msg += ": " + e.Detail
	} else if len(e.Fields) > 0 {
		msg += ": invalid " + strings.Join(e.Fields.Fields(), ", ")
	}
	return msg
}

func newHTTPError(method, url string, status int, body []byte) *HTTPError {
	e := &HTTPError{
		Method: method,
		URL:    url,
		Status: status,
		Body:   body,
	}
	e.Detail, e.Fields = parseErrorPayload(body)
	return e
}

// parseErrorPayload understands the DRF error shapes: {"detail": "..."} and
// {"field": ["msg", ...], "other": "msg"}.
func parseErrorPayload(body []byte) (string, users.FieldErrors) {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil
	}

	var detail string
	fields := users.FieldErrors{}
	for key, value := range payload {
		switch v := value.(type) {
		case string:
			if key == "detail" {
				detail = v
				continue
			}
			fields[key] = []string{v}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok {
					fields[key] = append(fields[key], s)
				}
			}
		}
	}
	if detail == "" {
		if msgs := fields["non_field_errors"]; len(msgs) > 0 {
			detail = msgs[0]
		}
	}
	if len(fields) == 0 {
		fields = nil
	}
	return detail, fields
}

// StatusOf returns the HTTP status carried by err, or 0 when err is not an HTTPError.
func StatusOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status
	}
	return 0
}

func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// FieldErrorsOf returns the field-level errors carried by err.
func FieldErrorsOf(err error) users.FieldErrors {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Fields
	}
	return nil
}

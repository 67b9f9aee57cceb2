package dng

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Error kinds. Match them with errors.Is; every error returned by Client wraps
// exactly one of them.
var (
	// ErrAuthentication indicates DNG rejected the credentials (HTTP 401 or 403).
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound indicates the requested DNG resource does not exist (HTTP 404).
	ErrNotFound = errors.New("resource not found")
	// ErrAPI covers every other upstream failure: unexpected status codes,
	// transport errors and malformed response bodies.
	ErrAPI = errors.New("DNG API error")
)

// maxErrorBodyBytes bounds how much of an upstream error body is kept in messages.
const maxErrorBodyBytes = 512

// Error describes a failed upstream call.
type Error struct {
	// Kind is one of ErrAuthentication, ErrNotFound or ErrAPI.
	Kind error
	// URL is the upstream URL that was requested.
	URL string
	// StatusCode is the upstream HTTP status, or 0 when no response was received.
	StatusCode int
	// Body is the start of the upstream response body for status failures.
	Body string
	// Err is the underlying transport or decoding error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0:
		return strings.TrimSpace(fmt.Sprintf("%v for %s: %d %s", e.Kind, e.URL, e.StatusCode, e.Body))
	case e.Err != nil:
		return fmt.Sprintf("%v for %s: %v", e.Kind, e.URL, e.Err)
	default:
		return fmt.Sprintf("%v for %s", e.Kind, e.URL)
	}
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// statusKind maps a failing HTTP status code to an error kind.
func statusKind(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuthentication
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return ErrAPI
	}
}

// newStatusError classifies a response with status >= 400.
func newStatusError(url string, status int, body []byte) *Error {
	text := strings.TrimSpace(string(body))
	if len(text) > maxErrorBodyBytes {
		cut := maxErrorBodyBytes
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return &Error{
		Kind:       statusKind(status),
		URL:        url,
		StatusCode: status,
		Body:       text,
	}
}

// newAPIError wraps a transport or decoding failure.
func newAPIError(url string, err error) *Error {
	return &Error{Kind: ErrAPI, URL: url, Err: err}
}

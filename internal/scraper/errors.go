package scraper

import (
	"errors"
	"fmt"
)

// TokenExtractionError means the login page did not carry an anti-forgery
// token, usually because the page layout changed or the request was blocked.
type TokenExtractionError struct {
	Strategy   string
	StatusCode int // set when the login page itself was refused
}

func (e *TokenExtractionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token match err: login page returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("token match err: no anti-forgery token found (%s strategy)", e.Strategy)
}

// LoginError means the login form was rejected
type LoginError struct {
	StatusCode int
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login error: expected status 302, got %d", e.StatusCode)
}

// FetchError means the portal answered a request with a non-2xx status
type FetchError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("request to %s returned status %d: %s", e.URL, e.StatusCode, e.Body)
}

// MalformedReportError describes a CSV export row that cannot be normalized
type MalformedReportError struct {
	Line   int // 1-based, header included
	Fields int
	Reason string
}

func (e *MalformedReportError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("malformed report line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("malformed report line %d: expected 5 fields, got %d", e.Line, e.Fields)
}

// IsAuthError reports whether err came from the login handshake rather than
// from the transport.
func IsAuthError(err error) bool {
	var tokenErr *TokenExtractionError
	var loginErr *LoginError
	return errors.As(err, &tokenErr) || errors.As(err, &loginErr)
}

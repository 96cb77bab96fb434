package pricing

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingToken indicates the client could not obtain the auth token the
// upstream API requires.
var ErrMissingToken = errors.New("pricing: auth token missing")

// APIError carries the error payload of an otherwise well-formed API
// response.
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	if e == nil || len(e.Messages) == 0 {
		return "pricing: api error"
	}
	return fmt.Sprintf("pricing: api error: %s", strings.Join(e.Messages, "; "))
}

// ParseError indicates the API response could not be decoded.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	if e == nil || e.Err == nil {
		return "pricing: parse error"
	}
	return fmt.Sprintf("pricing: parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsRecognized reports whether err is one of the upstream error kinds the
// coordinator treats as degraded-but-alive rather than a hard failure.
func IsRecognized(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	var parseErr *ParseError
	return errors.As(err, &apiErr) || errors.As(err, &parseErr) || errors.Is(err, ErrMissingToken)
}

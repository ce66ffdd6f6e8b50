package prismic

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound reports that a uid or id resolves to no document.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidCursor reports a pagination cursor that does not point at
	// the configured repository.
	ErrInvalidCursor = errors.New("invalid pagination cursor")
	// ErrMissingEndpoint and ErrMissingToken are returned by New.
	ErrMissingEndpoint = errors.New("api endpoint is required")
	ErrMissingToken    = errors.New("access token is required")
)

// RetrievalError is returned when the content API is unreachable, answers
// with a non-success status, or sends a body that cannot be decoded.
type RetrievalError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("prismic %s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("prismic %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the same request may succeed.
func (e *RetrievalError) Temporary() bool {
	if errors.Is(e.Err, ErrInvalidCursor) {
		return false
	}
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	}
	return false
}

// NotFoundError names the document that could not be resolved.
type NotFoundError struct {
	DocumentType string
	UID          string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.DocumentType, e.UID, ErrNotFound)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

package spacetraveling

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/eringen/spacetraveling/content"
	"github.com/eringen/spacetraveling/prismic"
)

// ConfigurationError reports a setting that prevents startup.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// statusFor maps content errors onto the HTTP status served to readers.
func statusFor(err error) int {
	var re *prismic.RetrievalError
	switch {
	case errors.Is(err, prismic.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, content.ErrNoCursor), errors.Is(err, prismic.ErrInvalidCursor):
		return http.StatusBadRequest
	case errors.As(err, &re):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

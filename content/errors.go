package content

import "fmt"

// ValidationError reports a document that cannot be normalized.
type ValidationError struct {
	UID    string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid document %q: %s %s", e.UID, e.Field, e.Reason)
}

package scrape

import (
	"errors"
	"fmt"
)

// ErrNoPriceFound indicates every extraction strategy was exhausted on a
// successfully fetched page.
var ErrNoPriceFound = errors.New("no extractable price found")

// ErrCompetitorNotFound is returned by stores when the competitor id does not
// resolve to a row.
var ErrCompetitorNotFound = errors.New("competitor not found")

// ValidationError marks client-input problems (bad or forbidden URLs).
// It is never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError builds a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// HTTPStatusError carries a non-2xx upstream response status.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("unexpected http status %d fetching %s", e.StatusCode, e.URL)
}

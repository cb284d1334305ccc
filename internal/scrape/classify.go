package scrape

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// Severity says whether retrying an error may help.
type Severity string

// Severity values used by the worker to pick retry vs. dead-letter.
const (
	Transient Severity = "transient"
	Permanent Severity = "permanent"
)

// Error classes recorded in audit records and dead-letter envelopes.
const (
	ClassValidation   = "validation_error"
	ClassNoPrice      = "no_price_found"
	ClassTimeout      = "timeout"
	ClassConnection   = "connection_error"
	ClassUnknownError = "unknown_error"
)

// retryableStatus lists HTTP statuses worth retrying.
var retryableStatus = map[int]bool{
	408: true,
	425: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Classify maps an error to a retry severity and an error class string.
// Unknown errors default to transient: retrying the unknown beats silently
// dropping work.
func Classify(err error) (Severity, string) {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return Permanent, ClassValidation
	}

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		class := fmt.Sprintf("http_%d", httpErr.StatusCode)
		if retryableStatus[httpErr.StatusCode] {
			return Transient, class
		}
		return Permanent, class
	}

	if errors.Is(err, ErrNoPriceFound) {
		return Permanent, ClassNoPrice
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient, ClassTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Transient, ClassTimeout
		}
		return Transient, ClassConnection
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return Transient, ClassConnection
	}

	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return Transient, ClassTimeout
	}

	return Transient, ClassUnknownError
}

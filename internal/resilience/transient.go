package resilience

import (
	"errors"
	"net"
	"strings"
	"syscall"

	"github.com/pricelens/pricelens/internal/fault"
)

// IsTransient reports whether the error is safe to retry: a collaborator
// DependencyError, a network timeout, or a connection-level failure.
// Validation, lifecycle, not-found, and concurrency errors are never
// transient. A concurrency conflict needs the whole operation re-run, not
// a blind write retry.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if fault.AsDependency(err) {
		return true
	}
	if fault.AsValidation(err) || fault.AsNotFound(err) ||
		fault.AsInvalidTransition(err) || fault.AsConcurrencyConflict(err) ||
		fault.AsLimitExceeded(err) || fault.AsInvariantViolation(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String-based heuristics for wrapped errors from HTTP clients.
	msg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsTransientHTTPStatus reports whether the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, // Request Timeout
		429, // Too Many Requests
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504: // Gateway Timeout
		return true
	default:
		return false
	}
}

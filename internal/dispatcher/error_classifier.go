package dispatcher

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"

	"github.com/local/redactor/internal/redact"
	"github.com/local/redactor/internal/storage"
)

// isTransientError checks if error is transient and the job should be retried
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	// Timeout errors
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	// HTTP inputs
	var statusErr *storage.StatusError
	if errors.As(err, &statusErr) {
		// 5xx server errors and 429 are transient
		return statusErr.Code >= 500 || statusErr.Code == 429
	}

	// Network errors from http and s3 fetches
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if isFatalError(err) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network") ||
		strings.Contains(errStr, "slowdown")
}

// isFatalError checks if error is fatal and should not be retried
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}

	// Unparseable input or a stream that could not be written back
	if redact.IsFatal(err) {
		return true
	}

	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) || errors.Is(err, context.Canceled) {
		return true
	}

	// HTTP 4xx errors (except 429)
	var statusErr *storage.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Code >= 400 && statusErr.Code < 500 && statusErr.Code != 429 {
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "unsupported input") ||
		strings.Contains(errStr, "malformed") ||
		strings.Contains(errStr, "refusing to delete")
}

// isTimeoutError checks if error is specifically a timeout
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}

// retryable returns the first transient failure of a batch, or nil when
// retrying would not change the outcome.
func retryable(failures []error) error {
	for _, err := range failures {
		if isTransientError(err) {
			return err
		}
	}
	return nil
}

package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"testing"

	"github.com/local/redactor/internal/redact"
	"github.com/local/redactor/internal/storage"
)

func TestClassify(t *testing.T) {
	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	cases := []struct {
		name      string
		err       error
		transient bool
		fatal     bool
	}{
		{"nil", nil, false, false},
		{"deadline", fmt.Errorf("render: %w", context.DeadlineExceeded), true, false},
		{"http 503", &storage.StatusError{Code: 503}, true, false},
		{"http 429", &storage.StatusError{Code: 429}, true, false},
		{"http 404", &storage.StatusError{Code: 404}, false, true},
		{"network fetch", &redact.LoadError{File: "a.pdf", Err: netErr}, true, true},
		{"corrupt pdf", &redact.LoadError{File: "a.pdf", Err: errors.New("unexpected EOF")}, false, true},
		{"missing file", &redact.LoadError{File: "a.pdf", Err: fs.ErrNotExist}, false, true},
		{"unsupported", errors.New("unsupported input: Unsupported file type: image/png"), false, true},
		{"validation", &ValidationError{Message: "x"}, false, true},
		{"canceled", context.Canceled, false, true},
	}
	for _, c := range cases {
		if got := isTransientError(c.err); got != c.transient {
			t.Errorf("%s: transient = %v", c.name, got)
		}
		if got := isFatalError(c.err); got != c.fatal {
			t.Errorf("%s: fatal = %v", c.name, got)
		}
	}
}

func TestRetryable(t *testing.T) {
	if retryable(nil) != nil {
		t.Error("nil failures retryable")
	}
	cause := &storage.StatusError{Code: 502}
	if got := retryable([]error{fs.ErrNotExist, cause}); got != cause {
		t.Errorf("retryable = %v", got)
	}
}

func TestIsTimeoutError(t *testing.T) {
	if !isTimeoutError(context.DeadlineExceeded) || !isTimeoutError(errors.New("i/o timeout")) || isTimeoutError(errors.New("boom")) {
		t.Error("isTimeoutError misclassifies")
	}
}

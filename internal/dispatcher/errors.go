package dispatcher

import "fmt"

// ValidationError represents a fatal validation error
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// RetryExhaustedError is recorded when a transient failure outlives its attempts
type RetryExhaustedError struct {
	JobID    string
	Attempts int
	Last     error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("job %s failed after %d attempts: %v", e.JobID, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error { return e.Last }

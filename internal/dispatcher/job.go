package dispatcher

import (
	"encoding/json"
	"time"

	"github.com/local/redactor/internal/assembler"
)

// Job is the queue payload for one batch.
type Job struct {
	ID         string            `json:"job_id"`
	Request    assembler.Request `json:"request"`
	Attempt    int               `json:"attempt"`
	IdemKey    string            `json:"idempotency_key,omitempty"`
	Source     string            `json:"source,omitempty"`
	EnqueuedAt time.Time         `json:"enqueued_at"`
}

// Encode marshals the job for the queue.
func (j Job) Encode() ([]byte, error) { return json.Marshal(j) }

// DecodeJob parses a queue payload and checks that it can run.
func DecodeJob(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return j, &ValidationError{Message: "invalid job payload: " + err.Error()}
	}
	if j.ID == "" {
		return j, &ValidationError{Message: "missing job_id"}
	}
	if len(j.Request.Files) == 0 {
		return j, &ValidationError{Message: "request has no files"}
	}
	if j.Attempt <= 0 {
		j.Attempt = 1
	}
	return j, nil
}

package store

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// ResultStore keeps the JSON outcome of finished jobs.
type ResultStore struct {
    client *redis.Client
    ttl    time.Duration
}

// NewResultStore shares client with the status store.
func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
    return &ResultStore{client: client, ttl: ttl}
}

func (s *ResultStore) key(jobID string) string { return fmt.Sprintf("job:%s:result", jobID) }

// Save stores v as JSON under the job.
func (s *ResultStore) Save(ctx context.Context, jobID string, v any) error {
    b, err := json.Marshal(v)
    if err != nil { return fmt.Errorf("marshal result: %w", err) }
    return s.client.Set(ctx, s.key(jobID), b, s.ttl).Err()
}

// Load decodes the stored result into v. It reports false when there is none.
func (s *ResultStore) Load(ctx context.Context, jobID string, v any) (bool, error) {
    b, err := s.client.Get(ctx, s.key(jobID)).Bytes()
    if errors.Is(err, redis.Nil) { return false, nil }
    if err != nil { return false, err }
    if err := json.Unmarshal(b, v); err != nil { return false, fmt.Errorf("decode result: %w", err) }
    return true, nil
}

package store

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Job states.
const (
    StatusQueued              = "queued"
    StatusRunning             = "running"
    StatusRetrying            = "retrying"
    StatusCompleted           = "completed"
    StatusCompletedWithErrors = "completed_with_errors"
    StatusFailed              = "failed"
    StatusCancelled           = "cancelled"
)

// Terminal reports whether a job in state s will not change any more.
func Terminal(s string) bool {
    switch s {
    case StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCancelled:
        return true
    }
    return false
}

type Status struct {
    Status   string                 `json:"status"`
    Progress int                    `json:"progress"`
    Message  string                 `json:"message"`
    Start    *time.Time             `json:"start_time,omitempty"`
    End      *time.Time             `json:"end_time,omitempty"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
}

type RedisStatus struct {
    client *redis.Client
    keyNS  string
    ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil { return nil, err }
    c := redis.NewClient(opt)
    if err := c.Ping(context.Background()).Err(); err != nil {
        _ = c.Close()
        return nil, err
    }
    return &RedisStatus{client: c, keyNS: "job", ttl: ttl}, nil
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

// Set writes the status hash. Fields of st that are empty leave the stored
// start time and metadata alone.
func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
    m := map[string]interface{}{
        "status":   st.Status,
        "progress": st.Progress,
        "message":  st.Message,
    }
    if st.Start != nil { m["start"] = st.Start.Format(time.RFC3339Nano) }
    if st.End != nil { m["end"] = st.End.Format(time.RFC3339Nano) }
    if st.Metadata != nil {
        b, err := json.Marshal(st.Metadata)
        if err != nil { return fmt.Errorf("marshal metadata: %w", err) }
        m["metadata"] = string(b)
    }
    pipe := s.client.TxPipeline()
    pipe.HSet(ctx, s.key(jobID), m)
    if s.ttl > 0 { pipe.Expire(ctx, s.key(jobID), s.ttl) }
    _, err := pipe.Exec(ctx)
    return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
    res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
    if err != nil { return Status{}, false, err }
    if len(res) == 0 { return Status{}, false, nil }
    st := Status{}
    st.Status = res["status"]
    st.Message = res["message"]
    if p, ok := res["progress"]; ok && p != "" {
        // ignore parse error; default 0
        var pi int
        fmt.Sscan(p, &pi)
        st.Progress = pi
    }
    if v := res["start"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.Start = &t }
    }
    if v := res["end"]; v != "" {
        if t, err := time.Parse(time.RFC3339Nano, v); err == nil { st.End = &t }
    }
    if v := res["metadata"]; v != "" {
        _ = json.Unmarshal([]byte(v), &st.Metadata)
    }
    return st, true, nil
}

func (s *RedisStatus) Close() error { return s.client.Close() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }

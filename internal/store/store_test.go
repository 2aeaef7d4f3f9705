package store

import (
    "context"
    "os"
    "testing"
    "time"

    "github.com/google/uuid"
)

func testStatus(t *testing.T) *RedisStatus {
    t.Helper()
    url := os.Getenv("REDIS_URL")
    if url == "" {
        t.Skip("REDIS_URL not set")
    }
    s, err := NewRedisStatus(url, time.Minute)
    if err != nil {
        t.Skipf("redis unavailable: %v", err)
    }
    t.Cleanup(func() { s.Close() })
    return s
}

func TestStatusRoundTrip(t *testing.T) {
    s := testStatus(t)
    ctx := context.Background()
    id := uuid.NewString()
    start := time.Now().Truncate(time.Millisecond)
    err := s.Set(ctx, id, Status{Status: StatusRunning, Progress: 40, Message: "2/5 files", Start: &start,
        Metadata: map[string]interface{}{"files": 5}})
    if err != nil {
        t.Fatal(err)
    }
    defer s.client.Del(ctx, s.key(id))
    st, ok, err := s.Get(ctx, id)
    if err != nil || !ok {
        t.Fatalf("ok=%v err=%v", ok, err)
    }
    if st.Status != StatusRunning || st.Progress != 40 || st.Start == nil || !st.Start.Equal(start) {
        t.Errorf("status = %+v", st)
    }
    if st.Metadata["files"] != float64(5) {
        t.Errorf("metadata = %v", st.Metadata)
    }
    if ttl := s.client.TTL(ctx, s.key(id)).Val(); ttl <= 0 {
        t.Errorf("ttl = %v", ttl)
    }
}

func TestResultStore(t *testing.T) {
    s := testStatus(t)
    ctx := context.Background()
    rs := NewResultStore(s.Client(), time.Minute)
    id := uuid.NewString()
    var got struct{ Success bool }
    if ok, err := rs.Load(ctx, id, &got); ok || err != nil {
        t.Fatalf("missing result: ok=%v err=%v", ok, err)
    }
    if err := rs.Save(ctx, id, map[string]bool{"Success": true}); err != nil {
        t.Fatal(err)
    }
    defer s.client.Del(ctx, rs.key(id))
    if ok, err := rs.Load(ctx, id, &got); !ok || err != nil || !got.Success {
        t.Errorf("ok=%v err=%v got=%+v", ok, err, got)
    }
}

func TestTerminal(t *testing.T) {
    for _, s := range []string{StatusCompleted, StatusCompletedWithErrors, StatusFailed, StatusCancelled} {
        if !Terminal(s) {
            t.Errorf("%s not terminal", s)
        }
    }
    if Terminal(StatusRunning) || Terminal(StatusRetrying) || Terminal(StatusQueued) {
        t.Error("active state reported terminal")
    }
}

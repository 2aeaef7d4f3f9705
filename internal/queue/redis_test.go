package queue

import (
    "context"
    "errors"
    "os"
    "testing"
    "time"

    "github.com/google/uuid"
)

func TestIsBusyGroupErr(t *testing.T) {
    if isBusyGroupErr(nil) {
        t.Error("nil is not BUSYGROUP")
    }
    if !isBusyGroupErr(errors.New("BUSYGROUP Consumer Group name already exists")) {
        t.Error("server reply not recognized")
    }
    if isBusyGroupErr(errors.New("NOGROUP No such key")) {
        t.Error("NOGROUP treated as BUSYGROUP")
    }
}

func testQueue(t *testing.T) *RedisQueue {
    t.Helper()
    url := os.Getenv("REDIS_URL")
    if url == "" {
        t.Skip("REDIS_URL not set")
    }
    stream := "test:jobs:" + uuid.NewString()
    q, err := NewRedisQueue(url, stream, "test-workers", 20*time.Millisecond)
    if err != nil {
        t.Skipf("redis unavailable: %v", err)
    }
    t.Cleanup(func() {
        ctx := context.Background()
        q.client.Del(ctx, q.Stream, q.DelayedKey, q.DLQStream)
        q.Close()
    })
    return q
}

func TestEnqueueDequeueAck(t *testing.T) {
    q := testQueue(t)
    ctx := context.Background()
    if err := q.Enqueue(ctx, []byte(`{"job_id":"a"}`)); err != nil {
        t.Fatal(err)
    }
    id, data, err := q.Dequeue(ctx, "c1", time.Second)
    if err != nil || id == "" || string(data) != `{"job_id":"a"}` {
        t.Fatalf("id=%q data=%q err=%v", id, data, err)
    }
    if err := q.Ack(ctx, id); err != nil {
        t.Fatal(err)
    }
    id, data, err = q.Dequeue(ctx, "c1", 50*time.Millisecond)
    if err != nil || id != "" || data != nil {
        t.Errorf("empty queue returned id=%q data=%q err=%v", id, data, err)
    }
}

func TestDelayedMover(t *testing.T) {
    q := testQueue(t)
    ctx := context.Background()
    if err := q.EnqueueDelayed(ctx, []byte("later"), time.Now().Add(-time.Second)); err != nil {
        t.Fatal(err)
    }
    _, data, err := q.Dequeue(ctx, "c1", 2*time.Second)
    if err != nil || string(data) != "later" {
        t.Fatalf("data=%q err=%v", data, err)
    }
}

func TestCancelAndIdempotency(t *testing.T) {
    q := testQueue(t)
    ctx := context.Background()
    job := uuid.NewString()
    if err := q.CancelJob(ctx, job); err != nil {
        t.Fatal(err)
    }
    defer q.client.Del(ctx, q.CancelPrefix+job)
    if ok, err := q.IsCancelled(ctx, job); err != nil || !ok {
        t.Errorf("IsCancelled = %v, %v", ok, err)
    }
    key := "test:" + job
    if ok, _ := q.IsIdemDone(ctx, key); ok {
        t.Error("fresh key reported done")
    }
    if err := q.MarkIdemDone(ctx, key, time.Minute); err != nil {
        t.Fatal(err)
    }
    defer q.client.Del(ctx, q.IdemPrefix+key)
    if ok, _ := q.IsIdemDone(ctx, key); !ok {
        t.Error("marked key not done")
    }
}

// TestReclaimStalePending tests that a message a consumer never acked is
// handed to another consumer after ClaimIdle.
func TestReclaimStalePending(t *testing.T) {
    q := testQueue(t)
    ctx := context.Background()
    if err := q.Enqueue(ctx, []byte("batch")); err != nil {
        t.Fatal(err)
    }
    id, _, err := q.Dequeue(ctx, "dead", time.Second)
    if err != nil || id == "" {
        t.Fatalf("id=%q err=%v", id, err)
    }
    q.ClaimIdle = 30 * time.Millisecond
    time.Sleep(60 * time.Millisecond)
    got, data, err := q.Dequeue(ctx, "alive", 50*time.Millisecond)
    if err != nil || got != id || string(data) != "batch" {
        t.Fatalf("reclaimed id=%q data=%q err=%v, want %q", got, data, err, id)
    }
    if err := q.Ack(ctx, got); err != nil {
        t.Fatal(err)
    }
    if got, _, _ := q.Dequeue(ctx, "alive", 50*time.Millisecond); got != "" {
        t.Errorf("acked message delivered again: %q", got)
    }
}

func TestDepths(t *testing.T) {
    q := testQueue(t)
    ctx := context.Background()
    q.Enqueue(ctx, []byte("a"))
    q.EnqueueDelayed(ctx, []byte("b"), time.Now().Add(time.Hour))
    q.AddDLQ(ctx, []byte("c"), "fatal")
    stream, delayed, dlq, err := q.Depths(ctx)
    if err != nil || stream != 1 || delayed != 1 || dlq != 1 {
        t.Errorf("depths = %d %d %d err=%v", stream, delayed, dlq, err)
    }
}

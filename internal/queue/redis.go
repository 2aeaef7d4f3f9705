package queue

import (
    "context"
    "errors"
    "fmt"
    "strings"
    "time"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog/log"
)

// RedisQueue carries redaction jobs on a Redis stream with a consumer group,
// plus a ZSET of delayed retries that a mover feeds back into the stream.
// Messages stay pending until the worker acks them, so a batch whose worker
// died is handed to another consumer once it has been idle for ClaimIdle.
type RedisQueue struct {
    client *redis.Client
    Stream string
    Group  string
    // keys, all prefixed with the stream name
    CancelPrefix string
    DelayedKey   string
    DLQStream    string
    IdemPrefix   string

    CancelTTL time.Duration // how long a cancel request is remembered
    ClaimIdle time.Duration // 0 disables reclaiming

    pollInterval time.Duration
    stop         chan struct{}
}

// NewRedisQueue connects to Redis, ensures stream & group, and starts delayed mover.
func NewRedisQueue(redisURL, stream, group string, poll time.Duration) (*RedisQueue, error) {
    opt, err := redis.ParseURL(redisURL)
    if err != nil {
        return nil, fmt.Errorf("parse redis url: %w", err)
    }
    c := redis.NewClient(opt)
    ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
    defer cancel()
    if err := c.Ping(ctx).Err(); err != nil {
        _ = c.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    q := &RedisQueue{
        client:       c,
        Stream:       stream,
        Group:        group,
        CancelPrefix: stream + ":cancelled:",
        DelayedKey:   stream + ":delayed",
        DLQStream:    stream + ":dlq",
        IdemPrefix:   stream + ":idem:",
        CancelTTL:    24 * time.Hour,
        pollInterval: poll,
        stop:         make(chan struct{}),
    }
    // MKSTREAM creates the stream if missing
    if err := c.XGroupCreateMkStream(ctx, stream, group, "$").Err(); err != nil && !isBusyGroupErr(err) {
        _ = c.Close()
        return nil, fmt.Errorf("xgroup create: %w", err)
    }
    go q.mover()
    return q, nil
}

func isBusyGroupErr(err error) bool {
    if err == nil { return false }
    // go-redis may return a generic error string from Redis
    return strings.Contains(strings.ToUpper(err.Error()), "BUSYGROUP")
}

func (q *RedisQueue) Close() error {
    close(q.stop)
    return q.client.Close()
}

// Client returns the underlying Redis client.
func (q *RedisQueue) Client() *redis.Client { return q.client }

// Ping checks redis connectivity.
func (q *RedisQueue) Ping(ctx context.Context) error { return q.client.Ping(ctx).Err() }

// streamMaxLen trims acked history; XLEN then approximates the backlog.
const streamMaxLen = 10000

// Enqueue adds a job to the stream as a single-field entry {data: <json>}.
func (q *RedisQueue) Enqueue(ctx context.Context, payload []byte) error {
    return q.client.XAdd(ctx, &redis.XAddArgs{
        Stream: q.Stream,
        MaxLen: streamMaxLen,
        Approx: true,
        Values: map[string]any{"data": string(payload)},
    }).Err()
}

// EnqueueDelayed schedules a job for later execution via ZSET. Scores are
// Unix milliseconds so sub-second retry jitter survives.
func (q *RedisQueue) EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error {
    return q.client.ZAdd(ctx, q.DelayedKey, redis.Z{Score: float64(executeAt.UnixMilli()), Member: string(payload)}).Err()
}

// Dequeue returns one message for consumer: a stale pending message first,
// then a new one. The caller acks it once the job has reached a terminal
// state or has been rescheduled.
func (q *RedisQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
    if id, data, ok := q.reclaim(ctx, consumer); ok { return id, data, nil }
    res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
        Group:    q.Group,
        Consumer: consumer,
        Streams:  []string{q.Stream, ">"},
        Count:    1,
        Block:    timeout,
        NoAck:    false,
    }).Result()
    if err != nil {
        if errors.Is(err, redis.Nil) { return "", nil, nil }
        return "", nil, err
    }
    if len(res) == 0 || len(res[0].Messages) == 0 { return "", nil, nil }
    msg := res[0].Messages[0]
    return msg.ID, payload(msg), nil
}

// reclaim takes over one message that another consumer has held for longer
// than ClaimIdle.
func (q *RedisQueue) reclaim(ctx context.Context, consumer string) (string, []byte, bool) {
    if q.ClaimIdle <= 0 { return "", nil, false }
    msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
        Stream:   q.Stream,
        Group:    q.Group,
        Consumer: consumer,
        MinIdle:  q.ClaimIdle,
        Start:    "0-0",
        Count:    1,
    }).Result()
    if err != nil {
        if !errors.Is(err, redis.Nil) { log.Warn().Err(err).Str("stream", q.Stream).Msg("reclaim failed") }
        return "", nil, false
    }
    if len(msgs) == 0 { return "", nil, false }
    log.Warn().Str("msg_id", msgs[0].ID).Str("consumer", consumer).Msg("reclaimed stale job from a dead consumer")
    return msgs[0].ID, payload(msgs[0]), true
}

func payload(msg redis.XMessage) []byte {
    switch t := msg.Values["data"].(type) {
    case string:
        return []byte(t)
    case []byte:
        return t
    }
    return nil
}

// Ack marks a message as processed.
func (q *RedisQueue) Ack(ctx context.Context, msgID string) error {
    if msgID == "" { return nil }
    return q.client.XAck(ctx, q.Stream, q.Group, msgID).Err()
}

// CancelJob marks a job as cancelled for CancelTTL. Workers check the mark
// before starting and while a batch runs.
func (q *RedisQueue) CancelJob(ctx context.Context, jobID string) error {
    return q.client.Set(ctx, q.CancelPrefix+jobID, time.Now().Unix(), q.CancelTTL).Err()
}

// IsCancelled reports whether a cancel request for jobID is on record.
func (q *RedisQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
    n, err := q.client.Exists(ctx, q.CancelPrefix+jobID).Result()
    return n == 1, err
}

// AddDLQ pushes a failed job to DLQ stream with reason.
func (q *RedisQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
    return q.client.XAdd(ctx, &redis.XAddArgs{Stream: q.DLQStream, Values: map[string]any{"data": string(payload), "reason": reason}}).Err()
}

// IsIdemDone reports whether the batch behind key already finished.
func (q *RedisQueue) IsIdemDone(ctx context.Context, key string) (bool, error) {
    if key == "" { return false, nil }
    exists, err := q.client.Exists(ctx, q.IdemPrefix+key).Result()
    return exists == 1, err
}

// MarkIdemDone records a finished batch for ttl so redelivered copies are skipped.
func (q *RedisQueue) MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error {
    if key == "" { return nil }
    return q.client.Set(ctx, q.IdemPrefix+key, 1, ttl).Err()
}

// mover periodically moves due delayed jobs from ZSET into the stream.
func (q *RedisQueue) mover() {
    if q.pollInterval <= 0 { q.pollInterval = 200 * time.Millisecond }
    ticker := time.NewTicker(q.pollInterval)
    defer ticker.Stop()
    for {
        select {
        case <-q.stop:
            return
        case <-ticker.C:
            if n, err := q.moveOnce(); err != nil {
                log.Warn().Err(err).Msg("delayed mover failed")
            } else if n > 0 {
                log.Debug().Int("moved", n).Msg("delayed jobs released")
            }
        }
    }
}

func (q *RedisQueue) moveOnce() (int, error) {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    now := time.Now().UnixMilli()
    vals, err := q.client.ZRangeByScoreWithScores(ctx, q.DelayedKey, &redis.ZRangeBy{
        Min: "-inf", Max: fmt.Sprintf("%d", now), Offset: 0, Count: 100,
    }).Result()
    if err != nil || len(vals) == 0 { return 0, err }
    pipe := q.client.TxPipeline()
    for _, z := range vals {
        s, _ := z.Member.(string)
        pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.Stream, Values: map[string]any{"data": s}})
        pipe.ZRem(ctx, q.DelayedKey, s)
    }
    if _, err := pipe.Exec(ctx); err != nil { return 0, err }
    return len(vals), nil
}

// Depths returns the stream, delayed and dead-letter lengths for metrics.
func (q *RedisQueue) Depths(ctx context.Context) (int64, int64, int64, error) {
    pipe := q.client.Pipeline()
    xlen := pipe.XLen(ctx, q.Stream)
    zcard := pipe.ZCard(ctx, q.DelayedKey)
    dxlen := pipe.XLen(ctx, q.DLQStream)
    _, err := pipe.Exec(ctx)
    if err != nil { return 0, 0, 0, err }
    return xlen.Val(), zcard.Val(), dxlen.Val(), nil
}

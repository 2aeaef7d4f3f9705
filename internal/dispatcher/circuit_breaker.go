package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/metrics"
)

// CircuitBreaker manages circuit breaker state in Redis, shared by every
// worker process that talks to the same instance.
type CircuitBreaker struct {
	redis       *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(redisClient *redis.Client, baseBackoff, maxBackoff time.Duration) *CircuitBreaker {
	if baseBackoff <= 0 {
		baseBackoff = 30 * time.Second
	}
	if maxBackoff < baseBackoff {
		maxBackoff = baseBackoff
	}
	return &CircuitBreaker{
		redis:       redisClient,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
}

func breakerKey(backend, engine string) string { return fmt.Sprintf("cb:%s:%s", backend, engine) }

// backoff doubles per consecutive failure: base, 2*base, 4*base, capped at max.
func (cb *CircuitBreaker) backoff(failures int) time.Duration {
	d := cb.baseBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= cb.maxBackoff {
			return cb.maxBackoff
		}
	}
	return d
}

// Open opens the breaker for a backend:engine combination
func (cb *CircuitBreaker) Open(ctx context.Context, backend, engine string) {
	key := breakerKey(backend, engine)

	failuresStr, _ := cb.redis.HGet(ctx, key, "failures").Result()
	failures, _ := strconv.Atoi(failuresStr)
	failures++
	backoff := cb.backoff(failures)

	retryAt := time.Now().Add(backoff).Unix()
	openedAt := time.Now().Unix()

	pipe := cb.redis.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"state":     "open",
		"retry_at":  retryAt,
		"failures":  failures,
		"opened_at": openedAt,
	})
	pipe.Expire(ctx, key, cb.maxBackoff+10*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("backend", backend).Msg("circuit breaker write failed")
		return
	}
	metrics.BreakerOpened(backend)

	log.Warn().
		Str("backend", backend).
		Str("engine", engine).
		Dur("cooldown", backoff).
		Int("failures", failures).
		Time("retry_at", time.Unix(retryAt, 0)).
		Msg("circuit breaker OPENED")
}

// IsOpen checks if the breaker is open for backend:engine
func (cb *CircuitBreaker) IsOpen(ctx context.Context, backend, engine string) bool {
	key := breakerKey(backend, engine)

	state, err := cb.redis.HGet(ctx, key, "state").Result()
	if err != nil || state != "open" {
		// No record, closed or half-open
		return false
	}

	retryAtStr, _ := cb.redis.HGet(ctx, key, "retry_at").Result()
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)

	if time.Now().Unix() >= retryAt {
		// Cooldown expired, let one job probe the backend
		cb.redis.HSet(ctx, key, "state", "half_open")

		log.Info().
			Str("backend", backend).
			Str("engine", engine).
			Msg("circuit breaker moved to HALF-OPEN")

		return false
	}

	return true
}

// Close resets the breaker after the backend worked again
func (cb *CircuitBreaker) Close(ctx context.Context, backend, engine string) {
	key := breakerKey(backend, engine)

	state, _ := cb.redis.HGet(ctx, key, "state").Result()
	if state == "" || state == "closed" {
		return
	}

	cb.redis.Del(ctx, key)
	metrics.BreakerClosed(backend)

	log.Info().
		Str("backend", backend).
		Str("engine", engine).
		Msg("circuit breaker CLOSED (reset)")
}

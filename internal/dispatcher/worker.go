package dispatcher

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/assembler"
	"github.com/local/redactor/internal/metrics"
	"github.com/local/redactor/internal/store"
)

// Breaker names for the rasterization backend used by SafeRender.
const (
	BackendRender = "render"
	EngineMuPDF   = "mupdf"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	IsIdemDone(ctx context.Context, key string) (bool, error)
	MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
}

type ResultStore interface {
	Save(ctx context.Context, jobID string, v any) error
}

type Breaker interface {
	IsOpen(ctx context.Context, backend, engine string) bool
	Open(ctx context.Context, backend, engine string)
	Close(ctx context.Context, backend, engine string)
}

// Runner processes one batch; *assembler.Assembler implements it.
type Runner interface {
	ProcessWithProgress(ctx context.Context, req assembler.Request, progress assembler.ProgressFunc) assembler.Result
}

type Config struct {
	Concurrency        int
	Consumer           string
	JobTimeout         time.Duration
	MaxAttempts        int
	RetryBaseDelay     time.Duration
	RetryJitter        time.Duration
	RetryBackoffFactor float64
	CancelPoll         time.Duration
	IdemTTL            time.Duration
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.Consumer == "" {
		c.Consumer = "worker"
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = 10 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 2 * time.Second
	}
	if c.RetryBackoffFactor < 1 {
		c.RetryBackoffFactor = 2
	}
	if c.CancelPoll <= 0 {
		c.CancelPoll = time.Second
	}
	if c.IdemTTL <= 0 {
		c.IdemTTL = 24 * time.Hour
	}
	return c
}

// Deps are the worker's collaborators. Breaker may be nil; Degraded, used
// while the render breaker is open, defaults to Runner.
type Deps struct {
	Queue    Queue
	Status   StatusStore
	Results  ResultStore
	Breaker  Breaker
	Runner   Runner
	Degraded Runner
}

type Worker struct {
	cfg  Config
	deps Deps
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, deps Deps) *Worker {
	if deps.Degraded == nil {
		deps.Degraded = deps.Runner
	}
	return &Worker{cfg: cfg.withDefaults(), deps: deps, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

// Stop signals the loops and waits for in-flight jobs until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("%s-%d", w.cfg.Consumer, id)
	log.Info().Int("worker", id).Str("consumer", consumer).Msg("dispatcher worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("dispatcher worker stopped")
			return
		default:
		}

		msgID, data, err := w.deps.Queue.Dequeue(context.Background(), consumer, 2*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if msgID == "" {
			continue
		}
		w.handle(context.Background(), msgID, data)
	}
}

// handle runs one queued job to a terminal state or reschedules it. The
// message is acked in every case; retries travel as new messages.
func (w *Worker) handle(ctx context.Context, msgID string, data []byte) {
	defer func() {
		if err := w.deps.Queue.Ack(ctx, msgID); err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("ack failed")
		}
	}()

	job, err := DecodeJob(data)
	if err != nil {
		log.Error().Err(err).Str("msg_id", msgID).Msg("dropping invalid job")
		if job.ID != "" {
			w.finish(ctx, job.ID, store.StatusFailed, err.Error(), nil)
		}
		_ = w.deps.Queue.AddDLQ(ctx, data, err.Error())
		metrics.IncJob("invalid")
		return
	}
	lg := log.With().Str("job_id", job.ID).Int("attempt", job.Attempt).Logger()

	if cancelled, _ := w.deps.Queue.IsCancelled(ctx, job.ID); cancelled {
		lg.Warn().Msg("job cancelled before processing; skipping")
		w.finish(ctx, job.ID, store.StatusCancelled, "cancelled", nil)
		metrics.IncJob(store.StatusCancelled)
		return
	}
	if done, _ := w.deps.Queue.IsIdemDone(ctx, job.IdemKey); done {
		lg.Info().Str("idempotency_key", job.IdemKey).Msg("job already done; skipping")
		return
	}

	start := time.Now()
	_ = w.deps.Status.Set(ctx, job.ID, store.Status{Status: store.StatusRunning, Progress: 0,
		Message: fmt.Sprintf("attempt %d", job.Attempt), Start: &start})

	runner, degraded := w.deps.Runner, false
	if w.deps.Breaker != nil && w.deps.Breaker.IsOpen(ctx, BackendRender, EngineMuPDF) {
		runner, degraded = w.deps.Degraded, true
		lg.Warn().Msg("render breaker open; safe render disabled for this job")
	}

	jctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	cancelled := w.watchCancel(jctx, cancel, job.ID)
	res := runner.ProcessWithProgress(jctx, job.Request, func(done, total int, file string) {
		_ = w.deps.Status.Set(ctx, job.ID, store.Status{Status: store.StatusRunning,
			Progress: done * 100 / total, Message: fmt.Sprintf("%d/%d files (%s)", done, total, file)})
	})
	cancel()
	if degraded {
		res.Warnings = append(res.Warnings, "render backend circuit open; safe render replaced by black overlay")
	}
	w.updateBreaker(ctx, res, degraded)

	if cancelled() {
		lg.Warn().Msg("job cancelled while processing")
		w.finish(ctx, job.ID, store.StatusCancelled, "cancelled", &res)
		metrics.IncJob(store.StatusCancelled)
		return
	}

	if cause := retryable(res.Failures); cause != nil {
		if job.Attempt < w.cfg.MaxAttempts {
			w.retry(ctx, lg, job, cause)
			return
		}
		exhausted := &RetryExhaustedError{JobID: job.ID, Attempts: job.Attempt, Last: cause}
		lg.Error().Err(exhausted).Bool("timeout", isTimeoutError(cause)).Msg("job moved to DLQ")
		_ = w.deps.Queue.AddDLQ(ctx, data, exhausted.Error())
		w.finish(ctx, job.ID, store.StatusFailed, exhausted.Error(), &res)
		metrics.IncJob(store.StatusFailed)
		return
	}

	state := store.StatusCompleted
	if !res.Success {
		state = store.StatusCompletedWithErrors
	}
	w.finish(ctx, job.ID, state, fmt.Sprintf("%d/%d files processed", len(res.ProcessedFiles), len(job.Request.Files)), &res)
	if err := w.deps.Queue.MarkIdemDone(ctx, job.IdemKey, w.cfg.IdemTTL); err != nil {
		lg.Warn().Err(err).Msg("mark idempotency key failed")
	}
	metrics.IncJob(state)
	lg.Info().Str("status", state).Dur("took", time.Since(start)).Int("errors", len(res.Errors)).Msg("job finished")
}

// watchCancel polls for a cancel request while the job runs and cancels ctx when
// the job is cancelled. The returned func reports whether that happened.
func (w *Worker) watchCancel(ctx context.Context, cancel context.CancelFunc, jobID string) func() bool {
	var mu sync.Mutex
	hit := false
	go func() {
		t := time.NewTicker(w.cfg.CancelPoll)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if c, _ := w.deps.Queue.IsCancelled(context.Background(), jobID); c {
					mu.Lock()
					hit = true
					mu.Unlock()
					cancel()
					return
				}
			}
		}
	}()
	return func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hit
	}
}

// updateBreaker opens the render breaker when the backend failed and closes
// it after a job rendered successfully.
func (w *Worker) updateBreaker(ctx context.Context, res assembler.Result, degraded bool) {
	if w.deps.Breaker == nil {
		return
	}
	rendered := false
	for _, f := range res.Files {
		if f.RenderFailed {
			w.deps.Breaker.Open(ctx, BackendRender, EngineMuPDF)
			return
		}
		for _, s := range f.Pages {
			if s == "safe_render" {
				rendered = true
			}
		}
	}
	if rendered && !degraded {
		w.deps.Breaker.Close(ctx, BackendRender, EngineMuPDF)
	}
}

func (w *Worker) retry(ctx context.Context, lg zerolog.Logger, job Job, cause error) {
	delay := w.retryDelay(job.Attempt)
	job.Attempt++
	payload, err := job.Encode()
	if err == nil {
		err = w.deps.Queue.EnqueueDelayed(ctx, payload, time.Now().Add(delay))
	}
	if err != nil {
		lg.Error().Err(err).Msg("reschedule failed")
		w.finish(ctx, job.ID, store.StatusFailed, fmt.Sprintf("reschedule failed: %v", err), nil)
		metrics.IncJob(store.StatusFailed)
		return
	}
	metrics.IncRetry()
	lg.Warn().Err(cause).Dur("delay", delay).Msg("transient failure; job rescheduled")
	_ = w.deps.Status.Set(ctx, job.ID, store.Status{Status: store.StatusRetrying, Progress: 0,
		Message: fmt.Sprintf("retry %d/%d in %s: %v", job.Attempt, w.cfg.MaxAttempts, delay.Round(time.Millisecond), cause)})
}

// retryDelay is base*factor^(attempt-1) plus up to RetryJitter.
func (w *Worker) retryDelay(attempt int) time.Duration {
	d := time.Duration(float64(w.cfg.RetryBaseDelay) * math.Pow(w.cfg.RetryBackoffFactor, float64(attempt-1)))
	if w.cfg.RetryJitter > 0 {
		d += time.Duration(rand.Int63n(int64(w.cfg.RetryJitter)))
	}
	return d
}

func (w *Worker) finish(ctx context.Context, jobID, state, msg string, res *assembler.Result) {
	end := time.Now()
	st := store.Status{Status: state, Progress: 100, Message: msg, End: &end}
	if state == store.StatusCancelled || state == store.StatusFailed {
		st.Progress = 0
	}
	if res != nil {
		st.Metadata = map[string]interface{}{
			"processed": len(res.ProcessedFiles),
			"errors":    len(res.Errors),
			"warnings":  len(res.Warnings),
		}
		if err := w.deps.Results.Save(ctx, jobID, res); err != nil {
			log.Error().Err(err).Str("job_id", jobID).Msg("save result failed")
		}
	}
	if err := w.deps.Status.Set(ctx, jobID, st); err != nil {
		log.Error().Err(err).Str("job_id", jobID).Msg("status update failed")
	}
}

// Depther reports queue depths; *queue.RedisQueue implements it.
type Depther interface {
	Depths(ctx context.Context) (int64, int64, int64, error)
}

// ReportDepths publishes queue depth gauges until ctx is done.
func ReportDepths(ctx context.Context, q Depther, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			ready, delayed, dlq, err := q.Depths(ctx)
			if err != nil {
				log.Debug().Err(err).Msg("queue depth poll failed")
				continue
			}
			metrics.SetQueueDepth("ready", ready)
			metrics.SetQueueDepth("delayed", delayed)
			metrics.SetQueueDepth("dlq", dlq)
		}
	}
}

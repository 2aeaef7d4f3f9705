package metrics

import (
    "net/http"
    "sync"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    filesProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "redactor",
            Name:      "files_processed_total",
            Help:      "Total files processed by result (success, error)",
        },
        []string{"result"},
    )

    fileDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "redactor",
            Name:      "file_duration_seconds",
            Help:      "Duration of a single file by format",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"format"},
    )

    pagesRedacted = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "redactor",
            Name:      "pages_redacted_total",
            Help:      "Pages redacted, labeled by the strategy that ran",
        },
        []string{"strategy"},
    )

    fallbacks = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "redactor",
            Name:      "fallbacks_total",
            Help:      "Strategy fallbacks by failed and replacing strategy",
        },
        []string{"from", "to"},
    )

    imagesRedacted = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "redactor",
            Name:      "images_redacted_total",
            Help:      "Image XObjects repainted",
        },
    )

    itemsCleaned = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "redactor",
            Name:      "cleaned_items_total",
            Help:      "Items removed by document cleaners",
        },
        []string{"cleaner"},
    )

    renderLatency = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "redactor",
            Name:      "render_duration_seconds",
            Help:      "Duration of single page rasterization",
            Buckets:   prometheus.DefBuckets,
        },
    )

    retriesTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "redactor",
            Name:      "job_retries_total",
            Help:      "Total number of job retries",
        },
    )

    jobsProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "redactor",
            Name:      "jobs_processed_total",
            Help:      "Queue jobs processed by result (success, retry, dlq)",
        },
        []string{"result"},
    )

    breakerEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "redactor",
            Name:      "breaker_events_total",
            Help:      "Circuit breaker events by backend and action",
        },
        []string{"backend", "action"},
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "redactor",
            Name:      "queue_depth",
            Help:      "Queue depth gauges for stream, delayed and dlq",
        },
        []string{"type"},
    )

    initOnce sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
    initOnce.Do(func() {
        prometheus.MustRegister(filesProcessed, fileDuration, pagesRedacted, fallbacks, imagesRedacted,
            itemsCleaned, renderLatency, retriesTotal, jobsProcessed, breakerEvents, queueDepth)
    })
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveFile(format, result string, dur time.Duration) {
    filesProcessed.WithLabelValues(result).Inc()
    fileDuration.WithLabelValues(format).Observe(dur.Seconds())
}

func IncPage(strategy string)          { pagesRedacted.WithLabelValues(strategy).Inc() }
func IncFallback(from, to string)      { fallbacks.WithLabelValues(from, to).Inc() }
func AddImages(n int)                  { imagesRedacted.Add(float64(n)) }
func AddCleaned(cleaner string, n int) { itemsCleaned.WithLabelValues(cleaner).Add(float64(n)) }
func ObserveRender(dur time.Duration)  { renderLatency.Observe(dur.Seconds()) }

func IncRetry()                   { retriesTotal.Inc() }
func IncJob(result string)        { jobsProcessed.WithLabelValues(result).Inc() }
func BreakerOpened(backend string) { breakerEvents.WithLabelValues(backend, "opened").Inc() }
func BreakerClosed(backend string) { breakerEvents.WithLabelValues(backend, "closed").Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }

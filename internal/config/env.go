package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// RedactionConfig tunes the redaction engine.
type RedactionConfig struct {
    PathThreshold  int     // path-construction ops above which a text-free page counts as drawn
    SafeRenderDPI  float64 // raster resolution for masked pages
    FidelityScale  float64 // scale factor (x72 dpi) for unmasked pages in safe render
    JPEGQuality    int
    OCRDPI         float64
    TempDir        string
    Suffix         string
    OutputDir      string
    Optimize       bool
    BrandName      string
    BrandVersion   string
    BrandURL       string
}

// OCRConfig controls the tesseract engine.
type OCRConfig struct {
    Enabled   bool
    Languages []string
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
    Concurrency          int
    JobTimeout           time.Duration
    JobMaxAttempts       int
    RetryBaseDelay       time.Duration
    RetryJitter          time.Duration
    RetryBackoffFactor   float64
    BreakerBaseBackoff   time.Duration
    BreakerMaxBackoff    time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
    RedisURL     string
    Stream       string
    Group        string
    PollInterval time.Duration
    ResultTTL    time.Duration
}

// StorageConfig points at the object store used for s3:// inputs and outputs.
type StorageConfig struct {
    Bucket          string
    Region          string
    Endpoint        string
    AccessKeyID     string
    SecretAccessKey string
}

// Config is the top-level configuration.
type Config struct {
    Logging   LoggingConfig
    Axiom     AxiomConfig
    Redaction RedactionConfig
    OCR       OCRConfig
    Worker    WorkerConfig
    Queue     QueueConfig
    Storage   StorageConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/redactor.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_redactor",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Redaction = RedactionConfig{
        PathThreshold: parseInt(getEnv("REDACT_PATH_THRESHOLD", "500"), 500),
        SafeRenderDPI: parseFloat(getEnv("REDACT_SAFE_RENDER_DPI", "150"), 150),
        FidelityScale: parseFloat(getEnv("REDACT_FIDELITY_SCALE", "2.0"), 2.0),
        JPEGQuality:   parseInt(getEnv("REDACT_JPEG_QUALITY", "90"), 90),
        OCRDPI:        parseFloat(getEnv("OCR_DPI", "150"), 150),
        TempDir:       getEnv("REDACT_TEMP_DIR", os.TempDir()),
        Suffix:        getEnv("REDACT_SUFFIX", "_redacted"),
        OutputDir:     getEnv("REDACT_OUTPUT_DIR", "output"),
        Optimize:      parseBool(getEnv("REDACT_OPTIMIZE", "true")),
        BrandName:     getEnv("REDACT_BRAND_NAME", "Redactor"),
        BrandVersion:  getEnv("REDACT_BRAND_VERSION", "1.0.0"),
        BrandURL:      getEnv("REDACT_BRAND_URL", "https://github.com/local/redactor"),
    }
    if cfg.Redaction.SafeRenderDPI <= 0 { cfg.Redaction.SafeRenderDPI = 150 }
    if cfg.Redaction.JPEGQuality <= 0 || cfg.Redaction.JPEGQuality > 100 { cfg.Redaction.JPEGQuality = 90 }

    cfg.OCR = OCRConfig{
        Enabled:   parseBool(getEnv("OCR_ENABLED", "true")),
        Languages: parseList(getEnv("OCR_LANGUAGES", "eng")),
    }

    // Worker defaults
    cfg.Worker = WorkerConfig{
        Concurrency:        parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
        JobTimeout:         parseDuration(getEnv("JOB_TIMEOUT", "10m"), 10*time.Minute),
        JobMaxAttempts:     parseInt(getEnv("JOB_MAX_ATTEMPTS", "3"), 3),
        RetryBaseDelay:     parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
        RetryJitter:        parseDuration(getEnv("RETRY_JITTER", "200ms"), 200*time.Millisecond),
        RetryBackoffFactor: parseFloat(getEnv("RETRY_BACKOFF_FACTOR", "2.0"), 2.0),
        BreakerBaseBackoff: parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
        BreakerMaxBackoff:  parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
    }

    // Queue defaults
    cfg.Queue = QueueConfig{
        RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
        Stream:       getEnv("QUEUE_STREAM", "jobs:redact"),
        Group:        getEnv("QUEUE_GROUP", "workers:redact"),
        PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
        ResultTTL:    parseDuration(getEnv("RESULT_TTL", "24h"), 24*time.Hour),
    }

    cfg.Storage = StorageConfig{
        Bucket:          getEnv("S3_BUCKET", ""),
        Region:          getEnv("AWS_REGION", ""),
        Endpoint:        getEnv("S3_ENDPOINT", ""),
        AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
        SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

// parseList splits "eng+deu" or "eng,deu" into language codes.
func parseList(s string) []string {
    f := func(r rune) bool { return r == ',' || r == '+' || r == ' ' }
    var out []string
    for _, p := range strings.FieldsFunc(s, f) {
        out = append(out, p)
    }
    return out
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}

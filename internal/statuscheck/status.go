package statuscheck

import (
    "context"
    "errors"
    "time"

    "github.com/local/redactor/internal/storage"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
    Ping(ctx context.Context) error
}

// PageCounter opens a PDF through the rendering backend.
type PageCounter interface {
    PageCount(ctx context.Context, src []byte) (int, error)
}

// Checker aggregates readiness checks for the backends the redactor uses.
type Checker struct {
    redis      RedisPinger
    store      *storage.Store
    s3Bucket   string
    renderer   PageCounter
    ocrVersion func() string
}

// Options configures the Checker. Nil fields report the backend as not configured.
type Options struct {
    Redis      RedisPinger
    Store      *storage.Store
    S3Bucket   string
    Renderer   PageCounter
    OCRVersion func() string
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis     Status `json:"redis"`
    S3        Status `json:"s3"`
    MuPDF     Status `json:"mupdf"`
    Tesseract Status `json:"tesseract"`
}

// OK reports whether every subsystem is ready.
func (s Summary) OK() bool { return s.Redis.OK && s.S3.OK && s.MuPDF.OK && s.Tesseract.OK }

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    return &Checker{
        redis:      opts.Redis,
        store:      opts.Store,
        s3Bucket:   opts.S3Bucket,
        renderer:   opts.Renderer,
        ocrVersion: opts.OCRVersion,
    }
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:     c.checkRedis(ctx),
        S3:        c.checkS3(ctx),
        MuPDF:     c.checkMuPDF(ctx),
        Tesseract: c.checkTesseract(),
    }
}

func (c *Checker) checkRedis(ctx context.Context) Status {
    if c.redis == nil {
        return Status{OK: false, Message: "client unavailable"}
    }
    ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
    defer cancel()
    if err := c.redis.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkS3(ctx context.Context) Status {
    if c.s3Bucket == "" || c.store == nil {
        return Status{OK: false, Message: "Bucket not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    cli, err := c.store.S3(ctx)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    if err := cli.HeadBucket(ctx, c.s3Bucket); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

// probePDF is a one-page blank document; MuPDF repairs its missing xref.
var probePDF = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog /Pages 2 0 R >> endobj\n" +
    "2 0 obj << /Type /Pages /Kids [3 0 R] /Count 1 >> endobj\n" +
    "3 0 obj << /Type /Page /Parent 2 0 R /MediaBox [0 0 72 72] >> endobj\n" +
    "trailer << /Root 1 0 R >>\n%%EOF\n")

func (c *Checker) checkMuPDF(ctx context.Context) Status {
    if c.renderer == nil {
        return Status{OK: false, Message: "Renderer not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
    defer cancel()
    n, err := c.renderer.PageCount(ctx, probePDF)
    if err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    if n != 1 {
        return Status{OK: false, Message: "unexpected page count"}
    }
    return Status{OK: true, Message: "Available"}
}

func (c *Checker) checkTesseract() Status {
    if c.ocrVersion == nil {
        return Status{OK: false, Message: "OCR disabled"}
    }
    v := c.ocrVersion()
    if v == "" {
        return Status{OK: false, Message: "Not compiled in"}
    }
    return Status{OK: true, Message: "tesseract " + v}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}

package logger

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "sync"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const serviceName = "redactor"

// Options defines logger initialization parameters.
type Options struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool

    // Axiom
    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration
}

var (
    mu     sync.Mutex
    global = zerolog.New(os.Stderr).With().Timestamp().Logger()
    ax     *axiomClient
)

// Init sets up global logger: file rotation, optional console, optional Axiom forwarding.
func Init(opts Options) error {
    mu.Lock()
    defer mu.Unlock()

    var writers []io.Writer

    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            return fmt.Errorf("create logs dir: %w", err)
        }
        writers = append(writers, &lumberjack.Logger{
            Filename:   opts.File,
            MaxSize:    opts.MaxSizeMB,
            MaxBackups: opts.MaxBackups,
            MaxAge:     opts.MaxAgeDays,
            Compress:   opts.Compress,
        })
    }

    if opts.Pretty {
        writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
    } else {
        writers = append(writers, os.Stdout)
    }

    // Optional Axiom writer (info+)
    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
        if err != nil {
            fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
        } else {
            ax = client
            writers = append(writers, &axiomWriter{client: client})
        }
    }

    zerolog.TimeFieldFormat = time.RFC3339
    lvl, err := zerolog.ParseLevel(opts.Level)
    if err != nil || opts.Level == "" {
        lvl = zerolog.InfoLevel
    }

    global = zerolog.New(io.MultiWriter(writers...)).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
    log.Logger = global
    return nil
}

// Close flushes any buffered external loggers.
func Close() {
    mu.Lock()
    defer mu.Unlock()
    if ax != nil {
        _ = ax.Close()
        ax = nil
    }
}

// Get returns the global logger.
func Get() *zerolog.Logger { return &global }

// For returns a child logger bound to one input file.
func For(file string) *zerolog.Logger {
    l := log.Logger.With().Str("file", filepath.Base(file)).Logger()
    return &l
}

// axiomWriter forwards zerolog JSON lines to Axiom (dropping debug level).
type axiomWriter struct { client *axiomClient }

func (w *axiomWriter) Write(p []byte) (int, error) {
    var ev map[string]interface{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = map[string]interface{}{"message": string(p), "level": "info"}
    }
    switch ev["level"] {
    case "debug", "trace":
        return len(p), nil
    }
    ev["service"] = serviceName
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    w.client.Send(axiom.Event(ev))
    return len(p), nil
}

// axiomClient batches events and ships them on a ticker or when the batch fills.
type axiomClient struct {
    client    *axiom.Client
    dataset   string
    ch        chan axiom.Event
    batchSize int
    wg        sync.WaitGroup
    ctx       context.Context
    cancel    context.CancelFunc
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
    if dataset == "" { dataset = "dev_" + serviceName }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    c, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    ctx, cancel := context.WithCancel(context.Background())
    ac := &axiomClient{
        client:    c,
        dataset:   dataset,
        ch:        make(chan axiom.Event, 1000),
        batchSize: 200,
        ctx:       ctx,
        cancel:    cancel,
    }
    if flushEvery <= 0 { flushEvery = 10 * time.Second }
    ac.wg.Add(1)
    go ac.loop(flushEvery)
    return ac, nil
}

func (a *axiomClient) Send(ev axiom.Event) {
    select {
    case a.ch <- ev:
    default:
        // buffer full; drop
    }
}

func (a *axiomClient) loop(flushEvery time.Duration) {
    defer a.wg.Done()
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()
    batch := make([]axiom.Event, 0, a.batchSize)
    flush := func() {
        if len(batch) == 0 { return }
        ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
        if _, err := a.client.IngestEvents(ctx, a.dataset, batch); err != nil {
            fmt.Fprintf(os.Stderr, "axiom ingest: %v\n", err)
        }
        cancel()
        batch = batch[:0]
    }
    for {
        select {
        case <-a.ctx.Done():
            // drain what is already queued
            for {
                select {
                case ev := <-a.ch:
                    batch = append(batch, ev)
                default:
                    flush()
                    return
                }
            }
        case <-ticker.C:
            flush()
        case ev := <-a.ch:
            batch = append(batch, ev)
            if len(batch) >= a.batchSize { flush() }
        }
    }
}

func (a *axiomClient) Close() error {
    a.cancel()
    a.wg.Wait()
    return nil
}

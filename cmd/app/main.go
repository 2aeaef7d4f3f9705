package main

import (
    "context"
    "encoding/json"
    "flag"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    "github.com/local/redactor/internal/assembler"
    cfgpkg "github.com/local/redactor/internal/config"
    "github.com/local/redactor/internal/detect"
    "github.com/local/redactor/internal/dispatcher"
    "github.com/local/redactor/internal/imagerender"
    "github.com/local/redactor/internal/limiter"
    logpkg "github.com/local/redactor/internal/logger"
    "github.com/local/redactor/internal/metrics"
    "github.com/local/redactor/internal/mupdf"
    "github.com/local/redactor/internal/ocr"
    "github.com/local/redactor/internal/orchestrator"
    "github.com/local/redactor/internal/pdfdoc"
    "github.com/local/redactor/internal/queue"
    "github.com/local/redactor/internal/redact"
    "github.com/local/redactor/internal/statuscheck"
    "github.com/local/redactor/internal/storage"
    "github.com/local/redactor/internal/store"
    "github.com/local/redactor/internal/verify"
)

func main() {
    requestFile := flag.String("request", "", "process the batch request in this JSON file and print the result")
    analyzeFile := flag.String("analyze", "", "analyze this document and print the report")
    textFile := flag.String("text", "", "print the text MuPDF extracts from this document, e.g. to check an output")
    textPage := flag.Int("page", 0, "with -text, print only this 1-based page")
    flag.Parse()

    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level: cfg.Logging.Level,
        Pretty: cfg.Logging.Pretty,
        File: cfg.Logging.File,
        MaxSizeMB: cfg.Logging.MaxSizeMB,
        MaxBackups: cfg.Logging.MaxBackups,
        MaxAgeDays: cfg.Logging.MaxAgeDays,
        Compress: cfg.Logging.Compress,
        SendToAxiom: cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey: cfg.Axiom.APIKey,
        AxiomOrgID: cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush: cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()
    metrics.Init()

    // Native engines share one gate
    gate := limiter.Native()
    renderer := imagerender.NewFitz(gate)
    var engine ocr.Engine
    if cfg.OCR.Enabled {
        t, err := ocr.New(ocr.Options{Languages: cfg.OCR.Languages, DPI: cfg.Redaction.OCRDPI}, gate)
        if err != nil {
            log.Warn().Err(err).Msg("ocr unavailable; scanned pages will not be searched")
        } else {
            engine = t
        }
    }
    extractor := mupdf.NewExtractor(gate)
    st := storage.New(storage.S3Options{
        Region: cfg.Storage.Region,
        Endpoint: cfg.Storage.Endpoint,
        AccessKeyID: cfg.Storage.AccessKeyID,
        SecretAccessKey: cfg.Storage.SecretAccessKey,
    })
    asm := assembler.New(assembler.Config{
        Suffix: cfg.Redaction.Suffix,
        OutputDir: cfg.Redaction.OutputDir,
        Optimize: cfg.Redaction.Optimize,
        Provenance: pdfdoc.Provenance{Name: cfg.Redaction.BrandName, Version: cfg.Redaction.BrandVersion, URL: cfg.Redaction.BrandURL},
    }, assembler.Deps{
        Redactor: redact.New(redact.Options{
            PathThreshold: cfg.Redaction.PathThreshold,
            DPI: cfg.Redaction.SafeRenderDPI,
            FidelityScale: cfg.Redaction.FidelityScale,
            JPEGQuality: cfg.Redaction.JPEGQuality,
            SpillDir: cfg.Redaction.TempDir,
        }, renderer),
        Store: st,
        Detector: detect.New(detect.Options{PathThreshold: cfg.Redaction.PathThreshold, OCRDPI: cfg.Redaction.OCRDPI}, renderer, engine),
        Verifier: verify.New(extractor, renderer, engine, cfg.Redaction.OCRDPI),
        Extractor: extractor,
    })

    // One-shot modes
    if *requestFile != "" {
        code := runRequest(asm, *requestFile)
        logpkg.Close()
        os.Exit(code)
    }
    if *analyzeFile != "" {
        an, err := asm.Analyze(context.Background(), *analyzeFile)
        if err != nil {
            fmt.Fprintln(os.Stderr, err)
            os.Exit(1)
        }
        printJSON(an)
        return
    }
    if *textFile != "" {
        data, err := st.Fetch(context.Background(), *textFile)
        if err == nil && *textPage > 0 {
            var text string
            if text, err = extractor.PageText(context.Background(), data, *textPage); err == nil {
                fmt.Println(text)
                return
            }
        } else if err == nil {
            var texts []string
            if texts, err = extractor.PageTexts(context.Background(), data); err == nil {
                fmt.Println(mupdf.Join(texts))
                return
            }
        }
        fmt.Fprintln(os.Stderr, err)
        os.Exit(1)
    }

    // Queue
    rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to connect to redis")
    }
    defer rq.Close()
    rq.ClaimIdle = cfg.Worker.JobTimeout + time.Minute

    // Status and result stores
    rs, err := store.NewRedisStatus(cfg.Queue.RedisURL, cfg.Queue.ResultTTL)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init redis status store")
    }
    defer rs.Close()
    results := store.NewResultStore(rs.Client(), cfg.Queue.ResultTTL)

    ctx, cancelBg := context.WithCancel(context.Background())
    defer cancelBg()

    uploadDir := os.Getenv("UPLOAD_DIR")
    if uploadDir == "" { uploadDir = "uploads" }

    checker := statuscheck.New(statuscheck.Options{
        Redis: rq,
        Store: st,
        S3Bucket: cfg.Storage.Bucket,
        Renderer: renderer,
        OCRVersion: ocr.Version,
    })
    orch := orchestrator.New(orchestrator.Dependencies{
        Queue: rq,
        Status: rs,
        Results: results,
        Engine: asm,
        Checker: checker,
        UploadDir: uploadDir,
    })
    mux := http.NewServeMux()
    orch.RegisterRoutes(mux)

    // Dispatcher worker (optional)
    runDispatcher := os.Getenv("RUN_DISPATCHER")
    if runDispatcher == "" || runDispatcher == "1" || runDispatcher == "true" {
        host, _ := os.Hostname()
        disp := dispatcher.New(dispatcher.Config{
            Concurrency: cfg.Worker.Concurrency,
            Consumer: fmt.Sprintf("%s-%d", host, os.Getpid()),
            JobTimeout: cfg.Worker.JobTimeout,
            MaxAttempts: cfg.Worker.JobMaxAttempts,
            RetryBaseDelay: cfg.Worker.RetryBaseDelay,
            RetryJitter: cfg.Worker.RetryJitter,
            RetryBackoffFactor: cfg.Worker.RetryBackoffFactor,
            IdemTTL: cfg.Queue.ResultTTL,
        }, dispatcher.Deps{
            Queue: rq,
            Status: rs,
            Results: results,
            Breaker: dispatcher.NewCircuitBreaker(rq.Client(), cfg.Worker.BreakerBaseBackoff, cfg.Worker.BreakerMaxBackoff),
            Runner: asm,
            Degraded: asm.WithoutRender(),
        })
        disp.Start()
        defer func() {
            sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
            defer cancel()
            _ = disp.Stop(sctx)
        }()
    }
    go dispatcher.ReportDepths(ctx, rq, 15*time.Second)
    go cleanupLoop(ctx, []string{uploadDir, cfg.Redaction.TempDir}, time.Hour)

    port := os.Getenv("PORT")
    if port == "" { port = "8080" }
    srv := &http.Server{Addr: ":"+port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

    go func(){
        log.Info().Msgf("HTTP server listening on :%s", port)
        if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = srv.Shutdown(sctx)
    cancelBg()
    fmt.Println("shutdown complete")
}

// runRequest processes a batch request file synchronously and returns the exit code.
func runRequest(asm *assembler.Assembler, path string) int {
    data, err := os.ReadFile(path)
    if err != nil {
        fmt.Fprintln(os.Stderr, err)
        return 2
    }
    var req assembler.Request
    if err := json.Unmarshal(data, &req); err != nil {
        fmt.Fprintf(os.Stderr, "invalid request: %v\n", err)
        return 2
    }
    res := asm.Process(context.Background(), req)
    printJSON(res)
    if !res.Success { return 1 }
    return 0
}

func printJSON(v any) {
    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    _ = enc.Encode(v)
}

// cleanupLoop removes stale uploads and spill files every interval.
func cleanupLoop(ctx context.Context, dirs []string, maxAge time.Duration) {
    t := time.NewTicker(maxAge / 2)
    defer t.Stop()
    for {
        for _, d := range dirs {
            orchestrator.CleanupTemps(d, orchestrator.TempPrefixes, maxAge)
        }
        select {
        case <-ctx.Done():
            return
        case <-t.C:
        }
    }
}

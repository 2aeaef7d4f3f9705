// Package orchestrator exposes the redaction service over HTTP: batch jobs
// go through the queue, analysis and detection answer synchronously.
package orchestrator

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/redactor/internal/assembler"
    "github.com/local/redactor/internal/clean"
    "github.com/local/redactor/internal/detect"
    "github.com/local/redactor/internal/dispatcher"
    "github.com/local/redactor/internal/geom"
    "github.com/local/redactor/internal/metrics"
    "github.com/local/redactor/internal/redact"
    "github.com/local/redactor/internal/statuscheck"
    "github.com/local/redactor/internal/store"
    "github.com/local/redactor/internal/verify"
)

type Queue interface {
    Enqueue(ctx context.Context, payload []byte) error
    CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type ResultStore interface {
    Load(ctx context.Context, jobID string, v any) (bool, error)
}

// Engine answers the synchronous endpoints; *assembler.Assembler implements it.
type Engine interface {
    Analyze(ctx context.Context, ref string) (assembler.Analysis, error)
    Detect(ctx context.Context, ref string, rules []detect.Rule, useOCR bool, pages []int) ([]detect.Hit, error)
}

type Checker interface {
    Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
    Queue     Queue
    Status    StatusStore
    Results   ResultStore
    Engine    Engine
    Checker   Checker
    UploadDir string
    MaxUpload int64
}

type Orchestrator struct {
    deps Dependencies
}

func New(deps Dependencies) *Orchestrator {
    if deps.MaxUpload <= 0 { deps.MaxUpload = 64 << 20 }
    return &Orchestrator{deps: deps}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.HandleFunc("/process", o.handleProcess)
    mux.HandleFunc("/process_upload", o.handleProcessUpload)
    mux.HandleFunc("/progress/", o.handleProgress)
    mux.HandleFunc("/result/", o.handleResult)
    mux.HandleFunc("/cancel", o.handleCancelJob)
    mux.HandleFunc("/analyze", o.handleAnalyze)
    mux.HandleFunc("/detect", o.handleDetect)
    mux.HandleFunc("/status", o.handleStatus)
    mux.Handle("/metrics", metrics.Handler())
}

type processResp struct {
    Status   string                 `json:"status"`
    JobID    string                 `json:"job_id"`
    Message  string                 `json:"message"`
    Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func validate(req *assembler.Request) error {
    if len(req.Files) == 0 { return fmt.Errorf("no files") }
    for i, f := range req.Files {
        if strings.TrimSpace(f.Path) == "" { return fmt.Errorf("file %d: missing path", i) }
        for _, pa := range f.Pages {
            switch pa.Action {
            case assembler.ActionKeep, assembler.ActionRedact, assembler.ActionDelete:
            default:
                return fmt.Errorf("file %d: unknown page action %q", i, pa.Action)
            }
        }
    }
    return nil
}

// enqueue records the job as queued and puts it on the stream.
func (o *Orchestrator) enqueue(ctx context.Context, jobID, source string, req assembler.Request) error {
    start := time.Now()
    _ = o.deps.Status.Set(ctx, jobID, store.Status{Status: store.StatusQueued, Progress: 0, Message: "queued", Start: &start,
        Metadata: map[string]interface{}{"files": len(req.Files), "source": source}})
    job := dispatcher.Job{ID: jobID, Request: req, Attempt: 1, IdemKey: "batch:" + jobID, Source: source, EnqueuedAt: start}
    data, err := job.Encode()
    if err != nil { return err }
    return o.deps.Queue.Enqueue(ctx, data)
}

func (o *Orchestrator) handleProcess(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost {
        w.WriteHeader(http.StatusMethodNotAllowed); return
    }
    defer r.Body.Close()
    var req assembler.Request
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
        http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest); return
    }
    if err := validate(&req); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest); return
    }
    jobID := uuid.NewString()
    if err := o.enqueue(r.Context(), jobID, "api", req); err != nil {
        log.Error().Err(err).Str("job_id", jobID).Msg("enqueue failed")
        http.Error(w, "queue unavailable", http.StatusServiceUnavailable); return
    }
    log.Info().Str("job_id", jobID).Int("files", len(req.Files)).Str("mode", req.Mode.String()).Msg("job created")
    writeJSON(w, http.StatusCreated, processResp{Status: "ok", JobID: jobID, Message: "Redaction job created",
        Metadata: map[string]interface{}{"timestamp": time.Now().Format(time.RFC3339)}})
}

// formJSON decodes an optional JSON form field into v.
func formJSON(r *http.Request, key string, v any) error {
    s := r.FormValue(key)
    if s == "" { return nil }
    if err := json.Unmarshal([]byte(s), v); err != nil { return fmt.Errorf("%s: %w", key, err) }
    return nil
}

// handleProcessUpload accepts a multipart upload (file plus optional masks,
// pages, rules, cleaning and verify JSON fields) and enqueues it.
func (o *Orchestrator) handleProcessUpload(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    r.Body = http.MaxBytesReader(w, r.Body, o.deps.MaxUpload+1<<20)
    if err := r.ParseMultipartForm(32 << 20); err != nil {
        http.Error(w, "invalid multipart form", http.StatusBadRequest); return
    }
    file, hdr, err := r.FormFile("file")
    if err != nil { http.Error(w, "missing file", http.StatusBadRequest); return }
    defer file.Close()

    var fr assembler.FileRequest
    req := assembler.Request{
        OutputDirectory: r.FormValue("output_directory"),
        Suffix:          r.FormValue("suffix"),
        UseOCR:          r.FormValue("use_ocr") == "on" || r.FormValue("use_ocr") == "true",
    }
    if m := r.FormValue("mode"); m != "" {
        if req.Mode, err = redact.ParseMode(m); err != nil {
            http.Error(w, err.Error(), http.StatusBadRequest); return
        }
    }
    var masks map[int][]geom.Mask
    var cleaning clean.Options
    var vopts verify.Options
    for _, f := range []struct {
        key string
        v   any
    }{{"masks", &masks}, {"pages", &fr.Pages}, {"rules", &req.Rules}, {"cleaning", &cleaning}, {"verify", &vopts}} {
        if err := formJSON(r, f.key, f.v); err != nil {
            http.Error(w, err.Error(), http.StatusBadRequest); return
        }
    }
    req.Cleaning, req.Verify = cleaning, vopts

    jobID := uuid.NewString()
    localPath, err := SaveUpload(o.deps.UploadDir, jobID, hdr.Filename, file)
    if err != nil {
        log.Error().Err(err).Msg("upload save failed")
        http.Error(w, "cannot save upload", http.StatusInternalServerError); return
    }
    fr.Path, fr.MasksByPage = localPath, masks
    req.Files = []assembler.FileRequest{fr}
    if err := validate(&req); err != nil {
        http.Error(w, err.Error(), http.StatusBadRequest); return
    }
    if err := o.enqueue(r.Context(), jobID, "upload", req); err != nil {
        log.Error().Err(err).Str("job_id", jobID).Msg("enqueue failed")
        http.Error(w, "queue unavailable", http.StatusServiceUnavailable); return
    }
    log.Info().Str("job_id", jobID).Str("file", hdr.Filename).Int64("size", hdr.Size).Msg("upload job created")
    writeJSON(w, http.StatusCreated, processResp{Status: "ok", JobID: jobID, Message: "Upload job created"})
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/progress/")
    st, ok, err := o.deps.Status.Get(r.Context(), id)
    if err != nil { http.Error(w, "error", http.StatusInternalServerError); return }
    if !ok {
        http.Error(w, "not found", http.StatusNotFound); return
    }
    writeJSON(w, http.StatusOK, map[string]any{
        "success":    st.Status == store.StatusCompleted,
        "job_id":     id,
        "status":     st.Status,
        "progress":   st.Progress,
        "message":    st.Message,
        "start_time": st.Start,
        "end_time":   st.End,
        "metadata":   st.Metadata,
    })
}

// handleResult returns the batch Result once the job is terminal, 202 before.
func (o *Orchestrator) handleResult(w http.ResponseWriter, r *http.Request) {
    id := strings.TrimPrefix(r.URL.Path, "/result/")
    st, ok, err := o.deps.Status.Get(r.Context(), id)
    if err != nil { http.Error(w, "error", http.StatusInternalServerError); return }
    if !ok { http.Error(w, "not found", http.StatusNotFound); return }
    if !store.Terminal(st.Status) {
        writeJSON(w, http.StatusAccepted, map[string]any{"job_id": id, "status": st.Status, "progress": st.Progress})
        return
    }
    var res assembler.Result
    found, err := o.deps.Results.Load(r.Context(), id, &res)
    if err != nil { http.Error(w, "error", http.StatusInternalServerError); return }
    if !found { http.Error(w, "result not available", http.StatusNotFound); return }
    writeJSON(w, http.StatusOK, res)
}

type cancelReq struct {
    JobID  string `json:"job_id"`
    Reason string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req cancelReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil { http.Error(w, "invalid json", http.StatusBadRequest); return }
    if req.JobID == "" { http.Error(w, "missing job_id", http.StatusBadRequest); return }
    st, ok, _ := o.deps.Status.Get(r.Context(), req.JobID)
    if ok && store.Terminal(st.Status) {
        http.Error(w, "job already "+st.Status, http.StatusConflict); return
    }
    if err := o.deps.Queue.CancelJob(r.Context(), req.JobID); err != nil {
        http.Error(w, "cancel failed", http.StatusInternalServerError); return
    }
    st.Status = store.StatusCancelled
    st.Progress = 0
    if req.Reason != "" { st.Message = fmt.Sprintf("Cancelled: %s", req.Reason) } else { st.Message = "Cancelled" }
    now := time.Now()
    st.End = &now
    _ = o.deps.Status.Set(r.Context(), req.JobID, st)
    writeJSON(w, http.StatusOK, map[string]any{"success": true, "job_id": req.JobID, "status": store.StatusCancelled})
}

type analyzeReq struct {
    Path string `json:"path"`
}

func (o *Orchestrator) handleAnalyze(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req analyzeReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
        http.Error(w, "missing path", http.StatusBadRequest); return
    }
    an, err := o.deps.Engine.Analyze(r.Context(), req.Path)
    if err != nil {
        log.Warn().Err(err).Str("path", req.Path).Msg("analyze failed")
        http.Error(w, err.Error(), http.StatusUnprocessableEntity); return
    }
    writeJSON(w, http.StatusOK, an)
}

type detectReq struct {
    Path   string        `json:"path"`
    Rules  []detect.Rule `json:"rules"`
    UseOCR bool          `json:"use_ocr"`
    Pages  []int         `json:"pages,omitempty"`
}

type detectResp struct {
    Hits        []detect.Hit        `json:"hits"`
    MasksByPage map[int][]geom.Mask `json:"masks_by_page"`
}

func (o *Orchestrator) handleDetect(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req detectReq
    if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
        http.Error(w, "missing path", http.StatusBadRequest); return
    }
    if len(req.Rules) == 0 { http.Error(w, "missing rules", http.StatusBadRequest); return }
    hits, err := o.deps.Engine.Detect(r.Context(), req.Path, req.Rules, req.UseOCR, req.Pages)
    if err != nil {
        http.Error(w, err.Error(), http.StatusUnprocessableEntity); return
    }
    resp := detectResp{Hits: hits, MasksByPage: detect.Masks(hits)}
    if resp.Hits == nil { resp.Hits = []detect.Hit{} }
    writeJSON(w, http.StatusOK, resp)
}

func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
    if o.deps.Checker == nil { http.Error(w, "status checks not configured", http.StatusNotImplemented); return }
    writeJSON(w, http.StatusOK, o.deps.Checker.Summary(r.Context()))
}

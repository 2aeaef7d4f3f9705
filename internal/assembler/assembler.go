// Package assembler runs redaction batches: it resolves each input, applies
// masks with the selected strategy, deletes pages, cleans, stamps provenance
// and writes the output.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/detect"
	"github.com/local/redactor/internal/filetype"
	"github.com/local/redactor/internal/metrics"
	"github.com/local/redactor/internal/mupdf"
	"github.com/local/redactor/internal/pdfdoc"
	"github.com/local/redactor/internal/redact"
	"github.com/local/redactor/internal/storage"
	"github.com/local/redactor/internal/verify"
)

// Config holds batch defaults.
type Config struct {
	Suffix     string // used when a request has none
	OutputDir  string // used when a request has none
	Optimize   bool
	Provenance pdfdoc.Provenance
}

// Deps are the collaborators. Redactor and Store are required; the rest are optional.
type Deps struct {
	Redactor  *redact.Redactor
	Store     *storage.Store
	Detector  *detect.Detector
	Verifier  *verify.Verifier
	Extractor *mupdf.Extractor
}

// Assembler processes batches. It keeps no per-file state, so one value
// can serve concurrent batches.
type Assembler struct {
	cfg     Config
	deps    Deps
	types   *filetype.Detector
	formats map[filetype.Kind]Format
}

// New returns an Assembler.
func New(cfg Config, deps Deps) *Assembler {
	a := &Assembler{cfg: cfg, deps: deps, types: filetype.New()}
	a.formats = map[filetype.Kind]Format{
		filetype.KindPDF:  pdfFormat{a},
		filetype.KindText: textFormat{a},
	}
	return a
}

// WithoutRender returns an Assembler whose SafeRender steps fail at once and
// fall back to BlackOverlay.
func (a *Assembler) WithoutRender() *Assembler {
	deps := a.deps
	deps.Redactor = a.deps.Redactor.WithoutRender()
	return New(a.cfg, deps)
}

// Job is one file of a batch, already fetched.
type Job struct {
	Req    FileRequest
	Batch  *Request
	Name   string // base name of the input
	Data   []byte
	Format string
}

// outputName builds <stem><suffix><ext>.
func (j *Job) outputName(ext string) string {
	stem := strings.TrimSuffix(j.Name, filepath.Ext(j.Name))
	if stem == "" {
		stem = "output"
	}
	return stem + j.Batch.Suffix + ext
}

// Format processes one kind of input.
type Format interface {
	Name() string
	Process(ctx context.Context, j *Job) (FileReport, error)
}

// ProgressFunc is told after each file how many of total are done.
type ProgressFunc func(done, total int, file string)

// Process runs a batch. Files are handled one after another; a failing file
// is reported in Errors as "<filename>: <err>" and the batch continues.
func (a *Assembler) Process(ctx context.Context, req Request) Result {
	return a.ProcessWithProgress(ctx, req, nil)
}

// ProcessWithProgress is Process with a progress callback, which may be nil.
func (a *Assembler) ProcessWithProgress(ctx context.Context, req Request, progress ProgressFunc) Result {
	res := Result{ProcessedFiles: []string{}, Errors: []string{}}
	if req.OutputDirectory == "" {
		req.OutputDirectory = a.cfg.OutputDir
	}
	if req.Suffix == "" {
		req.Suffix = a.cfg.Suffix
	}
	for n, fr := range req.Files {
		name := storage.Name(fr.Path)
		if err := ctx.Err(); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
			res.Failures = append(res.Failures, err)
			continue
		}
		start := time.Now()
		rep, err := a.processFile(ctx, &req, fr, name)
		result := "success"
		if err != nil {
			result = "error"
			log.Error().Err(err).Str("file", name).Msg("file failed")
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", name, err))
			res.Failures = append(res.Failures, err)
		} else {
			res.ProcessedFiles = append(res.ProcessedFiles, rep.Output)
			res.Files = append(res.Files, rep)
			for _, w := range rep.Warnings {
				res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", name, w))
			}
		}
		metrics.ObserveFile(rep.Format, result, time.Since(start))
		if progress != nil {
			progress(n+1, len(req.Files), name)
		}
	}
	res.Success = len(res.Errors) == 0
	log.Info().
		Int("files", len(req.Files)).
		Int("processed", len(res.ProcessedFiles)).
		Int("errors", len(res.Errors)).
		Msg("batch complete")
	return res
}

func (a *Assembler) processFile(ctx context.Context, req *Request, fr FileRequest, name string) (FileReport, error) {
	rep := FileReport{Input: fr.Path, Format: "unknown"}
	data, err := a.deps.Store.Fetch(ctx, fr.Path)
	if err != nil {
		return rep, &redact.LoadError{File: name, Err: err}
	}
	info := a.types.Detect(data, name)
	f, ok := a.formats[info.Kind]
	if !info.Supported() || !ok {
		return rep, fmt.Errorf("unsupported input: %s", info.Description)
	}
	rep.Format = f.Name()
	out, err := f.Process(ctx, &Job{Req: fr, Batch: req, Name: name, Data: data, Format: f.Name()})
	out.Input, out.Format = fr.Path, f.Name()
	return out, err
}

// load fetches and parses a PDF reference.
func (a *Assembler) load(ctx context.Context, ref string) (*pdfdoc.Document, error) {
	data, err := a.deps.Store.Fetch(ctx, ref)
	if err != nil {
		return nil, &redact.LoadError{File: storage.Name(ref), Err: err}
	}
	doc, err := pdfdoc.Load(data)
	if err != nil {
		return nil, &redact.LoadError{File: storage.Name(ref), Err: err}
	}
	return doc, nil
}

// Detect runs the rule detector over a stored document.
func (a *Assembler) Detect(ctx context.Context, ref string, rules []detect.Rule, useOCR bool, pages []int) ([]detect.Hit, error) {
	if a.deps.Detector == nil {
		return nil, errors.New("detection is not configured")
	}
	doc, err := a.load(ctx, ref)
	if err != nil {
		return nil, err
	}
	return a.deps.Detector.Detect(ctx, doc, rules, useOCR, pages)
}

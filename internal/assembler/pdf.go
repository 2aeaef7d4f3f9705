package assembler

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/clean"
	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/detect"
	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/pdfdoc"
	"github.com/local/redactor/internal/redact"
)

type pdfFormat struct{ a *Assembler }

func (pdfFormat) Name() string { return "pdf" }

// Process redacts, deletes, cleans, stamps and writes one PDF.
func (f pdfFormat) Process(ctx context.Context, j *Job) (FileReport, error) {
	a := f.a
	rep := FileReport{}
	lg := log.With().Str("file", j.Name).Logger()

	doc, err := pdfdoc.Load(j.Data)
	if err != nil {
		return rep, &redact.LoadError{File: j.Name, Err: err}
	}

	masks := make(map[int][]geom.Mask, len(j.Req.MasksByPage))
	for i, m := range j.Req.MasksByPage {
		masks[i] = append([]geom.Mask(nil), m...)
	}
	var deletions []int
	var redactPages []int
	for _, pa := range j.Req.Pages {
		switch pa.Action {
		case ActionDelete:
			deletions = append(deletions, pa.Index)
		case ActionRedact:
			redactPages = append(redactPages, pa.Index)
		case ActionKeep, "":
		default:
			rep.Warnings = append(rep.Warnings, fmt.Sprintf("page %d: unknown action %q ignored", pa.Index, pa.Action))
		}
	}

	if len(j.Batch.Rules) > 0 {
		if a.deps.Detector == nil {
			rep.Warnings = append(rep.Warnings, "rules given but detection is not configured")
		} else {
			hits, err := a.deps.Detector.Detect(ctx, doc, j.Batch.Rules, j.Batch.UseOCR, redactPages)
			if err != nil {
				return rep, fmt.Errorf("detect: %w", err)
			}
			rep.Detected = len(hits)
			for i, m := range detect.Masks(hits) {
				masks[i] = append(masks[i], m...)
			}
			lg.Info().Int("hits", len(hits)).Msg("rules matched")
		}
	}

	var terms []string
	if j.Batch.Verify.Any() {
		terms = underMasks(doc, masks)
	}

	out, err := a.deps.Redactor.RedactFile(ctx, doc, j.Name, masks, j.Batch.Mode)
	rep.Strategy, rep.Pages, rep.RenderFailed = out.Strategy, out.Pages, out.RenderFailed
	rep.Warnings = append(rep.Warnings, out.Warnings...)
	if err != nil {
		return rep, err
	}

	if len(deletions) > 0 {
		n, err := doc.DeletePages(deletions)
		if err != nil {
			return rep, fmt.Errorf("delete pages: %w", err)
		}
		rep.Deleted = n
	}

	if j.Batch.Cleaning.Any() {
		results, errs := clean.Apply(doc, j.Batch.Cleaning)
		rep.Cleaned = results
		for _, e := range errs {
			rep.Warnings = append(rep.Warnings, e.Error())
		}
	}

	if err := doc.StampProvenance(a.cfg.Provenance); err != nil {
		rep.Warnings = append(rep.Warnings, fmt.Sprintf("provenance: %v", err))
	}
	if a.cfg.Optimize {
		if err := doc.Optimize(); err != nil {
			lg.Warn().Err(err).Msg("optimize failed, writing unoptimized")
		}
	}
	data, err := doc.Bytes()
	if err != nil {
		return rep, fmt.Errorf("write: %w", err)
	}
	rep.Output, err = a.deps.Store.Save(ctx, j.Batch.OutputDirectory, j.outputName(".pdf"), data, "application/pdf")
	if err != nil {
		return rep, err
	}

	if j.Batch.Verify.Any() && a.deps.Verifier != nil {
		res := a.deps.Verifier.Verify(ctx, data, terms, shift(maskedPages(masks), deletions), j.Batch.Verify)
		rep.Verification = &res
		rep.Warnings = append(rep.Warnings, res.Warnings...)
	}
	lg.Info().Str("output", rep.Output).Int("deleted", rep.Deleted).Msg("file written")
	return rep, nil
}

// underMasks returns the text shown under the masks before they are applied.
func underMasks(doc *pdfdoc.Document, masks map[int][]geom.Mask) []string {
	var out []string
	for _, i := range maskedPages(masks) {
		p, err := doc.Page(i + 1)
		if err != nil {
			continue
		}
		data, err := doc.Content(p)
		if err != nil {
			continue
		}
		texts, err := content.TextUnder(data, geom.MapMasks(masks[i], p.Box))
		if err != nil {
			continue
		}
		out = append(out, texts...)
	}
	return out
}

func maskedPages(masks map[int][]geom.Mask) []int {
	var idx []int
	for i, m := range masks {
		if len(m) > 0 {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return idx
}

// shift maps pre-deletion indices to post-deletion ones, dropping deleted pages.
func shift(pages, deleted []int) []int {
	gone := make(map[int]bool, len(deleted))
	for _, d := range deleted {
		gone[d] = true
	}
	var out []int
	for _, p := range pages {
		if gone[p] {
			continue
		}
		n := p
		for d := range gone {
			if d < p {
				n--
			}
		}
		out = append(out, n)
	}
	return out
}

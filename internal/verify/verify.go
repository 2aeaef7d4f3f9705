// Package verify re-reads a written document and checks that redacted
// text can no longer be found in it.
package verify

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/unicode/norm"

	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/imagerender"
	"github.com/local/redactor/internal/mupdf"
	"github.com/local/redactor/internal/ocr"
	"github.com/local/redactor/internal/pdfdoc"
)

// Options select the checks.
type Options struct {
	TextSearch  bool `json:"text_search"`
	OCRSample   bool `json:"ocr_sample"`
	SamplePages int  `json:"sample_pages,omitempty"` // OCR page cap, default 3
}

// Any reports whether a check is enabled.
func (o Options) Any() bool { return o.TextSearch || o.OCRSample }

// Result of a verification. OK is false when a term survived or a check could not run.
type Result struct {
	OK       bool     `json:"ok"`
	Checked  []string `json:"checked"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *Result) warn(format string, args ...any) {
	r.OK = false
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Verifier runs the checks. Every collaborator is optional.
type Verifier struct {
	extractor *mupdf.Extractor
	renderer  imagerender.Renderer
	engine    ocr.Engine
	dpi       float64
}

// New returns a Verifier.
func New(extractor *mupdf.Extractor, renderer imagerender.Renderer, engine ocr.Engine, dpi float64) *Verifier {
	if dpi <= 0 {
		dpi = 150
	}
	return &Verifier{extractor: extractor, renderer: renderer, engine: engine, dpi: dpi}
}

// minTermLen skips terms too short to be meaningful after normalization.
const minTermLen = 3

// Terms normalizes and deduplicates the strings that must not survive.
func Terms(raw []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range raw {
		k := squash(s)
		if len([]rune(k)) < minTermLen || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// squash NFKC-normalizes s and drops whitespace and NUL bytes, so that line
// breaks or spacing differences between extractors do not hide a match.
func squash(s string) string {
	s = norm.NFKC.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == 0 {
			return -1
		}
		return r
	}, s)
}

// Verify checks output. terms are the texts that were under the masks;
// pages are the 0-based masked pages, used to pick OCR samples.
func (v *Verifier) Verify(ctx context.Context, output []byte, terms []string, pages []int, opts Options) Result {
	res := Result{OK: true, Checked: []string{}}
	terms = Terms(terms)
	if opts.TextSearch {
		res.Checked = append(res.Checked, "text_search")
		texts, err := v.pageTexts(ctx, output)
		if err != nil {
			res.warn("text_search: %v", err)
		} else {
			search(&res, "text", texts, terms)
		}
	}
	if opts.OCRSample {
		res.Checked = append(res.Checked, "ocr_sample")
		v.ocrSample(ctx, &res, output, terms, pages, opts.SamplePages)
	}
	log.Debug().Bool("ok", res.OK).Int("terms", len(terms)).Strs("checked", res.Checked).Msg("verification complete")
	return res
}

func search(res *Result, source string, texts map[int]string, terms []string) {
	idx := make([]int, 0, len(texts))
	for i := range texts {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		hay := squash(texts[i])
		for _, t := range terms {
			if strings.Contains(hay, t) {
				res.warn("%s on page %d still contains redacted text %q", source, i, t)
			}
		}
	}
}

// pageTexts prefers MuPDF extraction and falls back to the content interpreter.
func (v *Verifier) pageTexts(ctx context.Context, output []byte) (map[int]string, error) {
	if v.extractor != nil {
		texts, err := v.extractor.PageTexts(ctx, output)
		if err == nil {
			out := make(map[int]string, len(texts))
			for i, t := range texts {
				out[i] = t
			}
			return out, nil
		}
		log.Warn().Err(err).Msg("verify: mupdf extraction failed, interpreting content streams")
	}
	doc, err := pdfdoc.Load(output)
	if err != nil {
		return nil, err
	}
	out := make(map[int]string, doc.PageCount())
	for i := 0; i < doc.PageCount(); i++ {
		p, err := doc.Page(i + 1)
		if err != nil {
			return nil, err
		}
		data, err := doc.Content(p)
		if err != nil {
			return nil, err
		}
		runs, err := content.Runs(data)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		var b strings.Builder
		for _, r := range runs {
			b.WriteString(r.Text())
			b.WriteByte(' ')
		}
		out[i] = b.String()
	}
	return out, nil
}

func (v *Verifier) ocrSample(ctx context.Context, res *Result, output []byte, terms []string, pages []int, limit int) {
	if v.renderer == nil || v.engine == nil {
		res.warn("ocr_sample: OCR is not available")
		return
	}
	if limit <= 0 {
		limit = 3
	}
	if len(pages) > limit {
		pages = pages[:limit]
	}
	texts := make(map[int]string, len(pages))
	for _, i := range pages {
		img, err := v.renderer.RenderPage(ctx, output, i+1, v.dpi)
		if err != nil {
			res.warn("ocr_sample: render page %d: %v", i, err)
			continue
		}
		lines, err := v.engine.Recognize(ctx, imagerender.Convert(img, imagerender.ColorGray))
		if err != nil {
			res.warn("ocr_sample: page %d: %v", i, err)
			continue
		}
		var b strings.Builder
		for _, l := range lines {
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
		texts[i] = b.String()
	}
	search(res, "ocr", texts, terms)
}

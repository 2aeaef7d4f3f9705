// Package detect finds rule matches in documents and reports them as
// page-relative boxes that can be fed back as redaction masks.
package detect

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/imagerender"
	"github.com/local/redactor/internal/ocr"
	"github.com/local/redactor/internal/pdfdoc"
)

// Hit is one match. Page is 0-based; BBox is relative to the displayed page.
type Hit struct {
	Page     int       `json:"page"`
	BBox     geom.Mask `json:"bbox"`
	RuleID   string    `json:"ruleId"`
	RuleName string    `json:"ruleName"`
	Snippet  string    `json:"snippet"`
}

// Options tune a Detector.
type Options struct {
	PathThreshold int
	OCRDPI        float64
	Padding       float64 // added around text hits, relative units
}

// Detector matches rules against page text, with OCR for pages that have none.
type Detector struct {
	opts     Options
	renderer imagerender.Renderer
	engine   ocr.Engine
}

// New returns a Detector. renderer and engine may be nil, which disables OCR.
func New(opts Options, renderer imagerender.Renderer, engine ocr.Engine) *Detector {
	if opts.PathThreshold <= 0 {
		opts.PathThreshold = content.DefaultPathThreshold
	}
	if opts.OCRDPI <= 0 {
		opts.OCRDPI = 150
	}
	if opts.Padding <= 0 {
		opts.Padding = 0.003
	}
	return &Detector{opts: opts, renderer: renderer, engine: engine}
}

// OCRAvailable reports whether OCR fallback can run.
func (d *Detector) OCRAvailable() bool { return d.renderer != nil && d.engine != nil }

// DetectFile loads path and runs Detect on it.
func (d *Detector) DetectFile(ctx context.Context, path string, rules []Rule, useOCR bool, pages []int) ([]Hit, error) {
	doc, err := pdfdoc.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Detect(ctx, doc, rules, useOCR, pages)
}

// Detect scans the given 0-based pages (all when pages is nil). Pages that
// fail to parse are skipped with a warning; invalid regex rules are skipped
// and reported in the returned error only when no rule is usable.
func (d *Detector) Detect(ctx context.Context, doc *pdfdoc.Document, rules []Rule, useOCR bool, pages []int) ([]Hit, error) {
	crs, errs := compile(rules)
	for _, err := range errs {
		log.Warn().Err(err).Msg("rule skipped")
	}
	if len(crs) == 0 {
		if len(errs) > 0 {
			return nil, errors.Join(errs...)
		}
		return nil, nil
	}

	var hits []Hit
	for _, idx := range d.targets(doc, pages) {
		if err := ctx.Err(); err != nil {
			return hits, err
		}
		p, err := doc.Page(idx + 1)
		if err != nil {
			log.Warn().Err(err).Int("page", idx).Msg("detect: page skipped")
			continue
		}
		data, err := doc.Content(p)
		if err != nil {
			log.Warn().Err(err).Int("page", idx).Msg("detect: content unreadable")
			continue
		}
		runs, _ := content.Runs(data)
		class := content.ClassifyStream(data, d.opts.PathThreshold)

		if useOCR && (class == content.ClassImageBased || len(runs) == 0) {
			if !d.OCRAvailable() {
				log.Debug().Int("page", idx).Msg("detect: page needs OCR but none is configured")
				continue
			}
			lines, err := d.recognize(ctx, doc, idx)
			if err != nil {
				log.Warn().Err(err).Int("page", idx).Msg("detect: OCR failed")
				continue
			}
			hits = append(hits, matchLines(idx, lines, crs)...)
			continue
		}
		if len(runs) == 0 {
			continue
		}
		hits = append(hits, d.matchText(idx, p.Box, buildText(runs), crs)...)
	}
	log.Info().Int("hits", len(hits)).Int("rules", len(crs)).Msg("detection complete")
	return hits, nil
}

func (d *Detector) targets(doc *pdfdoc.Document, pages []int) []int {
	n := doc.PageCount()
	if pages == nil {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out
	}
	seen := make(map[int]bool, len(pages))
	var out []int
	for _, i := range pages {
		if i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func (d *Detector) recognize(ctx context.Context, doc *pdfdoc.Document, idx int) ([]ocr.TextResult, error) {
	img, err := d.renderer.RenderPage(ctx, doc.Source(), idx+1, d.opts.OCRDPI)
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return d.engine.Recognize(ctx, imagerender.Convert(img, imagerender.ColorGray))
}

func bboxKey(m geom.Mask) string {
	return fmt.Sprintf("%.3f,%.3f,%.3f,%.3f", m.X, m.Y, m.Width, m.Height)
}

func (d *Detector) matchText(idx int, box geom.PageBox, pt *pageText, crs []compiled) []Hit {
	text := pt.String()
	seen := map[string]bool{}
	var hits []Hit
	for _, c := range crs {
		for _, s := range c.find(text) {
			matched := text[s[0]:s[1]]
			var m geom.Mask
			if r, ok := pt.span(s[0], s[1]); ok {
				m = pad(geom.UnmapRect(r, box), d.opts.Padding)
			} else {
				m = estimate(matched)
			}
			k := bboxKey(m)
			if seen[k] {
				continue
			}
			seen[k] = true
			hits = append(hits, Hit{Page: idx, BBox: m, RuleID: c.rule.ID, RuleName: c.rule.Name, Snippet: MaskSnippet(matched)})
		}
	}
	return hits
}

// matchLines reports whole OCR lines; recognized text has no glyph positions.
func matchLines(idx int, lines []ocr.TextResult, crs []compiled) []Hit {
	seen := map[string]bool{}
	var hits []Hit
	for _, l := range lines {
		text := normalize(l.Text)
		if text == "" {
			continue
		}
		for _, c := range crs {
			ok := c.matches(text)
			if !ok && c.usesDigits() {
				if compact := compactAlnum(text); compact != "" && compact != text {
					ok = c.matches(compact)
				}
			}
			if !ok {
				continue
			}
			k := bboxKey(l.BBox)
			if seen[k] {
				continue
			}
			seen[k] = true
			hits = append(hits, Hit{Page: idx, BBox: l.BBox, RuleID: c.rule.ID, RuleName: c.rule.Name, Snippet: MaskSnippet(text)})
		}
	}
	return hits
}

func pad(m geom.Mask, p float64) geom.Mask {
	return geom.Mask{
		X:      math.Max(m.X-p, 0),
		Y:      math.Max(m.Y-p, 0),
		Width:  math.Min(m.Width+2*p, 1),
		Height: math.Min(m.Height+2*p, 1),
	}
}

// estimate places a match whose glyph positions are unknown.
func estimate(s string) geom.Mask {
	w := float64(len([]rune(s))) * 0.015
	w = math.Min(math.Max(w, 0.08), 0.4)
	return geom.Mask{X: 0.05, Y: 0.5, Width: w, Height: 0.025}
}

// Masks groups hits by page, ready for a redaction request.
func Masks(hits []Hit) map[int][]geom.Mask {
	out := make(map[int][]geom.Mask)
	for _, h := range hits {
		out[h.Page] = append(out[h.Page], h.BBox)
	}
	return out
}

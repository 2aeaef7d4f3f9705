package mupdf

import (
	"context"
	"math/rand"
	"regexp"
	"sort"
	"time"
)

// PageProbe captures the result of probing a single page.
type PageProbe struct {
	PageIndex int    `json:"page_index"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Diagnostics describes a text-extractability check.
type Diagnostics struct {
	TotalPages         int         `json:"total_pages"`
	SampledPages       []int       `json:"sampled_pages"`
	TotalCharsInSample int         `json:"total_chars_in_sample"`
	Threshold          int         `json:"threshold"`
	Probes             []PageProbe `json:"probes"`
	HasExtractableText bool        `json:"has_extractable_text"`
	DurationMs         int64       `json:"duration_ms"`
}

// DefaultThreshold is used when a non-positive threshold is passed in.
const DefaultThreshold = 300

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Probe samples pages and reports whether the document carries extractable
// text. pages selects explicit 0-based indices; nil samples first, middle,
// last and up to two random pages.
func (e *Extractor) Probe(ctx context.Context, src []byte, threshold int, pages []int) (*Diagnostics, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	start := time.Now()
	doc, done, err := e.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer done()

	total := doc.NumPage()
	diag := &Diagnostics{TotalPages: total, Threshold: threshold, SampledPages: []int{}}
	if total <= 0 {
		diag.DurationMs = time.Since(start).Milliseconds()
		return diag, nil
	}
	if pages != nil {
		diag.SampledPages = clampPages(pages, total)
	} else {
		diag.SampledPages = sampleIndices(total)
	}

	for _, idx := range diag.SampledPages {
		probe := PageProbe{PageIndex: idx}
		text, err := doc.Text(idx)
		if err != nil {
			probe.Err = err.Error()
			diag.Probes = append(diag.Probes, probe)
			continue
		}
		// count runes, not bytes
		probe.CharCount = len([]rune(whitespaceRegex.ReplaceAllString(text, "")))
		diag.TotalCharsInSample += probe.CharCount
		diag.Probes = append(diag.Probes, probe)
		if diag.TotalCharsInSample >= threshold {
			break
		}
	}
	diag.HasExtractableText = diag.TotalCharsInSample >= threshold
	diag.DurationMs = time.Since(start).Milliseconds()
	return diag, nil
}

// sampleIndices: all pages up to 5, otherwise first, mid, last plus random
// distinct pages up to 5.
func sampleIndices(total int) []int {
	if total <= 5 {
		idx := make([]int, total)
		for i := range idx {
			idx[i] = i
		}
		return idx
	}
	base := map[int]struct{}{0: {}, total / 2: {}, total - 1: {}}
	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
	for len(base) < 5 {
		base[rnd.Intn(total)] = struct{}{}
	}
	out := make([]int, 0, len(base))
	for i := range base {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

func clampPages(pages []int, total int) []int {
	m := make(map[int]struct{})
	for _, p := range pages {
		if p >= 0 && p < total {
			m[p] = struct{}{}
		}
	}
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

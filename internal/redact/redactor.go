package redact

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/imagerender"
	"github.com/local/redactor/internal/metrics"
	"github.com/local/redactor/internal/pdfdoc"
)

// Options tune the strategies. Zero values select the defaults.
type Options struct {
	PathThreshold int
	DPI           float64 // masked pages in SafeRender
	FidelityScale float64 // unmasked pages render at 72*FidelityScale dpi
	JPEGQuality   int
	SpillDir      string // when set, SafeRender keeps rasters on disk until assembly
	DisableRender bool   // SafeRender fails immediately, e.g. while the render breaker is open
}

func (o Options) withDefaults() Options {
	if o.PathThreshold <= 0 {
		o.PathThreshold = content.DefaultPathThreshold
	}
	if o.DPI <= 0 {
		o.DPI = 150
	}
	if o.FidelityScale <= 0 {
		o.FidelityScale = 2
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = 90
	}
	return o
}

// Redactor applies redaction strategies to loaded documents.
type Redactor struct {
	opts     Options
	renderer imagerender.Renderer
}

// New returns a Redactor. renderer may be nil, in which case SafeRender
// always degrades to BlackOverlay.
func New(opts Options, renderer imagerender.Renderer) *Redactor {
	return &Redactor{opts: opts.withDefaults(), renderer: renderer}
}

// Options returns the effective options.
func (r *Redactor) Options() Options { return r.opts }

// WithoutRender returns a copy whose SafeRender always reports the backend
// unavailable, so files go straight to the overlay fallback.
func (r *Redactor) WithoutRender() *Redactor {
	opts := r.opts
	opts.DisableRender = true
	return &Redactor{opts: opts, renderer: r.renderer}
}

// Classify loads the page's content and classifies it.
func (r *Redactor) Classify(doc *pdfdoc.Document, index int) (PageContentType, error) {
	p, err := doc.Page(index + 1)
	if err != nil {
		return content.ClassEmpty, err
	}
	data, err := doc.Content(p)
	if err != nil {
		return content.ClassEmpty, err
	}
	return content.ClassifyStream(data, r.opts.PathThreshold), nil
}

// FileOutcome summarizes the redaction of one document.
type FileOutcome struct {
	Strategy string         `json:"strategy"` // safe_render or per_page
	Pages    map[int]string `json:"pages"`    // 0-based page index -> strategy that ran
	Warnings []string       `json:"warnings,omitempty"`
	// RenderFailed is set when the render backend itself failed, not when rendering was disabled.
	RenderFailed bool `json:"render_failed,omitempty"`
}

// masked returns the page indices that carry at least one mask and exist in doc, ascending.
func masked(doc *pdfdoc.Document, masksByPage map[int][]geom.Mask) []int {
	var idx []int
	for i, m := range masksByPage {
		if len(m) == 0 || i < 0 || i >= doc.PageCount() {
			continue
		}
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// RedactFile redacts every masked page of doc. When the file resolves to
// SafeRender the chain [SafeRender, BlackOverlay] runs over the whole file;
// otherwise each masked page runs its own chain.
func (r *Redactor) RedactFile(ctx context.Context, doc *pdfdoc.Document, file string, masksByPage map[int][]geom.Mask, mode Mode) (FileOutcome, error) {
	lg := log.With().Str("file", file).Logger()
	out := FileOutcome{Pages: map[int]string{}}
	pages := masked(doc, masksByPage)
	for i := range masksByPage {
		if i < 0 || i >= doc.PageCount() {
			out.Warnings = append(out.Warnings, fmt.Sprintf("page index %d out of range (0..%d), skipped", i, doc.PageCount()-1))
		}
	}

	classes := make(map[int]PageContentType, len(pages))
	list := make([]PageContentType, 0, len(pages))
	for _, i := range pages {
		c, err := r.Classify(doc, i)
		if err != nil {
			lg.Warn().Err(err).Int("page", i).Msg("classify failed, treating page as empty")
		}
		classes[i] = c
		list = append(list, c)
	}

	if ResolveFile(mode, list) == ModeSafeRender {
		out.Strategy = ModeSafeRender.String()
		var renderErr error
		chain := Chain{
			{Name: ModeSafeRender.String(), Run: func(ctx context.Context) error {
				renderErr = r.SafeRender(ctx, doc, file, masksByPage)
				return renderErr
			}},
			{Name: ModeBlackOverlay.String(), Run: func(ctx context.Context) error {
				for _, i := range pages {
					if err := r.overlayPage(doc, file, i, masksByPage[i]); err != nil {
						return err
					}
				}
				return nil
			}},
		}
		oc, err := chain.Run(ctx)
		out.Warnings = append(out.Warnings, oc.Warnings...)
		out.RenderFailed = IsRenderUnavailable(renderErr) && !errors.Is(renderErr, errRenderDisabled)
		if err != nil {
			return out, err
		}
		for _, i := range pages {
			out.Pages[i] = oc.Ran
			metrics.IncPage(oc.Ran)
		}
		lg.Info().Str("strategy", oc.Ran).Int("pages", len(pages)).Msg("file redacted")
		return out, nil
	}

	out.Strategy = "per_page"
	for _, i := range pages {
		oc, err := r.RedactPage(ctx, doc, file, i, masksByPage[i], Resolve(mode, classes[i]))
		out.Warnings = append(out.Warnings, oc.Warnings...)
		if err != nil {
			if IsFatal(err) || ctx.Err() != nil {
				return out, err
			}
			lg.Warn().Err(err).Int("page", i).Msg("page redaction failed")
			out.Warnings = append(out.Warnings, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		out.Pages[i] = oc.Ran
		metrics.IncPage(oc.Ran)
		lg.Debug().Int("page", i).Str("class", classes[i].String()).Str("strategy", oc.Ran).Msg("page redacted")
	}
	return out, nil
}

// RedactPage runs the chain for an already resolved page mode. index is 0-based.
func (r *Redactor) RedactPage(ctx context.Context, doc *pdfdoc.Document, file string, index int, masks []geom.Mask, mode Mode) (Outcome, error) {
	overlay := Step{Name: ModeBlackOverlay.String(), Run: func(context.Context) error {
		return r.overlayPage(doc, file, index, masks)
	}}
	var chain Chain
	switch mode {
	case ModeTextReplace, ModeAuto:
		chain = Chain{{Name: ModeTextReplace.String(), Run: func(context.Context) error {
			return r.textReplacePage(doc, file, index, masks)
		}}, overlay}
	case ModeImage:
		chain = Chain{{Name: ModeImage.String(), Run: func(context.Context) error {
			n, err := r.RedactImages(doc, file, index, masks)
			if err != nil {
				return err
			}
			if n == 0 {
				return ErrNoPaintableImage
			}
			return nil
		}}, overlay}
	case ModeSafeRender:
		// page-level requests for a flattening strategy only reach here after the file chain was skipped
		chain = Chain{overlay}
	default:
		chain = Chain{overlay}
	}
	return chain.Run(ctx)
}

type pageTarget struct {
	page  *pdfdoc.Page
	data  []byte
	rects []geom.Rect
}

func (r *Redactor) target(doc *pdfdoc.Document, index int, masks []geom.Mask) (*pageTarget, error) {
	p, err := doc.Page(index + 1)
	if err != nil {
		return nil, err
	}
	data, err := doc.Content(p)
	if err != nil {
		return nil, err
	}
	return &pageTarget{page: p, data: data, rects: geom.MapMasks(masks, p.Box)}, nil
}

// textReplacePage blanks intersecting strings and then lays the overlay on
// top, since glyph boxes are estimates and encoded fonts may still show.
func (r *Redactor) textReplacePage(doc *pdfdoc.Document, file string, index int, masks []geom.Mask) error {
	t, err := r.target(doc, index, masks)
	if err != nil {
		return err
	}
	if len(t.rects) == 0 {
		return nil
	}
	rewritten, n, err := content.Rewrite(t.data, t.rects)
	if err != nil {
		return fmt.Errorf("rewrite page %d: %w", index+1, err)
	}
	if err := doc.SetContent(t.page, content.Overlay(rewritten, t.rects)); err != nil {
		return &StreamEncodeError{File: file, Err: err}
	}
	log.Debug().Str("file", file).Int("page", index).Int("operands", n).Int("rects", len(t.rects)).Msg("text replaced")
	return nil
}

func (r *Redactor) overlayPage(doc *pdfdoc.Document, file string, index int, masks []geom.Mask) error {
	t, err := r.target(doc, index, masks)
	if err != nil {
		return err
	}
	if len(t.rects) == 0 {
		return nil
	}
	if err := doc.SetContent(t.page, content.Overlay(t.data, t.rects)); err != nil {
		return &StreamEncodeError{File: file, Err: err}
	}
	return nil
}

// logger is a small helper so strategies log with the same fields.
func logger(file string, index int) *zerolog.Logger {
	l := log.With().Str("file", file).Int("page", index).Logger()
	return &l
}

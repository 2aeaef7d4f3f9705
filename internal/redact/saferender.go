package redact

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"

	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/imagerender"
	"github.com/local/redactor/internal/metrics"
	"github.com/local/redactor/internal/pdfdoc"
)

var errRenderDisabled = errors.New("rendering disabled")

type raster struct {
	jpeg []byte
	path string
	w, h int
}

func (rs *raster) bytes() ([]byte, error) {
	if rs.path == "" {
		return rs.jpeg, nil
	}
	b, err := os.ReadFile(rs.path)
	if err != nil {
		return nil, err
	}
	// the spill file sits in a shared directory until it is read back
	w, h, err := imagerender.GetImageDimensions(b)
	if err != nil {
		return nil, err
	}
	if w != rs.w || h != rs.h {
		return nil, fmt.Errorf("spilled raster is %dx%d, rendered %dx%d", w, h, rs.w, rs.h)
	}
	return b, nil
}

// TempName builds a per-process temporary file name: <prefix>-<pid>-<index><ext>.
func TempName(dir, prefix string, index int, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%d-%d%s", prefix, os.Getpid(), index, ext))
}

// SafeRender flattens every page of doc into a JPEG. Masked pages are
// painted black at the mask positions. All pages are rasterized before any
// page is replaced, so on error the document is left untouched.
func (r *Redactor) SafeRender(ctx context.Context, doc *pdfdoc.Document, file string, masksByPage map[int][]geom.Mask) error {
	if r.renderer == nil || r.opts.DisableRender {
		return &RenderBackendUnavailable{File: file, Err: errRenderDisabled}
	}
	n := doc.PageCount()
	rasters := make([]*raster, n)
	defer func() {
		for i, rs := range rasters {
			if rs == nil || rs.path == "" {
				continue
			}
			if err := os.Remove(rs.path); err != nil && !os.IsNotExist(err) {
				logger(file, i).Warn().Err(err).Str("path", rs.path).Msg("failed to remove temp raster")
			}
		}
	}()

	for i := 0; i < n; i++ {
		masks := masksByPage[i]
		dpi := 72 * r.opts.FidelityScale
		if len(masks) > 0 {
			dpi = r.opts.DPI
		}
		start := time.Now()
		img, err := r.renderer.RenderPage(ctx, doc.Source(), i+1, dpi)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &RenderBackendUnavailable{File: file, Page: i + 1, Err: err}
		}
		metrics.ObserveRender(time.Since(start))
		b := img.Bounds()
		for _, m := range masks {
			pr := geom.PixelRect(m, b.Dx(), b.Dy()).Add(b.Min)
			draw.Draw(img, pr, image.Black, image.Point{}, draw.Src)
		}
		jpg, err := imagerender.EncodeJPEG(img, r.opts.JPEGQuality)
		if err != nil {
			return &StreamEncodeError{File: file, Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
		rs := &raster{jpeg: jpg, w: b.Dx(), h: b.Dy()}
		if r.opts.SpillDir != "" {
			path := TempName(r.opts.SpillDir, "redact-page", i, ".jpg")
			if err := os.WriteFile(path, jpg, 0o600); err != nil {
				logger(file, i).Warn().Err(err).Msg("cannot spill raster, keeping it in memory")
			} else {
				rs.jpeg, rs.path = nil, path
			}
		}
		rasters[i] = rs
		logger(file, i).Debug().Float64("dpi", dpi).Int("masks", len(masks)).Int("jpeg_size", len(jpg)).Msg("page rasterized")
	}

	for i, rs := range rasters {
		jpg, err := rs.bytes()
		if err != nil {
			return &StreamEncodeError{File: file, Err: fmt.Errorf("page %d raster: %w", i+1, err)}
		}
		p, err := doc.Page(i + 1)
		if err != nil {
			return &StreamEncodeError{File: file, Err: err}
		}
		if err := doc.ReplaceWithImage(p, jpg, rs.w, rs.h); err != nil {
			return &StreamEncodeError{File: file, Err: fmt.Errorf("replace page %d: %w", i+1, err)}
		}
	}
	log.Info().Str("file", file).Int("pages", n).Float64("dpi", r.opts.DPI).Msg("document flattened")
	return nil
}

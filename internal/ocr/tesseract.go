//go:build ocr

package ocr

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/limiter"
)

// Tesseract recognizes text lines through gosseract.
// Tesseract keeps process-wide state, so calls share the native gate with MuPDF.
type Tesseract struct {
	opts Options
	gate *limiter.Gate
}

// New returns a Tesseract engine. A nil gate means limiter.Native().
func New(opts Options, gate *limiter.Gate) (*Tesseract, error) {
	if gate == nil {
		gate = limiter.Native()
	}
	if len(opts.Languages) == 0 {
		opts.Languages = []string{"eng"}
	}
	if Version() == "" {
		return nil, fmt.Errorf("tesseract: no version reported")
	}
	return &Tesseract{opts: opts, gate: gate}, nil
}

// Version reports the linked tesseract version.
func Version() string {
	c := gosseract.NewClient()
	defer c.Close()
	return c.Version()
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]TextResult, error) {
	img = Downscale(img, t.opts.MaxSide)
	data, err := EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("encode raster: %w", err)
	}
	release, err := t.gate.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	c := gosseract.NewClient()
	defer c.Close()
	if err := c.SetLanguage(t.opts.Languages...); err != nil {
		return nil, fmt.Errorf("set languages: %w", err)
	}
	if t.opts.DPI > 0 {
		if err := c.SetVariable(gosseract.SettableVariable("user_defined_dpi"), fmt.Sprint(int(t.opts.DPI))); err != nil {
			return nil, fmt.Errorf("set dpi: %w", err)
		}
	}
	if err := c.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("recognize: %w", err)
	}
	out := make([]TextResult, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		out = append(out, TextResult{
			Text:       text,
			Confidence: b.Confidence / 100.0,
			BBox:       Normalize(b.Box, img.Bounds()),
		})
	}
	log.Debug().Int("lines", len(out)).Msg("ocr page recognized")
	return out, nil
}

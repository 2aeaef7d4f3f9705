//go:build !ocr

package ocr

import (
	"context"
	"image"

	"github.com/local/redactor/internal/limiter"
)

// Tesseract is unavailable in this build.
type Tesseract struct{}

// New always fails with ErrOCRNotEnabled.
func New(opts Options, gate *limiter.Gate) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

// Version is empty when OCR is not compiled in.
func Version() string { return "" }

func (t *Tesseract) Recognize(ctx context.Context, img image.Image) ([]TextResult, error) {
	return nil, ErrOCRNotEnabled
}

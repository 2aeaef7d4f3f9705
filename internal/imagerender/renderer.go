package imagerender

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/limiter"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Renderer rasterizes pages of an in-memory PDF. Page numbers are 1-based.
type Renderer interface {
	RenderPage(ctx context.Context, src []byte, page int, dpi float64) (*image.RGBA, error)
	PageCount(ctx context.Context, src []byte) (int, error)
}

// Fitz renders through MuPDF (go-fitz). MuPDF is not safe for concurrent
// use across documents in one process, so every call holds the gate.
type Fitz struct {
	gate *limiter.Gate
}

// NewFitz returns a MuPDF renderer; a nil gate selects limiter.Native().
func NewFitz(gate *limiter.Gate) *Fitz {
	if gate == nil {
		gate = limiter.Native()
	}
	return &Fitz{gate: gate}
}

func (f *Fitz) open(ctx context.Context, src []byte) (*fitz.Document, func(), error) {
	release, err := f.gate.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	doc, err := fitz.NewFromMemory(src)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return doc, func() {
		doc.Close()
		release()
	}, nil
}

// RenderPage renders one page at dpi.
func (f *Fitz) RenderPage(ctx context.Context, src []byte, page int, dpi float64) (*image.RGBA, error) {
	doc, done, err := f.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer done()

	if page < 1 || page > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (1..%d)", page, doc.NumPage())
	}
	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", page, err)
	}
	log.Debug().
		Int("page", page).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Float64("dpi", dpi).
		Msg("rendered page")
	return img, nil
}

// PageCount opens the document and returns its page count.
func (f *Fitz) PageCount(ctx context.Context, src []byte) (int, error) {
	doc, done, err := f.open(ctx, src)
	if err != nil {
		return 0, err
	}
	defer done()
	return doc.NumPage(), nil
}

// Convert returns img in the requested color mode.
func Convert(img image.Image, mode ColorMode) image.Image {
	if mode != ColorGray {
		return img
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// EncodeJPEG encodes img at the given quality (1..100, default 90).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return buf.Bytes(), nil
}

// GetImageDimensions extracts dimensions from JPEG bytes
func GetImageDimensions(jpegBytes []byte) (width, height int, err error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(jpegBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode JPEG: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

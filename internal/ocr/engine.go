// Package ocr recognizes text lines in page rasters.
//
// The Tesseract engine is compiled in with the "ocr" build tag:
//
//	go build -tags ocr ./...
//
// Without the tag New returns ErrOCRNotEnabled and callers skip OCR.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/local/redactor/internal/geom"
)

// ErrOCRNotEnabled is returned when the binary was built without OCR support.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// TextResult is one recognized line. BBox is relative to the image, top-left origin.
type TextResult struct {
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	BBox       geom.Mask `json:"bbox"`
}

// Engine recognizes text in an image.
type Engine interface {
	Recognize(ctx context.Context, img image.Image) ([]TextResult, error)
}

// Options configure an engine.
type Options struct {
	Languages []string
	DPI       float64
	// MaxSide caps the longest raster side handed to the engine; larger images are scaled down.
	MaxSide int
}

const defaultMaxSide = 5000

// Downscale returns img scaled so that neither side exceeds maxSide.
// Relative boxes are unaffected by the scale.
func Downscale(img image.Image, maxSide int) image.Image {
	if maxSide <= 0 {
		maxSide = defaultMaxSide
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSide && h <= maxSide {
		return img
	}
	if w >= h {
		h = h * maxSide / w
		w = maxSide
	} else {
		w = w * maxSide / h
		h = maxSide
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// EncodePNG is the wire format handed to tesseract.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Normalize converts a pixel box to image-relative coordinates.
func Normalize(r image.Rectangle, bounds image.Rectangle) geom.Mask {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	if w <= 0 || h <= 0 {
		return geom.Mask{}
	}
	r = r.Intersect(bounds)
	return geom.Mask{
		X:      float64(r.Min.X-bounds.Min.X) / w,
		Y:      float64(r.Min.Y-bounds.Min.Y) / h,
		Width:  float64(r.Dx()) / w,
		Height: float64(r.Dy()) / h,
	}
}

package redact

import (
	"errors"
	"fmt"
)

// ErrNoPaintableImage means ImageMode found no image it could repaint on the page.
var ErrNoPaintableImage = errors.New("no paintable image on page")

// LoadError represents an input that could not be parsed as a PDF
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.File, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// RenderBackendUnavailable represents a rasterization failure in SafeRender
type RenderBackendUnavailable struct {
	File string
	Page int
	Err  error
}

func (e *RenderBackendUnavailable) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("render backend unavailable for %s page %d: %v", e.File, e.Page, e.Err)
	}
	return fmt.Sprintf("render backend unavailable for %s: %v", e.File, e.Err)
}
func (e *RenderBackendUnavailable) Unwrap() error { return e.Err }

// ImageDecodeError represents an image XObject in an unsupported encoding
type ImageDecodeError struct {
	File  string
	Image string
	Err   error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("decode image %s in %s: %v", e.Image, e.File, e.Err)
}
func (e *ImageDecodeError) Unwrap() error { return e.Err }

// StreamEncodeError represents a failure to write back a modified stream.
// Leaving the old stream in place would leak content, so it is fatal.
type StreamEncodeError struct {
	File string
	Err  error
}

func (e *StreamEncodeError) Error() string { return fmt.Sprintf("encode stream in %s: %v", e.File, e.Err) }
func (e *StreamEncodeError) Unwrap() error { return e.Err }

// IsFatal checks if err must abort the file
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return true
	}
	var encErr *StreamEncodeError
	return errors.As(err, &encErr)
}

// IsFallback checks if err should hand the work to the next strategy in a chain
func IsFallback(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if errors.Is(err, ErrNoPaintableImage) {
		return true
	}
	var renderErr *RenderBackendUnavailable
	if errors.As(err, &renderErr) {
		return true
	}
	var decodeErr *ImageDecodeError
	return errors.As(err, &decodeErr)
}

// IsRenderUnavailable checks if err came from the rasterization backend
func IsRenderUnavailable(err error) bool {
	var renderErr *RenderBackendUnavailable
	return errors.As(err, &renderErr)
}

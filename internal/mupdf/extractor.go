// Package mupdf extracts page text through go-fitz.
package mupdf

import (
	"context"
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/redactor/internal/limiter"
)

// Doc abstracts an opened document for text extraction.
type Doc interface {
	NumPage() int
	Text(page int) (string, error) // 0-based
	Close() error
}

// Opener opens PDF bytes into a Doc.
type Opener interface {
	Open(src []byte) (Doc, error)
}

type fitzOpener struct{}

func (fitzOpener) Open(src []byte) (Doc, error) {
	doc, err := fitz.NewFromMemory(src)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Extractor reads page text. MuPDF calls hold the native gate.
type Extractor struct {
	opener Opener
	gate   *limiter.Gate
}

// NewExtractor returns a go-fitz backed extractor. A nil gate means limiter.Native().
func NewExtractor(gate *limiter.Gate) *Extractor {
	return NewExtractorWith(fitzOpener{}, gate)
}

// NewExtractorWith uses a custom opener.
func NewExtractorWith(o Opener, gate *limiter.Gate) *Extractor {
	if gate == nil {
		gate = limiter.Native()
	}
	return &Extractor{opener: o, gate: gate}
}

func (e *Extractor) open(ctx context.Context, src []byte) (Doc, func(), error) {
	release, err := e.gate.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	doc, err := e.opener.Open(src)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return doc, func() { doc.Close(); release() }, nil
}

// PageCount returns the number of pages.
func (e *Extractor) PageCount(ctx context.Context, src []byte) (int, error) {
	doc, done, err := e.open(ctx, src)
	if err != nil {
		return 0, err
	}
	defer done()
	return doc.NumPage(), nil
}

// PageText extracts the text of one page (1-based).
func (e *Extractor) PageText(ctx context.Context, src []byte, pageNum int) (string, error) {
	doc, done, err := e.open(ctx, src)
	if err != nil {
		return "", err
	}
	defer done()

	// go-fitz uses 0-based indexing
	pageIndex := pageNum - 1
	if pageIndex < 0 || pageIndex >= doc.NumPage() {
		return "", fmt.Errorf("page %d out of range (document has %d pages)", pageNum, doc.NumPage())
	}
	text, err := doc.Text(pageIndex)
	if err != nil {
		return "", fmt.Errorf("failed to extract text from page %d: %w", pageNum, err)
	}
	return text, nil
}

// PageTexts extracts every page. A page that fails is logged and left empty.
func (e *Extractor) PageTexts(ctx context.Context, src []byte) ([]string, error) {
	doc, done, err := e.open(ctx, src)
	if err != nil {
		return nil, err
	}
	defer done()

	out := make([]string, doc.NumPage())
	chars := 0
	for i := range out {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		text, err := doc.Text(i)
		if err != nil {
			log.Warn().Err(err).Int("page", i+1).Msg("Failed to extract text from page")
			continue
		}
		out[i] = text
		chars += len(text)
	}
	log.Debug().Int("pages", len(out)).Int("chars", chars).Msg("Extracted text from PDF")
	return out, nil
}

// Join concatenates page texts with page separators.
func Join(pages []string) string {
	var b strings.Builder
	for i, p := range pages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== Page %d ===\n", i+1)
		b.WriteString(p)
	}
	return b.String()
}

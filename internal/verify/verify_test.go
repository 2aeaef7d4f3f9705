package verify

import (
	"context"
	"image"
	"strings"
	"testing"

	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/ocr"
	"github.com/local/redactor/internal/pdftest/fixture"
)

type blankRenderer struct{}

func (blankRenderer) RenderPage(ctx context.Context, src []byte, page int, dpi float64) (*image.RGBA, error) {
	return image.NewRGBA(image.Rect(0, 0, 10, 10)), nil
}

func (blankRenderer) PageCount(ctx context.Context, src []byte) (int, error) { return 1, nil }

type lineEngine []string

func (e lineEngine) Recognize(ctx context.Context, img image.Image) ([]ocr.TextResult, error) {
	var out []ocr.TextResult
	for _, l := range e {
		out = append(out, ocr.TextResult{Text: l, Confidence: 1, BBox: geom.Mask{Width: 1, Height: 0.1}})
	}
	return out, nil
}

func TestTerms(t *testing.T) {
	got := Terms([]string{" ab ", "Alice", "A l i c e", "ﬁle", "\x00\x00\x00\x00"})
	if strings.Join(got, ",") != "Alice,file" {
		t.Errorf("Terms = %q", got)
	}
}

// TestTextSearch tests the content-stream fallback used when no MuPDF extractor is configured.
func TestTextSearch(t *testing.T) {
	out := fixture.Doc{Pages: []fixture.Page{{Content: fixture.TextPage("Name: Alice", "Case 42-A")}}}.Build()
	v := New(nil, nil, nil, 0)

	res := v.Verify(context.Background(), out, []string{"Bob Smith"}, nil, Options{TextSearch: true})
	if !res.OK || len(res.Warnings) != 0 {
		t.Errorf("clean output flagged: %+v", res)
	}
	res = v.Verify(context.Background(), out, []string{"Alice"}, nil, Options{TextSearch: true})
	if res.OK || len(res.Warnings) != 1 || !strings.Contains(res.Warnings[0], "page 0") {
		t.Errorf("surviving term not flagged: %+v", res)
	}
}

func TestTextSearchIgnoresBlankedRuns(t *testing.T) {
	out := fixture.Doc{Pages: []fixture.Page{{Content: "BT /F1 12 Tf 72 700 Td (\\000\\000\\000\\000\\000) Tj ET"}}}.Build()
	res := New(nil, nil, nil, 0).Verify(context.Background(), out, []string{"Alice"}, nil, Options{TextSearch: true})
	if !res.OK {
		t.Errorf("res = %+v", res)
	}
}

func TestOCRSample(t *testing.T) {
	out := fixture.Doc{Pages: []fixture.Page{{Content: "q Q"}, {Content: "q Q"}}}.Build()
	v := New(nil, blankRenderer{}, lineEngine{"Invoice for A lice"}, 0)
	res := v.Verify(context.Background(), out, []string{"Alice"}, []int{1}, Options{OCRSample: true})
	if res.OK || len(res.Warnings) != 1 || !strings.HasPrefix(res.Warnings[0], "ocr on page 1") {
		t.Errorf("res = %+v", res)
	}

	res = New(nil, nil, nil, 0).Verify(context.Background(), out, []string{"Alice"}, []int{0}, Options{OCRSample: true})
	if res.OK || len(res.Checked) != 1 || res.Checked[0] != "ocr_sample" {
		t.Errorf("missing OCR not reported: %+v", res)
	}
}

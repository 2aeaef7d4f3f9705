package detect

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/ocr"
	"github.com/local/redactor/internal/pdfdoc"
	"github.com/local/redactor/internal/pdftest/fixture"
)

type blankRenderer struct{ calls int }

func (r *blankRenderer) RenderPage(ctx context.Context, src []byte, page int, dpi float64) (*image.RGBA, error) {
	r.calls++
	return image.NewRGBA(image.Rect(0, 0, 100, 100)), nil
}

func (r *blankRenderer) PageCount(ctx context.Context, src []byte) (int, error) { return 1, nil }

type fakeEngine struct {
	lines []ocr.TextResult
	seen  *[]image.Image
}

func (e fakeEngine) Recognize(ctx context.Context, img image.Image) ([]ocr.TextResult, error) {
	if e.seen != nil {
		*e.seen = append(*e.seen, img)
	}
	return e.lines, nil
}

func load(t *testing.T, f fixture.Doc) *pdfdoc.Document {
	t.Helper()
	d, err := pdfdoc.Load(f.Build())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return d
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-3 }

func TestMaskSnippet(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"abcd":             "****",
		"Alice":            "A****e",
		"123-45-6789":      "123****789",
		"4111111111111111": "4111****1111",
	}
	for in, want := range cases {
		if got := MaskSnippet(in); got != want {
			t.Errorf("MaskSnippet(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindDigitBoundary(t *testing.T) {
	crs, errs := compile([]Rule{{ID: "r", RuleType: RuleRegex, Pattern: `\d{4}`, Enabled: true}})
	if len(errs) != 0 || len(crs) != 1 {
		t.Fatalf("compile: %v", errs)
	}
	got := crs[0].find("ref 1234567890 pin 4321.")
	if len(got) != 1 || got[0] != [2]int{19, 23} {
		t.Errorf("spans = %v, want [[19 23]]", got)
	}
}

func TestCompileSkipsDisabledAndInvalid(t *testing.T) {
	crs, errs := compile([]Rule{
		{ID: "off", RuleType: RuleKeyword, Pattern: "x", Enabled: false},
		{ID: "bad", RuleType: RuleRegex, Pattern: "(", Enabled: true},
		{ID: "kw", RuleType: RuleKeyword, Pattern: "ﬁle", Enabled: true},
	})
	if len(crs) != 1 || len(errs) != 1 {
		t.Fatalf("crs=%d errs=%v", len(crs), errs)
	}
	if crs[0].rule.Pattern != "file" {
		t.Errorf("keyword not normalized: %q", crs[0].rule.Pattern)
	}
}

// TestDetectText tests matching against interpreted page text and the boxes reported.
func TestDetectText(t *testing.T) {
	doc := load(t, fixture.Doc{Pages: []fixture.Page{{Content: fixture.TextPage("Name: Alice", "SSN 123-45-6789", "Ref 1234567890")}}})
	rules := []Rule{
		{ID: "ssn", Name: "SSN", RuleType: RuleRegex, Pattern: `\d{3}-\d{2}-\d{4}`, Enabled: true},
		{ID: "name", Name: "Name", RuleType: RuleKeyword, Pattern: "Alice", Enabled: true},
	}
	hits, err := New(Options{}, nil, nil).Detect(context.Background(), doc, rules, false, nil)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}
	ssn := hits[0]
	if ssn.RuleID != "ssn" || ssn.Snippet != "123****789" || ssn.Page != 0 {
		t.Errorf("ssn hit = %+v", ssn)
	}
	// "123" starts 4 glyphs into the line at x=72, baseline 680.
	wantX := (72+4*0.55*12)/612 - 0.003
	wantY := 1 - 692.0/792 - 0.003
	if !near(ssn.BBox.X, wantX) || !near(ssn.BBox.Y, wantY) {
		t.Errorf("ssn bbox = %+v, want x=%.4f y=%.4f", ssn.BBox, wantX, wantY)
	}
	if hits[1].Snippet != "A****e" {
		t.Errorf("name hit = %+v", hits[1])
	}

	masks := Masks(hits)
	if len(masks[0]) != 2 {
		t.Errorf("Masks = %v", masks)
	}
}

func TestDetectPageFilter(t *testing.T) {
	doc := load(t, fixture.Doc{Pages: []fixture.Page{
		{Content: fixture.TextPage("secret")},
		{Content: fixture.TextPage("secret")},
	}})
	rules := []Rule{{ID: "k", RuleType: RuleKeyword, Pattern: "secret", Enabled: true}}
	hits, err := New(Options{}, nil, nil).Detect(context.Background(), doc, rules, false, []int{1, 7, -1})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].Page != 1 {
		t.Errorf("hits = %+v", hits)
	}
}

// TestDetectOCR tests the OCR path, including the compact retry for digit rules.
func TestDetectOCR(t *testing.T) {
	doc := load(t, fixture.Doc{Pages: []fixture.Page{{
		Content: fixture.ImagePage("Im1"),
		Images:  map[string]fixture.Image{"Im1": {Width: 2, Height: 2, ColorSpace: "DeviceGray", BPC: 8, Data: []byte{0, 0, 0, 0}}},
	}}})
	line := geom.Mask{X: 0.1, Y: 0.2, Width: 0.5, Height: 0.03}
	var seen []image.Image
	eng := fakeEngine{seen: &seen, lines: []ocr.TextResult{
		{Text: "Card 4111 1111 1111 1111", Confidence: 0.9, BBox: line},
		{Text: "nothing here", Confidence: 0.9, BBox: geom.Mask{X: 0.1, Y: 0.3, Width: 0.2, Height: 0.03}},
	}}
	r := &blankRenderer{}
	rules := []Rule{
		{ID: "card", RuleType: RuleRegex, Pattern: `\d{16}`, Enabled: true},
		{ID: "kw", RuleType: RuleKeyword, Pattern: "Card", Enabled: true},
	}
	hits, err := New(Options{}, r, eng).Detect(context.Background(), doc, rules, true, nil)
	if err != nil {
		t.Fatal(err)
	}
	if r.calls != 1 {
		t.Errorf("renderer called %d times", r.calls)
	}
	for _, img := range seen {
		if _, ok := img.(*image.Gray); !ok {
			t.Errorf("engine got %T, want a grayscale page", img)
		}
	}
	// both rules hit the same line; the second is deduplicated by position
	if len(hits) != 1 || hits[0].RuleID != "card" || hits[0].BBox != line {
		t.Fatalf("hits = %+v", hits)
	}
	if hits[0].Snippet != "Card****1111" {
		t.Errorf("snippet = %q", hits[0].Snippet)
	}

	hits, err = New(Options{}, nil, nil).Detect(context.Background(), doc, rules, true, nil)
	if err != nil || len(hits) != 0 {
		t.Errorf("without OCR: hits=%v err=%v", hits, err)
	}
}

func TestDetectNoRules(t *testing.T) {
	doc := load(t, fixture.Doc{Pages: []fixture.Page{{Content: fixture.TextPage("x")}}})
	hits, err := New(Options{}, nil, nil).Detect(context.Background(), doc, nil, false, nil)
	if err != nil || hits != nil {
		t.Errorf("hits=%v err=%v", hits, err)
	}
	_, err = New(Options{}, nil, nil).Detect(context.Background(), doc, []Rule{{ID: "bad", RuleType: RuleRegex, Pattern: "[", Enabled: true}}, false, nil)
	if err == nil {
		t.Error("want error when every rule is invalid")
	}
}

func TestFindInText(t *testing.T) {
	rules := []Rule{
		{ID: "ssn", RuleType: RuleRegex, Pattern: `\d{3}-\d{2}-\d{4}`, Enabled: true},
		{ID: "kw", RuleType: RuleKeyword, Pattern: "Alice", Enabled: true},
	}
	spans, err := FindInText("SSN 123-45-6789 for Alice", rules)
	if err != nil {
		t.Fatal(err)
	}
	if len(spans) != 2 || spans[0] != (Span{4, 15, "ssn"}) || spans[1] != (Span{20, 25, "kw"}) {
		t.Errorf("spans = %+v", spans)
	}
}

package assembler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/detect"
	"github.com/local/redactor/internal/geom"
	"github.com/local/redactor/internal/pdfdoc"
	"github.com/local/redactor/internal/pdftest/fixture"
	"github.com/local/redactor/internal/redact"
	"github.com/local/redactor/internal/storage"
	"github.com/local/redactor/internal/verify"
)

var secretMask = geom.Mask{X: 0.1, Y: 0.095, Width: 0.2, Height: 0.02}

func newAssembler(opts redact.Options) *Assembler {
	return New(Config{
		Suffix:     "_redacted",
		Provenance: pdfdoc.Provenance{Name: "redactor", Version: "test", URL: "https://example.invalid"},
	}, Deps{
		Redactor: redact.New(opts, nil),
		Store:    storage.New(storage.S3Options{}),
		Detector: detect.New(detect.Options{}, nil, nil),
		Verifier: verify.New(nil, nil, nil, 0),
	})
}

func write(t *testing.T, dir, name string, f fixture.Doc) string {
	t.Helper()
	p, err := f.WriteFile(dir, name)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func pageText(t *testing.T, doc *pdfdoc.Document, n int) string {
	t.Helper()
	p, err := doc.Page(n)
	if err != nil {
		t.Fatal(err)
	}
	data, err := doc.Content(p)
	if err != nil {
		t.Fatal(err)
	}
	runs, err := content.Runs(data)
	if err != nil {
		t.Fatal(err)
	}
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.Text())
	}
	return b.String()
}

// TestProcessTextReplace tests a full batch: redaction, stamping and output naming.
func TestProcessTextReplace(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "memo.pdf", fixture.Doc{Pages: []fixture.Page{{Content: fixture.TextPage("SECRET", "public")}}})
	out := filepath.Join(dir, "out")

	res := newAssembler(redact.Options{}).Process(context.Background(), Request{
		Files:           []FileRequest{{Path: in, MasksByPage: map[int][]geom.Mask{0: {secretMask}}}},
		OutputDirectory: out,
		Mode:            redact.ModeTextReplace,
	})
	if !res.Success || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	want := filepath.Join(out, "memo_redacted.pdf")
	if len(res.ProcessedFiles) != 1 || res.ProcessedFiles[0] != want {
		t.Fatalf("processed = %v, want %s", res.ProcessedFiles, want)
	}
	doc, err := pdfdoc.LoadFile(want)
	if err != nil {
		t.Fatal(err)
	}
	if txt := pageText(t, doc, 1); strings.Contains(txt, "SECRET") || !strings.Contains(txt, "public") {
		t.Errorf("page text = %q", txt)
	}
	if v, _ := doc.InfoString("Redacted"); v != "true" {
		t.Errorf("Redacted = %q", v)
	}
	if v, _ := doc.InfoString("Creator"); v != "redactor" {
		t.Errorf("Creator = %q", v)
	}
}

func dictKeys(d map[string]types.Object) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// TestProcessWithoutCleaningOnlyStamps tests that a file with no masks and no
// cleaning comes out with the same catalog, page and Info entries apart from
// the provenance stamp.
func TestProcessWithoutCleaningOnlyStamps(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "keep.pdf", fixture.Doc{
		Pages:        []fixture.Page{{Content: fixture.TextPage("SECRET"), Annotation: true}},
		Info:         map[string]string{"Title": "Plan", "Author": "Jo", "Subject": "Q3"},
		XMP:          true,
		AcroForm:     true,
		JavaScript:   true,
		EmbeddedFile: true,
		PieceInfo:    true,
	})
	res := newAssembler(redact.Options{}).Process(context.Background(), Request{
		Files:           []FileRequest{{Path: in}},
		OutputDirectory: filepath.Join(dir, "out"),
	})
	if !res.Success || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	src, err := pdfdoc.LoadFile(in)
	if err != nil {
		t.Fatal(err)
	}
	dst, err := pdfdoc.LoadFile(res.ProcessedFiles[0])
	if err != nil {
		t.Fatal(err)
	}

	stamp := map[string]bool{"Producer": true, "Creator": true, "ModDate": true, "Redacted": true, "RedactedBy": true, "RedactedAt": true}
	srcInfo, _ := src.Info(false)
	dstInfo, _ := dst.Info(false)
	for k := range srcInfo {
		if stamp[k] {
			continue
		}
		a, _ := src.InfoString(k)
		b, ok := dst.InfoString(k)
		if !ok || a != b {
			t.Errorf("Info/%s = %q, want %q", k, b, a)
		}
	}
	for k := range dstInfo {
		if _, ok := srcInfo[k]; !ok && !stamp[k] {
			t.Errorf("unexpected Info/%s", k)
		}
	}

	sc, _ := src.Catalog()
	dc, _ := dst.Catalog()
	if a, b := dictKeys(sc), dictKeys(dc); strings.Join(a, " ") != strings.Join(b, " ") {
		t.Errorf("catalog keys %v, want %v", b, a)
	}
	if a, b := dictKeys(src.DerefDict(sc["Names"])), dictKeys(dst.DerefDict(dc["Names"])); strings.Join(a, " ") != strings.Join(b, " ") {
		t.Errorf("name trees %v, want %v", b, a)
	}
	sp, _ := src.Page(1)
	dp, _ := dst.Page(1)
	if a, b := dictKeys(sp.Dict), dictKeys(dp.Dict); strings.Join(a, " ") != strings.Join(b, " ") {
		t.Errorf("page keys %v, want %v", b, a)
	}
	if txt := pageText(t, dst, 1); !strings.Contains(txt, "SECRET") {
		t.Errorf("page text = %q", txt)
	}
}

// TestProcessRenderDisabled tests that a flattened file degrades to an overlay with a warning.
func TestProcessRenderDisabled(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "scan.pdf", fixture.Doc{Pages: []fixture.Page{{
		Content: "0 0 m 10 10 l S " + fixture.ImagePage("Im0"),
		Images:  map[string]fixture.Image{"Im0": {Width: 1, Height: 1, ColorSpace: "DeviceGray", Data: []byte{0}}},
	}}})
	res := newAssembler(redact.Options{}).WithoutRender().Process(context.Background(), Request{
		Files:           []FileRequest{{Path: in, MasksByPage: map[int][]geom.Mask{0: {secretMask}}}},
		OutputDirectory: dir,
	})
	if !res.Success || len(res.Files) != 1 {
		t.Fatalf("result = %+v", res)
	}
	f := res.Files[0]
	if f.Strategy != "safe_render" || f.Pages[0] != "black_overlay" || f.RenderFailed {
		t.Errorf("report = %+v", f)
	}
	if len(res.Warnings) == 0 || !strings.HasPrefix(res.Warnings[0], "scan.pdf: ") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

// TestProcessContinuesAfterError tests that a failing file does not stop the batch.
func TestProcessContinuesAfterError(t *testing.T) {
	dir := t.TempDir()
	good := write(t, dir, "good.pdf", fixture.Doc{Pages: []fixture.Page{{Content: fixture.TextPage("x")}}})
	var calls []int
	res := newAssembler(redact.Options{}).ProcessWithProgress(context.Background(), Request{
		Files:           []FileRequest{{Path: filepath.Join(dir, "missing.pdf")}, {Path: good}},
		OutputDirectory: dir,
	}, func(done, total int, _ string) { calls = append(calls, done*10+total) })
	if res.Success {
		t.Error("success with a missing input")
	}
	if len(res.Errors) != 1 || !strings.HasPrefix(res.Errors[0], "missing.pdf: ") {
		t.Errorf("errors = %v", res.Errors)
	}
	if len(res.ProcessedFiles) != 1 {
		t.Errorf("processed = %v", res.ProcessedFiles)
	}
	if len(res.Failures) != 1 || !errors.Is(res.Failures[0], os.ErrNotExist) {
		t.Errorf("failures = %v", res.Failures)
	}
	if len(calls) != 2 || calls[0] != 12 || calls[1] != 22 {
		t.Errorf("progress calls = %v", calls)
	}
}

func TestProcessDeletesPages(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "three.pdf", fixture.Doc{Pages: []fixture.Page{
		{Content: fixture.TextPage("first")},
		{Content: fixture.TextPage("second")},
		{Content: fixture.TextPage("third")},
	}})
	res := newAssembler(redact.Options{}).Process(context.Background(), Request{
		Files: []FileRequest{{Path: in, Pages: []PageAction{
			{Index: 1, Action: ActionDelete},
			{Index: 0, Action: ActionKeep},
		}}},
		OutputDirectory: dir,
	})
	if !res.Success || res.Files[0].Deleted != 1 {
		t.Fatalf("result = %+v", res)
	}
	doc, err := pdfdoc.LoadFile(res.ProcessedFiles[0])
	if err != nil {
		t.Fatal(err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("pages = %d", doc.PageCount())
	}
	if got := pageText(t, doc, 2); got != "third" {
		t.Errorf("page 2 = %q", got)
	}
}

func TestProcessDeleteAllPagesFails(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "one.pdf", fixture.Doc{Pages: []fixture.Page{{Content: fixture.TextPage("only")}}})
	res := newAssembler(redact.Options{}).Process(context.Background(), Request{
		Files:           []FileRequest{{Path: in, Pages: []PageAction{{Index: 0, Action: ActionDelete}}}},
		OutputDirectory: dir,
	})
	if res.Success || len(res.Errors) != 1 {
		t.Errorf("result = %+v", res)
	}
}

// TestProcessRules tests that rule hits become masks and verification passes.
func TestProcessRules(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "id.pdf", fixture.Doc{Pages: []fixture.Page{{Content: fixture.TextPage("SSN 123-45-6789", "public")}}})
	res := newAssembler(redact.Options{}).Process(context.Background(), Request{
		Files:           []FileRequest{{Path: in}},
		OutputDirectory: dir,
		Mode:            redact.ModeTextReplace,
		Rules:           []detect.Rule{{ID: "ssn", Name: "SSN", RuleType: detect.RuleRegex, Pattern: `\d{3}-\d{2}-\d{4}`, Enabled: true}},
		Verify:          verify.Options{TextSearch: true},
	})
	if !res.Success {
		t.Fatalf("result = %+v", res)
	}
	f := res.Files[0]
	if f.Detected != 1 || f.Pages[0] != "text_replace" {
		t.Errorf("report = %+v", f)
	}
	if f.Verification == nil || !f.Verification.OK {
		t.Errorf("verification = %+v", f.Verification)
	}
	doc, err := pdfdoc.LoadFile(f.Output)
	if err != nil {
		t.Fatal(err)
	}
	if txt := pageText(t, doc, 1); strings.Contains(txt, "6789") {
		t.Errorf("page text = %q", txt)
	}
}

func TestProcessTextFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(in, []byte("call 555-1234 now\nbye\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	res := newAssembler(redact.Options{}).Process(context.Background(), Request{
		Files:           []FileRequest{{Path: in}},
		OutputDirectory: filepath.Join(dir, "out"),
		Rules:           []detect.Rule{{ID: "phone", RuleType: detect.RuleRegex, Pattern: `\d{3}-\d{4}`, Enabled: true}},
		Verify:          verify.Options{TextSearch: true},
	})
	if !res.Success || res.Files[0].Format != "text" {
		t.Fatalf("result = %+v", res)
	}
	if want := filepath.Join(dir, "out", "notes_redacted.txt"); res.ProcessedFiles[0] != want {
		t.Errorf("output = %s", res.ProcessedFiles[0])
	}
	got, err := os.ReadFile(res.ProcessedFiles[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "call ████████ now\nbye\n" {
		t.Errorf("output = %q", got)
	}
	if v := res.Files[0].Verification; v == nil || !v.OK {
		t.Errorf("verification = %+v", v)
	}
}

func TestProcessUnsupported(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(in, []byte{0x00, 0x01, 0x02, 0xff, 0xfe}, 0o644); err != nil {
		t.Fatal(err)
	}
	res := newAssembler(redact.Options{}).Process(context.Background(), Request{Files: []FileRequest{{Path: in}}, OutputDirectory: dir})
	if res.Success || !strings.Contains(res.Errors[0], "unsupported input") {
		t.Errorf("result = %+v", res)
	}
}

func TestAnalyze(t *testing.T) {
	dir := t.TempDir()
	in := write(t, dir, "form.pdf", fixture.Doc{
		Pages:      []fixture.Page{{Content: fixture.TextPage("x"), Widget: true}},
		AcroForm:   true,
		JavaScript: true,
		Info:       map[string]string{"Title": "Form"},
	})
	an, err := newAssembler(redact.Options{}).Analyze(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(an.PageTypes) != 1 || an.PageTypes[0] != content.ClassText {
		t.Errorf("page types = %v", an.PageTypes)
	}
	if !an.HasForms || !an.HasAnnotations || !an.HasMetadata || !an.HasJavaScript || an.HasAttachments {
		t.Errorf("analysis = %+v", an)
	}
	if an.RecommendedMode != redact.ModeTextReplace {
		t.Errorf("recommended = %v", an.RecommendedMode)
	}
	if an.HasExtractableText != nil {
		t.Error("extractable text reported without an extractor")
	}
	if an.AlreadyRedacted {
		t.Error("fresh input reported as redacted")
	}
}

func TestShift(t *testing.T) {
	got := shift([]int{0, 2, 4, 5}, []int{1, 4})
	want := []int{0, 1, 3}
	if len(got) != len(want) {
		t.Fatalf("shift = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("shift = %v, want %v", got, want)
		}
	}
}

func TestBlockOut(t *testing.T) {
	got := blockOut("ab\ncd", []detect.Span{{Start: 1, End: 4}})
	if got != "a█\n█d" {
		t.Errorf("blockOut = %q", got)
	}
}

package clean

import (
	"bytes"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/redactor/internal/pdfdoc"
	"github.com/local/redactor/internal/pdftest/fixture"
)

func load(t *testing.T, f fixture.Doc) *pdfdoc.Document {
	t.Helper()
	d, err := pdfdoc.Load(f.Build())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return d
}

func reload(t *testing.T, d *pdfdoc.Document) (*pdfdoc.Document, []byte) {
	t.Helper()
	b, err := d.Bytes()
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	out, err := pdfdoc.Load(b)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	return out, b
}

func TestDocumentInfo(t *testing.T) {
	d := load(t, fixture.Doc{Pages: []fixture.Page{{Content: "q Q"}}, Info: map[string]string{"Title": "Plan", "Author": "Jo"}})
	res, err := DocumentInfo(d)
	if err != nil {
		t.Fatal(err)
	}
	if res.ItemsRemoved != 3 {
		t.Errorf("removed %d (%v), want 3", res.ItemsRemoved, res.Details)
	}
	if info, _ := d.Info(false); info != nil {
		t.Errorf("Info still attached: %v", info)
	}
}

func TestDocumentInfoKeepsCustomKeys(t *testing.T) {
	d := load(t, fixture.Doc{Pages: []fixture.Page{{Content: "q Q"}}, Info: map[string]string{"Title": "Plan", "Case": "42"}})
	res, err := DocumentInfo(d)
	if err != nil || res.ItemsRemoved != 1 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if v, ok := d.InfoString("Case"); !ok || v != "42" {
		t.Errorf("Case = %q, %v", v, ok)
	}
}

// TestApplyAll tests every cleaner against a document carrying each kind of hidden content.
func TestApplyAll(t *testing.T) {
	d := load(t, fixture.Doc{
		Pages:        []fixture.Page{{Content: fixture.TextPage("x"), Annotation: true, Widget: true}},
		XMP:          true,
		AcroForm:     true,
		JavaScript:   true,
		EmbeddedFile: true,
		PieceInfo:    true,
	})
	results, errs := Apply(d, Options{XMPMetadata: true, HiddenData: true, Annotations: true, Forms: true, Attachments: true, JavaScript: true})
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	want := map[string]int{
		"xmp_metadata": 1,
		"hidden_data":  4, // catalog and page PieceInfo + LastModified
		"javascript":   5,
		"attachments":  1,
		"forms":        3,
		"annotations":  1,
	}
	if len(results) != len(want) {
		t.Fatalf("results = %+v", results)
	}
	for _, r := range results {
		if r.ItemsRemoved != want[r.Cleaner] {
			t.Errorf("%s removed %d (%v), want %d", r.Cleaner, r.ItemsRemoved, r.Details, want[r.Cleaner])
		}
	}

	d2, raw := reload(t, d)
	cat, err := d2.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"Metadata", "AcroForm", "OpenAction", "AA", "PieceInfo", "LastModified"} {
		if _, ok := cat[k]; ok {
			t.Errorf("catalog still has %s", k)
		}
	}
	if names := d2.DerefDict(cat["Names"]); names != nil {
		if _, ok := names["JavaScript"]; ok {
			t.Error("Names/JavaScript survived")
		}
		if _, ok := names["EmbeddedFiles"]; ok {
			t.Error("Names/EmbeddedFiles survived")
		}
	}
	p, _ := d2.Page(1)
	for _, k := range []string{"Annots", "AA", "PieceInfo"} {
		if _, ok := p.Dict[k]; ok {
			t.Errorf("page still has %s", k)
		}
	}
	if bytes.Contains(raw, []byte("attached secret")) {
		t.Error("embedded file bytes still in output")
	}
}

// TestNameTreesStayDroppedAfterCacheLoad covers pdfcpu binding its cached
// name trees back into the catalog when the document is written.
func TestNameTreesStayDroppedAfterCacheLoad(t *testing.T) {
	d := load(t, fixture.Doc{
		Pages:        []fixture.Page{{Content: fixture.TextPage("x")}},
		JavaScript:   true,
		EmbeddedFile: true,
	})
	if err := d.Context().LocateNameTree("JavaScript", false); err != nil {
		t.Fatal(err)
	}
	if err := d.Context().LocateNameTree("EmbeddedFiles", false); err != nil {
		t.Fatal(err)
	}
	if _, errs := Apply(d, Options{JavaScript: true, Attachments: true}); len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	d2, raw := reload(t, d)
	if bytes.Contains(raw, []byte("attached secret")) {
		t.Error("embedded file bytes still in output")
	}
	cat, err := d2.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	if names := d2.DerefDict(cat["Names"]); names != nil {
		for _, k := range []string{"JavaScript", "EmbeddedFiles"} {
			if _, ok := names[k]; ok {
				t.Errorf("Names/%s written back", k)
			}
		}
	}
	for nr, e := range d2.Context().Table {
		if e == nil || e.Free {
			continue
		}
		od, ok := e.Object.(types.Dict)
		if !ok {
			continue
		}
		if d2.NameOf(od, "S") == "JavaScript" || d2.NameOf(od, "Type") == "Filespec" {
			t.Errorf("object %d still written: %v", nr, od)
		}
	}
}

func TestApplyNothing(t *testing.T) {
	d := load(t, fixture.Doc{Pages: []fixture.Page{{Content: "q Q", Annotation: true}}})
	results, errs := Apply(d, Options{})
	if len(results) != 0 || len(errs) != 0 {
		t.Errorf("results=%v errs=%v", results, errs)
	}
	if (Options{}).Any() || !(Options{Forms: true}).Any() {
		t.Error("Any is wrong")
	}
	p, _ := d.Page(1)
	if _, ok := p.Dict["Annots"]; !ok {
		t.Error("annotations removed without being asked")
	}
}

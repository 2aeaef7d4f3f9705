package clean

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/redactor/internal/pdfdoc"
)

func annotations(doc *pdfdoc.Document, p *pdfdoc.Page) types.Array {
	arr, _ := doc.DerefArray(p.Dict["Annots"])
	return arr
}

// filterAnnotations keeps the annotations for which keep returns true and
// returns how many were dropped. Annots is removed when none remain.
func filterAnnotations(doc *pdfdoc.Document, p *pdfdoc.Page, keep func(types.Dict) bool) int {
	arr := annotations(doc, p)
	if len(arr) == 0 {
		return 0
	}
	out := make(types.Array, 0, len(arr))
	for _, a := range arr {
		ad := doc.DerefDict(a)
		if ad == nil || keep(ad) {
			out = append(out, a)
		}
	}
	dropped := len(arr) - len(out)
	switch {
	case len(out) == 0:
		delete(p.Dict, "Annots")
	case dropped > 0:
		p.Dict["Annots"] = out
	}
	return dropped
}

// Forms removes the interactive form and every widget annotation.
func Forms(doc *pdfdoc.Document) (Result, error) {
	var res Result
	cat, err := doc.Catalog()
	if err != nil {
		return res, err
	}
	if af, ok := cat["AcroForm"]; ok {
		if d := doc.DerefDict(af); d != nil {
			fields, _ := doc.DerefArray(d["Fields"])
			for range fields {
				res.add("form field")
			}
		}
		delete(cat, "AcroForm")
		res.add("Catalog/AcroForm")
	}
	pages, err := doc.Pages()
	if err != nil {
		return res, err
	}
	for _, p := range pages {
		n := filterAnnotations(doc, p, func(a types.Dict) bool { return doc.NameOf(a, "Subtype") != "Widget" })
		for i := 0; i < n; i++ {
			res.add("page %d widget", p.Number)
		}
	}
	return res, nil
}

// Annotations removes every annotation from every page.
func Annotations(doc *pdfdoc.Document) (Result, error) {
	var res Result
	pages, err := doc.Pages()
	if err != nil {
		return res, err
	}
	for _, p := range pages {
		for _, a := range annotations(doc, p) {
			sub := "Unknown"
			if ad := doc.DerefDict(a); ad != nil {
				if s := doc.NameOf(ad, "Subtype"); s != "" {
					sub = s
				}
			}
			res.add("page %d %s annotation", p.Number, sub)
		}
		delete(p.Dict, "Annots")
	}
	return res, nil
}

package clean

import (
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/redactor/internal/pdfdoc"
)

const maxTreeDepth = 32

// nameTreeValues collects the values of a name tree.
func nameTreeValues(doc *pdfdoc.Document, node types.Object, depth int) []types.Object {
	if depth > maxTreeDepth {
		return nil
	}
	d := doc.DerefDict(node)
	if d == nil {
		return nil
	}
	var out []types.Object
	if names, ok := doc.DerefArray(d["Names"]); ok {
		for i := 1; i < len(names); i += 2 {
			out = append(out, names[i])
		}
	}
	if kids, ok := doc.DerefArray(d["Kids"]); ok {
		for _, k := range kids {
			out = append(out, nameTreeValues(doc, k, depth+1)...)
		}
	}
	return out
}

func isJSAction(doc *pdfdoc.Document, o types.Object) bool {
	d := doc.DerefDict(o)
	return d != nil && doc.NameOf(d, "S") == "JavaScript"
}

// JavaScript removes document scripts, script open actions and additional
// actions on the catalog, pages and annotations.
func JavaScript(doc *pdfdoc.Document) (Result, error) {
	var res Result
	cat, err := doc.Catalog()
	if err != nil {
		return res, err
	}
	if names := doc.DerefDict(cat["Names"]); names != nil {
		if tree, ok := names["JavaScript"]; ok {
			for _, v := range nameTreeValues(doc, tree, 0) {
				discardAction(doc, v)
				res.add("script %v", v)
			}
		}
	}
	if doc.DropNameTree("JavaScript") {
		res.add("Names/JavaScript")
	}
	if _, ok := cat["JavaScript"]; ok {
		delete(cat, "JavaScript")
		res.add("Catalog/JavaScript")
	}
	if oa, ok := cat["OpenAction"]; ok && isJSAction(doc, oa) {
		discardAction(doc, oa)
		delete(cat, "OpenAction")
		res.add("Catalog/OpenAction")
	}
	if _, ok := cat["AA"]; ok {
		delete(cat, "AA")
		res.add("Catalog/AA")
	}

	pages, err := doc.Pages()
	if err != nil {
		return res, err
	}
	for _, p := range pages {
		if _, ok := p.Dict["AA"]; ok {
			delete(p.Dict, "AA")
			res.add("page %d AA", p.Number)
		}
		for _, a := range annotations(doc, p) {
			ad := doc.DerefDict(a)
			if ad == nil {
				continue
			}
			if _, ok := ad["AA"]; ok {
				delete(ad, "AA")
				res.add("page %d annotation AA", p.Number)
			}
			if isJSAction(doc, ad["A"]) {
				delete(ad, "A")
				res.add("page %d annotation script action", p.Number)
			}
		}
	}
	return res, nil
}

// Attachments removes embedded files and file attachment annotations.
func Attachments(doc *pdfdoc.Document) (Result, error) {
	var res Result
	cat, err := doc.Catalog()
	if err != nil {
		return res, err
	}
	if names := doc.DerefDict(cat["Names"]); names != nil {
		if tree, ok := names["EmbeddedFiles"]; ok {
			for _, spec := range nameTreeValues(doc, tree, 0) {
				discardFileSpec(doc, spec)
				res.add("embedded file")
			}
		}
	}
	doc.DropNameTree("EmbeddedFiles")
	pages, err := doc.Pages()
	if err != nil {
		return res, err
	}
	for _, p := range pages {
		n := filterAnnotations(doc, p, func(a types.Dict) bool {
			if doc.NameOf(a, "Subtype") != "FileAttachment" {
				return true
			}
			discardFileSpec(doc, a["FS"])
			return false
		})
		for i := 0; i < n; i++ {
			res.add("page %d file attachment annotation", p.Number)
		}
	}
	return res, nil
}

// discardAction empties a script stream behind a JavaScript action and
// clears its JS entry in case the action object stays reachable.
func discardAction(doc *pdfdoc.Document, o types.Object) {
	d := doc.DerefDict(o)
	if d == nil {
		return
	}
	doc.Discard(d["JS"])
	delete(d, "JS")
}

func discardFileSpec(doc *pdfdoc.Document, spec types.Object) {
	fs := doc.DerefDict(spec)
	if fs == nil {
		return
	}
	if ef := doc.DerefDict(fs["EF"]); ef != nil {
		for _, v := range ef {
			doc.Discard(v)
		}
	}
	delete(fs, "EF")
}

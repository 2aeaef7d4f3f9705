package clean

import (
	"github.com/local/redactor/internal/pdfdoc"
)

var infoKeys = []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer", "CreationDate", "ModDate"}

// DocumentInfo removes the descriptive Info entries, and the Info
// dictionary itself when nothing else is left in it.
func DocumentInfo(doc *pdfdoc.Document) (Result, error) {
	var res Result
	info, err := doc.Info(false)
	if err != nil || info == nil {
		return res, err
	}
	for _, k := range infoKeys {
		if _, ok := info[k]; ok {
			delete(info, k)
			res.add("Info/%s", k)
		}
	}
	if len(info) == 0 {
		doc.DropInfo()
		res.add("empty Info dictionary")
	}
	return res, nil
}

// XMPMetadata drops the catalog's XMP stream.
func XMPMetadata(doc *pdfdoc.Document) (Result, error) {
	var res Result
	cat, err := doc.Catalog()
	if err != nil {
		return res, err
	}
	if md, ok := cat["Metadata"]; ok {
		delete(cat, "Metadata")
		doc.Discard(md)
		res.add("Catalog/Metadata")
	}
	return res, nil
}

var hiddenCatalogKeys = []string{"PieceInfo", "LastModified", "SpiderInfo", "Perms"}

// HiddenData removes application private data and edit timestamps.
func HiddenData(doc *pdfdoc.Document) (Result, error) {
	var res Result
	cat, err := doc.Catalog()
	if err != nil {
		return res, err
	}
	for _, k := range hiddenCatalogKeys {
		if _, ok := cat[k]; ok {
			delete(cat, k)
			res.add("Catalog/%s", k)
		}
	}
	pages, err := doc.Pages()
	if err != nil {
		return res, err
	}
	for _, p := range pages {
		for _, k := range []string{"PieceInfo", "LastModified"} {
			if _, ok := p.Dict[k]; ok {
				delete(p.Dict, k)
				res.add("page %d %s", p.Number, k)
			}
		}
	}
	return res, nil
}

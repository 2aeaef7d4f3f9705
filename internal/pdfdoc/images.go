package pdfdoc

import (
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// Image is an image XObject reachable from a page's resources.
type Image struct {
	Name   string
	ObjNr  int
	Stream types.StreamDict
}

// Images lists the page's image XObjects in resource-name order.
// Form XObjects and stencil masks (/ImageMask true) are skipped.
func (d *Document) Images(p *Page) []Image {
	xobj := d.DerefDict(d.Resources(p)["XObject"])
	if xobj == nil {
		return nil
	}
	names := make([]string, 0, len(xobj))
	for k := range xobj {
		names = append(names, k)
	}
	sort.Strings(names)

	var out []Image
	seen := map[int]bool{}
	for _, name := range names {
		sd, objNr, ok := d.Stream(xobj[name])
		if !ok || objNr == 0 || seen[objNr] {
			continue
		}
		if d.NameOf(sd.Dict, "Subtype") != "Image" || d.Bool(sd.Dict, "ImageMask") {
			continue
		}
		seen[objNr] = true
		out = append(out, Image{Name: name, ObjNr: objNr, Stream: sd})
	}
	return out
}

package pdfdoc

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/redactor/internal/geom"
)

// Page is a resolved page-tree leaf.
type Page struct {
	Number int // 1-based
	Dict   types.Dict
	Ref    types.IndirectRef
	Box    geom.PageBox
}

// maxInheritDepth bounds Parent chains so malformed cyclic trees terminate.
const maxInheritDepth = 64

// Page resolves page number n (1-based).
func (d *Document) Page(n int) (*Page, error) {
	if n < 1 || n > d.ctx.PageCount {
		return nil, fmt.Errorf("page %d out of range (1..%d)", n, d.ctx.PageCount)
	}
	dict, ref, _, err := d.ctx.PageDict(n, false)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", n, err)
	}
	if dict == nil || ref == nil {
		return nil, fmt.Errorf("page %d: not found", n)
	}
	p := &Page{Number: n, Dict: dict, Ref: *ref}
	p.Box = d.box(dict)
	return p, nil
}

// inherited looks key up on the page and then its ancestors.
func (d *Document) inherited(page types.Dict, key string) types.Object {
	node := page
	for i := 0; node != nil && i < maxInheritDepth; i++ {
		if v, ok := node[key]; ok && v != nil {
			return v
		}
		node = d.DerefDict(node["Parent"])
	}
	return nil
}

// box prefers CropBox over MediaBox and falls back to US Letter.
func (d *Document) box(page types.Dict) geom.PageBox {
	b := geom.Letter
	if r, ok := d.rectangle(d.inherited(page, "MediaBox")); ok {
		b = geom.PageBox{LLX: r[0], LLY: r[1], URX: r[2], URY: r[3]}
	}
	if r, ok := d.rectangle(d.inherited(page, "CropBox")); ok {
		crop := geom.PageBox{LLX: r[0], LLY: r[1], URX: r[2], URY: r[3]}.Normalized()
		if crop.Width() > 0 && crop.Height() > 0 {
			b = crop
		}
	}
	if v, err := d.Deref(d.inherited(page, "Rotate")); err == nil {
		if n, ok := Number(v); ok {
			b.Rotate = int(n)
		}
	}
	return b.Normalized()
}

// Resources returns the page's (possibly inherited) resource dictionary.
func (d *Document) Resources(p *Page) types.Dict {
	return d.DerefDict(d.inherited(p.Dict, "Resources"))
}

func (d *Document) contentRefs(page types.Dict) []types.Object {
	v := page["Contents"]
	if ref, ok := v.(types.IndirectRef); ok {
		if arr, ok := d.DerefArray(ref); ok {
			return arr
		}
		return []types.Object{ref}
	}
	if arr, ok := v.(types.Array); ok {
		return arr
	}
	if v != nil {
		return []types.Object{v}
	}
	return nil
}

// DerefArray resolves o to an array.
func (d *Document) DerefArray(o types.Object) (types.Array, bool) {
	v, err := d.Deref(o)
	if err != nil {
		return nil, false
	}
	arr, ok := v.(types.Array)
	return arr, ok
}

// Content returns the page's decoded content, joining multiple streams with a newline.
func (d *Document) Content(p *Page) ([]byte, error) {
	var out [][]byte
	for _, o := range d.contentRefs(p.Dict) {
		sd, _, ok := d.Stream(o)
		if !ok {
			continue
		}
		b, err := StreamContent(&sd)
		if err != nil {
			return nil, fmt.Errorf("page %d content: %w", p.Number, err)
		}
		out = append(out, b)
	}
	return bytes.Join(out, []byte("\n")), nil
}

// SetContent replaces the page's content with a single new Flate stream.
// Streams the page no longer uses, and no other page shares, are emptied.
func (d *Document) SetContent(p *Page, data []byte) error {
	old := d.contentObjNrs(p.Dict)
	sd, err := NewFlateStream(nil, data)
	if err != nil {
		return err
	}
	ref, err := d.AddObject(sd)
	if err != nil {
		return err
	}
	p.Dict["Contents"] = ref
	if err := d.SetObject(int(p.Ref.ObjectNumber), p.Dict); err != nil {
		return err
	}
	d.retire(old)
	return nil
}

func (d *Document) contentObjNrs(page types.Dict) []int {
	var nrs []int
	if ref, ok := page["Contents"].(types.IndirectRef); ok {
		if _, isArr := d.DerefArray(ref); isArr {
			nrs = append(nrs, int(ref.ObjectNumber))
		}
	}
	for _, o := range d.contentRefs(page) {
		if ref, ok := o.(types.IndirectRef); ok {
			nrs = append(nrs, int(ref.ObjectNumber))
		}
	}
	return nrs
}

// inUse collects object numbers referenced as content or XObjects by the current pages.
func (d *Document) inUse() map[int]bool {
	used := map[int]bool{}
	for n := 1; n <= d.ctx.PageCount; n++ {
		p, err := d.Page(n)
		if err != nil {
			continue
		}
		for _, nr := range d.contentObjNrs(p.Dict) {
			used[nr] = true
		}
		if xobj := d.DerefDict(d.Resources(p)["XObject"]); xobj != nil {
			for _, v := range xobj {
				if ref, ok := v.(types.IndirectRef); ok {
					used[int(ref.ObjectNumber)] = true
				}
			}
		}
	}
	return used
}

// retire empties streams that no remaining page references, so their bytes
// cannot reach the output even if something else still points at them.
func (d *Document) retire(objNrs []int) {
	if len(objNrs) == 0 {
		return
	}
	used := d.inUse()
	for _, nr := range objNrs {
		if used[nr] {
			continue
		}
		entry, ok := d.ctx.Table[nr]
		if !ok || entry == nil || entry.Free {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		dict := types.Dict{}
		if d.NameOf(sd.Dict, "Subtype") == "Image" {
			dict["Type"] = types.Name("XObject")
			dict["Subtype"] = types.Name("Image")
			dict["Width"] = types.Integer(1)
			dict["Height"] = types.Integer(1)
			dict["ColorSpace"] = types.Name("DeviceGray")
			dict["BitsPerComponent"] = types.Integer(8)
			entry.Object = NewRawStream(dict, []byte{0}, "")
			continue
		}
		for _, k := range []string{"Type", "Subtype", "BBox", "Matrix"} {
			if v, ok := sd.Dict[k]; ok {
				dict[k] = v
			}
		}
		entry.Object = NewRawStream(dict, nil, "")
	}
}

// ReplaceWithImage rebuilds the page so that its only content is a JPEG
// covering the displayed page. Every original entry is dropped; the page
// keeps its object number and parent so outlines and links still resolve.
func (d *Document) ReplaceWithImage(p *Page, jpeg []byte, pxW, pxH int) error {
	w, h := p.Box.DisplaySize()
	img := NewRawStream(types.Dict{
		"Type":             types.Name("XObject"),
		"Subtype":          types.Name("Image"),
		"Width":            types.Integer(pxW),
		"Height":           types.Integer(pxH),
		"ColorSpace":       types.Name("DeviceRGB"),
		"BitsPerComponent": types.Integer(8),
	}, jpeg, FilterDCT)
	imgRef, err := d.AddObject(img)
	if err != nil {
		return err
	}
	content := fmt.Sprintf("q %s 0 0 %s 0 0 cm /Im0 Do Q\n", fnum(w), fnum(h))
	cs, err := NewFlateStream(nil, []byte(content))
	if err != nil {
		return err
	}
	csRef, err := d.AddObject(cs)
	if err != nil {
		return err
	}

	old := d.contentObjNrs(p.Dict)
	if xobj := d.DerefDict(d.Resources(p)["XObject"]); xobj != nil {
		for _, v := range xobj {
			if ref, ok := v.(types.IndirectRef); ok {
				old = append(old, int(ref.ObjectNumber))
			}
		}
	}

	parent := p.Dict["Parent"]
	for k := range p.Dict {
		delete(p.Dict, k)
	}
	p.Dict["Type"] = types.Name("Page")
	p.Dict["Parent"] = parent
	p.Dict["MediaBox"] = types.Array{types.Integer(0), types.Integer(0), types.Float(w), types.Float(h)}
	p.Dict["Resources"] = types.Dict{"XObject": types.Dict{"Im0": imgRef}}
	p.Dict["Contents"] = csRef
	p.Box = geom.PageBox{URX: w, URY: h}
	if err := d.SetObject(int(p.Ref.ObjectNumber), p.Dict); err != nil {
		return err
	}

	d.retire(old)
	return nil
}

func fnum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Pages resolves every page in order.
func (d *Document) Pages() ([]*Page, error) {
	out := make([]*Page, 0, d.ctx.PageCount)
	for n := 1; n <= d.ctx.PageCount; n++ {
		p, err := d.Page(n)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Discard empties the streams behind the given references unless a page
// still draws them. Non-stream objects are left alone.
func (d *Document) Discard(objs ...types.Object) {
	var nrs []int
	for _, o := range objs {
		if ref, ok := o.(types.IndirectRef); ok {
			nrs = append(nrs, int(ref.ObjectNumber))
		}
	}
	d.retire(nrs)
}

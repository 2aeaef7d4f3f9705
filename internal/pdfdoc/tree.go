package pdfdoc

import (
	"fmt"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// DeletePages removes pages by 0-based index. Indices are processed in
// descending order so earlier removals do not shift later ones; duplicates
// and out-of-range indices are ignored. It returns the number removed.
func (d *Document) DeletePages(indices []int) (int, error) {
	seen := map[int]bool{}
	var idx []int
	for _, i := range indices {
		if i < 0 || i >= d.ctx.PageCount || seen[i] {
			continue
		}
		seen[i] = true
		idx = append(idx, i)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(idx)))
	if len(idx) >= d.ctx.PageCount && len(idx) > 0 {
		return 0, fmt.Errorf("refusing to delete all %d pages", d.ctx.PageCount)
	}

	var retired []int
	removed := 0
	for _, i := range idx {
		p, err := d.Page(i + 1)
		if err != nil {
			return removed, err
		}
		nrs := d.contentObjNrs(p.Dict)
		if err := d.unlink(p); err != nil {
			return removed, fmt.Errorf("delete page %d: %w", i+1, err)
		}
		d.ctx.PageCount--
		removed++
		retired = append(retired, nrs...)
	}
	d.retire(retired)
	return removed, nil
}

// unlink drops the page from its parent's Kids and fixes Count up the tree.
// A parent left without kids is removed from its own parent as well.
func (d *Document) unlink(p *Page) error {
	parentRef, ok := p.Dict["Parent"].(types.IndirectRef)
	if !ok {
		return fmt.Errorf("page has no parent")
	}
	if err := d.unlinkOnly(p.Ref.ObjectNumber, parentRef); err != nil {
		return err
	}
	d.decrementCounts(parentRef)

	parent := d.DerefDict(parentRef)
	kids, _ := d.DerefArray(parent["Kids"])
	if grand, ok := parent["Parent"].(types.IndirectRef); ok && len(kids) == 0 {
		return d.unlinkOnly(parentRef.ObjectNumber, grand)
	}
	return nil
}

// unlinkOnly removes a child from its parent's Kids without touching counts.
func (d *Document) unlinkOnly(childNr types.Integer, parentRef types.IndirectRef) error {
	parent := d.DerefDict(parentRef)
	if parent == nil {
		return fmt.Errorf("parent %d unresolved", parentRef.ObjectNumber)
	}
	kids, _ := d.DerefArray(parent["Kids"])
	out := make(types.Array, 0, len(kids))
	for _, k := range kids {
		if ref, ok := k.(types.IndirectRef); ok && ref.ObjectNumber == childNr {
			continue
		}
		out = append(out, k)
	}
	parent["Kids"] = out
	return nil
}

func (d *Document) decrementCounts(ref types.IndirectRef) {
	for depth := 0; depth < maxInheritDepth; depth++ {
		node := d.DerefDict(ref)
		if node == nil {
			return
		}
		if n, ok := d.Int(node, "Count"); ok && n > 0 {
			node["Count"] = types.Integer(n - 1)
		}
		next, ok := node["Parent"].(types.IndirectRef)
		if !ok {
			return
		}
		ref = next
	}
}

// countLeaves walks the page tree when pdfcpu could not validate it.
func (d *Document) countLeaves() int {
	root, err := d.Catalog()
	if err != nil || root == nil {
		return 0
	}
	var walk func(o types.Object, depth int) int
	walk = func(o types.Object, depth int) int {
		if depth > maxInheritDepth {
			return 0
		}
		node := d.DerefDict(o)
		if node == nil {
			return 0
		}
		if d.NameOf(node, "Type") == "Page" {
			return 1
		}
		kids, _ := d.DerefArray(node["Kids"])
		n := 0
		for _, k := range kids {
			n += walk(k, depth+1)
		}
		return n
	}
	return walk(root["Pages"], 0)
}

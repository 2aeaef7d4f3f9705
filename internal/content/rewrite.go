package content

import (
	"bytes"
	"sort"

	"github.com/local/redactor/internal/geom"
)

type splice struct {
	start, end int
	repl       []byte
}

// blank returns an operand of the same syntax whose decoded bytes are all NUL.
func blank(o *Operand) []byte {
	n := len(o.Bytes)
	if o.Kind == KindHex {
		return append(append([]byte{'<'}, bytes.Repeat([]byte("00"), n)...), '>')
	}
	return append(append([]byte{'('}, make([]byte, n)...), ')')
}

func hits(boxes []geom.Rect, rects []geom.Rect) bool {
	for _, b := range boxes {
		for _, r := range rects {
			if r.Intersects(b, IntersectMargin) {
				return true
			}
		}
	}
	return false
}

// Rewrite blanks every shown string that touches one of rects. Only the
// string operands change; all other bytes of data are kept as they are.
// It returns the new stream and the number of operands blanked.
func Rewrite(data []byte, rects []geom.Rect) ([]byte, int, error) {
	ops, err := Lex(data)
	if err != nil {
		return nil, 0, err
	}
	if len(rects) == 0 {
		return data, 0, nil
	}
	var edits []splice
	NewInterpreter().Walk(ops, func(s Shown) {
		if len(s.Operand.Bytes) == 0 || !hits(s.Boxes, rects) {
			return
		}
		edits = append(edits, splice{start: s.Operand.Start, end: s.Operand.End, repl: blank(s.Operand)})
	})
	if len(edits) == 0 {
		return data, 0, nil
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var out bytes.Buffer
	out.Grow(len(data))
	pos := 0
	for _, e := range edits {
		out.Write(data[pos:e.start])
		out.Write(e.repl)
		pos = e.end
	}
	out.Write(data[pos:])
	return out.Bytes(), len(edits), nil
}

// TextRun is a shown string with the user-space box of each byte.
type TextRun struct {
	Bytes []byte
	Boxes []geom.Rect
}

// Text renders the run bytes as a string, treating single bytes as Latin-1.
func (r TextRun) Text() string {
	rs := make([]rune, len(r.Bytes))
	for i, b := range r.Bytes {
		rs[i] = rune(b)
	}
	return string(rs)
}

// Runs lists every string shown inside text objects, in stream order.
func Runs(data []byte) ([]TextRun, error) {
	ops, err := Lex(data)
	if err != nil {
		return nil, err
	}
	var runs []TextRun
	NewInterpreter().Walk(ops, func(s Shown) {
		if len(s.Operand.Bytes) == 0 {
			return
		}
		runs = append(runs, TextRun{Bytes: append([]byte(nil), s.Operand.Bytes...), Boxes: s.Boxes})
	})
	return runs, nil
}

// TextUnder returns the strings whose glyphs intersect rects, for verification.
func TextUnder(data []byte, rects []geom.Rect) ([]string, error) {
	runs, err := Runs(data)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, r := range runs {
		if hits(r.Boxes, rects) {
			out = append(out, r.Text())
		}
	}
	return out, nil
}

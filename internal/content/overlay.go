package content

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/local/redactor/internal/geom"
)

// Overlay wraps data in a saved graphics state and appends one opaque black
// filled rectangle per rect, drawn in default user space.
func Overlay(data []byte, rects []geom.Rect) []byte {
	var b bytes.Buffer
	b.Grow(len(data) + 64 + 48*len(rects))
	open, stray := balance(data)
	// a Q the page never saved for would otherwise pop the wrapping q
	for i := stray; i > 0; i-- {
		b.WriteString("q\n")
	}
	b.WriteString("q\n")
	b.Write(data)
	b.WriteString("\n")
	// close any q the page left open so the overlay is not drawn in its CTM
	for i := open; i > 0; i-- {
		b.WriteString("Q\n")
	}
	b.WriteString("Q\n")
	b.Write(FillRects(rects))
	return b.Bytes()
}

// FillRects is the overlay layer on its own.
func FillRects(rects []geom.Rect) []byte {
	var b bytes.Buffer
	b.WriteString("q 0 0 0 rg 0 0 0 RG\n")
	for _, r := range rects {
		b.WriteString(num(r.X))
		b.WriteByte(' ')
		b.WriteString(num(r.Y))
		b.WriteByte(' ')
		b.WriteString(num(r.W))
		b.WriteByte(' ')
		b.WriteString(num(r.H))
		b.WriteString(" re f\n")
	}
	b.WriteString("Q\n")
	return b.Bytes()
}

// balance reports the q left open at the end of data and the Q that had
// nothing to restore.
func balance(data []byte) (open, stray int) {
	ops, err := Lex(data)
	if err != nil {
		return 0, 0
	}
	in := NewInterpreter()
	in.Walk(ops, nil)
	return in.Depth(), in.Stray()
}

func num(v float64) string {
	s := strconv.FormatFloat(v, 'f', 3, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" || s == "" {
		return "0"
	}
	return s
}

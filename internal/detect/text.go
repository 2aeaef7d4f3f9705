package detect

import (
	"math"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/local/redactor/internal/content"
	"github.com/local/redactor/internal/geom"
)

func normalize(s string) string { return norm.NFKC.String(s) }

// pageText is the shown text of a page with the user-space box behind each
// byte. Separators inserted between runs have no box.
type pageText struct {
	text  strings.Builder
	boxes []*geom.Rect
}

func (p *pageText) String() string { return p.text.String() }

func (p *pageText) writeSep(s string) {
	p.text.WriteString(s)
	for i := 0; i < len(s); i++ {
		p.boxes = append(p.boxes, nil)
	}
}

func (p *pageText) writeRune(r rune, box geom.Rect) {
	s := normalize(string(r))
	p.text.WriteString(s)
	for i := 0; i < len(s); i++ {
		b := box
		p.boxes = append(p.boxes, &b)
	}
}

// span unions the boxes of text[start:end].
func (p *pageText) span(start, end int) (geom.Rect, bool) {
	var out geom.Rect
	found := false
	for _, b := range p.boxes[start:end] {
		if b == nil {
			continue
		}
		if !found {
			out, found = *b, true
			continue
		}
		out = out.Union(*b)
	}
	return out, found
}

// buildText joins runs in stream order. Runs continuing on the same baseline
// are glued (kerned words are often split across TJ elements), a visible gap
// becomes a space and a baseline change a newline.
func buildText(runs []content.TextRun) *pageText {
	pt := &pageText{}
	var prev *geom.Rect
	for _, r := range runs {
		if len(r.Boxes) == 0 {
			continue
		}
		first := r.Boxes[0]
		if prev != nil {
			pt.writeSep(separator(*prev, first))
		}
		for i, b := range r.Bytes {
			if i >= len(r.Boxes) {
				break
			}
			ch := rune(b)
			if b == 0 {
				ch = ' '
			}
			pt.writeRune(ch, r.Boxes[i])
		}
		last := r.Boxes[len(r.Boxes)-1]
		prev = &last
	}
	return pt
}

func separator(prev, next geom.Rect) string {
	h := math.Max(prev.H, 1)
	if math.Abs(prev.Y-next.Y) > h/2 {
		return "\n"
	}
	gap := next.X - (prev.X + prev.W)
	if gap > -h/4 && gap < h/4 {
		return ""
	}
	return " "
}

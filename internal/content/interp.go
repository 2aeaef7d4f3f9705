package content

import (
	"math"

	"github.com/local/redactor/internal/geom"
)

// IntersectMargin grows redaction rectangles before testing them against glyph boxes.
const IntersectMargin = 5.0

// minGlyphHeight is the smallest glyph box height, in user-space points.
const minGlyphHeight = 12.0

// Shown describes one string operand drawn by a text-show operator.
type Shown struct {
	OpIndex int
	Operand *Operand // points into the op's operands (or array elements for TJ)
	Boxes   []geom.Rect
}

// Bounds is the union of the per-byte boxes.
func (s Shown) Bounds() geom.Rect {
	if len(s.Boxes) == 0 {
		return geom.Rect{}
	}
	r := s.Boxes[0]
	for _, b := range s.Boxes[1:] {
		r = r.Union(b)
	}
	return r
}

type gstate struct {
	ctm       geom.Matrix
	fontSize  float64
	leading   float64
	charSpace float64
	wordSpace float64
}

// defaultFontSize stands in for a Tf the content never issued.
const defaultFontSize = 12.0

// Interpreter replays operators tracking the CTM and text state.
type Interpreter struct {
	gs     gstate
	stack  []gstate
	stray  int
	tm     geom.Matrix
	tlm    geom.Matrix
	inText bool
}

// NewInterpreter starts with an identity CTM, as at the beginning of a page.
func NewInterpreter() *Interpreter {
	return &Interpreter{
		gs:  gstate{ctm: geom.Identity, fontSize: defaultFontSize},
		tm:  geom.Identity,
		tlm: geom.Identity,
	}
}

// CTM returns the current transformation matrix.
func (in *Interpreter) CTM() geom.Matrix { return in.gs.ctm }

// Depth is the number of saved states not yet restored.
func (in *Interpreter) Depth() int { return len(in.stack) }

// Stray counts Q operators seen with nothing left to restore.
func (in *Interpreter) Stray() int { return in.stray }

// Walk replays ops and calls visit for every string shown inside BT..ET.
func (in *Interpreter) Walk(ops []Op, visit func(Shown)) {
	for i := range ops {
		in.step(ops, i, visit)
	}
}

func nums(op *Op) []float64 {
	out := make([]float64, 0, len(op.Operands))
	for _, o := range op.Operands {
		if o.Kind == KindNumber {
			out = append(out, o.Num)
		}
	}
	return out
}

func lastString(op *Op) *Operand {
	for i := len(op.Operands) - 1; i >= 0; i-- {
		if op.Operands[i].IsString() {
			return &op.Operands[i]
		}
	}
	return nil
}

func (in *Interpreter) step(ops []Op, i int, visit func(Shown)) {
	op := &ops[i]
	switch op.Name {
	case "q":
		in.stack = append(in.stack, in.gs)
	case "Q":
		if n := len(in.stack); n > 0 {
			in.gs = in.stack[n-1]
			in.stack = in.stack[:n-1]
		} else {
			in.stray++
		}
	case "cm":
		if v := nums(op); len(v) == 6 {
			m := geom.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			in.gs.ctm = m.Mul(in.gs.ctm)
		}
	case "BT":
		in.inText = true
		in.tm, in.tlm = geom.Identity, geom.Identity
	case "ET":
		in.inText = false
	case "Tf":
		if v := nums(op); len(v) >= 1 {
			in.gs.fontSize = v[len(v)-1]
		}
	case "TL":
		if v := nums(op); len(v) == 1 {
			in.gs.leading = v[0]
		}
	case "Tc":
		if v := nums(op); len(v) == 1 {
			in.gs.charSpace = v[0]
		}
	case "Tw":
		if v := nums(op); len(v) == 1 {
			in.gs.wordSpace = v[0]
		}
	case "Td":
		if v := nums(op); len(v) == 2 {
			in.moveLine(v[0], v[1])
		}
	case "TD":
		if v := nums(op); len(v) == 2 {
			in.gs.leading = -v[1]
			in.moveLine(v[0], v[1])
		}
	case "Tm":
		if v := nums(op); len(v) == 6 {
			in.tm = geom.Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			in.tlm = in.tm
		}
	case "T*":
		in.moveLine(0, -in.gs.leading)
	case "Tj":
		if s := lastString(op); s != nil {
			in.show(i, s, visit)
		}
	case "'":
		in.moveLine(0, -in.gs.leading)
		if s := lastString(op); s != nil {
			in.show(i, s, visit)
		}
	case `"`:
		if v := nums(op); len(v) >= 2 {
			in.gs.wordSpace, in.gs.charSpace = v[0], v[1]
		}
		in.moveLine(0, -in.gs.leading)
		if s := lastString(op); s != nil {
			in.show(i, s, visit)
		}
	case "TJ":
		for k := range op.Operands {
			if op.Operands[k].Kind != KindArray {
				continue
			}
			arr := &op.Operands[k]
			for j := range arr.Elems {
				el := &arr.Elems[j]
				switch {
				case el.IsString():
					in.show(i, el, visit)
				case el.Kind == KindNumber:
					in.advance(-el.Num / 1000 * in.gs.fontSize)
				}
			}
		}
	}
}

func (in *Interpreter) moveLine(tx, ty float64) {
	in.tlm = geom.Translate(tx, ty).Mul(in.tlm)
	in.tm = in.tlm
}

// advance moves the text matrix along the baseline by tx text-space units.
func (in *Interpreter) advance(tx float64) {
	in.tm = geom.Translate(tx, 0).Mul(in.tm)
}

// glyphWidth approximates the advance of one byte as a fraction of the font size.
func glyphWidth(b byte) float64 {
	if b < 0x80 {
		return 0.55
	}
	return 1.0
}

func (in *Interpreter) show(opIndex int, s *Operand, visit func(Shown)) {
	fs := in.gs.fontSize
	trm := in.tm.Mul(in.gs.ctm)
	vx, vy := trm.ApplyVector(0, 1)
	vscale := math.Hypot(vx, vy)

	// glyph height in text space so that the user-space height is max(|fs|*vscale, 12)
	h := math.Abs(fs)
	if vscale > 0 && h*vscale < minGlyphHeight {
		h = minGlyphHeight / vscale
	}

	boxes := make([]geom.Rect, 0, len(s.Bytes))
	x := 0.0
	for _, b := range s.Bytes {
		adv := glyphWidth(b)*fs + in.gs.charSpace
		if b == ' ' {
			adv += in.gs.wordSpace
		}
		boxes = append(boxes, trm.TransformRect(geom.Rect{X: x, Y: 0, W: adv, H: h}))
		x += adv
	}
	if in.inText && visit != nil {
		visit(Shown{OpIndex: opIndex, Operand: s, Boxes: boxes})
	}
	in.advance(x)
}

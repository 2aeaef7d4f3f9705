package geom

import (
	"image"
	"math"
)

// Mask is a redaction area in normalized display coordinates: origin at the
// top-left of the page as shown (rotation applied), all fields in [0, 1].
type Mask struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an axis-aligned rectangle in PDF user space (bottom-left origin, points).
type Rect struct {
	X, Y, W, H float64
}

// Intersects reports whether r and o overlap once r is grown by margin on every side.
func (r Rect) Intersects(o Rect, margin float64) bool {
	return r.X-margin < o.X+o.W && o.X < r.X+r.W+margin &&
		r.Y-margin < o.Y+o.H && o.Y < r.Y+r.H+margin
}

// Union returns the smallest rectangle covering r and o.
func (r Rect) Union(o Rect) Rect {
	x0 := math.Min(r.X, o.X)
	y0 := math.Min(r.Y, o.Y)
	x1 := math.Max(r.X+r.W, o.X+o.W)
	y1 := math.Max(r.Y+r.H, o.Y+o.H)
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// PageBox is the visible region of a page in user space plus its /Rotate.
type PageBox struct {
	LLX, LLY, URX, URY float64
	Rotate             int
}

// Letter is the box used when a page declares neither CropBox nor MediaBox.
var Letter = PageBox{LLX: 0, LLY: 0, URX: 612, URY: 792}

// NormalizeRotation folds any /Rotate value into {0, 90, 180, 270}.
// Values that are not multiples of 90 are treated as 0.
func NormalizeRotation(r int) int {
	r %= 360
	if r < 0 {
		r += 360
	}
	if r%90 != 0 {
		return 0
	}
	return r
}

// Normalized returns b with ordered corners and a folded rotation.
func (b PageBox) Normalized() PageBox {
	if b.URX < b.LLX {
		b.LLX, b.URX = b.URX, b.LLX
	}
	if b.URY < b.LLY {
		b.LLY, b.URY = b.URY, b.LLY
	}
	b.Rotate = NormalizeRotation(b.Rotate)
	return b
}

// Width and Height are unrotated user-space extents.
func (b PageBox) Width() float64  { return b.URX - b.LLX }
func (b PageBox) Height() float64 { return b.URY - b.LLY }

// DisplaySize returns the page size as shown; 90 and 270 swap the axes.
func (b PageBox) DisplaySize() (w, h float64) {
	b = b.Normalized()
	if b.Rotate == 90 || b.Rotate == 270 {
		return b.Height(), b.Width()
	}
	return b.Width(), b.Height()
}

// DisplayMatrix maps normalized display coordinates (u right, v down) to user space.
func (b PageBox) DisplayMatrix() Matrix {
	b = b.Normalized()
	w, h := b.Width(), b.Height()
	switch b.Rotate {
	case 90:
		return Matrix{0, h, w, 0, b.LLX, b.LLY}
	case 180:
		return Matrix{-w, 0, 0, h, b.LLX + w, b.LLY}
	case 270:
		return Matrix{0, -h, -w, 0, b.LLX + w, b.LLY + h}
	default:
		return Matrix{w, 0, 0, -h, b.LLX, b.LLY + h}
	}
}

// Clamp intersects r with the box; ok is false when nothing with area remains.
func (b PageBox) Clamp(r Rect) (Rect, bool) {
	b = b.Normalized()
	x0 := math.Max(r.X, b.LLX)
	y0 := math.Max(r.Y, b.LLY)
	x1 := math.Min(r.X+r.W, b.URX)
	y1 := math.Min(r.Y+r.H, b.URY)
	if x1-x0 <= 0 || y1-y0 <= 0 {
		return Rect{}, false
	}
	return Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}

// MapMask converts a display-space mask into a user-space rectangle inside the box.
func MapMask(m Mask, box PageBox) (Rect, bool) {
	unit := Rect{X: m.X, Y: m.Y, W: m.Width, H: m.Height}
	return box.Clamp(box.DisplayMatrix().TransformRect(unit))
}

// MapMasks maps every mask and drops the ones that end up empty.
func MapMasks(masks []Mask, box PageBox) []Rect {
	out := make([]Rect, 0, len(masks))
	for _, m := range masks {
		if r, ok := MapMask(m, box); ok {
			out = append(out, r)
		}
	}
	return out
}

// UnmapRect converts a user-space rectangle back into display-space mask coordinates.
func UnmapRect(r Rect, box PageBox) Mask {
	inv, ok := box.DisplayMatrix().Invert()
	if !ok {
		return Mask{}
	}
	u := inv.TransformRect(r)
	return Mask{X: u.X, Y: u.Y, Width: u.W, Height: u.H}
}

// pixelEps absorbs float noise so an edge on a pixel boundary does not grow by a row.
const pixelEps = 1e-6

// PixelRect maps a mask onto a raster of w×h pixels, clamped to its bounds.
// Edges round outwards.
func PixelRect(m Mask, w, h int) image.Rectangle {
	x0 := int(math.Floor(m.X*float64(w) + pixelEps))
	y0 := int(math.Floor(m.Y*float64(h) + pixelEps))
	x1 := int(math.Ceil((m.X+m.Width)*float64(w) - pixelEps))
	y1 := int(math.Ceil((m.Y+m.Height)*float64(h) - pixelEps))
	return image.Rect(x0, y0, x1, y1).Intersect(image.Rect(0, 0, w, h))
}

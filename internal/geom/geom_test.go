package geom

import (
	"image"
	"math"
	"testing"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-4 }

func rectNear(a, b Rect) bool {
	return near(a.X, b.X) && near(a.Y, b.Y) && near(a.W, b.W) && near(a.H, b.H)
}

// TestMatrixMulOrder tests that Mul applies the receiver first.
func TestMatrixMulOrder(t *testing.T) {
	m := Translate(10, 0).Mul(Scale(2, 2))
	x, y := m.ApplyPoint(1, 1)
	if !near(x, 22) || !near(y, 2) {
		t.Errorf("translate then scale: got (%v,%v), want (22,2)", x, y)
	}
	m = Scale(2, 2).Mul(Translate(10, 0))
	x, y = m.ApplyPoint(1, 1)
	if !near(x, 12) || !near(y, 2) {
		t.Errorf("scale then translate: got (%v,%v), want (12,2)", x, y)
	}
}

func TestMatrixInvert(t *testing.T) {
	m := Matrix{0, 2, -3, 0, 7, -5}
	inv, ok := m.Invert()
	if !ok {
		t.Fatal("matrix should be invertible")
	}
	p := m.Mul(inv)
	for i, want := range Identity {
		if !near(p[i], want) {
			t.Fatalf("m*inv = %v, want identity", p)
		}
	}
	if _, ok := (Matrix{1, 2, 2, 4, 0, 0}).Invert(); ok {
		t.Error("singular matrix reported invertible")
	}
}

// TestMapMaskRotations tests the closed-form mapping for every rotation.
func TestMapMaskRotations(t *testing.T) {
	m := Mask{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.1}
	tests := []struct {
		rot  int
		want Rect
	}{
		// x = llx + u*W, y = lly + (1-v)*H
		{0, Rect{X: 61.2, Y: 792 * 0.7, W: 0.3 * 612, H: 0.1 * 792}},
		// x = llx + v*W, y = lly + u*H
		{90, Rect{X: 0.2 * 612, Y: 0.1 * 792, W: 0.1 * 612, H: 0.3 * 792}},
		// x = llx + (1-u)*W, y = lly + v*H
		{180, Rect{X: 0.6 * 612, Y: 0.2 * 792, W: 0.3 * 612, H: 0.1 * 792}},
		// x = llx + (1-v)*W, y = lly + (1-u)*H
		{270, Rect{X: 0.7 * 612, Y: 0.6 * 792, W: 0.1 * 612, H: 0.3 * 792}},
	}
	for _, tt := range tests {
		box := PageBox{LLX: 0, LLY: 0, URX: 612, URY: 792, Rotate: tt.rot}
		got, ok := MapMask(m, box)
		if !ok {
			t.Fatalf("rot %d: mask discarded", tt.rot)
		}
		if !rectNear(got, tt.want) {
			t.Errorf("rot %d: got %+v, want %+v", tt.rot, got, tt.want)
		}
	}
}

// TestMapMaskOffsetBox tests a crop box that does not start at the origin.
func TestMapMaskOffsetBox(t *testing.T) {
	box := PageBox{LLX: 50, LLY: 100, URX: 250, URY: 500}
	got, ok := MapMask(Mask{X: 0, Y: 0, Width: 0.5, Height: 0.25}, box)
	if !ok {
		t.Fatal("mask discarded")
	}
	want := Rect{X: 50, Y: 400, W: 100, H: 100}
	if !rectNear(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestMapMaskClamp(t *testing.T) {
	box := Letter
	got, ok := MapMask(Mask{X: 0.9, Y: -0.5, Width: 0.5, Height: 0.6}, box)
	if !ok {
		t.Fatal("partially visible mask discarded")
	}
	if got.X+got.W > 612+1e-9 || got.Y+got.H > 792+1e-9 || got.X < 0 || got.Y < 0 {
		t.Errorf("rect %+v escapes the box", got)
	}

	if _, ok := MapMask(Mask{X: 1.2, Y: 0.1, Width: 0.2, Height: 0.2}, box); ok {
		t.Error("mask outside the page should be discarded")
	}
	if _, ok := MapMask(Mask{X: 0.1, Y: 0.1, Width: 0, Height: 0.2}, box); ok {
		t.Error("zero-width mask should be discarded")
	}
	if n := len(MapMasks([]Mask{{X: 0.1, Y: 0.1, Width: 0.1, Height: 0.1}, {X: 2, Y: 2, Width: 1, Height: 1}}, box)); n != 1 {
		t.Errorf("MapMasks kept %d rects, want 1", n)
	}
}

// TestUnmapRoundTrip tests that unmapping a mapped mask returns the mask.
func TestUnmapRoundTrip(t *testing.T) {
	masks := []Mask{
		{X: 0, Y: 0, Width: 1, Height: 1},
		{X: 0.25, Y: 0.4, Width: 0.5, Height: 0.05},
		{X: 0.7, Y: 0.9, Width: 0.3, Height: 0.1},
	}
	for _, rot := range []int{0, 90, 180, 270, -90, 450} {
		box := PageBox{LLX: 10, LLY: 20, URX: 400, URY: 700, Rotate: rot}
		for _, m := range masks {
			r, ok := MapMask(m, box)
			if !ok {
				t.Fatalf("rot %d: %+v discarded", rot, m)
			}
			back := UnmapRect(r, box)
			if !near(back.X, m.X) || !near(back.Y, m.Y) || !near(back.Width, m.Width) || !near(back.Height, m.Height) {
				t.Errorf("rot %d: %+v -> %+v -> %+v", rot, m, r, back)
			}
		}
	}
}

func TestDisplaySize(t *testing.T) {
	box := PageBox{URX: 612, URY: 792, Rotate: 90}
	w, h := box.DisplaySize()
	if w != 792 || h != 612 {
		t.Errorf("rot 90 display = %vx%v, want 792x612", w, h)
	}
	box.Rotate = 180
	if w, h = box.DisplaySize(); w != 612 || h != 792 {
		t.Errorf("rot 180 display = %vx%v", w, h)
	}
}

func TestNormalizeRotation(t *testing.T) {
	for in, want := range map[int]int{0: 0, 90: 90, 360: 0, 450: 90, -90: 270, 45: 0, 720: 0} {
		if got := NormalizeRotation(in); got != want {
			t.Errorf("NormalizeRotation(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestIntersectsMargin(t *testing.T) {
	a := Rect{X: 0, Y: 0, W: 10, H: 10}
	b := Rect{X: 13, Y: 0, W: 5, H: 5}
	if a.Intersects(b, 0) {
		t.Error("disjoint rects intersect without margin")
	}
	if !a.Intersects(b, 5) {
		t.Error("rects 3pt apart should intersect with a 5pt margin")
	}
}

func TestPixelRect(t *testing.T) {
	got := PixelRect(Mask{X: 0.125, Y: 0.5, Width: 0.25, Height: 0.75}, 200, 100)
	want := image.Rect(25, 50, 75, 100)
	if got != want {
		t.Errorf("PixelRect = %v, want %v", got, want)
	}
}

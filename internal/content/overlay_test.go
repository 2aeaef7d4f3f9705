package content

import (
	"strings"
	"testing"

	"github.com/local/redactor/internal/geom"
)

func TestOverlay(t *testing.T) {
	got := string(Overlay([]byte("BT (a) Tj ET"), []geom.Rect{{X: 10, Y: 20.5, W: 30, H: 40.125}}))
	want := "q\nBT (a) Tj ET\nQ\nq 0 0 0 rg 0 0 0 RG\n10 20.5 30 40.125 re f\nQ\n"
	if got != want {
		t.Errorf("got  %q\nwant %q", got, want)
	}
}

// TestOverlayOneFillPerRect tests that each rect produces exactly one filled rectangle.
func TestOverlayOneFillPerRect(t *testing.T) {
	rects := []geom.Rect{{X: 1, Y: 1, W: 1, H: 1}, {X: 2, Y: 2, W: 2, H: 2}, {X: 3, Y: 3, W: 3, H: 3}}
	out := string(Overlay(nil, rects))
	if n := strings.Count(out, " re f\n"); n != 3 {
		t.Errorf("fills = %d, want 3", n)
	}
	ops, err := Lex([]byte(out))
	if err != nil {
		t.Fatal(err)
	}
	if c := Count(ops); c.Path != 3 {
		t.Errorf("path ops = %d, want 3", c.Path)
	}
}

// TestOverlayClosesOpenStates tests that unmatched q in the page are closed before the overlay.
func TestOverlayClosesOpenStates(t *testing.T) {
	out := Overlay([]byte("q 2 0 0 2 0 0 cm q"), []geom.Rect{{X: 1, Y: 1, W: 1, H: 1}})
	ops, err := Lex(out)
	if err != nil {
		t.Fatal(err)
	}
	in := NewInterpreter()
	var ctm geom.Matrix
	for i := range ops {
		in.Walk(ops[i:i+1], nil)
		if ops[i].Name == "re" {
			ctm = in.CTM()
		}
	}
	if ctm != geom.Identity {
		t.Errorf("overlay drawn under CTM %v", ctm)
	}
	if in.Depth() != 0 {
		t.Errorf("depth after overlay = %d", in.Depth())
	}
}

// TestOverlayAbsorbsStrayRestores tests that a page opening with Q cannot
// pop the wrapping state and leave its cm active for the overlay.
func TestOverlayAbsorbsStrayRestores(t *testing.T) {
	out := Overlay([]byte("Q 2 0 0 2 0 0 cm BT (a) Tj ET"), []geom.Rect{{X: 1, Y: 1, W: 1, H: 1}})
	if !strings.HasPrefix(string(out), "q\nq\n") {
		t.Errorf("got %q", out)
	}
	ops, err := Lex(out)
	if err != nil {
		t.Fatal(err)
	}
	in := NewInterpreter()
	var ctm geom.Matrix
	for i := range ops {
		in.Walk(ops[i:i+1], nil)
		if ops[i].Name == "re" {
			ctm = in.CTM()
		}
	}
	if ctm != geom.Identity {
		t.Errorf("overlay drawn under CTM %v", ctm)
	}
	if in.Depth() != 0 || in.Stray() != 0 {
		t.Errorf("depth %d stray %d after overlay", in.Depth(), in.Stray())
	}
}

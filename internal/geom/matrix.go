// Package geom holds the affine math and page-box mapping shared by the
// content interpreter and the redaction strategies.
package geom

import "math"

// Matrix is a PDF affine transform [a b c d e f], mapping
// (x, y) to (a*x + c*y + e, b*x + d*y + f).
type Matrix [6]float64

// Identity is the unit transform.
var Identity = Matrix{1, 0, 0, 1, 0, 0}

// Translate returns a translation by (tx, ty).
func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }

// Scale returns a scaling by (sx, sy).
func Scale(sx, sy float64) Matrix { return Matrix{sx, 0, 0, sy, 0, 0} }

// Mul returns the transform that applies m first and then n (PDF's m × n).
func (m Matrix) Mul(n Matrix) Matrix {
	return Matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

// ApplyPoint transforms a point.
func (m Matrix) ApplyPoint(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// ApplyVector transforms a direction, ignoring translation.
func (m Matrix) ApplyVector(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y, m[1]*x + m[3]*y
}

// Det is the determinant of the linear part.
func (m Matrix) Det() float64 { return m[0]*m[3] - m[1]*m[2] }

// Invert returns the inverse transform; ok is false for singular matrices.
func (m Matrix) Invert() (Matrix, bool) {
	det := m.Det()
	if math.Abs(det) < 1e-12 {
		return Identity, false
	}
	a := m[3] / det
	b := -m[1] / det
	c := -m[2] / det
	d := m[0] / det
	return Matrix{a, b, c, d, -(m[4]*a + m[5]*c), -(m[4]*b + m[5]*d)}, true
}

// TransformRect maps the four corners of r and returns their bounding box.
func (m Matrix) TransformRect(r Rect) Rect {
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.ApplyPoint(r.X, r.Y)
	xs[1], ys[1] = m.ApplyPoint(r.X+r.W, r.Y)
	xs[2], ys[2] = m.ApplyPoint(r.X, r.Y+r.H)
	xs[3], ys[3] = m.ApplyPoint(r.X+r.W, r.Y+r.H)
	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = math.Min(minX, xs[i])
		maxX = math.Max(maxX, xs[i])
		minY = math.Min(minY, ys[i])
		maxY = math.Max(maxY, ys[i])
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

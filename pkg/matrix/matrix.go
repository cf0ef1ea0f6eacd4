// Package matrix holds the affine transform used to place an image inside a
// frame. Only scale and translate are produced by this module, but the type
// carries all six coefficients so host matrices can pass through untouched.
package matrix

import (
	"fmt"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/floats"
)

// Coefficient indices into a Matrix, row-major:
//
//	| sx kx tx |
//	| ky sy ty |
//	|  0  0  1 |
const (
	ScaleX = iota
	SkewX
	TransX
	SkewY
	ScaleY
	TransY
)

// Matrix is an immutable 2x3 affine transform mapping image space to frame space.
type Matrix f64.Aff3

// Identity returns the transform that leaves points unchanged
func Identity() Matrix {
	return Matrix{1, 0, 0, 0, 1, 0}
}

// NewScale returns a scale about the origin
func NewScale(sx, sy float64) Matrix {
	return Matrix{sx, 0, 0, 0, sy, 0}
}

// NewTranslate returns a pure translation
func NewTranslate(tx, ty float64) Matrix {
	return Matrix{1, 0, tx, 0, 1, ty}
}

// FromValues builds a Matrix from the 9-entry row-major form. The
// homogeneous row is ignored.
func FromValues(v [9]float64) Matrix {
	return Matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
}

// Mul returns m*q: q is applied first, then m.
func (m Matrix) Mul(q Matrix) Matrix {
	return Matrix{
		m[0]*q[0] + m[1]*q[3],
		m[0]*q[1] + m[1]*q[4],
		m[0]*q[2] + m[1]*q[5] + m[2],
		m[3]*q[0] + m[4]*q[3],
		m[3]*q[1] + m[4]*q[4],
		m[3]*q[2] + m[4]*q[5] + m[5],
	}
}

// PostScale applies a scale after m
func (m Matrix) PostScale(sx, sy float64) Matrix {
	return NewScale(sx, sy).Mul(m)
}

// PostTranslate applies a translation after m
func (m Matrix) PostTranslate(tx, ty float64) Matrix {
	return NewTranslate(tx, ty).Mul(m)
}

// Values returns the full 3x3 row-major form
func (m Matrix) Values() [9]float64 {
	return [9]float64{m[0], m[1], m[2], m[3], m[4], m[5], 0, 0, 1}
}

// Aff3 exposes the matrix in the form expected by golang.org/x/image/draw
func (m Matrix) Aff3() f64.Aff3 {
	return f64.Aff3(m)
}

// Apply maps an image-space point to frame space
func (m Matrix) Apply(x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

// Invert returns the inverse transform, or false if m is singular
func (m Matrix) Invert() (Matrix, bool) {
	det := m[0]*m[4] - m[1]*m[3]
	if det == 0 {
		return Matrix{}, false
	}
	inv := 1 / det
	return Matrix{
		m[4] * inv,
		-m[1] * inv,
		(m[1]*m[5] - m[2]*m[4]) * inv,
		-m[3] * inv,
		m[0] * inv,
		(m[2]*m[3] - m[0]*m[5]) * inv,
	}, true
}

// Lerp blends every coefficient linearly: m + t*(to-m).
func (m Matrix) Lerp(to Matrix, t float64) Matrix {
	var diff, out Matrix
	floats.SubTo(diff[:], to[:], m[:])
	floats.AddScaledTo(out[:], m[:], t, diff[:])
	return out
}

// ApproxEqual compares coefficients within an absolute tolerance
func (m Matrix) ApproxEqual(q Matrix, tol float64) bool {
	return floats.EqualApprox(m[:], q[:], tol)
}

func (m Matrix) String() string {
	return fmt.Sprintf("[%g %g %g][%g %g %g][0 0 1]", m[0], m[1], m[2], m[3], m[4], m[5])
}

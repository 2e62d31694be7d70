// Package transform provides the camera models and planar target geometry
// used to estimate and refine camera calibrations from homographies.
package transform

import (
	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Homography is a 3x3 matrix used to transform a plane from the perspective
// of a 2D camera to the perspective of another 2D camera.
type Homography struct {
	matrix *mat.Dense
}

// NewHomography creates a Homography from a slice of floats, in row major order.
func NewHomography(vals []float64) (*Homography, error) {
	if len(vals) != 9 {
		return nil, errors.Errorf("input to NewHomography must have length of 9. Has length of %d", len(vals))
	}
	d := mat.NewDense(3, 3, vals)
	return &Homography{d}, nil
}

// At returns the value of the homography at the given index.
func (h *Homography) At(row, col int) float64 {
	return h.matrix.At(row, col)
}

// Apply will transform the given point according to the homography.
func (h *Homography) Apply(pt r2.Point) r2.Point {
	x := (h.At(0, 0)*pt.X + h.At(0, 1)*pt.Y + h.At(0, 2)) / (h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2))
	y := (h.At(1, 0)*pt.X + h.At(1, 1)*pt.Y + h.At(1, 2)) / (h.At(2, 0)*pt.X + h.At(2, 1)*pt.Y + h.At(2, 2))
	return r2.Point{X: x, Y: y}
}

// Inverse returns the inverse of the homography, mapping points in the
// target plane back to the source plane.
func (h *Homography) Inverse() (*Homography, error) {
	var hInv mat.Dense
	if err := hInv.Inverse(h.matrix); err != nil {
		return nil, errors.Wrap(err, "cannot invert homography")
	}
	return &Homography{&hInv}, nil
}

// Scaled returns the homography with every entry multiplied by s. Homographies
// are equivalent up to scale, so the scaled homography describes the same
// plane-to-plane mapping whenever s is not zero.
func (h *Homography) Scaled(s float64) *Homography {
	var m mat.Dense
	m.Scale(s, h.matrix)
	return &Homography{&m}
}

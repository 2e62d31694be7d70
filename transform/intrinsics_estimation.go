package transform

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// InsufficientDataError is returned when there are not enough homographies to
// constrain the requested intrinsics model.
type InsufficientDataError struct {
	Need int
	Have int
}

// NewInsufficientDataError creates an InsufficientDataError from the number of
// homographies needed and the number available.
func NewInsufficientDataError(need, have int) *InsufficientDataError {
	return &InsufficientDataError{Need: need, Have: have}
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("need at least %d homographies to estimate intrinsics, have %d", e.Need, e.Have)
}

// DegenerateGeometryError is returned when the view geometry does not pin down
// a solution, for example when the estimate of the absolute conic loses
// positive definiteness.
type DegenerateGeometryError struct {
	msg string
}

// NewDegenerateGeometryError creates a DegenerateGeometryError with the given message.
func NewDegenerateGeometryError(msg string) *DegenerateGeometryError {
	return &DegenerateGeometryError{msg: msg}
}

func (e *DegenerateGeometryError) Error() string {
	return e.msg
}

// absoluteConicRow builds the coefficient row that columns i and j of the
// homography contribute to the image of the absolute conic, following
// Zhang, "A flexible new technique for camera calibration", section 3.1.
// The unknown vector is (B11, B12, B22, B13, B23, B33).
func absoluteConicRow(h *Homography, i, j int) []float64 {
	a0, a1, a2 := h.At(0, i), h.At(1, i), h.At(2, i)
	b0, b1, b2 := h.At(0, j), h.At(1, j), h.At(2, j)
	return []float64{
		a0 * b0,
		a0*b1 + a1*b0,
		a1 * b1,
		a2*b0 + a0*b2,
		a2*b1 + a1*b2,
		a2 * b2,
	}
}

// conicConstraintRows returns the two constraint rows a homography imposes on
// the absolute conic: the vanishing points of the target axes are orthogonal,
// and they have equal magnitude.
func conicConstraintRows(h *Homography) ([]float64, []float64) {
	orthogonality := absoluteConicRow(h, 0, 1)
	equalScale := make([]float64, 6)
	floats.SubTo(equalScale, absoluteConicRow(h, 0, 0), absoluteConicRow(h, 1, 1))
	return orthogonality, equalScale
}

// smallestSingularVector solves the homogeneous system Ax=0 in the total least
// squares sense, returning the right singular vector associated with the
// smallest singular value.
func smallestSingularVector(a *mat.Dense) ([]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, NewDegenerateGeometryError("SVD of the constraint matrix failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	_, cols := a.Dims()
	out := make([]float64, cols)
	for i := range out {
		out[i] = v.At(i, cols-1)
	}
	return out, nil
}

// cameraMatrixFromConic converts the estimated conic coefficients
// (B11, B12, B22, B13, B23, B33) into an upper triangular camera matrix,
// using B = K^-T K^-1.
func cameraMatrixFromConic(b []float64) (*mat.Dense, error) {
	b11, b12, b22, b13, b23, b33 := b[0], b[1], b[2], b[3], b[4], b[5]

	v0 := (b12*b13 - b11*b23) / (b11*b22 - b12*b12)
	lambda := b33 - (b13*b13+v0*(b12*b13-b11*b23))/b11
	alphaSq := lambda / b11
	betaSq := lambda * b11 / (b11*b22 - b12*b12)
	if !(alphaSq > 0) || !(betaSq > 0) || math.IsInf(alphaSq, 0) || math.IsInf(betaSq, 0) {
		return nil, NewDegenerateGeometryError("estimate of the absolute conic is not positive definite")
	}
	alpha := math.Sqrt(alphaSq)
	beta := math.Sqrt(betaSq)
	gamma := -b12 * alphaSq * beta / lambda
	u0 := gamma*v0/beta - b13*alphaSq/lambda

	k := mat.NewDense(3, 3, nil)
	k.Set(0, 0, alpha)
	k.Set(0, 1, gamma)
	k.Set(0, 2, u0)
	k.Set(1, 1, beta)
	k.Set(1, 2, v0)
	k.Set(2, 2, 1)
	return k, nil
}

// EstimateIntrinsics recovers the five parameter camera matrix, skew included,
// from homographies of a planar target. At least two homographies are
// required. With exactly two there are not enough constraints for the full
// model, so the skew is additionally constrained to zero.
func EstimateIntrinsics(homographies []*Homography) (*mat.Dense, error) {
	if len(homographies) < 2 {
		return nil, NewInsufficientDataError(2, len(homographies))
	}

	rows := make([][]float64, 0, 2*len(homographies)+1)
	for _, h := range homographies {
		orthogonality, equalScale := conicConstraintRows(h)
		rows = append(rows, orthogonality, equalScale)
	}
	if len(homographies) == 2 {
		rows = append(rows, []float64{0, 1, 0, 0, 0, 0})
	}

	a := mat.NewDense(len(rows), 6, nil)
	for i, row := range rows {
		a.SetRow(i, row)
	}
	b, err := smallestSingularVector(a)
	if err != nil {
		return nil, err
	}
	return cameraMatrixFromConic(b)
}

// EstimateIntrinsicsNoSkew recovers a zero skew camera matrix from
// homographies of a planar target. At least two homographies are required.
func EstimateIntrinsicsNoSkew(homographies []*Homography) (*mat.Dense, error) {
	if len(homographies) < 2 {
		return nil, NewInsufficientDataError(2, len(homographies))
	}

	// B12 is known to be zero, so its column is dropped from the system.
	withoutSkew := func(row []float64) []float64 {
		return []float64{row[0], row[2], row[3], row[4], row[5]}
	}
	a := mat.NewDense(2*len(homographies), 5, nil)
	for i, h := range homographies {
		orthogonality, equalScale := conicConstraintRows(h)
		a.SetRow(2*i, withoutSkew(orthogonality))
		a.SetRow(2*i+1, withoutSkew(equalScale))
	}

	v, err := smallestSingularVector(a)
	if err != nil {
		return nil, err
	}
	return cameraMatrixFromConic([]float64{v[0], 0, v[1], v[2], v[3], v[4]})
}

// EstimateIntrinsicsNoSkewAssumeCenter recovers a zero skew camera matrix
// whose principal point is pinned to the given center. Folding the center into
// the constraint coefficients leaves three unknowns, so a single homography
// is enough.
func EstimateIntrinsicsNoSkewAssumeCenter(homographies []*Homography, center r2.Point) (*mat.Dense, error) {
	if len(homographies) < 1 {
		return nil, NewInsufficientDataError(1, len(homographies))
	}
	u0, v0 := center.X, center.Y

	a := mat.NewDense(2*len(homographies), 3, nil)
	for i, h := range homographies {
		h00, h10, h20 := h.At(0, 0), h.At(1, 0), h.At(2, 0)
		h01, h11, h21 := h.At(0, 1), h.At(1, 1), h.At(2, 1)

		a.SetRow(2*i, []float64{
			h00*h01 - u0*h00*h21 - u0*h01*h20 + u0*u0*h20*h21,
			h10*h11 - v0*h10*h21 - v0*h11*h20 + v0*v0*h20*h21,
			h20 * h21,
		})
		a.SetRow(2*i+1, []float64{
			h00*h00 - h01*h01 - 2*u0*h00*h20 + 2*u0*h01*h21 + u0*u0*h20*h20 - u0*u0*h21*h21,
			h10*h10 - h11*h11 - 2*v0*h10*h20 + 2*v0*h11*h21 + v0*v0*h20*h20 - v0*v0*h21*h21,
			h20*h20 - h21*h21,
		})
	}

	v, err := smallestSingularVector(a)
	if err != nil {
		return nil, err
	}
	// The solution direction is (1/alpha^2, 1/beta^2, 1) up to scale. The SVD
	// is free to negate it, so normalize the sign using the last component
	// before reading off the focal lengths.
	if v[2] < 0 {
		floats.Scale(-1, v)
	}
	if !(v[0] > 0) || !(v[1] > 0) {
		return nil, NewDegenerateGeometryError("estimate of the absolute conic is not positive definite")
	}
	alpha := math.Sqrt(1 / v[0])
	beta := math.Sqrt(1 / v[1])

	k := mat.NewDense(3, 3, nil)
	k.Set(0, 0, alpha)
	k.Set(0, 2, u0)
	k.Set(1, 1, beta)
	k.Set(1, 2, v0)
	k.Set(2, 2, 1)
	return k, nil
}

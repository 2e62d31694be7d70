package transform

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/DarisaLLC/zoomcalib/utils"
)

// ExtrinsicsFromHomography recovers the rigid transform taking target plane
// coordinates into the camera frame, given a homography and the camera matrix.
// Ideally E = K^-1 H, but the recovered matrix never conforms exactly to a
// rigid body transform, so the rotation is corrected to the nearest
// orthonormal matrix through its polar decomposition.
func ExtrinsicsFromHomography(h *Homography, cameraMatrix *mat.Dense) (*mat.Dense, error) {
	var kInv mat.Dense
	if err := kInv.Inverse(cameraMatrix); err != nil {
		return nil, NewDegenerateGeometryError("camera matrix is not invertible")
	}
	var m mat.Dense
	m.Mul(&kInv, h.matrix)

	// The first two columns should be unit vectors.
	col0 := mat.Col(nil, 0, &m)
	col1 := mat.Col(nil, 1, &m)
	scale := math.Sqrt(floats.Norm(col0, 2)) * math.Sqrt(floats.Norm(col1, 2))
	if utils.CloseToZero(scale, 1e-15) {
		return nil, NewDegenerateGeometryError("homography columns have vanishing norm")
	}
	m.Scale(1/scale, &m)

	// Recover the sign of the scale factor by noting that observations must
	// be in front of the camera, that is: z < 0.
	if m.At(2, 2) > 0 {
		m.Scale(-1, &m)
	}

	m0 := r3.Vector{X: m.At(0, 0), Y: m.At(1, 0), Z: m.At(2, 0)}
	m1 := r3.Vector{X: m.At(0, 1), Y: m.At(1, 1), Z: m.At(2, 1)}
	normal := m0.Cross(m1)

	rot := mat.NewDense(3, 3, []float64{
		m0.X, m1.X, normal.X,
		m0.Y, m1.Y, normal.Y,
		m0.Z, m1.Z, normal.Z,
	})

	// Polar decomposition gives the closest orthonormal matrix to the
	// rotation part.
	var svd mat.SVD
	if ok := svd.Factorize(rot, mat.SVDFull); !ok {
		return nil, NewDegenerateGeometryError("cannot orthonormalize the rotation estimate")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	var r mat.Dense
	r.Mul(&u, v.T())

	e := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			e.Set(i, j, r.At(i, j))
		}
		e.Set(i, 3, m.At(i, 2))
	}
	e.Set(3, 3, 1)
	return e, nil
}

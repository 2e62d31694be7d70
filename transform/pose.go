package transform

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// EulerPose is a rigid transform expressed as a translation together with
// roll, pitch and heading angles in radians.
type EulerPose struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Z       float64 `json:"z"`
	Roll    float64 `json:"roll"`
	Pitch   float64 `json:"pitch"`
	Heading float64 `json:"heading"`
}

func rotationX(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(4, 4, []float64{
		1, 0, 0, 0,
		0, c, -s, 0,
		0, s, c, 0,
		0, 0, 0, 1,
	})
}

func rotationY(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(4, 4, []float64{
		c, 0, s, 0,
		0, 1, 0, 0,
		-s, 0, c, 0,
		0, 0, 0, 1,
	})
}

func rotationZ(angle float64) *mat.Dense {
	c, s := math.Cos(angle), math.Sin(angle)
	return mat.NewDense(4, 4, []float64{
		c, -s, 0, 0,
		s, c, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// Matrix composes the pose into a 4x4 rigid transform. The rotation applies
// roll about x first, then pitch about y, then heading about z, followed by
// the translation.
func (p *EulerPose) Matrix() *mat.Dense {
	var rot, m mat.Dense
	rot.Mul(rotationZ(p.Heading), rotationY(p.Pitch))
	m.Mul(&rot, rotationX(p.Roll))
	m.Set(0, 3, p.X)
	m.Set(1, 3, p.Y)
	m.Set(2, 3, p.Z)
	return &m
}

// NewEulerPoseFromMatrix recovers the translation and Euler angles from a 4x4
// rigid transform, inverting the composition used by Matrix. At a pitch of
// +/- pi/2 the roll and heading axes coincide, so the returned angles are one
// of many equivalent decompositions.
func NewEulerPoseFromMatrix(m mat.Matrix) (*EulerPose, error) {
	rows, cols := m.Dims()
	if rows != 4 || cols != 4 {
		return nil, errors.Errorf("rigid transform must be 4x4, got %dx%d", rows, cols)
	}
	return &EulerPose{
		X:       m.At(0, 3),
		Y:       m.At(1, 3),
		Z:       m.At(2, 3),
		Roll:    math.Atan2(m.At(2, 1), m.At(2, 2)),
		Pitch:   math.Atan2(-m.At(2, 0), math.Sqrt(m.At(0, 0)*m.At(0, 0)+m.At(1, 0)*m.At(1, 0))),
		Heading: math.Atan2(m.At(1, 0), m.At(0, 0)),
	}, nil
}

package transform

import (
	"context"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/DarisaLLC/zoomcalib/solver"
)

// HomographyFromPose composes camera intrinsics with a rigid pose into the
// homography induced by the target plane z=0.
func HomographyFromPose(intrinsics *PinholeCameraIntrinsics, pose *EulerPose) *Homography {
	var p mat.Dense
	p.Mul(intrinsics.ProjectionMatrix(), pose.Matrix())
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		h.Set(i, 0, p.At(i, 0))
		h.Set(i, 1, p.At(i, 1))
		h.Set(i, 2, p.At(i, 3))
	}
	return &Homography{h}
}

// squaredReprojectionErrors projects the world points through the camera
// described by intrinsics and pose, and returns the weighted squared errors
// against the observed image points, x errors first and then y errors.
func squaredReprojectionErrors(
	intrinsics *PinholeCameraIntrinsics,
	pose *EulerPose,
	world, image []r2.Point,
	weights []float64,
) []float64 {
	var p mat.Dense
	p.Mul(intrinsics.ProjectionMatrix(), pose.Matrix())

	n := len(world)
	out := make([]float64, 2*n)
	for i, pt := range world {
		// The target plane is z=0, so the third column of the projection
		// drops out.
		px := p.At(0, 0)*pt.X + p.At(0, 1)*pt.Y + p.At(0, 3)
		py := p.At(1, 0)*pt.X + p.At(1, 1)*pt.Y + p.At(1, 3)
		pw := p.At(2, 0)*pt.X + p.At(2, 1)*pt.Y + p.At(2, 3)
		dx := px/pw - image[i].X
		dy := py/pw - image[i].Y
		out[i] = weights[i] * dx * dx
		out[n+i] = weights[i] * dy * dy
	}
	return out
}

// RefineHomography improves a homography estimate by minimizing the weighted
// squared reprojection error of the world points against the observed image
// points. The principal point stays pinned to the given center while the
// focal lengths and the camera pose vary. A nil weights slice weights all
// correspondences equally.
func RefineHomography(
	ctx context.Context,
	h0 *Homography,
	center r2.Point,
	world, image []r2.Point,
	weights []float64,
) (*Homography, error) {
	if len(world) != len(image) {
		return nil, errors.Errorf("have %d world points but %d image points", len(world), len(image))
	}
	if weights != nil && len(weights) != len(world) {
		return nil, errors.Errorf("have %d weights for %d correspondences", len(weights), len(world))
	}
	if weights == nil {
		weights = make([]float64, len(world))
		for i := range weights {
			weights[i] = 1
		}
	}

	k0, err := EstimateIntrinsicsNoSkewAssumeCenter([]*Homography{h0}, center)
	if err != nil {
		return nil, err
	}
	e0, err := ExtrinsicsFromHomography(h0, k0)
	if err != nil {
		return nil, err
	}
	pose0, err := NewEulerPoseFromMatrix(e0)
	if err != nil {
		return nil, err
	}

	x0 := []float64{
		k0.At(0, 0), k0.At(1, 1),
		pose0.X, pose0.Y, pose0.Z, pose0.Roll, pose0.Pitch, pose0.Heading,
	}
	unpack := func(x []float64) (*PinholeCameraIntrinsics, *EulerPose) {
		intrinsics := &PinholeCameraIntrinsics{Fx: x[0], Fy: x[1], Ppx: center.X, Ppy: center.Y}
		pose := &EulerPose{X: x[2], Y: x[3], Z: x[4], Roll: x[5], Pitch: x[6], Heading: x[7]}
		return intrinsics, pose
	}

	lm := solver.NewLevenbergMarquardt(solver.LevenbergMarquardtOptions{})
	result, err := lm.Solve(ctx, func(x []float64) ([]float64, error) {
		intrinsics, pose := unpack(x)
		return squaredReprojectionErrors(intrinsics, pose, world, image, weights), nil
	}, x0)
	if err != nil {
		return nil, errors.Wrap(err, "cannot refine homography")
	}

	intrinsics, pose := unpack(result.X)
	return HomographyFromPose(intrinsics, pose), nil
}

package transform

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

// targetGrid lays out a planar grid of world points around the origin.
func targetGrid(n int, spacing float64) []r2.Point {
	pts := make([]r2.Point, 0, n*n)
	half := float64(n-1) / 2
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			pts = append(pts, r2.Point{
				X: (float64(i) - half) * spacing,
				Y: (float64(j) - half) * spacing,
			})
		}
	}
	return pts
}

func TestRefineHomography(t *testing.T) {
	center := r2.Point{X: 320, Y: 240}
	trueK := cameraMatrix(900, 950, 0, center.X, center.Y)
	pose := EulerPose{X: 0.3, Y: -0.15, Z: -8, Roll: 0.2, Pitch: -0.25, Heading: 0.15}
	trueH := syntheticHomography(trueK, &pose)

	world := targetGrid(4, 0.5)
	image := make([]r2.Point, len(world))
	for i, pt := range world {
		image[i] = trueH.Apply(pt)
	}

	// Perturb the homography so the refinement has work to do.
	perturbed := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			bump := 1 + 2e-3*float64(i+j)
			perturbed.Set(i, j, trueH.At(i, j)*bump)
		}
	}
	h0 := &Homography{perturbed}

	refined, err := RefineHomography(context.Background(), h0, center, world, image, nil)
	test.That(t, err, test.ShouldBeNil)
	for i, pt := range world {
		got := refined.Apply(pt)
		test.That(t, got.X, test.ShouldAlmostEqual, image[i].X, 1e-3)
		test.That(t, got.Y, test.ShouldAlmostEqual, image[i].Y, 1e-3)
	}
}

func TestRefineHomographyZeroWeightIgnoresOutlier(t *testing.T) {
	center := r2.Point{X: 320, Y: 240}
	trueK := cameraMatrix(900, 950, 0, center.X, center.Y)
	pose := EulerPose{X: 0.3, Y: -0.15, Z: -8, Roll: 0.2, Pitch: -0.25, Heading: 0.15}
	trueH := syntheticHomography(trueK, &pose)

	world := targetGrid(4, 0.5)
	image := make([]r2.Point, len(world))
	weights := make([]float64, len(world))
	for i, pt := range world {
		image[i] = trueH.Apply(pt)
		weights[i] = 1
	}

	// Corrupt one observation and weight it out of the problem.
	image[5] = r2.Point{X: image[5].X + 50, Y: image[5].Y - 35}
	weights[5] = 0

	refined, err := RefineHomography(context.Background(), trueH, center, world, image, weights)
	test.That(t, err, test.ShouldBeNil)
	for i, pt := range world {
		if i == 5 {
			continue
		}
		got := refined.Apply(pt)
		test.That(t, got.X, test.ShouldAlmostEqual, image[i].X, 1e-3)
		test.That(t, got.Y, test.ShouldAlmostEqual, image[i].Y, 1e-3)
	}

	// The corrupted observation stays unexplained.
	residual := math.Hypot(
		refined.Apply(world[5]).X-image[5].X,
		refined.Apply(world[5]).Y-image[5].Y,
	)
	test.That(t, residual, test.ShouldBeGreaterThan, 10)
}

func TestRefineHomographyValidation(t *testing.T) {
	center := r2.Point{X: 320, Y: 240}
	trueK := cameraMatrix(900, 950, 0, center.X, center.Y)
	pose := EulerPose{Z: -8, Roll: 0.2}
	h := syntheticHomography(trueK, &pose)

	world := targetGrid(3, 0.5)
	_, err := RefineHomography(context.Background(), h, center, world, world[:4], nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "world points")

	image := make([]r2.Point, len(world))
	for i, pt := range world {
		image[i] = h.Apply(pt)
	}
	_, err = RefineHomography(context.Background(), h, center, world, image, []float64{1, 2})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "weights")
}

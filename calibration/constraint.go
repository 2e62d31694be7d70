package calibration

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// robustLossDelta is the error magnitude, in pixels, past which the loss
// grows linearly instead of quadratically.
const robustLossDelta = 1.0

// HomographyConstraint ties one view's correspondences to an intrinsics node
// and an extrinsics node through reprojection error. It refers to its nodes
// by index into the graph's arenas and snapshots the correspondences in
// matrix form when built.
type HomographyConstraint struct {
	inode int
	enode int

	worldPoints *mat.Dense // 4xN homogeneous points on the z=0 target plane
	imagePoints *mat.Dense // 2xN observed pixels
	weights     []float64
}

// NewHomographyConstraint snapshots the correspondences of a view. The
// constraint is bound to its nodes when added to a graph.
func NewHomographyConstraint(corrs []Correspondence) (*HomographyConstraint, error) {
	if len(corrs) == 0 {
		return nil, errors.New("cannot constrain a view with no correspondences")
	}
	n := len(corrs)
	world := mat.NewDense(4, n, nil)
	image := mat.NewDense(2, n, nil)
	weights := make([]float64, n)
	for i, c := range corrs {
		world.Set(0, i, c.World.X)
		world.Set(1, i, c.World.Y)
		world.Set(3, i, 1)
		image.Set(0, i, c.Image.X)
		image.Set(1, i, c.Image.Y)
		weights[i] = c.Weight
	}
	return &HomographyConstraint{
		inode:       -1,
		enode:       -1,
		worldPoints: world,
		imagePoints: image,
		weights:     weights,
	}, nil
}

// NumCorrespondences returns how many correspondences the constraint snapshotted.
func (c *HomographyConstraint) NumCorrespondences() int {
	_, n := c.imagePoints.Dims()
	return n
}

// Weights returns the snapshotted correspondence weights. They ride along
// with the constraint but are left out of the solver loss.
func (c *HomographyConstraint) Weights() []float64 {
	return c.weights
}

// SqReprojectionErrors projects the world points through the camera assembled
// from the given nodes and returns the squared pixel errors against the
// observed points, all of the x errors followed by all of the y errors.
func (c *HomographyConstraint) SqReprojectionErrors(inode *IntrinsicsNode, enode *ExtrinsicsNode) []float64 {
	var camera mat.Dense
	camera.Mul(inode.Matrix(), enode.Matrix())

	var projected mat.Dense
	projected.Mul(&camera, c.worldPoints)

	n := c.NumCorrespondences()
	out := make([]float64, 2*n)
	for i := 0; i < n; i++ {
		w := projected.At(2, i)
		dx := projected.At(0, i)/w - c.imagePoints.At(0, i)
		dy := projected.At(1, i)/w - c.imagePoints.At(1, i)
		out[i] = dx * dx
		out[n+i] = dy * dy
	}
	return out
}

// MeanSqError returns the mean squared reprojection error of the constraint,
// used to rank views against each other.
func (c *HomographyConstraint) MeanSqError(inode *IntrinsicsNode, enode *ExtrinsicsNode) float64 {
	sqerr := c.SqReprojectionErrors(inode, enode)
	sum := 0.0
	for _, e := range sqerr {
		sum += e
	}
	return sum / float64(len(sqerr))
}

// Errors returns the constraint's contribution to the solver residual, the
// squared reprojection errors passed through the robust loss.
func (c *HomographyConstraint) Errors(inode *IntrinsicsNode, enode *ExtrinsicsNode) []float64 {
	sqerr := c.SqReprojectionErrors(inode, enode)
	out := make([]float64, len(sqerr))
	for i, sq := range sqerr {
		out[i] = pseudoHuber(sq, robustLossDelta)
	}
	return out
}

// pseudoHuber grows quadratically while the absolute error is below delta
// and linearly past it. The two branches meet at delta squared over two.
func pseudoHuber(sqerr, delta float64) float64 {
	abserr := math.Sqrt(sqerr)
	if abserr <= delta {
		return sqerr / 2
	}
	return delta * (abserr - delta/2)
}

// Package calibration jointly refines camera calibrations across many views
// of a planar target. Views that share a camera are coupled through a
// constraint graph, so the refined intrinsics agree with every observation
// at once instead of with one view at a time.
package calibration

import (
	"gonum.org/v1/gonum/mat"

	"github.com/DarisaLLC/zoomcalib/transform"
)

// IntrinsicsNode holds the four camera parameters shared by every view taken
// with the same camera, identified by its tag.
type IntrinsicsNode struct {
	Fx  float64
	Fy  float64
	Ppx float64
	Ppy float64
	Tag string
}

// NewIntrinsicsNodeFromCameraMatrix seeds a node from an estimated 3x3
// camera matrix, dropping any skew.
func NewIntrinsicsNodeFromCameraMatrix(k mat.Matrix, tag string) (*IntrinsicsNode, error) {
	intrinsics, err := transform.IntrinsicsFromCameraMatrix(k)
	if err != nil {
		return nil, err
	}
	return &IntrinsicsNode{
		Fx:  intrinsics.Fx,
		Fy:  intrinsics.Fy,
		Ppx: intrinsics.Ppx,
		Ppy: intrinsics.Ppy,
		Tag: tag,
	}, nil
}

// Tuple returns the parameters in pack order.
func (n *IntrinsicsNode) Tuple() [4]float64 {
	return [4]float64{n.Fx, n.Fy, n.Ppx, n.Ppy}
}

// SetTuple sets the parameters from pack order.
func (n *IntrinsicsNode) SetTuple(t [4]float64) {
	n.Fx, n.Fy, n.Ppx, n.Ppy = t[0], t[1], t[2], t[3]
}

// Intrinsics returns the node as a pinhole camera.
func (n *IntrinsicsNode) Intrinsics() *transform.PinholeCameraIntrinsics {
	return &transform.PinholeCameraIntrinsics{Fx: n.Fx, Fy: n.Fy, Ppx: n.Ppx, Ppy: n.Ppy}
}

// Matrix returns the 3x4 projection described by the node.
func (n *IntrinsicsNode) Matrix() *mat.Dense {
	return n.Intrinsics().ProjectionMatrix()
}

// ExtrinsicsNode holds the pose of a single view, identified by its tag.
type ExtrinsicsNode struct {
	Pose transform.EulerPose
	Tag  string
}

// NewExtrinsicsNodeFromMatrix seeds a node from a 4x4 rigid transform.
func NewExtrinsicsNodeFromMatrix(e mat.Matrix, tag string) (*ExtrinsicsNode, error) {
	pose, err := transform.NewEulerPoseFromMatrix(e)
	if err != nil {
		return nil, err
	}
	return &ExtrinsicsNode{Pose: *pose, Tag: tag}, nil
}

// Tuple returns the pose parameters in pack order.
func (n *ExtrinsicsNode) Tuple() [6]float64 {
	return [6]float64{n.Pose.X, n.Pose.Y, n.Pose.Z, n.Pose.Roll, n.Pose.Pitch, n.Pose.Heading}
}

// SetTuple sets the pose parameters from pack order.
func (n *ExtrinsicsNode) SetTuple(t [6]float64) {
	n.Pose.X, n.Pose.Y, n.Pose.Z = t[0], t[1], t[2]
	n.Pose.Roll, n.Pose.Pitch, n.Pose.Heading = t[3], t[4], t[5]
}

// Matrix returns the 4x4 rigid transform described by the node.
func (n *ExtrinsicsNode) Matrix() *mat.Dense {
	return n.Pose.Matrix()
}

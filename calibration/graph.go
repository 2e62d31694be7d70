package calibration

import (
	"github.com/pkg/errors"
)

const (
	intrinsicsTupleLen = 4
	extrinsicsTupleLen = 6
)

// ConstraintGraph couples the intrinsics nodes shared across views with the
// per view extrinsics nodes through homography constraints. Nodes live in
// insertion ordered arenas and constraints refer to them by index, so the
// whole state can be packed into a flat vector for the solver and unpacked
// back without chasing pointers.
type ConstraintGraph struct {
	inodes      []*IntrinsicsNode
	enodes      []*ExtrinsicsNode
	constraints []*HomographyConstraint

	inodeIndex map[string]int
	enodeIndex map[string]int
}

// NewConstraintGraph returns an empty graph.
func NewConstraintGraph() *ConstraintGraph {
	return &ConstraintGraph{
		inodeIndex: map[string]int{},
		enodeIndex: map[string]int{},
	}
}

// AddIntrinsicsNode appends the node to the intrinsics arena and returns its
// index. Tags must be unique.
func (g *ConstraintGraph) AddIntrinsicsNode(node *IntrinsicsNode) (int, error) {
	if _, ok := g.inodeIndex[node.Tag]; ok {
		return 0, errors.Errorf("intrinsics node %q already in the graph", node.Tag)
	}
	g.inodes = append(g.inodes, node)
	idx := len(g.inodes) - 1
	g.inodeIndex[node.Tag] = idx
	return idx, nil
}

// AddExtrinsicsNode appends the node to the extrinsics arena and returns its
// index. Tags must be unique.
func (g *ConstraintGraph) AddExtrinsicsNode(node *ExtrinsicsNode) (int, error) {
	if _, ok := g.enodeIndex[node.Tag]; ok {
		return 0, errors.Errorf("extrinsics node %q already in the graph", node.Tag)
	}
	g.enodes = append(g.enodes, node)
	idx := len(g.enodes) - 1
	g.enodeIndex[node.Tag] = idx
	return idx, nil
}

// AddConstraint binds the constraint to the named nodes and appends it to
// the graph.
func (g *ConstraintGraph) AddConstraint(c *HomographyConstraint, intrinsicsTag, extrinsicsTag string) error {
	iIdx, ok := g.inodeIndex[intrinsicsTag]
	if !ok {
		return errors.Errorf("no intrinsics node %q in the graph", intrinsicsTag)
	}
	eIdx, ok := g.enodeIndex[extrinsicsTag]
	if !ok {
		return errors.Errorf("no extrinsics node %q in the graph", extrinsicsTag)
	}
	c.inode = iIdx
	c.enode = eIdx
	g.constraints = append(g.constraints, c)
	return nil
}

// IntrinsicsNodes returns the intrinsics arena in insertion order.
func (g *ConstraintGraph) IntrinsicsNodes() []*IntrinsicsNode {
	return g.inodes
}

// ExtrinsicsNodes returns the extrinsics arena in insertion order.
func (g *ConstraintGraph) ExtrinsicsNodes() []*ExtrinsicsNode {
	return g.enodes
}

// Constraints returns the constraints in insertion order.
func (g *ConstraintGraph) Constraints() []*HomographyConstraint {
	return g.constraints
}

// ConstraintNodes returns the nodes a constraint is bound to.
func (g *ConstraintGraph) ConstraintNodes(c *HomographyConstraint) (*IntrinsicsNode, *ExtrinsicsNode) {
	return g.inodes[c.inode], g.enodes[c.enode]
}

// ResidualVector concatenates the robust losses of every constraint into the
// vector the solver minimizes.
func (g *ConstraintGraph) ResidualVector() []float64 {
	var out []float64
	for _, c := range g.constraints {
		out = append(out, c.Errors(g.inodes[c.inode], g.enodes[c.enode])...)
	}
	return out
}

// SqPixelErrors concatenates the raw squared reprojection errors of every
// constraint, without the robust loss applied.
func (g *ConstraintGraph) SqPixelErrors() []float64 {
	var out []float64
	for _, c := range g.constraints {
		out = append(out, c.SqReprojectionErrors(g.inodes[c.inode], g.enodes[c.enode])...)
	}
	return out
}

// PackState flattens every node's parameters into a single vector, the
// intrinsics tuples followed by the extrinsics tuples.
func (g *ConstraintGraph) PackState() []float64 {
	out := make([]float64, 0, intrinsicsTupleLen*len(g.inodes)+extrinsicsTupleLen*len(g.enodes))
	for _, n := range g.inodes {
		t := n.Tuple()
		out = append(out, t[:]...)
	}
	for _, n := range g.enodes {
		t := n.Tuple()
		out = append(out, t[:]...)
	}
	return out
}

// UnpackState writes a packed state vector back into the nodes.
func (g *ConstraintGraph) UnpackState(state []float64) error {
	want := intrinsicsTupleLen*len(g.inodes) + extrinsicsTupleLen*len(g.enodes)
	if len(state) != want {
		return errors.Errorf("packed state has length %d, want %d", len(state), want)
	}
	offset := 0
	for _, n := range g.inodes {
		n.SetTuple([4]float64{state[offset], state[offset+1], state[offset+2], state[offset+3]})
		offset += intrinsicsTupleLen
	}
	for _, n := range g.enodes {
		n.SetTuple([6]float64{
			state[offset], state[offset+1], state[offset+2],
			state[offset+3], state[offset+4], state[offset+5],
		})
		offset += extrinsicsTupleLen
	}
	return nil
}

// PackIntrinsics flattens only the intrinsics tuples, leaving poses out.
func (g *ConstraintGraph) PackIntrinsics() []float64 {
	out := make([]float64, 0, intrinsicsTupleLen*len(g.inodes))
	for _, n := range g.inodes {
		t := n.Tuple()
		out = append(out, t[:]...)
	}
	return out
}

// UnpackIntrinsics writes a packed intrinsics vector back into the
// intrinsics nodes, leaving poses untouched.
func (g *ConstraintGraph) UnpackIntrinsics(state []float64) error {
	want := intrinsicsTupleLen * len(g.inodes)
	if len(state) != want {
		return errors.Errorf("packed intrinsics have length %d, want %d", len(state), want)
	}
	for i, n := range g.inodes {
		offset := i * intrinsicsTupleLen
		n.SetTuple([4]float64{state[offset], state[offset+1], state[offset+2], state[offset+3]})
	}
	return nil
}

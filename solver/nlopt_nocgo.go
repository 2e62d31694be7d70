//go:build windows || no_cgo

package solver

import (
	"context"

	"github.com/pkg/errors"
)

// NLOptSolver mimics the type in the cgo compiled code.
type NLOptSolver struct{}

// NewNLOptSolver is not supported on this build.
func NewNLOptSolver(maxEvals int, tolerance float64) (*NLOptSolver, error) {
	return nil, errors.New("nlopt is not supported on this build")
}

// Solve refuses to solve problems without cgo.
func (s *NLOptSolver) Solve(ctx context.Context, f ResidualFunc, x0 []float64) (*Result, error) {
	return nil, errors.New("nlopt is not supported on this build")
}

// Package solver provides nonlinear least squares solvers used to refine
// camera calibrations.
package solver

import "context"

// ResidualFunc evaluates the residual vector at x. The returned vector must
// have the same length on every call.
type ResidualFunc func(x []float64) ([]float64, error)

// Result reports the outcome of a solve.
type Result struct {
	// X is the best parameter vector found.
	X []float64
	// Converged reports whether a stopping criterion was met before the
	// iteration budget ran out.
	Converged bool
	// Message describes how the solve ended.
	Message string
	// Iterations is the number of iterations performed.
	Iterations int
	// ResidualNorm is the Euclidean norm of the residual vector at X.
	ResidualNorm float64
}

// Solver minimizes the sum of squared residuals of a ResidualFunc starting
// from an initial guess.
type Solver interface {
	Solve(ctx context.Context, f ResidualFunc, x0 []float64) (*Result, error)
}

//go:build !windows && !no_cgo

package solver

import (
	"context"
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/floats"
)

const defaultNLOptEvals = 50000

// NLOptSolver minimizes the sum of squared residuals with nlopt's SLSQP
// implementation. Compared to LevenbergMarquardt it folds the residuals into
// a scalar objective, which can help on problems where the normal equations
// are badly conditioned.
type NLOptSolver struct {
	maxEvals  int
	tolerance float64
}

type optimizeReturn struct {
	solution []float64
	cost     float64
	err      error
}

// NewNLOptSolver creates an NLOptSolver. If maxEvals is less than 1 it is set
// to the default of 50000, and a tolerance of 0 selects the default.
func NewNLOptSolver(maxEvals int, tolerance float64) (*NLOptSolver, error) {
	if maxEvals < 1 {
		maxEvals = defaultNLOptEvals
	}
	if tolerance <= 0 {
		tolerance = defaultTolerance
	}
	return &NLOptSolver{maxEvals: maxEvals, tolerance: tolerance}, nil
}

// Solve runs SLSQP on the summed squared residuals, approximating the
// gradient with forward differences.
func (s *NLOptSolver) Solve(ctx context.Context, f ResidualFunc, x0 []float64) (*Result, error) {
	if len(x0) == 0 {
		return nil, errors.New("cannot solve with an empty initial guess")
	}

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(len(x0)))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	var evalErr error
	evaluations := 0

	// Gradient is, under the hood, an unsafe C structure that we are meant
	// to mutate in place.
	objective := func(x, gradient []float64) float64 {
		evaluations++
		r, rErr := f(x)
		if rErr != nil {
			evalErr = multierr.Combine(rErr, opt.ForceStop())
			return 0
		}
		cost := floats.Dot(r, r)
		for i := range gradient {
			orig := x[i]
			step := relativeStep(orig)
			x[i] = orig + step
			step = x[i] - orig
			rj, rjErr := f(x)
			x[i] = orig
			if rjErr != nil {
				evalErr = multierr.Combine(rjErr, opt.ForceStop())
				return 0
			}
			gradient[i] = (floats.Dot(rj, rj) - cost) / step
		}
		return cost
	}

	err = multierr.Combine(
		opt.SetFtolRel(s.tolerance),
		opt.SetFtolAbs(s.tolerance),
		opt.SetXtolRel(s.tolerance),
		opt.SetXtolAbs1(s.tolerance),
		opt.SetMinObjective(objective),
		opt.SetMaxEval(s.maxEvals),
	)
	if err != nil {
		return nil, err
	}

	solveChan := make(chan *optimizeReturn, 1)
	utils.PanicCapturingGo(func() {
		solution, cost, optErr := opt.Optimize(append([]float64(nil), x0...))
		solveChan <- &optimizeReturn{solution, cost, optErr}
	})

	var solved *optimizeReturn
	select {
	case <-ctx.Done():
		err = multierr.Combine(err, opt.ForceStop())
		<-solveChan
		return nil, multierr.Combine(err, ctx.Err())
	case solved = <-solveChan:
	}

	if evalErr != nil {
		return nil, evalErr
	}
	if solved.solution == nil {
		return nil, errors.Wrap(solved.err, "nlopt failed to produce a solution")
	}

	result := &Result{
		X:            solved.solution,
		Converged:    solved.err == nil,
		Message:      "objective within tolerance",
		Iterations:   evaluations,
		ResidualNorm: math.Sqrt(math.Max(solved.cost, 0)),
	}
	if solved.err != nil {
		result.Message = solved.err.Error()
	}
	return result, nil
}

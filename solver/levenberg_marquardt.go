package solver

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	defaultMaxIterations = 200
	defaultTolerance     = 1e-12
	defaultFactor        = 1e-3

	// Forward difference step floor, roughly sqrt of the float64 epsilon.
	defaultStep = 1e-8

	maxDampingAttempts = 16
	minDampingFactor   = 1e-12
	minDiagonal        = 1e-12
)

// LevenbergMarquardtOptions configure the damped least squares loop. Zero
// values select the defaults.
type LevenbergMarquardtOptions struct {
	// MaxIterations bounds the number of damped Gauss-Newton steps.
	MaxIterations int
	// Tolerance stops the solve once the gradient norm, the relative
	// reduction of the residual norm, or the step size falls below it.
	Tolerance float64
	// Factor is the initial damping applied to the normal equations. Larger
	// values take more cautious first steps.
	Factor float64
}

// LevenbergMarquardt minimizes the sum of squared residuals with damped
// Gauss-Newton steps and a forward difference Jacobian.
type LevenbergMarquardt struct {
	opts LevenbergMarquardtOptions
}

// NewLevenbergMarquardt creates a LevenbergMarquardt solver with the given
// options, filling in defaults for any zero values.
func NewLevenbergMarquardt(opts LevenbergMarquardtOptions) *LevenbergMarquardt {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = defaultMaxIterations
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = defaultTolerance
	}
	if opts.Factor <= 0 {
		opts.Factor = defaultFactor
	}
	return &LevenbergMarquardt{opts: opts}
}

// Solve iterates damped Gauss-Newton steps from x0 until a stopping criterion
// is met or the iteration budget runs out. A Result is returned even when the
// solve stops without converging, so callers can inspect the best parameters
// found so far.
func (lm *LevenbergMarquardt) Solve(ctx context.Context, f ResidualFunc, x0 []float64) (*Result, error) {
	if len(x0) == 0 {
		return nil, errors.New("cannot solve with an empty initial guess")
	}
	x := append([]float64(nil), x0...)
	r, err := f(x)
	if err != nil {
		return nil, errors.Wrap(err, "cannot evaluate residuals at the initial guess")
	}
	if len(r) < len(x) {
		return nil, errors.Errorf("system is underdetermined: %d residuals for %d parameters", len(r), len(x))
	}

	norm := floats.Norm(r, 2)
	lambda := lm.opts.Factor
	result := &Result{X: x, ResidualNorm: norm, Message: "iteration budget exhausted"}

	for iter := 1; iter <= lm.opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Iterations = iter

		jac, err := forwardDifferenceJacobian(f, x, r)
		if err != nil {
			return nil, err
		}

		gradient := mat.NewVecDense(len(x), nil)
		gradient.MulVec(jac.T(), mat.NewVecDense(len(r), r))
		if mat.Norm(gradient, math.Inf(1)) <= lm.opts.Tolerance {
			result.Converged = true
			result.Message = "gradient within tolerance"
			break
		}

		var jtj mat.Dense
		jtj.Mul(jac.T(), jac)

		improved := false
		for attempt := 0; attempt < maxDampingAttempts && !improved; attempt++ {
			step, stepErr := dampedStep(&jtj, gradient, lambda)
			if stepErr != nil {
				lambda *= 10
				continue
			}

			candidate := make([]float64, len(x))
			floats.SubTo(candidate, x, step)
			rNew, evalErr := f(candidate)
			if evalErr != nil {
				return nil, errors.Wrap(evalErr, "cannot evaluate residuals at the candidate step")
			}
			newNorm := floats.Norm(rNew, 2)
			if newNorm >= norm {
				lambda *= 10
				continue
			}

			improved = true
			if norm-newNorm <= lm.opts.Tolerance*norm {
				result.Converged = true
				result.Message = "residual reduction within tolerance"
			} else if floats.Norm(step, 2) <= lm.opts.Tolerance*(floats.Norm(candidate, 2)+lm.opts.Tolerance) {
				result.Converged = true
				result.Message = "step size within tolerance"
			}
			x = candidate
			r = rNew
			norm = newNorm
			lambda = math.Max(lambda/10, minDampingFactor)
		}

		result.X = x
		result.ResidualNorm = norm
		if result.Converged {
			break
		}
		if !improved {
			result.Message = "damping exhausted without improving the residual"
			break
		}
	}

	result.X = x
	result.ResidualNorm = norm
	return result, nil
}

// dampedStep solves (J^T J + lambda diag(J^T J)) step = gradient. Cholesky is
// tried first and a QR factorization picks up the cases where rounding pushes
// the damped system off positive definiteness.
func dampedStep(jtj *mat.Dense, gradient *mat.VecDense, lambda float64) ([]float64, error) {
	n, _ := jtj.Dims()
	damped := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			damped.SetSym(i, j, (jtj.At(i, j)+jtj.At(j, i))/2)
		}
		diag := jtj.At(i, i)
		if diag < minDiagonal {
			diag = minDiagonal
		}
		damped.SetSym(i, i, jtj.At(i, i)+lambda*diag)
	}

	step := mat.NewVecDense(n, nil)
	var chol mat.Cholesky
	if ok := chol.Factorize(damped); ok {
		if err := chol.SolveVecTo(step, gradient); err == nil {
			return stepSlice(step), nil
		}
	}

	var qr mat.QR
	qr.Factorize(damped)
	if err := qr.SolveVecTo(step, false, gradient); err != nil {
		return nil, errors.Wrap(err, "normal equations are singular")
	}
	return stepSlice(step), nil
}

func stepSlice(v *mat.VecDense) []float64 {
	out := make([]float64, v.Len())
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}

// forwardDifferenceJacobian approximates the Jacobian of f at x, reusing the
// residuals r already evaluated there.
func forwardDifferenceJacobian(f ResidualFunc, x, r []float64) (*mat.Dense, error) {
	jac := mat.NewDense(len(r), len(x), nil)
	xs := append([]float64(nil), x...)
	for j := range xs {
		orig := xs[j]
		step := relativeStep(orig)
		xs[j] = orig + step
		// Recompute the step so it is exactly representable.
		step = xs[j] - orig

		rj, err := f(xs)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot evaluate residuals while perturbing parameter %d", j)
		}
		if len(rj) != len(r) {
			return nil, errors.Errorf("residual vector changed length from %d to %d", len(r), len(rj))
		}
		xs[j] = orig

		for i := range rj {
			jac.Set(i, j, (rj[i]-r[i])/step)
		}
	}
	return jac, nil
}

func relativeStep(v float64) float64 {
	step := defaultStep * math.Abs(v)
	if step < defaultStep {
		step = defaultStep
	}
	return step
}

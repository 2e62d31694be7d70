package calibration

import (
	"os"

	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
)

// Estimator selects the closed form used to seed each camera's intrinsics
// from its homographies.
type Estimator string

const (
	// EstimatorNoSkew fits the four parameter camera with zero skew.
	EstimatorNoSkew = Estimator("noskew")
	// EstimatorFull fits the five parameter camera, whose skew is dropped
	// when the intrinsics node is seeded.
	EstimatorFull = Estimator("full")
	// EstimatorNoSkewAssumeCenter pins the principal point to a configured
	// center, which lets a single view seed a camera.
	EstimatorNoSkewAssumeCenter = Estimator("noskew_assume_center")
)

const (
	// SolverLevenbergMarquardt selects the damped least squares solver.
	SolverLevenbergMarquardt = "levenberg-marquardt"
	// SolverNLOpt selects the SLSQP solver from nlopt.
	SolverNLOpt = "nlopt"
)

// PrincipalPoint is an assumed image center, in pixels.
type PrincipalPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// RefineConfig controls how a set of views is refined.
type RefineConfig struct {
	// Estimator seeds each camera's intrinsics from its homographies. Empty
	// means EstimatorNoSkew.
	Estimator Estimator `json:"estimator"`
	// PrincipalPoint is required by the assume center estimator and ignored
	// by the others.
	PrincipalPoint *PrincipalPoint `json:"principal_point,omitempty"`
	// ExcludeWorstViews drops this many of the worst fitting views from each
	// camera group before refinement. At least one view per group is kept.
	ExcludeWorstViews int `json:"exclude_worst_views"`
	// IntrinsicsOnly freezes every pose and refines camera parameters alone.
	IntrinsicsOnly bool `json:"intrinsics_only"`
	// Solver picks which solver minimizes the reprojection residual. Empty
	// means SolverLevenbergMarquardt.
	Solver string `json:"solver"`
	// MaxIterations caps the solver. Zero means the solver's default.
	MaxIterations int `json:"max_iterations"`
	// Factor is the initial damping of the Levenberg-Marquardt solver.
	Factor float64 `json:"factor"`
	// Tolerance is the solver convergence tolerance. Zero means the
	// solver's default.
	Tolerance float64 `json:"tolerance"`
}

// DefaultRefineConfig returns the configuration used when none is supplied.
func DefaultRefineConfig() *RefineConfig {
	return &RefineConfig{
		Estimator: EstimatorNoSkew,
		Solver:    SolverLevenbergMarquardt,
		Factor:    0.1,
	}
}

// CheckValid checks if the configuration is self consistent.
func (cfg *RefineConfig) CheckValid() error {
	if cfg == nil {
		return errors.New("refine config is nil")
	}
	switch cfg.Estimator {
	case "", EstimatorNoSkew, EstimatorFull:
	case EstimatorNoSkewAssumeCenter:
		if cfg.PrincipalPoint == nil {
			return errors.New("the assume center estimator needs a principal point")
		}
	default:
		return errors.Errorf("unknown estimator %q", cfg.Estimator)
	}
	switch cfg.Solver {
	case "", SolverLevenbergMarquardt, SolverNLOpt:
	default:
		return errors.Errorf("unknown solver %q", cfg.Solver)
	}
	if cfg.ExcludeWorstViews < 0 {
		return errors.Errorf("invalid exclude_worst_views %d", cfg.ExcludeWorstViews)
	}
	if cfg.MaxIterations < 0 {
		return errors.Errorf("invalid max_iterations %d", cfg.MaxIterations)
	}
	if cfg.Factor < 0 {
		return errors.Errorf("invalid factor %f", cfg.Factor)
	}
	if cfg.Tolerance < 0 {
		return errors.Errorf("invalid tolerance %f", cfg.Tolerance)
	}
	return nil
}

// NewRefineConfigFromJSON5File reads a refine configuration from a JSON5
// file. Fields left out of the file keep their defaults.
func NewRefineConfigFromJSON5File(path string) (*RefineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening config file")
	}
	cfg := DefaultRefineConfig()
	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing config")
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	return cfg, nil
}

package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestRefineConfigCheckValid(t *testing.T) {
	var nilCfg *RefineConfig
	test.That(t, nilCfg.CheckValid(), test.ShouldNotBeNil)

	test.That(t, DefaultRefineConfig().CheckValid(), test.ShouldBeNil)
	test.That(t, (&RefineConfig{}).CheckValid(), test.ShouldBeNil)

	cfg := DefaultRefineConfig()
	cfg.Estimator = "zhang"
	err := cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown estimator")

	cfg = DefaultRefineConfig()
	cfg.Estimator = EstimatorNoSkewAssumeCenter
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "needs a principal point")
	cfg.PrincipalPoint = &PrincipalPoint{X: 320, Y: 240}
	test.That(t, cfg.CheckValid(), test.ShouldBeNil)

	cfg = DefaultRefineConfig()
	cfg.Solver = "gradient-descent"
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown solver")

	cfg = DefaultRefineConfig()
	cfg.ExcludeWorstViews = -1
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "exclude_worst_views")

	cfg = DefaultRefineConfig()
	cfg.MaxIterations = -5
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "max_iterations")

	cfg = DefaultRefineConfig()
	cfg.Factor = -0.1
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "factor")

	cfg = DefaultRefineConfig()
	cfg.Tolerance = -1e-6
	err = cfg.CheckValid()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "tolerance")
}

func TestNewRefineConfigFromJSON5File(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "refine.json5")
	content := `// joint refinement settings
{
	estimator: "noskew_assume_center",
	principal_point: {x: 320, y: 240},
	exclude_worst_views: 1,
	max_iterations: 100,
}`
	test.That(t, os.WriteFile(path, []byte(content), 0o640), test.ShouldBeNil)

	cfg, err := NewRefineConfigFromJSON5File(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Estimator, test.ShouldEqual, EstimatorNoSkewAssumeCenter)
	test.That(t, cfg.PrincipalPoint, test.ShouldResemble, &PrincipalPoint{X: 320, Y: 240})
	test.That(t, cfg.ExcludeWorstViews, test.ShouldEqual, 1)
	test.That(t, cfg.MaxIterations, test.ShouldEqual, 100)
	// Fields the file leaves out keep their defaults.
	test.That(t, cfg.Solver, test.ShouldEqual, SolverLevenbergMarquardt)
	test.That(t, cfg.Factor, test.ShouldEqual, 0.1)

	_, err = NewRefineConfigFromJSON5File(filepath.Join(dir, "missing.json5"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error opening config file")

	badPath := filepath.Join(dir, "bad.json5")
	test.That(t, os.WriteFile(badPath, []byte("{"), 0o640), test.ShouldBeNil)
	_, err = NewRefineConfigFromJSON5File(badPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error parsing config")

	invalidPath := filepath.Join(dir, "invalid.json5")
	test.That(t, os.WriteFile(invalidPath, []byte(`{estimator: "noskew_assume_center"}`), 0o640), test.ShouldBeNil)
	_, err = NewRefineConfigFromJSON5File(invalidPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "needs a principal point")
}

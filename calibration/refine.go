package calibration

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/DarisaLLC/zoomcalib/logging"
	"github.com/DarisaLLC/zoomcalib/solver"
	"github.com/DarisaLLC/zoomcalib/transform"
	"github.com/DarisaLLC/zoomcalib/utils"
)

// RefinedView is the calibration emitted for one view, refined jointly with
// every other view of the same camera.
type RefinedView struct {
	// Tag is the combined "itag/etag" name of the view.
	Tag           string
	IntrinsicsTag string
	ViewTag       string
	Intrinsics    *mat.Dense // 3x4 projection
	Extrinsics    *mat.Dense // 4x4 rigid transform
	// RMSE is the view's root mean squared reprojection error after refinement.
	RMSE float64
}

// RefineReport summarizes a refinement run.
type RefineReport struct {
	// Views holds one refined calibration per surviving view.
	Views []RefinedView
	// Cameras holds the refined pinhole parameters per camera tag.
	Cameras map[string]*transform.PinholeCameraIntrinsics

	InitialRMSE   float64
	InitialRMaxSE float64
	FinalRMSE     float64
	FinalRMaxSE   float64

	// Converged reports whether the solver met its tolerance. The refined
	// calibrations are emitted either way.
	Converged  bool
	Message    string
	Iterations int

	// Excluded names the views dropped as worst fitting before refinement.
	Excluded []string
	// Skipped maps a camera or view tag to the reason it was left out.
	Skipped map[string]error
	// PixelErrors holds the final absolute reprojection error of every
	// residual coordinate.
	PixelErrors []float64
}

type seededView struct {
	tag        string
	enode      *ExtrinsicsNode
	constraint *HomographyConstraint
	meanSq     float64
}

// cameraGroupSeed is the outcome of seeding one camera group. Groups are
// seeded in parallel and merged into the graph in tag order afterwards.
type cameraGroupSeed struct {
	inode   *IntrinsicsNode
	seeds   []seededView
	skipped []skippedView
}

type skippedView struct {
	tag string
	err error
}

// RefineCalibration seeds a constraint graph from the views and minimizes
// its reprojection residual. Views sharing an intrinsics tag are coupled
// through a single intrinsics node, so their camera parameters are refined
// against all of their observations at once. Camera groups are seeded in
// parallel; a group whose closed form seed fails is skipped with a warning
// rather than failing the run.
func RefineCalibration(ctx context.Context, views []View, cfg *RefineConfig, logger logging.Logger) (*RefineReport, error) {
	if cfg == nil {
		cfg = DefaultRefineConfig()
	}
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, errors.New("no views to refine")
	}
	for i := range views {
		if err := views[i].CheckValid(); err != nil {
			return nil, err
		}
	}

	groups := map[string][]View{}
	for _, v := range views {
		groups[v.IntrinsicsTag] = append(groups[v.IntrinsicsTag], v)
	}
	itags := maps.Keys(groups)
	sort.Strings(itags)

	graph := NewConstraintGraph()
	report := &RefineReport{Skipped: map[string]error{}}

	// Each seeding closure owns one slot of the result slices and reports
	// failures there, so one bad group cannot cancel its siblings.
	groupSeeds := make([]*cameraGroupSeed, len(itags))
	groupErrs := make([]error, len(itags))
	seedFuncs := make([]utils.SimpleFunc, len(itags))
	for i, itag := range itags {
		group := groups[itag]
		sort.Slice(group, func(a, b int) bool { return group[a].ViewTag < group[b].ViewTag })
		seedFuncs[i] = func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			groupSeeds[i], groupErrs[i] = seedCameraGroup(cfg, itag, group)
			return nil
		}
	}
	if _, err := utils.RunInParallel(ctx, seedFuncs); err != nil {
		return nil, err
	}

	for i, itag := range itags {
		if err := groupErrs[i]; err != nil {
			logger.Warnw("skipping camera group", "itag", itag, "error", err)
			report.Skipped[itag] = err
			continue
		}
		seed := groupSeeds[i]
		for _, sk := range seed.skipped {
			logger.Warnw("skipping view", "tag", sk.tag, "error", sk.err)
			report.Skipped[sk.tag] = sk.err
		}
		kept := excludeWorstViews(cfg, itag, seed.seeds, logger, report)
		if _, err := graph.AddIntrinsicsNode(seed.inode); err != nil {
			return nil, err
		}
		for _, sv := range kept {
			if _, err := graph.AddExtrinsicsNode(sv.enode); err != nil {
				return nil, err
			}
			if err := graph.AddConstraint(sv.constraint, itag, sv.tag); err != nil {
				return nil, err
			}
		}
	}
	if len(graph.Constraints()) == 0 {
		return nil, errors.New("no camera group produced a usable estimate")
	}
	sort.Strings(report.Excluded)

	initialSq := graph.SqPixelErrors()
	report.InitialRMSE, report.InitialRMaxSE = rootMeanAndMax(initialSq)
	logger.Infow("seeded constraint graph",
		"cameras", len(graph.IntrinsicsNodes()),
		"views", len(graph.ExtrinsicsNodes()),
		"rmse", report.InitialRMSE,
		"rmaxse", report.InitialRMaxSE,
	)

	s, err := newSolverFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	var x0 []float64
	var objective solver.ResidualFunc
	if cfg.IntrinsicsOnly {
		x0 = graph.PackIntrinsics()
		objective = func(x []float64) ([]float64, error) {
			if err := graph.UnpackIntrinsics(x); err != nil {
				return nil, err
			}
			return graph.ResidualVector(), nil
		}
	} else {
		x0 = graph.PackState()
		objective = func(x []float64) ([]float64, error) {
			if err := graph.UnpackState(x); err != nil {
				return nil, err
			}
			return graph.ResidualVector(), nil
		}
	}

	result, err := s.Solve(ctx, objective, x0)
	if err != nil {
		return nil, errors.Wrap(err, "cannot refine calibration")
	}
	if cfg.IntrinsicsOnly {
		err = graph.UnpackIntrinsics(result.X)
	} else {
		err = graph.UnpackState(result.X)
	}
	if err != nil {
		return nil, err
	}
	report.Converged = result.Converged
	report.Message = result.Message
	report.Iterations = result.Iterations

	finalSq := graph.SqPixelErrors()
	report.FinalRMSE, report.FinalRMaxSE = rootMeanAndMax(finalSq)
	report.PixelErrors = make([]float64, len(finalSq))
	for i, sq := range finalSq {
		report.PixelErrors[i] = math.Sqrt(sq)
	}
	if result.Converged {
		logger.Infow("refined constraint graph",
			"iterations", result.Iterations,
			"rmse", report.FinalRMSE,
			"rmaxse", report.FinalRMaxSE,
		)
	} else {
		logger.Warnw("solver did not converge, emitting the refined state anyway",
			"message", result.Message,
			"iterations", result.Iterations,
			"rmse", report.FinalRMSE,
		)
	}

	report.Cameras = map[string]*transform.PinholeCameraIntrinsics{}
	for _, inode := range graph.IntrinsicsNodes() {
		report.Cameras[inode.Tag] = inode.Intrinsics()
		logger.Infow("refined camera",
			"itag", inode.Tag,
			"fx", inode.Fx, "fy", inode.Fy,
			"ppx", inode.Ppx, "ppy", inode.Ppy,
		)
	}
	for _, c := range graph.Constraints() {
		inode, enode := graph.ConstraintNodes(c)
		report.Views = append(report.Views, RefinedView{
			Tag:           enode.Tag,
			IntrinsicsTag: inode.Tag,
			ViewTag:       strings.TrimPrefix(enode.Tag, inode.Tag+"/"),
			Intrinsics:    inode.Matrix(),
			Extrinsics:    enode.Matrix(),
			RMSE:          math.Sqrt(c.MeanSqError(inode, enode)),
		})
	}
	return report, nil
}

// seedCameraGroup estimates one camera's intrinsics from its group of views
// and seeds a pose and constraint for each view. Views whose pose cannot be
// seeded are returned as skipped without failing the group.
func seedCameraGroup(cfg *RefineConfig, itag string, group []View) (*cameraGroupSeed, error) {
	homographies := make([]*transform.Homography, 0, len(group))
	for _, v := range group {
		homographies = append(homographies, v.Homography)
	}
	k, err := estimateCameraMatrix(cfg, homographies)
	if err != nil {
		return nil, err
	}
	inode, err := NewIntrinsicsNodeFromCameraMatrix(k, itag)
	if err != nil {
		return nil, err
	}

	out := &cameraGroupSeed{inode: inode}
	for _, v := range group {
		tag := v.IntrinsicsTag + "/" + v.ViewTag
		extrinsics, err := transform.ExtrinsicsFromHomography(v.Homography, k)
		if err != nil {
			out.skipped = append(out.skipped, skippedView{tag, err})
			continue
		}
		enode, err := NewExtrinsicsNodeFromMatrix(extrinsics, tag)
		if err != nil {
			out.skipped = append(out.skipped, skippedView{tag, err})
			continue
		}
		constraint, err := NewHomographyConstraint(v.Correspondences)
		if err != nil {
			out.skipped = append(out.skipped, skippedView{tag, err})
			continue
		}
		out.seeds = append(out.seeds, seededView{
			tag:        tag,
			enode:      enode,
			constraint: constraint,
			meanSq:     constraint.MeanSqError(inode, enode),
		})
	}
	if len(out.seeds) == 0 {
		return nil, errors.New("no view of the group produced a usable pose")
	}
	return out, nil
}

// excludeWorstViews drops the configured number of worst fitting views from
// a camera group, ranked by mean squared reprojection error against the
// seeded nodes. At least one view is always kept.
func excludeWorstViews(
	cfg *RefineConfig,
	itag string,
	seeds []seededView,
	logger logging.Logger,
	report *RefineReport,
) []seededView {
	exclude := cfg.ExcludeWorstViews
	if exclude <= 0 {
		return seeds
	}
	if exclude >= len(seeds) {
		logger.Warnw("keeping at least one view of the group",
			"itag", itag,
			"requested", cfg.ExcludeWorstViews,
			"views", len(seeds),
		)
		exclude = len(seeds) - 1
	}
	meanSqs := make([]float64, len(seeds))
	inds := make([]int, len(seeds))
	for i, seed := range seeds {
		meanSqs[i] = seed.meanSq
	}
	floats.Argsort(meanSqs, inds)

	dropped := map[int]bool{}
	for _, idx := range inds[len(inds)-exclude:] {
		dropped[idx] = true
		report.Excluded = append(report.Excluded, seeds[idx].tag)
		logger.Infow("excluding view",
			"tag", seeds[idx].tag,
			"rmse", math.Sqrt(seeds[idx].meanSq),
		)
	}
	kept := make([]seededView, 0, len(seeds)-exclude)
	for i, seed := range seeds {
		if !dropped[i] {
			kept = append(kept, seed)
		}
	}
	return kept
}

func estimateCameraMatrix(cfg *RefineConfig, homographies []*transform.Homography) (*mat.Dense, error) {
	switch cfg.Estimator {
	case EstimatorFull:
		return transform.EstimateIntrinsics(homographies)
	case EstimatorNoSkewAssumeCenter:
		center := r2.Point{X: cfg.PrincipalPoint.X, Y: cfg.PrincipalPoint.Y}
		return transform.EstimateIntrinsicsNoSkewAssumeCenter(homographies, center)
	default:
		return transform.EstimateIntrinsicsNoSkew(homographies)
	}
}

func newSolverFromConfig(cfg *RefineConfig) (solver.Solver, error) {
	switch cfg.Solver {
	case SolverNLOpt:
		return solver.NewNLOptSolver(cfg.MaxIterations, cfg.Tolerance)
	default:
		return solver.NewLevenbergMarquardt(solver.LevenbergMarquardtOptions{
			MaxIterations: cfg.MaxIterations,
			Tolerance:     cfg.Tolerance,
			Factor:        cfg.Factor,
		}), nil
	}
}

func rootMeanAndMax(sqerr []float64) (rmse, rmaxse float64) {
	if len(sqerr) == 0 {
		return 0, 0
	}
	mean := floats.Sum(sqerr) / float64(len(sqerr))
	return math.Sqrt(mean), math.Sqrt(floats.Max(sqerr))
}

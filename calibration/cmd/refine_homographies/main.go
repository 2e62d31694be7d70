// Package main is a command that jointly refines camera calibrations from
// homographies observed on a planar target.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/DarisaLLC/zoomcalib/calibration"
	"github.com/DarisaLLC/zoomcalib/logging"
	"github.com/DarisaLLC/zoomcalib/transform"
)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("refine_homographies"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	app := &cli.App{
		Name:  "refine_homographies",
		Usage: "jointly refine camera calibrations from planar target homographies",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "observations",
				Aliases:  []string{"i"},
				Required: true,
				Usage:    "Load observed views from JSON `FILE`",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load refine configuration from JSON5 `FILE`",
			},
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Write refined calibrations to JSON `FILE`",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: func(c *cli.Context) error {
			if c.Bool("debug") {
				logger.SetLevel(logging.DEBUG)
			}
			return refineAndEmit(c, logger)
		},
	}
	return app.RunContext(ctx, args)
}

func refineAndEmit(c *cli.Context, logger logging.Logger) error {
	views, err := calibration.NewViewsFromJSONFile(c.String("observations"))
	if err != nil {
		return err
	}
	cfg := calibration.DefaultRefineConfig()
	if path := c.String("config"); path != "" {
		cfg, err = calibration.NewRefineConfigFromJSON5File(path)
		if err != nil {
			return err
		}
	}

	report, err := calibration.RefineCalibration(c.Context, views, cfg, logger)
	if err != nil {
		return err
	}
	if err := report.Write(c.App.Writer); err != nil {
		return err
	}

	if out := c.String("out"); out != "" {
		data, err := json.MarshalIndent(newEmittedCalibration(report), "", "  ")
		if err != nil {
			return errors.Wrap(err, "cannot marshal refined calibrations")
		}
		if err := os.WriteFile(out, data, 0o640); err != nil {
			return errors.Wrap(err, "cannot write refined calibrations")
		}
		logger.Infow("wrote refined calibrations", "path", out, "views", len(report.Views))
	}
	return nil
}

type emittedView struct {
	IntrinsicsTag string      `json:"itag"`
	ViewTag       string      `json:"etag"`
	Intrinsics    [][]float64 `json:"intrinsics"`
	Extrinsics    [][]float64 `json:"extrinsics"`
	RMSE          float64     `json:"rmse"`
}

type emittedCalibration struct {
	Cameras   map[string]*transform.PinholeCameraIntrinsics `json:"cameras"`
	Views     map[string]emittedView                        `json:"views"`
	RMSE      float64                                       `json:"rmse"`
	RMaxSE    float64                                       `json:"rmaxse"`
	Converged bool                                          `json:"converged"`
}

// newEmittedCalibration converts a report to its output form, views keyed by
// their combined tag.
func newEmittedCalibration(report *calibration.RefineReport) *emittedCalibration {
	out := &emittedCalibration{
		Cameras:   report.Cameras,
		Views:     map[string]emittedView{},
		RMSE:      report.FinalRMSE,
		RMaxSE:    report.FinalRMaxSE,
		Converged: report.Converged,
	}
	for _, v := range report.Views {
		out.Views[v.Tag] = emittedView{
			IntrinsicsTag: v.IntrinsicsTag,
			ViewTag:       v.ViewTag,
			Intrinsics:    matrixRows(v.Intrinsics),
			Extrinsics:    matrixRows(v.Extrinsics),
			RMSE:          v.RMSE,
		}
	}
	return out
}

func matrixRows(m *mat.Dense) [][]float64 {
	nr, nc := m.Dims()
	out := make([][]float64, nr)
	for i := 0; i < nr; i++ {
		row := make([]float64, nc)
		mat.Row(row, i, m)
		out[i] = row
	}
	return out
}

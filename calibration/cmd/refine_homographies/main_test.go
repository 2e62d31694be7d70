package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"go.viam.com/test"

	"github.com/DarisaLLC/zoomcalib/logging"
	"github.com/DarisaLLC/zoomcalib/transform"
)

type jsonCorrespondence struct {
	World  [2]float64 `json:"world"`
	Image  [2]float64 `json:"image"`
	Weight float64    `json:"weight,omitempty"`
}

type jsonView struct {
	IntrinsicsTag   string               `json:"itag"`
	ViewTag         string               `json:"etag"`
	Homography      []float64            `json:"homography"`
	Correspondences []jsonCorrespondence `json:"correspondences"`
}

func observedView(t *testing.T, itag, etag string, pose *transform.EulerPose) jsonView {
	t.Helper()
	camera := &transform.PinholeCameraIntrinsics{Fx: 900, Fy: 950, Ppx: 320, Ppy: 240}
	h := transform.HomographyFromPose(camera, pose)

	vals := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			vals = append(vals, h.At(i, j))
		}
	}
	var corrs []jsonCorrespondence
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			world := [2]float64{0.5 * float64(i), 0.5 * float64(j)}
			image := h.Apply(r2.Point{X: world[0], Y: world[1]})
			corrs = append(corrs, jsonCorrespondence{
				World: world,
				Image: [2]float64{image.X, image.Y},
			})
		}
	}
	return jsonView{IntrinsicsTag: itag, ViewTag: etag, Homography: vals, Correspondences: corrs}
}

func writeObservations(t *testing.T, path string, views []jsonView) {
	t.Helper()
	data, err := json.Marshal(map[string][]jsonView{"views": views})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(path, data, 0o640), test.ShouldBeNil)
}

func TestRefineHomographiesCommand(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	obsPath := filepath.Join(dir, "observations.json")
	writeObservations(t, obsPath, []jsonView{
		observedView(t, "cam0", "a", &transform.EulerPose{X: 0.2, Y: -0.3, Z: -8, Roll: 0.2, Pitch: -0.15, Heading: 0.3}),
		observedView(t, "cam0", "b", &transform.EulerPose{X: -0.4, Y: 0.25, Z: -10, Roll: -0.25, Pitch: 0.2, Heading: -0.2}),
	})

	cfgPath := filepath.Join(dir, "refine.json5")
	cfgContent := `// default estimator, capped iterations
{
	estimator: "noskew",
	max_iterations: 150,
}`
	test.That(t, os.WriteFile(cfgPath, []byte(cfgContent), 0o640), test.ShouldBeNil)

	outPath := filepath.Join(dir, "refined.json")
	err := mainWithArgs(context.Background(), []string{
		"refine_homographies",
		"--observations", obsPath,
		"--config", cfgPath,
		"--out", outPath,
		"--debug",
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	data, err := os.ReadFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	var emitted emittedCalibration
	test.That(t, json.Unmarshal(data, &emitted), test.ShouldBeNil)

	test.That(t, emitted.Converged, test.ShouldBeTrue)
	test.That(t, emitted.RMSE, test.ShouldBeLessThan, 1e-6)
	test.That(t, emitted.Cameras["cam0"].Fx, test.ShouldAlmostEqual, 900, 1e-3)
	test.That(t, emitted.Cameras["cam0"].Ppy, test.ShouldAlmostEqual, 240, 1e-3)
	test.That(t, len(emitted.Views), test.ShouldEqual, 2)
	view, ok := emitted.Views["cam0/a"]
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, view.IntrinsicsTag, test.ShouldEqual, "cam0")
	test.That(t, view.ViewTag, test.ShouldEqual, "a")
	test.That(t, len(view.Intrinsics), test.ShouldEqual, 3)
	test.That(t, len(view.Intrinsics[0]), test.ShouldEqual, 4)
	test.That(t, len(view.Extrinsics), test.ShouldEqual, 4)
	test.That(t, view.Extrinsics[2][3], test.ShouldAlmostEqual, -8, 1e-6)
}

func TestRefineHomographiesCommandErrors(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()

	err := mainWithArgs(context.Background(), []string{"refine_homographies"}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	err = mainWithArgs(context.Background(), []string{
		"refine_homographies",
		"--observations", filepath.Join(dir, "missing.json"),
	}, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error opening JSON file")
}

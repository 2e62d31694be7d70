package calibration

import (
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func TestViewCheckValid(t *testing.T) {
	var nilView *View
	test.That(t, nilView.CheckValid(), test.ShouldNotBeNil)

	view := syntheticView(t, "cam0", "a", testCamera, testPoses[0])
	test.That(t, view.CheckValid(), test.ShouldBeNil)

	bad := view
	bad.IntrinsicsTag = ""
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "no intrinsics tag")

	bad = view
	bad.ViewTag = ""
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "no view tag")

	bad = view
	bad.Homography = nil
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "no homography")

	bad = view
	bad.Correspondences = nil
	test.That(t, bad.CheckValid().Error(), test.ShouldContainSubstring, "no correspondences")
}

func TestNewViewsFromJSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "observations.json")
	content := `{
	"views": [
		{
			"itag": "cam0",
			"etag": "a",
			"homography": [900.5, 1.25, 320, -2.5, 951.75, 240, 0.001, -0.002, 1],
			"correspondences": [
				{"world": [0, 0], "image": [320.5, 240.25]},
				{"world": [0.5, 0], "image": [401, 239], "weight": 0.5}
			]
		}
	]
}`
	test.That(t, os.WriteFile(path, []byte(content), 0o640), test.ShouldBeNil)

	views, err := NewViewsFromJSONFile(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(views), test.ShouldEqual, 1)
	test.That(t, views[0].IntrinsicsTag, test.ShouldEqual, "cam0")
	test.That(t, views[0].ViewTag, test.ShouldEqual, "a")
	test.That(t, views[0].Homography.At(0, 0), test.ShouldEqual, 900.5)
	test.That(t, views[0].Homography.At(2, 1), test.ShouldEqual, -0.002)
	test.That(t, len(views[0].Correspondences), test.ShouldEqual, 2)
	test.That(t, views[0].Correspondences[0].World.X, test.ShouldEqual, 0)
	test.That(t, views[0].Correspondences[0].Image.Y, test.ShouldEqual, 240.25)
	// A correspondence with no weight counts fully.
	test.That(t, views[0].Correspondences[0].Weight, test.ShouldEqual, 1)
	test.That(t, views[0].Correspondences[1].Weight, test.ShouldEqual, 0.5)

	_, err = NewViewsFromJSONFile(filepath.Join(dir, "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error opening JSON file")

	badJSONPath := filepath.Join(dir, "bad.json")
	test.That(t, os.WriteFile(badJSONPath, []byte("{"), 0o640), test.ShouldBeNil)
	_, err = NewViewsFromJSONFile(badJSONPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "error parsing JSON string")

	badHomographyPath := filepath.Join(dir, "badh.json")
	badContent := `{"views": [{"itag": "cam0", "etag": "a", "homography": [1, 0, 0],
		"correspondences": [{"world": [0, 0], "image": [0, 0]}]}]}`
	test.That(t, os.WriteFile(badHomographyPath, []byte(badContent), 0o640), test.ShouldBeNil)
	_, err = NewViewsFromJSONFile(badHomographyPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `bad homography for view "cam0"/"a"`)

	noTagPath := filepath.Join(dir, "notag.json")
	noTagContent := `{"views": [{"itag": "cam0", "etag": "",
		"homography": [1, 0, 0, 0, 1, 0, 0, 0, 1],
		"correspondences": [{"world": [0, 0], "image": [0, 0]}]}]}`
	test.That(t, os.WriteFile(noTagPath, []byte(noTagContent), 0o640), test.ShouldBeNil)
	_, err = NewViewsFromJSONFile(noTagPath)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no view tag")
}

package calibration

import (
	"encoding/json"
	"io"
	"os"

	"github.com/golang/geo/r2"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/DarisaLLC/zoomcalib/transform"
)

// Correspondence pairs a point on the planar target with the pixel where a
// camera observed it. The weight reflects detection confidence.
type Correspondence struct {
	World  r2.Point
	Image  r2.Point
	Weight float64
}

// View is one observation of the planar target: the homography measured for
// it, the correspondences it was measured from, and the tags naming which
// camera took it and which pose it was taken from.
type View struct {
	// IntrinsicsTag groups views that share a camera.
	IntrinsicsTag string
	// ViewTag distinguishes this view's pose within its camera group.
	ViewTag         string
	Homography      *transform.Homography
	Correspondences []Correspondence
}

// CheckValid checks if the view has enough information to be refined.
func (v *View) CheckValid() error {
	if v == nil {
		return errors.New("view is nil")
	}
	if v.IntrinsicsTag == "" {
		return errors.New("view has no intrinsics tag")
	}
	if v.ViewTag == "" {
		return errors.New("view has no view tag")
	}
	if v.Homography == nil {
		return errors.New("view has no homography")
	}
	if len(v.Correspondences) == 0 {
		return errors.New("view has no correspondences")
	}
	return nil
}

type correspondenceConfig struct {
	World  [2]float64 `json:"world"`
	Image  [2]float64 `json:"image"`
	Weight float64    `json:"weight"`
}

type viewConfig struct {
	IntrinsicsTag   string                 `json:"itag"`
	ViewTag         string                 `json:"etag"`
	Homography      []float64              `json:"homography"`
	Correspondences []correspondenceConfig `json:"correspondences"`
}

type observationsConfig struct {
	Views []viewConfig `json:"views"`
}

// NewViewsFromJSONFile reads the observed homographies and their
// correspondences from a JSON file. A correspondence with no weight counts
// as weight one.
func NewViewsFromJSONFile(path string) ([]View, error) {
	jsonFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)

	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	var cfg observationsConfig
	if err := json.Unmarshal(byteValue, &cfg); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}

	views := make([]View, 0, len(cfg.Views))
	for _, vc := range cfg.Views {
		homography, err := transform.NewHomography(vc.Homography)
		if err != nil {
			return nil, errors.Wrapf(err, "bad homography for view %q/%q", vc.IntrinsicsTag, vc.ViewTag)
		}
		corrs := make([]Correspondence, 0, len(vc.Correspondences))
		for _, cc := range vc.Correspondences {
			weight := cc.Weight
			if weight == 0 {
				weight = 1
			}
			corrs = append(corrs, Correspondence{
				World:  r2.Point{X: cc.World[0], Y: cc.World[1]},
				Image:  r2.Point{X: cc.Image[0], Y: cc.Image[1]},
				Weight: weight,
			})
		}
		view := View{
			IntrinsicsTag:   vc.IntrinsicsTag,
			ViewTag:         vc.ViewTag,
			Homography:      homography,
			Correspondences: corrs,
		}
		if err := view.CheckValid(); err != nil {
			return nil, errors.Wrapf(err, "bad view %q/%q", vc.IntrinsicsTag, vc.ViewTag)
		}
		views = append(views, view)
	}
	return views, nil
}

package calibration

import (
	"fmt"
	"io"
	"sort"

	"github.com/aybabtme/uniplot/histogram"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/montanaflynn/stats"
	"golang.org/x/exp/maps"

	"github.com/DarisaLLC/zoomcalib/utils"
)

// histogramWidth is the character width of the pixel error histogram bars.
const histogramWidth = 40

// maxHistogramBins caps how many buckets the pixel error histogram uses.
const maxHistogramBins = 10

// Write renders the report as tables of the refined cameras and views,
// followed by a summary and a histogram of the final pixel errors.
func (r *RefineReport) Write(w io.Writer) error {
	cameras := table.NewWriter()
	cameras.AppendHeader(table.Row{"Camera", "Fx", "Fy", "Ppx", "Ppy"})
	cameraTags := maps.Keys(r.Cameras)
	sort.Strings(cameraTags)
	for _, tag := range cameraTags {
		c := r.Cameras[tag]
		cameras.AppendRow([]interface{}{
			tag,
			fmt.Sprintf("%.4f", c.Fx),
			fmt.Sprintf("%.4f", c.Fy),
			fmt.Sprintf("%.4f", c.Ppx),
			fmt.Sprintf("%.4f", c.Ppy),
		})
	}
	fmt.Fprintln(w, cameras.Render())

	views := table.NewWriter()
	views.AppendHeader(table.Row{"View", "RMSE (px)"})
	for _, v := range r.Views {
		views.AppendRow([]interface{}{v.Tag, fmt.Sprintf("%.6f", v.RMSE)})
	}
	fmt.Fprintln(w, views.Render())

	fmt.Fprintf(w, "rmse %.6f -> %.6f\n", r.InitialRMSE, r.FinalRMSE)
	fmt.Fprintf(w, "rmaxse %.6f -> %.6f\n", r.InitialRMaxSE, r.FinalRMaxSE)
	if r.Converged {
		fmt.Fprintf(w, "converged after %d iterations: %s\n", r.Iterations, r.Message)
	} else {
		fmt.Fprintf(w, "did not converge after %d iterations: %s\n", r.Iterations, r.Message)
	}
	for _, tag := range r.Excluded {
		fmt.Fprintf(w, "excluded worst fitting view %s\n", tag)
	}
	skippedTags := maps.Keys(r.Skipped)
	sort.Strings(skippedTags)
	for _, tag := range skippedTags {
		fmt.Fprintf(w, "skipped %s: %v\n", tag, r.Skipped[tag])
	}

	if len(r.PixelErrors) > 1 {
		mean, err := stats.Mean(r.PixelErrors)
		sd, err2 := stats.StandardDeviation(r.PixelErrors)
		if err == nil && err2 == nil {
			fmt.Fprintf(w, "pixel error mean %.6f, stddev %.6f\n", mean, sd)
		}
		nbins := utils.MaxInt(1, len(r.PixelErrors)/8)
		if nbins > maxHistogramBins {
			nbins = maxHistogramBins
		}
		if err := histogram.Fprint(w, histogram.Hist(nbins, r.PixelErrors), histogram.Linear(histogramWidth)); err != nil {
			return err
		}
	}
	return nil
}

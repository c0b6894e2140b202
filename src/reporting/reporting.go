// Package reporting formats search hits and plots index statistics
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/will-rowe/bigsi/src/bigsi"
)

// plot file names written by PlotStats
const (
	DensityPlot = "bigsi-density.png"
	FPRPlot     = "bigsi-false-positive-rates.png"
)

// replacer cleans sample names so they survive a tab separated line
var replacer = strings.NewReplacer("\t", "__", "\n", "__")

// SortedHits returns the sample names of a result set, best hit first and ties broken by name
func SortedHits(results bigsi.Results) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := results[names[i]], results[names[j]]
		if a.PercentKmersFound != b.PercentKmersFound {
			return a.PercentKmersFound > b.PercentKmersFound
		}
		return names[i] < names[j]
	})
	return names
}

// WriteTSV writes one line per hit: sample, percent k-mers found, k-mers found, k-mers queried and,
// when scored, coverage and longest run
func WriteTSV(w io.Writer, results bigsi.Results) error {
	for _, name := range SortedHits(results) {
		hit := results[name]
		line := fmt.Sprintf("%v\t%.2f\t%d\t%d", replacer.Replace(name), hit.PercentKmersFound, hit.NumKmersFound, hit.NumKmers)
		if hit.Score != nil {
			line += fmt.Sprintf("\t%.4f\t%d", hit.Score.Coverage, hit.Score.LongestRun)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// PlotStats writes a histogram of bloom filter densities and a per-colour false positive rate plot to dir
func PlotStats(stats *bigsi.Stats, dir string) error {
	if len(stats.Density) == 0 {
		return errors.New("index holds no colours to plot")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	densityPlot := plot.New()
	densityPlot.Title.Text = "bloom filter density"
	densityPlot.X.Label.Text = "fraction of bits set"
	densityPlot.Y.Label.Text = "number of samples"
	hist, err := plotter.NewHist(plotter.Values(stats.Density), bins(len(stats.Density)))
	if err != nil {
		return errors.Wrap(err, "could not bin densities")
	}
	densityPlot.Add(hist)
	if err := densityPlot.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(dir, DensityPlot)); err != nil {
		return err
	}

	fprPlot := plot.New()
	fprPlot.Title.Text = fmt.Sprintf("false positive rate per k-mer (m=%d, h=%d)", stats.M, stats.H)
	fprPlot.X.Label.Text = "colour"
	fprPlot.Y.Label.Text = "false positive rate"
	points := make(plotter.XYs, len(stats.FalsePositiveRates))
	for i, fpr := range stats.FalsePositiveRates {
		points[i].X = float64(i)
		points[i].Y = fpr
	}
	if err := plotutil.AddLinePoints(fprPlot, "colours", points); err != nil {
		return err
	}
	return fprPlot.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(dir, FPRPlot))
}

// bins picks a histogram bin count for n values
func bins(n int) int {
	switch {
	case n < 10:
		return n
	case n < 500:
		return n / 5
	default:
		return 100
	}
}

// Package report renders histograms for inspection.
package report

import (
	"fmt"

	"histoseg/internal/processing/histogram"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Series is one histogram drawn on a marginal plot.
type Series struct {
	Name      string
	Histogram *histogram.Histogram
}

// PlotMarginals draws the per-channel marginal of every series on one
// chart and saves it to path. The format follows the extension (png, svg,
// pdf). channels labels the dimensions; missing names become c0, c1, ...
func PlotMarginals(path, title string, channels []string, series ...Series) error {
	if len(series) == 0 {
		return fmt.Errorf("nothing to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "bin"
	p.Y.Label.Text = "mass"
	p.Add(plotter.NewGrid())

	line := 0
	for si, s := range series {
		if s.Histogram == nil {
			return fmt.Errorf("series %q has no histogram", s.Name)
		}

		for d := 0; d < s.Histogram.Dims(); d++ {
			pts, err := marginalPoints(s.Histogram, d)
			if err != nil {
				return err
			}

			l, err := plotter.NewLine(pts)
			if err != nil {
				return fmt.Errorf("failed to create line for %s: %w", s.Name, err)
			}
			l.Color = plotutil.Color(line)
			l.Dashes = plotutil.Dashes(si)
			l.Width = vg.Points(1)

			p.Add(l)
			p.Legend.Add(fmt.Sprintf("%s/%s", s.Name, channelName(channels, d)), l)
			line++
		}
	}
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save plot %s: %w", path, err)
	}
	return nil
}

func marginalPoints(h *histogram.Histogram, d int) (plotter.XYs, error) {
	m, err := h.Marginal(d)
	if err != nil {
		return nil, err
	}

	pts := make(plotter.XYs, len(m))
	for i, v := range m {
		pts[i] = plotter.XY{X: float64(i), Y: v}
	}
	return pts, nil
}

func channelName(channels []string, d int) string {
	if d < len(channels) && channels[d] != "" {
		return channels[d]
	}
	return fmt.Sprintf("c%d", d)
}

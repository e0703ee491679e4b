package lblstats

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoPlotData is returned when there is nothing to plot.
var ErrNoPlotData = errors.New("no data to plot")

// PlotAreaDistribution saves a box plot of the bounding box area per category on a log scale to
// path. The image format follows the file extension. Non-positive areas cannot be shown on a log
// axis and are left out.
func PlotAreaDistribution(instances []InstanceRecord, vocab Vocabulary, split, path string) error {
	byID := make(map[int]plotter.Values)
	for _, r := range instances {
		if r.Area > 0 {
			byID[r.CategoryID] = append(byID[r.CategoryID], r.Area)
		}
	}
	if len(byID) == 0 {
		return fmt.Errorf("area plot for split %q: %w", split, ErrNoPlotData)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Bounding box area per category (%s)", split)
	p.Y.Label.Text = "Area (px²)"
	p.Y.Scale = plot.LogScale{}
	p.Y.Tick.Marker = plot.LogTicks{Prec: -1}

	var names []string
	for _, name := range vocab.Names() {
		id, _ := vocab.ID(name)
		values, ok := byID[id]
		if !ok {
			continue
		}
		box, err := plotter.NewBoxPlot(vg.Points(20), float64(len(names)), values)
		if err != nil {
			return fmt.Errorf("area plot for %q: %w", name, err)
		}
		p.Add(box)
		names = append(names, name)
	}
	p.NominalX(names...)

	width := vg.Length(len(names)+2) * vg.Inch
	if width < 8*vg.Inch {
		width = 8 * vg.Inch
	}
	if err := p.Save(width, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save the area plot to %q: %w", path, err)
	}
	return nil
}

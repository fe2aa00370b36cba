package convergence

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotHistory renders the Tracker's recorded error history as iteration vs.
// residual-norm, the diagnostic a driver loop typically wants alongside a
// filter's Describe output.
func PlotHistory(t *Tracker) (*plot.Plot, error) {
	history := t.History()
	if len(history) == 0 {
		return nil, fmt.Errorf("convergence: no recorded history to plot")
	}

	p := plot.New()
	p.Title.Text = "Convergence"
	p.X.Label.Text = "iteration"
	p.Y.Label.Text = "error"

	pts := make(plotter.XYs, len(history))
	for i, e := range history {
		pts[i].X = float64(i + 1)
		pts[i].Y = e
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("convergence: failed to create line: %w", err)
	}
	line.LineStyle.Width = vg.Points(1.5)

	p.Add(line)
	p.Legend.Add("error", line)

	return p, nil
}

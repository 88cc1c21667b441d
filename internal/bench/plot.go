package bench

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// RenderPlot draws a grouped bar chart of ns/op, one bar group per phase
// with one bar per backend, and saves it to path (format chosen by
// extension).
func RenderPlot(results []Result, path string) error {
	var phases []string
	phaseIdx := make(map[string]int)
	var backends []string
	backendIdx := make(map[string]int)
	for _, r := range results {
		if _, ok := phaseIdx[r.Phase]; !ok {
			phaseIdx[r.Phase] = len(phases)
			phases = append(phases, r.Phase)
		}
		if _, ok := backendIdx[r.Backend]; !ok {
			backendIdx[r.Backend] = len(backends)
			backends = append(backends, r.Backend)
		}
	}

	values := make([]plotter.Values, len(backends))
	for i := range values {
		values[i] = make(plotter.Values, len(phases))
	}
	for _, r := range results {
		values[backendIdx[r.Backend]][phaseIdx[r.Phase]] = float64(r.NsPerOp)
	}

	p := plot.New()
	p.Title.Text = "index benchmark"
	p.Y.Label.Text = "ns/op"

	barWidth := vg.Points(18)
	for i, name := range backends {
		bars, err := plotter.NewBarChart(values[i], barWidth)
		if err != nil {
			return errors.Wrap(err, "build bar chart")
		}
		bars.LineStyle.Width = 0
		bars.Color = plotutil.Color(i)
		bars.Offset = barWidth * vg.Length(i)
		p.Add(bars)
		p.Legend.Add(name, bars)
	}
	p.Legend.Top = true
	p.NominalX(phases...)

	return errors.Wrapf(p.Save(6*vg.Inch, 4*vg.Inch, path), "save plot %s", path)
}

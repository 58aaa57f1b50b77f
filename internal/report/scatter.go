package report

import (
	"image/color"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/sells-group/accessmap/internal/model"
)

// SaveScatter plots y against x with the fitted OLS line.
func SaveScatter(path string, xLabel, yLabel string, x, y []float64, fit *model.FitResult) error {
	if len(x) != len(y) {
		return eris.Errorf("report: %d x values for %d y values", len(x), len(y))
	}

	p := plot.New()
	p.Title.Text = yLabel + " vs " + xLabel
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(x))
	for i := range x {
		pts[i].X = x[i]
		pts[i].Y = y[i]
	}
	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return eris.Wrap(err, "report: scatter")
	}
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	scatter.GlyphStyle.Radius = vg.Points(2)
	scatter.GlyphStyle.Color = color.RGBA{R: 0x31, G: 0x82, B: 0xbd, A: 0xff}
	p.Add(scatter)

	if fit != nil {
		b0, ok0 := fit.Coef("(Intercept)")
		b1, ok1 := fit.Coef(xLabel)
		if ok0 && ok1 {
			line := plotter.NewFunction(func(v float64) float64 { return b0.Estimate + b1.Estimate*v })
			line.Color = color.RGBA{R: 0xf0, G: 0x3b, B: 0x20, A: 0xff}
			line.Width = vg.Points(1.5)
			p.Add(line)
			p.Legend.Add("OLS fit", line)
		}
	}

	if err := p.Save(6*vg.Inch, 5*vg.Inch, path); err != nil {
		return eris.Wrapf(err, "report: save scatter %s", path)
	}
	return nil
}

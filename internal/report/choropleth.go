package report

import (
	"fmt"
	"image/color"
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/sells-group/accessmap/internal/model"
)

// Sequential yellow-orange-red ramp, light to dark.
var ramp = []color.RGBA{
	{R: 0xff, G: 0xff, B: 0xb2, A: 0xff},
	{R: 0xfe, G: 0xd9, B: 0x76, A: 0xff},
	{R: 0xfe, G: 0xb2, B: 0x4c, A: 0xff},
	{R: 0xfd, G: 0x8d, B: 0x3c, A: 0xff},
	{R: 0xf0, G: 0x3b, B: 0x20, A: 0xff},
	{R: 0xbd, G: 0x00, B: 0x26, A: 0xff},
	{R: 0x80, G: 0x00, B: 0x26, A: 0xff},
}

var missingColor = color.RGBA{R: 0xcc, G: 0xcc, B: 0xcc, A: 0xff}

// MapOptions sizes a choropleth.
type MapOptions struct {
	Title   string
	Classes int
	Width   vg.Length
	Height  vg.Length
}

// Breaks returns up to k-1 increasing quantile class boundaries of the
// finite values. Duplicate quantiles (common with counts) collapse.
func Breaks(values []float64, k int) []float64 {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 || k < 2 {
		return nil
	}
	slices.Sort(sorted)

	var out []float64
	for q := 1; q < k; q++ {
		b := stat.Quantile(float64(q)/float64(k), stat.Empirical, sorted, nil)
		if b >= sorted[len(sorted)-1] {
			break
		}
		if len(out) == 0 || b > out[len(out)-1] {
			out = append(out, b)
		}
	}
	return out
}

// Class returns the class index of v: the number of breaks strictly below v.
func Class(v float64, breaks []float64) int {
	c := 0
	for _, b := range breaks {
		if v > b {
			c++
		}
	}
	return c
}

// classColors spreads n classes over the ramp.
func classColors(n int) []color.Color {
	out := make([]color.Color, n)
	for i := range n {
		j := 0
		if n > 1 {
			j = int(math.Round(float64(i) * float64(len(ramp)-1) / float64(n-1)))
		}
		out[i] = ramp[j]
	}
	return out
}

func classLabels(values []float64, breaks []float64) []string {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	edges := append(append([]float64{lo}, breaks...), hi)
	labels := make([]string, len(edges)-1)
	for i := range labels {
		labels[i] = fmt.Sprintf("%s - %s", formatEdge(edges[i]), formatEdge(edges[i+1]))
	}
	return labels
}

func formatEdge(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// polygons draws filled multipolygons in data coordinates.
type polygons struct {
	shapes []*geom.MultiPolygon
	fills  []color.Color
	line   draw.LineStyle
}

func (p *polygons) Plot(c draw.Canvas, plt *plot.Plot) {
	trX, trY := plt.Transforms(&c)
	for i, mp := range p.shapes {
		if mp == nil {
			continue
		}
		var path vg.Path
		stride := mp.Stride()
		for j := range mp.NumPolygons() {
			poly := mp.Polygon(j)
			for k := range poly.NumLinearRings() {
				flat := poly.LinearRing(k).FlatCoords()
				for v := 0; v+1 < len(flat); v += stride {
					pt := vg.Point{X: trX(flat[v]), Y: trY(flat[v+1])}
					if v == 0 {
						path.Move(pt)
					} else {
						path.Line(pt)
					}
				}
				path.Close()
			}
		}
		c.SetColor(p.fills[i])
		c.Fill(path)
		c.SetLineStyle(p.line)
		c.Stroke(path)
	}
}

func (p *polygons) DataRange() (xmin, xmax, ymin, ymax float64) {
	b := geom.NewBounds(geom.XY)
	for _, mp := range p.shapes {
		if mp != nil {
			b.Extend(mp)
		}
	}
	return b.Min(0), b.Max(0), b.Min(1), b.Max(1)
}

// swatch is a legend thumbnail filled with one colour.
type swatch struct{ c color.Color }

func (s swatch) Thumbnail(c *draw.Canvas) {
	r := c.Rectangle
	c.FillPolygon(s.c, []vg.Point{
		r.Min,
		{X: r.Max.X, Y: r.Min.Y},
		r.Max,
		{X: r.Min.X, Y: r.Max.Y},
	})
}

// Choropleth builds a quantile-classed map of values over the regions.
// NaN values are drawn grey and listed as missing.
func Choropleth(regions []model.Region, values []float64, opts MapOptions) (*plot.Plot, error) {
	if len(regions) != len(values) {
		return nil, eris.Errorf("report: %d regions for %d values", len(regions), len(values))
	}
	if len(regions) == 0 {
		return nil, eris.New("report: no regions to map")
	}
	classes := opts.Classes
	if classes < 2 {
		classes = 5
	}

	breaks := Breaks(values, classes)
	colors := classColors(len(breaks) + 1)

	layer := &polygons{
		shapes: make([]*geom.MultiPolygon, len(regions)),
		fills:  make([]color.Color, len(regions)),
		line:   draw.LineStyle{Color: color.Gray{Y: 0x60}, Width: vg.Points(0.2)},
	}
	missing := 0
	for i, r := range regions {
		layer.shapes[i] = r.Geometry
		if math.IsNaN(values[i]) {
			layer.fills[i] = missingColor
			missing++
			continue
		}
		layer.fills[i] = colors[Class(values[i], breaks)]
	}

	p := plot.New()
	p.Title.Text = opts.Title
	p.HideAxes()
	p.Add(layer)

	p.Legend.Top = true
	if missing < len(values) {
		for i, label := range classLabels(values, breaks) {
			p.Legend.Add(label, swatch{c: colors[i]})
		}
	}
	if missing > 0 {
		p.Legend.Add(fmt.Sprintf("missing (%d)", missing), swatch{c: missingColor})
	}
	return p, nil
}

// SaveChoropleth renders a choropleth to path; the extension picks the format.
func SaveChoropleth(path string, regions []model.Region, values []float64, opts MapOptions) error {
	p, err := Choropleth(regions, values, opts)
	if err != nil {
		return err
	}
	w, h := opts.Width, opts.Height
	if w == 0 {
		w = 8 * vg.Inch
	}
	if h == 0 {
		h = 10 * vg.Inch
	}
	if err := p.Save(w, h, path); err != nil {
		return eris.Wrapf(err, "report: save map %s", path)
	}
	zap.L().Info("map written",
		zap.String("component", "report"),
		zap.String("path", path),
		zap.Int("regions", len(regions)),
	)
	return nil
}

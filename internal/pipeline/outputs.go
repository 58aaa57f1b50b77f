package pipeline

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/plot/vg"

	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/regress"
	"github.com/sells-group/accessmap/internal/report"
)

// Report assembles the console report of a finished run.
func (r *Result) Report() *report.Report {
	rep := &report.Report{
		Summary: report.Summary{
			RunID:           r.Run.ID,
			Regions:         r.Merge.Regions,
			Stores:          len(r.Stores),
			Qualifying:      r.Qualifying,
			DemographicRows: len(r.Demographics),
			Matched:         r.Merge.Matched,
			Analysed:        len(r.Analysed),
			ZeroCount:       r.Merge.ZeroCount,
			DroppedZero:     r.Merge.DroppedZero,
			DroppedMissing:  r.DroppedMissing,
			Response:        ResponseColumn,
			Predictor:       PredictorColumn,
		},
		Moran: r.Moran,
	}
	if r.Weights != nil {
		rep.Weights = r.Weights.Summarize()
	}
	for _, f := range []*model.FitResult{r.OLS, r.Lag, r.Error} {
		if f != nil {
			rep.Fits = append(rep.Fits, f)
		}
	}
	rep.AIC = regress.CompareAIC(rep.Fits...)
	return rep
}

// writeOutputs writes every configured map, chart and export and returns
// the paths written.
func (p *Pipeline) writeOutputs(res *Result) ([]string, error) {
	rc := p.cfg.Report
	opts := report.MapOptions{
		Classes: rc.Classes,
		Width:   vg.Length(rc.WidthInches) * vg.Inch,
		Height:  vg.Length(rc.HeightInches) * vg.Inch,
	}

	var written []string
	if rc.MapPath != "" {
		counts := make([]float64, len(res.Regions))
		for i, r := range res.Regions {
			counts[i] = float64(r.AccessCount)
		}
		opts.Title = "Qualifying stores within buffer distance"
		if err := report.SaveChoropleth(rc.MapPath, res.Regions, counts, opts); err != nil {
			return written, err
		}
		written = append(written, rc.MapPath)
	}

	if rc.FractionMap != "" {
		fractions := make([]float64, len(res.Regions))
		for i, r := range res.Regions {
			fractions[i] = math.NaN()
			if r.HasFraction {
				fractions[i] = r.Fraction
			}
		}
		opts.Title = p.cfg.ACS.Variable + " (percent)"
		if err := report.SaveChoropleth(rc.FractionMap, res.Regions, fractions, opts); err != nil {
			return written, err
		}
		written = append(written, rc.FractionMap)
	}

	if rc.ScatterPath != "" {
		y, x := Columns(res.Analysed)
		if err := report.SaveScatter(rc.ScatterPath, PredictorColumn, ResponseColumn, x, y, res.OLS); err != nil {
			return written, err
		}
		written = append(written, rc.ScatterPath)
	}

	if rc.XLSXPath != "" {
		if err := report.WriteXLSX(rc.XLSXPath, "regions", res.Regions); err != nil {
			return written, err
		}
		written = append(written, rc.XLSXPath)
	}

	if rc.GeoJSONPath != "" {
		if err := report.WriteGeoJSON(rc.GeoJSONPath, p.cfg.Analysis.WorkingCRS, res.Regions); err != nil {
			return written, eris.Wrap(err, "pipeline: geojson export")
		}
		written = append(written, rc.GeoJSONPath)
	}
	return written, nil
}

// Package report prints the analysis tables and writes the map, chart and
// table exports of a run.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/regress"
	"github.com/sells-group/accessmap/internal/weights"
)

// Summary describes the data that went into a run.
type Summary struct {
	RunID           string
	Regions         int
	Stores          int
	Qualifying      int
	DemographicRows int
	Matched         int
	Analysed        int
	ZeroCount       int
	DroppedZero     []string
	DroppedMissing  []string
	Response        string
	Predictor       string
}

// Report is everything printed at the end of an analysis run.
type Report struct {
	Summary Summary
	Weights weights.Summary
	Fits    []*model.FitResult
	AIC     []regress.AICRow
	Moran   []*model.MoranResult
}

// Print writes the full console report.
func Print(out io.Writer, r *Report) {
	WriteSummary(out, r.Summary)
	_, _ = fmt.Fprintln(out)
	WriteWeights(out, r.Weights)
	for _, f := range r.Fits {
		_, _ = fmt.Fprintln(out)
		WriteFit(out, f)
	}
	if len(r.AIC) > 0 {
		_, _ = fmt.Fprintln(out)
		WriteAIC(out, r.AIC)
	}
	if len(r.Moran) > 0 {
		_, _ = fmt.Fprintln(out)
		WriteMoran(out, r.Moran)
	}
}

// WriteSummary writes the data summary and the dropped rows.
func WriteSummary(out io.Writer, s Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATA SUMMARY")
	if s.RunID != "" {
		_, _ = fmt.Fprintf(w, "run\t%s\n", s.RunID)
	}
	_, _ = fmt.Fprintf(w, "regions loaded\t%d\n", s.Regions)
	_, _ = fmt.Fprintf(w, "stores loaded\t%d\n", s.Stores)
	_, _ = fmt.Fprintf(w, "qualifying stores\t%d\n", s.Qualifying)
	_, _ = fmt.Fprintf(w, "demographic rows\t%d\n", s.DemographicRows)
	_, _ = fmt.Fprintf(w, "regions matched\t%d\n", s.Matched)
	_, _ = fmt.Fprintf(w, "regions with zero access\t%d\n", s.ZeroCount)
	_, _ = fmt.Fprintf(w, "regions analysed\t%d\n", s.Analysed)
	if s.Response != "" {
		_, _ = fmt.Fprintf(w, "model\t%s ~ %s\n", s.Response, s.Predictor)
	}
	_ = w.Flush()

	writeDropped(out, "dropped (no intersecting buffer)", s.DroppedZero)
	writeDropped(out, "dropped (missing demographic value)", s.DroppedMissing)
}

func writeDropped(out io.Writer, label string, ids []string) {
	if len(ids) == 0 {
		return
	}
	shown := ids
	more := ""
	if len(shown) > 10 {
		shown = shown[:10]
		more = fmt.Sprintf(" ... (+%d)", len(ids)-10)
	}
	_, _ = fmt.Fprintf(out, "%s: %d: %s%s\n", label, len(ids), strings.Join(shown, ", "), more)
}

// WriteWeights writes the contiguity summary.
func WriteWeights(out io.Writer, s weights.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "QUEEN CONTIGUITY")
	_, _ = fmt.Fprintf(w, "regions\t%d\n", s.N)
	_, _ = fmt.Fprintf(w, "links\t%d\n", s.Links)
	_, _ = fmt.Fprintf(w, "neighbours (min/mean/max)\t%d / %.2f / %d\n", s.MinNeighbors, s.MeanNeighbors, s.MaxNeighbors)
	_, _ = fmt.Fprintf(w, "islands\t%d\n", len(s.Islands))
	_ = w.Flush()
}

// WriteFit writes one model's coefficient table and fit statistics.
func WriteFit(out io.Writer, f *model.FitResult) {
	stat := "z"
	if f.Kind == model.ModelOLS {
		stat = "t"
	}

	_, _ = fmt.Fprintf(out, "%s (n=%d, response %s)\n", strings.ToUpper(title(f.Kind)), f.N, f.Response)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	_, _ = fmt.Fprintf(w, "TERM\tESTIMATE\tSTD ERROR\t%s\tP\t\n", strings.ToUpper(stat))
	for _, c := range f.Coefficients {
		_, _ = fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.3f\t%s\t\n", c.Name, c.Estimate, c.StdError, c.Statistic, formatP(c.PValue))
	}
	if sp := f.Spatial; sp != nil {
		_, _ = fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.3f\t%s\t\n", sp.Name, sp.Estimate, sp.StdError, sp.Z, formatP(sp.PValue))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "log likelihood %.3f, AIC %.3f, sigma^2 %.4f\n", f.LogLik, f.AIC, f.Sigma2)
	if f.Kind == model.ModelOLS {
		_, _ = fmt.Fprintf(out, "R^2 %.4f, adjusted R^2 %.4f, F %.3f (p %s)\n",
			f.RSquared, f.AdjRSquared, f.FStat, formatP(f.FPValue))
	}
	if sp := f.Spatial; sp != nil {
		_, _ = fmt.Fprintf(out, "LR test vs OLS: %.3f (p %s)\n", sp.LR, formatP(sp.LRPValue))
	}
}

// WriteAIC writes the model comparison table, best model first.
func WriteAIC(out io.Writer, rows []regress.AICRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "MODEL\tLOGLIK\tAIC\tDELTA\tBEST")
	_, _ = fmt.Fprintln(w, "-----\t------\t---\t-----\t----")
	for _, r := range rows {
		best := ""
		if r.Best {
			best = "*"
		}
		_, _ = fmt.Fprintf(w, "%s\t%.3f\t%.3f\t%.3f\t%s\n", title(r.Kind), r.LogLik, r.AIC, r.Delta, best)
	}
	_ = w.Flush()
}

// WriteMoran writes one Moran's I row per tested column.
func WriteMoran(out io.Writer, results []*model.MoranResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "COLUMN\tN\tMORAN I\tE[I]\tZ\tP\tPERM P")
	_, _ = fmt.Fprintln(w, "------\t-\t-------\t----\t-\t-\t------")
	for _, r := range results {
		if r.Constant {
			_, _ = fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t-\t1\t-\t(constant)\n", r.Column, r.N, r.I, r.Expected)
			continue
		}
		perm := "-"
		if r.Permutations > 0 {
			perm = formatP(r.PermPValue)
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%.4f\t%.4f\t%.3f\t%s\t%s\n",
			r.Column, r.N, r.I, r.Expected, r.Z, formatP(r.PValue), perm)
	}
	_ = w.Flush()
}

func title(k model.ModelKind) string {
	switch k {
	case model.ModelOLS:
		return "ols"
	case model.ModelLag:
		return "spatial lag"
	case model.ModelError:
		return "spatial error"
	}
	return string(k)
}

func formatP(p float64) string {
	if p < 1e-4 {
		return "<0.0001"
	}
	return fmt.Sprintf("%.4f", p)
}

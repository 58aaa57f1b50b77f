package regress

import (
	"math"
	"sort"

	"github.com/sells-group/accessmap/internal/model"
)

// AICRow is one line of an AIC comparison.
type AICRow struct {
	Kind     model.ModelKind
	Response string
	LogLik   float64
	AIC      float64
	// Delta is AIC minus the smallest AIC in the comparison.
	Delta float64
	Best  bool
}

// CompareAIC ranks fits by AIC, lowest first. Nil results are skipped.
func CompareAIC(results ...*model.FitResult) []AICRow {
	rows := make([]AICRow, 0, len(results))
	minAIC := math.Inf(1)
	for _, r := range results {
		if r == nil {
			continue
		}
		rows = append(rows, AICRow{Kind: r.Kind, Response: r.Response, LogLik: r.LogLik, AIC: r.AIC})
		if r.AIC < minAIC {
			minAIC = r.AIC
		}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].AIC < rows[j].AIC })
	for i := range rows {
		rows[i].Delta = rows[i].AIC - minAIC
	}
	if len(rows) > 0 {
		rows[0].Best = true
	}
	return rows
}

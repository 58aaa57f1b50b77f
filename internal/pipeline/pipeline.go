// Package pipeline runs one grocery-access analysis end to end: load, filter,
// buffer, count, join, weights, models, autocorrelation tests and outputs.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/access"
	"github.com/sells-group/accessmap/internal/config"
	"github.com/sells-group/accessmap/internal/fetcher"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/store"
	"github.com/sells-group/accessmap/internal/weights"
)

// Column names used in the models, tests and exports.
const (
	ResponseColumn  = "access_count"
	PredictorColumn = "fraction"
)

// Pipeline orchestrates the analysis phases of a single run.
type Pipeline struct {
	cfg     *config.Config
	fetcher fetcher.Fetcher
	cache   store.Store
}

// New creates a Pipeline. A nil cache disables response caching.
func New(cfg *config.Config, f fetcher.Fetcher, cache store.Store) *Pipeline {
	if cache == nil {
		cache = store.Nop{}
	}
	return &Pipeline{cfg: cfg, fetcher: f, cache: cache}
}

// Result is everything a run produced.
type Result struct {
	Run model.Run

	// Regions is the joined table (after the zero-count policy).
	Regions []model.Region
	// Analysed is Regions without rows missing the fraction.
	Analysed []model.Region

	Stores         []model.Store
	Qualifying     int
	Demographics   model.Demographics
	Merge          access.MergeReport
	DroppedMissing []string
	Weights        *weights.Weights

	OLS   *model.FitResult
	Lag   *model.FitResult
	Error *model.FitResult
	Moran []*model.MoranResult
}

// Run executes every phase in order and stops at the first failure.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{Run: model.Run{ID: uuid.NewString(), StartedAt: time.Now()}}
	log := zap.L().With(zap.String("run_id", res.Run.ID))
	log.Info("pipeline: starting analysis")

	track := func(name string, fn func() (map[string]any, error)) error {
		start := time.Now()
		meta, err := fn()
		pr := model.PhaseResult{Name: name, Duration: time.Since(start).Milliseconds(), Metadata: meta}
		if err != nil {
			pr.Status = model.PhaseStatusFailed
			pr.Error = err.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", pr.Duration),
				zap.Error(err),
			)
		} else {
			pr.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", pr.Duration),
				zap.Any("metadata", meta),
			)
		}
		res.Run.Phases = append(res.Run.Phases, pr)
		return err
	}

	var (
		tracts  []model.Region
		buffers []model.Buffer
		counts  []int
		merged  mergeOutcome
	)

	steps := []struct {
		name string
		fn   func() (map[string]any, error)
	}{
		{"load_tracts", func() (map[string]any, error) {
			var err error
			tracts, err = p.LoadTracts(ctx)
			return map[string]any{"regions": len(tracts)}, err
		}},
		{"load_stores", func() (map[string]any, error) {
			var err error
			res.Stores, err = p.loadStores()
			return map[string]any{"stores": len(res.Stores)}, err
		}},
		{"load_demographics", func() (map[string]any, error) {
			var err error
			res.Demographics, err = p.loadDemographics(ctx)
			return map[string]any{"rows": len(res.Demographics)}, err
		}},
		{"buffer", func() (map[string]any, error) {
			var err error
			buffers, res.Qualifying, err = p.buffer(res.Stores)
			return map[string]any{"qualifying": res.Qualifying, "buffers": len(buffers)}, err
		}},
		{"intersect", func() (map[string]any, error) {
			var err error
			counts, err = p.intersect(tracts, buffers)
			return map[string]any{"regions": len(counts)}, err
		}},
		{"merge", func() (map[string]any, error) {
			var err error
			merged, err = p.merge(tracts, counts, res.Demographics)
			res.Regions, res.Analysed = merged.regions, merged.analysed
			res.Merge, res.DroppedMissing = merged.report, merged.dropped
			return map[string]any{"matched": merged.report.Matched, "analysed": len(merged.analysed)}, err
		}},
		{"weights", func() (map[string]any, error) {
			var err error
			res.Weights, err = p.buildWeights(res.Regions, res.Analysed)
			if err != nil {
				return nil, err
			}
			return map[string]any{"links": res.Weights.Links()}, nil
		}},
		{"fit", func() (map[string]any, error) {
			var err error
			res.OLS, res.Lag, res.Error, err = p.fit(res.Analysed, res.Weights)
			return nil, err
		}},
		{"moran", func() (map[string]any, error) {
			var err error
			res.Moran, err = p.moran(res.Analysed, res.Weights)
			return map[string]any{"columns": len(res.Moran)}, err
		}},
		{"outputs", func() (map[string]any, error) {
			written, err := p.writeOutputs(res)
			return map[string]any{"files": written}, err
		}},
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "pipeline: cancelled")
		}
		if err := track(s.name, s.fn); err != nil {
			return res, err
		}
	}

	log.Info("pipeline: analysis complete",
		zap.Int("regions", len(res.Analysed)),
		zap.Float64("ols_aic", res.OLS.AIC),
		zap.Float64("lag_aic", res.Lag.AIC),
		zap.Float64("error_aic", res.Error.AIC),
	)
	return res, nil
}

// tempDir is where downloaded TIGER archives are unpacked.
func (p *Pipeline) tempDir() string {
	if p.cfg.Tracts.TempDir != "" {
		return p.cfg.Tracts.TempDir
	}
	return filepath.Join(".", "tiger")
}

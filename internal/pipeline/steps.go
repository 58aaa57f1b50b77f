package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/access"
	"github.com/sells-group/accessmap/internal/acs"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/moran"
	"github.com/sells-group/accessmap/internal/poi"
	"github.com/sells-group/accessmap/internal/projection"
	"github.com/sells-group/accessmap/internal/regress"
	"github.com/sells-group/accessmap/internal/tiger"
	"github.com/sells-group/accessmap/internal/weights"
)

// LoadTracts reads the configured tract layer, downloading the TIGER/Line
// TRACT file for the ACS state when no path is set.
func (p *Pipeline) LoadTracts(ctx context.Context) ([]model.Region, error) {
	tc := p.cfg.Tracts
	path := tc.Path
	if path == "" {
		if p.fetcher == nil {
			return nil, model.NewSourceLoadError("tracts", "", eris.New("pipeline: no tract path and no fetcher"))
		}
		fips, err := tiger.ResolveState(p.cfg.ACS.State)
		if err != nil {
			return nil, model.NewSourceLoadError("tracts", p.cfg.ACS.State, err)
		}
		url := tiger.TractURL(tiger.DefaultBaseURL, tc.TigerYear, fips)
		path, err = tiger.Download(ctx, p.fetcher, url, p.tempDir())
		if err != nil {
			return nil, model.NewSourceLoadError("tracts", url, err)
		}
	}

	return tiger.LoadTracts(path, tiger.TractOptions{
		IDField:          tc.IDField,
		NameField:        tc.NameField,
		SourceCRS:        tc.SourceCRS,
		TargetCRS:        p.cfg.Analysis.WorkingCRS,
		CountyFP:         tc.CountyFP,
		MaxRoundTripErrM: p.cfg.Analysis.MaxRoundTripErrM,
	})
}

func (p *Pipeline) loadStores() ([]model.Store, error) {
	sc := p.cfg.Stores
	if sc.Path == "" {
		return nil, model.NewSourceLoadError("stores", "", eris.New("pipeline: no store layer configured"))
	}
	return poi.LoadStores(sc.Path, poi.Options{
		IDField:     sc.IDField,
		NameField:   sc.NameField,
		StatusField: sc.StatusField,
		LatField:    sc.LatField,
		LonField:    sc.LonField,
		SourceCRS:   sc.SourceCRS,
		TargetCRS:   p.cfg.Analysis.WorkingCRS,
	})
}

// loadDemographics reads the local table when configured, else queries the
// ACS API through the response cache.
func (p *Pipeline) loadDemographics(ctx context.Context) (model.Demographics, error) {
	if p.cfg.ACS.Path != "" {
		return acs.LoadCSV(p.cfg.ACS.Path)
	}
	if p.fetcher == nil {
		return nil, model.NewSourceLoadError("demographics", p.cfg.ACS.BaseURL, eris.New("pipeline: no fetcher for the ACS API"))
	}
	ttl := time.Duration(p.cfg.Cache.TTLHours) * time.Hour
	return acs.NewClient(p.fetcher, p.cache, p.cfg.ACS, ttl).Fetch(ctx)
}

// buffer marks qualifying stores and buffers them by the configured radius
// in working CRS units.
func (p *Pipeline) buffer(stores []model.Store) ([]model.Buffer, int, error) {
	ac := p.cfg.Analysis
	qualifying := access.Filter(stores, access.Rule{Keywords: ac.Keywords, OpenStatus: ac.OpenStatus})

	crs, err := projection.Lookup(ac.WorkingCRS)
	if err != nil {
		return nil, qualifying, err
	}
	perMile, err := crs.UnitsPerMile()
	if err != nil {
		return nil, qualifying, eris.Wrap(err, "pipeline: working CRS must be projected")
	}
	return access.Buffers(stores, ac.BufferMiles*perMile, ac.BufferSegments), qualifying, nil
}

func (p *Pipeline) intersect(regions []model.Region, buffers []model.Buffer) ([]int, error) {
	return access.CountIntersections(regions, buffers)
}

type mergeOutcome struct {
	regions  []model.Region
	analysed []model.Region
	report   access.MergeReport
	dropped  []string
}

func (p *Pipeline) merge(regions []model.Region, counts []int, demo model.Demographics) (mergeOutcome, error) {
	joined, rep, err := access.Merge(regions, counts, demo, access.MergeOptions{
		ZeroCountPolicy: p.cfg.Analysis.ZeroCountPolicy,
		Strict:          p.cfg.Analysis.StrictKeys,
	})
	if err != nil {
		return mergeOutcome{report: rep}, err
	}
	analysed, dropped := access.DropMissing(joined)
	return mergeOutcome{regions: joined, analysed: analysed, report: rep, dropped: dropped}, nil
}

// buildWeights builds queen contiguity over the joined regions and restricts
// it to the analysed rows.
func (p *Pipeline) buildWeights(joined, analysed []model.Region) (*weights.Weights, error) {
	w, err := weights.Queen(joined, weights.Options{
		Precision:  p.cfg.Weights.Precision,
		ZeroPolicy: p.cfg.Weights.ZeroPolicy,
	})
	if err != nil {
		return nil, err
	}
	if len(analysed) == len(joined) {
		return w, nil
	}
	ids := make([]string, len(analysed))
	for i, r := range analysed {
		ids[i] = r.GEOID
	}
	return w.Subset(ids)
}

// Columns returns the response and predictor columns of the regions.
func Columns(regions []model.Region) (y, x []float64) {
	y = make([]float64, len(regions))
	x = make([]float64, len(regions))
	for i, r := range regions {
		y[i] = float64(r.AccessCount)
		x[i] = r.Fraction
	}
	return y, x
}

func (p *Pipeline) fit(regions []model.Region, w *weights.Weights) (ols, lag, sem *model.FitResult, err error) {
	y, x := Columns(regions)
	d, err := regress.NewData(ResponseColumn, y, PredictorColumn, x)
	if err != nil {
		return nil, nil, nil, err
	}
	if ols, err = regress.OLS(d); err != nil {
		return nil, nil, nil, err
	}
	if lag, err = regress.Lag(d, w); err != nil {
		return nil, nil, nil, err
	}
	if sem, err = regress.Error(d, w); err != nil {
		return nil, nil, nil, err
	}
	return ols, lag, sem, nil
}

func (p *Pipeline) moran(regions []model.Region, w *weights.Weights) ([]*model.MoranResult, error) {
	y, x := Columns(regions)
	opts := moran.Options{Permutations: p.cfg.Moran.Permutations, Seed: p.cfg.Moran.Seed}

	out := make([]*model.MoranResult, 0, 2)
	for _, col := range []struct {
		name   string
		values []float64
	}{{ResponseColumn, y}, {PredictorColumn, x}} {
		r, err := moran.Test(col.name, col.values, w, opts)
		if err != nil {
			return nil, err
		}
		if r.Constant {
			zap.L().Warn("pipeline: column is constant, Moran's I is not informative", zap.String("column", col.name))
		}
		out = append(out, r)
	}
	return out, nil
}

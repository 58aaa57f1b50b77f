package tiger

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/geo"
	"github.com/sells-group/accessmap/internal/model"
	"github.com/sells-group/accessmap/internal/projection"
)

// TractOptions selects attributes and the coordinate systems for LoadTracts.
type TractOptions struct {
	IDField   string
	NameField string
	SourceCRS int
	TargetCRS int

	// CountyFP keeps only tracts of one county (3-digit FIPS); empty keeps all.
	CountyFP string

	// MaxRoundTripErrM bounds the projection round trip per vertex; 0 disables it.
	MaxRoundTripErrM float64
}

// LoadTracts reads a tract polygon layer (shapefile or GeoJSON), keeps the
// identifier and name attributes and reprojects every polygon to TargetCRS.
func LoadTracts(path string, opts TractOptions) ([]model.Region, error) {
	log := zap.L().With(zap.String("component", "tiger.tracts"), zap.String("path", path))

	features, err := geo.Read(path, []string{opts.IDField, opts.NameField, "COUNTYFP"})
	if err != nil {
		return nil, model.NewSourceLoadError("tracts", path, err)
	}

	tr, err := projection.NewTransformer(opts.SourceCRS, opts.TargetCRS)
	if err != nil {
		return nil, model.NewSourceLoadError("tracts", path, err)
	}

	seen := make(map[string]bool, len(features))
	regions := make([]model.Region, 0, len(features))
	var filtered int
	for i, f := range features {
		id := f.Attr(opts.IDField)
		if id == "" {
			return nil, model.NewSourceLoadError("tracts", path,
				eris.Errorf("tiger: record %d has no %s", i, opts.IDField))
		}
		if opts.CountyFP != "" && countyOf(f, id) != opts.CountyFP {
			filtered++
			continue
		}
		if seen[id] {
			return nil, model.NewSourceLoadError("tracts", path,
				eris.Errorf("tiger: duplicate %s %q", opts.IDField, id))
		}
		seen[id] = true

		mp, ok := f.Geometry.(*geom.MultiPolygon)
		if !ok {
			return nil, model.NewSourceLoadError("tracts", path,
				fmt.Errorf("tiger: record %s is %T, want polygon", id, f.Geometry))
		}
		g, err := tr.ProjectChecked(mp, opts.MaxRoundTripErrM)
		if err != nil {
			return nil, model.NewSourceLoadError("tracts", path, eris.Wrapf(err, "tiger: reproject %s", id))
		}

		regions = append(regions, model.Region{
			GEOID:    id,
			Name:     f.Attr(opts.NameField),
			Geometry: g.(*geom.MultiPolygon),
		})
	}

	if len(regions) == 0 {
		return nil, model.NewSourceLoadError("tracts", path,
			eris.Errorf("tiger: no tracts left after county filter %q", opts.CountyFP))
	}

	log.Info("loaded tracts",
		zap.Int("regions", len(regions)),
		zap.Int("filtered_out", filtered),
		zap.Int("source_crs", opts.SourceCRS),
		zap.Int("target_crs", opts.TargetCRS),
	)
	return regions, nil
}

// countyOf prefers the COUNTYFP attribute and falls back to GEOID digits 3-5.
func countyOf(f geo.Feature, geoid string) string {
	if v := f.Attr("COUNTYFP"); v != "" {
		return v
	}
	if len(geoid) >= 5 {
		return geoid[2:5]
	}
	return ""
}

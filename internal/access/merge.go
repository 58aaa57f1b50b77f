package access

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/config"
	"github.com/sells-group/accessmap/internal/model"
)

// MergeOptions controls the region join.
type MergeOptions struct {
	// ZeroCountPolicy is config.ZeroCountFill (keep count 0) or
	// config.ZeroCountDrop (remove regions no buffer touches).
	ZeroCountPolicy string
	// Strict fails when any region key is absent from the demographic table.
	Strict bool
}

// MergeReport summarises what the join did.
type MergeReport struct {
	Regions         int
	Matched         int
	MissingFraction []string
	ZeroCount       int
	DroppedZero     []string
}

// Merge copies regions and attaches the access counts and demographic
// fractions by GEOID. Regions without a fraction are kept with
// HasFraction=false; DropMissing removes them before fitting.
func Merge(regions []model.Region, counts []int, demo model.Demographics, opts MergeOptions) ([]model.Region, MergeReport, error) {
	log := zap.L().With(zap.String("component", "access.merge"))

	if len(counts) != len(regions) {
		return nil, MergeReport{}, eris.Errorf("access: %d counts for %d regions", len(counts), len(regions))
	}

	rep := MergeReport{Regions: len(regions)}
	out := make([]model.Region, 0, len(regions))
	for i, r := range regions {
		r.AccessCount = counts[i]
		if v, ok := demo[r.GEOID]; ok {
			r.Fraction, r.HasFraction = v, true
			rep.Matched++
		} else {
			r.Fraction, r.HasFraction = 0, false
			rep.MissingFraction = append(rep.MissingFraction, r.GEOID)
		}

		if r.AccessCount == 0 {
			rep.ZeroCount++
			if opts.ZeroCountPolicy == config.ZeroCountDrop {
				rep.DroppedZero = append(rep.DroppedZero, r.GEOID)
				continue
			}
		}
		out = append(out, r)
	}

	if len(regions) > 0 && rep.Matched == 0 {
		return nil, rep, &model.JoinKeyMismatchError{Table: "demographics", Missing: rep.MissingFraction, Total: len(regions)}
	}
	if opts.Strict && len(rep.MissingFraction) > 0 {
		return nil, rep, &model.JoinKeyMismatchError{Table: "demographics", Missing: rep.MissingFraction, Total: len(regions)}
	}

	log.Info("joined counts and demographics",
		zap.Int("regions", rep.Regions),
		zap.Int("matched", rep.Matched),
		zap.Int("missing_fraction", len(rep.MissingFraction)),
		zap.Int("zero_count", rep.ZeroCount),
		zap.String("zero_count_policy", opts.ZeroCountPolicy),
		zap.Int("dropped_zero", len(rep.DroppedZero)),
	)
	return out, rep, nil
}

// DropMissing returns the regions that have a demographic fraction and the
// GEOIDs of those removed. Removal is logged at warn level.
func DropMissing(regions []model.Region) ([]model.Region, []string) {
	kept := make([]model.Region, 0, len(regions))
	var dropped []string
	for _, r := range regions {
		if r.HasFraction {
			kept = append(kept, r)
		} else {
			dropped = append(dropped, r.GEOID)
		}
	}
	if len(dropped) > 0 {
		zap.L().Warn("dropping regions without a demographic fraction before fitting",
			zap.String("component", "access.merge"),
			zap.Int("dropped", len(dropped)),
			zap.Strings("geoids", dropped),
		)
	}
	return kept, dropped
}

package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/config"
	"github.com/sells-group/accessmap/internal/pipeline"
	"github.com/sells-group/accessmap/internal/report"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full access analysis",
	Long: `Loads tracts, stores and the ACS table, counts qualifying store buffers per
tract, fits OLS, spatial lag and spatial error models, runs Moran's I on both
columns, prints the report and writes the configured map and exports.

Tracts are downloaded from TIGER/Line when no --tracts path is configured.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyAnalyzeFlags(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		cache, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		if n, err := cache.DeleteExpired(ctx); err != nil {
			zap.L().Warn("analyze: purge expired cache entries", zap.Error(err))
		} else if n > 0 {
			zap.L().Debug("analyze: purged expired cache entries", zap.Int("deleted", n))
		}

		res, err := pipeline.New(cfg, newFetcher(cfg), cache).Run(ctx)
		if err != nil {
			return err
		}

		report.Print(cmd.OutOrStdout(), res.Report())
		return nil
	},
}

// applyAnalyzeFlags copies explicitly set flags over the loaded configuration.
func applyAnalyzeFlags(fs *pflag.FlagSet, c *config.Config) {
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	str("tracts", &c.Tracts.Path)
	str("stores", &c.Stores.Path)
	str("acs-csv", &c.ACS.Path)
	str("map", &c.Report.MapPath)
	str("fraction-map", &c.Report.FractionMap)
	str("scatter", &c.Report.ScatterPath)
	str("xlsx", &c.Report.XLSXPath)
	str("geojson", &c.Report.GeoJSONPath)
	str("zero-count", &c.Analysis.ZeroCountPolicy)
	str("open-status", &c.Analysis.OpenStatus)

	if fs.Changed("keywords") {
		kw, _ := fs.GetString("keywords")
		c.Analysis.Keywords = config.SplitList(kw)
	}
	if fs.Changed("miles") {
		c.Analysis.BufferMiles, _ = fs.GetFloat64("miles")
	}
	if fs.Changed("crs") {
		c.Analysis.WorkingCRS, _ = fs.GetInt("crs")
	}
	if fs.Changed("strict") {
		c.Analysis.StrictKeys, _ = fs.GetBool("strict")
	}
	if fs.Changed("permutations") {
		c.Moran.Permutations, _ = fs.GetInt("permutations")
	}
}

func init() {
	f := analyzeCmd.Flags()
	f.String("tracts", "", "tract polygon layer (.shp or .geojson)")
	f.String("stores", "", "store layer (.shp, .geojson or .csv)")
	f.String("acs-csv", "", "read demographics from a GEOID,value CSV instead of the ACS API")
	f.String("map", "", "choropleth PNG of the access count")
	f.String("fraction-map", "", "choropleth PNG of the demographic fraction")
	f.String("scatter", "", "scatter PNG of count against fraction")
	f.String("xlsx", "", "export the joined table as XLSX")
	f.String("geojson", "", "export the joined table as WGS84 GeoJSON")
	f.String("zero-count", config.ZeroCountFill, "regions without a buffer: fill or drop")
	f.String("open-status", "OPEN", "status value of open stores")
	f.String("keywords", "", "comma-separated store name allowlist")
	f.Float64("miles", 1, "buffer radius in statute miles")
	f.Int("crs", 3435, "working EPSG code")
	f.Bool("strict", false, "fail when any tract is missing from the demographic table")
	f.Int("permutations", 999, "Moran's I permutations (0 skips the test)")
	rootCmd.AddCommand(analyzeCmd)
}

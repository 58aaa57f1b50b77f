package main

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sells-group/accessmap/internal/config"
	"github.com/sells-group/accessmap/internal/pipeline"
	"github.com/sells-group/accessmap/internal/report"
	"github.com/sells-group/accessmap/internal/weights"
)

var weightsCmd = &cobra.Command{
	Use:   "weights",
	Short: "Summarise queen contiguity for a tract layer",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fs := cmd.Flags()
		if fs.Changed("tracts") {
			cfg.Tracts.Path, _ = fs.GetString("tracts")
		}

		regions, err := pipeline.New(cfg, newFetcher(cfg), nil).LoadTracts(ctx)
		if err != nil {
			return err
		}

		w, err := weights.Queen(regions, weightsOptions(fs, cfg))
		if err != nil {
			return err
		}

		s := w.Summarize()
		report.WriteWeights(cmd.OutOrStdout(), s)
		if len(s.Islands) > 0 {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "islands: %s\n", strings.Join(s.Islands, ", "))
		}
		return nil
	},
}

// weightsOptions mirrors what analyze uses, with flag overrides.
func weightsOptions(fs *pflag.FlagSet, c *config.Config) weights.Options {
	opts := weights.Options{Precision: c.Weights.Precision, ZeroPolicy: c.Weights.ZeroPolicy}
	if fs.Changed("precision") {
		opts.Precision, _ = fs.GetFloat64("precision")
	}
	if fs.Changed("zero-policy") {
		opts.ZeroPolicy, _ = fs.GetBool("zero-policy")
	}
	return opts
}

func init() {
	weightsCmd.Flags().String("tracts", "", "tract polygon layer (default from config, else TIGER download)")
	weightsCmd.Flags().Float64("precision", 0, "vertex snapping precision in working CRS units")
	weightsCmd.Flags().Bool("zero-policy", true, "allow tracts without neighbours (default from config)")
	rootCmd.AddCommand(weightsCmd)
}

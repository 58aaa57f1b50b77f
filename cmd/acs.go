package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/acs"
	"github.com/sells-group/accessmap/internal/model"
)

var acsCmd = &cobra.Command{
	Use:   "acs",
	Short: "Fetch the ACS demographic table",
	Long: `Queries the Census ACS API for the configured variable at tract level,
caches the response and prints GEOID and value. Use --out to write a
GEOID,value CSV that analyze --acs-csv can read.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		fs := cmd.Flags()
		if fs.Changed("year") {
			cfg.ACS.Year, _ = fs.GetInt("year")
		}
		if fs.Changed("variable") {
			cfg.ACS.Variable, _ = fs.GetString("variable")
		}
		if fs.Changed("state") {
			cfg.ACS.State, _ = fs.GetString("state")
		}
		if fs.Changed("county") {
			cfg.ACS.County, _ = fs.GetString("county")
		}

		cache, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		ttl := time.Duration(cfg.Cache.TTLHours) * time.Hour
		demo, err := acs.NewClient(newFetcher(cfg), cache, cfg.ACS, ttl).Fetch(ctx)
		if err != nil {
			return err
		}

		out, _ := fs.GetString("out")
		if out != "" {
			if err := writeDemographicsCSV(out, demo); err != nil {
				return err
			}
			zap.L().Info("acs table written", zap.String("path", out), zap.Int("rows", len(demo)))
			return nil
		}
		formatDemographics(cmd.OutOrStdout(), cfg.ACS.Variable, demo)
		return nil
	},
}

var acsPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete expired cached ACS responses",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		cache, err := openCache(ctx, cfg)
		if err != nil {
			return err
		}
		defer cache.Close() //nolint:errcheck

		n, err := cache.DeleteExpired(ctx)
		if err != nil {
			return eris.Wrap(err, "acs purge")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired responses\n", n)
		return nil
	},
}

func sortedGEOIDs(demo model.Demographics) []string {
	ids := make([]string, 0, len(demo))
	for id := range demo {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// formatDemographics writes the table sorted by GEOID.
func formatDemographics(out io.Writer, variable string, demo model.Demographics) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "GEOID\t%s\n", variable)
	_, _ = fmt.Fprintln(w, "-----\t-----")
	for _, id := range sortedGEOIDs(demo) {
		_, _ = fmt.Fprintf(w, "%s\t%s\n", id, strconv.FormatFloat(demo[id], 'f', -1, 64))
	}
	_ = w.Flush()
}

func writeDemographicsCSV(path string, demo model.Demographics) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrap(err, "acs: create csv")
	}
	defer f.Close() //nolint:errcheck

	w := csv.NewWriter(f)
	_ = w.Write([]string{"GEOID", "value"})
	for _, id := range sortedGEOIDs(demo) {
		_ = w.Write([]string{id, strconv.FormatFloat(demo[id], 'f', -1, 64)})
	}
	w.Flush()
	return eris.Wrap(w.Error(), "acs: write csv")
}

func init() {
	acsCmd.Flags().Int("year", 0, "ACS 5-year vintage (default from config)")
	acsCmd.Flags().String("variable", "", "ACS variable (default from config)")
	acsCmd.Flags().String("state", "", "state FIPS code")
	acsCmd.Flags().String("county", "", "county FIPS code (empty for the whole state)")
	acsCmd.Flags().String("out", "", "write a GEOID,value CSV instead of printing")
	acsCmd.AddCommand(acsPurgeCmd)
	rootCmd.AddCommand(acsCmd)
}

package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/tiger"
)

var tractsCmd = &cobra.Command{
	Use:   "tracts",
	Short: "Download TIGER/Line census tracts for a state",
	Long: `Downloads and extracts the TIGER/Line TRACT shapefile for one state and
prints the path of the .shp file. States may be given as a postal
abbreviation (IL) or FIPS code (17).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		state, _ := cmd.Flags().GetString("state")
		if state == "" {
			state = cfg.ACS.State
		}
		year, _ := cmd.Flags().GetInt("year")
		if year == 0 {
			year = cfg.Tracts.TigerYear
		}
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = cfg.Tracts.TempDir
		}

		fips, err := tiger.ResolveState(state)
		if err != nil {
			return err
		}
		url := tiger.TractURL(tiger.DefaultBaseURL, year, fips)
		path, err := tiger.Download(ctx, newFetcher(cfg), url, dir)
		if err != nil {
			return err
		}

		zap.L().Info("tracts downloaded", zap.String("state", fips), zap.Int("year", year), zap.String("path", path))
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func init() {
	tractsCmd.Flags().String("state", "", "state abbreviation or FIPS code (default from config)")
	tractsCmd.Flags().Int("year", 0, "TIGER/Line vintage (default from config)")
	tractsCmd.Flags().String("dir", "", "download directory (default from config)")
	rootCmd.AddCommand(tractsCmd)
}

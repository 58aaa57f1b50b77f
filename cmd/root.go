package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/accessmap/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "accessmap",
	Short: "Tract-level grocery access analysis",
	Long: "Counts qualifying stores within a buffer of each census tract, joins an ACS demographic percentage, " +
		"fits OLS, spatial lag and spatial error models and tests both columns for spatial autocorrelation.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

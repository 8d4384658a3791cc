// Command bunker records coal blends for the six mill bunkers of a unit,
// tracks which layer each bunker is drawing from, and serves the live
// picture over HTTP and a terminal dashboard.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shahjoyal/view-bunker/internal/config"
	"github.com/shahjoyal/view-bunker/internal/logging"
)

var (
	// Global flags
	configPath string
	verbose    bool

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "bunker",
	Short: "Coal blend and bunker layer monitor",
	Long: `bunker computes coal blend chemistry (GCV, AFT, heat rate, cost) for the
mills of a generating unit, stacks every recorded blend as a layer in the
mill bunkers, and counts down which layer each bunker is burning now.

Run "bunker serve" for the HTTP/websocket API and "bunker dashboard" for the
terminal view.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Level = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// The dashboard owns the terminal; only log there when a file is set.
		if cmd.Name() == "dashboard" && cfg.Logging.File == "" {
			return nil
		}
		if err := logging.Initialize(cfg.LoggingOptions()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(blendCmd)
	rootCmd.AddCommand(coalCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

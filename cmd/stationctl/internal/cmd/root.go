// Package cmd implements the stationctl CLI's subcommands, grounded in the
// teacher's pkg cli layout (a package-scoped rootCmd plus one file per
// subcommand group, registered from init()).
package cmd

import (
	"context"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stationfm/segmentpipe/pkg/config"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "stationctl",
	Short: "Operator CLI for the station's segment production pipeline",
	Long: `stationctl administers the radio station's Segment Production
Pipeline: applying database migrations, seeding reference data, and
triggering the Cleanup Service's retention purge outside its periodic
schedule.`,
}

func init() {
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".", "directory containing station.yaml")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(cleanupCmd)
}

// Execute runs the root command. Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(ctx context.Context) (*config.Config, error) {
	return config.Initialize(ctx, configDir)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stationfm/segmentpipe/pkg/cleanup"
	"github.com/stationfm/segmentpipe/pkg/store"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run one retention purge pass immediately",
	Long: `cleanup runs the same purge pass the Cleanup Service (A6) runs on
its periodic schedule, but synchronously and once — useful for an operator
clearing a backlog without waiting for the next scheduled tick.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}

		pool, err := store.Open(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		cleanup.NewService(cfg.Retention, pool).RunAll(ctx)
		fmt.Println("cleanup pass complete")
		return nil
	},
}

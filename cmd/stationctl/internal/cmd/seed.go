package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/stationfm/segmentpipe/internal/schema"
	"github.com/stationfm/segmentpipe/pkg/store"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert a minimal reference dataset: one voice, DJ, format clock, and program",
	Long: `seed inserts the smallest self-consistent set of configuration
rows a fresh station needs before the Scheduler can materialize its first
segment: a Voice, a DJ, a 60-minute FormatClock, a Program tying them
together, and a BroadcastSchedule entry airing it every day.`,
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

		if err := runSeed(ctx, pool); err != nil {
			return err
		}
		fmt.Println("seed data inserted")
		return nil
	},
}

func runSeed(ctx context.Context, pool *pgxpool.Pool) error {
	var voiceID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO voices (name) VALUES ('default-voice') RETURNING id
	`).Scan(&voiceID); err != nil {
		return fmt.Errorf("seed voice: %w", err)
	}

	var djID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO djs (name, voice_id, lang, personality, bio)
		VALUES ('Nova', $1, 'en', $2, 'The station''s late-night anchor.')
		RETURNING id
	`, voiceID, []string{"warm", "curious", "dry-humored"}).Scan(&djID); err != nil {
		return fmt.Errorf("seed dj: %w", err)
	}

	var clockID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO format_clocks (name) VALUES ('standard-hour') RETURNING id
	`).Scan(&clockID); err != nil {
		return fmt.Errorf("seed format clock: %w", err)
	}

	slots := []schema.FormatSlot{
		{OrderIndex: 0, SlotType: "news", DurationSec: 300, Required: true},
		{OrderIndex: 1, SlotType: "music", DurationSec: 2400, Required: true},
		{OrderIndex: 2, SlotType: "banter", DurationSec: 600, Required: false},
		{OrderIndex: 3, SlotType: "weather", DurationSec: 300, Required: true},
	}
	total := 0
	for _, s := range slots {
		total += s.DurationSec
	}
	if total != schema.FormatClockTotalSeconds {
		return fmt.Errorf("seed format clock slots sum to %d, want %d", total, schema.FormatClockTotalSeconds)
	}
	for _, s := range slots {
		if _, err := pool.Exec(ctx, `
			INSERT INTO format_slots (format_clock_id, order_index, slot_type, duration_sec, required)
			VALUES ($1, $2, $3, $4, $5)
		`, clockID, s.OrderIndex, s.SlotType, s.DurationSec, s.Required); err != nil {
			return fmt.Errorf("seed format slot %d: %w", s.OrderIndex, err)
		}
	}

	var programID string
	if err := pool.QueryRow(ctx, `
		INSERT INTO programs (name, genre, format_clock_id, dj_ids, description)
		VALUES ('The Nova Hour', 'talk', $1, $2, 'A nightly mix of news, music, and banter.')
		RETURNING id
	`, clockID, []string{djID}).Scan(&programID); err != nil {
		return fmt.Errorf("seed program: %w", err)
	}

	if _, err := pool.Exec(ctx, `
		INSERT INTO broadcast_schedule (program_id, day_of_week, start_time, end_time, priority)
		VALUES ($1, NULL, '20:00', '21:00', 5)
	`, programID); err != nil {
		return fmt.Errorf("seed broadcast schedule: %w", err)
	}

	return nil
}

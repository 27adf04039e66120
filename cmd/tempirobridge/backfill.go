package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/tempirobridge/internal/elpris"
	"github.com/jgoulah/tempirobridge/internal/syncer"
	"github.com/jgoulah/tempirobridge/internal/tempiro"
)

var (
	backfillDays       int
	backfillChunkDays  int
	backfillPricesOnly bool
	backfillEnergyOnly bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Fetch historical readings and spot prices",
	Long: `Populates the database with historical data. Energy readings are fetched in
chunks to avoid timeouts against the slow vendor API; run this once, then rely
on the hourly sync for updates.`,
	RunE: runBackfill,
}

func init() {
	backfillCmd.Flags().IntVar(&backfillDays, "days", 0, "number of days to backfill (default from config, 90)")
	backfillCmd.Flags().IntVar(&backfillChunkDays, "chunk-days", 7, "days per energy API request")
	backfillCmd.Flags().BoolVar(&backfillPricesOnly, "prices-only", false, "only fetch spot prices")
	backfillCmd.Flags().BoolVar(&backfillEnergyOnly, "energy-only", false, "only fetch energy data")
	rootCmd.AddCommand(backfillCmd)
}

func runBackfill(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Backfill started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	days := backfillDays
	if days <= 0 {
		days = cfg.GetDaysToFetch()
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	vendor := tempiro.New(cfg.Tempiro.BaseURL, cfg.Tempiro.Username, cfg.Tempiro.Password)
	sy := syncer.New(db, vendor, elpris.New(""), cfg.GetPriceArea())

	fmt.Printf("Backfilling %d days (%d-day chunks); the vendor API is slow, this may take a while...\n",
		days, backfillChunkDays)

	result, err := sy.Backfill(cmd.Context(), syncer.BackfillOptions{
		Days:       days,
		ChunkDays:  backfillChunkDays,
		PricesOnly: backfillPricesOnly,
		EnergyOnly: backfillEnergyOnly,
	})
	if err != nil {
		return err
	}

	for _, failure := range result.Failures {
		fmt.Printf("⚠ %s\n", failure)
	}
	fmt.Printf("✓ Backfill complete: %d readings, %d prices\n", result.ReadingsSaved, result.PricesSaved)
	return nil
}

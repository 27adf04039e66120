package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/tempirobridge/internal/elpris"
	"github.com/jgoulah/tempirobridge/internal/syncer"
	"github.com/jgoulah/tempirobridge/internal/tempiro"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync recent readings and spot prices once",
	Long: `Fetches the last two days of energy readings for every device plus spot
prices from two days ago through tomorrow, and stores them in the local database.
Re-running for the same window is harmless; duplicates are upserted in place.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Sync started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	vendor := tempiro.New(cfg.Tempiro.BaseURL, cfg.Tempiro.Username, cfg.Tempiro.Password)
	sy := syncer.New(db, vendor, elpris.New(""), cfg.GetPriceArea())

	result, err := sy.Sync(cmd.Context())
	if err != nil {
		return err
	}

	for _, failure := range result.Failures {
		fmt.Printf("⚠ %s\n", failure)
	}
	fmt.Printf("✓ Saved %d readings and %d prices\n", result.ReadingsSaved, result.PricesSaved)
	return nil
}

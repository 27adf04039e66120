package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database statistics",
	Long:  `Displays record counts, date ranges, and per-device activity for the last 24 hours.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	stats, err := db.Stats()
	if err != nil {
		return fmt.Errorf("reading stats: %w", err)
	}

	fmt.Println("Energy Readings:")
	fmt.Printf("  Total records: %s\n", humanize.Comma(int64(stats.EnergyReadings.Count)))
	fmt.Printf("  Devices: %d\n", stats.EnergyReadings.Devices)
	if stats.EnergyReadings.Count > 0 {
		fmt.Printf("  Date range: %s to %s\n", stats.EnergyReadings.Oldest, stats.EnergyReadings.Newest)
	}

	fmt.Println("\nSpot Prices:")
	fmt.Printf("  Total records: %s\n", humanize.Comma(int64(stats.SpotPrices.Count)))
	if stats.SpotPrices.Count > 0 {
		fmt.Printf("  Date range: %s to %s\n", stats.SpotPrices.Oldest, stats.SpotPrices.Newest)
	}

	active, err := db.ActiveHours24h("", time.Now())
	if err != nil {
		return fmt.Errorf("reading active hours: %w", err)
	}
	if len(active) > 0 {
		fmt.Println("\nActive Hours (last 24h):")
		for _, a := range active {
			fmt.Printf("  %s: %dh, %.3f kWh\n", a.DeviceName, a.ActiveHours, a.EnergyKWh)
		}
	}

	return nil
}

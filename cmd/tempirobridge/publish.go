package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jgoulah/tempirobridge/internal/aggregate"
	"github.com/jgoulah/tempirobridge/internal/publisher"
)

var publishDays int

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish daily summaries to Home Assistant",
	Long: `Computes daily energy and cost summaries from the stored readings and prices
and publishes them to Home Assistant via MQTT and/or its HTTP API.`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().IntVar(&publishDays, "days", 7, "How many days back to publish")
	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, args []string) error {
	fmt.Printf("=== Publish started at %s ===\n", time.Now().Format("2006-01-02 15:04:05 MST"))

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pub, err := publisher.New(cfg.MQTT, cfg.HA)
	if err != nil {
		return fmt.Errorf("creating publisher: %w", err)
	}
	defer pub.Close()

	if !pub.Enabled() {
		return fmt.Errorf("neither MQTT nor Home Assistant publishing is enabled in config")
	}

	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	now := time.Now()
	from := now.AddDate(0, 0, -publishDays)

	readings, err := db.GetReadings("", from, now)
	if err != nil {
		return fmt.Errorf("loading readings: %w", err)
	}
	prices, err := db.GetPrices(cfg.GetPriceArea(), from, now)
	if err != nil {
		return fmt.Errorf("loading prices: %w", err)
	}

	summaries := aggregate.Daily(readings, prices)
	if len(summaries) == 0 {
		fmt.Println("No data to publish")
		return nil
	}

	published := 0
	for i, summary := range summaries {
		fmt.Printf("[%d/%d] Publishing %s %s (%.2f kWh, %.2f kr)... ",
			i+1, len(summaries), summary.Date, summary.DeviceName, summary.EnergyKWh, summary.CostSEK)
		if err := pub.PublishDaily(summary); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			continue
		}
		fmt.Println("✓")
		published++
	}

	fmt.Printf("\nSuccessfully published %d/%d summaries\n", published, len(summaries))
	return nil
}

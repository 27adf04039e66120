package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/jgoulah/tempirobridge/pkg/models"
)

// BackfillOptions controls a historical fetch
type BackfillOptions struct {
	Days       int  // how far back to go
	ChunkDays  int  // days per energy API request; smaller is slower but more reliable
	PricesOnly bool
	EnergyOnly bool
}

// Backfill fetches historical readings and prices in chunks. The vendor API is
// slow, so requests are spaced out and a failed chunk skips ahead instead of
// aborting the whole run.
func (s *Syncer) Backfill(ctx context.Context, opts BackfillOptions) (*Result, error) {
	if !s.runMu.TryLock() {
		return nil, ErrSyncRunning
	}
	defer s.runMu.Unlock()

	if opts.Days <= 0 {
		opts.Days = 90
	}
	if opts.ChunkDays <= 0 {
		opts.ChunkDays = 7
	}

	result := &Result{}
	log := s.log.WithField("backfill_days", opts.Days)

	if !opts.EnergyOnly {
		if err := s.backfillPrices(ctx, opts.Days, result); err != nil {
			return result, err
		}
	}
	if !opts.PricesOnly {
		if err := s.backfillEnergy(ctx, opts.Days, opts.ChunkDays, result); err != nil {
			return result, err
		}
	}

	log.WithField("readings", result.ReadingsSaved).WithField("prices", result.PricesSaved).Info("backfill done")
	return result, nil
}

func (s *Syncer) backfillPrices(ctx context.Context, days int, result *Result) error {
	start := s.now().AddDate(0, 0, -days)

	for date := start; !date.After(s.now()); date = date.AddDate(0, 0, 1) {
		prices, err := s.prices.PricesForDate(ctx, date, s.area)
		if err != nil {
			result.Failures = append(result.Failures, fmt.Sprintf("prices %s: %v", date.Format("2006-01-02"), err))
			continue
		}

		n, err := s.db.InsertPrices(prices)
		if err != nil {
			return fmt.Errorf("storing prices: %w", err)
		}
		result.PricesSaved += n

		if err := sleep(ctx, s.priceDelay); err != nil {
			return err
		}
	}

	return s.db.UpdateSyncStatus("spot_prices", "", start.Format(models.TimeLayout))
}

func (s *Syncer) backfillEnergy(ctx context.Context, days, chunkDays int, result *Result) error {
	devices, err := s.readings.Devices(ctx)
	if err != nil {
		return fmt.Errorf("listing devices: %w", err)
	}

	end := s.now()
	start := end.AddDate(0, 0, -days)

	for _, device := range devices {
		log := s.log.WithField("device", device.Name)

		// Chunks walk whole days, 00:00:00 through 23:59:59, so consecutive
		// requests tile the range without gaps.
		for chunkStart := startOfDay(start); chunkStart.Before(end); chunkStart = chunkStart.AddDate(0, 0, chunkDays+1) {
			chunkEnd := endOfDay(chunkStart.AddDate(0, 0, chunkDays))
			if chunkEnd.After(end) {
				chunkEnd = end
			}

			readings, err := s.readings.Values(ctx, device.ID, chunkStart, chunkEnd, intervalMinutes)
			if err != nil {
				log.WithError(err).Warn("chunk fetch failed, skipping")
				result.Failures = append(result.Failures,
					fmt.Sprintf("device %s %s: %v", device.ID, chunkStart.Format("2006-01-02"), err))
				continue
			}

			readings = dropAccumulatedHead(readings)
			for i := range readings {
				readings[i].DeviceName = device.Name
			}

			n, err := s.db.InsertReadings(readings)
			if err != nil {
				return fmt.Errorf("storing readings for %s: %w", device.ID, err)
			}
			result.ReadingsSaved += n

			// Be nice to the slow vendor API
			if err := sleep(ctx, s.energyDelay); err != nil {
				return err
			}
		}

		if err := s.db.UpdateSyncStatus("energy", device.ID, start.Format(models.TimeLayout)); err != nil {
			return err
		}
	}

	return nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jgoulah/tempirobridge/internal/database"
	"github.com/jgoulah/tempirobridge/pkg/models"
)

// ErrSyncRunning is returned when a sync is triggered while another is in flight
var ErrSyncRunning = errors.New("sync already running")

// Readings are fetched for the last two days each sync; the vendor backfills
// late samples within that window.
const energyWindow = 2 * 24 * time.Hour

const intervalMinutes = 15

// ReadingSource is the vendor breaker API surface the syncer needs
type ReadingSource interface {
	Devices(ctx context.Context) ([]models.Device, error)
	Values(ctx context.Context, deviceID string, from, to time.Time, intervalMinutes int) ([]models.Reading, error)
}

// PriceSource fetches hourly spot prices for one date
type PriceSource interface {
	PricesForDate(ctx context.Context, date time.Time, area string) ([]models.SpotPrice, error)
}

// storeFailure marks a local database write error. Upstream fetch errors are
// logged and retried on the next tick, but a write failure always fails the
// whole sync call.
type storeFailure struct {
	err error
}

func (e *storeFailure) Error() string { return e.err.Error() }
func (e *storeFailure) Unwrap() error { return e.err }

// Result reports what one sync run accomplished
type Result struct {
	RunID         string   `json:"run_id"`
	ReadingsSaved int      `json:"readings_saved"`
	PricesSaved   int      `json:"prices_saved"`
	Failures      []string `json:"failures,omitempty"`
}

// Status is a snapshot of the last sync outcomes
type Status struct {
	Energy        *time.Time `json:"energy"`
	Prices        *time.Time `json:"prices"`
	EnergySuccess bool       `json:"energy_success"`
	PricesSuccess bool       `json:"prices_success"`
	Running       bool       `json:"running"`
}

// Syncer drives the fetch-and-store pipeline on a timer and on demand
type Syncer struct {
	db       *database.DB
	readings ReadingSource
	prices   PriceSource
	area     string
	log      *logrus.Entry

	// runMu gives at-most-one sync in flight; a concurrent trigger gets
	// ErrSyncRunning instead of queueing behind the running one.
	runMu sync.Mutex

	statusMu sync.Mutex
	status   Status

	// now and the backfill pacing delays are swapped out in tests
	now         func() time.Time
	priceDelay  time.Duration
	energyDelay time.Duration
}

// New creates a Syncer writing to db for the given price area
func New(db *database.DB, readings ReadingSource, prices PriceSource, area string) *Syncer {
	return &Syncer{
		db:          db,
		readings:    readings,
		prices:      prices,
		area:        area,
		log:         logrus.WithField("component", "syncer"),
		now:         time.Now,
		priceDelay:  200 * time.Millisecond,
		energyDelay: 2 * time.Second,
	}
}

// Status returns the last sync outcomes
func (s *Syncer) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

func (s *Syncer) setRunning(running bool) {
	s.statusMu.Lock()
	s.status.Running = running
	s.statusMu.Unlock()
}

func (s *Syncer) recordEnergy(ok bool) {
	now := s.now()
	s.statusMu.Lock()
	s.status.EnergySuccess = ok
	if ok {
		s.status.Energy = &now
	}
	s.statusMu.Unlock()
}

func (s *Syncer) recordPrices(ok bool) {
	now := s.now()
	s.statusMu.Lock()
	s.status.PricesSuccess = ok
	if ok {
		s.status.Prices = &now
	}
	s.statusMu.Unlock()
}

// Sync fetches recent readings and prices and upserts them into the store.
// Partial failures end up in Result.Failures; the error is non-nil only when
// nothing could be synced at all or the store rejected a write.
func (s *Syncer) Sync(ctx context.Context) (*Result, error) {
	if !s.runMu.TryLock() {
		return nil, ErrSyncRunning
	}
	defer s.runMu.Unlock()

	s.setRunning(true)
	defer s.setRunning(false)

	result := &Result{RunID: uuid.NewString()}
	log := s.log.WithField("run_id", result.RunID)

	energyErr := s.syncEnergy(ctx, result, log)
	priceErr := s.syncPrices(ctx, result, log)

	var store *storeFailure
	if errors.As(energyErr, &store) {
		return result, energyErr
	}
	if errors.As(priceErr, &store) {
		return result, priceErr
	}
	if energyErr != nil && priceErr != nil {
		return result, fmt.Errorf("sync failed: %w", errors.Join(energyErr, priceErr))
	}
	return result, nil
}

// syncEnergy pulls the last two days of samples for every device
func (s *Syncer) syncEnergy(ctx context.Context, result *Result, log *logrus.Entry) error {
	devices, err := s.readings.Devices(ctx)
	if err != nil {
		log.WithError(err).Warn("listing devices failed")
		result.Failures = append(result.Failures, fmt.Sprintf("devices: %v", err))
		s.recordEnergy(false)
		return fmt.Errorf("listing devices: %w", err)
	}

	now := s.now()
	from := now.Add(-energyWindow)
	// Window starts at local midnight like the vendor's own dashboard queries
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())

	saved := 0
	failed := 0
	for _, device := range devices {
		readings, err := s.readings.Values(ctx, device.ID, from, now, intervalMinutes)
		if err != nil {
			log.WithError(err).WithField("device", device.Name).Warn("fetching values failed")
			result.Failures = append(result.Failures, fmt.Sprintf("device %s: %v", device.ID, err))
			failed++
			continue
		}

		readings = dropAccumulatedHead(readings)
		for i := range readings {
			readings[i].DeviceName = device.Name
		}

		n, err := s.db.InsertReadings(readings)
		if err != nil {
			s.recordEnergy(false)
			result.Failures = append(result.Failures, fmt.Sprintf("store readings %s: %v", device.ID, err))
			return &storeFailure{fmt.Errorf("storing readings for %s: %w", device.ID, err)}
		}
		saved += n
	}

	result.ReadingsSaved = saved
	if failed == len(devices) && len(devices) > 0 {
		s.recordEnergy(false)
		return fmt.Errorf("all %d devices failed", failed)
	}

	if err := s.db.UpdateSyncStatus("energy", "", from.Format(models.TimeLayout)); err != nil {
		result.Failures = append(result.Failures, fmt.Sprintf("store sync status: %v", err))
		return &storeFailure{fmt.Errorf("recording energy sync status: %w", err)}
	}
	s.recordEnergy(true)
	log.WithField("readings", saved).Info("energy sync done")
	return nil
}

// syncPrices pulls spot prices for two days ago through tomorrow. Missing
// dates (prices not published yet) are skipped quietly.
func (s *Syncer) syncPrices(ctx context.Context, result *Result, log *logrus.Entry) error {
	saved := 0
	for offset := -2; offset <= 1; offset++ {
		date := s.now().AddDate(0, 0, offset)
		prices, err := s.prices.PricesForDate(ctx, date, s.area)
		if err != nil {
			log.WithError(err).WithField("date", date.Format("2006-01-02")).Warn("fetching prices failed")
			result.Failures = append(result.Failures, fmt.Sprintf("prices %s: %v", date.Format("2006-01-02"), err))
			continue
		}
		if len(prices) == 0 {
			continue
		}

		n, err := s.db.InsertPrices(prices)
		if err != nil {
			s.recordPrices(false)
			result.Failures = append(result.Failures, fmt.Sprintf("store prices: %v", err))
			return &storeFailure{fmt.Errorf("storing prices: %w", err)}
		}
		saved += n
	}

	result.PricesSaved = saved
	if saved == 0 {
		s.recordPrices(false)
		return errors.New("no prices fetched")
	}

	if err := s.db.UpdateSyncStatus("spot_prices", "", ""); err != nil {
		result.Failures = append(result.Failures, fmt.Sprintf("store sync status: %v", err))
		return &storeFailure{fmt.Errorf("recording price sync status: %w", err)}
	}
	s.recordPrices(true)
	log.WithField("prices", saved).Info("price sync done")
	return nil
}

// Run performs an initial sync and then re-syncs on every tick until the
// context is cancelled. Failures are logged and retried on the next tick.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.Sync(ctx); err != nil {
		s.log.WithError(err).Warn("initial sync failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil && !errors.Is(err, ErrSyncRunning) {
				s.log.WithError(err).Warn("scheduled sync failed")
			}
		case <-ctx.Done():
			return
		}
	}
}

// dropAccumulatedHead drops the first sample of a fetched chunk. The vendor
// reports the running accumulated total there instead of an interval delta.
func dropAccumulatedHead(readings []models.Reading) []models.Reading {
	if len(readings) > 1 {
		return readings[1:]
	}
	return readings
}

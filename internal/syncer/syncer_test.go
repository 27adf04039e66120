package syncer

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/tempirobridge/internal/database"
	"github.com/jgoulah/tempirobridge/internal/tempiro"
	"github.com/jgoulah/tempirobridge/pkg/models"
)

type fakeVendor struct {
	devices    []models.Device
	values     map[string][]models.Reading
	devicesErr error
	valuesErr  error
}

func (f *fakeVendor) Devices(ctx context.Context) ([]models.Device, error) {
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	return f.devices, nil
}

func (f *fakeVendor) Values(ctx context.Context, deviceID string, from, to time.Time, intervalMinutes int) ([]models.Reading, error) {
	if f.valuesErr != nil {
		return nil, f.valuesErr
	}
	return f.values[deviceID], nil
}

type fakePrices struct {
	byDate    map[string][]models.SpotPrice
	requested []string
	err       error
}

func (f *fakePrices) PricesForDate(ctx context.Context, date time.Time, area string) ([]models.SpotPrice, error) {
	f.requested = append(f.requested, date.Format("2006-01-02"))
	if f.err != nil {
		return nil, f.err
	}
	return f.byDate[date.Format("2006-01-02")], nil
}

var testNow = time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local)

// vendor returns a chunk whose first sample carries the accumulated total and
// must be dropped, plus two real samples
func testVendor() *fakeVendor {
	base := testNow.Add(-3 * time.Hour)
	return &fakeVendor{
		devices: []models.Device{{ID: "d1", Name: "Heater"}},
		values: map[string][]models.Reading{
			"d1": {
				{DeviceID: "d1", Timestamp: base, CurrentValue: 99999},
				{DeviceID: "d1", Timestamp: base.Add(15 * time.Minute), CurrentValue: 1000},
				{DeviceID: "d1", Timestamp: base.Add(30 * time.Minute), CurrentValue: 1100},
			},
		},
	}
}

func testPrices() *fakePrices {
	prices := func(date time.Time) []models.SpotPrice {
		var out []models.SpotPrice
		for h := 0; h < 24; h++ {
			out = append(out, models.SpotPrice{
				Timestamp: date.Add(time.Duration(h) * time.Hour),
				PriceArea: "SE3",
				PriceOre:  100,
			})
		}
		return out
	}
	today := time.Date(2026, 8, 27, 0, 0, 0, 0, time.Local)
	return &fakePrices{byDate: map[string][]models.SpotPrice{
		"2026-08-26": prices(today.AddDate(0, 0, -1)),
		"2026-08-27": prices(today),
		// tomorrow's prices are not published yet and the day before
		// yesterday has rolled out of the fake's history
	}}
}

func newTestSyncer(t *testing.T, vendor *fakeVendor, prices *fakePrices) (*Syncer, *database.DB) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := New(db, vendor, prices, "SE3")
	s.now = func() time.Time { return testNow }
	s.priceDelay = 0
	s.energyDelay = 0
	return s, db
}

func TestSyncStoresReadingsAndPrices(t *testing.T) {
	s, db := newTestSyncer(t, testVendor(), testPrices())

	result, err := s.Sync(context.Background())
	require.NoError(t, err)

	// First sample of the chunk is the accumulated-total artifact
	assert.Equal(t, 2, result.ReadingsSaved)
	assert.Equal(t, 48, result.PricesSaved)
	assert.Empty(t, result.Failures)
	assert.NotEmpty(t, result.RunID)

	count, err := db.CountReadings()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	status := s.Status()
	assert.True(t, status.EnergySuccess)
	assert.True(t, status.PricesSuccess)
	assert.False(t, status.Running)

	energyStatus, err := db.GetSyncStatus("energy", "")
	require.NoError(t, err)
	require.NotNil(t, energyStatus)
}

func TestSyncIsIdempotent(t *testing.T) {
	s, db := newTestSyncer(t, testVendor(), testPrices())

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	_, err = s.Sync(context.Background())
	require.NoError(t, err)

	readings, err := db.CountReadings()
	require.NoError(t, err)
	assert.Equal(t, 2, readings)

	prices, err := db.CountPrices()
	require.NoError(t, err)
	assert.Equal(t, 48, prices)
}

func TestUnreachableVendorLeavesStoreUnchanged(t *testing.T) {
	vendor := testVendor()
	prices := testPrices()
	s, db := newTestSyncer(t, vendor, prices)

	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	before, err := db.CountReadings()
	require.NoError(t, err)

	vendor.devicesErr = errors.New("connection refused")
	prices.err = errors.New("connection refused")

	result, err := s.Sync(context.Background())
	require.Error(t, err)
	assert.NotEmpty(t, result.Failures)

	after, err := db.CountReadings()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	status := s.Status()
	assert.False(t, status.EnergySuccess)
	assert.False(t, status.PricesSuccess)
}

func TestPartialDeviceFailureIsReported(t *testing.T) {
	vendor := testVendor()
	vendor.valuesErr = errors.New("timeout")
	s, _ := newTestSyncer(t, vendor, testPrices())

	result, err := s.Sync(context.Background())
	// Prices still synced, so the run is not a total failure
	require.NoError(t, err)
	assert.Zero(t, result.ReadingsSaved)
	assert.NotEmpty(t, result.Failures)
	assert.False(t, s.Status().EnergySuccess)
	assert.True(t, s.Status().PricesSuccess)
}

func TestNoPricesPublishedYet(t *testing.T) {
	s, _ := newTestSyncer(t, testVendor(), &fakePrices{byDate: map[string][]models.SpotPrice{}})

	result, err := s.Sync(context.Background())
	require.NoError(t, err) // energy part succeeded
	assert.Zero(t, result.PricesSaved)
	assert.False(t, s.Status().PricesSuccess)
}

func TestConcurrentSyncRejected(t *testing.T) {
	s, _ := newTestSyncer(t, testVendor(), testPrices())

	s.runMu.Lock()
	defer s.runMu.Unlock()

	_, err := s.Sync(context.Background())
	assert.ErrorIs(t, err, ErrSyncRunning)
}

// brokenStorePrices closes the database underneath the syncer right before
// handing back prices, so the fetch succeeds but the insert cannot.
type brokenStorePrices struct {
	inner *fakePrices
	db    *database.DB
}

func (p *brokenStorePrices) PricesForDate(ctx context.Context, date time.Time, area string) ([]models.SpotPrice, error) {
	p.db.Close()
	return p.inner.PricesForDate(ctx, date, area)
}

func TestStoreWriteFailureFailsSync(t *testing.T) {
	vendor := testVendor()
	prices := testPrices()
	s, db := newTestSyncer(t, vendor, prices)
	s.prices = &brokenStorePrices{inner: prices, db: db}

	result, err := s.Sync(context.Background())
	require.Error(t, err)

	var store *storeFailure
	assert.True(t, errors.As(err, &store))
	assert.NotEmpty(t, result.Failures)
	// The energy half ran first and got through before the store broke
	assert.Equal(t, 2, result.ReadingsSaved)
	assert.False(t, s.Status().PricesSuccess)
}

func TestSyncRequestsPricesForTwoDaysAgoThroughTomorrow(t *testing.T) {
	prices := testPrices()
	s, _ := newTestSyncer(t, testVendor(), prices)

	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"2026-08-25", "2026-08-26", "2026-08-27", "2026-08-28"}, prices.requested)
}

func TestAuthErrorSurfacedWhenEverythingFails(t *testing.T) {
	vendor := testVendor()
	vendor.devicesErr = &tempiro.AuthError{StatusCode: 401, Message: "invalid credentials"}
	prices := testPrices()
	prices.err = errors.New("connection refused")
	s, _ := newTestSyncer(t, vendor, prices)

	_, err := s.Sync(context.Background())
	require.Error(t, err)

	// The caller decides whether to re-login, so the typed auth error must
	// survive the wrapping even when the price half failed too
	var authErr *tempiro.AuthError
	assert.True(t, errors.As(err, &authErr))
}

func TestBackfill(t *testing.T) {
	s, db := newTestSyncer(t, testVendor(), testPrices())

	result, err := s.Backfill(context.Background(), BackfillOptions{Days: 2, ChunkDays: 7})
	require.NoError(t, err)

	assert.Equal(t, 2, result.ReadingsSaved)
	assert.Equal(t, 48, result.PricesSaved)

	status, err := db.GetSyncStatus("energy", "d1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.NotEmpty(t, status.OldestData)
}

// windowRecordingVendor remembers every window it was asked for
type windowRecordingVendor struct {
	fakeVendor
	windows [][2]time.Time
}

func (v *windowRecordingVendor) Values(ctx context.Context, deviceID string, from, to time.Time, intervalMinutes int) ([]models.Reading, error) {
	v.windows = append(v.windows, [2]time.Time{from, to})
	return v.fakeVendor.Values(ctx, deviceID, from, to, intervalMinutes)
}

func TestBackfillChunksCoverWholeRange(t *testing.T) {
	vendor := &windowRecordingVendor{fakeVendor: *testVendor()}
	s, _ := newTestSyncer(t, &vendor.fakeVendor, testPrices())
	s.readings = vendor

	_, err := s.Backfill(context.Background(), BackfillOptions{Days: 16, ChunkDays: 7, EnergyOnly: true})
	require.NoError(t, err)

	require.NotEmpty(t, vendor.windows)

	start := testNow.AddDate(0, 0, -16)
	first := vendor.windows[0]
	assert.False(t, first[0].After(start), "first chunk starts at %s, after the requested start %s", first[0], start)

	// Every chunk must pick up the day after the previous one ended
	for i := 1; i < len(vendor.windows); i++ {
		prevEnd := vendor.windows[i-1][1]
		curStart := vendor.windows[i][0]
		gap := curStart.Sub(prevEnd)
		assert.LessOrEqual(t, gap, time.Second, "gap between chunk %d and %d: %s to %s", i-1, i, prevEnd, curStart)
	}

	last := vendor.windows[len(vendor.windows)-1]
	assert.Equal(t, testNow, last[1])
}

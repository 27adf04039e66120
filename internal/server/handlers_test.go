package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgoulah/tempirobridge/internal/database"
	"github.com/jgoulah/tempirobridge/internal/syncer"
	"github.com/jgoulah/tempirobridge/pkg/models"
)

type fakeVendor struct {
	devices  []models.Device
	err      error
	switched map[string]int
}

func (f *fakeVendor) Devices(ctx context.Context) ([]models.Device, error) {
	return f.devices, f.err
}

func (f *fakeVendor) Values(ctx context.Context, deviceID string, from, to time.Time, intervalMinutes int) ([]models.Reading, error) {
	return nil, f.err
}

func (f *fakeVendor) Switch(ctx context.Context, deviceID string, value int) error {
	if f.err != nil {
		return f.err
	}
	if f.switched == nil {
		f.switched = map[string]int{}
	}
	f.switched[deviceID] = value
	return nil
}

type fakePrices struct {
	prices []models.SpotPrice
	err    error
}

func (f *fakePrices) PricesForDate(ctx context.Context, date time.Time, area string) ([]models.SpotPrice, error) {
	return f.prices, f.err
}

func newTestHandlers(t *testing.T, vendor *fakeVendor, prices *fakePrices) (*Handlers, *database.DB) {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	sy := syncer.New(db, vendor, prices, "SE3")
	return NewHandlers(db, sy, vendor, prices, "SE3"), db
}

// seed stores one day of readings and prices: hour 9 at 1.2 kWh / 150 öre,
// hour 10 at 0.8 kWh / 200 öre (yesterday, so default windows include it)
func seed(t *testing.T, db *database.DB) time.Time {
	t.Helper()
	day := time.Now().AddDate(0, 0, -1)
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.Local)

	var readings []models.Reading
	for _, hw := range []struct {
		hour  int
		watts float64
	}{{9, 1200}, {10, 800}} {
		for minute := 0; minute < 60; minute += 15 {
			readings = append(readings, models.Reading{
				DeviceID:     "d1",
				DeviceName:   "Heater",
				Timestamp:    day.Add(time.Duration(hw.hour)*time.Hour + time.Duration(minute)*time.Minute),
				CurrentValue: hw.watts,
			})
		}
	}
	_, err := db.InsertReadings(readings)
	require.NoError(t, err)

	_, err = db.InsertPrices([]models.SpotPrice{
		{Timestamp: day.Add(9 * time.Hour), PriceArea: "SE3", PriceOre: 150},
		{Timestamp: day.Add(10 * time.Hour), PriceArea: "SE3", PriceOre: 200},
	})
	require.NoError(t, err)
	return day
}

func TestDailySummaryEndpoint(t *testing.T) {
	h, db := newTestHandlers(t, &fakeVendor{}, &fakePrices{})
	day := seed(t, db)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/analytics/daily?days=3", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []models.DailySummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&summaries))
	require.Len(t, summaries, 1)

	assert.Equal(t, day.Format("2006-01-02"), summaries[0].Date)
	assert.InDelta(t, 2.0, summaries[0].EnergyKWh, 1e-9)
	assert.InDelta(t, 3.4, summaries[0].CostSEK, 1e-9)
}

func TestDailyRejectsBadDaysParam(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeVendor{}, &fakePrices{})

	for _, days := range []string{"abc", "0", "-3"} {
		rec := httptest.NewRecorder()
		h.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/analytics/daily?days="+days, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "days=%s", days)
	}
}

func TestHourlyEndpoint(t *testing.T) {
	h, db := newTestHandlers(t, &fakeVendor{}, &fakePrices{})
	seed(t, db)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/analytics/hourly", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats []models.HourlyStat
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	require.Len(t, stats, 2)
	assert.InDelta(t, 1.2, stats[0].EnergyKWh, 1e-9)
	assert.InDelta(t, 150.0, stats[0].SpotPriceOre, 1e-9)
}

func TestDevicesProxiesVendorErrors(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeVendor{err: errors.New("connection refused")}, &fakePrices{})

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/devices", nil))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSwitchValidation(t *testing.T) {
	vendor := &fakeVendor{}
	h, _ := newTestHandlers(t, vendor, &fakePrices{})
	router := h.Router()

	put := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("PUT", "/api/devices/d1/switch", strings.NewReader(body))
		req.Header.Set("X-Ingress-Path", "/hassio/ingress/abc")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusBadRequest, put(``).Code)
	assert.Equal(t, http.StatusBadRequest, put(`{}`).Code)
	assert.Equal(t, http.StatusBadRequest, put(`{"value": 2}`).Code)

	assert.Equal(t, http.StatusOK, put(`{"value": 1}`).Code)
	assert.Equal(t, 1, vendor.switched["d1"])
	assert.Equal(t, http.StatusOK, put(`{"value": 0}`).Code)
	assert.Equal(t, 0, vendor.switched["d1"])
}

func TestMutatingRoutesBlockCrossOrigin(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeVendor{}, &fakePrices{})
	router := h.Router()

	// Foreign origin, no ingress header
	req := httptest.NewRequest("POST", "/api/sync", nil)
	req.Header.Set("Referer", "https://evil.example/")
	req.RemoteAddr = "203.0.113.5:4711"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Refererless loopback is allowed
	req = httptest.NewRequest("POST", "/api/sync", nil)
	req.RemoteAddr = "127.0.0.1:4711"
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestManualSyncAndStatus(t *testing.T) {
	vendor := &fakeVendor{devices: []models.Device{}}
	prices := &fakePrices{prices: []models.SpotPrice{
		{Timestamp: time.Now().Truncate(time.Hour), PriceArea: "SE3", PriceOre: 100},
	}}
	h, _ := newTestHandlers(t, vendor, prices)
	router := h.Router()

	req := httptest.NewRequest("POST", "/api/sync", nil)
	req.Header.Set("X-Ingress-Path", "/hassio/ingress/abc")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/sync/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status struct {
		LastSync syncer.Status `json:"last_sync"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.LastSync.PricesSuccess)
	assert.False(t, status.LastSync.Running)
}

func TestAnalyticsStatus(t *testing.T) {
	h, db := newTestHandlers(t, &fakeVendor{}, &fakePrices{})
	seed(t, db)

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/api/analytics/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 8, stats.EnergyReadings.Count)
	assert.Equal(t, 2, stats.SpotPrices.Count)
}

func TestDashboardPagesServed(t *testing.T) {
	h, _ := newTestHandlers(t, &fakeVendor{}, &fakePrices{})
	router := h.Router()

	for _, path := range []string{"/", "/analysis", "/ha"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html", path)
	}
}

package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jgoulah/tempirobridge/internal/aggregate"
	"github.com/jgoulah/tempirobridge/internal/database"
	"github.com/jgoulah/tempirobridge/internal/syncer"
	"github.com/jgoulah/tempirobridge/pkg/models"
)

//go:embed static
var staticFS embed.FS

// DeviceAPI is the live vendor API surface the dashboard proxies
type DeviceAPI interface {
	Devices(ctx context.Context) ([]models.Device, error)
	Values(ctx context.Context, deviceID string, from, to time.Time, intervalMinutes int) ([]models.Reading, error)
	Switch(ctx context.Context, deviceID string, value int) error
}

// PriceAPI fetches live spot prices for the /api/spot-prices route
type PriceAPI interface {
	PricesForDate(ctx context.Context, date time.Time, area string) ([]models.SpotPrice, error)
}

// Handlers holds the dependencies of all HTTP routes
type Handlers struct {
	db      *database.DB
	sync    *syncer.Syncer
	devices DeviceAPI
	prices  PriceAPI
	area    string
	log     *logrus.Entry
}

// NewHandlers wires routes to their dependencies
func NewHandlers(db *database.DB, sync *syncer.Syncer, devices DeviceAPI, prices PriceAPI, area string) *Handlers {
	return &Handlers{
		db:      db,
		sync:    sync,
		devices: devices,
		prices:  prices,
		area:    area,
		log:     logrus.WithField("component", "http"),
	}
}

// Router registers all endpoints
func (h *Handlers) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.page("static/index.html"))
	mux.HandleFunc("GET /analysis", h.page("static/analysis.html"))
	mux.HandleFunc("GET /ha", h.page("static/ha.html"))

	mux.HandleFunc("GET /api/devices", h.handleDevices)
	mux.HandleFunc("PUT /api/devices/{id}/switch", requireSameOrigin(h.handleSwitch))
	mux.HandleFunc("GET /api/devices/{id}/values", h.handleDeviceValues)
	mux.HandleFunc("GET /api/spot-prices", h.handleLivePrices)

	mux.HandleFunc("GET /api/analytics/status", h.handleAnalyticsStatus)
	mux.HandleFunc("GET /api/analytics/hourly", h.handleHourly)
	mux.HandleFunc("GET /api/analytics/daily", h.handleDaily)
	mux.HandleFunc("GET /api/analytics/prices", h.handlePriceHistory)
	mux.HandleFunc("GET /api/analytics/active-hours-24h", h.handleActiveHours)

	mux.HandleFunc("POST /api/sync", requireSameOrigin(h.handleSync))
	mux.HandleFunc("GET /api/sync/status", h.handleSyncStatus)

	return mux
}

func (h *Handlers) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := staticFS.ReadFile(name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "page not found")
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(data)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleDevices returns the live device list from the vendor API
func (h *Handlers) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.Devices(r.Context())
	if err != nil {
		h.log.WithError(err).Warn("device list failed")
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleSwitch turns a device on (1) or off (0)
func (h *Handlers) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value *int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid or missing JSON body")
		return
	}
	if body.Value == nil {
		writeError(w, http.StatusBadRequest, "Missing 'value' parameter")
		return
	}
	if *body.Value != 0 && *body.Value != 1 {
		writeError(w, http.StatusBadRequest, "Value must be 0 or 1")
		return
	}

	if err := h.devices.Switch(r.Context(), r.PathValue("id"), *body.Value); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleDeviceValues proxies interval samples for one device
func (h *Handlers) handleDeviceValues(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from, to, ok := parseWindow(w, r, startOfDay(now), endOfDay(now))
	if !ok {
		return
	}

	interval := 15
	if s := r.URL.Query().Get("interval"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "Invalid interval parameter")
			return
		}
		interval = n
	}

	values, err := h.devices.Values(r.Context(), r.PathValue("id"), from, to, interval)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, values)
}

// handleLivePrices returns today's spot prices straight from the price API
func (h *Handlers) handleLivePrices(w http.ResponseWriter, r *http.Request) {
	prices, err := h.prices.PricesForDate(r.Context(), time.Now(), h.area)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

// handleAnalyticsStatus returns database statistics
func (h *Handlers) handleAnalyticsStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.Stats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleHourly returns hourly energy and cost for a window (default last 7 days)
func (h *Handlers) handleHourly(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from, to, ok := parseWindow(w, r, startOfDay(now.AddDate(0, 0, -7)), endOfDay(now))
	if !ok {
		return
	}

	stats, err := h.hourlyStats(r.URL.Query().Get("device_id"), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDaily returns per-device daily summaries (default last 30 days)
func (h *Handlers) handleDaily(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := startOfDay(now.AddDate(0, 0, -30))
	to := endOfDay(now)

	if s := r.URL.Query().Get("days"); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil || days < 1 {
			writeError(w, http.StatusBadRequest, "Invalid 'days' parameter - must be a positive integer")
			return
		}
		from = startOfDay(now.AddDate(0, 0, -days))
	} else {
		var ok bool
		from, to, ok = parseWindow(w, r, from, to)
		if !ok {
			return
		}
	}

	deviceID := r.URL.Query().Get("device_id")
	readings, err := h.db.GetReadings(deviceID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	prices, err := h.db.GetPrices(h.area, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, aggregate.Daily(readings, prices))
}

// handlePriceHistory returns stored spot prices (default last 30 days)
func (h *Handlers) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from, to, ok := parseWindow(w, r, startOfDay(now.AddDate(0, 0, -30)), endOfDay(now))
	if !ok {
		return
	}

	prices, err := h.db.GetPrices(h.area, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

// handleActiveHours returns per-device activity over the last 24 hours
func (h *Handlers) handleActiveHours(w http.ResponseWriter, r *http.Request) {
	active, err := h.db.ActiveHours24h(r.URL.Query().Get("device_id"), time.Now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, active)
}

// handleSync triggers a manual sync
func (h *Handlers) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.sync.Sync(r.Context())
	if errors.Is(err, syncer.ErrSyncRunning) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"result":    result,
		"last_sync": h.sync.Status(),
	})
}

// handleSyncStatus reports the background sync state
func (h *Handlers) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"last_sync": h.sync.Status()})
}

func (h *Handlers) hourlyStats(deviceID string, from, to time.Time) ([]models.HourlyStat, error) {
	readings, err := h.db.GetReadings(deviceID, from, to)
	if err != nil {
		return nil, err
	}
	prices, err := h.db.GetPrices(h.area, from, to)
	if err != nil {
		return nil, err
	}
	return aggregate.Hourly(readings, prices), nil
}

// parseWindow reads optional from/to date params (2006-01-02); to is inclusive.
// On a malformed param it writes a 400 and returns ok=false.
func parseWindow(w http.ResponseWriter, r *http.Request, defFrom, defTo time.Time) (time.Time, time.Time, bool) {
	from, to := defFrom, defTo

	if s := r.URL.Query().Get("from"); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid 'from' date, expected YYYY-MM-DD")
			return from, to, false
		}
		from = d
	}
	if s := r.URL.Query().Get("to"); s != "" {
		d, err := time.ParseInLocation("2006-01-02", s, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid 'to' date, expected YYYY-MM-DD")
			return from, to, false
		}
		to = endOfDay(d)
	}

	return from, to, true
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, t.Location())
}

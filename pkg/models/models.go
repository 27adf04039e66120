package models

import "time"

// Timestamps are stored as local-time strings in this layout, matching what the
// Tempiro API returns for interval values.
const TimeLayout = "2006-01-02T15:04:05"

// Reading represents one 15-minute energy sample for a device.
type Reading struct {
	ID               int       `json:"id"`
	DeviceID         string    `json:"device_id"`
	DeviceName       string    `json:"device_name"`
	Timestamp        time.Time `json:"timestamp"`
	DeltaPower       float64   `json:"delta_power"`
	AccumulatedValue float64   `json:"accumulated_value"`
	CurrentValue     float64   `json:"current_value"` // instantaneous power in W
}

// EnergyKWh returns the energy for this 15-minute sample. The vendor's
// DeltaPower field is unreliable, so energy is derived from CurrentValue.
func (r Reading) EnergyKWh() float64 {
	return r.CurrentValue * 0.25 / 1000
}

// SpotPrice represents one hourly spot price for a price area.
type SpotPrice struct {
	ID        int       `json:"id"`
	Timestamp time.Time `json:"timestamp"` // start of the hour
	PriceArea string    `json:"price_area"`
	PriceOre  float64   `json:"price_ore"` // öre per kWh (SEK/kWh * 100)
	PriceEUR  float64   `json:"price_eur"`
}

// Device is the live state of a Tempiro breaker device.
type Device struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	DeviceID     string  `json:"deviceId"`
	Value        float64 `json:"value"`
	CurrentPower float64 `json:"currentPower"`
	BatteryOK    bool    `json:"batteryOK"`
	FuseVoltage  bool    `json:"fuseVoltageOK"`
	Offline      bool    `json:"offline"`
	LastUpdate   string  `json:"lastUpdate"`
	SpotArea     string  `json:"spotArea"`
	HoursActive  float64 `json:"hoursActive"`
}

// HourlyStat is one hour of usage joined with its spot price.
type HourlyStat struct {
	Hour         time.Time `json:"hour"`
	DeviceID     string    `json:"device_id"`
	DeviceName   string    `json:"device_name"`
	EnergyKWh    float64   `json:"energy_kwh"`
	ActiveRatio  float64   `json:"active_ratio"`
	SpotPriceOre float64   `json:"spot_price_ore"`
	PriceKnown   bool      `json:"price_known"`
	CostSEK      float64   `json:"cost_sek"`
}

// DailySummary is a derived per-device daily rollup. It is never stored; it is
// recomputed from readings and prices on demand.
type DailySummary struct {
	Date          string  `json:"date"` // 2006-01-02
	DeviceID      string  `json:"device_id"`
	DeviceName    string  `json:"device_name"`
	EnergyKWh     float64 `json:"energy_kwh"`
	CostSEK       float64 `json:"cost_sek"`
	HoursWithData int     `json:"hours_with_data"`
}

// SyncStatus tracks the last run of a sync type, optionally per device.
type SyncStatus struct {
	SyncType   string    `json:"sync_type"`
	DeviceID   string    `json:"device_id,omitempty"`
	LastSync   time.Time `json:"last_sync"`
	OldestData string    `json:"oldest_data,omitempty"`
}

// ActiveHours summarizes how many hours a device drew power in the last day.
type ActiveHours struct {
	DeviceID    string  `json:"device_id"`
	DeviceName  string  `json:"device_name"`
	ActiveHours int     `json:"active_hours"`
	EnergyKWh   float64 `json:"energy_kwh"`
}

// TableStats describes one table's contents for the status command and
// the analytics status endpoint.
type TableStats struct {
	Count   int    `json:"count"`
	Oldest  string `json:"oldest,omitempty"`
	Newest  string `json:"newest,omitempty"`
	Devices int    `json:"devices,omitempty"`
}

// Stats is the full database statistics snapshot.
type Stats struct {
	EnergyReadings TableStats `json:"energy_readings"`
	SpotPrices     TableStats `json:"spot_prices"`
}

package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jgoulah/tempirobridge/pkg/models"
	_ "modernc.org/sqlite"
)

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer; WAL keeps readers from blocking it
	conn.SetMaxOpenConns(1)
	if _, err := conn.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling WAL: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// initSchema creates the necessary tables
func (db *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS energy_readings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_id TEXT NOT NULL,
		device_name TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		delta_power REAL NOT NULL,
		accumulated_value REAL NOT NULL,
		current_value REAL,
		UNIQUE(device_id, timestamp)
	);
	CREATE TABLE IF NOT EXISTS spot_prices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		price_area TEXT NOT NULL,
		price_ore REAL NOT NULL,
		price_eur REAL,
		UNIQUE(timestamp, price_area)
	);
	CREATE TABLE IF NOT EXISTS sync_status (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sync_type TEXT NOT NULL,
		device_id TEXT NOT NULL DEFAULT '',
		last_sync TEXT NOT NULL,
		oldest_data TEXT,
		UNIQUE(sync_type, device_id)
	);
	CREATE INDEX IF NOT EXISTS idx_energy_device_time ON energy_readings(device_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_energy_time ON energy_readings(timestamp);
	CREATE INDEX IF NOT EXISTS idx_spot_time ON spot_prices(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// InsertReadings upserts a batch of energy readings in a single transaction.
// Readings are keyed by (device_id, timestamp) so re-syncing the same window
// leaves row counts unchanged. Returns the number of rows written.
func (db *DB) InsertReadings(readings []models.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO energy_readings
	(device_id, device_name, timestamp, delta_power, accumulated_value, current_value)
	VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range readings {
		ts := r.Timestamp.Format(models.TimeLayout)
		if _, err := stmt.Exec(r.DeviceID, r.DeviceName, ts, r.DeltaPower, r.AccumulatedValue, r.CurrentValue); err != nil {
			return 0, fmt.Errorf("inserting reading %s@%s: %w", r.DeviceID, ts, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing readings: %w", err)
	}

	return len(readings), nil
}

// InsertPrices upserts a batch of spot prices in a single transaction,
// keyed by (timestamp, price_area)
func (db *DB) InsertPrices(prices []models.SpotPrice) (int, error) {
	if len(prices) == 0 {
		return 0, nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
	INSERT OR REPLACE INTO spot_prices (timestamp, price_area, price_ore, price_eur)
	VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range prices {
		ts := p.Timestamp.Format(models.TimeLayout)
		if _, err := stmt.Exec(ts, p.PriceArea, p.PriceOre, p.PriceEUR); err != nil {
			return 0, fmt.Errorf("inserting price %s@%s: %w", p.PriceArea, ts, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing prices: %w", err)
	}

	return len(prices), nil
}

// UpdateSyncStatus records the last run of a sync type, optionally per device
func (db *DB) UpdateSyncStatus(syncType, deviceID, oldestData string) error {
	query := `
	INSERT OR REPLACE INTO sync_status (sync_type, device_id, last_sync, oldest_data)
	VALUES (?, ?, ?, ?)
	`

	lastSync := time.Now().Format(models.TimeLayout)
	if _, err := db.conn.Exec(query, syncType, deviceID, lastSync, oldestData); err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}

	return nil
}

// GetSyncStatus retrieves the last recorded sync for a type and device
func (db *DB) GetSyncStatus(syncType, deviceID string) (*models.SyncStatus, error) {
	query := `
	SELECT sync_type, device_id, last_sync, oldest_data
	FROM sync_status
	WHERE sync_type = ? AND device_id = ?
	`

	row := db.conn.QueryRow(query, syncType, deviceID)

	var status models.SyncStatus
	var lastSync string
	var oldest sql.NullString
	err := row.Scan(&status.SyncType, &status.DeviceID, &lastSync, &oldest)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying sync status: %w", err)
	}

	status.LastSync, err = time.ParseInLocation(models.TimeLayout, lastSync, time.Local)
	if err != nil {
		return nil, fmt.Errorf("parsing last_sync: %w", err)
	}
	status.OldestData = oldest.String

	return &status, nil
}

// GetReadings retrieves readings in [from, to], optionally for one device,
// ordered by timestamp
func (db *DB) GetReadings(deviceID string, from, to time.Time) ([]models.Reading, error) {
	query := `
	SELECT id, device_id, device_name, timestamp, delta_power, accumulated_value, current_value
	FROM energy_readings
	WHERE timestamp >= ? AND timestamp <= ?
	`
	params := []any{from.Format(models.TimeLayout), to.Format(models.TimeLayout)}

	if deviceID != "" {
		query += " AND device_id = ?"
		params = append(params, deviceID)
	}
	query += " ORDER BY timestamp ASC"

	rows, err := db.conn.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var results []models.Reading
	for rows.Next() {
		var r models.Reading
		var ts string
		var current sql.NullFloat64

		if err := rows.Scan(&r.ID, &r.DeviceID, &r.DeviceName, &ts, &r.DeltaPower, &r.AccumulatedValue, &current); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}

		r.Timestamp, err = time.ParseInLocation(models.TimeLayout, ts, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		r.CurrentValue = current.Float64

		results = append(results, r)
	}

	return results, rows.Err()
}

// GetPrices retrieves spot prices in [from, to] for a price area, ordered by timestamp
func (db *DB) GetPrices(area string, from, to time.Time) ([]models.SpotPrice, error) {
	query := `
	SELECT id, timestamp, price_area, price_ore, price_eur
	FROM spot_prices
	WHERE price_area = ? AND timestamp >= ? AND timestamp <= ?
	ORDER BY timestamp ASC
	`

	rows, err := db.conn.Query(query, area, from.Format(models.TimeLayout), to.Format(models.TimeLayout))
	if err != nil {
		return nil, fmt.Errorf("querying spot prices: %w", err)
	}
	defer rows.Close()

	var results []models.SpotPrice
	for rows.Next() {
		var p models.SpotPrice
		var ts string
		var eur sql.NullFloat64

		if err := rows.Scan(&p.ID, &ts, &p.PriceArea, &p.PriceOre, &eur); err != nil {
			return nil, fmt.Errorf("scanning price: %w", err)
		}

		p.Timestamp, err = time.ParseInLocation(models.TimeLayout, ts, time.Local)
		if err != nil {
			return nil, fmt.Errorf("parsing timestamp: %w", err)
		}
		p.PriceEUR = eur.Float64

		results = append(results, p)
	}

	return results, rows.Err()
}

// CountReadings returns the number of stored energy readings
func (db *DB) CountReadings() (int, error) {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM energy_readings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting readings: %w", err)
	}
	return count, nil
}

// CountPrices returns the number of stored spot prices
func (db *DB) CountPrices() (int, error) {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM spot_prices`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting prices: %w", err)
	}
	return count, nil
}

// ActiveHours24h returns per-device active hours and energy for the 24 hours
// before now. A device counts as active for an hour if any sample in that hour
// drew power.
func (db *DB) ActiveHours24h(deviceID string, now time.Time) (map[string]models.ActiveHours, error) {
	query := `
	SELECT
		device_id,
		device_name,
		COUNT(DISTINCT substr(timestamp, 1, 13)) as active_hours,
		SUM(current_value * 0.25) / 1000 as energy_kwh
	FROM energy_readings
	WHERE timestamp >= ? AND current_value > 0
	`
	params := []any{now.Add(-24 * time.Hour).Format(models.TimeLayout)}

	if deviceID != "" {
		query += " AND device_id = ?"
		params = append(params, deviceID)
	}
	query += " GROUP BY device_id"

	rows, err := db.conn.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying active hours: %w", err)
	}
	defer rows.Close()

	results := make(map[string]models.ActiveHours)
	for rows.Next() {
		var a models.ActiveHours
		if err := rows.Scan(&a.DeviceID, &a.DeviceName, &a.ActiveHours, &a.EnergyKWh); err != nil {
			return nil, fmt.Errorf("scanning active hours: %w", err)
		}
		results[a.DeviceID] = a
	}

	return results, rows.Err()
}

// Stats returns record counts and date ranges for both tables
func (db *DB) Stats() (*models.Stats, error) {
	var stats models.Stats

	row := db.conn.QueryRow(`
	SELECT COUNT(*), COALESCE(MIN(timestamp), ''), COALESCE(MAX(timestamp), ''), COUNT(DISTINCT device_id)
	FROM energy_readings
	`)
	if err := row.Scan(&stats.EnergyReadings.Count, &stats.EnergyReadings.Oldest,
		&stats.EnergyReadings.Newest, &stats.EnergyReadings.Devices); err != nil {
		return nil, fmt.Errorf("querying reading stats: %w", err)
	}

	row = db.conn.QueryRow(`
	SELECT COUNT(*), COALESCE(MIN(timestamp), ''), COALESCE(MAX(timestamp), '')
	FROM spot_prices
	`)
	if err := row.Scan(&stats.SpotPrices.Count, &stats.SpotPrices.Oldest, &stats.SpotPrices.Newest); err != nil {
		return nil, fmt.Errorf("querying price stats: %w", err)
	}

	return &stats, nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Tempiro      TempiroConfig `yaml:"tempiro"`
	PriceArea    string        `yaml:"price_area,omitempty"` // Nordic price area (fallback: SE3)
	Server       ServerConfig  `yaml:"server,omitempty"`
	DataDir      string        `yaml:"data_dir,omitempty"`      // where the SQLite file lives
	SyncInterval time.Duration `yaml:"sync_interval,omitempty"` // background sync period (fallback: 1h)
	DaysToFetch  int           `yaml:"days_to_fetch,omitempty"` // backfill window (fallback: 90)
	LogLevel     string        `yaml:"log_level,omitempty"`
	MQTT         MQTTConfig    `yaml:"mqtt,omitempty"`
	HA           HAConfig      `yaml:"home_assistant,omitempty"`
}

// TempiroConfig holds credentials for the Tempiro vendor API
type TempiroConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// MQTTConfig holds MQTT broker configuration for publishing sensor states
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker,omitempty"` // host:port
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// HAConfig holds Home Assistant HTTP API configuration
type HAConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`       // e.g., "http://homeassistant.local:8123"
	Token    string `yaml:"token"`     // Long-lived access token
	EntityID string `yaml:"entity_id"` // e.g., "sensor.tempiro_energy_usage"
}

// Load reads the config file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Return empty config if file doesn't exist
			return &Config{}, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return &cfg, nil
}

// Save writes the config to file
func Save(configPath string, cfg *Config) error {
	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the config file path, honoring the CONFIG_PATH
// environment variable set by the add-on bootstrap
func DefaultConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

// GetPriceArea returns the configured price area with a default of SE3
func (c *Config) GetPriceArea() string {
	if c.PriceArea == "" {
		return "SE3"
	}
	return c.PriceArea
}

// GetDataDir returns the data directory, honoring the DATA_DIR environment
// variable used for persistent storage in the add-on
func (c *Config) GetDataDir() string {
	if d := os.Getenv("DATA_DIR"); d != "" {
		return d
	}
	if c.DataDir != "" {
		return c.DataDir
	}
	return "."
}

// GetSyncInterval returns the background sync period with a default of 1 hour
func (c *Config) GetSyncInterval() time.Duration {
	if c.SyncInterval <= 0 {
		return time.Hour
	}
	return c.SyncInterval
}

// GetDaysToFetch returns the number of days to backfill with a default of 90 (3 months)
func (c *Config) GetDaysToFetch() int {
	if c.DaysToFetch <= 0 {
		return 90 // Default to 3 months
	}
	return c.DaysToFetch
}

// GetLogLevel returns the configured log level with a default of info
func (c *Config) GetLogLevel() string {
	if c.LogLevel == "" {
		return "info"
	}
	return c.LogLevel
}

// ListenAddr returns the host:port the HTTP server should bind
func (c *Config) ListenAddr() string {
	host := c.Server.Host
	port := c.Server.Port
	if port == 0 {
		port = 8099
	}
	return fmt.Sprintf("%s:%d", host, port)
}

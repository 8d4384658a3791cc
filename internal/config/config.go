package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/shahjoyal/view-bunker/internal/blend"
	"github.com/shahjoyal/view-bunker/internal/logging"
)

// MillCount is the number of mills (and bunkers) on the unit.
const MillCount = blend.MillCount

// DefaultPath is where the CLI looks for the config when --config is unset.
const DefaultPath = "bunker.yaml"

// Config holds all view-bunker configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Plant     PlantConfig     `yaml:"plant"`
	Binder    BinderConfig    `yaml:"binder"`
	Logging   LoggingConfig   `yaml:"logging"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// ServerConfig configures the HTTP/websocket API.
type ServerConfig struct {
	Addr            string `yaml:"addr"`
	ReadTimeout     string `yaml:"read_timeout"`
	WriteTimeout    string `yaml:"write_timeout"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// StorageConfig configures the SQLite store and its upkeep.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`

	// Blends older than this are pruned by the maintenance job. 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`

	// Cron expression (robfig/cron, 5 fields) for the maintenance job.
	MaintenanceSchedule string `yaml:"maintenance_schedule"`
}

// PlantConfig describes the unit.
type PlantConfig struct {
	Mills []string `yaml:"mills"`

	// Bunker capacity in tonnes, used for silo drawing.
	BunkerCapacity float64 `yaml:"bunker_capacity"`

	// How many of the newest blends are stacked into each bunker.
	MaxLayers int `yaml:"max_layers"`

	// Tonnes a new layer holds when the blend input does not say.
	DefaultLayerTonnes float64 `yaml:"default_layer_tonnes"`
}

// BinderConfig configures the layer countdown engine.
type BinderConfig struct {
	TickInterval string `yaml:"tick_interval"`
	EventBuffer  int    `yaml:"event_buffer"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level      string          `yaml:"level"`  // debug, info, warn, error
	Format     string          `yaml:"format"` // json, console
	File       string          `yaml:"file"`
	Categories map[string]bool `yaml:"categories,omitempty"`
}

// DashboardConfig configures the terminal dashboard.
type DashboardConfig struct {
	ServerURL string `yaml:"server_url"`
	Theme     string `yaml:"theme"` // light, dark, auto
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     "10s",
			WriteTimeout:    "10s",
			ShutdownTimeout: "5s",
		},
		Storage: StorageConfig{
			DatabasePath:        "data/bunker.db",
			RetentionDays:       90,
			MaintenanceSchedule: "0 3 * * *",
		},
		Plant: PlantConfig{
			Mills:              []string{"A", "B", "C", "D", "E", "F"},
			BunkerCapacity:     500,
			MaxLayers:          6,
			DefaultLayerTonnes: 80,
		},
		Binder: BinderConfig{
			TickInterval: "1s",
			EventBuffer:  16,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Dashboard: DashboardConfig{
			ServerURL: "http://localhost:8080",
			Theme:     "auto",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("BUNKER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if path := os.Getenv("BUNKER_DB"); path != "" {
		c.Storage.DatabasePath = path
	}
	if lvl := os.Getenv("BUNKER_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if url := os.Getenv("BUNKER_SERVER_URL"); url != "" {
		c.Dashboard.ServerURL = url
	}
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetReadTimeout returns the HTTP read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDuration(c.Server.ReadTimeout, 10*time.Second)
}

// GetWriteTimeout returns the HTTP write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDuration(c.Server.WriteTimeout, 10*time.Second)
}

// GetShutdownTimeout returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeout() time.Duration {
	return parseDuration(c.Server.ShutdownTimeout, 5*time.Second)
}

// GetTickInterval returns the binder tick interval.
func (c *Config) GetTickInterval() time.Duration {
	return parseDuration(c.Binder.TickInterval, time.Second)
}

// GetRetention returns the blend retention window; 0 disables pruning.
func (c *Config) GetRetention() time.Duration {
	if c.Storage.RetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.Storage.RetentionDays) * 24 * time.Hour
}

// MillNames returns the configured mill names as a fixed array.
func (c *Config) MillNames() [MillCount]string {
	var names [MillCount]string
	for i := range names {
		if i < len(c.Plant.Mills) {
			names[i] = c.Plant.Mills[i]
		} else {
			names[i] = string(rune('A' + i))
		}
	}
	return names
}

// LoggingOptions converts the logging section for the logging package.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		Categories: c.Logging.Categories,
	}
}

// ValidFormats lists the supported log encodings.
var ValidFormats = []string{"json", "console"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var problems []string

	if len(c.Plant.Mills) != MillCount {
		problems = append(problems, fmt.Sprintf("plant.mills must name %d mills, got %d", MillCount, len(c.Plant.Mills)))
	}
	if c.Plant.BunkerCapacity <= 0 {
		problems = append(problems, "plant.bunker_capacity must be positive")
	}
	if c.Plant.MaxLayers <= 0 {
		problems = append(problems, "plant.max_layers must be positive")
	}
	if c.Plant.DefaultLayerTonnes < 0 {
		problems = append(problems, "plant.default_layer_tonnes must not be negative")
	}
	if c.Storage.DatabasePath == "" {
		problems = append(problems, "storage.database_path is required")
	}
	if c.Storage.RetentionDays < 0 {
		problems = append(problems, "storage.retention_days must not be negative")
	}
	if c.Storage.MaintenanceSchedule != "" {
		if _, err := cron.ParseStandard(c.Storage.MaintenanceSchedule); err != nil {
			problems = append(problems, fmt.Sprintf("storage.maintenance_schedule: %v", err))
		}
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		problems = append(problems, err.Error())
	}
	validFormat := c.Logging.Format == ""
	for _, f := range ValidFormats {
		if c.Logging.Format == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		problems = append(problems, fmt.Sprintf("invalid log format: %s (valid: %v)", c.Logging.Format, ValidFormats))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

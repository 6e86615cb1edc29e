package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config path is given.
const DefaultPath = "configs/config.yaml"

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`

	HTTP struct {
		Port                 int     `yaml:"port"`
		BookingRatePerMinute float64 `yaml:"booking_rate_per_minute"`
		BookingBurst         int     `yaml:"booking_burst"`
	} `yaml:"http"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Backup BackupConfig `yaml:"backup"`

	Booking struct {
		Timezone    string `yaml:"timezone"`
		SlotMinutes int    `yaml:"slot_minutes"`
	} `yaml:"booking"`

	Events struct {
		BufferSize int `yaml:"buffer_size"`
	} `yaml:"events"`

	Telegram struct {
		BotToken string  `yaml:"bot_token"`
		ChatIDs  []int64 `yaml:"chat_ids"`
		Debug    bool    `yaml:"debug"`
	} `yaml:"telegram"`

	Slots struct {
		ConfigPath           string `yaml:"config_path"`
		WatchIntervalSeconds int    `yaml:"watch_interval_seconds"`
	} `yaml:"slots"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	IntervalHours int    `yaml:"interval_hours"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// Interval returns the backup period, 24h when unset.
func (b BackupConfig) Interval() time.Duration {
	if b.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(b.IntervalHours) * time.Hour
}

// Load reads the YAML config at path. Variables from a .env file in the
// working directory are loaded first so ${ENV_VAR} placeholders can use them.
// A missing file at the default path yields the defaults.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		data = []byte(os.ExpandEnv(string(data)))
		if err = yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyDefaults()

	if _, err := cfg.Location(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "data/slotbook.db"
	}
	if c.Redis.Channel == "" {
		c.Redis.Channel = "slotbook:events"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.RetentionDays <= 0 {
		c.Backup.RetentionDays = 14
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "UTC"
	}
}

// Location returns the timezone slots are generated and queried in.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid booking.timezone %q: %w", c.Booking.Timezone, err)
	}
	return loc, nil
}

// SlotStep returns the generated slot length, one hour when unset.
func (c *Config) SlotStep() time.Duration {
	if c.Booking.SlotMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.Booking.SlotMinutes) * time.Minute
}

// EventBufferSize returns the per-subscriber event buffer.
func (c *Config) EventBufferSize() int {
	if c.Events.BufferSize <= 0 {
		return 64
	}
	return c.Events.BufferSize
}

// BookingRate returns allowed booking requests per second per client.
func (c *Config) BookingRate() float64 {
	if c.HTTP.BookingRatePerMinute <= 0 {
		return 30.0 / 60
	}
	return c.HTTP.BookingRatePerMinute / 60
}

func (c *Config) BookingBurst() int {
	if c.HTTP.BookingBurst <= 0 {
		return 5
	}
	return c.HTTP.BookingBurst
}

// SlotsWatchInterval returns how often the slot configuration file is polled.
func (c *Config) SlotsWatchInterval() time.Duration {
	if c.Slots.WatchIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Slots.WatchIntervalSeconds) * time.Second
}

// Package config loads the server configuration from a YAML file, overlaid
// with secrets from the environment (optionally read from a .env file).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TelegramConfig holds the Bot API connection settings.
type TelegramConfig struct {
	// APIURL is the Bot API base URL, without the bot token.
	APIURL string `yaml:"api_url"`
	// Token is normally supplied through BOT_TOKEN rather than the file.
	Token string `yaml:"token,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen"`

	// DataDir holds the SQLite database.
	DataDir string `yaml:"data_dir"`

	// Timezone is the IANA zone wall-clock times are interpreted in.
	Timezone string `yaml:"timezone"`

	// TickSchedule drives reminder dispatch. It must fire once a minute for
	// the one-minute due window to be observed.
	TickSchedule string `yaml:"tick_schedule"`

	// MaterializeSchedule drives the sweep that generates events from templates.
	MaterializeSchedule string `yaml:"materialize_schedule"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	Telegram TelegramConfig `yaml:"telegram"`

	// SuperadminIDs are Telegram user IDs allowed to manage any group.
	SuperadminIDs []int64 `yaml:"superadmin_ids"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:              ":8099",
		DataDir:             "/data",
		Timezone:            "Europe/Moscow",
		TickSchedule:        "@every 1m",
		MaterializeSchedule: "@every 1h",
		LogLevel:            "info",
		Telegram: TelegramConfig{
			APIURL: "https://api.telegram.org",
		},
		SuperadminIDs: []int64{},
	}
}

// Normalize fills in missing values with defaults.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.TickSchedule == "" {
		c.TickSchedule = d.TickSchedule
	}
	if c.MaterializeSchedule == "" {
		c.MaterializeSchedule = d.MaterializeSchedule
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		c.LogLevel = d.LogLevel
	}
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = d.Telegram.APIURL
	}
	c.Telegram.APIURL = strings.TrimRight(c.Telegram.APIURL, "/")
	if c.SuperadminIDs == nil {
		c.SuperadminIDs = []int64{}
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("unknown timezone, using UTC", "timezone", c.Timezone, "error", err)
		return time.UTC
	}
	return loc
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsSuperadmin reports whether the Telegram user ID is a configured superadmin.
func (c *Config) IsSuperadmin(telegramID int64) bool {
	for _, id := range c.SuperadminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// Load reads the YAML file at path. A missing file is created with defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path with 0600 permissions. The bot token is never
// persisted.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	out := *cfg
	out.Telegram.Token = ""

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(&out)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ApplyEnv loads envFile if it exists and overlays environment variables:
// BOT_TOKEN, TELEGRAM_API_URL, SUPERADMIN_ID (comma-separated), LOG_LEVEL, TZ_NAME.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_API_URL"); v != "" {
		c.Telegram.APIURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("TZ_NAME"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("SUPERADMIN_ID"); v != "" {
		ids, err := parseIDList(v)
		if err != nil {
			return fmt.Errorf("SUPERADMIN_ID: %w", err)
		}
		c.SuperadminIDs = ids
	}

	c.Normalize()
	return nil
}

func parseIDList(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

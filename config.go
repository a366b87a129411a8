package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/joho/godotenv"
)

// configFile is the path loadConfig reads. main may replace it from the
// -config flag or FLOWWATCH_CONFIG.
var configFile = "config.json"

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "flowwatch")
	}
	return "data"
}

// loadEnv reads .env if present. Real environment variables win.
func loadEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to read .env", "err", err)
	}
}

// loadConfig reads configFile, writes back any keys missing from it and
// applies environment overrides. A missing file is created from defaults.
func loadConfig() (*Config, error) {
	data, err := os.ReadFile(configFile)
	if errors.Is(err, os.ErrNotExist) {
		cfg := defaultConfigTemplate()
		applyEnvOverrides(&cfg)
		if err := saveConfig(&cfg); err != nil {
			slog.Warn("Could not write default config", "file", configFile, "err", err)
		} else {
			slog.Info("Default config created", "file", configFile)
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", configFile, err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", configFile, err)
	}
	if fillMissingConfigFields(raw) {
		if out, err := json.MarshalIndent(raw, "", "  "); err == nil {
			if err := os.WriteFile(configFile, out, 0644); err != nil {
				slog.Warn("Could not persist new config defaults", "file", configFile, "err", err)
			} else {
				slog.Info("Config updated with new default fields", "file", configFile)
			}
		}
		data, _ = json.Marshal(raw)
	}

	cfg := defaultConfigTemplate()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", configFile, err)
	}
	cfg.sanitize()
	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides lets secrets live outside the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FLOWWATCH_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("FLOWWATCH_ALLOWED_USER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			slog.Warn("Ignoring FLOWWATCH_ALLOWED_USER_ID: not numeric", "value", v)
		} else {
			cfg.Telegram.AllowedUserID = id
		}
	}
	if v := os.Getenv("FLOWWATCH_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
}

// saveConfig writes cfg to configFile.
func saveConfig(cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("error serializing config: %w", err)
	}
	if dir := filepath.Dir(configFile); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("error writing %s: %w", configFile, err)
	}
	return nil
}

// getConfigJSONSafe returns the config with bot credentials redacted.
func getConfigJSONSafe(cfg *Config) (string, error) {
	redacted := *cfg
	redacted.Telegram.BotToken = ""
	redacted.Telegram.AllowedUserID = 0
	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return "", fmt.Errorf("error serializing config: %w", err)
	}
	return string(data), nil
}

// Location resolves the timezone day buckets are cut in. Empty means the
// host's local zone.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		slog.Warn("Timezone not found, using local time", "timezone", c.Timezone)
		return time.Local
	}
	return loc
}

func (c *Config) TrafficHistoryPath() string {
	return filepath.Join(c.DataDir, "traffic_history.json")
}

func (c *Config) AppHistoryPath() string {
	return filepath.Join(c.DataDir, "app_traffic_history.json")
}

func (c *Config) SampleInterval() time.Duration {
	return time.Duration(c.Sampling.IntervalMS) * time.Millisecond
}

func (c *Config) SaveInterval() time.Duration {
	return time.Duration(c.Persistence.SaveSeconds) * time.Second
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Persistence.FlushSeconds) * time.Second
}

func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.AllowedUserID != 0
}

package ov2680

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes how to reach the sensor and how to drive it.
type Config struct {
	Transport            string `yaml:"transport"`               // "serial" or "i2cdev"
	Device               string `yaml:"device"`                  // serial port or /dev/i2c-N; empty autodetects the serial bridge
	Address              uint8  `yaml:"address"`                 // 7 bit bus address
	Retries              int    `yaml:"retries"`                 // burst retries after the first attempt
	Catalogue            string `yaml:"catalogue"`               // built-in mode catalogue
	StopBeforeModeSwitch bool   `yaml:"stop_before_mode_switch"` // stop streaming instead of rejecting Configure
	LogLevel             string `yaml:"log_level"`               // debug, info, warn, error
	LogFormat            string `yaml:"log_format"`              // text or json
}

// DefaultConfig returns the configuration used for keys missing from a file.
func DefaultConfig() Config {
	return Config{
		Transport: "serial",
		Address:   DefaultI2CAddress,
		Retries:   I2CRetryCount,
		Catalogue: "preview",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// LoadConfig reads a YAML configuration file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Transport {
	case "serial", "i2cdev":
	default:
		return fmt.Errorf("invalid transport %q, must be serial or i2cdev", c.Transport)
	}
	if c.Address == 0 || c.Address > 0x77 {
		return fmt.Errorf("invalid bus address 0x%02X", c.Address)
	}
	if c.Retries < 0 {
		return fmt.Errorf("invalid retry count %d", c.Retries)
	}
	if _, ok := builtin.catalogues[c.Catalogue]; !ok {
		return fmt.Errorf("unknown catalogue %q, have %v", c.Catalogue, CatalogueNames())
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// Logger builds a slog logger writing to stderr at the configured level.
func (c Config) Logger() *slog.Logger {
	var lvl slog.Level
	switch c.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func openTransport(c Config) (Transport, error) {
	switch c.Transport {
	case "i2cdev":
		return openI2CDev(c.Device, c.Address)
	default:
		b, err := OpenSerialBridge(c.Device, c.Address)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

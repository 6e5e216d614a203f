// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads jlupdate settings from defaults, an optional config
// file, JLUPDATE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// JLUPDATE_SERIAL_BAUD or JLUPDATE_UPDATE_UPGRADEBAUD.
const EnvPrefix = "JLUPDATE"

// SerialConfig describes the port before the upgrade handshake
type SerialConfig struct {
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

// UpdateConfig tunes the transfer state machine
type UpdateConfig struct {
	UpgradeBaud         uint32        `mapstructure:"upgradeBaud"`
	SettleDelay         time.Duration `mapstructure:"settleDelay"`
	Timeout             time.Duration `mapstructure:"timeout"`
	StopOnDeviceFailure bool          `mapstructure:"stopOnDeviceFailure"`
	FramesPerFeed       int           `mapstructure:"framesPerFeed"`
	ReadSize            int           `mapstructure:"readSize"`
	MaxBuffered         int           `mapstructure:"maxBuffered"`
	Progress            bool          `mapstructure:"progress"`
	TUI                 bool          `mapstructure:"tui"`
}

// LumberjackConfig configures rotating file output
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig selects level, encoder and optional log file
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig exposes Prometheus metrics while an update runs.
// An empty Addr disables the endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// Config is the top-level configuration
type Config struct {
	Serial  SerialConfig  `mapstructure:"serial"`
	Update  UpdateConfig  `mapstructure:"update"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// flagKeys maps command-line flag names to configuration keys
var flagKeys = map[string]string{
	"baud":                   "serial.baud",
	"read-timeout":           "serial.readTimeout",
	"upgrade-baud":           "update.upgradeBaud",
	"settle-delay":           "update.settleDelay",
	"timeout":                "update.timeout",
	"stop-on-device-failure": "update.stopOnDeviceFailure",
	"frames-per-feed":        "update.framesPerFeed",
	"log-level":              "logging.level",
	"log-format":             "logging.format",
	"log-file":               "logging.file.filename",
	"metrics-addr":           "metrics.addr",
	"tui":                    "update.tui",
}

// Load reads configuration from path (YAML, TOML or JSON by extension).
//
// When path is empty, JLUPDATE_CONFIG is consulted, then jlupdate.yaml is
// searched for in the working directory and the user config directory; a
// missing file is not an error in that case. Flags that were explicitly set
// in flags override everything else. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("jlupdate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "jlupdate"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the updater cannot run with
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeout <= 0 {
		return fmt.Errorf("serial.readTimeout must be positive, got %s", c.Serial.ReadTimeout)
	}
	if c.Update.UpgradeBaud == 0 {
		return errors.New("update.upgradeBaud must be positive")
	}
	if c.Update.FramesPerFeed < 1 {
		return fmt.Errorf("update.framesPerFeed must be at least 1, got %d", c.Update.FramesPerFeed)
	}
	if c.Update.Timeout < 0 {
		return fmt.Errorf("update.timeout must not be negative, got %s", c.Update.Timeout)
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.readTimeout", "5ms")

	v.SetDefault("update.upgradeBaud", 1000000)
	v.SetDefault("update.settleDelay", "20ms")
	v.SetDefault("update.timeout", "0s")
	v.SetDefault("update.stopOnDeviceFailure", false)
	v.SetDefault("update.framesPerFeed", 1)
	v.SetDefault("update.readSize", 64)
	v.SetDefault("update.maxBuffered", 0)
	v.SetDefault("update.progress", true)
	v.SetDefault("update.tui", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.path", "/metrics")
}

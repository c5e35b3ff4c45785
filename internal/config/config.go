// Package config handles loading and parsing application configuration.
// It supports two sources (in priority order):
//  1. An environment variable:  CONFIG_PATH=/path/to/config.yaml
//  2. A command-line flag:      --config=/path/to/config.yaml
//
// Every value in the file can also be overridden by its environment
// variable (see the env:"..." tags below).
package config

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Supported values for Config.StorageDriver.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// Supported values for Metrics.Exporter.
const (
	ExporterStdout = "stdout"
	ExporterNone   = "none"
)

// Config is the root configuration structure.
type Config struct {
	// Env controls log format and verbosity.
	// Valid values: "dev", "staging", "prod"
	Env string `yaml:"env" env:"ENV" env-required:"true"`

	// StoragePath is the path of the registration log. For the "file"
	// driver it is the flat text file, for "sqlite" the .db file.
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"pace_students_db.txt"`

	// StorageDriver selects the persistence log backend: "file" or "sqlite".
	StorageDriver string `yaml:"storage_driver" env:"STORAGE_DRIVER" env-default:"file"`

	// StaticPath is the HTML page served on GET /.
	StaticPath string `yaml:"static_path" env:"STATIC_PATH" env-default:"index.html"`

	HTTPServer `yaml:"http_server"`

	Metrics `yaml:"metrics"`
}

// HTTPServer holds settings specific to the HTTP server.
type HTTPServer struct {
	Addr string `yaml:"address" env:"HTTP_SERVER_ADDR" env-default:":8080"`
}

// Metrics controls where OpenTelemetry metrics are exported.
type Metrics struct {
	// Exporter is "stdout" (periodic JSON dump) or "none".
	Exporter string `yaml:"exporter" env:"METRICS_EXPORTER" env-default:"stdout"`

	// Interval is the export period, e.g. "30s" or "1m".
	Interval time.Duration `yaml:"interval" env:"METRICS_INTERVAL" env-default:"60s"`
}

// Load reads the YAML file at path, applies environment overrides and
// checks the result.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	switch cfg.StorageDriver {
	case DriverFile, DriverSQLite:
	default:
		return nil, fmt.Errorf("unknown storage_driver %q: want %q or %q",
			cfg.StorageDriver, DriverFile, DriverSQLite)
	}

	switch cfg.Metrics.Exporter {
	case ExporterStdout, ExporterNone:
	default:
		return nil, fmt.Errorf("unknown metrics.exporter %q: want %q or %q",
			cfg.Metrics.Exporter, ExporterStdout, ExporterNone)
	}
	if cfg.Metrics.Interval <= 0 {
		return nil, fmt.Errorf("metrics.interval must be positive, got %s", cfg.Metrics.Interval)
	}

	return &cfg, nil
}

// MustLoad resolves the config path from CONFIG_PATH or --config and
// loads it. It terminates the process if anything is wrong, so callers
// can rely on a valid config when it returns.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")

	if configPath == "" {
		flags := flag.String("config", "", "Path to the configuration YAML file")
		flag.Parse()
		configPath = *flags
	}

	if configPath == "" {
		log.Fatal("config path is not set: use --config flag or CONFIG_PATH env var")
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err.Error())
	}

	return cfg
}

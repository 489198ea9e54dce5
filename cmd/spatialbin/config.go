package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/beetlebugorg/spatialbin/pkg/binning"
)

// Config holds the configuration of one circular binning invocation.
type Config struct {
	Input        string       `mapstructure:"input"`
	CRS          string       `mapstructure:"crs"`
	Output       string       `mapstructure:"output"`
	SQLite       string       `mapstructure:"sqlite"`
	Table        string       `mapstructure:"table"`
	Extent       string       `mapstructure:"extent"`
	ExtentCRS    string       `mapstructure:"extent_crs"`
	Radius       float64      `mapstructure:"radius"`
	Weight       string       `mapstructure:"weight"`
	IncludeEmpty bool         `mapstructure:"include_empty"`
	MetricsFile  string       `mapstructure:"metrics_file"`
	Log          LogConfig    `mapstructure:"log"`
	Engine       EngineConfig `mapstructure:"engine"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type EngineConfig struct {
	CacheMB int `mapstructure:"cache_mb"`
	MaxBins int `mapstructure:"max_bins"`
}

// setDefaults registers every key, so environment variables are seen for all.
func setDefaults(v *viper.Viper) {
	v.SetDefault("input", "")
	v.SetDefault("crs", "")
	v.SetDefault("output", "")
	v.SetDefault("sqlite", "")
	v.SetDefault("table", "bins")
	v.SetDefault("extent", "")
	v.SetDefault("extent_crs", "")
	v.SetDefault("radius", 0.0)
	v.SetDefault("weight", "")
	v.SetDefault("include_empty", false)
	v.SetDefault("metrics_file", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("engine.cache_mb", 64)
	v.SetDefault("engine.max_bins", 10_000_000)
}

// loadConfig reads configuration from file, environment and bound flags.
//
// Precedence is flag, then environment (SPATIALBIN_LOG_LEVEL → log.level),
// then config file, then default. Without an explicit file, spatialbin.yaml
// is looked up in the working directory and is optional.
func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", configFile)
		}
	} else {
		v.SetConfigName("spatialbin")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		_ = v.ReadInConfig() // OK if missing
	}

	v.SetEnvPrefix("SPATIALBIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is complete and consistent,
// reporting every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Input == "" {
		errs = append(errs, "input is required")
	}
	switch {
	case c.Output == "" && c.SQLite == "":
		errs = append(errs, "one of output or sqlite is required")
	case c.Output != "" && c.SQLite != "":
		errs = append(errs, "output and sqlite are mutually exclusive")
	}
	if c.SQLite != "" && c.Table == "" {
		errs = append(errs, "table is required with sqlite")
	}
	if c.Extent != "" {
		if _, err := parseExtent(c.Extent, c.ExtentCRS); err != nil {
			errs = append(errs, err.Error())
		}
	} else if c.ExtentCRS != "" {
		errs = append(errs, "extent_crs requires extent")
	}
	if c.Radius < 0 || math.IsNaN(c.Radius) || math.IsInf(c.Radius, 0) {
		errs = append(errs, fmt.Sprintf("radius must be a finite value >= 0, got %v", c.Radius))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be json or console, got %q", c.Log.Format))
	}
	if c.Engine.MaxBins < 0 {
		errs = append(errs, "engine.max_bins must be >= 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Options converts the configuration to engine run options.
func (c *Config) Options() binning.Options {
	opts := binning.DefaultOptions()
	if c.Extent != "" {
		// Validated already.
		opts.Extent, _ = parseExtent(c.Extent, c.ExtentCRS)
	}
	opts.Radius = c.Radius
	opts.Weight = c.Weight
	opts.OnlyValidBins = !c.IncludeEmpty
	return opts
}

// EngineOptions converts the configuration to engine options.
func (c *Config) EngineOptions() binning.EngineOptions {
	opts := binning.DefaultEngineOptions()
	opts.LatticeCacheSize = int64(c.Engine.CacheMB) * 1024 * 1024
	if c.Engine.CacheMB < 0 {
		opts.LatticeCacheSize = -1
	}
	opts.MaxBins = c.Engine.MaxBins
	return opts
}

// parseExtent parses "minx,miny,maxx,maxy".
func parseExtent(s, crs string) (*binning.Extent, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, errors.Newf("extent must be minx,miny,maxx,maxy, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, errors.Newf("extent value %q is not a number", strings.TrimSpace(p))
		}
		v[i] = f
	}
	extent := &binning.Extent{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3], CRS: crs}
	if !extent.Valid() {
		return nil, errors.Newf("extent %q must be finite with min <= max", s)
	}
	return extent, nil
}

// Package config reads the zonediff settings from flags, ZONEDIFF_* environment
// variables and an optional YAML config file.
package config

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/lanrat/zonediff/logger"
)

// EnvPrefix prefixes the environment variables read by Load.
const EnvPrefix = "ZONEDIFF"

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

var (
	// ErrParallel is returned if parallel is not positive.
	ErrParallel = errors.New("config parallel must be greater than 0")

	// ErrFormat is returned for an unknown output format.
	ErrFormat = errors.New("config format must be one of text, json, yaml")

	// ErrThreshold is returned if shift_threshold is negative.
	ErrThreshold = errors.New("config shift_threshold can not be negative")
)

// Config overall data structure.
type Config struct {
	Origin         string     `mapstructure:"origin"`          // origin of relative names
	Parallel       int        `mapstructure:"parallel"`        // files parsed at once
	Format         string     `mapstructure:"format"`          // text, json or yaml
	Sorted         bool       `mapstructure:"sorted"`          // diff inputs by merge-join
	InheritTTL     bool       `mapstructure:"inherit_ttl"`     // reuse the last explicit TTL
	FailFast       bool       `mapstructure:"fail_fast"`       // any per-file error fails the run
	ShiftThreshold float64    `mapstructure:"shift_threshold"` // relative type count change to warn on
	Extensions     []string   `mapstructure:"extensions"`      // zone file extensions in directories
	StatusPort     int        `mapstructure:"status_port"`     // 0 disables the status server
	Log            logger.Log `mapstructure:"log"`
}

// SetDefaults registers the default value of every key on v and enables
// environment lookups.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("origin", "")
	v.SetDefault("parallel", runtime.NumCPU())
	v.SetDefault("format", FormatText)
	v.SetDefault("sorted", false)
	v.SetDefault("inherit_ttl", false)
	v.SetDefault("fail_fast", false)
	v.SetDefault("shift_threshold", 0.5)
	v.SetDefault("extensions", []string{".txt", ".txt.gz", ".zone", ".zone.gz", ".gz"})
	v.SetDefault("status_port", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("log.console.pretty", true)
	v.SetDefault("log.file.enabled", false)
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age", 28)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// ReadFile merges the YAML config file at path into v.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

// Load unmarshals and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}
	c.Format = strings.ToLower(c.Format)
	return c, validate(c)
}

func validate(c Config) error {
	invalidErrMessage := "invalid config"

	if c.Parallel < 1 {
		return errors.Wrap(ErrParallel, invalidErrMessage)
	}
	switch c.Format {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return errors.Wrap(ErrFormat, invalidErrMessage)
	}
	if c.ShiftThreshold < 0 {
		return errors.Wrap(ErrThreshold, invalidErrMessage)
	}
	return nil
}

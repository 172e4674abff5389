// Package config loads winrt.toml runtime configuration.
package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/winrt-runtime/activation"
	"github.com/wippyai/winrt-runtime/errors"
)

const (
	// FileName is the configuration file looked up by Find.
	FileName = "winrt.toml"
	// EnvPath names an explicit configuration file.
	EnvPath = "WINRT_CONFIG"
)

// Config is the runtime configuration.
type Config struct {
	Modules    Modules    `toml:"modules"`
	Activation Activation `toml:"activation"`
	Log        LogConfig  `toml:"log"`

	// Path is the file the configuration was read from, if any.
	Path string `toml:"-"`
}

// Modules configures where component modules are found.
type Modules struct {
	// Dir is the module directory. Empty means the executable's directory.
	Dir string `toml:"dir"`
	// Extension is appended to namespace-derived module names.
	Extension string `toml:"extension"`
	// Overrides maps a type or namespace to a module file name.
	Overrides map[string]string `toml:"overrides"`
}

// Activation configures factory resolution.
type Activation struct {
	BrokerFallback bool `toml:"broker_fallback"`
}

// LogConfig configures the runtime logger.
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Modules:    Modules{Extension: ".dll"},
		Activation: Activation{BrokerFallback: true},
		Log:        LogConfig{Level: "info"},
	}
}

// Parse decodes a configuration on top of the defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "parse configuration")
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return nil, errors.InvalidInput(errors.PhaseConfig, "unknown keys: "+strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads the configuration at path. A relative modules.dir is resolved
// against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Name(path).
			Cause(err).
			Detail("cannot read configuration").
			Build()
	}
	c, err := Parse(data)
	if err != nil {
		return nil, errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Name(path).
			Cause(err).
			Build()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "resolve "+path)
	}
	c.Path = abs
	if c.Modules.Dir != "" && !filepath.IsAbs(c.Modules.Dir) {
		c.Modules.Dir = filepath.Join(filepath.Dir(abs), c.Modules.Dir)
	}
	return c, nil
}

// Find walks up from startDir looking for FileName. It returns "" when
// there is none.
func Find(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Discover loads the file named by $WINRT_CONFIG, else the nearest
// winrt.toml above startDir, else the defaults.
func Discover(startDir string) (*Config, error) {
	if path := os.Getenv(EnvPath); path != "" {
		return Load(path)
	}
	path, err := Find(startDir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "search for "+FileName)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks field values.
func (c *Config) Validate() error {
	if c.Modules.Extension != "" && !strings.HasPrefix(c.Modules.Extension, ".") {
		return errors.InvalidInput(errors.PhaseConfig, "modules.extension must start with '.': "+c.Modules.Extension)
	}
	for k, v := range c.Modules.Overrides {
		if k == "" || v == "" {
			return errors.InvalidInput(errors.PhaseConfig, "modules.overrides entries need a type and a module")
		}
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	return nil
}

// ActivationOptions converts the configuration into resolver options.
func (c *Config) ActivationOptions() activation.Options {
	opts := activation.DefaultOptions()
	ext := c.Modules.Extension
	opts.Naming = func(ns string) string { return ns + ext }
	if len(c.Modules.Overrides) > 0 {
		opts.Overrides = make(map[string]string, len(c.Modules.Overrides))
		for k, v := range c.Modules.Overrides {
			opts.Overrides[k] = v
		}
	}
	opts.BrokerFallback = c.Activation.BrokerFallback
	return opts
}

// Build creates a zap logger for the configured level and mode.
func (l LogConfig) Build() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log.level")
	}
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}

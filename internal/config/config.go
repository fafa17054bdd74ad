// Package config loads autovnc configuration from defaults, an optional
// YAML file and AUTOVNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// AUTOVNC_STORE_PATH overrides store.path.
const EnvPrefix = "AUTOVNC"

// Config is the root configuration.
type Config struct {
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Capture    CaptureConfig    `mapstructure:"capture" yaml:"capture"`
	Synth      SynthConfig      `mapstructure:"synth" yaml:"synth"`
	Connection ConnectionConfig `mapstructure:"connection" yaml:"connection"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig names the terminal color of each log level.
type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// CaptureConfig tunes the action classifier and template capturer.
type CaptureConfig struct {
	DragThreshold  float64       `mapstructure:"drag_threshold" yaml:"drag_threshold"`
	Debounce       time.Duration `mapstructure:"debounce" yaml:"debounce"`
	TemplateSize   int           `mapstructure:"template_size" yaml:"template_size"`
	MinRegion      int           `mapstructure:"min_region" yaml:"min_region"`
	CaptureTimeout time.Duration `mapstructure:"capture_timeout" yaml:"capture_timeout"`
}

// SynthConfig tunes code synthesis.
type SynthConfig struct {
	WaitThreshold float64 `mapstructure:"wait_threshold" yaml:"wait_threshold"`
}

// ConnectionConfig is the default remote display a generated script's
// harness connects to.
type ConnectionConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "autovnc")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	// -- Store --
	v.SetDefault("store.path", "~/.autovnc/autovnc.db")

	// -- Capture --
	v.SetDefault("capture.drag_threshold", 10.0)
	v.SetDefault("capture.debounce", "250ms")
	v.SetDefault("capture.template_size", 80)
	v.SetDefault("capture.min_region", 5)
	v.SetDefault("capture.capture_timeout", "10s")

	// -- Synth --
	v.SetDefault("synth.wait_threshold", 0.1)

	// -- Connection --
	v.SetDefault("connection.host", "localhost")
	v.SetDefault("connection.port", 5900)
}

// NewViper returns a viper instance with defaults and environment binding.
// If file is non-empty it is read; otherwise ./autovnc.yaml and
// ~/.autovnc/config.yaml are tried and their absence is not an error.
func NewViper(file string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		path, err := homedir.Expand(file)
		if err != nil {
			return nil, fmt.Errorf("expand config path %q: %w", file, err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("autovnc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := homedir.Expand("~/.autovnc"); err == nil {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return v, nil
}

// Load is NewViper followed by NewConfigFromViper.
func Load(file string) (*Config, error) {
	v, err := NewViper(file)
	if err != nil {
		return nil, err
	}
	return NewConfigFromViper(v)
}

// NewDefaultConfig returns the configuration with only defaults applied.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := NewConfigFromViper(v)
	if err != nil {
		panic(fmt.Sprintf("failed to build default config: %v", err))
	}
	return cfg
}

// NewConfigFromViper unmarshals and validates a configuration. Paths are
// expanded with homedir.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	var err error
	if cfg.Store.Path, err = expand(cfg.Store.Path); err != nil {
		return nil, err
	}
	if cfg.Logger.LogFile, err = expand(cfg.Logger.LogFile); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func expand(path string) (string, error) {
	if path == "" || path == ":memory:" {
		return path, nil
	}
	out, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", path, err)
	}
	return out, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logger.format must be console or json, got %q", c.Logger.Format)
	}
	if c.Store.Path == "" {
		return errors.New("store.path is required")
	}
	if c.Capture.DragThreshold <= 0 {
		return errors.New("capture.drag_threshold must be positive")
	}
	if c.Capture.Debounce < 0 {
		return errors.New("capture.debounce must not be negative")
	}
	if c.Capture.TemplateSize <= 0 {
		return errors.New("capture.template_size must be positive")
	}
	if c.Capture.MinRegion <= 0 {
		return errors.New("capture.min_region must be positive")
	}
	if c.Synth.WaitThreshold < 0 {
		return errors.New("synth.wait_threshold must not be negative")
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return fmt.Errorf("connection.port out of range: %d", c.Connection.Port)
	}
	return nil
}

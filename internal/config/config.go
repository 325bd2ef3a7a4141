// Package config loads and validates handscene settings from TOML, .env and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/ayusman/handscene/internal/capture"
	"github.com/ayusman/handscene/internal/detector"
	"github.com/ayusman/handscene/internal/dispatch"
	"github.com/ayusman/handscene/internal/gesture"
	"github.com/ayusman/handscene/internal/logger"
	"github.com/ayusman/handscene/internal/pipeline"
	"github.com/ayusman/handscene/internal/sink"
	"github.com/ayusman/handscene/internal/tracker"
)

// ErrInvalid is returned when a loaded configuration fails validation.
var ErrInvalid = errors.New("invalid config")

// Environment variables that override file values.
const (
	EnvAddr     = "HANDSCENE_ADDR"
	EnvLogLevel = "HANDSCENE_LOG_LEVEL"
	EnvDB       = "HANDSCENE_DB"
	EnvNATSURL  = "HANDSCENE_NATS_URL"
	EnvDispatch = "HANDSCENE_DISPATCH"
)

// Config is the complete application configuration.
type Config struct {
	Pipeline pipeline.Config     `toml:"pipeline"`
	Tracker  tracker.Config      `toml:"tracker"`
	Pinch    gesture.PinchConfig `toml:"pinch"`
	Swipe    gesture.SwipeConfig `toml:"swipe"`
	Zoom     gesture.ZoomConfig  `toml:"zoom"`
	Dispatch dispatch.Config     `toml:"dispatch"`
	Camera   capture.Config      `toml:"camera"`
	Detector detector.Config     `toml:"detector"`
	Server   ServerConfig        `toml:"server"`
	Store    StoreConfig         `toml:"store"`
	Sink     sink.Config         `toml:"sink"`
	Plugins  PluginsConfig       `toml:"plugins"`
	Log      logger.Config       `toml:"log"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Enabled   bool   `toml:"enabled"`
	Addr      string `toml:"addr" validate:"required_if=Enabled true"`
	StaticDir string `toml:"static_dir"`
}

// StoreConfig controls persistence and session recording.
type StoreConfig struct {
	Path string `toml:"path" validate:"required"`
	// Record stores every processed tick of live runs.
	Record bool `toml:"record"`
	// RecordBuffer is how many ticks may queue before the recorder drops.
	RecordBuffer int `toml:"record_buffer" validate:"gte=1"`
}

// PluginsConfig locates scene-control plugins.
type PluginsConfig struct {
	Dir       string `toml:"dir"`
	TimeoutMs int    `toml:"timeout_ms" validate:"gt=0"`
	// Config is passed verbatim to the plugin as JSON.
	Config map[string]interface{} `toml:"config"`
}

// Default returns the built-in configuration.
func Default() Config {
	pcfg := pipeline.DefaultConfig()
	logCfg := logger.DefaultConfig()
	logCfg.File = DefaultLogPath()

	return Config{
		Pipeline: pcfg,
		Tracker:  pcfg.Tracker,
		Pinch:    pcfg.Gesture.Pinch,
		Swipe:    pcfg.Gesture.Swipe,
		Zoom:     pcfg.Zoom,
		Dispatch: dispatch.DefaultConfig(),
		Camera:   capture.DefaultConfig(),
		Detector: detector.DefaultConfig(),
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8080",
		},
		Store: StoreConfig{
			Path:         DefaultDBPath(),
			Record:       true,
			RecordBuffer: 256,
		},
		Sink: sink.DefaultConfig(),
		Plugins: PluginsConfig{
			Dir:       DefaultPluginDir(),
			TimeoutMs: 2000,
		},
		Log: logCfg,
	}
}

// Load reads path over the defaults, applies .env and environment overrides
// and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("failed to decode config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to stat config: %w", err)
		}
	}

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvDB); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		c.Sink.NATSURL = v
	}
	if v := os.Getenv(EnvDispatch); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a boolean", ErrInvalid, EnvDispatch, v)
		}
		c.Dispatch.Enabled = enabled
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and binding semantics.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for _, b := range c.Dispatch.Bindings {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	for _, kind := range c.Sink.Kinds {
		if kind == "plugin" && c.Sink.Plugin == "" {
			return fmt.Errorf("%w: sink.plugin is required for the plugin sink", ErrInvalid)
		}
	}
	return nil
}

// PipelineConfig assembles the pipeline's tuning from its sections.
func (c Config) PipelineConfig() pipeline.Config {
	p := c.Pipeline
	p.Tracker = c.Tracker
	p.Gesture = gesture.Config{Pinch: c.Pinch, Swipe: c.Swipe}
	p.Zoom = c.Zoom
	return p
}

// Encode writes c as TOML, used by `handscene config`.
func (c Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

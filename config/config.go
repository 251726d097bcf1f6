// Package config provides engine tuning and runtime settings that are not part
// of a simulation spec.
package config

import (
	_ "embed"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"runtime"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all engine configuration parameters.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Surface SurfaceConfig `yaml:"surface"`
	Density DensityConfig `yaml:"density"`
	Runtime RuntimeConfig `yaml:"runtime"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// EngineConfig tunes ton tracing.
type EngineConfig struct {
	MaxBounces       int        `yaml:"max_bounces"`       // Trajectory ends after this many contacts
	ParabolaSegments int        `yaml:"parabola_segments"` // Rays per parabolic hop
	Gravity          [3]float64 `yaml:"gravity"`           // Fall and default flow direction
	Seed             uint64     `yaml:"seed" env:"WEATHERING_SEED"`
}

// SurfaceConfig tunes surfel sampling.
type SurfaceConfig struct {
	Oversampling int `yaml:"oversampling"` // Candidate darts per accepted surfel
}

// DensityConfig holds the colours of density textures as RGBA.
type DensityConfig struct {
	Undefined [4]uint8 `yaml:"undefined"`
	Min       [4]uint8 `yaml:"min"`
	Max       [4]uint8 `yaml:"max"`
}

// RuntimeConfig holds process settings, all overridable from the environment.
type RuntimeConfig struct {
	Threads      int    `yaml:"threads" env:"WEATHERING_THREADS"` // 0 = GOMAXPROCS
	LogLevel     string `yaml:"log_level" env:"WEATHERING_LOG_LEVEL"`
	LogFormat    string `yaml:"log_format" env:"WEATHERING_LOG_FORMAT"` // json or text
	OTelEndpoint string `yaml:"otel_endpoint" env:"WEATHERING_OTEL_ENDPOINT"`
	PerfCSV      string `yaml:"perf_csv" env:"WEATHERING_PERF_CSV"` // Per-iteration phase timings
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	Gravity          mgl32.Vec3
	Threads          int
	LogLevel         slog.Level
	DensityUndefined color.NRGBA
	DensityMin       color.NRGBA
	DensityMax       color.NRGBA
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Load loads configuration from a YAML file, merging with embedded defaults,
// then applies WEATHERING_* environment overrides.
// If path is empty, only embedded defaults and the environment are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Unmarshal into same struct - only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Unset variables leave the loaded values alone.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.computeDerived(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() error {
	g := c.Engine.Gravity
	c.Derived.Gravity = mgl32.Vec3{float32(g[0]), float32(g[1]), float32(g[2])}
	if c.Derived.Gravity.Len() == 0 {
		return fmt.Errorf("engine.gravity must not be zero")
	}

	c.Derived.Threads = c.Runtime.Threads
	if c.Derived.Threads <= 0 {
		c.Derived.Threads = runtime.GOMAXPROCS(0)
	}

	if err := c.Derived.LogLevel.UnmarshalText([]byte(c.Runtime.LogLevel)); err != nil {
		return fmt.Errorf("runtime.log_level: %w", err)
	}
	switch strings.ToLower(c.Runtime.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("runtime.log_format must be json or text, got %q", c.Runtime.LogFormat)
	}

	rgba := func(v [4]uint8) color.NRGBA { return color.NRGBA{R: v[0], G: v[1], B: v[2], A: v[3]} }
	c.Derived.DensityUndefined = rgba(c.Density.Undefined)
	c.Derived.DensityMin = rgba(c.Density.Min)
	c.Derived.DensityMax = rgba(c.Density.Max)
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

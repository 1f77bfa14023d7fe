package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xtding233/pullsim/internal/gacha"
)

// Config is the process configuration for the server and CLI.
// Optional curve fields are pointers so a file can override a single
// knob without restating the defaults.
type Config struct {
	Listen  string        `yaml:"listen"`
	Workers int           `yaml:"workers"` // 0 means NumCPU
	Backend BackendConfig `yaml:"backend"`
	Curve   *CurveConfig  `yaml:"curve,omitempty"`
	Run     RunConfig     `yaml:"run"`
}

type BackendConfig struct {
	Enabled bool `yaml:"enabled"`
}

type CurveConfig struct {
	Base      *float64 `yaml:"base,omitempty"`
	SoftStart *int     `yaml:"soft_start,omitempty"`
	Increment *float64 `yaml:"increment,omitempty"`
	HardPity  *int     `yaml:"hard_pity,omitempty"`
}

// RunConfig is the default run shape; API or CLI parameters override it
// per request.
type RunConfig struct {
	Trials     uint64           `yaml:"trials"`
	BasePity   int              `yaml:"base_pity"`
	Seed       uint64           `yaml:"seed"`
	Categories []gacha.Category `yaml:"categories"`
}

func Default() Config {
	return Config{
		Listen:  ":8080",
		Backend: BackendConfig{Enabled: true},
		Run: RunConfig{
			Trials: 100000,
			Categories: []gacha.Category{
				{Name: "featured", Weight: 1, Target: 1},
				{Name: "off-banner", Weight: 1, Target: 0},
			},
		},
	}
}

// Load reads a YAML config file merged over the defaults, then applies
// environment overrides. A missing file is not an error; the defaults
// stand.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PULLSIM_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PULLSIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Workers = n
		}
	}
	if v := os.Getenv("PULLSIM_BACKEND_ENABLED"); v != "" {
		cfg.Backend.Enabled = v == "true" || v == "1"
	}
}

// PityCurve resolves the effective curve: defaults with any file
// overrides applied.
func (c Config) PityCurve() gacha.Curve {
	curve := gacha.DefaultCurve()
	if c.Curve == nil {
		return curve
	}
	if c.Curve.Base != nil {
		curve.Base = *c.Curve.Base
	}
	if c.Curve.SoftStart != nil {
		curve.SoftStart = *c.Curve.SoftStart
	}
	if c.Curve.Increment != nil {
		curve.Increment = *c.Curve.Increment
	}
	if c.Curve.HardPity != nil {
		curve.HardPity = *c.Curve.HardPity
	}
	return curve
}

// Validate checks semantic constraints of a Config.
func Validate(cfg Config) error {
	var errs []string

	if cfg.Workers < 0 {
		errs = append(errs, "workers must be >= 0")
	}
	curve := cfg.PityCurve()
	if err := curve.Validate(); err != nil {
		errs = append(errs, "curve is invalid")
	}
	if cfg.Run.Trials == 0 {
		errs = append(errs, "run.trials must be >= 1")
	}
	if cfg.Run.BasePity < 0 || cfg.Run.BasePity >= curve.HardPity {
		errs = append(errs, fmt.Sprintf("run.base_pity must be in [0,%d)", curve.HardPity))
	}
	if err := gacha.ValidateCategories(cfg.Run.Categories); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

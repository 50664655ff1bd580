// Authors: Rohan Adla, Arrio Gonsalves, Shreyan Nalwad, Dylan Setiawan
// Date: Oct 18th 2026
// Project: Latent VAR Granger Causality from Noisy Multichannel Recordings
// Class: 02-613 at Caregie Mellon University

// Package config loads run settings from defaults, an optional YAML file, a
// .env file and LVARGC_ environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"latentgc/internal/analysis"
	"latentgc/internal/logging"
	"latentgc/internal/lvar"
)

// EnvPrefix prefixes every environment override, e.g. LVARGC_MODEL_ORDER.
const EnvPrefix = "LVARGC"

// ModelConfig holds the latent VAR structure.
type ModelConfig struct {
	Order       int `mapstructure:"order" yaml:"order"`
	SelfHistory int `mapstructure:"self_history" yaml:"self_history"`
	Eigenmodes  int `mapstructure:"eigenmodes" yaml:"eigenmodes"`
}

// FitConfig holds the EM and regularization settings.
type FitConfig struct {
	Grid          []float64 `mapstructure:"grid" yaml:"grid"`
	UsePair       bool      `mapstructure:"use_pair" yaml:"use_pair"`
	PairSelf      float64   `mapstructure:"pair_self" yaml:"pair_self"`
	PairCross     float64   `mapstructure:"pair_cross" yaml:"pair_cross"`
	Folds         int       `mapstructure:"folds" yaml:"folds"`
	UseES         bool      `mapstructure:"use_es" yaml:"use_es"`
	ESHeldOut     bool      `mapstructure:"es_held_out" yaml:"es_held_out"`
	MaxIter       int       `mapstructure:"max_iter" yaml:"max_iter"`
	MaxCyclicIter int       `mapstructure:"max_cyclic_iter" yaml:"max_cyclic_iter"`
	RelTol        float64   `mapstructure:"rel_tol" yaml:"rel_tol"`
	Alpha         float64   `mapstructure:"alpha" yaml:"alpha"`
	Beta          float64   `mapstructure:"beta" yaml:"beta"`
	UseBLAS       bool      `mapstructure:"use_blas" yaml:"use_blas"`
}

// LinkConfig holds the link selection settings.
type LinkConfig struct {
	Segments       int     `mapstructure:"segments" yaml:"segments"`
	SparsityFactor float64 `mapstructure:"sparsity_factor" yaml:"sparsity_factor"`
	VarThr         float64 `mapstructure:"var_thr" yaml:"var_thr"`
	// Regions to test; empty means all
	Regions []int `mapstructure:"regions" yaml:"regions"`
}

// Config is the full run configuration.
type Config struct {
	Name      string         `mapstructure:"name" yaml:"name"`
	Model     ModelConfig    `mapstructure:"model" yaml:"model"`
	Fit       FitConfig      `mapstructure:"fit" yaml:"fit"`
	Links     LinkConfig     `mapstructure:"links" yaml:"links"`
	Normalize bool           `mapstructure:"normalize" yaml:"normalize"`
	Noise     float64        `mapstructure:"noise" yaml:"noise"`
	Workers   int            `mapstructure:"workers" yaml:"workers"`
	Logging   logging.Config `mapstructure:"logging" yaml:"logging"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	d := analysis.DefaultConfig()
	return &Config{
		Name: "lvargc",
		Model: ModelConfig{
			Order:       d.Order,
			SelfHistory: d.SelfHistory,
			Eigenmodes:  d.Eigenmodes,
		},
		Fit: FitConfig{
			Grid:          d.Grid,
			Folds:         d.Folds,
			UseES:         d.UseES,
			MaxIter:       d.MaxIter,
			MaxCyclicIter: d.MaxCyclicIter,
			RelTol:        d.RelTol,
		},
		Links: LinkConfig{
			Segments: d.Segments,
			VarThr:   d.VarThr,
		},
		Normalize: d.Normalize,
		Noise:     1,
		Logging:   logging.Config{Level: "info", Format: "text"},
	}
}

// setDefaults registers every key so that environment overrides resolve.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("name", d.Name)
	v.SetDefault("model.order", d.Model.Order)
	v.SetDefault("model.self_history", d.Model.SelfHistory)
	v.SetDefault("model.eigenmodes", d.Model.Eigenmodes)
	v.SetDefault("fit.grid", d.Fit.Grid)
	v.SetDefault("fit.use_pair", d.Fit.UsePair)
	v.SetDefault("fit.pair_self", d.Fit.PairSelf)
	v.SetDefault("fit.pair_cross", d.Fit.PairCross)
	v.SetDefault("fit.folds", d.Fit.Folds)
	v.SetDefault("fit.use_es", d.Fit.UseES)
	v.SetDefault("fit.es_held_out", d.Fit.ESHeldOut)
	v.SetDefault("fit.max_iter", d.Fit.MaxIter)
	v.SetDefault("fit.max_cyclic_iter", d.Fit.MaxCyclicIter)
	v.SetDefault("fit.rel_tol", d.Fit.RelTol)
	v.SetDefault("fit.alpha", d.Fit.Alpha)
	v.SetDefault("fit.beta", d.Fit.Beta)
	v.SetDefault("fit.use_blas", d.Fit.UseBLAS)
	v.SetDefault("links.segments", d.Links.Segments)
	v.SetDefault("links.sparsity_factor", d.Links.SparsityFactor)
	v.SetDefault("links.var_thr", d.Links.VarThr)
	v.SetDefault("links.regions", d.Links.Regions)
	v.SetDefault("normalize", d.Normalize)
	v.SetDefault("noise", d.Noise)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// Load reads the configuration. path may be empty, in which case only
// defaults and the environment apply. envFile names a dotenv file loaded
// into the environment first; a missing file is not an error.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the settings that the analysis cannot recover from.
func (c *Config) Validate() error {
	switch {
	case c.Model.Order < 1:
		return &ConfigError{Field: "model.order", Message: "must be at least 1"}
	case c.Model.SelfHistory < 0 || c.Model.SelfHistory > c.Model.Order:
		return &ConfigError{Field: "model.self_history", Message: "must be in [0, order]"}
	case c.Model.Eigenmodes < 1:
		return &ConfigError{Field: "model.eigenmodes", Message: "must be at least 1"}
	case !c.Fit.UsePair && len(c.Fit.Grid) == 0:
		return &ConfigError{Field: "fit.grid", Message: "needs at least one value"}
	case c.Fit.UsePair && (c.Fit.PairSelf < 0 || c.Fit.PairCross < 0):
		return &ConfigError{Field: "fit.pair", Message: "strengths must be non-negative"}
	case c.Links.Segments < 1:
		return &ConfigError{Field: "links.segments", Message: "must be at least 1"}
	case c.Links.VarThr <= 0 || c.Links.VarThr > 1:
		return &ConfigError{Field: "links.var_thr", Message: "must be in (0, 1]"}
	case !c.Normalize && c.Noise <= 0:
		return &ConfigError{Field: "noise", Message: "must be positive without normalization"}
	}
	for _, l := range c.Fit.Grid {
		if l < 0 {
			return &ConfigError{Field: "fit.grid", Message: "values must be non-negative"}
		}
	}
	return nil
}

// Analysis converts the configuration to analysis settings.
func (c *Config) Analysis() analysis.Config {
	ac := analysis.Config{
		Order:          c.Model.Order,
		SelfHistory:    c.Model.SelfHistory,
		Eigenmodes:     c.Model.Eigenmodes,
		Segments:       c.Links.Segments,
		Grid:           append([]float64(nil), c.Fit.Grid...),
		Folds:          c.Fit.Folds,
		UseES:          c.Fit.UseES,
		ESHeldOut:      c.Fit.ESHeldOut,
		MaxIter:        c.Fit.MaxIter,
		MaxCyclicIter:  c.Fit.MaxCyclicIter,
		RelTol:         c.Fit.RelTol,
		Alpha:          c.Fit.Alpha,
		Beta:           c.Fit.Beta,
		SparsityFactor: c.Links.SparsityFactor,
		VarThr:         c.Links.VarThr,
		Normalize:      c.Normalize,
		UseBLAS:        c.Fit.UseBLAS,
		Workers:        c.Workers,
	}
	if c.Fit.UsePair {
		ac.Pair = &lvar.Pair{Self: c.Fit.PairSelf, Cross: c.Fit.PairCross}
	}
	return ac
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

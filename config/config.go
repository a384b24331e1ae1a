// Package config loads and validates the service configuration from a file,
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/openrec/lemd/core/metrics"
	"github.com/openrec/lemd/infra/dataspace"
	"github.com/openrec/lemd/infra/pvgis"
)

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
}

func (c *HTTPConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("http: port %d is out of range", c.Port)
	}
	return nil
}

// StoreConfig configures the order store.
type StoreConfig struct {
	Path string `koanf:"path"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "lemd.db"
	}
}

// WorkersConfig sizes the order worker pool.
type WorkersConfig struct {
	PoolSize          int `koanf:"pool_size"`
	JobTimeoutSeconds int `koanf:"job_timeout_seconds"`
}

func (c *WorkersConfig) SetDefaults() {
	if c.PoolSize == 0 {
		c.PoolSize = 4
	}
}

func (c *WorkersConfig) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("workers: pool_size must be positive")
	}
	if c.JobTimeoutSeconds < 0 {
		return fmt.Errorf("workers: job_timeout_seconds must not be negative")
	}
	return nil
}

// DataspaceConfig groups the remote dataset origins.
type DataspaceConfig struct {
	INDATA dataspace.INDATAConfig `koanf:"indata"`
	SEL    dataspace.SELConfig    `koanf:"sel"`
}

// SolverConfig holds the loop-mode iteration defaults applied when a request
// leaves them unset.
type SolverConfig struct {
	MaxIterations int     `koanf:"max_iterations"`
	Tolerance     float64 `koanf:"tolerance"`
}

func (c *SolverConfig) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("solver: max_iterations must not be negative")
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("solver: tolerance must not be negative")
	}
	return nil
}

// Config is the root configuration of the service.
type Config struct {
	HTTP      HTTPConfig      `koanf:"http"`
	Store     StoreConfig     `koanf:"store"`
	Workers   WorkersConfig   `koanf:"workers"`
	Dataspace DataspaceConfig `koanf:"dataspace"`
	PVGIS     pvgis.Config    `koanf:"pvgis"`
	Solver    SolverConfig    `koanf:"solver"`
	Metrics   metrics.Config  `koanf:"metrics"`
}

// Load reads the configuration file at path, applies LEM_* environment
// overrides, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. LEM_HTTP__PORT=9090.
	if err := k.Load(env.Provider("LEM_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "lem_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills unset fields of every section.
func (c *Config) SetDefaults() {
	c.HTTP.SetDefaults()
	c.Store.SetDefaults()
	c.Workers.SetDefaults()
	c.Dataspace.INDATA.SetDefaults()
	c.Dataspace.SEL.SetDefaults()
	c.PVGIS.SetDefaults()
	c.Metrics.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return err
	}
	if err := c.Workers.Validate(); err != nil {
		return err
	}
	if err := c.Dataspace.INDATA.Validate(); err != nil {
		return err
	}
	if err := c.Dataspace.SEL.Validate(); err != nil {
		return err
	}
	if err := c.Solver.Validate(); err != nil {
		return err
	}
	return nil
}

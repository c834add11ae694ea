// Package config holds runtime configuration for the repcrec engine: the
// site/variable topology (§3 of SPEC_FULL.md) and the logging defaults used
// by the CLI entry point.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engine.
type Config struct {
	Topology Topology
	Logging  LoggingConfig
}

// LoggingConfig controls internal/obslog at startup.
type LoggingConfig struct {
	Level string // debug, info, warn, error
	JSON  bool
}

// Default returns the zero-config topology and logging defaults required by
// SPEC_FULL.md: 10 sites, 20 variables, every variable's committed value
// equal to 10 times its id.
func Default() *Config {
	return &Config{
		Topology: DefaultTopology(),
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// LoadFromEnv applies REPCREC_LOG_LEVEL, REPCREC_LOG_JSON, and
// REPCREC_TOPOLOGY_FILE on top of Default(), in that precedence order.
func LoadFromEnv() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("REPCREC_TOPOLOGY_FILE"); path != "" {
		topo, err := LoadTopologyFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading topology file: %w", err)
		}
		cfg.Topology = *topo
	}

	if level := os.Getenv("REPCREC_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if jsonStr := os.Getenv("REPCREC_LOG_JSON"); jsonStr != "" {
		if b, err := strconv.ParseBool(jsonStr); err == nil {
			cfg.Logging.JSON = b
		}
	}

	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	return c.Topology.Validate()
}

// rawTopologyFile is the on-disk YAML shape accepted by LoadTopologyFile. A
// file only needs to set the fields it wants to override; zero values fall
// back to DefaultTopology().
type rawTopologyFile struct {
	SiteCount        int `yaml:"site_count"`
	VariableCount    int `yaml:"variable_count"`
	InitialValueStep int `yaml:"initial_value_step"`
}

// LoadTopologyFile reads a YAML topology override (see SPEC_FULL.md §3.1)
// from path and merges it over DefaultTopology().
func LoadTopologyFile(path string) (*Topology, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology file %s: %w", path, err)
	}

	var raw rawTopologyFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing topology file %s: %w", path, err)
	}

	topo := DefaultTopology()
	if raw.SiteCount > 0 {
		topo.SiteCount = raw.SiteCount
	}
	if raw.VariableCount > 0 {
		topo.VariableCount = raw.VariableCount
	}
	if raw.InitialValueStep > 0 {
		topo.InitialValueStep = raw.InitialValueStep
	}

	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology file %s: %w", path, err)
	}
	return &topo, nil
}

// Package config loads the settings of the simulator from a YAML or JSON
// file with environment overrides.
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

	"github.com/kilianp07/flexmarket/core/factory"
	"github.com/kilianp07/flexmarket/core/metrics"
	"github.com/kilianp07/flexmarket/core/runlog"
	"github.com/kilianp07/flexmarket/infra/monitoring"
	"github.com/kilianp07/flexmarket/infra/mqtt"
	"github.com/kilianp07/flexmarket/infra/runstore"
)

// EnvPrefix prefixes the environment overrides. FLEX_SIMULATION__TOLERANCE
// sets simulation.tolerance.
const EnvPrefix = "FLEX_"

type Config struct {
	Simulation SimulationConfig     `json:"simulation"`
	Solver     factory.ModuleConfig `json:"solver"`
	Log        LogConfig            `json:"log"`
	RunLog     runlog.Config        `json:"runlog"`
	Metrics    metrics.Config       `json:"metrics"`
	MQTT       mqtt.Config          `json:"mqtt"`
	Sentry     monitoring.Config    `json:"sentry"`
	RunStore   runstore.Config      `json:"runstore"`
	Batch      BatchConfig          `json:"batch"`
	API        APIConfig            `json:"api"`
}

// Default returns a configuration with every section defaulted.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

// Load reads path, applies the environment overrides, the defaults and
// validates the result. An empty path only reads the environment.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
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
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) SetDefaults() {
	c.Simulation.SetDefaults()
	if c.Solver.Type == "" {
		c.Solver.Type = "scip"
	}
	c.Log.SetDefaults()
	c.RunLog.SetDefaults()
	c.MQTT.SetDefaults()
	c.RunStore.SetDefaults()
	c.Batch.SetDefaults()
	c.API.SetDefaults()
}

func (c Config) Validate() error {
	if err := c.Simulation.Validate(); err != nil {
		return fmt.Errorf("simulation: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := c.RunLog.Validate(); err != nil {
		return fmt.Errorf("runlog: %w", err)
	}
	if c.MQTT.Enabled() {
		if err := c.MQTT.Validate(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	if err := c.RunStore.Validate(); err != nil {
		return err
	}
	if err := c.Batch.Validate(); err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	return nil
}

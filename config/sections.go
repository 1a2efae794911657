package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/market"
)

// SimulationConfig tunes one simulated day.
type SimulationConfig struct {
	MaxIterations int     `json:"max_iterations"`
	Tolerance     float64 `json:"tolerance"`
	// OPF is "" for the default DSO models or "linearOpf".
	OPF string `json:"opf"`
	// WorkspaceDir holds the per-run solver workspaces. Empty selects the
	// system temporary directory.
	WorkspaceDir  string `json:"workspace_dir"`
	ModelDir      string `json:"model_dir"`
	KeepWorkspace bool   `json:"keep_workspace"`
	// Output is the result file of a single run. Its extension selects the
	// format.
	Output string `json:"output"`
}

func (c *SimulationConfig) SetDefaults() {
	if c.MaxIterations == 0 {
		c.MaxIterations = agent.DefaultMaxIterations
	}
	if c.Tolerance == 0 {
		c.Tolerance = agent.DefaultAccuracy
	}
	if c.ModelDir == "" {
		c.ModelDir = "models"
	}
}

func (c SimulationConfig) Validate() error {
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	if _, err := c.OPFMethod(); err != nil {
		return err
	}
	return nil
}

// OPFMethod parses OPF.
func (c SimulationConfig) OPFMethod() (market.OPFMethod, error) {
	switch strings.ToLower(c.OPF) {
	case "", "default":
		return market.OPFDefault, nil
	case strings.ToLower(string(market.OPFLinear)), "linear":
		return market.OPFLinear, nil
	}
	return "", fmt.Errorf("unknown opf method %q", c.OPF)
}

// LogConfig sets the global log level.
type LogConfig struct {
	Level string `json:"level"`
}

func (c *LogConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = zerolog.InfoLevel.String()
	}
}

func (c LogConfig) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("level %q: %w", c.Level, err)
	}
	return nil
}

// BatchConfig drives the multi-day runner.
type BatchConfig struct {
	Workers      int  `json:"workers"`
	SkipExisting bool `json:"skip_existing"`
	// OutputDir receives <day>.xml and <day>-error.txt. Empty selects the
	// days directory.
	OutputDir string `json:"output_dir"`
	// Format is the extension of the day results.
	Format string `json:"format"`
	// Summary is the multi-day CSV file. Empty disables it.
	Summary string `json:"summary"`
}

func (c *BatchConfig) SetDefaults() {
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.Format == "" {
		c.Format = ".xml"
	}
	if !strings.HasPrefix(c.Format, ".") {
		c.Format = "." + c.Format
	}
}

func (c BatchConfig) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	switch strings.ToLower(c.Format) {
	case ".xml", ".json", ".zip", ".html":
	default:
		return fmt.Errorf("unknown result format %q", c.Format)
	}
	return nil
}

// APIConfig serves the run history.
type APIConfig struct {
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token.
	Token string `json:"token"`
}

func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Package logger provides the zerolog implementation of the simulation
// logging contract.
package logger

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/flexmarket/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// New returns a Logger for the given component. The environment is detected
// via the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// SetLevel sets the global level from its name ("debug", "info", ...). An
// empty name selects info.
func SetLevel(name string) error {
	if strings.TrimSpace(name) == "" {
		name = zerolog.InfoLevel.String()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

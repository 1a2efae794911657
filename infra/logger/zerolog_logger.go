package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger implements Logger using rs/zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

// NewZerologLogger creates a ZerologLogger writing to stderr, using the
// APP_ENV environment variable to determine the output format. All logs
// include the provided component field.
func NewZerologLogger(component string) Logger {
	var w io.Writer = os.Stderr
	if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(component, w)
}

// NewWithWriter creates a JSON logger writing to w.
func NewWithWriter(component string, w io.Writer) Logger {
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &ZerologLogger{log: z}
}

// With returns a logger carrying an additional string field.
func (l *ZerologLogger) With(key, value string) Logger {
	return &ZerologLogger{log: l.log.With().Str(key, value).Logger()}
}

func (l *ZerologLogger) Debugf(format string, args ...any) {
	l.log.Debug().Msgf(format, args...)
}

func (l *ZerologLogger) Debugw(msg string, fields map[string]any) {
	ev := l.log.Debug()
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *ZerologLogger) Infof(format string, args ...any) {
	l.log.Info().Msgf(format, args...)
}

func (l *ZerologLogger) Warnf(format string, args ...any) {
	l.log.Warn().Msgf(format, args...)
}

func (l *ZerologLogger) Errorf(format string, args ...any) {
	l.log.Error().Msgf(format, args...)
}

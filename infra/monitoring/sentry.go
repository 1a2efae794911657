// Package monitoring reports run failures to Sentry.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	coremon "github.com/kilianp07/flexmarket/core/monitoring"
)

// Config defines settings for Sentry error monitoring.
type Config struct {
	DSN              string  `json:"dsn"`
	Environment      string  `json:"environment"`
	TracesSampleRate float64 `json:"traces_sample_rate"`
	Release          string  `json:"release"`
}

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. An empty DSN disables reporting.
func NewSentryMonitor(cfg Config) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
	})
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{hub: sentry.CurrentHub()}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	if len(tags) == 0 {
		s.hub.CaptureException(err)
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		s.hub.CaptureException(err)
	})
}

func (s *sentryMonitor) Recover() {
	if r := recover(); r != nil {
		s.hub.Recover(r)
		s.hub.Flush(2 * time.Second)
		panic(r)
	}
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }

// Package monitoring forwards run failures to an error reporting backend.
// The Sentry implementation lives in infra/monitoring.
package monitoring

import (
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// CaptureRun records the failure of a simulated day.
func CaptureRun(err error, runID, instance string) {
	CaptureException(err, map[string]string{"module": "simulation", "run_id": runID, "instance": instance})
}

// Recover captures panics in goroutines. It must be deferred directly.
func Recover() {
	get().Recover()
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	get().Flush(d)
}

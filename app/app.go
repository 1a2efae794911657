// Package app wires the simulation with its solver, progress publishing,
// metrics, iteration log and result store.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/flexmarket/config"
	"github.com/kilianp07/flexmarket/core/events"
	"github.com/kilianp07/flexmarket/core/factory"
	coremetrics "github.com/kilianp07/flexmarket/core/metrics"
	"github.com/kilianp07/flexmarket/core/monitoring"
	"github.com/kilianp07/flexmarket/core/runlog"
	"github.com/kilianp07/flexmarket/core/solver"
	"github.com/kilianp07/flexmarket/infra/engine"
	"github.com/kilianp07/flexmarket/infra/logger"
	"github.com/kilianp07/flexmarket/infra/metrics"
	inframon "github.com/kilianp07/flexmarket/infra/monitoring"
	"github.com/kilianp07/flexmarket/infra/mqtt"
	"github.com/kilianp07/flexmarket/infra/runstore"
	"github.com/kilianp07/flexmarket/internal/eventbus"
)

// App runs simulated days with the configured collaborators.
type App struct {
	cfg *config.Config
	log logger.Logger

	solver  solver.Solver
	runner  engine.Runner
	sink    coremetrics.Sink
	promReg *prometheus.Registry
	bus     *eventbus.TypedBus[events.Event]
	pub     mqtt.Publisher
	store   runlog.Store
	runs    *runstore.Store

	consumers []<-chan struct{}
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Option customizes an App.
type Option func(*App)

// WithSolver replaces the configured solver.
func WithSolver(s solver.Solver) Option { return func(a *App) { a.solver = s } }

// WithRunner runs the engine binaries through r.
func WithRunner(r engine.Runner) Option { return func(a *App) { a.runner = r } }

// WithPublisher replaces the MQTT publisher.
func WithPublisher(p mqtt.Publisher) Option { return func(a *App) { a.pub = p } }

// WithRunStore replaces the Redis result store.
func WithRunStore(s *runstore.Store) Option { return func(a *App) { a.runs = s } }

// WithLogger replaces the application logger.
func WithLogger(l logger.Logger) Option { return func(a *App) { a.log = l } }

// New builds the collaborators described by cfg.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, promReg: prometheus.NewRegistry()}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = logger.New("app")
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	mon, err := inframon.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	monitoring.Init(mon)

	if a.solver == nil {
		reg := factory.NewRegistry[solver.Solver]()
		if err := engine.Register(reg, a.runner, logger.New("solver")); err != nil {
			return nil, err
		}
		if a.solver, err = reg.Create(cfg.Solver); err != nil {
			return nil, fmt.Errorf("solver: %w", err)
		}
	}

	sinks := coremetrics.NewRegistry()
	if err := metrics.Register(sinks, a.promReg, logger.New("metrics")); err != nil {
		return nil, err
	}
	if a.sink, err = coremetrics.New(sinks, cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if a.store, err = runlog.Open(cfg.RunLog); err != nil {
		return nil, fmt.Errorf("runlog: %w", err)
	}

	if a.pub == nil && cfg.MQTT.Enabled() {
		client, err := mqtt.NewPahoClient(cfg.MQTT, logger.New("mqtt"))
		if err != nil {
			a.log.Warnf("mqtt unavailable, progress is not published: %v", err)
		} else {
			a.pub = client
		}
	}

	if a.runs == nil && cfg.RunStore.Enabled() {
		if a.runs, err = runstore.New(cfg.RunStore); err != nil {
			return nil, fmt.Errorf("runstore: %w", err)
		}
	}

	a.bus = eventbus.NewTyped[events.Event](eventbus.DefaultBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.consumers = append(a.consumers, metrics.StartEventCollector(ctx, a.bus, a.sink, logger.New("metrics")))
	if a.pub != nil {
		a.consumers = append(a.consumers, mqtt.Forward(ctx, a.bus, a.pub, logger.New("mqtt")))
	}
	if addr := cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, a.promReg, a.log); err != nil {
				a.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return a, nil
}

// Gatherer exposes the Prometheus registry of the sinks.
func (a *App) Gatherer() prometheus.Gatherer { return a.promReg }

// Close drains the event consumers and releases every connection.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.bus.Close()
		timeout := time.After(5 * time.Second)
		for _, done := range a.consumers {
			select {
			case <-done:
			case <-timeout:
			}
		}
		a.cancel()
		if a.bus.Dropped() > 0 {
			a.log.Warnf("%d events dropped on full subscriber buffers", a.bus.Dropped())
		}
		if a.pub != nil {
			a.pub.Disconnect()
		}
		coremetrics.Close(a.sink)
		err = a.store.Close()
		if a.runs != nil {
			if cerr := a.runs.Close(); err == nil {
				err = cerr
			}
		}
		monitoring.Flush(2 * time.Second)
	})
	return err
}

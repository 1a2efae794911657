// Package metrics defines the sinks recording the progress of simulated
// days. Sinks like PromSink and InfluxSink, implemented in infra/metrics,
// record iterations, finished runs and solver calls. New returns a
// MultiSink automatically when several sinks are configured.
package metrics

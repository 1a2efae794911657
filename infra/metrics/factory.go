package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/flexmarket/core/factory"
	"github.com/kilianp07/flexmarket/core/logger"
	coremetrics "github.com/kilianp07/flexmarket/core/metrics"
)

// Sink types.
const (
	TypePrometheus = "prometheus"
	TypeInflux     = "influx"
)

// Register adds the built-in sinks to reg. Prometheus metrics are registered
// on promReg, or the default registerer when nil.
func Register(reg *coremetrics.Registry, promReg prometheus.Registerer, log logger.Logger) error {
	if err := reg.Register(TypePrometheus, func(map[string]any) (coremetrics.Sink, error) {
		return NewPromSink(promReg)
	}); err != nil {
		return err
	}
	return reg.Register(TypeInflux, func(conf map[string]any) (coremetrics.Sink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c, log), nil
	})
}

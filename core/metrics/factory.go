package metrics

import "github.com/kilianp07/flexmarket/core/factory"

// Registry holds the sink factories.
type Registry = factory.Registry[Sink]

// NewRegistry returns a registry holding the "nop" sink.
func NewRegistry() *Registry {
	reg := factory.NewRegistry[Sink]()
	_ = reg.Register("nop", func(map[string]any) (Sink, error) { return NopSink{}, nil })
	return reg
}

// New creates a Sink from the provided configuration.
func New(reg *Registry, cfgs []factory.ModuleConfig) (Sink, error) {
	if len(cfgs) == 0 {
		return NopSink{}, nil
	}
	if len(cfgs) == 1 {
		return reg.Create(cfgs[0])
	}
	sinks := make([]Sink, len(cfgs))
	for i, c := range cfgs {
		s, err := reg.Create(c)
		if err != nil {
			return nil, err
		}
		sinks[i] = s
	}
	return NewMultiSink(sinks...), nil
}

// Package factory provides a small generic registry used to instantiate
// pluggable modules (solver engines, metrics sinks, iteration log stores)
// from configuration. A module is defined by a type string and a map of raw
// settings that the factory decodes into its own typed struct.
//
//	reg := factory.NewRegistry[solver.Solver]()
//	reg.Register("scip", func(conf map[string]any) (solver.Solver, error) {
//	    var c engine.SCIPConfig
//	    if err := factory.Decode(conf, &c); err != nil {
//	        return nil, err
//	    }
//	    return engine.NewSCIP(c, nil, nil), nil
//	})
//	s, err := reg.Create(factory.ModuleConfig{Type: "scip", Conf: map[string]any{"timeLimit": 60}})
package factory

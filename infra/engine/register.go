package engine

import (
	"github.com/kilianp07/flexmarket/core/factory"
	"github.com/kilianp07/flexmarket/core/logger"
	"github.com/kilianp07/flexmarket/core/solver"
)

// Module types of the engines.
const (
	TypeSCIP  = "scip"
	TypeCPLEX = "cplex"
)

// Register adds the SCIP and CPLEX factories to reg. Engines run their
// binaries through r, or os/exec when r is nil.
func Register(reg *factory.Registry[solver.Solver], r Runner, log logger.Logger) error {
	if err := reg.Register(TypeSCIP, func(conf map[string]any) (solver.Solver, error) {
		var c SCIPConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewSCIP(c, r, log), nil
	}); err != nil {
		return err
	}
	return reg.Register(TypeCPLEX, func(conf map[string]any) (solver.Solver, error) {
		var c CPLEXConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewCPLEX(c, r, log), nil
	})
}

package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kilianp07/flexmarket/config"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/infra/engine"
)

type runFlags struct {
	output        string
	maxIterations int
	tolerance     float64
	cplex         bool
	linearOPF     bool
	debug         bool
}

func newRunCmd(o *options) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run <instance>",
		Short: "Simulate one day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.load()
			if err != nil {
				return err
			}
			f.apply(cmd, cfg)
			output := cfg.Simulation.Output
			if output == "" {
				output = filepath.Base(filepath.Clean(args[0])) + ".xml"
			}

			ctx, a, done, err := o.start(cmd, cfg)
			if err != nil {
				return err
			}
			defer done()
			res, err := a.Run(ctx, args[0], output)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.output, "output", "o", "", "result file (.xml, .json, .zip or .html)")
	fl.IntVar(&f.maxIterations, "maxiterations", 0, "maximum number of iterations")
	fl.Float64VarP(&f.tolerance, "tolerance", "t", 0, "convergence tolerance")
	fl.BoolVar(&f.cplex, "cplex", false, "solve with CPLEX")
	fl.BoolVarP(&f.linearOPF, "linearopf", "l", false, "use the linear OPF models of the DSO")
	fl.BoolVar(&f.debug, "debug", false, "debug logs and keep the workspace")
	return cmd
}

// apply overrides cfg with the flags set on the command line.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	fl := cmd.Flags()
	if fl.Changed("output") {
		cfg.Simulation.Output = f.output
	}
	if fl.Changed("maxiterations") {
		cfg.Simulation.MaxIterations = f.maxIterations
	}
	if fl.Changed("tolerance") {
		cfg.Simulation.Tolerance = f.tolerance
	}
	if f.cplex {
		cfg.Solver.Type = engine.TypeCPLEX
	}
	if f.linearOPF {
		cfg.Simulation.OPF = string(market.OPFLinear)
	}
	if f.debug {
		cfg.Log.Level = "debug"
		cfg.Simulation.KeepWorkspace = true
	}
}

package engine

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/kilianp07/flexmarket/core/logger"
	"github.com/kilianp07/flexmarket/core/solver"
)

// DefaultCPLEXBinary is the CPLEX interactive optimizer.
const DefaultCPLEXBinary = "cplex"

// CPLEXConfig configures the CPLEX backend. SCIP is still used to translate
// the ZIMPL model into an LP file.
type CPLEXConfig struct {
	Binary     string `json:"binary"`
	SCIPBinary string `json:"scipBinary"`
	TimeLimit  int    `json:"timeLimit"`
	MaxTrials  int    `json:"maxTrials"`
}

// SetDefaults fills unset fields.
func (c *CPLEXConfig) SetDefaults() {
	if c.Binary == "" {
		c.Binary = DefaultCPLEXBinary
	}
	if c.SCIPBinary == "" {
		c.SCIPBinary = DefaultSCIPBinary
	}
	if c.MaxTrials < 1 {
		c.MaxTrials = DefaultMaxTrials
	}
	if c.TimeLimit < 0 {
		c.TimeLimit = 0
	}
}

// CPLEX solves the LP translation of the ZIMPL models.
type CPLEX struct {
	cfg    CPLEXConfig
	runner Runner
	log    logger.Logger
}

// NewCPLEX returns a CPLEX backend. A nil runner runs the real binaries.
func NewCPLEX(cfg CPLEXConfig, r Runner, log logger.Logger) *CPLEX {
	cfg.SetDefaults()
	if r == nil {
		r = ExecRunner{}
	}
	return &CPLEX{cfg: cfg, runner: r, log: logger.OrNop(log)}
}

// TranslateArgs returns the scip arguments writing the LP file of p.
func (c *CPLEX) TranslateArgs(p solver.Problem) []string {
	return []string{"-c", "read " + p.Model + ".zpl", "-c", "write problem " + p.SolutionName() + ".lp", "-c", "q"}
}

// Args returns the cplex arguments solving the LP file of p.
func (c *CPLEX) Args(p solver.Problem) []string {
	sol := p.SolutionName()
	args := []string{"-c", "set logfile *"}
	if c.cfg.TimeLimit > 0 {
		args = append(args, "-c", fmt.Sprintf("set timelimit %d", c.cfg.TimeLimit))
	}
	return append(args, "-c", "set lpmethod 1", "read "+sol+".lp", "opt", "write "+sol+".sol", "y", "quit")
}

func (c *CPLEX) Solve(ctx context.Context, ws *solver.Workspace, p solver.Problem) (*solver.Solution, error) {
	if err := ws.Write(p.Inputs...); err != nil {
		return nil, err
	}
	lp, file := p.SolutionName()+".lp", p.SolutionName()+".sol"
	for _, name := range []string{lp, file} {
		if err := ws.Remove(name); err != nil {
			return nil, err
		}
	}

	c.log.Debugf("cplex %s", p.Model)
	args := c.TranslateArgs(p)
	out, attempts, err := call(ctx, c.runner, ws.Dir(), c.cfg.MaxTrials, c.cfg.SCIPBinary, args...)
	cmd := commandLine(c.cfg.SCIPBinary, args)
	if err == nil && !ws.Exists(lp) {
		err = fmt.Errorf("%w: %s", ErrNoSolution, lp)
	}
	if err != nil {
		return nil, &solver.CallError{Model: p.Model, Command: cmd, Output: string(out), Attempts: attempts, Err: err}
	}

	args = c.Args(p)
	out, attempts, err = call(ctx, c.runner, ws.Dir(), c.cfg.MaxTrials, c.cfg.Binary, args...)
	cmd = commandLine(c.cfg.Binary, args)
	if err != nil {
		return nil, &solver.CallError{Model: lp, Command: cmd, Output: string(out), Attempts: attempts, Err: err}
	}
	raw, err := ws.ReadFile(file)
	if err != nil {
		return nil, &solver.CallError{Model: lp, Command: cmd, Output: string(out), Attempts: attempts, Err: fmt.Errorf("%w: %s", ErrNoSolution, file)}
	}
	sol, err := ParseCPLEXSolution(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	sol.Model = p.Model
	sol.File = file
	sol.Debug = "\tCommand: " + cmd + "\n"
	return sol, nil
}

type cplexSolution struct {
	Header struct {
		ObjectiveValue       string `xml:"objectiveValue,attr"`
		SolutionStatusString string `xml:"solutionStatusString,attr"`
		PrimalFeasible       string `xml:"primalFeasible,attr"`
	} `xml:"header"`
	Variables []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:"value,attr"`
	} `xml:"variables>variable"`
}

// ParseCPLEXSolution reads a CPLEX XML solution. Without a header the
// solution is infeasible with status "not parsed".
func ParseCPLEXSolution(b []byte) (*solver.Solution, error) {
	var doc cplexSolution
	dec := xml.NewDecoder(bytes.NewReader(b))
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	h := doc.Header
	sol := solver.NewSolution("", h.PrimalFeasible == "1", 0, nil)
	sol.Status = h.SolutionStatusString
	if sol.Status == "" {
		sol.Status = "not parsed"
	}
	if h.ObjectiveValue != "" {
		v, err := strconv.ParseFloat(h.ObjectiveValue, 64)
		if err != nil {
			return nil, fmt.Errorf("objective value %q: %w", h.ObjectiveValue, err)
		}
		sol.Objective = v
	}
	for _, v := range doc.Variables {
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil, fmt.Errorf("variable %s: %w", v.Name, err)
		}
		sol.Set(v.Name, f)
	}
	return sol, nil
}

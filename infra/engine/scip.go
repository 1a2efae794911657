package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/kilianp07/flexmarket/core/logger"
	"github.com/kilianp07/flexmarket/core/solver"
)

// Default engine settings.
const (
	DefaultSCIPBinary = "scip"
	DefaultTimeLimit  = 300
	DefaultMaxTrials  = 2
)

// ErrNoSolution reports an engine run that left no solution file behind.
var ErrNoSolution = errors.New("solution file not generated")

// SCIPConfig configures the SCIP backend.
type SCIPConfig struct {
	Binary string `json:"binary"`
	// TimeLimit in seconds, 0 disables the limit.
	TimeLimit  int  `json:"timeLimit"`
	MaxTrials  int  `json:"maxTrials"`
	WriteLP    bool `json:"writeLP"`
	NoPresolve bool `json:"noPresolve"`
}

// SetDefaults fills unset fields.
func (c *SCIPConfig) SetDefaults() {
	if c.Binary == "" {
		c.Binary = DefaultSCIPBinary
	}
	if c.MaxTrials < 1 {
		c.MaxTrials = DefaultMaxTrials
	}
	if c.TimeLimit < 0 {
		c.TimeLimit = 0
	}
}

// SCIP solves ZIMPL models with the scip binary.
type SCIP struct {
	cfg    SCIPConfig
	runner Runner
	log    logger.Logger
}

// NewSCIP returns a SCIP backend. A nil runner runs the real binary.
func NewSCIP(cfg SCIPConfig, r Runner, log logger.Logger) *SCIP {
	cfg.SetDefaults()
	if r == nil {
		r = ExecRunner{}
	}
	return &SCIP{cfg: cfg, runner: r, log: logger.OrNop(log)}
}

// Args returns the scip arguments solving p.
func (s *SCIP) Args(p solver.Problem) []string {
	sol := p.SolutionName()
	var args []string
	if s.cfg.TimeLimit > 0 {
		args = append(args, "-c", fmt.Sprintf("set limits time %d", s.cfg.TimeLimit))
	}
	if s.cfg.NoPresolve {
		args = append(args, "-c", "set presolving maxrounds 0")
	}
	args = append(args, "-c", "read "+p.Model+".zpl")
	if s.cfg.WriteLP {
		args = append(args, "-c", "write problem "+sol+".lp")
	}
	return append(args, "-c", "opt", "-c", "write solution "+sol+".sol", "-c", "q")
}

func (s *SCIP) Solve(ctx context.Context, ws *solver.Workspace, p solver.Problem) (*solver.Solution, error) {
	if err := ws.Write(p.Inputs...); err != nil {
		return nil, err
	}
	file := p.SolutionName() + ".sol"
	if err := ws.Remove(file); err != nil {
		return nil, err
	}
	if s.cfg.WriteLP {
		if err := ws.Remove(p.SolutionName() + ".lp"); err != nil {
			return nil, err
		}
	}

	args := s.Args(p)
	s.log.Debugf("scip %s", p.Model)
	out, attempts, err := call(ctx, s.runner, ws.Dir(), s.cfg.MaxTrials, s.cfg.Binary, args...)
	cmd := commandLine(s.cfg.Binary, args)
	if err != nil {
		return nil, &solver.CallError{Model: p.Model, Command: cmd, Output: string(out), Attempts: attempts, Err: err}
	}
	raw, err := ws.ReadFile(file)
	if err != nil {
		return nil, &solver.CallError{Model: p.Model, Command: cmd, Output: string(out), Attempts: attempts, Err: fmt.Errorf("%w: %s", ErrNoSolution, file)}
	}
	sol, err := ParseSCIPSolution(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file, err)
	}
	sol.Model = p.Model
	sol.File = file
	sol.Debug = "\tCommand: " + cmd + "\n"
	return sol, nil
}

var (
	scipVariable  = regexp.MustCompile(`^(\S+)\s+(\S+)\s+\(.+\)`)
	scipStatus    = regexp.MustCompile(`^solution status:\s+(.+?)\s*$`)
	scipObjective = regexp.MustCompile(`^objective value:\s+(\S+)`)
)

// ParseSCIPSolution reads a solution written by "write solution". The
// solution is feasible once an objective value is reported.
func ParseSCIPSolution(b []byte) (*solver.Solution, error) {
	sol := solver.NewSolution("", false, 0, nil)
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if m := scipStatus.FindStringSubmatch(line); m != nil {
			sol.Status = m[1]
			continue
		}
		if m := scipObjective.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return nil, fmt.Errorf("objective value %q: %w", m[1], err)
			}
			sol.Objective = v
			sol.Feasible = true
			continue
		}
		if m := scipVariable.FindStringSubmatch(line); m != nil {
			v, err := strconv.ParseFloat(m[2], 64)
			if err != nil {
				continue
			}
			sol.Set(m[1], v)
		}
	}
	return sol, sc.Err()
}

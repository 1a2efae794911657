// Package engine runs the ZIMPL models of the market agents with external
// engines: SCIP alone, or SCIP translating the model for CPLEX.
package engine

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// Runner executes a command in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	return f(ctx, dir, name, args...)
}

// commandLine renders a command for diagnostics.
func commandLine(name string, args []string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, a := range args {
		b.WriteByte(' ')
		if strings.ContainsAny(a, " \t\"") {
			b.WriteString(`"` + strings.ReplaceAll(a, `"`, `\"`) + `"`)
		} else {
			b.WriteString(a)
		}
	}
	return b.String()
}

// call runs the command up to trials times until it exits cleanly.
func call(ctx context.Context, r Runner, dir string, trials int, name string, args ...string) (out []byte, attempts int, err error) {
	if trials < 1 {
		trials = 1
	}
	for attempts < trials {
		attempts++
		out, err = r.Run(ctx, dir, name, args...)
		if err == nil || ctx.Err() != nil {
			break
		}
	}
	return out, attempts, err
}

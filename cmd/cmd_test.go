package cmd

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexmarket/app"
	"github.com/kilianp07/flexmarket/config"
	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/runlog"
	"github.com/kilianp07/flexmarket/core/solver/solvertest"
)

func init() { color.NoColor = true }

var day = map[string]string{
	instance.PricesFile: "2,1e-5,100,1\n1,10,20,5\n2,12,24,6\n",
	instance.NetworkFile: `2,1,0,0,10,20
1,0,1,0.1,0.1,5
0,0,0.9,1.1
1,0,0.95,1.05
`,
	instance.QualifiedFlexFile: "# none\n",
	instance.TSOFile:           "0,3,4\n1,1,-1,2\n2,0.5,-0.5,-1\n",
	"retailers/ret.csv":        "0,2,50\n0\n0,1,-5,0\n0,2,-6,-1\n0,0,-7,0\n1,0\n2,0\n",
	"producers/prod.csv":       "0\n1\n1,1,0,10,5,1\n1,2,2,8,6,2\n1,0\n2,0\n1,0,12\n",
}

func writeDay(t *testing.T, dir string) {
	t.Helper()
	for name, content := range day {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	models := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(models, "retailer-baseline.zpl"), []byte("# model\n"), 0o644))
	data := "simulation:\n  model_dir: " + models + "\n  workspace_dir: " + t.TempDir() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(app.WithSolver(solvertest.New()))
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "day-01")
	writeDay(t, dir)
	output := filepath.Join(t.TempDir(), "day-01.json")

	out, err := execute(t, "run", dir, "-c", writeConfig(t), "-o", output, "--maxiterations", "4", "-t", "0.01")
	require.NoError(t, err)
	assert.Contains(t, out, "day-01 converged in 2 iteration(s)")
	assert.Contains(t, out, output)
	assert.FileExists(t, output)
}

func TestRunCommandArgs(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestRunFlagsApply(t *testing.T) {
	cmd := newRunCmd(&options{})
	require.NoError(t, cmd.ParseFlags([]string{"--cplex", "-l", "--debug", "--maxiterations", "9"}))
	cfg := config.Default()
	tol := cfg.Simulation.Tolerance
	f := flagsOf(t, cmd)
	f.apply(cmd, cfg)

	assert.Equal(t, "cplex", cfg.Solver.Type)
	assert.Equal(t, "linearOpf", cfg.Simulation.OPF)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Simulation.KeepWorkspace)
	assert.Equal(t, 9, cfg.Simulation.MaxIterations)
	assert.Equal(t, tol, cfg.Simulation.Tolerance)
}

// flagsOf reads the parsed flags back from cmd.
func flagsOf(t *testing.T, cmd *cobra.Command) *runFlags {
	t.Helper()
	fl := cmd.Flags()
	f := &runFlags{}
	var err error
	f.output, err = fl.GetString("output")
	require.NoError(t, err)
	f.maxIterations, err = fl.GetInt("maxiterations")
	require.NoError(t, err)
	f.tolerance, err = fl.GetFloat64("tolerance")
	require.NoError(t, err)
	f.cplex, err = fl.GetBool("cplex")
	require.NoError(t, err)
	f.linearOPF, err = fl.GetBool("linearopf")
	require.NoError(t, err)
	f.debug, err = fl.GetBool("debug")
	require.NoError(t, err)
	return f
}

func TestBatchCommand(t *testing.T) {
	days := t.TempDir()
	writeDay(t, filepath.Join(days, "d1"))
	require.NoError(t, os.MkdirAll(filepath.Join(days, "d2"), 0o755))

	out, err := execute(t, "batch", days, "-c", writeConfig(t), "-w", "1", "--summary", "all.csv")
	require.NoError(t, err)
	assert.Contains(t, out, "1 solved, 0 capped, 1 failed, 0 skipped")
	assert.FileExists(t, filepath.Join(days, "all.csv"))
	assert.FileExists(t, filepath.Join(days, "d2-error.txt"))
}

func TestBatchCommandRejectsWorkers(t *testing.T) {
	_, err := execute(t, "batch", t.TempDir(), "-c", writeConfig(t), "-w", "0")
	assert.Error(t, err)
}

func TestPrinters(t *testing.T) {
	var buf bytes.Buffer
	printResult(&buf, &app.Result{
		Instance: "d1",
		Outcome:  agent.Outcome{Iterations: 20, Reason: "maximum number of iterations reached"},
		Welfare:  -3.5,
		Elapsed:  1500 * time.Millisecond,
	})
	assert.Contains(t, buf.String(), "d1 stopped after 20 iteration(s)")
	assert.Contains(t, buf.String(), "-3.5000")

	buf.Reset()
	printError(&buf, errors.New("boom"))
	assert.True(t, strings.HasPrefix(buf.String(), "Error: boom"))
}

func TestHistoryHandler(t *testing.T) {
	cfg := config.Default()
	cfg.RunLog = runlog.Config{Backend: runlog.BackendJSONL, Path: filepath.Join(t.TempDir(), "it.jsonl")}
	h, closeStores, err := historyHandler(cfg)
	require.NoError(t, err)
	defer closeStores()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/iterations", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

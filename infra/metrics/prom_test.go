package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexmarket/core/factory"
	coremetrics "github.com/kilianp07/flexmarket/core/metrics"
)

func TestPromSink(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSink(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordIteration(coremetrics.IterationEvent{Instance: "d1", Iteration: 1, MaxDifference: 9}))
	require.NoError(t, s.RecordIteration(coremetrics.IterationEvent{Instance: "d1", Iteration: 2, MaxDifference: 0.25, Compared: true, Welfare: -3}))
	require.NoError(t, s.RecordRun(coremetrics.RunEvent{Instance: "d1", Converged: true, Iterations: 2, Elapsed: time.Second}))
	require.NoError(t, s.RecordRun(coremetrics.RunEvent{Instance: "d2", Failed: true}))
	require.NoError(t, s.RecordSolverCall(coremetrics.SolverCallEvent{Model: "TSO-flexActivation", Duration: time.Millisecond}))

	assert.Equal(t, 2.0, testutil.ToFloat64(s.iterations.WithLabelValues("d1")))
	assert.Equal(t, 0.25, testutil.ToFloat64(s.maxDifference.WithLabelValues("d1")))
	assert.Equal(t, -3.0, testutil.ToFloat64(s.welfare.WithLabelValues("d1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.runs.WithLabelValues("converged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.runs.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.solverCalls.WithLabelValues("TSO-flexActivation", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.solverLatency))
}

func TestPromSinkSharesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSink(reg)
	require.NoError(t, err)
	b, err := NewPromSink(reg)
	require.NoError(t, err)

	require.NoError(t, b.RecordRun(coremetrics.RunEvent{}))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.runs.WithLabelValues("capped")))
}

func TestRegister(t *testing.T) {
	reg := coremetrics.NewRegistry()
	require.NoError(t, Register(reg, prometheus.NewRegistry(), nil))
	assert.Equal(t, []string{"influx", "nop", "prometheus"}, reg.Types())

	s, err := coremetrics.New(reg, []factory.ModuleConfig{{Type: TypePrometheus}, {Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, &coremetrics.MultiSink{}, s)

	require.Error(t, Register(reg, nil, nil), "types are registered once")
}

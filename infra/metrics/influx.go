package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/flexmarket/core/logger"
	coremetrics "github.com/kilianp07/flexmarket/core/metrics"
)

// InfluxConfig locates the bucket receiving the points.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes simulation progress to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig, log logger.Logger) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.OrNop(log),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig, log logger.Logger) coremetrics.Sink {
	sink := NewInfluxSink(cfg, log)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordIteration writes one "iteration" point.
func (s *InfluxSink) RecordIteration(ev coremetrics.IterationEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("iteration").
		AddTag("run_id", ev.RunID).
		AddTag("instance", ev.Instance).
		AddTag("converged", strconv.FormatBool(ev.Converged)).
		AddField("iteration", ev.Iteration).
		AddField("welfare", round3(ev.Welfare)).
		AddField("elapsed_ms", ev.Elapsed.Milliseconds())
	if ev.Compared {
		p = p.AddField("max_difference", ev.MaxDifference)
	}
	return s.writeAPI.WritePoint(ctx, p.SetTime(ev.Time))
}

// RecordRun writes one "run" point.
func (s *InfluxSink) RecordRun(ev coremetrics.RunEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("run").
		AddTag("run_id", ev.RunID).
		AddTag("instance", ev.Instance).
		AddTag("outcome", outcome(ev)).
		AddField("iterations", ev.Iterations).
		AddField("welfare", round3(ev.Welfare)).
		AddField("elapsed_ms", ev.Elapsed.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSolverCall writes one "solver_call" point.
func (s *InfluxSink) RecordSolverCall(ev coremetrics.SolverCallEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("solver_call").
		AddTag("run_id", ev.RunID).
		AddTag("instance", ev.Instance).
		AddTag("model", ev.Model).
		AddTag("failed", strconv.FormatBool(ev.Failed)).
		AddField("duration_ms", round3(float64(ev.Duration)/float64(time.Millisecond))).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

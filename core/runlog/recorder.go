package runlog

import (
	"context"
	"time"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/logger"
)

// Recorder turns iteration reports of one run into records.
type Recorder struct {
	Store    Store
	RunID    string
	Instance string
	// Welfare is read after each iteration. It may be nil.
	Welfare func() float64
	Log     logger.Logger

	now func() time.Time
}

// Observer returns the callback to register on the system. Append errors
// are logged and do not stop the run.
func (r *Recorder) Observer(ctx context.Context) agent.Observer {
	log := logger.OrNop(r.Log)
	now := r.now
	if now == nil {
		now = time.Now
	}
	return func(rep agent.IterationReport) {
		rec := Record{
			RunID:         r.RunID,
			Instance:      r.Instance,
			Iteration:     rep.Iteration,
			MaxDifference: rep.MaxDifference,
			Converged:     rep.Converged,
			Timestamp:     now(),
		}
		if r.Welfare != nil {
			rec.Welfare = r.Welfare()
		}
		if err := r.Store.Append(ctx, rec); err != nil {
			log.Warnf("runlog append %s/%d: %v", r.RunID, rep.Iteration, err)
		}
	}
}

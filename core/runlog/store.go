// Package runlog persists one record per iteration of a simulated day.
package runlog

import (
	"context"
	"time"
)

// Record captures the state of the convergence loop after one iteration.
type Record struct {
	RunID         string    `json:"run_id"`
	Instance      string    `json:"instance"`
	Iteration     int       `json:"iteration"`
	MaxDifference float64   `json:"max_difference"`
	Welfare       float64   `json:"welfare"`
	Converged     bool      `json:"converged"`
	Timestamp     time.Time `json:"timestamp"`
}

// Query defines filters for retrieving records. Zero fields match all.
type Query struct {
	RunID    string
	Instance string
	Start    time.Time
	End      time.Time
}

// Match reports whether r passes every filter of q.
func (q Query) Match(r Record) bool {
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	if q.Instance != "" && r.Instance != q.Instance {
		return false
	}
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	return true
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// NopStore discards records.
type NopStore struct{}

func (NopStore) Append(context.Context, Record) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]Record, error) { return nil, nil }
func (NopStore) Close() error                                   { return nil }

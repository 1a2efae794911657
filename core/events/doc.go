// Package events defines the progress events a run publishes on the event
// bus.
//
// Available event types:
//   - RunStarted: a day is about to be simulated
//   - IterationFinished: one pass of the pipeline completed
//   - SolverCalled: one optimization problem was solved
//   - RunFinished: the day converged, hit the iteration cap or failed
package events

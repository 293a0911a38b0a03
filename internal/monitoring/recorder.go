// Package monitoring records build metrics. Components receive a Recorder
// and default to NoopRecorder, so metrics cost nothing unless a real
// recorder is injected.
package monitoring

import "time"

// Outcome labels for a build cycle.
const (
	OutcomeCommitted  = "committed"
	OutcomeSuperseded = "superseded"
	OutcomeFailed     = "failed"
)

// Entity result labels.
const (
	ResultRebuilt = "rebuilt"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
	ResultRemoved = "removed"
)

// Recorder is the set of build measurements.
type Recorder interface {
	ObserveCycleDuration(d time.Duration)
	ObserveStageDuration(stage string, d time.Duration)
	IncCycleOutcome(outcome string)
	AddEntityResults(result string, n int)
	IncCacheLookup(stage string, hit bool)
	SetArtifacts(n int)
}

// NoopRecorder is a Recorder that does nothing.
type NoopRecorder struct{}

func (NoopRecorder) ObserveCycleDuration(time.Duration)         {}
func (NoopRecorder) ObserveStageDuration(string, time.Duration) {}
func (NoopRecorder) IncCycleOutcome(string)                     {}
func (NoopRecorder) AddEntityResults(string, int)               {}
func (NoopRecorder) IncCacheLookup(string, bool)                {}
func (NoopRecorder) SetArtifacts(int)                           {}

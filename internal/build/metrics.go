package build

import (
	"sync"
	"time"
)

// CycleResult summarises one build cycle for metrics.
type CycleResult struct {
	Duration   time.Duration
	Scanned    int
	Rebuilt    int
	Skipped    int
	Errors     int
	Superseded bool
}

// BuildMetrics tracks cumulative build performance for a session
type BuildMetrics struct {
	TotalCycles      int64
	SupersededCycles int64
	FailedCycles     int64
	Rebuilt          int64
	Skipped          int64
	EntityErrors     int64
	AverageDuration  time.Duration
	TotalDuration    time.Duration
	LastCycle        time.Time
	mutex            sync.RWMutex
}

// NewBuildMetrics creates a new build metrics tracker
func NewBuildMetrics() *BuildMetrics {
	return &BuildMetrics{}
}

// RecordCycle records a cycle result in the metrics
func (bm *BuildMetrics) RecordCycle(result CycleResult) {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalCycles++
	bm.TotalDuration += result.Duration
	bm.LastCycle = time.Now()

	if result.Superseded {
		bm.SupersededCycles++
		bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalCycles)
		return
	}

	bm.Rebuilt += int64(result.Rebuilt)
	bm.Skipped += int64(result.Skipped)
	bm.EntityErrors += int64(result.Errors)
	if result.Errors > 0 {
		bm.FailedCycles++
	}

	bm.AverageDuration = bm.TotalDuration / time.Duration(bm.TotalCycles)
}

// GetSnapshot returns a snapshot of current metrics
func (bm *BuildMetrics) GetSnapshot() BuildMetrics {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()
	return BuildMetrics{
		TotalCycles:      bm.TotalCycles,
		SupersededCycles: bm.SupersededCycles,
		FailedCycles:     bm.FailedCycles,
		Rebuilt:          bm.Rebuilt,
		Skipped:          bm.Skipped,
		EntityErrors:     bm.EntityErrors,
		AverageDuration:  bm.AverageDuration,
		TotalDuration:    bm.TotalDuration,
		LastCycle:        bm.LastCycle,
	}
}

// Reset resets all metrics
func (bm *BuildMetrics) Reset() {
	bm.mutex.Lock()
	defer bm.mutex.Unlock()

	bm.TotalCycles = 0
	bm.SupersededCycles = 0
	bm.FailedCycles = 0
	bm.Rebuilt = 0
	bm.Skipped = 0
	bm.EntityErrors = 0
	bm.AverageDuration = 0
	bm.TotalDuration = 0
	bm.LastCycle = time.Time{}
}

// GetSkipRate returns the share of scheduled entities served without
// recomputation, as a percentage
func (bm *BuildMetrics) GetSkipRate() float64 {
	bm.mutex.RLock()
	defer bm.mutex.RUnlock()

	total := bm.Rebuilt + bm.Skipped
	if total == 0 {
		return 0.0
	}

	return float64(bm.Skipped) / float64(total) * 100.0
}

package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/slate/internal/errors"
)

// CycleKind distinguishes full builds from change-driven ones.
type CycleKind string

const (
	CycleFull        CycleKind = "full"
	CycleIncremental CycleKind = "incremental"
)

// BuildReport summarises one build cycle.
type BuildReport struct {
	CycleID string    `json:"cycle_id"`
	Kind    CycleKind `json:"kind"`
	// Generation is the store snapshot the cycle committed, or zero
	Generation uint64 `json:"generation"`
	Scanned    int    `json:"scanned"`
	Affected   int    `json:"affected"`
	Rebuilt    int    `json:"rebuilt"`
	Skipped    int    `json:"skipped"`
	// Written and Removed are the routes the commit published and withdrew
	Written    []string             `json:"written"`
	Removed    []string             `json:"removed"`
	Errors     []errors.EntityError `json:"errors"`
	Superseded bool                 `json:"superseded"`
	StartedAt  time.Time            `json:"started_at"`
	Duration   time.Duration        `json:"duration"`
}

func newReport(kind CycleKind) *BuildReport {
	return &BuildReport{
		CycleID:   uuid.NewString(),
		Kind:      kind,
		StartedAt: time.Now(),
	}
}

// HasErrors reports whether any entity failed.
func (r *BuildReport) HasErrors() bool {
	return r != nil && len(r.Errors) > 0
}

// Committed reports whether the cycle published a snapshot.
func (r *BuildReport) Committed() bool {
	return r != nil && r.Generation > 0
}

// ErrorFor returns the error recorded against an entity id.
func (r *BuildReport) ErrorFor(id string) (errors.EntityError, bool) {
	for _, e := range r.Errors {
		if e.ID == id {
			return e, true
		}
	}
	return errors.EntityError{}, false
}

// String returns a one-line summary.
func (r *BuildReport) String() string {
	status := "committed"
	if r.Superseded {
		status = "superseded"
	} else if !r.Committed() {
		status = "aborted"
	}
	return fmt.Sprintf("%s build %s: %d scanned, %d rebuilt, %d skipped, %d written, %d removed, %d errors in %s",
		r.Kind, status, r.Scanned, r.Rebuilt, r.Skipped, len(r.Written), len(r.Removed), len(r.Errors), r.Duration.Round(time.Millisecond))
}

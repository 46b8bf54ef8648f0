package builder

import (
	"errors"
	"strings"
	"time"
)

// Status represents the lifecycle state of a build.
type Status string

const (
	StatusPending  Status = "pending"
	StatusBuilding Status = "building"
	StatusSuccess  Status = "success"
	// StatusError is part of the wire contract and rendered by clients, but the
	// driver has no failing step so no run currently ends in it.
	StatusError Status = "error"
)

// Terminal reports whether no further transition may be applied.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusError
}

var (
	// ErrNotFound is returned when no build has been started for a project.
	ErrNotFound = errors.New("build not found")
	// ErrStaleGeneration rejects a transition scheduled by a superseded run.
	ErrStaleGeneration = errors.New("stale build generation")
	// ErrTerminal rejects a transition against a finished run.
	ErrTerminal = errors.New("build already finished")
	// ErrProgressRegression rejects a transition that would move progress backwards or past 100.
	ErrProgressRegression = errors.New("progress must be non-decreasing and at most 100")
)

// Record is the single current build of a project.
type Record struct {
	ProjectID  string    `json:"projectId"`
	Generation uint64    `json:"generation"`
	Status     Status    `json:"status"`
	Progress   int       `json:"progress"`
	Log        string    `json:"log"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Terminal reports whether the record reached success or error.
func (r Record) Terminal() bool {
	return r.Status.Terminal()
}

func newRecord(projectID string, generation uint64, now time.Time) Record {
	return Record{
		ProjectID:  projectID,
		Generation: generation,
		Status:     StatusBuilding,
		Progress:   0,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Transition is a typed mutation of a running build. Build one with Advance or Complete.
type Transition struct {
	Generation uint64
	Progress   int
	Lines      []string
	Complete   bool
}

// Advance moves a run of the given generation to progress and appends lines to its log.
func Advance(generation uint64, progress int, lines ...string) Transition {
	return Transition{Generation: generation, Progress: progress, Lines: lines}
}

// Complete finishes a run of the given generation with status success at 100%.
func Complete(generation uint64, lines ...string) Transition {
	return Transition{Generation: generation, Progress: 100, Lines: lines, Complete: true}
}

// apply is shared by every Store so the run invariants hold regardless of backend.
func (r *Record) apply(t Transition, now time.Time) error {
	if t.Generation != r.Generation {
		return ErrStaleGeneration
	}
	if r.Terminal() {
		return ErrTerminal
	}
	if t.Progress < r.Progress || t.Progress > 100 {
		return ErrProgressRegression
	}

	r.Progress = t.Progress
	if len(t.Lines) > 0 {
		var b strings.Builder
		b.WriteString(r.Log)
		for _, line := range t.Lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
		r.Log = b.String()
	}
	if t.Complete {
		r.Status = StatusSuccess
	}
	r.UpdatedAt = now
	return nil
}

// Package workflow executes named step graphs over a typed state envelope.
//
// A graph is a set of steps joined by unconditional edges or by conditional edges whose decision
// function returns a label from a closed set. Runs are sequential: each step receives the
// envelope returned by the previous one and returns a replacement.
package workflow

import (
	"slices"
	"strings"
	"time"
)

// Status is the lifecycle status of a run
type Status string

// Run statuses
const (
	StatusPending   Status = ""
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// SkippedSuffix marks a CurrentStep value written by a step that skipped its work.
const SkippedSuffix = "_skipped"

// ErrorRecord is one entry of the append-only error log of a run
type ErrorRecord struct {
	Step      string    `json:"step"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// Meta is the engine-owned part of an envelope.
type Meta struct {
	CurrentStep string        `json:"currentStep"`
	Status      Status        `json:"status"`
	Errors      []ErrorRecord `json:"errors"`
	// Terminal is the edge label the run exited through, empty for an unlabelled exit.
	Terminal Label    `json:"terminal,omitempty"`
	Trace    []string `json:"trace"`
}

// Skipped reports whether the last step recorded itself as skipped.
func (m Meta) Skipped() bool {
	return strings.HasSuffix(m.CurrentStep, SkippedSuffix)
}

// LastError returns the most recent error record.
func (m Meta) LastError() (ErrorRecord, bool) {
	if len(m.Errors) == 0 {
		return ErrorRecord{}, false
	}
	return m.Errors[len(m.Errors)-1], true
}

// withError returns a copy of m with rec appended. The receiver's slice is never written to.
func (m Meta) withError(rec ErrorRecord) Meta {
	m.Errors = append(slices.Clip(m.Errors), rec)
	return m
}

func (m Meta) withTrace(step string) Meta {
	m.Trace = append(slices.Clip(m.Trace), step)
	return m
}

// Skip returns the CurrentStep marker for a step that skipped its work.
func Skip(step string) string {
	return step + SkippedSuffix
}

// Envelope is implemented by every state type a graph runs over.
// WithRunMeta must return a copy; it must not modify the receiver.
type Envelope[S any] interface {
	RunMeta() Meta
	WithRunMeta(Meta) S
}

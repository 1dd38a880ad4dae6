// Package catalog builds the application and discovery graphs and the envelopes they run over.
package catalog

import (
	"github.com/jonathan/apply-agent/internal/workflow"
)

// Graph names
const (
	ApplicationGraph = "job_application"
	DiscoveryGraph   = "job_discovery"
)

// StepResult is the outcome recorded by a step in its own result field.
// A step that skipped its work leaves Success false with the reason in Error.
type StepResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func succeeded() StepResult { return StepResult{Success: true} }

func failed(reason string) StepResult { return StepResult{Error: reason} }

// graphBuilder stops at the first construction error.
type graphBuilder[S workflow.Envelope[S]] struct {
	g   *workflow.Graph[S]
	err error
}

func (b *graphBuilder[S]) step(name string, fn workflow.StepFunc[S]) {
	if b.err == nil {
		b.err = b.g.RegisterStep(name, fn)
	}
}

func (b *graphBuilder[S]) edge(from, to string) {
	if b.err == nil {
		b.err = b.g.AddEdge(from, to)
	}
}

func (b *graphBuilder[S]) branch(from string, decide workflow.DecideFunc[S], routes map[workflow.Label]string) {
	if b.err == nil {
		b.err = b.g.AddConditionalEdge(from, decide, routes)
	}
}

func (b *graphBuilder[S]) build(entry string) (*workflow.Graph[S], error) {
	if b.err == nil {
		b.err = b.g.SetEntry(entry)
	}
	if b.err == nil {
		b.err = b.g.Validate()
	}
	if b.err != nil {
		return nil, b.err
	}
	return b.g, nil
}

package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"
)

// End is the pseudo step name that terminates a run when used as an edge target.
const End = "__end__"

// DefaultMaxSteps bounds the number of step executions in one run.
const DefaultMaxSteps = 200

// Label is the result of a decision function on a conditional edge
type Label string

// StepFunc computes the next envelope from the current one. It must not modify its input.
type StepFunc[S any] func(ctx context.Context, state S) (S, error)

// DecideFunc picks an outgoing label from the post-step envelope.
type DecideFunc[S any] func(state S) Label

type conditionalEdge[S any] struct {
	decide DecideFunc[S]
	routes map[Label]string
}

// Graph is a statically declared step graph. A built graph is read-only and may be run
// concurrently with independent envelopes.
type Graph[S Envelope[S]] struct {
	name        string
	steps       map[string]StepFunc[S]
	order       []string
	edges       map[string]string
	conditional map[string]conditionalEdge[S]
	entry       string

	maxSteps int
	logger   *slog.Logger
	now      func() time.Time
	progress ProgressCallback
}

// Option configures a Graph
type Option func(*options)

type options struct {
	maxSteps int
	logger   *slog.Logger
	now      func() time.Time
	progress ProgressCallback
}

// WithMaxSteps overrides DefaultMaxSteps.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithLogger sets the logger used for step tracing.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock sets the clock used to timestamp error records.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithProgress registers a callback invoked for every engine event.
func WithProgress(cb ProgressCallback) Option {
	return func(o *options) { o.progress = cb }
}

// New creates an empty graph.
func New[S Envelope[S]](name string, opts ...Option) *Graph[S] {
	o := options{
		maxSteps: DefaultMaxSteps,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Graph[S]{
		name:        name,
		steps:       make(map[string]StepFunc[S]),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge[S]),
		maxSteps:    o.maxSteps,
		logger:      o.logger.With("system", "workflow", "graph", name),
		now:         o.now,
		progress:    o.progress,
	}
}

// Name returns the graph name.
func (g *Graph[S]) Name() string { return g.name }

// Steps returns step names in registration order.
func (g *Graph[S]) Steps() []string { return slices.Clone(g.order) }

// RegisterStep adds a named step.
func (g *Graph[S]) RegisterStep(name string, fn StepFunc[S]) error {
	switch {
	case name == "" || name == End:
		return g.invalid(name, "invalid step name %q", name)
	case fn == nil:
		return g.invalid(name, "nil step function")
	}
	if _, ok := g.steps[name]; ok {
		return g.invalid(name, "step already registered")
	}
	g.steps[name] = fn
	g.order = append(g.order, name)
	return nil
}

// AddEdge adds an unconditional transition. to may be End.
func (g *Graph[S]) AddEdge(from, to string) error {
	if err := g.checkSource(from); err != nil {
		return err
	}
	g.edges[from] = to
	return nil
}

// AddConditionalEdge routes from a step by label. The keys of routes form the closed set of labels
// decide may return; a value of End makes that label terminal.
func (g *Graph[S]) AddConditionalEdge(from string, decide DecideFunc[S], routes map[Label]string) error {
	if err := g.checkSource(from); err != nil {
		return err
	}
	if decide == nil {
		return g.invalid(from, "nil decision function")
	}
	if len(routes) == 0 {
		return g.invalid(from, "conditional edge has no routes")
	}
	for label := range routes {
		if label == "" {
			return g.invalid(from, "empty route label")
		}
	}
	g.conditional[from] = conditionalEdge[S]{decide: decide, routes: maps.Clone(routes)}
	return nil
}

// SetEntry sets the first step of every run.
func (g *Graph[S]) SetEntry(name string) error {
	if name == "" || name == End {
		return g.invalid(name, "invalid entry step")
	}
	g.entry = name
	return nil
}

// Labels returns the sorted label set of the conditional edge leaving from.
func (g *Graph[S]) Labels(from string) []Label {
	ce, ok := g.conditional[from]
	if !ok {
		return nil
	}
	return slices.Sorted(maps.Keys(ce.routes))
}

// Validate checks that the entry and every edge target refer to registered steps.
func (g *Graph[S]) Validate() error {
	if g.entry == "" {
		return g.invalid("", "no entry step")
	}
	if _, ok := g.steps[g.entry]; !ok {
		return g.invalid(g.entry, "entry step is not registered")
	}
	for _, from := range g.order {
		if to, ok := g.edges[from]; ok {
			if err := g.checkTarget(from, to); err != nil {
				return err
			}
		}
		if ce, ok := g.conditional[from]; ok {
			for _, label := range slices.Sorted(maps.Keys(ce.routes)) {
				if err := g.checkTarget(from, ce.routes[label]); err != nil {
					return err
				}
			}
		}
	}
	for from := range g.edges {
		if _, ok := g.steps[from]; !ok {
			return g.invalid(from, "edge from unregistered step")
		}
	}
	for from := range g.conditional {
		if _, ok := g.steps[from]; !ok {
			return g.invalid(from, "conditional edge from unregistered step")
		}
	}
	return nil
}

func (g *Graph[S]) checkSource(from string) error {
	if from == "" || from == End {
		return g.invalid(from, "invalid edge source")
	}
	_, plain := g.edges[from]
	_, cond := g.conditional[from]
	if plain || cond {
		return g.invalid(from, "step already has an outgoing edge")
	}
	return nil
}

func (g *Graph[S]) checkTarget(from, to string) error {
	if to == End {
		return nil
	}
	if _, ok := g.steps[to]; !ok {
		return g.invalid(from, "edge target %q is not registered", to)
	}
	return nil
}

func (g *Graph[S]) invalid(step, format string, args ...any) error {
	return &EngineError{Code: CodeInvalidGraph, Graph: g.name, Step: step, Message: fmt.Sprintf(format, args...)}
}

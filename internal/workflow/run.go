package workflow

import (
	"context"
	"fmt"
	"time"
)

// EventKind classifies a ProgressEvent
type EventKind string

// Progress event kinds
const (
	EventStepStarted  EventKind = "step_started"
	EventStepFinished EventKind = "step_finished"
	EventStepFailed   EventKind = "step_failed"
	EventRouted       EventKind = "routed"
	EventFinished     EventKind = "finished"
)

// ProgressEvent reports engine progress for one run
type ProgressEvent struct {
	Graph    string        `json:"graph"`
	Kind     EventKind     `json:"kind"`
	Step     string        `json:"step"`
	Label    Label         `json:"label,omitempty"`
	Next     string        `json:"next,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Err      error         `json:"-"`
}

// ProgressCallback is called synchronously for every engine event
type ProgressCallback func(event ProgressEvent)

// Run executes the graph from its entry step and returns the final envelope.
//
// A failing step halts the run: the returned envelope is the step's input with an error record
// appended and status failed, and the error is a *StepError. Engine errors (unknown labels,
// the step bound, a shrinking error log) are recorded the same way and returned as *EngineError.
func (g *Graph[S]) Run(ctx context.Context, initial S) (S, error) {
	if err := g.Validate(); err != nil {
		return initial, err
	}

	state := initial
	meta := state.RunMeta()
	meta.Status = StatusRunning
	meta.Terminal = ""
	state = state.WithRunMeta(meta)

	current := g.entry
	for executed := 0; ; executed++ {
		if executed >= g.maxSteps {
			err := &EngineError{Code: CodeMaxSteps, Graph: g.name, Step: current,
				Message: fmt.Sprintf("exceeded %d steps", g.maxSteps)}
			return g.fail(state, current, err), err
		}
		if err := ctx.Err(); err != nil {
			return g.fail(state, current, err), err
		}

		next, err := g.execute(ctx, current, state)
		if err != nil {
			return g.fail(state, current, err), err
		}
		state = next

		target, label, err := g.route(current, state)
		if err != nil {
			return g.fail(state, current, err), err
		}
		if target == End {
			meta := state.RunMeta()
			meta.Status = StatusCompleted
			meta.Terminal = label
			state = state.WithRunMeta(meta)
			g.logger.Info("workflow finished", "step", current, "terminal", label, "steps", executed+1)
			g.emit(ProgressEvent{Kind: EventFinished, Step: current, Label: label})
			return state, nil
		}
		current = target
	}
}

func (g *Graph[S]) execute(ctx context.Context, name string, in S) (S, error) {
	before := in.RunMeta()
	g.logger.Debug("step started", "step", name)
	g.emit(ProgressEvent{Kind: EventStepStarted, Step: name})

	start := time.Now()
	out, err := g.steps[name](ctx, in)
	elapsed := time.Since(start)
	if err != nil {
		g.logger.Warn("step failed", "step", name, "error", err, "duration", elapsed)
		g.emit(ProgressEvent{Kind: EventStepFailed, Step: name, Duration: elapsed, Err: err})
		return in, &StepError{Step: name, Err: err}
	}

	after := out.RunMeta()
	if len(after.Errors) < len(before.Errors) {
		return in, &EngineError{Code: CodeEnvelopeRegression, Graph: g.name, Step: name,
			Message: fmt.Sprintf("error log shrank from %d to %d entries", len(before.Errors), len(after.Errors))}
	}
	if after.CurrentStep == "" || after.CurrentStep == before.CurrentStep {
		after.CurrentStep = name
	}
	after.Status = StatusRunning
	after = after.withTrace(name)
	out = out.WithRunMeta(after)

	g.logger.Debug("step finished", "step", name, "marker", after.CurrentStep, "duration", elapsed)
	g.emit(ProgressEvent{Kind: EventStepFinished, Step: name, Duration: elapsed})
	return out, nil
}

// route resolves the step after from. It returns End for implicit and explicit terminals.
func (g *Graph[S]) route(from string, state S) (string, Label, error) {
	if ce, ok := g.conditional[from]; ok {
		label := ce.decide(state)
		target, ok := ce.routes[label]
		if !ok {
			return "", label, &EngineError{Code: CodeUnknownEdgeLabel, Graph: g.name, Step: from,
				Message: fmt.Sprintf("decision returned %q, want one of %v", label, g.Labels(from))}
		}
		g.logger.Debug("edge resolved", "step", from, "label", label, "next", target)
		g.emit(ProgressEvent{Kind: EventRouted, Step: from, Label: label, Next: target})
		return target, label, nil
	}
	if to, ok := g.edges[from]; ok {
		return to, "", nil
	}
	return End, "", nil
}

func (g *Graph[S]) fail(state S, step string, err error) S {
	meta := state.RunMeta()
	meta = meta.withError(ErrorRecord{Step: step, Error: err.Error(), Timestamp: g.now()})
	meta.Status = StatusFailed
	if meta.CurrentStep == "" {
		meta.CurrentStep = step
	}
	g.logger.Error("workflow halted", "step", step, "error", err)
	return state.WithRunMeta(meta)
}

func (g *Graph[S]) emit(ev ProgressEvent) {
	if g.progress == nil {
		return
	}
	ev.Graph = g.name
	g.progress(ev)
}

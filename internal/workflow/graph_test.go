package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Meta
	Visits []string `json:"visits"`
	Count  int      `json:"count"`
	Route  Label    `json:"route"`
}

func (s testState) RunMeta() Meta                { return s.Meta }
func (s testState) WithRunMeta(m Meta) testState { s.Meta = m; return s }

var fixedNow = time.Date(2024, 5, 16, 12, 0, 0, 0, time.UTC)

func quietOptions(extra ...Option) []Option {
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return fixedNow }),
	}
	return append(base, extra...)
}

func visit(name string) StepFunc[testState] {
	return func(_ context.Context, s testState) (testState, error) {
		s.Visits = append(append([]string(nil), s.Visits...), name)
		s.Count++
		return s, nil
	}
}

func linearGraph(t *testing.T, opts ...Option) *Graph[testState] {
	t.Helper()
	g := New[testState]("linear", quietOptions(opts...)...)
	require.NoError(t, g.RegisterStep("a", visit("a")))
	require.NoError(t, g.RegisterStep("b", visit("b")))
	require.NoError(t, g.RegisterStep("c", visit("c")))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("c", End))
	require.NoError(t, g.SetEntry("a"))
	return g
}

func TestRun_Linear(t *testing.T) {
	g := linearGraph(t)

	final, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, final.Visits)
	assert.Equal(t, []string{"a", "b", "c"}, final.Trace)
	assert.Equal(t, "c", final.CurrentStep)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Empty(t, final.Errors)
	assert.Empty(t, final.Terminal)
}

func TestRun_ImplicitTerminal(t *testing.T) {
	g := New[testState]("single", quietOptions()...)
	require.NoError(t, g.RegisterStep("only", visit("only")))
	require.NoError(t, g.SetEntry("only"))

	final, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, final.Visits)
	assert.Equal(t, StatusCompleted, final.Status)
}

func branchGraph(t *testing.T, opts ...Option) *Graph[testState] {
	t.Helper()
	g := New[testState]("branch", quietOptions(opts...)...)
	require.NoError(t, g.RegisterStep("detect", visit("detect")))
	require.NoError(t, g.RegisterStep("work", visit("work")))
	require.NoError(t, g.AddConditionalEdge("detect", func(s testState) Label { return s.Route }, map[Label]string{
		"go":      "work",
		"blocked": End,
	}))
	require.NoError(t, g.AddEdge("work", End))
	require.NoError(t, g.SetEntry("detect"))
	return g
}

func TestRun_ConditionalRoutes(t *testing.T) {
	g := branchGraph(t)

	final, err := g.Run(context.Background(), testState{Route: "go"})
	require.NoError(t, err)
	assert.Equal(t, []string{"detect", "work"}, final.Visits)

	final, err = g.Run(context.Background(), testState{Route: "blocked"})
	require.NoError(t, err)
	assert.Equal(t, []string{"detect"}, final.Visits, "terminal label must not run further steps")
	assert.Equal(t, Label("blocked"), final.Terminal)
	assert.Equal(t, StatusCompleted, final.Status)
}

func TestRun_UnknownEdgeLabelIsFatal(t *testing.T) {
	g := branchGraph(t)

	final, err := g.Run(context.Background(), testState{Route: "sideways"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownEdgeLabel)

	var engineErr *EngineError
	require.True(t, errors.As(err, &engineErr))
	assert.Equal(t, "detect", engineErr.Step)
	assert.Contains(t, engineErr.Message, "sideways")

	assert.Equal(t, StatusFailed, final.Status)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, "detect", final.Errors[0].Step)
	assert.Equal(t, fixedNow, final.Errors[0].Timestamp)
}

func TestRun_StepFailureHalts(t *testing.T) {
	boom := errors.New("no page handle")
	g := New[testState]("failing", quietOptions()...)
	require.NoError(t, g.RegisterStep("a", visit("a")))
	require.NoError(t, g.RegisterStep("b", func(_ context.Context, s testState) (testState, error) {
		return s, boom
	}))
	require.NoError(t, g.RegisterStep("c", visit("c")))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.SetEntry("a"))

	final, err := g.Run(context.Background(), testState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var stepErr *StepError
	require.True(t, errors.As(err, &stepErr))
	assert.Equal(t, "b", stepErr.Step)

	assert.Equal(t, []string{"a"}, final.Visits)
	assert.Equal(t, "a", final.CurrentStep, "current step stays at the last completed step")
	assert.Equal(t, StatusFailed, final.Status)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, ErrorRecord{Step: "b", Error: stepErr.Error(), Timestamp: fixedNow}, final.Errors[0])
}

func TestRun_SkipMarkerPreserved(t *testing.T) {
	g := New[testState]("skip", quietOptions()...)
	require.NoError(t, g.RegisterStep("analyze", func(_ context.Context, s testState) (testState, error) {
		s.CurrentStep = Skip("analyze")
		return s, nil
	}))
	require.NoError(t, g.RegisterStep("next", visit("next")))
	require.NoError(t, g.AddEdge("analyze", "next"))
	require.NoError(t, g.SetEntry("analyze"))

	var markers []string
	g.progress = func(ev ProgressEvent) {
		if ev.Kind == EventStepFinished {
			markers = append(markers, ev.Step)
		}
	}

	final, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, "next", final.CurrentStep)
	assert.Equal(t, []string{"analyze", "next"}, final.Trace)
	assert.Equal(t, []string{"analyze", "next"}, markers)
}

func TestRun_SkipMarkerVisibleToDecision(t *testing.T) {
	g := New[testState]("skip-route", quietOptions()...)
	require.NoError(t, g.RegisterStep("analyze", func(_ context.Context, s testState) (testState, error) {
		s.CurrentStep = Skip("analyze")
		return s, nil
	}))
	require.NoError(t, g.AddConditionalEdge("analyze", func(s testState) Label {
		if s.Skipped() {
			return "skipped"
		}
		return "ok"
	}, map[Label]string{"skipped": End, "ok": End}))
	require.NoError(t, g.SetEntry("analyze"))

	final, err := g.Run(context.Background(), testState{})
	require.NoError(t, err)
	assert.Equal(t, Label("skipped"), final.Terminal)
	assert.Equal(t, "analyze_skipped", final.CurrentStep)
}

func TestRun_MaxSteps(t *testing.T) {
	g := New[testState]("loop", quietOptions(WithMaxSteps(5))...)
	require.NoError(t, g.RegisterStep("spin", visit("spin")))
	require.NoError(t, g.AddEdge("spin", "spin"))
	require.NoError(t, g.SetEntry("spin"))

	final, err := g.Run(context.Background(), testState{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxSteps)
	assert.Equal(t, 5, final.Count)
	assert.Equal(t, StatusFailed, final.Status)
}

func TestRun_ErrorLogRegression(t *testing.T) {
	g := New[testState]("regress", quietOptions()...)
	require.NoError(t, g.RegisterStep("clear", func(_ context.Context, s testState) (testState, error) {
		s.Errors = nil
		return s, nil
	}))
	require.NoError(t, g.SetEntry("clear"))

	initial := testState{Meta: Meta{Errors: []ErrorRecord{{Step: "earlier", Error: "x", Timestamp: fixedNow}}}}
	final, err := g.Run(context.Background(), initial)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEnvelopeRegression)
	require.Len(t, final.Errors, 2, "the original log is kept and the regression recorded")
	assert.Equal(t, "earlier", final.Errors[0].Step)
}

func TestRun_ErrorsOnlyGrow(t *testing.T) {
	g := New[testState]("grow", quietOptions()...)
	require.NoError(t, g.RegisterStep("a", visit("a")))
	require.NoError(t, g.RegisterStep("b", func(_ context.Context, s testState) (testState, error) {
		return s, errors.New("hard failure")
	}))
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.SetEntry("a"))

	initial := testState{Meta: Meta{Errors: []ErrorRecord{{Step: "prior", Error: "x"}}}}
	final, _ := g.Run(context.Background(), initial)
	require.Len(t, final.Errors, 2)
	assert.Len(t, initial.Errors, 1, "input envelope is never modified")
}

func TestRun_Deterministic(t *testing.T) {
	g := branchGraph(t)

	first, err := g.Run(context.Background(), testState{Route: "go"})
	require.NoError(t, err)
	second, err := g.Run(context.Background(), testState{Route: "go"})
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_ContextCanceled(t *testing.T) {
	g := linearGraph(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := g.Run(ctx, testState{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, final.Visits)
	assert.Equal(t, StatusFailed, final.Status)
}

func TestRun_ProgressEvents(t *testing.T) {
	var events []ProgressEvent
	g := branchGraph(t, WithProgress(func(ev ProgressEvent) { events = append(events, ev) }))

	_, err := g.Run(context.Background(), testState{Route: "go"})
	require.NoError(t, err)

	var kinds []EventKind
	for _, ev := range events {
		assert.Equal(t, "branch", ev.Graph)
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{
		EventStepStarted, EventStepFinished, EventRouted,
		EventStepStarted, EventStepFinished, EventFinished,
	}, kinds)
}

func TestGraph_BuildErrors(t *testing.T) {
	noop := visit("x")

	t.Run("duplicate step", func(t *testing.T) {
		g := New[testState]("g", quietOptions()...)
		require.NoError(t, g.RegisterStep("a", noop))
		assert.ErrorIs(t, g.RegisterStep("a", noop), ErrInvalidGraph)
	})

	t.Run("reserved name", func(t *testing.T) {
		g := New[testState]("g", quietOptions()...)
		assert.ErrorIs(t, g.RegisterStep(End, noop), ErrInvalidGraph)
	})

	t.Run("two outgoing edges", func(t *testing.T) {
		g := New[testState]("g", quietOptions()...)
		require.NoError(t, g.AddEdge("a", "b"))
		err := g.AddConditionalEdge("a", func(testState) Label { return "x" }, map[Label]string{"x": End})
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("empty routes", func(t *testing.T) {
		g := New[testState]("g", quietOptions()...)
		err := g.AddConditionalEdge("a", func(testState) Label { return "x" }, nil)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("unregistered target", func(t *testing.T) {
		g := New[testState]("g", quietOptions()...)
		require.NoError(t, g.RegisterStep("a", noop))
		require.NoError(t, g.AddConditionalEdge("a", func(testState) Label { return "x" }, map[Label]string{"x": "ghost"}))
		require.NoError(t, g.SetEntry("a"))
		err := g.Validate()
		assert.ErrorIs(t, err, ErrInvalidGraph)
		assert.Contains(t, err.Error(), "ghost")

		_, runErr := g.Run(context.Background(), testState{})
		assert.ErrorIs(t, runErr, ErrInvalidGraph)
	})

	t.Run("missing entry", func(t *testing.T) {
		g := New[testState]("g", quietOptions()...)
		require.NoError(t, g.RegisterStep("a", noop))
		assert.ErrorIs(t, g.Validate(), ErrInvalidGraph)
	})
}

func TestGraph_Labels(t *testing.T) {
	g := branchGraph(t)
	assert.Equal(t, []Label{"blocked", "go"}, g.Labels("detect"))
	assert.Nil(t, g.Labels("work"))
	assert.Equal(t, []string{"detect", "work"}, g.Steps())
}

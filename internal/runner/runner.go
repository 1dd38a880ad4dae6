// Package runner drives application and discovery runs: it scopes a browser session to each run,
// builds the workflow graphs, and persists what the runs produce.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/apply-agent/internal/browser"
	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/db"
	"github.com/jonathan/apply-agent/internal/discovery"
	"github.com/jonathan/apply-agent/internal/mapping"
	"github.com/jonathan/apply-agent/internal/pagination"
	"github.com/jonathan/apply-agent/internal/workflow"
)

// DefaultConcurrency is the number of applications a batch runs at once.
const DefaultConcurrency = 3

// ErrInvalidRequest marks a request the runner refused before starting a run.
var ErrInvalidRequest = errors.New("invalid request")

// Sessions hands out page sessions. *browser.Pool implements it.
type Sessions interface {
	Acquire(ctx context.Context) (browser.PageSession, func(), error)
}

// ProgressEvent is an engine event tagged with the run it belongs to
type ProgressEvent struct {
	RunID  string `json:"run_id"`
	JobURL string `json:"job_url,omitempty"`
	Domain string `json:"domain,omitempty"`
	workflow.ProgressEvent
}

// ProgressCallback receives progress for every run the runner starts
type ProgressCallback func(event ProgressEvent)

// Deps holds the collaborators a Runner needs. Sessions and Mapper are required.
type Deps struct {
	Sessions   Sessions
	Mapper     *mapping.Engine
	Inference  capability.Inference
	Resumes    capability.ResumeFetcher
	Store      db.Store
	Pagination *pagination.Controller
	// Sites is the discovery configuration used when a request names no config file.
	Sites *discovery.Config
	// MaxPages bounds pagination for discovery requests that set no bound. Zero defers to the
	// pagination default.
	MaxPages int
	// ConfigRoot confines request config paths to a directory. Empty allows any path.
	ConfigRoot   string
	Concurrency  int
	SubmitSettle time.Duration
	MaxSteps     int
	Now          func() time.Time
	Logger       *slog.Logger
	OnProgress   ProgressCallback
}

// Runner executes workflow runs against pooled browser sessions
type Runner struct {
	Deps
	logger *slog.Logger
}

// New validates deps and fills in defaults.
func New(deps Deps) (*Runner, error) {
	if deps.Sessions == nil {
		return nil, fmt.Errorf("runner: sessions are required")
	}
	if deps.Mapper == nil {
		return nil, fmt.Errorf("runner: mapper is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = db.NewMemory()
	}
	if deps.Pagination == nil {
		deps.Pagination = pagination.New(pagination.WithLogger(deps.Logger))
	}
	if deps.Concurrency < 1 {
		deps.Concurrency = DefaultConcurrency
	}
	if deps.MaxSteps <= 0 {
		deps.MaxSteps = workflow.DefaultMaxSteps
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Runner{Deps: deps, logger: deps.Logger.With("system", "runner")}, nil
}

// graphOptions are the engine options for one run; engine logs carry the run's logger attributes.
func (r *Runner) graphOptions(tag ProgressEvent, logger *slog.Logger) []workflow.Option {
	return []workflow.Option{
		workflow.WithLogger(logger),
		workflow.WithClock(r.Now),
		workflow.WithProgress(func(ev workflow.ProgressEvent) {
			if r.OnProgress == nil {
				return
			}
			out := tag
			out.ProgressEvent = ev
			r.OnProgress(out)
		}),
	}
}

func newRunID() string {
	return uuid.NewString()
}

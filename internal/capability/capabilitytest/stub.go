// Package capabilitytest provides scripted capability stubs for tests.
package capabilitytest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/schemas"
)

// Call records one structured request made against a stub.
type Call struct {
	Instruction string
	Schema      string
}

// Responder hands out canned answers keyed by schema name. Answers for a schema are consumed in
// order; the last one repeats once the queue is down to a single entry.
type Responder struct {
	mu      sync.Mutex
	answers map[string][]any
	errs    map[string]error
	calls   []Call
}

// On queues answers for a schema.
func (r *Responder) On(schema string, answers ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.answers == nil {
		r.answers = map[string][]any{}
	}
	r.answers[schema] = append(r.answers[schema], answers...)
}

// Fail makes every request against schema return err.
func (r *Responder) Fail(schema string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs == nil {
		r.errs = map[string]error{}
	}
	r.errs[schema] = err
}

// Calls returns a copy of the recorded calls.
func (r *Responder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallCount returns how many requests were made against schema.
func (r *Responder) CallCount(schema string) int {
	n := 0
	for _, c := range r.Calls() {
		if c.Schema == schema {
			n++
		}
	}
	return n
}

func (r *Responder) answer(op, instruction string, schema *schemas.Schema, out any) error {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Instruction: instruction, Schema: schema.Name})
	if err, ok := r.errs[schema.Name]; ok {
		r.mu.Unlock()
		return err
	}
	queue := r.answers[schema.Name]
	if len(queue) == 0 {
		r.mu.Unlock()
		return capability.NewError(capability.KindInference, op, "no canned answer for "+schema.Name, nil)
	}
	ans := queue[0]
	if len(queue) > 1 {
		r.answers[schema.Name] = queue[1:]
	}
	r.mu.Unlock()

	if err, ok := ans.(error); ok {
		return err
	}
	data, err := json.Marshal(ans)
	if err != nil {
		return fmt.Errorf("capabilitytest: marshal canned answer: %w", err)
	}
	if err := schema.Validate(string(data)); err != nil {
		return capability.NewError(capability.KindInference, op, "canned answer violates schema", err)
	}
	return json.Unmarshal(data, out)
}

// Inference is a scripted capability.Inference.
type Inference struct {
	Responder
}

// Classify implements capability.Inference.
func (i *Inference) Classify(_ context.Context, instruction string, schema *schemas.Schema, out any) error {
	return i.answer("classify", instruction, schema, out)
}

// EvalFunc computes the result of a page script.
type EvalFunc func(script string, args any) (any, error)

// Page is a scripted capability.Page that also accepts uploads.
// Redirects maps a requested URL to the final URL reported after navigation.
type Page struct {
	Responder

	NavigateErr error
	Redirects   map[string]string
	Eval        EvalFunc
	UploadErr   error

	mu      sync.Mutex
	visited []string
	evals   int
	uploads map[string]string
}

// Navigate implements capability.Page.
func (p *Page) Navigate(_ context.Context, url string) (capability.Navigation, error) {
	p.mu.Lock()
	p.visited = append(p.visited, url)
	p.mu.Unlock()
	if p.NavigateErr != nil {
		return capability.Navigation{}, p.NavigateErr
	}
	final := url
	if to, ok := p.Redirects[url]; ok {
		final = to
	}
	return capability.Navigation{OK: true, FinalURL: final}, nil
}

// Extract implements capability.Page.
func (p *Page) Extract(_ context.Context, instruction string, schema *schemas.Schema, out any) error {
	return p.answer("extract", instruction, schema, out)
}

// Evaluate implements capability.Page.
func (p *Page) Evaluate(_ context.Context, script string, args any, out any) error {
	p.mu.Lock()
	p.evals++
	p.mu.Unlock()
	if p.Eval == nil {
		return capability.NewError(capability.KindScript, "evaluate", "no script handler", nil)
	}
	v, err := p.Eval(script, args)
	if err != nil || out == nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// Upload implements capability.FileUploader.
func (p *Page) Upload(_ context.Context, fieldName, path string) error {
	if p.UploadErr != nil {
		return p.UploadErr
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.uploads == nil {
		p.uploads = map[string]string{}
	}
	p.uploads[fieldName] = path
	return nil
}

// Visited returns the URLs passed to Navigate.
func (p *Page) Visited() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.visited...)
}

// EvalCount returns the number of Evaluate calls.
func (p *Page) EvalCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.evals
}

// Uploads returns the files attached per field.
func (p *Page) Uploads() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.uploads))
	for k, v := range p.uploads {
		out[k] = v
	}
	return out
}

var (
	_ capability.Page         = (*Page)(nil)
	_ capability.FileUploader = (*Page)(nil)
	_ capability.Inference    = (*Inference)(nil)
)

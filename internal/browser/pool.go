package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jonathan/apply-agent/internal/capability"
)

// PageSession is a page that owns resources until closed.
type PageSession interface {
	capability.Page
	capability.FileUploader
	Close() error
}

// Factory opens a new page session.
type Factory func(ctx context.Context) (PageSession, error)

// Launcher returns a Factory that starts a fresh headless browser per session.
func Launcher(classifier ContentClassifier, opts ...Option) Factory {
	return func(ctx context.Context) (PageSession, error) {
		return NewSession(ctx, classifier, opts...)
	}
}

// Pool bounds the number of live page sessions.
type Pool struct {
	sem     *semaphore.Weighted
	factory Factory
	logger  *slog.Logger
}

// NewPool creates a pool allowing at most size concurrent sessions.
func NewPool(size int, factory Factory, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		factory: factory,
		logger:  logger.With("system", "browser_pool"),
	}
}

// Acquire blocks until a slot is free and opens a session in it.
// The returned release closes the session and frees the slot; it is safe to call more than once.
func (p *Pool) Acquire(ctx context.Context) (PageSession, func(), error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, fmt.Errorf("waiting for browser session: %w", err)
	}

	page, err := p.factory(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, nil, fmt.Errorf("opening browser session: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := page.Close(); err != nil {
				p.logger.Warn("closing browser session", "error", err)
			}
			p.sem.Release(1)
		})
	}
	return page, release, nil
}

// Package browser implements the page capability on a headless Chrome session.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/schemas"
)

// Default session settings
const (
	DefaultCallTimeout = 30 * time.Second
	DefaultSettleDelay = 2 * time.Second
)

// ContentClassifier answers a structured question about page content.
// *llm.Inference satisfies it.
type ContentClassifier interface {
	ClassifyContent(ctx context.Context, instruction, content string, schema *schemas.Schema, out any) error
}

// dismissScript clicks the first visible consent button, if any.
const dismissScript = `(() => {
	const sel = 'button[id*="accept"], button[class*="accept"], #onetrust-accept-btn-handler, button[aria-label*="Accept"]';
	const btn = document.querySelector(sel);
	if (btn && btn.offsetParent !== null) { btn.click(); return true; }
	return false;
})()`

// Option configures a Session
type Option func(*Session)

// WithCallTimeout bounds every page call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Session) { s.timeout = d }
}

// WithSettleDelay sets how long to wait after load for client-side rendering.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) { s.settle = d }
}

// WithExecPath sets the Chrome binary.
func WithExecPath(path string) Option {
	return func(s *Session) { s.execPath = path }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// Session is one browser tab. It is not safe for concurrent use.
type Session struct {
	classifier ContentClassifier
	timeout    time.Duration
	settle     time.Duration
	execPath   string
	logger     *slog.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
}

// NewSession starts a headless browser with one tab. Close releases it.
// Extract answers come from classifier, fed with the reduced page content.
func NewSession(ctx context.Context, classifier ContentClassifier, opts ...Option) (*Session, error) {
	s := &Session{
		classifier: classifier,
		timeout:    DefaultCallTimeout,
		settle:     DefaultSettleDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("system", "browser")

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if s.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(s.execPath))
	}

	// The browser lives until Close, not until the caller's context ends.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), allocOpts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx)
	s.ctx, s.cancel, s.allocCancel = tabCtx, cancel, allocCancel

	// The first Run allocates the browser and must use the tab context itself.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	s.logger.Debug("browser session started")
	return s, nil
}

// Close shuts the tab and the browser process.
func (s *Session) Close() error {
	s.cancel()
	s.allocCancel()
	return nil
}

// call derives a context bound to the tab, the per-call timeout, and the caller's cancellation.
func (s *Session) call(ctx context.Context) (context.Context, func()) {
	callCtx, cancel := context.WithTimeout(s.ctx, s.timeout)
	stop := context.AfterFunc(ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url and waits for the body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) (capability.Navigation, error) {
	callCtx, done := s.call(ctx)
	defer done()

	start := time.Now()
	var finalURL string
	var dismissed bool
	err := chromedp.Run(callCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(s.settle),
		chromedp.Evaluate(dismissScript, &dismissed),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return capability.Navigation{}, s.classify(ctx, err, capability.KindNavigation, "navigate", url)
	}
	s.logger.Debug("navigated", "url", url, "final_url", finalURL, "dismissed_banner", dismissed, "elapsed", time.Since(start))
	return capability.Navigation{OK: true, FinalURL: finalURL}, nil
}

// Extract reduces the current page and asks the classifier to answer instruction against it.
func (s *Session) Extract(ctx context.Context, instruction string, schema *schemas.Schema, out any) error {
	callCtx, done := s.call(ctx)
	var html, location string
	err := chromedp.Run(callCtx,
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	done()
	if err != nil {
		return s.classify(ctx, err, capability.KindExtractionTimeout, "extract", schema.Name)
	}

	content, err := Reduce(html, location)
	if err != nil {
		return capability.NewError(capability.KindScript, "extract", "failed to reduce page", err)
	}
	s.logger.Debug("page reduced", "url", location, "schema", schema.Name,
		"html_bytes", len(html), "markdown_bytes", len(content.Markdown), "controls", len(content.Controls))

	if err := s.classifier.ClassifyContent(ctx, instruction, content.Prompt(), schema, out); err != nil {
		if capability.KindOf(err) == capability.KindTimeout {
			return capability.NewError(capability.KindExtractionTimeout, "extract", schema.Name, err)
		}
		return err
	}
	return nil
}

// Evaluate calls script, a JavaScript function expression, with args as its single JSON argument.
// Promises are awaited.
func (s *Session) Evaluate(ctx context.Context, script string, args any, out any) error {
	argJSON, err := json.Marshal(args)
	if err != nil {
		return capability.NewError(capability.KindScript, "evaluate", "failed to encode arguments", err)
	}
	expr := "(" + script + ")(" + string(argJSON) + ")"
	if out == nil {
		var discard any
		out = &discard
	}

	callCtx, done := s.call(ctx)
	defer done()
	err = chromedp.Run(callCtx, chromedp.Evaluate(expr, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err != nil {
		return s.classify(ctx, err, capability.KindScript, "evaluate", "")
	}
	return nil
}

// Upload attaches path to the file input named fieldName (matched by name or id).
func (s *Session) Upload(ctx context.Context, fieldName, path string) error {
	selector := `input[type="file"]`
	if fieldName != "" {
		q := strconv.Quote(fieldName)
		selector = fmt.Sprintf(`input[type="file"][name=%s], input[type="file"][id=%s]`, q, q)
	}

	callCtx, done := s.call(ctx)
	defer done()
	if err := chromedp.Run(callCtx, chromedp.SetUploadFiles(selector, []string{path}, chromedp.ByQuery)); err != nil {
		return s.classify(ctx, err, capability.KindScript, "upload", fieldName)
	}
	s.logger.Info("file attached", "field", fieldName)
	return nil
}

// classify maps a chromedp failure onto a capability error. A call that ran out of time reports
// KindTimeout, except extraction which has its own kind.
func (s *Session) classify(ctx context.Context, err error, kind capability.Kind, op, detail string) error {
	timedOut := errors.Is(err, context.DeadlineExceeded) || (errors.Is(err, context.Canceled) && ctx.Err() == nil)
	switch {
	case ctx.Err() != nil:
		return capability.NewError(kind, op, detail, ctx.Err())
	case timedOut && kind == capability.KindExtractionTimeout:
		return capability.NewError(kind, op, detail, err)
	case timedOut:
		return capability.NewError(capability.KindTimeout, op, detail, err)
	}
	s.logger.Warn("page call failed", "op", op, "detail", detail, "error", err)
	return capability.NewError(kind, op, detail, err)
}

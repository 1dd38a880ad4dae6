// Package pagination decides whether a loaded listing page has a next page.
package pagination

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/prompts"
	"github.com/jonathan/apply-agent/internal/schemas"
	"github.com/jonathan/apply-agent/internal/types"
)

// DefaultMaxPages is used when a caller passes a non-positive page bound.
const DefaultMaxPages = 5

// Source identifies how a next-page decision was reached
type Source string

// Decision sources
const (
	SourceBound     Source = "bound"
	SourceInference Source = "inference"
	SourceSelector  Source = "selector"
	SourceNone      Source = "none"
)

// Result is the outcome of NextPage. NextPageURL is empty when HasMorePages is false.
type Result struct {
	HasMorePages bool   `json:"hasMorePages"`
	NextPageURL  string `json:"nextPageUrl"`
	Source       Source `json:"source"`
	Selector     string `json:"selector,omitempty"`
	Reasoning    string `json:"reasoning,omitempty"`
}

// NextPageSelectors returns the selector patterns tried, in order, when inference finds nothing.
// Entries prefixed with "text=" match anchors by their visible text.
func NextPageSelectors() []string {
	return []string{
		`a[rel="next"]`,
		`link[rel="next"]`,
		`a[aria-label="Next page"]`,
		`a[aria-label="Next"]`,
		`a[aria-label*="next" i]`,
		`[data-testid="pagination-next"] a`,
		`a[data-testid="pagination-next"]`,
		`.pagination a.next`,
		`.pagination .next a`,
		`li.next a`,
		`a.next`,
		`a.pagination-next`,
		`a.next-page`,
		`text=Next`,
		`text=Next page`,
		`text=Next ›`,
		`text=›`,
		`text=»`,
	}
}

// findScript receives the selector list and returns, for every selector that matches an element
// with an href, {selector, href}. Browser-resolved hrefs are absolute.
const findScript = `(selectors) => {
  const found = [];
  for (const sel of selectors) {
    let el = null;
    if (sel.startsWith("text=")) {
      const want = sel.slice(5).trim().toLowerCase();
      el = Array.from(document.querySelectorAll("a[href]"))
        .find(a => (a.textContent || "").trim().toLowerCase() === want) || null;
    } else {
      try { el = document.querySelector(sel); } catch (e) { el = null; }
    }
    if (el && el.href) found.push({selector: sel, href: String(el.href)});
  }
  return found;
}`

var instruction = prompts.MustGet("discovery.json", "find-next-page")

type nextPageAnswer struct {
	HasNextPage bool    `json:"hasNextPage"`
	NextPageURL *string `json:"nextPageUrl"`
	Reasoning   string  `json:"reasoning"`
}

type selectorHit struct {
	Selector string `json:"selector"`
	Href     string `json:"href"`
}

// Controller resolves next-page URLs, inference first with a selector fallback.
type Controller struct {
	selectors []string
	logger    *slog.Logger
}

// Option configures a Controller
type Option func(*Controller)

// WithSelectors replaces the fallback selector list.
func WithSelectors(selectors []string) Option {
	return func(c *Controller) { c.selectors = selectors }
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// New creates a Controller.
func New(opts ...Option) *Controller {
	c := &Controller{selectors: NextPageSelectors(), logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("system", "pagination")
	return c
}

// NextPage decides whether the listing loaded in page continues past currentPage.
//
// When currentPage >= maxPages no capability is called. An inference answer is accepted only if it is
// an absolute http(s) URL that differs from currentURL; otherwise the selector list is evaluated in the
// page. A script failure ends the chain instead of failing the run.
func (c *Controller) NextPage(ctx context.Context, page capability.Page, currentURL string, currentPage, maxPages int) Result {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if currentPage >= maxPages {
		return Result{Source: SourceBound, Reasoning: "page limit reached"}
	}
	if page == nil {
		return Result{Source: SourceNone, Reasoning: "no page"}
	}

	if res, ok := c.fromInference(ctx, page, currentURL); ok {
		return res
	}
	if res, ok := c.fromSelectors(ctx, page, currentURL); ok {
		return res
	}
	return Result{Source: SourceNone, Reasoning: "no next page control found"}
}

func (c *Controller) fromInference(ctx context.Context, page capability.Page, currentURL string) (Result, bool) {
	var ans nextPageAnswer
	if err := page.Extract(ctx, instruction, schemas.MustLoad(schemas.NextPage), &ans); err != nil {
		c.logger.Warn("next page inference failed", "url", currentURL, "error", err)
		return Result{}, false
	}
	if !ans.HasNextPage || ans.NextPageURL == nil {
		return Result{}, false
	}
	next, ok := Accept(*ans.NextPageURL, currentURL)
	if !ok {
		c.logger.Debug("next page answer rejected", "url", currentURL, "answer", *ans.NextPageURL)
		return Result{}, false
	}
	return Result{HasMorePages: true, NextPageURL: next, Source: SourceInference, Reasoning: ans.Reasoning}, true
}

func (c *Controller) fromSelectors(ctx context.Context, page capability.Page, currentURL string) (Result, bool) {
	if len(c.selectors) == 0 {
		return Result{}, false
	}
	var hits []selectorHit
	if err := page.Evaluate(ctx, findScript, c.selectors, &hits); err != nil {
		c.logger.Warn("next page selectors failed", "url", currentURL, "error", err)
		return Result{}, false
	}
	for _, hit := range hits {
		if next, ok := Accept(hit.Href, currentURL); ok {
			return Result{HasMorePages: true, NextPageURL: next, Source: SourceSelector, Selector: hit.Selector}, true
		}
	}
	return Result{}, false
}

// Accept returns candidate trimmed if it is an absolute http(s) URL that is not the current page.
func Accept(candidate, currentURL string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	u, err := url.Parse(candidate)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if types.CanonicalURL(candidate) == types.CanonicalURL(currentURL) {
		return "", false
	}
	return candidate, true
}

package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/discovery"
	"github.com/jonathan/apply-agent/internal/pagination"
	"github.com/jonathan/apply-agent/internal/prompts"
	"github.com/jonathan/apply-agent/internal/schemas"
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/jonathan/apply-agent/internal/workflow"
)

// Discovery graph steps
const (
	StepConstructURLs     = "construct_urls"
	StepIterateNextURL    = "iterate_next_url"
	StepScrapeListing     = "scrape_listing"
	StepPaginateOrAdvance = "paginate_or_advance"
)

// Discovery graph labels
const (
	LabelScrape    workflow.Label = "scrape"
	LabelExhausted workflow.Label = "exhausted"
	LabelNextPage  workflow.Label = "next_page"
	LabelAdvance   workflow.Label = "advance"
	LabelDone      workflow.Label = "done"
)

// URL sources recorded by construct_urls
const (
	URLSourceConfig    = "config"
	URLSourceInference = "inference"
)

// MaxPagesLimit is the largest per-target page bound a run accepts.
const MaxPagesLimit = 50

// ConstructionReport is the result of construct_urls
type ConstructionReport struct {
	StepResult
	Source  string   `json:"source,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
}

// ScrapeReport is the result of the latest scrape_listing
type ScrapeReport struct {
	StepResult
	Found int `json:"found"`
	Added int `json:"added"`
}

// DiscoveryState is the envelope of the discovery graph.
// Next is the zero-based index of the next URL to take from URLs.
type DiscoveryState struct {
	workflow.Meta
	Domain       string             `json:"domain"`
	Filters      map[string]string  `json:"filters"`
	MaxPages     int                `json:"maxPages"`
	Company      string             `json:"company,omitempty"`
	URLs         []string           `json:"urls"`
	Next         int                `json:"next"`
	Target       types.Target       `json:"target"`
	PageURL      string             `json:"pageUrl"`
	Pagination   types.Pagination   `json:"pagination"`
	PageState    types.PageState    `json:"pageState"`
	Construction ConstructionReport `json:"construction"`
	Scrape       ScrapeReport       `json:"scrape"`
	Processed    []string           `json:"processedUrls"`
	Jobs         []types.JobRecord  `json:"jobs"`
	Failures     []string           `json:"failures"`
}

// NewDiscoveryState builds the initial envelope. maxPages <= 0 defers to the site configuration.
func NewDiscoveryState(domain string, filters map[string]string, maxPages int) DiscoveryState {
	return DiscoveryState{
		Domain:    strings.TrimSpace(domain),
		Filters:   maps.Clone(filters),
		MaxPages:  maxPages,
		URLs:      []string{},
		Processed: []string{},
		Jobs:      []types.JobRecord{},
		Failures:  []string{},
	}
}

// RunMeta implements workflow.Envelope.
func (s DiscoveryState) RunMeta() workflow.Meta { return s.Meta }

// WithRunMeta implements workflow.Envelope.
func (s DiscoveryState) WithRunMeta(m workflow.Meta) DiscoveryState { s.Meta = m; return s }

// Result converts a final envelope into the caller-facing discovery result.
func (s DiscoveryState) Result() types.DiscoveryResult {
	errs := append([]string{}, s.Failures...)
	for _, e := range s.Errors {
		errs = append(errs, e.Step+": "+e.Error)
	}
	return types.DiscoveryResult{
		ProcessedURLs: append([]string{}, s.Processed...),
		ScrapedJobs:   append([]types.JobRecord{}, s.Jobs...),
		Count:         len(s.Jobs),
		Errors:        errs,
	}
}

// DiscoveryDeps are the collaborators of one discovery run.
// Inference builds search URLs for domains missing from Sites; it may be nil.
type DiscoveryDeps struct {
	Page       capability.Page
	Inference  capability.Inference
	Sites      *discovery.Config
	Pagination *pagination.Controller
	Now        func() time.Time
	Logger     *slog.Logger
}

type discoverer struct {
	DiscoveryDeps
	logger *slog.Logger
}

// NewDiscoveryGraph wires construct_urls → iterate_next_url → scrape_listing → paginate_or_advance,
// which loops back to scrape_listing for the next page or to iterate_next_url for the next target.
func NewDiscoveryGraph(deps DiscoveryDeps, opts ...workflow.Option) (*workflow.Graph[DiscoveryState], error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Pagination == nil {
		deps.Pagination = pagination.New(pagination.WithLogger(deps.Logger))
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	d := &discoverer{DiscoveryDeps: deps, logger: deps.Logger.With("system", "discovery")}

	// Every target costs one iterate step plus a scrape and paginate step per page.
	bound := 2 + discovery.MaxTargets*(1+2*MaxPagesLimit)
	base := []workflow.Option{workflow.WithLogger(deps.Logger), workflow.WithMaxSteps(bound)}

	b := &graphBuilder[DiscoveryState]{g: workflow.New[DiscoveryState](DiscoveryGraph, append(base, opts...)...)}
	b.step(StepConstructURLs, d.constructURLs)
	b.step(StepIterateNextURL, d.iterateNextURL)
	b.step(StepScrapeListing, d.scrapeListing)
	b.step(StepPaginateOrAdvance, d.paginateOrAdvance)
	b.edge(StepConstructURLs, StepIterateNextURL)
	b.branch(StepIterateNextURL, decideAfterIterate, map[workflow.Label]string{
		LabelScrape:    StepScrapeListing,
		LabelExhausted: workflow.End,
	})
	b.edge(StepScrapeListing, StepPaginateOrAdvance)
	b.branch(StepPaginateOrAdvance, decideAfterPaginate, map[workflow.Label]string{
		LabelNextPage: StepScrapeListing,
		LabelAdvance:  StepIterateNextURL,
		LabelDone:     workflow.End,
	})
	return b.build(StepConstructURLs)
}

func decideAfterIterate(s DiscoveryState) workflow.Label {
	if s.PageURL == "" {
		return LabelExhausted
	}
	return LabelScrape
}

func decideAfterPaginate(s DiscoveryState) workflow.Label {
	switch {
	case s.Pagination.HasMorePages:
		return LabelNextPage
	case s.Next < len(s.URLs):
		return LabelAdvance
	}
	return LabelDone
}

type searchURLsAnswer struct {
	URLs []string `json:"urls"`
}

func (d *discoverer) constructURLs(ctx context.Context, s DiscoveryState) (DiscoveryState, error) {
	if err := workflow.Require(s.Domain != "", StepConstructURLs, "domain", "no domain"); err != nil {
		return s, err
	}

	site, known := d.Sites.Site(s.Domain)
	if s.MaxPages <= 0 {
		s.MaxPages = site.MaxPages
	}
	if s.MaxPages <= 0 {
		s.MaxPages = pagination.DefaultMaxPages
	}
	s.MaxPages = min(s.MaxPages, MaxPagesLimit)
	s.Company = site.Company

	var report ConstructionReport
	var urls []string
	if known {
		urls, report.Skipped = site.URLs(s.Filters)
		report.Source = URLSourceConfig
	}
	if len(urls) == 0 && d.Inference != nil {
		var ans searchURLsAnswer
		err := d.Inference.Classify(ctx, searchInstruction(s.Domain, s.Filters, site.SearchURLs), schemas.MustLoad(schemas.SearchURLs), &ans)
		if err != nil {
			d.logger.Warn("search URL inference failed", "domain", s.Domain, "error", err)
			report.Skipped = append(report.Skipped, "inference: "+err.Error())
		} else {
			urls = acceptSearchURLs(ans.URLs)
			report.Source = URLSourceInference
		}
	}

	if urls == nil {
		urls = []string{}
	}
	s.URLs = urls
	s.Next = 0
	if len(urls) == 0 {
		report.StepResult = failed("no search URLs for " + s.Domain)
		s.Construction = report
		s.CurrentStep = workflow.Skip(StepConstructURLs)
		return s, nil
	}
	report.StepResult = succeeded()
	s.Construction = report
	d.logger.Info("search URLs constructed", "domain", s.Domain, "count", len(urls), "source", report.Source)
	return s, nil
}

func searchInstruction(domain string, filters map[string]string, templates []string) string {
	var fl strings.Builder
	for _, k := range sortedKeys(filters) {
		fmt.Fprintf(&fl, "- %s: %s\n", k, filters[k])
	}
	known := ""
	if len(templates) > 0 {
		known = prompts.Format(prompts.MustGet("discovery.json", "search-url-templates"), map[string]string{
			"Templates": "- " + strings.Join(templates, "\n- ") + "\n",
		})
	}
	return prompts.Format(prompts.MustGet("discovery.json", "build-search-urls"), map[string]string{
		"Domain":    domain,
		"MaxURLs":   strconv.Itoa(discovery.MaxTargets),
		"Filters":   fl.String(),
		"Templates": known,
	})
}

// acceptSearchURLs keeps absolute http(s) URLs, without duplicates, up to the target cap.
func acceptSearchURLs(candidates []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, c := range candidates {
		u, ok := pagination.Accept(c, "")
		if !ok {
			continue
		}
		key := types.CanonicalURL(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
		if len(out) == discovery.MaxTargets {
			break
		}
	}
	return out
}

func (d *discoverer) iterateNextURL(_ context.Context, s DiscoveryState) (DiscoveryState, error) {
	s.Pagination = types.FirstPage()
	if s.Next >= len(s.URLs) {
		s.PageURL = ""
		return s, nil
	}
	target := s.URLs[s.Next]
	s.Next++
	s.Target = types.Target{URL: target, Domain: s.Domain, Filters: s.Filters}
	s.PageURL = target
	s.PageState = types.PageState{}
	return s, nil
}

var listingInstruction = prompts.MustGet("discovery.json", "scrape-listing")

type listingAnswer struct {
	Jobs []struct {
		Title    string `json:"title"`
		URL      string `json:"url"`
		Company  string `json:"company"`
		Location string `json:"location"`
	} `json:"jobs"`
}

func (d *discoverer) scrapeListing(ctx context.Context, s DiscoveryState) (DiscoveryState, error) {
	if err := workflow.Require(d.Page != nil, StepScrapeListing, "page", "no page session"); err != nil {
		return s, err
	}

	s.Processed = append(s.Processed[:len(s.Processed):len(s.Processed)], s.PageURL)
	nav, err := d.Page.Navigate(ctx, s.PageURL)
	if err != nil || !nav.OK {
		if err == nil {
			err = fmt.Errorf("navigation did not complete")
		}
		d.logger.Warn("listing failed to load", "url", s.PageURL, "error", err)
		s.PageState = types.PageState{URL: s.PageURL, Error: err.Error()}
		s.Scrape = ScrapeReport{StepResult: failed(err.Error())}
		s.Failures = appendFailure(s.Failures, s.PageURL, err)
		return s, nil
	}
	s.PageState = types.PageState{Loaded: true, URL: s.PageURL, FinalURL: nav.FinalURL}

	var ans listingAnswer
	if err := d.Page.Extract(ctx, listingInstruction, schemas.MustLoad(schemas.JobListings), &ans); err != nil {
		d.logger.Warn("listing extraction failed", "url", s.PageURL, "error", err)
		s.Scrape = ScrapeReport{StepResult: failed(err.Error())}
		s.Failures = appendFailure(s.Failures, s.PageURL, err)
		return s, nil
	}

	base := nav.FinalURL
	if base == "" {
		base = s.PageURL
	}
	seen := make(map[string]bool, len(s.Jobs))
	for _, j := range s.Jobs {
		seen[j.ID] = true
	}
	now := d.Now()
	jobs := s.Jobs[:len(s.Jobs):len(s.Jobs)]
	added := 0
	for _, j := range ans.Jobs {
		link, ok := resolveLink(base, j.URL)
		if !ok {
			continue
		}
		id := types.JobID(link)
		if seen[id] {
			continue
		}
		seen[id] = true
		company := strings.TrimSpace(j.Company)
		if company == "" {
			company = s.Company
		}
		jobs = append(jobs, types.JobRecord{
			ID:        id,
			URL:       link,
			Status:    types.StatusDiscovered,
			Title:     strings.TrimSpace(j.Title),
			Company:   company,
			Location:  strings.TrimSpace(j.Location),
			Domain:    s.Domain,
			Filters:   maps.Clone(s.Filters),
			SourceURL: s.PageURL,
			ScrapedAt: now,
			UpdatedAt: now,
		})
		added++
	}
	s.Jobs = jobs
	s.Scrape = ScrapeReport{StepResult: succeeded(), Found: len(ans.Jobs), Added: added}
	d.logger.Info("listing scraped", "url", s.PageURL, "page", s.Pagination.CurrentPage, "found", len(ans.Jobs), "added", added)
	return s, nil
}

// resolveLink makes href absolute against base and drops its fragment. Only http(s) links are kept.
func resolveLink(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	u := b.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}

func (d *discoverer) paginateOrAdvance(ctx context.Context, s DiscoveryState) (DiscoveryState, error) {
	stop := func(s DiscoveryState) DiscoveryState {
		s.Pagination = types.Pagination{CurrentPage: s.Pagination.CurrentPage}
		return s
	}
	if !s.PageState.Loaded || s.Pagination.CurrentPage >= s.MaxPages {
		return stop(s), nil
	}

	current := s.PageState.FinalURL
	if current == "" {
		current = s.PageURL
	}
	res := d.Pagination.NextPage(ctx, d.Page, current, s.Pagination.CurrentPage, s.MaxPages)
	if !res.HasMorePages {
		d.logger.Debug("pagination ended", "url", current, "page", s.Pagination.CurrentPage, "source", res.Source)
		return stop(s), nil
	}
	for _, p := range s.Processed {
		if types.CanonicalURL(p) == types.CanonicalURL(res.NextPageURL) {
			d.logger.Debug("next page already visited", "url", res.NextPageURL)
			return stop(s), nil
		}
	}

	s.Pagination = types.Pagination{
		CurrentPage:  s.Pagination.CurrentPage + 1,
		HasMorePages: true,
		NextPageURL:  res.NextPageURL,
	}
	s.PageURL = res.NextPageURL
	return s, nil
}

func appendFailure(failures []string, pageURL string, err error) []string {
	return append(failures[:len(failures):len(failures)], pageURL+": "+err.Error())
}

func sortedKeys(m map[string]string) []string {
	return slices.Sorted(maps.Keys(m))
}

//nolint:revive // types is a standard Go package name pattern
package types

// Target is the subject of a run: a URL plus the query/filter context it was built from.
type Target struct {
	URL     string            `json:"url"`
	Domain  string            `json:"domain,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

// Blockers are page conditions that prevent continuing an application.
// Each flag carries the reasoning the assessment gave for it.
type Blockers struct {
	HasLoginRequired             bool   `json:"hasLoginRequired"`
	LoginReasoning               string `json:"loginReasoning,omitempty"`
	HasOAuthRequired             bool   `json:"hasOAuthRequired"`
	OAuthReasoning               string `json:"oauthReasoning,omitempty"`
	HasEmailVerificationRequired bool   `json:"hasEmailVerificationRequired"`
	EmailVerificationReasoning   string `json:"emailVerificationReasoning,omitempty"`
	HasBlockingModal             bool   `json:"hasBlockingModal"`
	BlockingModalReasoning       string `json:"blockingModalReasoning,omitempty"`
}

// Any reports whether any blocker flag is set.
func (b Blockers) Any() bool {
	return b.HasLoginRequired || b.HasOAuthRequired || b.HasEmailVerificationRequired || b.HasBlockingModal
}

// PageState is the result of the most recent page interaction
type PageState struct {
	Loaded        bool     `json:"loaded"`
	URL           string   `json:"url"`
	FinalURL      string   `json:"finalUrl,omitempty"`
	HasForm       bool     `json:"hasForm"`
	FormReasoning string   `json:"formReasoning,omitempty"`
	Blockers      Blockers `json:"blockers"`
	Error         string   `json:"error,omitempty"`
}

// Pagination tracks the page position within one listing target.
// NextPageURL is empty when there is no next page.
type Pagination struct {
	CurrentPage  int    `json:"currentPage"`
	HasMorePages bool   `json:"hasMorePages"`
	NextPageURL  string `json:"nextPageUrl"`
}

// FirstPage returns the pagination state for a freshly selected target.
func FirstPage() Pagination {
	return Pagination{CurrentPage: 1}
}

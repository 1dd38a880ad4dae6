//nolint:revive // types is a standard Go package name pattern
package types

import (
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle status of a job record
type JobStatus string

// Job record statuses
const (
	StatusDiscovered JobStatus = "discovered"
	StatusProcessing JobStatus = "processing"
	StatusApplied    JobStatus = "applied"
	StatusFailed     JobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusDiscovered, StatusProcessing, StatusApplied, StatusFailed:
		return true
	}
	return false
}

// JobRecord is a persisted job posting, keyed by an opaque id.
type JobRecord struct {
	ID        string            `json:"id"`
	URL       string            `json:"url"`
	Status    JobStatus         `json:"status"`
	Title     string            `json:"title,omitempty"`
	Company   string            `json:"company,omitempty"`
	Location  string            `json:"location,omitempty"`
	Domain    string            `json:"domain,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
	SourceURL string            `json:"sourceUrl,omitempty"`
	Error     string            `json:"error,omitempty"`
	ScrapedAt time.Time         `json:"scrapedAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// JobID derives the stable record id for a job URL.
// Fragments and trailing slashes do not produce distinct ids.
func JobID(rawURL string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(CanonicalURL(rawURL))).String()
}

// CanonicalURL lowercases the scheme and host and drops the fragment and any trailing slash.
// Unparseable input is returned trimmed.
func CanonicalURL(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
		u.RawPath = ""
	} else {
		u.Path = ""
	}
	return u.String()
}

// DomainOf returns the host of a URL without a leading "www.".
func DomainOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// MergeStatus picks the status to keep when an incoming record overwrites an existing one.
// A rediscovered posting never downgrades a record that has progressed past discovery.
func MergeStatus(existing, incoming JobStatus) JobStatus {
	if incoming == StatusDiscovered && existing != "" && existing != StatusDiscovered {
		return existing
	}
	return incoming
}

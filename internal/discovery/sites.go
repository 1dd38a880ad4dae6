// Package discovery holds job-site search configuration and builds listing URLs from it.
package discovery

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jonathan/apply-agent/internal/types"
)

// MaxTargets caps the number of listing URLs one discovery run visits.
const MaxTargets = 20

// Site describes how to search one job site.
// SearchURLs are templates whose {placeholders} are filled from filters, e.g.
// "https://jobs.example.com/search?q={query}&l={location}".
type Site struct {
	Domain     string            `yaml:"domain"`
	Company    string            `yaml:"company,omitempty"`
	SearchURLs []string          `yaml:"search_urls"`
	Defaults   map[string]string `yaml:"defaults,omitempty"`
	MaxPages   int               `yaml:"max_pages,omitempty"`
}

// Config is the discovery site registry
type Config struct {
	Sites []Site `yaml:"sites"`
}

// Parse decodes a site registry from YAML.
func Parse(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("discovery: site config is empty")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("discovery: decode site config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFile reads a site registry from path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("discovery: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("discovery: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that every site names a domain and that domains are unique.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, s := range c.Sites {
		d := normalizeDomain(s.Domain)
		if d == "" {
			return fmt.Errorf("discovery: site %d has no domain", i)
		}
		if seen[d] {
			return fmt.Errorf("discovery: duplicate site %q", d)
		}
		seen[d] = true
		if s.MaxPages < 0 {
			return fmt.Errorf("discovery: site %q has negative max_pages", d)
		}
	}
	return nil
}

// Site returns the entry for domain. Matching ignores case, scheme and a leading "www.".
func (c *Config) Site(domain string) (Site, bool) {
	if c == nil {
		return Site{}, false
	}
	want := normalizeDomain(domain)
	for _, s := range c.Sites {
		if normalizeDomain(s.Domain) == want {
			return s, true
		}
	}
	return Site{}, false
}

// Domains lists the configured domains.
func (c *Config) Domains() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Sites))
	for _, s := range c.Sites {
		out = append(out, normalizeDomain(s.Domain))
	}
	slices.Sort(out)
	return out
}

// URLs fills every search template with the site defaults overlaid by filters.
// Templates left with unfilled placeholders are reported in skipped, not returned.
func (s Site) URLs(filters map[string]string) (urls []string, skipped []string) {
	values := make(map[string]string, len(s.Defaults)+len(filters))
	for k, v := range s.Defaults {
		values[strings.ToLower(k)] = v
	}
	for k, v := range filters {
		values[strings.ToLower(k)] = v
	}

	seen := map[string]bool{}
	for _, tmpl := range s.SearchURLs {
		u, missing := Fill(tmpl, values)
		if len(missing) > 0 {
			skipped = append(skipped, fmt.Sprintf("%s: missing %s", tmpl, strings.Join(missing, ", ")))
			continue
		}
		key := types.CanonicalURL(u)
		if seen[key] {
			continue
		}
		seen[key] = true
		urls = append(urls, u)
		if len(urls) == MaxTargets {
			break
		}
	}
	return urls, skipped
}

func normalizeDomain(d string) string {
	d = strings.TrimSpace(d)
	if strings.Contains(d, "://") {
		return types.DomainOf(d)
	}
	d = strings.ToLower(strings.TrimSuffix(d, "/"))
	return strings.TrimPrefix(d, "www.")
}

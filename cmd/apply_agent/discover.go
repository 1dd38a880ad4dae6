package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jonathan/apply-agent/internal/config"
	"github.com/jonathan/apply-agent/internal/observability"
	"github.com/jonathan/apply-agent/internal/runner"
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover job postings on a configured site",
	Long: `Fill the site's URL templates with the filters, scrape every listing page across pagination and
record the jobs found.

Example:
  apply_agent discover --domain jobs.example.com --sites sites.yaml --filter keywords=golang --filter location=remote`,
	RunE: runDiscover,
}

var (
	discoverDomain      string
	discoverFilters     map[string]string
	discoverSites       string
	discoverMaxPages    int
	discoverDatabaseURL string
	discoverSQLitePath  string
	discoverJSON        bool
)

func init() {
	discoverCmd.Flags().StringVarP(&discoverDomain, "domain", "d", "", "Site domain from the sites file (required)")
	discoverCmd.Flags().StringToStringVarP(&discoverFilters, "filter", "f", nil, "Search filter as key=value (repeatable)")
	discoverCmd.Flags().StringVar(&discoverSites, "sites", "", "Discovery sites YAML file (optional, defaults to SITES_PATH env var)")
	discoverCmd.Flags().IntVar(&discoverMaxPages, "max-pages", 0, "Maximum listing pages per search URL")
	discoverCmd.Flags().StringVar(&discoverDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	discoverCmd.Flags().StringVar(&discoverSQLitePath, "sqlite", "", "SQLite job store path (used when no database URL is set)")
	discoverCmd.Flags().BoolVar(&discoverJSON, "json", false, "Print the result as JSON")

	_ = discoverCmd.MarkFlagRequired("domain")

	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	req := types.DiscoveryRequest{Domain: discoverDomain, Filters: discoverFilters, MaxPages: discoverMaxPages}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid discovery: %w", err)
	}

	cfg, err := loadConfig(func(c *config.Config) {
		if cmd.Flags().Changed("sites") {
			c.SitesPath = discoverSites
		}
		if cmd.Flags().Changed("max-pages") {
			c.MaxPages = discoverMaxPages
		}
		if cmd.Flags().Changed("db-url") {
			c.DatabaseURL = discoverDatabaseURL
		}
		if cmd.Flags().Changed("sqlite") {
			c.SQLitePath = discoverSQLitePath
		}
	})
	if err != nil {
		return err
	}
	if cfg.SitesPath == "" {
		return fmt.Errorf("a sites file is required: pass --sites or set SITES_PATH")
	}
	out := cmd.OutOrStdout()
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	a, err := newApp(cmd.Context(), cfg, logger, out)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.runner.Discover(cmd.Context(), runner.DiscoverRequest{
		Domain:   req.Domain,
		Filters:  req.Filters,
		MaxPages: cfg.MaxPages,
	})
	if err != nil {
		return err
	}

	if discoverJSON {
		return writeJSON(out, result)
	}
	observability.NewPrinter(out).PrintDiscoveryResult(&result)
	return nil
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

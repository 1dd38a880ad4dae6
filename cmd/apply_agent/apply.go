package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jonathan/apply-agent/internal/config"
	"github.com/jonathan/apply-agent/internal/observability"
	"github.com/jonathan/apply-agent/internal/runner"
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/spf13/cobra"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply to one or more job postings",
	Long: `Open each job URL in a headless browser, map the candidate onto the application form, fill it and
submit it. Jobs already recorded as applied are skipped. With --dry-run the form is filled but not
submitted and nothing is recorded.`,
	RunE: runApply,
}

var (
	applyJobURLs     []string
	applyCandidate   string
	applyDescription string
	applyDryRun      bool
	applyConcurrency int
	applyDatabaseURL string
	applySQLitePath  string
	applyResumeDir   string
	applyJSON        bool
)

func init() {
	applyCmd.Flags().StringSliceVarP(&applyJobURLs, "job-url", "u", nil, "Job posting URL (repeatable; more than one runs a batch)")
	applyCmd.Flags().StringVarP(&applyCandidate, "candidate", "c", "", "Path to candidate JSON file")
	applyCmd.Flags().StringVar(&applyDescription, "job-description", "", "Path to a job description text file (single URL only)")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Fill the form without submitting")
	applyCmd.Flags().IntVar(&applyConcurrency, "concurrency", 0, "Maximum concurrent applications in a batch")
	applyCmd.Flags().StringVar(&applyDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	applyCmd.Flags().StringVar(&applySQLitePath, "sqlite", "", "SQLite job store path (used when no database URL is set)")
	applyCmd.Flags().StringVar(&applyResumeDir, "resume-dir", "", "Directory resumes are read from, by candidate resumeId")
	applyCmd.Flags().BoolVar(&applyJSON, "json", false, "Print the result as JSON")

	_ = applyCmd.MarkFlagRequired("job-url")
	_ = applyCmd.MarkFlagRequired("candidate")

	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	candidate, err := readCandidate(applyCandidate)
	if err != nil {
		return err
	}
	description := ""
	if applyDescription != "" {
		if len(applyJobURLs) > 1 {
			return fmt.Errorf("--job-description applies to a single --job-url")
		}
		data, err := os.ReadFile(applyDescription)
		if err != nil {
			return fmt.Errorf("failed to read job description: %w", err)
		}
		description = string(data)
	}

	if len(applyJobURLs) == 1 {
		req := types.SingleApplicationRequest{JobURL: applyJobURLs[0], CandidateData: *candidate, JobDescription: description, DryRun: applyDryRun}
		if err := req.Validate(); err != nil {
			return fmt.Errorf("invalid application: %w", err)
		}
	} else {
		req := types.BatchApplicationRequest{JobURLs: applyJobURLs, CandidateData: *candidate, DryRun: applyDryRun}
		if err := req.Validate(); err != nil {
			return fmt.Errorf("invalid application batch: %w", err)
		}
	}

	cfg, err := loadConfig(func(c *config.Config) {
		if cmd.Flags().Changed("concurrency") {
			c.MaxConcurrency = applyConcurrency
		}
		if cmd.Flags().Changed("db-url") {
			c.DatabaseURL = applyDatabaseURL
		}
		if cmd.Flags().Changed("sqlite") {
			c.SQLitePath = applySQLitePath
		}
		if cmd.Flags().Changed("resume-dir") {
			c.ResumeDir = applyResumeDir
			c.AzureConnection = ""
		}
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	a, err := newApp(cmd.Context(), cfg, logger, out)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(applyJobURLs) == 1 {
		outcome, err := a.runner.Apply(cmd.Context(), runner.ApplyRequest{
			JobURL:         applyJobURLs[0],
			Candidate:      *candidate,
			JobDescription: description,
			DryRun:         applyDryRun,
		})
		if err != nil {
			return err
		}
		if applyJSON {
			if err := writeJSON(out, outcome); err != nil {
				return err
			}
		} else {
			observability.NewPrinter(out).PrintApplicationOutcome(&outcome)
		}
		if !outcome.Success() {
			return fmt.Errorf("application not completed: %s", outcome.Message())
		}
		return nil
	}

	result := a.runner.ApplyBatch(cmd.Context(), applyJobURLs, *candidate, applyDryRun)
	if applyJSON {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		observability.NewPrinter(out).PrintBatchResult(&result)
	}
	if result.Summary.Failed > 0 {
		return fmt.Errorf("%d of %d applications failed", result.Summary.Failed, result.Summary.Total)
	}
	return nil
}

// readCandidate loads a candidate JSON file.
func readCandidate(path string) (*types.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read candidate file: %w", err)
	}
	var c types.Candidate
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse candidate JSON: %w", err)
	}
	return &c, nil
}

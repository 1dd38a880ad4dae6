// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/apply-agent/internal/catalog"
	"github.com/jonathan/apply-agent/internal/runner"
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/jonathan/apply-agent/internal/workflow"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// writeList writes a labelled list, showing at most maxItemsToShow entries.
func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString(fmt.Sprintf("%s (%d):\n", label, len(items)))
	count := min(len(items), maxItemsToShow)
	for i := 0; i < count; i++ {
		sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
	}
	if len(items) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-maxItemsToShow))
	}
}

// PrintProgress writes one line per engine event.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintProgress(event runner.ProgressEvent) {
	switch event.Kind {
	case workflow.EventStepStarted:
		fmt.Fprintf(p.out, "→ %s\n", event.Step)
	case workflow.EventStepFinished:
		fmt.Fprintf(p.out, "✓ %s (%s)\n", event.Step, event.Duration.Round(1e6))
	case workflow.EventStepFailed:
		fmt.Fprintf(p.out, "✗ %s: %v\n", event.Step, event.Err)
	case workflow.EventRouted:
		fmt.Fprintf(p.out, "  %s ─[%s]→ %s\n", event.Step, event.Label, event.Next)
	case workflow.EventFinished:
		fmt.Fprintf(p.out, "■ %s finished\n", event.Graph)
	}
}

// PrintApplicationOutcome outputs a human-readable summary of an application run.
func (p *Printer) PrintApplicationOutcome(outcome *catalog.ApplicationOutcome) {
	if outcome == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Job:       %s\n", outcome.JobURL))
	sb.WriteString(fmt.Sprintf("Status:    %s\n", outcome.Status))
	if outcome.Terminal != "" {
		sb.WriteString(fmt.Sprintf("Terminal:  %s\n", outcome.Terminal))
	}
	sb.WriteString(fmt.Sprintf("Submitted: %t\n", outcome.Submitted))
	if outcome.ConfirmationText != "" {
		sb.WriteString(fmt.Sprintf("Confirmed: %s\n", outcome.ConfirmationText))
	}
	if msg := outcome.Message(); msg != "" && !outcome.Success() {
		sb.WriteString(fmt.Sprintf("Reason:    %s\n", msg))
	}
	sb.WriteString("\n")

	writeList(&sb, "Filled", outcome.Filled)
	writeList(&sb, "Uploaded", outcome.Uploaded)
	writeList(&sb, "Unfilled", outcome.Unfilled)
	writeList(&sb, "Low confidence", outcome.LowConfidence)
	failed := make([]string, 0, len(outcome.Failed))
	for _, f := range outcome.Failed {
		failed = append(failed, f.Field+": "+f.Error)
	}
	writeList(&sb, "Failed", failed)

	p.printBox("APPLICATION OUTCOME", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintBatchResult outputs per-URL results and the batch summary.
func (p *Printer) PrintBatchResult(result *runner.BatchResult) {
	if result == nil || len(result.Results) == 0 {
		return
	}

	var sb strings.Builder
	s := result.Summary
	sb.WriteString(fmt.Sprintf("Total: %d  Successful: %d  Failed: %d  (%.2f%%)\n\n",
		s.Total, s.Successful, s.Failed, s.SuccessRate))
	for _, item := range result.Results {
		mark := "✓"
		if !item.Success {
			mark = "✗"
		}
		sb.WriteString(fmt.Sprintf("%s %s\n", mark, item.JobURL))
		if item.Error != "" {
			sb.WriteString(fmt.Sprintf("    %s\n", item.Error))
		}
	}

	p.printBox("BATCH RESULTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintDiscoveryResult outputs the scraped jobs of a discovery run.
func (p *Printer) PrintDiscoveryResult(result *types.DiscoveryResult) {
	if result == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Pages processed: %d\n", len(result.ProcessedURLs)))
	sb.WriteString(fmt.Sprintf("Jobs found:      %d\n", result.Count))

	if len(result.ScrapedJobs) > 0 {
		sb.WriteString("\n")
		count := min(len(result.ScrapedJobs), maxItemsToShow)
		for i := 0; i < count; i++ {
			job := result.ScrapedJobs[i]
			title := job.Title
			if title == "" {
				title = job.URL
			}
			sb.WriteString(fmt.Sprintf("• %s\n", title))
			if job.Company != "" || job.Location != "" {
				sb.WriteString(fmt.Sprintf("    %s\n", strings.Trim(job.Company+" · "+job.Location, " ·")))
			}
		}
		if len(result.ScrapedJobs) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(result.ScrapedJobs)-maxItemsToShow))
		}
	}

	if len(result.Errors) > 0 {
		sb.WriteString("\n")
		writeList(&sb, "Errors", result.Errors)
	}

	p.printBox("DISCOVERED JOBS", strings.TrimSuffix(sb.String(), "\n"))
}

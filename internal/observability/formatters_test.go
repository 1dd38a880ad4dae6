package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/apply-agent/internal/catalog"
	"github.com/jonathan/apply-agent/internal/runner"
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/jonathan/apply-agent/internal/workflow"
	"github.com/stretchr/testify/assert"
)

func TestPrintApplicationOutcome(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintApplicationOutcome(&catalog.ApplicationOutcome{
		JobURL:           "https://jobs.example.com/1",
		Status:           catalog.OutcomeSubmitted,
		Submitted:        true,
		ConfirmationText: "Thanks for applying",
		Filled:           []string{"first_name", "last_name", "email"},
		Unfilled:         []string{"salary"},
		Failed:           []catalog.FieldFailure{{Field: "phone", Error: "element not found"}},
	})
	output := buf.String()

	assert.Contains(t, output, "APPLICATION OUTCOME")
	assert.Contains(t, output, "submitted")
	assert.Contains(t, output, "Thanks for applying")
	assert.Contains(t, output, "Filled (3)")
	assert.Contains(t, output, "salary")
	assert.Contains(t, output, "phone: element not found")
	assert.NotContains(t, output, "Reason")
}

func TestPrintApplicationOutcome_Blocked(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintApplicationOutcome(&catalog.ApplicationOutcome{
		Status:   catalog.OutcomeBlocked,
		Terminal: catalog.LabelLoginRequired,
	})

	assert.Contains(t, buf.String(), "application blocked: login_required")
}

func TestPrintApplicationOutcome_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintApplicationOutcome(nil)
	assert.Empty(t, buf.String())
}

func TestPrintBatchResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintBatchResult(&runner.BatchResult{
		Results: []runner.BatchItem{
			{JobURL: "https://jobs.example.com/1", Success: true},
			{JobURL: "https://jobs.example.com/2", Error: "no application form found"},
		},
		Summary: types.NewBatchSummary(2, 1),
	})
	output := buf.String()

	assert.Contains(t, output, "BATCH RESULTS")
	assert.Contains(t, output, "Successful: 1")
	assert.Contains(t, output, "50.00%")
	assert.Contains(t, output, "no application form found")
}

func TestPrintDiscoveryResult(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	jobs := make([]types.JobRecord, 7)
	for i := range jobs {
		jobs[i] = types.JobRecord{Title: "Engineer", Company: "Acme", Location: "Remote"}
	}
	p.PrintDiscoveryResult(&types.DiscoveryResult{
		ProcessedURLs: []string{"https://example.com/careers"},
		ScrapedJobs:   jobs,
		Count:         len(jobs),
		Errors:        []string{"page 2: timeout"},
	})
	output := buf.String()

	assert.Contains(t, output, "DISCOVERED JOBS")
	assert.Contains(t, output, "Jobs found:      7")
	assert.Contains(t, output, "Acme · Remote")
	assert.Contains(t, output, "... and 2 more")
	assert.Contains(t, output, "page 2: timeout")
}

func TestPrintProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	base := runner.ProgressEvent{JobURL: "https://jobs.example.com/1"}
	events := []workflow.ProgressEvent{
		{Kind: workflow.EventStepStarted, Step: "detect_form"},
		{Kind: workflow.EventStepFinished, Step: "detect_form", Duration: 1500 * time.Millisecond},
		{Kind: workflow.EventRouted, Step: "detect_form", Label: "form_found", Next: "extract_fields"},
		{Kind: workflow.EventStepFailed, Step: "fill_form", Err: errors.New("timeout")},
		{Kind: workflow.EventFinished, Graph: "application"},
	}
	for _, e := range events {
		ev := base
		ev.ProgressEvent = e
		p.PrintProgress(ev)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"→ detect_form",
		"✓ detect_form (1.5s)",
		"  detect_form ─[form_found]→ extract_fields",
		"✗ fill_form: timeout",
		"■ application finished",
	}, lines)
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("x", 100))

	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), strings.Repeat("x", 60))
}

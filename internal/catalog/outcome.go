package catalog

import (
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/jonathan/apply-agent/internal/workflow"
)

// OutcomeStatus summarises how an application run ended
type OutcomeStatus string

// Outcome statuses
const (
	OutcomeSubmitted   OutcomeStatus = "submitted"
	OutcomeReady       OutcomeStatus = "ready" // dry run with the form filled
	OutcomeUnconfirmed OutcomeStatus = "unconfirmed"
	OutcomeBlocked     OutcomeStatus = "blocked"
	OutcomeNoForm      OutcomeStatus = "no_form"
	OutcomeIncomplete  OutcomeStatus = "incomplete"
	OutcomeFailed      OutcomeStatus = "failed"
	OutcomeSkipped     OutcomeStatus = "already_applied"
)

// ApplicationOutcome is the caller-facing summary of an application run.
type ApplicationOutcome struct {
	JobURL           string                 `json:"jobUrl"`
	JobID            string                 `json:"jobId"`
	Status           OutcomeStatus          `json:"status"`
	Terminal         workflow.Label         `json:"terminal,omitempty"`
	Blockers         *types.Blockers        `json:"blockers,omitempty"`
	Filled           []string               `json:"filledFields"`
	Uploaded         []string               `json:"uploadedFields"`
	Unfilled         []string               `json:"unfilledFields"`
	Failed           []FieldFailure         `json:"failedFields"`
	LowConfidence    []string               `json:"lowConfidenceFields,omitempty"`
	Submitted        bool                   `json:"submitted"`
	ConfirmationText string                 `json:"confirmationText,omitempty"`
	Steps            []string               `json:"steps"`
	Errors           []workflow.ErrorRecord `json:"errors"`
}

// Success reports whether the run achieved what was asked: a confirmed submission, or a filled form
// on a dry run.
func (o ApplicationOutcome) Success() bool {
	return o.Status == OutcomeSubmitted || o.Status == OutcomeReady || o.Status == OutcomeSkipped
}

// Outcome derives the run summary from a final envelope.
func (s ApplicationState) Outcome() ApplicationOutcome {
	o := ApplicationOutcome{
		JobURL:           s.Target.URL,
		JobID:            types.JobID(s.Target.URL),
		Terminal:         s.Terminal,
		Filled:           nonNil(s.Fill.Filled),
		Uploaded:         nonNil(s.Fill.Uploaded),
		Unfilled:         nonNil(s.Fill.Unfilled),
		Failed:           s.Fill.Failed,
		Submitted:        s.Submission.Submitted,
		ConfirmationText: s.Submission.ConfirmationText,
		Steps:            nonNil(s.Trace),
		Errors:           s.Errors,
	}
	if o.Failed == nil {
		o.Failed = []FieldFailure{}
	}
	if o.Errors == nil {
		o.Errors = []workflow.ErrorRecord{}
	}
	for _, m := range s.Mapping.Mappings {
		if m.LowConfidence {
			o.LowConfidence = append(o.LowConfidence, m.FieldName)
		}
	}
	if s.PageState.Blockers.Any() {
		b := s.PageState.Blockers
		o.Blockers = &b
	}
	o.Status = s.outcomeStatus()
	return o
}

// SkippedOutcome is the outcome reported for a job that was already applied to.
func SkippedOutcome(jobURL string) ApplicationOutcome {
	return ApplicationOutcome{
		JobURL:   jobURL,
		JobID:    types.JobID(jobURL),
		Status:   OutcomeSkipped,
		Filled:   []string{},
		Uploaded: []string{},
		Unfilled: []string{},
		Failed:   []FieldFailure{},
		Steps:    []string{},
		Errors:   []workflow.ErrorRecord{},
	}
}

func (s ApplicationState) outcomeStatus() OutcomeStatus {
	switch {
	case s.Status == workflow.StatusFailed:
		return OutcomeFailed
	case s.Terminal == LabelLoadFailed:
		return OutcomeFailed
	case s.Terminal == LabelNoForm:
		return OutcomeNoForm
	case s.Terminal != "" && s.Terminal != LabelFormDetected:
		return OutcomeBlocked
	case s.Submission.Submitted:
		return OutcomeSubmitted
	case s.Submission.Attempted:
		return OutcomeUnconfirmed
	case s.DryRun && len(s.Fill.Filled)+len(s.Fill.Uploaded) > 0:
		return OutcomeReady
	}
	return OutcomeIncomplete
}

// JobStatus is the job record status an outcome is persisted as. An unconfirmed submission
// was still sent, so it is recorded as applied.
func (o ApplicationOutcome) JobStatus() types.JobStatus {
	switch o.Status {
	case OutcomeSubmitted, OutcomeSkipped, OutcomeUnconfirmed:
		return types.StatusApplied
	}
	return types.StatusFailed
}

// Message is a one-line explanation of a non-successful outcome.
func (o ApplicationOutcome) Message() string {
	if len(o.Errors) > 0 {
		return o.Errors[len(o.Errors)-1].Error
	}
	switch o.Status {
	case OutcomeBlocked:
		return "application blocked: " + string(o.Terminal)
	case OutcomeNoForm:
		return "no application form found"
	case OutcomeUnconfirmed:
		return "submission was not confirmed"
	case OutcomeIncomplete:
		return "application incomplete"
	case OutcomeFailed:
		return "job page failed to load"
	case OutcomeSkipped:
		return "already applied"
	}
	return ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

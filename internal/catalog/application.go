package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/mapping"
	"github.com/jonathan/apply-agent/internal/prompts"
	"github.com/jonathan/apply-agent/internal/schemas"
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/jonathan/apply-agent/internal/workflow"
)

// Application graph steps
const (
	StepDetectLoad  = "detect_load"
	StepAnalyzeForm = "analyze_form"
	StepMapFields   = "map_fields"
	StepFillForm    = "fill_form"
	StepSubmit      = "submit"
)

// Labels of the edge leaving detect_load. Every label except LabelFormDetected ends the run.
const (
	LabelLoginRequired             workflow.Label = "login_required"
	LabelOAuthRequired             workflow.Label = "oauth_required"
	LabelEmailVerificationRequired workflow.Label = "email_verification_required"
	LabelBlocked                   workflow.Label = "blocked"
	LabelNoForm                    workflow.Label = "no_form"
	LabelLoadFailed                workflow.Label = "load_failed"
	LabelFormDetected              workflow.Label = "form_detected"
)

// DefaultSubmitSettle is how long submit waits before reading the confirmation page.
const DefaultSubmitSettle = 3 * time.Second

// FormAnalysis is the result of analyze_form
type FormAnalysis struct {
	StepResult
	FieldCount int `json:"fieldCount"`
}

// MappingReport is the result of map_fields
type MappingReport struct {
	StepResult
	types.MappingResult
}

// FieldFailure is a field the page refused
type FieldFailure struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// FillReport is the result of fill_form
type FillReport struct {
	StepResult
	Filled   []string       `json:"filled"`
	Uploaded []string       `json:"uploaded"`
	Failed   []FieldFailure `json:"failed"`
	// Unfilled lists fields left empty: unmapped, suggested only, or uploads with no document.
	Unfilled []string `json:"unfilled"`
}

// SubmissionReport is the result of submit
type SubmissionReport struct {
	StepResult
	Attempted        bool   `json:"attempted"`
	Submitted        bool   `json:"submitted"`
	ConfirmationText string `json:"confirmationText,omitempty"`
	Reasoning        string `json:"reasoning,omitempty"`
}

// ApplicationState is the envelope of the application graph.
// Candidate belongs to the caller and is never modified.
type ApplicationState struct {
	workflow.Meta
	Target         types.Target      `json:"target"`
	Candidate      *types.Candidate  `json:"candidate"`
	JobDescription string            `json:"jobDescription,omitempty"`
	DryRun         bool              `json:"dryRun"`
	PageState      types.PageState   `json:"pageState"`
	FormModel      []types.FormField `json:"formModel"`
	FormAnalysis   FormAnalysis      `json:"formAnalysis"`
	Mapping        MappingReport     `json:"fieldMapping"`
	Fill           FillReport        `json:"fill"`
	Submission     SubmissionReport  `json:"submission"`
}

// NewApplicationState builds the initial envelope for one job URL.
func NewApplicationState(jobURL string, candidate *types.Candidate, jobDescription string, dryRun bool) ApplicationState {
	return ApplicationState{
		Target:         types.Target{URL: jobURL, Domain: types.DomainOf(jobURL)},
		Candidate:      candidate,
		JobDescription: jobDescription,
		DryRun:         dryRun,
	}
}

// RunMeta implements workflow.Envelope.
func (s ApplicationState) RunMeta() workflow.Meta { return s.Meta }

// WithRunMeta implements workflow.Envelope.
func (s ApplicationState) WithRunMeta(m workflow.Meta) ApplicationState { s.Meta = m; return s }

// ApplicationDeps are the collaborators of one application run.
// Resumes may be nil, in which case file fields stay unfilled. A zero SubmitSettle waits
// DefaultSubmitSettle; a negative one reads the confirmation page immediately.
type ApplicationDeps struct {
	Page         capability.Page
	Mapper       *mapping.Engine
	Resumes      capability.ResumeFetcher
	SubmitSettle time.Duration
	Logger       *slog.Logger
}

type application struct {
	ApplicationDeps
	logger *slog.Logger
}

// NewApplicationGraph wires detect_load → analyze_form → map_fields → fill_form → submit.
// Blockers found by detect_load end the run through their own label, checked in the order
// login, OAuth, email verification, blocking modal, missing form.
func NewApplicationGraph(deps ApplicationDeps, opts ...workflow.Option) (*workflow.Graph[ApplicationState], error) {
	if deps.Mapper == nil {
		deps.Mapper = mapping.NewEngine(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	switch {
	case deps.SubmitSettle == 0:
		deps.SubmitSettle = DefaultSubmitSettle
	case deps.SubmitSettle < 0:
		deps.SubmitSettle = 0
	}
	a := &application{ApplicationDeps: deps, logger: deps.Logger.With("system", "application")}

	b := &graphBuilder[ApplicationState]{g: workflow.New[ApplicationState](ApplicationGraph,
		append([]workflow.Option{workflow.WithLogger(deps.Logger)}, opts...)...)}
	b.step(StepDetectLoad, a.detectLoad)
	b.step(StepAnalyzeForm, a.analyzeForm)
	b.step(StepMapFields, a.mapFields)
	b.step(StepFillForm, a.fillForm)
	b.step(StepSubmit, a.submit)
	b.branch(StepDetectLoad, DecideAfterDetect, map[workflow.Label]string{
		LabelLoginRequired:             workflow.End,
		LabelOAuthRequired:             workflow.End,
		LabelEmailVerificationRequired: workflow.End,
		LabelBlocked:                   workflow.End,
		LabelNoForm:                    workflow.End,
		LabelLoadFailed:                workflow.End,
		LabelFormDetected:              StepAnalyzeForm,
	})
	b.edge(StepAnalyzeForm, StepMapFields)
	b.edge(StepMapFields, StepFillForm)
	b.edge(StepFillForm, StepSubmit)
	b.edge(StepSubmit, workflow.End)
	return b.build(StepDetectLoad)
}

// DecideAfterDetect routes on the page state; the first true blocker wins.
func DecideAfterDetect(s ApplicationState) workflow.Label {
	ps := s.PageState
	switch {
	case !ps.Loaded:
		return LabelLoadFailed
	case ps.Blockers.HasLoginRequired:
		return LabelLoginRequired
	case ps.Blockers.HasOAuthRequired:
		return LabelOAuthRequired
	case ps.Blockers.HasEmailVerificationRequired:
		return LabelEmailVerificationRequired
	case ps.Blockers.HasBlockingModal:
		return LabelBlocked
	case !ps.HasForm:
		return LabelNoForm
	}
	return LabelFormDetected
}

var assessInstruction = prompts.MustGet("application.json", "assess-page")

type pageAssessment struct {
	HasForm       bool   `json:"hasForm"`
	FormReasoning string `json:"formReasoning"`
	types.Blockers
}

func (a *application) detectLoad(ctx context.Context, s ApplicationState) (ApplicationState, error) {
	if err := workflow.Require(s.Target.URL != "", StepDetectLoad, "target.url", "no job URL"); err != nil {
		return s, err
	}
	if err := workflow.Require(a.Page != nil, StepDetectLoad, "page", "no page session"); err != nil {
		return s, err
	}

	nav, err := a.Page.Navigate(ctx, s.Target.URL)
	if err != nil || !nav.OK {
		if err == nil {
			err = fmt.Errorf("navigation did not complete")
		}
		a.logger.Warn("job page failed to load", "url", s.Target.URL, "error", err)
		s.PageState = types.PageState{URL: s.Target.URL, Error: err.Error()}
		return s, nil
	}

	ps := types.PageState{Loaded: true, URL: s.Target.URL, FinalURL: nav.FinalURL}
	var ans pageAssessment
	if err := a.Page.Extract(ctx, assessInstruction, schemas.MustLoad(schemas.PageAssessment), &ans); err != nil {
		a.logger.Warn("page assessment failed", "url", s.Target.URL, "error", err)
		ps.Error = "page assessment failed: " + err.Error()
		s.PageState = ps
		return s, nil
	}
	ps.HasForm = ans.HasForm
	ps.FormReasoning = ans.FormReasoning
	ps.Blockers = ans.Blockers
	s.PageState = ps
	a.logger.Info("page assessed", "url", nav.FinalURL, "has_form", ps.HasForm, "blocked", ps.Blockers.Any())
	return s, nil
}

var formInstruction = prompts.MustGet("application.json", "extract-form-fields")

type formAnswer struct {
	Fields []struct {
		Name     string   `json:"name"`
		Type     string   `json:"type"`
		Label    string   `json:"label"`
		Required bool     `json:"required"`
		Options  []string `json:"options"`
	} `json:"fields"`
}

func (a *application) analyzeForm(ctx context.Context, s ApplicationState) (ApplicationState, error) {
	if !s.PageState.HasForm {
		s.FormAnalysis = FormAnalysis{StepResult: failed("no form detected")}
		s.CurrentStep = workflow.Skip(StepAnalyzeForm)
		return s, nil
	}

	var ans formAnswer
	if err := a.Page.Extract(ctx, formInstruction, schemas.MustLoad(schemas.FormFields), &ans); err != nil {
		a.logger.Warn("form analysis failed", "url", s.Target.URL, "error", err)
		s.FormAnalysis = FormAnalysis{StepResult: failed("form analysis failed: " + err.Error())}
		s.CurrentStep = workflow.Skip(StepAnalyzeForm)
		return s, nil
	}

	form := make([]types.FormField, 0, len(ans.Fields))
	seen := map[string]bool{}
	for _, f := range ans.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		form = append(form, types.FormField{
			Name:     name,
			Type:     types.ParseFieldType(f.Type),
			Label:    strings.TrimSpace(f.Label),
			Required: f.Required,
			Options:  f.Options,
		})
	}
	if len(form) == 0 {
		s.FormModel = form
		s.FormAnalysis = FormAnalysis{StepResult: failed("form has no fields")}
		s.CurrentStep = workflow.Skip(StepAnalyzeForm)
		return s, nil
	}

	s.FormModel = form
	s.FormAnalysis = FormAnalysis{StepResult: succeeded(), FieldCount: len(form)}
	return s, nil
}

func (a *application) mapFields(ctx context.Context, s ApplicationState) (ApplicationState, error) {
	if len(s.FormModel) == 0 {
		s.Mapping = MappingReport{StepResult: failed("no form analysis available")}
		s.CurrentStep = workflow.Skip(StepMapFields)
		return s, nil
	}
	if err := workflow.Require(s.Candidate != nil, StepMapFields, "candidate", "no candidate data"); err != nil {
		return s, err
	}

	result := a.Mapper.MapForJob(ctx, s.FormModel, s.Candidate, s.JobDescription)
	s.Mapping = MappingReport{StepResult: succeeded(), MappingResult: result}
	a.logger.Info("fields mapped", "url", s.Target.URL, "fields", len(result.Mappings),
		"mapped", result.MappedCount(), "low_confidence", result.LowConfidenceCount(), "uploads", len(result.UnfilledFields))
	return s, nil
}

type fillAnswer struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (a *application) fillForm(ctx context.Context, s ApplicationState) (ApplicationState, error) {
	if !s.Mapping.Success {
		s.Fill = FillReport{StepResult: failed("no field mapping available")}
		s.CurrentStep = workflow.Skip(StepFillForm)
		return s, nil
	}

	report := FillReport{Filled: []string{}, Uploaded: []string{}, Failed: []FieldFailure{}, Unfilled: []string{}}
	for _, m := range s.Mapping.Mappings {
		if !m.Mapped {
			report.Unfilled = append(report.Unfilled, m.FieldName)
			continue
		}
		var ans fillAnswer
		err := a.Page.Evaluate(ctx, fillScript, map[string]string{"name": m.FieldName, "value": m.Value}, &ans)
		switch {
		case err != nil:
			report.Failed = append(report.Failed, FieldFailure{Field: m.FieldName, Error: err.Error()})
		case !ans.OK:
			report.Failed = append(report.Failed, FieldFailure{Field: m.FieldName, Error: ans.Error})
		default:
			report.Filled = append(report.Filled, m.FieldName)
		}
	}
	a.attachDocuments(ctx, s, &report)

	switch {
	case len(report.Filled)+len(report.Uploaded) == 0:
		report.StepResult = failed("no field could be filled")
	case len(report.Failed) > 0:
		report.StepResult = failed(fmt.Sprintf("%d field(s) rejected by the page", len(report.Failed)))
	default:
		report.StepResult = succeeded()
	}
	s.Fill = report
	a.logger.Info("form filled", "url", s.Target.URL, "filled", len(report.Filled),
		"uploaded", len(report.Uploaded), "failed", len(report.Failed), "unfilled", len(report.Unfilled))
	return s, nil
}

// attachDocuments uploads the candidate's resume or cover letter into file fields.
// Each document is fetched at most once and removed when the step ends.
func (a *application) attachDocuments(ctx context.Context, s ApplicationState, report *FillReport) {
	files := s.Mapping.UnfilledFields
	if len(files) == 0 {
		return
	}
	uploader, canUpload := a.Page.(capability.FileUploader)

	fetched := map[string]*capability.LocalFile{}
	defer func() {
		for _, f := range fetched {
			if err := f.Cleanup(); err != nil {
				a.logger.Warn("removing downloaded document", "path", f.Path, "error", err)
			}
		}
	}()

	for _, field := range files {
		docID := documentFor(field, s.Candidate, len(files) == 1)
		if docID == "" || a.Resumes == nil || !canUpload {
			report.Unfilled = append(report.Unfilled, field.Name)
			continue
		}
		file, ok := fetched[docID]
		if !ok {
			var err error
			file, err = a.Resumes.FetchResume(ctx, docID)
			if err != nil {
				report.Failed = append(report.Failed, FieldFailure{Field: field.Name, Error: err.Error()})
				continue
			}
			fetched[docID] = file
		}
		if err := uploader.Upload(ctx, field.Name, file.Path); err != nil {
			report.Failed = append(report.Failed, FieldFailure{Field: field.Name, Error: err.Error()})
			continue
		}
		report.Uploaded = append(report.Uploaded, field.Name)
	}
}

// documentFor picks the candidate document for a file field: cover letters for fields that ask for
// one, the resume for resume/CV fields or when the form has a single file field.
func documentFor(field types.FormField, c *types.Candidate, only bool) string {
	if c == nil {
		return ""
	}
	text := strings.ToLower(field.Name + " " + field.Label)
	switch {
	case strings.Contains(text, "cover"):
		return c.CoverLetterID
	case strings.Contains(text, "resume"), strings.Contains(text, "cv"), only:
		return c.ResumeID
	}
	return ""
}

var submissionInstruction = prompts.MustGet("application.json", "verify-submission")

type submitClick struct {
	Clicked bool   `json:"clicked"`
	Label   string `json:"label"`
}

type submissionAnswer struct {
	Submitted        bool   `json:"submitted"`
	ConfirmationText string `json:"confirmationText"`
	Reasoning        string `json:"reasoning"`
}

func (a *application) submit(ctx context.Context, s ApplicationState) (ApplicationState, error) {
	switch {
	case s.DryRun:
		s.Submission = SubmissionReport{StepResult: failed("dry run")}
		s.CurrentStep = workflow.Skip(StepSubmit)
		return s, nil
	case len(s.Fill.Filled)+len(s.Fill.Uploaded) == 0:
		s.Submission = SubmissionReport{StepResult: failed("nothing was filled")}
		s.CurrentStep = workflow.Skip(StepSubmit)
		return s, nil
	}

	var click submitClick
	if err := a.Page.Evaluate(ctx, submitScript, nil, &click); err != nil {
		s.Submission = SubmissionReport{StepResult: failed("submit failed: " + err.Error())}
		return s, nil
	}
	if !click.Clicked {
		s.Submission = SubmissionReport{StepResult: failed("no submit control found")}
		return s, nil
	}

	report := SubmissionReport{Attempted: true}
	if a.SubmitSettle > 0 {
		if err := a.Page.Evaluate(ctx, settleScript, a.SubmitSettle.Milliseconds(), nil); err != nil {
			a.logger.Debug("settle wait interrupted", "error", err)
		}
	}

	var ans submissionAnswer
	if err := a.Page.Extract(ctx, submissionInstruction, schemas.MustLoad(schemas.Submission), &ans); err != nil {
		report.StepResult = failed("confirmation check failed: " + err.Error())
		s.Submission = report
		return s, nil
	}
	report.Submitted = ans.Submitted
	report.ConfirmationText = ans.ConfirmationText
	report.Reasoning = ans.Reasoning
	if ans.Submitted {
		report.StepResult = succeeded()
	} else {
		report.StepResult = failed("submission not confirmed")
	}
	s.Submission = report
	a.logger.Info("application submitted", "url", s.Target.URL, "confirmed", ans.Submitted)
	return s, nil
}

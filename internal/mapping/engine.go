package mapping

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/prompts"
	"github.com/jonathan/apply-agent/internal/schemas"
	"github.com/jonathan/apply-agent/internal/types"
)

// LowConfidenceThreshold is the highest inference confidence still flagged as low.
const LowConfidenceThreshold = 0.5

// maxJobDescription caps the job description runes quoted in a field prompt.
const maxJobDescription = 4000

// Policy decides what happens to low-confidence inference answers
type Policy string

// Low-confidence policies
const (
	// PolicyApply maps low-confidence answers and flags them.
	PolicyApply Policy = "apply"
	// PolicySuggest leaves low-confidence answers unmapped and records them as a suggestion.
	PolicySuggest Policy = "suggest"
)

// ParsePolicy parses a policy name, defaulting to PolicyApply.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyApply:
		return PolicyApply, nil
	case PolicySuggest:
		return PolicySuggest, nil
	}
	return "", fmt.Errorf("unknown low-confidence policy %q", s)
}

// Engine maps form fields to candidate values.
type Engine struct {
	inference capability.Inference
	policy    Policy
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithPolicy sets the low-confidence policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock sets the reference clock used for age.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a mapping engine. inference may be nil, in which case unresolved fields stay unmapped.
func NewEngine(inference capability.Inference, opts ...Option) *Engine {
	e := &Engine{
		inference: inference,
		policy:    PolicyApply,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("system", "mapping")
	return e
}

// Map produces one mapping per mappable field, in form order, and lists file fields as unfilled.
// Neither form nor candidate is modified.
func (e *Engine) Map(ctx context.Context, form []types.FormField, candidate *types.Candidate) types.MappingResult {
	return e.MapForJob(ctx, form, candidate, "")
}

// MapForJob is Map with the description of the job being applied to, which inference may use to
// answer questions about motivation or fit.
func (e *Engine) MapForJob(ctx context.Context, form []types.FormField, candidate *types.Candidate, jobDescription string) types.MappingResult {
	return e.mapProfile(ctx, form, Normalize(candidate, e.now()), jobDescription)
}

// MapProfile is Map over an already normalized profile.
func (e *Engine) MapProfile(ctx context.Context, form []types.FormField, profile Profile) types.MappingResult {
	return e.mapProfile(ctx, form, profile, "")
}

func (e *Engine) mapProfile(ctx context.Context, form []types.FormField, profile Profile, jobDescription string) types.MappingResult {
	result := types.MappingResult{
		Mappings:       make([]types.FieldMapping, 0, len(form)),
		UnfilledFields: []types.FormField{},
	}
	for _, field := range form {
		if !field.Type.Mappable() {
			result.UnfilledFields = append(result.UnfilledFields, field)
			continue
		}
		m := e.mapField(ctx, field, profile, jobDescription)
		e.logger.Debug("field mapped", "field", field.Name, "source", m.Source, "mapped", m.Mapped, "confidence", m.Confidence)
		result.Mappings = append(result.Mappings, m)
	}
	return result
}

func (e *Engine) mapField(ctx context.Context, field types.FormField, profile Profile, jobDescription string) types.FieldMapping {
	if answer, ok := matchAnswer(field, profile.Answers); ok {
		return resolve(field, answer, 0.95, "candidate answered this question", types.SourcePattern)
	}
	if rule, reason, ok := matchPattern(field); ok {
		return resolveAttr(field, profile, rule.attr, rule.confidence, reason, types.SourcePattern)
	}
	if attr, conf, reason, ok := matchType(field); ok {
		return resolveAttr(field, profile, attr, conf, reason, types.SourceFieldType)
	}
	if rule, reason, ok := matchSemantic(field); ok {
		return resolveAttr(field, profile, rule.attr, rule.confidence, reason, types.SourceSemantic)
	}
	if e.inference != nil {
		return e.infer(ctx, field, profile, jobDescription)
	}
	return unmapped(field, "no rule matched", types.SourceNone)
}

func resolveAttr(field types.FormField, profile Profile, attr Attribute, conf float64, reason string, src types.MappingSource) types.FieldMapping {
	value := profile.Value(attr)
	if value == "" {
		return unmapped(field, fmt.Sprintf("%s; candidate has no %s", reason, attr), src)
	}
	return resolve(field, value, conf, reason, src)
}

// resolve applies select-option matching before accepting a value.
func resolve(field types.FormField, value string, conf float64, reason string, src types.MappingSource) types.FieldMapping {
	if field.Type == types.FieldSelect {
		opt, ok := MatchOption(field.Options, value)
		if !ok {
			return unmapped(field, fmt.Sprintf("%s; no option matches %q", reason, value), src)
		}
		value = opt
	}
	conf = clamp(conf)
	if conf <= 0 {
		return unmapped(field, reason, src)
	}
	return types.FieldMapping{
		FieldName:  field.Name,
		FieldType:  field.Type,
		Mapped:     true,
		Value:      value,
		Confidence: conf,
		Reason:     reason,
		Source:     src,
	}
}

func unmapped(field types.FormField, reason string, src types.MappingSource) types.FieldMapping {
	return types.FieldMapping{
		FieldName: field.Name,
		FieldType: field.Type,
		Reason:    reason,
		Source:    src,
	}
}

type inferredValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func (e *Engine) infer(ctx context.Context, field types.FormField, profile Profile, jobDescription string) types.FieldMapping {
	var ans inferredValue
	if err := e.inference.Classify(ctx, buildFieldPrompt(field, profile, jobDescription), schemas.MustLoad(schemas.FieldValue), &ans); err != nil {
		e.logger.Warn("field inference failed", "field", field.Name, "error", err)
		return unmapped(field, "inference failed: "+err.Error(), types.SourceNone)
	}

	value := strings.TrimSpace(ans.Value)
	conf := clamp(ans.Confidence)
	reason := "inferred"
	if ans.Reasoning != "" {
		reason = "inferred: " + ans.Reasoning
	}
	if value == "" || conf <= 0 {
		return unmapped(field, reason, types.SourceInference)
	}

	m := resolve(field, value, conf, reason, types.SourceInference)
	if !m.Mapped || conf > LowConfidenceThreshold {
		return m
	}
	m.LowConfidence = true
	if e.policy == PolicySuggest {
		m.Mapped = false
		m.Suggestion = m.Value
		m.Value = ""
	}
	return m
}

func buildFieldPrompt(field types.FormField, profile Profile, jobDescription string) string {
	var details strings.Builder
	if field.Label != "" {
		details.WriteString(prompts.Format(prompts.MustGet("mapping.json", "field-label"), map[string]string{"Label": field.Label}))
	}
	if len(field.Options) > 0 {
		details.WriteString(prompts.Format(prompts.MustGet("mapping.json", "field-options"),
			map[string]string{"Options": strings.Join(field.Options, " | ")}))
	}
	if job := strings.TrimSpace(jobDescription); job != "" {
		if r := []rune(job); len(r) > maxJobDescription {
			job = string(r[:maxJobDescription])
		}
		details.WriteString(prompts.Format(prompts.MustGet("mapping.json", "field-job"), map[string]string{"JobDescription": job}))
	}
	data, _ := json.MarshalIndent(profile, "", "  ")
	return prompts.Format(prompts.MustGet("mapping.json", "map-field"), map[string]string{
		"Name":      field.Name,
		"Type":      string(field.Type),
		"Details":   details.String(),
		"Candidate": string(data),
	})
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

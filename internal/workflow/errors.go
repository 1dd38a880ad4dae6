package workflow

import (
	"errors"
	"fmt"
)

// Code identifies an engine failure
type Code string

// Engine error codes
const (
	CodeUnknownEdgeLabel   Code = "UNKNOWN_EDGE_LABEL"
	CodeMaxSteps           Code = "MAX_STEPS_EXCEEDED"
	CodeEnvelopeRegression Code = "ENVELOPE_REGRESSION"
	CodeInvalidGraph       Code = "INVALID_GRAPH"
)

// EngineError is a programming or configuration error detected by the engine. It always aborts the run.
type EngineError struct {
	Code    Code
	Graph   string
	Step    string
	Message string
}

// Sentinels for errors.Is, matched by code.
var (
	ErrUnknownEdgeLabel   = &EngineError{Code: CodeUnknownEdgeLabel}
	ErrMaxSteps           = &EngineError{Code: CodeMaxSteps}
	ErrEnvelopeRegression = &EngineError{Code: CodeEnvelopeRegression}
	ErrInvalidGraph       = &EngineError{Code: CodeInvalidGraph}
)

func (e *EngineError) Error() string {
	var where string
	switch {
	case e.Graph != "" && e.Step != "":
		where = fmt.Sprintf(" in %s/%s", e.Graph, e.Step)
	case e.Graph != "":
		where = " in " + e.Graph
	}
	if e.Message == "" {
		return fmt.Sprintf("workflow: %s%s", e.Code, where)
	}
	return fmt.Sprintf("workflow: %s%s: %s", e.Code, where, e.Message)
}

// Is matches sentinels by code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Graph == "" || t.Graph == e.Graph) && (t.Step == "" || t.Step == e.Step)
}

// StepError wraps the failure of a step function.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// ValidationError is returned by a step whose hard prerequisite is missing from the envelope.
type ValidationError struct {
	Step    string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: missing required field %s", e.Step, e.Field)
	}
	return fmt.Sprintf("%s: %s: %s", e.Step, e.Field, e.Message)
}

// Require returns a ValidationError for field unless ok.
func Require(ok bool, step, field, message string) error {
	if ok {
		return nil
	}
	return &ValidationError{Step: step, Field: field, Message: message}
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

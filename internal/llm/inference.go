package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/generative-ai-go/genai"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/schemas"
)

// Inference implements capability.Inference on top of a Client. Answers are validated against the
// request schema before they are decoded, so callers only ever see well-formed values.
type Inference struct {
	client   Client
	tier     ModelTier
	maxTries uint
	backoff  func() backoff.BackOff
	logger   *slog.Logger
}

// InferenceOption configures an Inference
type InferenceOption func(*Inference)

// WithTier selects the model tier used for requests.
func WithTier(tier ModelTier) InferenceOption {
	return func(i *Inference) { i.tier = tier }
}

// WithMaxTries sets the attempts per request, including the first.
func WithMaxTries(n uint) InferenceOption {
	return func(i *Inference) { i.maxTries = n }
}

// WithBackOff sets the retry interval policy.
func WithBackOff(newBackOff func() backoff.BackOff) InferenceOption {
	return func(i *Inference) { i.backoff = newBackOff }
}

// WithInferenceLogger sets the logger.
func WithInferenceLogger(l *slog.Logger) InferenceOption {
	return func(i *Inference) { i.logger = l }
}

// NewInference wraps client.
func NewInference(client Client, opts ...InferenceOption) *Inference {
	i := &Inference{
		client:   client,
		tier:     TierStandard,
		maxTries: 3,
		backoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxInterval = 5 * time.Second
			return bo
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.maxTries == 0 {
		i.maxTries = 1
	}
	i.logger = i.logger.With("system", "inference")
	return i
}

// Classify implements capability.Inference.
func (i *Inference) Classify(ctx context.Context, instruction string, schema *schemas.Schema, out any) error {
	return i.Ask(ctx, "classify", BuildStructuredPrompt(instruction, schema, ""), schema, out)
}

// ClassifyContent answers instruction about content, such as a page rendered to markdown.
func (i *Inference) ClassifyContent(ctx context.Context, instruction, content string, schema *schemas.Schema, out any) error {
	return i.Ask(ctx, "extract", BuildStructuredPrompt(instruction, schema, content), schema, out)
}

// Ask sends a prepared prompt and decodes the validated answer into out. op names the
// capability operation in returned errors.
func (i *Inference) Ask(ctx context.Context, op, prompt string, schema *schemas.Schema, out any) error {
	attempt := 0
	operation := func() (string, error) {
		attempt++
		text, err := i.client.GenerateJSON(ctx, prompt, i.tier)
		if err != nil {
			if permanent(err) {
				return "", backoff.Permanent(err)
			}
			i.logger.Debug("model call failed", "schema", schema.Name, "attempt", attempt, "error", err)
			return "", err
		}
		doc := ExtractJSONObject(CleanJSONBlock(text))
		if !json.Valid([]byte(doc)) {
			i.logger.Debug("malformed JSON answer", "schema", schema.Name, "attempt", attempt)
			return "", &malformedError{msg: "response is not valid JSON"}
		}
		if err := schema.Validate(doc); err != nil {
			i.logger.Debug("answer violates schema", "schema", schema.Name, "attempt", attempt, "error", err)
			return "", err
		}
		return doc, nil
	}

	doc, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(i.backoff()),
		backoff.WithMaxTries(i.maxTries),
	)
	if err != nil {
		kind := capability.KindInference
		if errors.Is(err, context.DeadlineExceeded) {
			kind = capability.KindTimeout
		}
		i.logger.Warn("inference failed", "schema", schema.Name, "attempts", attempt, "error", err)
		return capability.NewError(kind, op, schema.Name, err)
	}

	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return capability.NewError(capability.KindInference, op, "decode "+schema.Name, err)
	}
	return nil
}

type malformedError struct{ msg string }

func (e *malformedError) Error() string { return e.msg }

// permanent reports errors that a retry cannot fix.
func permanent(err error) bool {
	if errors.Is(err, ErrNoModel) || errors.Is(err, context.Canceled) {
		return true
	}
	var blocked *genai.BlockedError
	return errors.As(err, &blocked)
}

var _ capability.Inference = (*Inference)(nil)

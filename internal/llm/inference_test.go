package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/apply-agent/internal/capability"
	"github.com/jonathan/apply-agent/internal/schemas"
)

// scriptedClient returns its responses in order; the last one repeats.
type scriptedClient struct {
	responses []string
	errs      []error
	prompts   []string
	tiers     []ModelTier
}

func (c *scriptedClient) next() (string, error) {
	i := len(c.prompts) - 1
	var resp string
	var err error
	if len(c.responses) > 0 {
		resp = c.responses[min(i, len(c.responses)-1)]
	}
	if len(c.errs) > 0 {
		err = c.errs[min(i, len(c.errs)-1)]
	}
	return resp, err
}

func (c *scriptedClient) GenerateJSON(_ context.Context, prompt string, tier ModelTier) (string, error) {
	c.prompts = append(c.prompts, prompt)
	c.tiers = append(c.tiers, tier)
	return c.next()
}

func (c *scriptedClient) Close() error { return nil }

func newTestInference(client Client, opts ...InferenceOption) *Inference {
	base := []InferenceOption{WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} })}
	return NewInference(client, append(base, opts...)...)
}

type fieldValue struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

func TestClassify_DecodesValidAnswer(t *testing.T) {
	client := &scriptedClient{responses: []string{"```json\n{\"value\":\"Berlin\",\"confidence\":0.7}\n```"}}
	inf := newTestInference(client, WithTier(TierLite))

	var out fieldValue
	err := inf.Classify(context.Background(), "Which city?", schemas.MustLoad(schemas.FieldValue), &out)
	require.NoError(t, err)
	assert.Equal(t, "Berlin", out.Value)
	assert.InDelta(t, 0.7, out.Confidence, 1e-9)
	assert.Equal(t, []ModelTier{TierLite}, client.tiers)
	assert.Contains(t, client.prompts[0], "Which city?")
	assert.Contains(t, client.prompts[0], "FieldValue")
}

func TestClassify_RetriesMalformedJSON(t *testing.T) {
	client := &scriptedClient{responses: []string{
		"sorry, I cannot",
		`{"value":"Berlin","confidence":0.7}`,
	}}
	inf := newTestInference(client)

	var out fieldValue
	require.NoError(t, inf.Classify(context.Background(), "Which city?", schemas.MustLoad(schemas.FieldValue), &out))
	assert.Len(t, client.prompts, 2)
	assert.Equal(t, "Berlin", out.Value)
}

func TestClassify_SchemaViolationIsInferenceError(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"value":"Berlin","confidence":3}`}}
	inf := newTestInference(client, WithMaxTries(2))

	var out fieldValue
	err := inf.Classify(context.Background(), "Which city?", schemas.MustLoad(schemas.FieldValue), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrInference)
	assert.Len(t, client.prompts, 2)

	var validationErr *schemas.ValidationError
	assert.True(t, errors.As(err, &validationErr))
	assert.Empty(t, out.Value, "nothing is decoded from an invalid answer")
}

func TestClassify_NoModelIsNotRetried(t *testing.T) {
	client := &scriptedClient{errs: []error{ErrNoModel}}
	inf := newTestInference(client)

	var out fieldValue
	err := inf.Classify(context.Background(), "x", schemas.MustLoad(schemas.FieldValue), &out)
	assert.ErrorIs(t, err, capability.ErrInference)
	assert.ErrorIs(t, err, ErrNoModel)
	assert.Len(t, client.prompts, 1)
}

func TestClassify_TransientErrorThenSuccess(t *testing.T) {
	client := &scriptedClient{
		errs:      []error{errors.New("503 unavailable"), nil},
		responses: []string{"", `{"submitted":true,"confirmationText":"Thanks!"}`},
	}
	inf := newTestInference(client)

	var out struct {
		Submitted bool `json:"submitted"`
	}
	require.NoError(t, inf.Classify(context.Background(), "Was it sent?", schemas.MustLoad(schemas.Submission), &out))
	assert.True(t, out.Submitted)
}

func TestClassifyContent_EmbedsPage(t *testing.T) {
	client := &scriptedClient{responses: []string{`{"jobs":[]}`}}
	inf := newTestInference(client)

	var out struct {
		Jobs []any `json:"jobs"`
	}
	err := inf.ClassifyContent(context.Background(), "List jobs", "# Careers\n- Go Engineer", schemas.MustLoad(schemas.JobListings), &out)
	require.NoError(t, err)
	assert.Contains(t, client.prompts[0], "# Careers")
}

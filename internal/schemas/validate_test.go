package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
  "type": "object",
  "required": ["name", "age"],
  "properties": {
    "name": {"type": "string"},
    "age": {"type": "integer", "minimum": 0}
  }
}`

func TestValidateJSONString_Valid(t *testing.T) {
	err := ValidateJSONString(personSchema, `{"name":"Ada","age":36}`)
	assert.NoError(t, err)
}

func TestValidateJSONString_MissingField(t *testing.T) {
	err := ValidateJSONString(personSchema, `{"name":"Ada"}`)
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr), "error should be ValidationError type")
	require.Len(t, validationErr.Errors, 1)
	assert.Equal(t, "(root)", validationErr.Errors[0].Field)
	assert.Contains(t, validationErr.Error(), "age")
}

func TestValidateJSONString_WrongType(t *testing.T) {
	err := ValidateJSONString(personSchema, `{"name":"Ada","age":"old"}`)
	require.Error(t, err)

	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "age", validationErr.Errors[0].Field)
}

func TestValidateJSONString_MalformedSchema(t *testing.T) {
	err := ValidateJSONString(`{ not a schema`, `{}`)
	require.Error(t, err)

	var loadErr *SchemaLoadError
	require.True(t, errors.As(err, &loadErr))
	assert.NotNil(t, loadErr.Unwrap())
}

func TestLoad_EmbeddedSchemas(t *testing.T) {
	names := []string{PageAssessment, FormFields, FieldValue, NextPage, JobListings, SearchURLs, Submission}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			s, err := Load(name)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name)
			assert.NotEmpty(t, s.Title())
			assert.NotEqual(t, name, s.Title(), "embedded schemas carry a title")
		})
	}
}

func TestLoad_Unknown(t *testing.T) {
	_, err := Load("does_not_exist")
	require.Error(t, err)
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestLoad_ReturnsSameInstance(t *testing.T) {
	a := MustLoad(NextPage)
	b := MustLoad(NextPage)
	assert.Same(t, a, b)
}

func TestSchema_FieldValueBounds(t *testing.T) {
	s := MustLoad(FieldValue)

	assert.NoError(t, s.Validate(`{"value":"Berlin","confidence":0.8,"reasoning":"from location"}`))
	assert.Error(t, s.Validate(`{"value":"Berlin","confidence":1.4}`))
	assert.Error(t, s.Validate(`{"value":"Berlin"}`))
}

func TestSchema_NextPageAllowsNullURL(t *testing.T) {
	s := MustLoad(NextPage)

	assert.NoError(t, s.Validate(`{"hasNextPage":false,"nextPageUrl":null}`))
	assert.NoError(t, s.Validate(`{"hasNextPage":true,"nextPageUrl":"https://example.com/jobs?page=2"}`))
	assert.Error(t, s.Validate(`{"nextPageUrl":null}`))
}

func TestSchema_PageAssessmentRejectsUnknownKeys(t *testing.T) {
	s := MustLoad(PageAssessment)
	base := `"hasForm":true,"hasLoginRequired":false,"hasOAuthRequired":false,"hasEmailVerificationRequired":false,"hasBlockingModal":false`

	assert.NoError(t, s.Validate(`{`+base+`}`))
	assert.Error(t, s.Validate(`{`+base+`,"hasCaptcha":true}`))
}

func TestSchema_ValidateValue(t *testing.T) {
	s := New("inline", personSchema)
	assert.NoError(t, s.ValidateValue(map[string]any{"name": "Ada", "age": 36}))

	err := s.ValidateValue(map[string]any{"name": "Ada", "age": -1})
	var validationErr *ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "inline", validationErr.Schema)
}

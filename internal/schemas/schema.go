package schemas

import (
	"encoding/json"
	"fmt"
	"sync"

	rootschemas "github.com/jonathan/apply-agent/schemas"
	"github.com/xeipuuv/gojsonschema"
)

// Names of the embedded schema documents
const (
	PageAssessment = "page_assessment"
	FormFields     = "form_fields"
	FieldValue     = "field_value"
	NextPage       = "next_page"
	JobListings    = "job_listings"
	SearchURLs     = "search_urls"
	Submission     = "submission"
)

// Schema is a named JSON Schema document that a structured answer must satisfy.
type Schema struct {
	Name     string
	Document string

	once   sync.Once
	loader gojsonschema.JSONLoader
	title  string
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Schema{}
)

// Load returns the embedded schema with the given name.
func Load(name string) (*Schema, error) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if s, ok := registry[name]; ok {
		return s, nil
	}
	data, err := rootschemas.FS.ReadFile(name + ".schema.json")
	if err != nil {
		return nil, &SchemaLoadError{Name: name, Message: "schema not found", Cause: err}
	}
	s := &Schema{Name: name, Document: string(data)}
	registry[name] = s
	return s, nil
}

// MustLoad is like Load but panics when the schema is missing. Only use it with the constants above.
func MustLoad(name string) *Schema {
	s, err := Load(name)
	if err != nil {
		panic(err)
	}
	return s
}

// New wraps an ad-hoc schema document.
func New(name, document string) *Schema {
	return &Schema{Name: name, Document: document}
}

// Title returns the schema's title keyword, or its name when absent.
func (s *Schema) Title() string {
	s.init()
	return s.title
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(jsonContent string) error {
	s.init()
	return validate(s.Name, s.loader, jsonContent)
}

// ValidateValue marshals v and validates the result.
func (s *Schema) ValidateValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", s.Name, err)
	}
	return s.Validate(string(data))
}

func (s *Schema) init() {
	s.once.Do(func() {
		s.loader = gojsonschema.NewStringLoader(s.Document)
		s.title = s.Name
		var doc struct {
			Title string `json:"title"`
		}
		if json.Unmarshal([]byte(s.Document), &doc) == nil && doc.Title != "" {
			s.title = doc.Title
		}
	})
}

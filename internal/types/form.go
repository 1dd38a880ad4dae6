//nolint:revive // types is a standard Go package name pattern
package types

import "strings"

// FieldType is the input kind of a detected form field
type FieldType string

// Field types recognised in a form model
const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldFile     FieldType = "file"
	FieldDate     FieldType = "date"
	FieldNumber   FieldType = "number"
)

// ParseFieldType maps a loosely named input type onto a FieldType.
// HTML input types such as "tel", "url" or "search" collapse onto their closest kind;
// anything unknown is treated as text.
func ParseFieldType(s string) FieldType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "email":
		return FieldEmail
	case "phone", "tel", "telephone":
		return FieldPhone
	case "textarea":
		return FieldTextarea
	case "select", "select-one", "dropdown", "radio", "combobox":
		return FieldSelect
	case "file", "upload":
		return FieldFile
	case "date", "datetime", "datetime-local", "month":
		return FieldDate
	case "number", "range":
		return FieldNumber
	default:
		return FieldText
	}
}

// Mappable reports whether a field of this type can be assigned a value directly
// from candidate data. File uploads need specialised handling.
func (t FieldType) Mappable() bool {
	return t != FieldFile
}

// FormField describes a single detected form field
type FormField struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Label    string    `json:"label,omitempty"`
	Required bool      `json:"required,omitempty"`
	Options  []string  `json:"options,omitempty"`
}

// MappingSource identifies which resolution stage produced a field mapping
type MappingSource string

// Mapping sources, in resolution order
const (
	SourcePattern   MappingSource = "pattern"
	SourceFieldType MappingSource = "field_type"
	SourceSemantic  MappingSource = "semantic"
	SourceInference MappingSource = "inference"
	SourceNone      MappingSource = "none"
)

// FieldMapping is the mapping decision for one form field.
// Mapped is true only when Confidence > 0.
type FieldMapping struct {
	FieldName     string        `json:"fieldName"`
	FieldType     FieldType     `json:"fieldType"`
	Mapped        bool          `json:"mapped"`
	Value         string        `json:"value"`
	Confidence    float64       `json:"confidence"`
	Reason        string        `json:"reason,omitempty"`
	Source        MappingSource `json:"source"`
	LowConfidence bool          `json:"lowConfidence,omitempty"`
	Suggestion    string        `json:"suggestion,omitempty"`
}

// MappingResult holds one FieldMapping per mappable form field, in form order,
// plus the fields that need specialised handling (file uploads).
type MappingResult struct {
	Mappings       []FieldMapping `json:"mappings"`
	UnfilledFields []FormField    `json:"unfilledFields"`
}

// MappedCount returns the number of mapped fields.
func (r MappingResult) MappedCount() int {
	n := 0
	for _, m := range r.Mappings {
		if m.Mapped {
			n++
		}
	}
	return n
}

// LowConfidenceCount returns the number of mappings flagged as low confidence.
func (r MappingResult) LowConfidenceCount() int {
	n := 0
	for _, m := range r.Mappings {
		if m.LowConfidence {
			n++
		}
	}
	return n
}

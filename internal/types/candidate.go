// Package types provides type definitions for structured data used throughout the apply-agent system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Candidate is the caller-owned candidate record. The workflow steps read it but never modify it.
type Candidate struct {
	Name            string            `json:"name,omitempty"`
	Email           string            `json:"email,omitempty" validate:"omitempty,email"`
	Phone           string            `json:"phone,omitempty"`
	Location        string            `json:"location,omitempty"` // "City, State, Country"
	DOB             string            `json:"dob,omitempty"`      // e.g. 1990-05-15
	LinkedIn        string            `json:"linkedin,omitempty"`
	GitHub          string            `json:"github,omitempty"`
	Website         string            `json:"website,omitempty"`
	Summary         string            `json:"summary,omitempty"`
	YearsExperience string            `json:"yearsExperience,omitempty"`
	Skills          []string          `json:"skills,omitempty"`
	Experience      []WorkHistory     `json:"experience,omitempty"`
	Education       []Education       `json:"education,omitempty"`
	ResumeID        string            `json:"resumeId,omitempty"`
	CoverLetterID   string            `json:"coverLetterId,omitempty"`
	Answers         map[string]string `json:"answers,omitempty"` // free-form answers keyed by question
}

// WorkHistory is a single position held by the candidate. The first entry is treated as current.
type WorkHistory struct {
	Company     string `json:"company"`
	Title       string `json:"title"`
	StartDate   string `json:"startDate,omitempty"`
	EndDate     string `json:"endDate,omitempty"`
	Description string `json:"description,omitempty"`
}

// Education is a single education entry
type Education struct {
	Institution    string `json:"institution"`
	Degree         string `json:"degree,omitempty"`
	Field          string `json:"field,omitempty"`
	GraduationYear string `json:"graduationYear,omitempty"`
}

// CurrentPosition returns the most recent work history entry, if any.
func (c *Candidate) CurrentPosition() (WorkHistory, bool) {
	if c == nil || len(c.Experience) == 0 {
		return WorkHistory{}, false
	}
	return c.Experience[0], true
}

// LatestEducation returns the first education entry, if any.
func (c *Candidate) LatestEducation() (Education, bool) {
	if c == nil || len(c.Education) == 0 {
		return Education{}, false
	}
	return c.Education[0], true
}

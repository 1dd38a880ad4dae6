// Package mapping resolves form-field values from candidate data.
//
// Resolution is deterministic first: a fixed pattern table over field names and labels, then input
// types, then a looser keyword table. Only fields none of these resolve are sent to inference.
package mapping

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jonathan/apply-agent/internal/types"
)

// Attribute names a normalized candidate attribute
type Attribute string

// Normalized candidate attributes
const (
	AttrFirstName       Attribute = "firstName"
	AttrLastName        Attribute = "lastName"
	AttrFullName        Attribute = "fullName"
	AttrEmail           Attribute = "email"
	AttrPhone           Attribute = "phone"
	AttrCity            Attribute = "city"
	AttrState           Attribute = "state"
	AttrCountry         Attribute = "country"
	AttrLocation        Attribute = "location"
	AttrAge             Attribute = "age"
	AttrDOB             Attribute = "dob"
	AttrLinkedIn        Attribute = "linkedin"
	AttrGitHub          Attribute = "github"
	AttrWebsite         Attribute = "website"
	AttrSummary         Attribute = "summary"
	AttrYearsExperience Attribute = "yearsExperience"
	AttrCurrentCompany  Attribute = "currentCompany"
	AttrCurrentTitle    Attribute = "currentTitle"
	AttrSchool          Attribute = "school"
	AttrDegree          Attribute = "degree"
	AttrFieldOfStudy    Attribute = "fieldOfStudy"
	AttrGraduationYear  Attribute = "graduationYear"
	AttrSkills          Attribute = "skills"
)

// Profile is the flat, normalized view of a candidate that mapping rules read from.
type Profile struct {
	FirstName       string `json:"firstName,omitempty"`
	LastName        string `json:"lastName,omitempty"`
	FullName        string `json:"fullName,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	Country         string `json:"country,omitempty"`
	Location        string `json:"location,omitempty"`
	Age             string `json:"age,omitempty"`
	DOB             string `json:"dob,omitempty"`
	LinkedIn        string `json:"linkedin,omitempty"`
	GitHub          string `json:"github,omitempty"`
	Website         string `json:"website,omitempty"`
	Summary         string `json:"summary,omitempty"`
	YearsExperience string `json:"yearsExperience,omitempty"`
	CurrentCompany  string `json:"currentCompany,omitempty"`
	CurrentTitle    string `json:"currentTitle,omitempty"`
	School          string `json:"school,omitempty"`
	Degree          string `json:"degree,omitempty"`
	FieldOfStudy    string `json:"fieldOfStudy,omitempty"`
	GraduationYear  string `json:"graduationYear,omitempty"`
	Skills          string `json:"skills,omitempty"`

	Answers map[string]string `json:"answers,omitempty"`
}

// Value returns the profile value for attr.
func (p Profile) Value(attr Attribute) string {
	switch attr {
	case AttrFirstName:
		return p.FirstName
	case AttrLastName:
		return p.LastName
	case AttrFullName:
		return p.FullName
	case AttrEmail:
		return p.Email
	case AttrPhone:
		return p.Phone
	case AttrCity:
		return p.City
	case AttrState:
		return p.State
	case AttrCountry:
		return p.Country
	case AttrLocation:
		return p.Location
	case AttrAge:
		return p.Age
	case AttrDOB:
		return p.DOB
	case AttrLinkedIn:
		return p.LinkedIn
	case AttrGitHub:
		return p.GitHub
	case AttrWebsite:
		return p.Website
	case AttrSummary:
		return p.Summary
	case AttrYearsExperience:
		return p.YearsExperience
	case AttrCurrentCompany:
		return p.CurrentCompany
	case AttrCurrentTitle:
		return p.CurrentTitle
	case AttrSchool:
		return p.School
	case AttrDegree:
		return p.Degree
	case AttrFieldOfStudy:
		return p.FieldOfStudy
	case AttrGraduationYear:
		return p.GraduationYear
	case AttrSkills:
		return p.Skills
	}
	return ""
}

// Normalize flattens a candidate record. today is the reference date for age.
// The candidate is not modified.
func Normalize(c *types.Candidate, today time.Time) Profile {
	if c == nil {
		return Profile{}
	}
	p := Profile{
		FullName:        strings.Join(strings.Fields(c.Name), " "),
		Email:           strings.TrimSpace(c.Email),
		Phone:           strings.TrimSpace(c.Phone),
		Location:        strings.TrimSpace(c.Location),
		DOB:             strings.TrimSpace(c.DOB),
		LinkedIn:        strings.TrimSpace(c.LinkedIn),
		GitHub:          strings.TrimSpace(c.GitHub),
		Website:         strings.TrimSpace(c.Website),
		Summary:         strings.TrimSpace(c.Summary),
		YearsExperience: strings.TrimSpace(c.YearsExperience),
		Skills:          strings.Join(c.Skills, ", "),
	}
	p.FirstName, p.LastName = SplitName(c.Name)
	p.City, p.State, p.Country = SplitLocation(c.Location)
	p.Age = AgeOn(c.DOB, today)

	if pos, ok := c.CurrentPosition(); ok {
		p.CurrentCompany = strings.TrimSpace(pos.Company)
		p.CurrentTitle = strings.TrimSpace(pos.Title)
	}
	if edu, ok := c.LatestEducation(); ok {
		p.School = strings.TrimSpace(edu.Institution)
		p.Degree = strings.TrimSpace(edu.Degree)
		p.FieldOfStudy = strings.TrimSpace(edu.Field)
		p.GraduationYear = strings.TrimSpace(edu.GraduationYear)
	}
	if len(c.Answers) > 0 {
		p.Answers = make(map[string]string, len(c.Answers))
		for k, v := range c.Answers {
			p.Answers[k] = v
		}
	}
	return p
}

// SplitName splits on whitespace: the first token is the first name, the rest the last name.
func SplitName(name string) (first, last string) {
	tokens := strings.Fields(name)
	if len(tokens) == 0 {
		return "", ""
	}
	return tokens[0], strings.Join(tokens[1:], " ")
}

// SplitLocation splits "City, State, Country" on commas.
//
// One component is a city. Two are city and country. Three or more are city, state and country,
// with the last component always the country and any middle components joined into the state.
func SplitLocation(location string) (city, state, country string) {
	var parts []string
	for _, p := range strings.Split(location, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	switch len(parts) {
	case 0:
		return "", "", ""
	case 1:
		return parts[0], "", ""
	case 2:
		return parts[0], "", parts[1]
	default:
		return parts[0], strings.Join(parts[1:len(parts)-1], ", "), parts[len(parts)-1]
	}
}

var dobLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// ParseDOB parses a date of birth in one of the accepted layouts.
func ParseDOB(dob string) (time.Time, bool) {
	dob = strings.TrimSpace(dob)
	if dob == "" {
		return time.Time{}, false
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, dob); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AgeOn returns floor((today - dob) / 365.25 days) as a string. Unparsable or future dates give "".
func AgeOn(dob string, today time.Time) string {
	born, ok := ParseDOB(dob)
	if !ok {
		return ""
	}
	born = time.Date(born.Year(), born.Month(), born.Day(), 0, 0, 0, 0, time.UTC)
	ref := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if ref.Before(born) {
		return ""
	}
	days := float64(ref.Unix()-born.Unix()) / 86400
	return strconv.Itoa(int(math.Floor(days / 365.25)))
}

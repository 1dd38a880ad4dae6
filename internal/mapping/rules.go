package mapping

import (
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/jonathan/apply-agent/internal/types"
)

// patternRule maps compacted field names onto an attribute.
// exact entries must equal the compacted name; contains entries may appear anywhere in it
// unless one of the exclude fragments also appears.
type patternRule struct {
	attr       Attribute
	exact      []string
	contains   []string
	exclude    []string
	confidence float64
	reason     string
}

// Order matters: the first matching rule wins.
var patternRules = []patternRule{
	{attr: AttrFirstName, exact: []string{"first", "given"}, contains: []string{"firstname", "fname", "givenname", "forename"},
		confidence: 0.95, reason: "first name pattern"},
	{attr: AttrLastName, exact: []string{"last", "family"}, contains: []string{"lastname", "lname", "surname", "familyname"},
		exclude: []string{"fullname", "legalname", "realname"}, confidence: 0.95, reason: "last name pattern"},
	{attr: AttrFullName, exact: []string{"name", "yourname", "legalname", "candidatename", "applicantname"}, contains: []string{"fullname"},
		confidence: 0.9, reason: "full name pattern"},
	{attr: AttrEmail, exact: []string{"mail"}, contains: []string{"email"},
		confidence: 0.95, reason: "email pattern"},
	{attr: AttrPhone, exact: []string{"tel", "cell", "mobile"}, contains: []string{"phone", "telephone", "mobilenumber", "cellnumber"},
		exclude: []string{"phonetype", "countrycode"}, confidence: 0.9, reason: "phone number pattern"},
	{attr: AttrLinkedIn, contains: []string{"linkedin"},
		confidence: 0.95, reason: "LinkedIn profile pattern"},
	{attr: AttrGitHub, contains: []string{"github"},
		confidence: 0.95, reason: "GitHub profile pattern"},
	{attr: AttrWebsite, exact: []string{"url", "homepage", "site"}, contains: []string{"website", "portfolio", "personalsite", "personalurl"},
		confidence: 0.8, reason: "website or portfolio pattern"},
	{attr: AttrDOB, exact: []string{"dob", "birthday"}, contains: []string{"dateofbirth", "birthdate"},
		confidence: 0.9, reason: "date of birth pattern"},
	{attr: AttrAge, exact: []string{"age", "yourage", "currentage", "ageyears"},
		confidence: 0.9, reason: "age pattern"},
	{attr: AttrCity, exact: []string{"city", "town", "currentcity", "yourcity", "cityname"}, contains: []string{"city"},
		exclude: []string{"ethnicity", "electricity", "capacity", "velocity", "authenticity", "publicity", "simplicity", "specificity"}, confidence: 0.85, reason: "city pattern"},
	{attr: AttrState, exact: []string{"state", "province", "region", "county"}, contains: []string{"stateprovince", "stateorprovince", "stateregion"},
		confidence: 0.85, reason: "state or province pattern"},
	{attr: AttrCountry, contains: []string{"country"},
		exclude: []string{"countrycode", "countriesauthorized"}, confidence: 0.85, reason: "country pattern"},
	{attr: AttrLocation, exact: []string{"address"}, contains: []string{"location", "currentaddress", "homeaddress", "residence"},
		exclude: []string{"relocat", "emailaddress", "preferredlocation"}, confidence: 0.75, reason: "location pattern"},
	{attr: AttrYearsExperience, exact: []string{"experience", "yoe"}, contains: []string{"yearsofexperience", "yearsexperience", "experienceyears", "totalexperience"},
		confidence: 0.8, reason: "years of experience pattern"},
	{attr: AttrCurrentCompany, exact: []string{"company", "employer", "organization", "organisation"}, contains: []string{"currentcompany", "currentemployer", "companyname", "employername"},
		confidence: 0.8, reason: "current company pattern"},
	{attr: AttrCurrentTitle, exact: []string{"title", "role", "position"}, contains: []string{"jobtitle", "currenttitle", "currentrole", "currentposition"},
		confidence: 0.8, reason: "current title pattern"},
	{attr: AttrGraduationYear, contains: []string{"graduationyear", "gradyear", "yearofgraduation", "graduationdate"},
		confidence: 0.8, reason: "graduation year pattern"},
	{attr: AttrSchool, contains: []string{"school", "university", "college", "institution"},
		confidence: 0.8, reason: "school pattern"},
	{attr: AttrDegree, exact: []string{"education"}, contains: []string{"degree", "qualification"},
		confidence: 0.75, reason: "degree pattern"},
	{attr: AttrFieldOfStudy, exact: []string{"major"}, contains: []string{"fieldofstudy", "areaofstudy", "discipline"},
		confidence: 0.75, reason: "field of study pattern"},
	{attr: AttrSkills, exact: []string{"technologies", "techstack"}, contains: []string{"skills", "skill"},
		confidence: 0.7, reason: "skills pattern"},
	{attr: AttrSummary, exact: []string{"about", "bio"}, contains: []string{"summary", "aboutyou", "aboutme", "aboutyourself", "introduction"},
		confidence: 0.6, reason: "summary pattern"},
}

// semanticRule matches loose keywords against the words of a field name or label.
// A keyword matches a word it equals or begins; a word beginning with an exclude fragment
// rules the whole field out.
type semanticRule struct {
	attr       Attribute
	keywords   []string
	exclude    []string
	confidence float64
	reason     string
}

var semanticRules = []semanticRule{
	{attr: AttrLocation, keywords: []string{"where", "place", "based", "reside", "living", "live"},
		exclude: []string{"placement", "deliverable", "livestream"}, confidence: 0.6, reason: "mentions where the candidate is based"},
	{attr: AttrYearsExperience, keywords: []string{"years", "seniority"},
		confidence: 0.6, reason: "asks for length of experience"},
	{attr: AttrCurrentTitle, keywords: []string{"occupation", "profession", "designation", "headline"},
		confidence: 0.6, reason: "asks for the candidate's occupation"},
	{attr: AttrCurrentCompany, keywords: []string{"employer", "employed", "workplace", "firm"},
		exclude: []string{"employment", "confirm"}, confidence: 0.55, reason: "asks for the candidate's employer"},
	{attr: AttrSchool, keywords: []string{"alma", "studied", "campus"},
		confidence: 0.55, reason: "asks where the candidate studied"},
	{attr: AttrPhone, keywords: []string{"contact", "reach", "call"},
		confidence: 0.55, reason: "asks how to contact the candidate"},
	{attr: AttrCountry, keywords: []string{"nation"},
		exclude: []string{"destination"}, confidence: 0.55, reason: "asks for a nation"},
	{attr: AttrWebsite, keywords: []string{"link", "online"},
		confidence: 0.5, reason: "asks for an online profile"},
	{attr: AttrSummary, keywords: []string{"describe", "yourself", "introduce", "tell"},
		confidence: 0.5, reason: "asks the candidate to describe themselves"},
}

func (r semanticRule) excluded(tokens []string) bool {
	for _, tok := range tokens {
		for _, ex := range r.exclude {
			if strings.HasPrefix(tok, ex) {
				return true
			}
		}
	}
	return false
}

// compact lowercases s and drops everything that is not a letter or digit.
func compact(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// words splits s into lowercase words on punctuation, spaces and camelCase boundaries.
func words(s string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}
	runes := []rune(s)
	for i, r := range runes {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && i > 0 && unicode.IsLower(runes[i-1]):
			flush()
			cur = append(cur, r)
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return out
}

func (r patternRule) matches(key string) bool {
	if key == "" {
		return false
	}
	for _, e := range r.exact {
		if key == e {
			return true
		}
	}
	for _, ex := range r.exclude {
		if strings.Contains(key, ex) {
			return false
		}
	}
	for _, c := range r.contains {
		if strings.Contains(key, c) {
			return true
		}
	}
	return false
}

// matchPattern finds the first rule matching the field name, then the label.
func matchPattern(field types.FormField) (patternRule, string, bool) {
	name, label := compact(field.Name), compact(field.Label)
	for _, r := range patternRules {
		if r.matches(name) {
			return r, "field name matches " + r.reason, true
		}
	}
	for _, r := range patternRules {
		if r.matches(label) {
			return r, "field label matches " + r.reason, true
		}
	}
	return patternRule{}, "", false
}

// matchType resolves fields whose input type alone identifies the attribute.
func matchType(field types.FormField) (Attribute, float64, string, bool) {
	switch field.Type {
	case types.FieldEmail:
		return AttrEmail, 0.9, "email input type", true
	case types.FieldPhone:
		return AttrPhone, 0.85, "phone input type", true
	}
	return "", 0, "", false
}

// matchSemantic looks for a word of the name or label that equals or begins with a keyword.
func matchSemantic(field types.FormField) (semanticRule, string, bool) {
	tokens := append(words(field.Name), words(field.Label)...)
	for _, r := range semanticRules {
		if r.excluded(tokens) {
			continue
		}
		for _, kw := range r.keywords {
			for _, tok := range tokens {
				if strings.HasPrefix(tok, kw) {
					return r, "keyword \"" + kw + "\" " + r.reason, true
				}
			}
		}
	}
	return semanticRule{}, "", false
}

// matchAnswer finds a candidate-provided answer keyed by the field name or label.
func matchAnswer(field types.FormField, answers map[string]string) (string, bool) {
	if len(answers) == 0 {
		return "", false
	}
	name, label := compact(field.Name), compact(field.Label)
	questions := slices.Sorted(maps.Keys(answers))
	for _, key := range []string{name, label} {
		if key == "" {
			continue
		}
		for _, q := range questions {
			if a := strings.TrimSpace(answers[q]); a != "" && compact(q) == key {
				return a, true
			}
		}
	}
	return "", false
}

// MatchOption returns the option the candidate value selects. An exact case-insensitive match wins;
// otherwise the first option that contains the value, or is contained in it, is chosen.
// It never returns a value outside options.
func MatchOption(options []string, value string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(value))
	if v == "" {
		return "", false
	}
	for _, opt := range options {
		if strings.ToLower(strings.TrimSpace(opt)) == v {
			return opt, true
		}
	}
	for _, opt := range options {
		o := strings.ToLower(strings.TrimSpace(opt))
		if len(o) < 2 {
			continue
		}
		if strings.Contains(o, v) || strings.Contains(v, o) {
			return opt, true
		}
	}
	return "", false
}

package recommend

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/garyellow/itmo-advisor-go/internal/stringutil"
)

// Education is the highest degree mentioned in a profile.
type Education string

// Education levels.
const (
	EducationBachelor Education = "bachelor"
	EducationGraduate Education = "graduate"
	EducationOther    Education = "other"
)

// Profile is the structured reading of a self-description. Skills and
// CareerGoals only hold entries with a positive score.
type Profile struct {
	Skills          map[string]float64 `json:"skills"`
	CareerGoals     map[string]float64 `json:"career_goals"`
	ExperienceYears int                `json:"experience_years"`
	Education       Education          `json:"education_level"`
	Text            string             `json:"text"`
}

// HasSkill reports whether the skill was detected.
func (p Profile) HasSkill(id string) bool {
	_, ok := p.Skills[id]
	return ok
}

// HasGoal reports whether the career goal was detected.
func (p Profile) HasGoal(id string) bool {
	_, ok := p.CareerGoals[id]
	return ok
}

// Analyzer turns free text into a Profile. It is stateless after
// construction and safe for concurrent use.
type Analyzer struct {
	tables     *Tables
	experience []*regexp.Regexp
}

// NewAnalyzer compiles the experience patterns of t. A nil t uses the
// built-in tables.
func NewAnalyzer(t *Tables) (*Analyzer, error) {
	if t == nil {
		t = DefaultTables()
	}
	a := &Analyzer{tables: t}
	for _, p := range t.ExperiencePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile experience pattern %q: %w", p, err)
		}
		a.experience = append(a.experience, re)
	}
	return a, nil
}

// Analyze derives a profile from text. Matching is case-insensitive
// substring containment.
func (a *Analyzer) Analyze(text string) Profile {
	lower := strings.ToLower(text)

	skills := make(map[string]float64)
	for _, s := range a.tables.Skills {
		if len(s.Keywords) == 0 {
			continue
		}
		if n := countContained(lower, s.Keywords); n > 0 {
			skills[s.ID] = float64(n) / float64(len(s.Keywords))
		}
	}

	goals := make(map[string]float64)
	for _, c := range a.tables.Careers {
		score := 2 * float64(countContained(lower, c.Keywords))
		for _, s := range c.Skills {
			if v, ok := skills[s]; ok {
				score += v * c.Weight
			}
		}
		if score > 0 {
			goals[c.ID] = score
		}
	}

	return Profile{
		Skills:          skills,
		CareerGoals:     goals,
		ExperienceYears: a.experienceYears(lower),
		Education:       a.education(lower),
		Text:            text,
	}
}

// experienceYears tries each pattern in order, then the seniority
// buckets, then the default.
func (a *Analyzer) experienceYears(lower string) int {
	for _, re := range a.experience {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n
		}
	}
	for _, b := range a.tables.Seniority {
		if stringutil.ContainsAny(lower, b.Keywords...) {
			return b.Years
		}
	}
	return a.tables.DefaultExperience
}

func (a *Analyzer) education(lower string) Education {
	switch {
	case stringutil.ContainsAny(lower, a.tables.GraduateKeywords...):
		return EducationGraduate
	case stringutil.ContainsAny(lower, a.tables.BachelorKeywords...):
		return EducationBachelor
	default:
		return EducationOther
	}
}

func countContained(s string, keywords []string) int {
	n := 0
	for _, k := range keywords {
		if strings.Contains(s, k) {
			n++
		}
	}
	return n
}

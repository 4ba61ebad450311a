package recommend

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/garyellow/itmo-advisor-go/internal/stringutil"
)

// Subject extraction limits, in runes.
const (
	maxSubjects        = 20
	minSubjectLineLen  = 10
	maxSubjectLineLen  = 200
	minCleanSubjectLen = 5
)

var (
	leadingNumber = regexp.MustCompile(`^\d+`)
	trailingCode  = regexp.MustCompile(`[\s\p{Zs}]+\d{4,}$`)
)

// DefaultSubjectThreshold is the relevance a subject must exceed to be
// recommended.
const DefaultSubjectThreshold = 0.2

// GenericSubjectReason is used when no rule explains a recommendation.
const GenericSubjectReason = "общее развитие в области ИИ"

// SubjectRecommendation is one ranked curriculum subject.
type SubjectRecommendation struct {
	Subject   string  `json:"subject"`
	Relevance float64 `json:"relevance_score"`
	Reasoning string  `json:"reasoning"`
}

// ExtractSubjects picks subject-like lines out of curriculum text in source
// order, at most 20.
func (s *Scorer) ExtractSubjects(text string) []string {
	if text == "" {
		return nil
	}
	var subjects []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		n := utf8.RuneCountInString(line)
		if n <= minSubjectLineLen || n >= maxSubjectLineLen || stringutil.IsNumeric(line) {
			continue
		}
		if !stringutil.ContainsAny(strings.ToLower(line), s.tables.SubjectMarkers...) {
			continue
		}
		cleaned := cleanSubject(line)
		if utf8.RuneCountInString(cleaned) > minCleanSubjectLen {
			subjects = append(subjects, cleaned)
		}
	}
	if len(subjects) > maxSubjects {
		subjects = subjects[:maxSubjects]
	}
	return subjects
}

// cleanSubject strips a leading semester number and a trailing course code.
func cleanSubject(line string) string {
	line = leadingNumber.ReplaceAllString(line, "")
	line = trailingCode.ReplaceAllString(line, "")
	return strings.TrimSpace(line)
}

// RecommendSubjects scores each subject against the profile and keeps
// those above the threshold, best first. Equal scores keep source order.
func (s *Scorer) RecommendSubjects(p Profile, subjects []string) []SubjectRecommendation {
	var recs []SubjectRecommendation
	for _, subject := range subjects {
		lower := strings.ToLower(subject)
		var (
			score   float64
			reasons []string
		)

		if stringutil.ContainsAny(lower, s.tables.skillKeywords(SkillML)...) {
			if p.HasSkill(SkillML) {
				score += 0.4
				reasons = append(reasons, "соответствует вашему опыту в ML")
			} else {
				score += 0.3
				reasons = append(reasons, "поможет изучить машинное обучение")
			}
		}
		if stringutil.ContainsAny(lower, s.tables.skillKeywords(SkillProgramming)...) && p.HasSkill(SkillProgramming) {
			score += 0.3
			reasons = append(reasons, "развивает навыки программирования")
		}
		if stringutil.ContainsAny(lower, s.tables.skillKeywords(SkillDataScience)...) && p.HasSkill(SkillDataScience) {
			score += 0.3
			reasons = append(reasons, "углубляет знания в анализе данных")
		}
		if stringutil.ContainsAny(lower, s.tables.skillKeywords(SkillBusiness)...) &&
			(p.HasSkill(SkillBusiness) || p.HasGoal(CareerProductManager)) {
			score += 0.4
			reasons = append(reasons, "важно для продуктовых ролей")
		}
		if p.HasGoal(CareerMLEngineer) && stringutil.ContainsAny(lower, s.tables.GoalSubjectWords[CareerMLEngineer]...) {
			score += 0.3
			reasons = append(reasons, "необходимо для ML-инженера")
		}
		if p.HasGoal(CareerProductManager) && stringutil.ContainsAny(lower, s.tables.GoalSubjectWords[CareerProductManager]...) {
			score += 0.3
			reasons = append(reasons, "важно для AI Product Manager")
		}

		if score <= s.threshold {
			continue
		}
		reasoning := GenericSubjectReason
		if len(reasons) > 0 {
			reasoning = strings.Join(reasons, ", ")
		}
		recs = append(recs, SubjectRecommendation{Subject: subject, Relevance: score, Reasoning: reasoning})
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Relevance > recs[j].Relevance })
	return recs
}

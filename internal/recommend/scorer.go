package recommend

import "strings"

// Suitability is the band a program score falls into.
type Suitability string

// Suitability bands, from best to worst.
const (
	SuitabilityExcellent   Suitability = "excellent"
	SuitabilityGood        Suitability = "good"
	SuitabilityConditional Suitability = "conditional"
	SuitabilityNeedsPrep   Suitability = "needs_preparation"
)

var suitabilityLabels = map[Suitability]string{
	SuitabilityExcellent:   "отлично подходит",
	SuitabilityGood:        "хорошо подходит",
	SuitabilityConditional: "подходит с некоторыми условиями",
	SuitabilityNeedsPrep:   "требует дополнительной подготовки",
}

// Label returns the Russian text shown to users.
func (s Suitability) Label() string {
	if l, ok := suitabilityLabels[s]; ok {
		return l
	}
	return string(s)
}

// GenericProgramReason is used when no program-specific condition holds.
const GenericProgramReason = "программа поможет развить навыки в области ИИ"

// Scorer combines a profile with program weights and curriculum subjects.
type Scorer struct {
	tables    *Tables
	threshold float64
}

// NewScorer creates a scorer. A nil t uses the built-in tables and a
// non-positive threshold uses DefaultSubjectThreshold.
func NewScorer(t *Tables, subjectThreshold float64) *Scorer {
	if t == nil {
		t = DefaultTables()
	}
	if subjectThreshold <= 0 {
		subjectThreshold = DefaultSubjectThreshold
	}
	return &Scorer{tables: t, threshold: subjectThreshold}
}

// ScoreProgram is the weighted sum of skill and goal scores for the
// program, clamped to [0, 1]. Programs without weights score 0.
func (s *Scorer) ScoreProgram(p Profile, programID string) float64 {
	w, ok := s.tables.Programs[programID]
	if !ok {
		return 0
	}
	var score float64
	for _, sw := range w.Skills {
		score += p.Skills[sw.Key] * sw.Weight
	}
	for _, gw := range w.Goals {
		score += p.CareerGoals[gw.Key] * gw.Weight
	}
	return min(max(score, 0), 1)
}

// Suitability maps a program score onto its band.
func (s *Scorer) Suitability(score float64) Suitability {
	switch {
	case score >= 0.7:
		return SuitabilityExcellent
	case score >= 0.5:
		return SuitabilityGood
	case score >= 0.3:
		return SuitabilityConditional
	default:
		return SuitabilityNeedsPrep
	}
}

// ReasoningText explains a program score with the conditions that hold.
func (s *Scorer) ReasoningText(p Profile, programID string) string {
	var reasons []string
	add := func(cond bool, reason string) {
		if cond {
			reasons = append(reasons, reason)
		}
	}

	switch programID {
	case "ai":
		add(p.HasSkill(SkillML), "у вас есть опыт в машинном обучении")
		add(p.HasSkill(SkillProgramming), "вы владеете программированием")
		add(p.HasGoal(CareerMLEngineer), "соответствует вашей цели стать ML-инженером")
		add(p.ExperienceYears >= 2, "ваш опыт позволяет успешно освоить программу")
	case "ai_product":
		add(p.HasSkill(SkillBusiness), "у вас есть понимание бизнес-процессов")
		add(p.HasGoal(CareerProductManager), "соответствует цели стать AI Product Manager")
		add(p.HasSkill(SkillML) || p.HasSkill(SkillDataScience), "техническая база поможет в работе с командами разработки")
	}

	if len(reasons) == 0 {
		return GenericProgramReason
	}
	return strings.Join(reasons, "; ")
}

// Package recommend maps a free-text self-description onto a skill profile
// and scores how well each master program and curriculum subject fits it.
// All keyword lists and weights live in Tables so they can be swapped
// without touching the scoring code.
package recommend

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// TablesVersion identifies the built-in tables.
const TablesVersion = "2025.1"

// Skill categories.
const (
	SkillProgramming    = "programming"
	SkillML             = "ml"
	SkillDataScience    = "data_science"
	SkillWeb            = "web_dev"
	SkillMobile         = "mobile"
	SkillDatabases      = "databases"
	SkillMath           = "math"
	SkillBusiness       = "business"
	SkillResearch       = "ai_research"
	SkillComputerVision = "computer_vision"
	SkillNLP            = "nlp"
	SkillDevOps         = "devops"
)

// Career archetypes.
const (
	CareerMLEngineer       = "ml_engineer"
	CareerDataScientist    = "data_scientist"
	CareerProductManager   = "ai_product_manager"
	CareerResearcher       = "ai_researcher"
	CareerSoftwareEngineer = "software_engineer"
)

// SkillCategory is a skill and the substrings that reveal it.
type SkillCategory struct {
	ID       string   `yaml:"id"`
	Keywords []string `yaml:"keywords"`
}

// CareerPath is a career archetype. Direct keyword hits count 2 each;
// detected skills listed in Skills add their score times Weight.
type CareerPath struct {
	ID       string   `yaml:"id"`
	Keywords []string `yaml:"keywords"`
	Skills   []string `yaml:"skills"`
	Weight   float64  `yaml:"weight"`
}

// Weight is one term of a linear score. Slices keep summation order fixed.
type Weight struct {
	Key    string  `yaml:"key"`
	Weight float64 `yaml:"weight"`
}

// ProgramWeights is the scoring vector of one program.
type ProgramWeights struct {
	Skills []Weight `yaml:"skills"`
	Goals  []Weight `yaml:"goals"`
}

// SeniorityBucket maps keywords to a default experience when no number is
// stated.
type SeniorityBucket struct {
	Keywords []string `yaml:"keywords"`
	Years    int      `yaml:"years"`
}

// Tables is the versioned configuration of the analyzer and scorer.
type Tables struct {
	Version            string                    `yaml:"version"`
	Skills             []SkillCategory           `yaml:"skills"`
	Careers            []CareerPath              `yaml:"careers"`
	ExperiencePatterns []string                  `yaml:"experience_patterns"`
	Seniority          []SeniorityBucket         `yaml:"seniority"`
	DefaultExperience  int                       `yaml:"default_experience"`
	GraduateKeywords   []string                  `yaml:"graduate_keywords"`
	BachelorKeywords   []string                  `yaml:"bachelor_keywords"`
	Programs           map[string]ProgramWeights `yaml:"programs"`
	SubjectMarkers     []string                  `yaml:"subject_markers"`
	GoalSubjectWords   map[string][]string       `yaml:"goal_subject_words"`
}

// DefaultTables returns a fresh copy of the built-in tables.
func DefaultTables() *Tables {
	return &Tables{
		Version: TablesVersion,
		Skills: []SkillCategory{
			{SkillProgramming, []string{"python", "java", "javascript", "c++", "программирование", "разработка", "код"}},
			{SkillML, []string{"машинное обучение", "ml", "machine learning", "нейронные сети", "deep learning", "sklearn"}},
			{SkillDataScience, []string{"анализ данных", "data science", "pandas", "numpy", "статистика", "данные"}},
			{SkillWeb, []string{"веб", "web", "frontend", "backend", "django", "flask", "react"}},
			{SkillMobile, []string{"мобильная разработка", "android", "ios", "flutter", "react native"}},
			{SkillDatabases, []string{"база данных", "sql", "postgresql", "mongodb", "database"}},
			{SkillMath, []string{"математика", "алгебра", "статистика", "вероятность", "алгоритмы"}},
			{SkillBusiness, []string{"бизнес", "менеджмент", "управление", "продукт", "аналитика"}},
			{SkillResearch, []string{"исследования", "научная работа", "публикации", "конференции"}},
			{SkillComputerVision, []string{"компьютерное зрение", "computer vision", "opencv", "изображения"}},
			{SkillNLP, []string{"nlp", "обработка языка", "natural language", "текст"}},
			{SkillDevOps, []string{"devops", "docker", "kubernetes", "ci/cd", "инфраструктура"}},
		},
		Careers: []CareerPath{
			{
				ID:       CareerMLEngineer,
				Keywords: []string{"ml engineer", "ml-инженер", "машинное обучение"},
				Skills:   []string{SkillProgramming, SkillML, SkillDataScience, SkillMath},
				Weight:   1.0,
			},
			{
				ID:       CareerDataScientist,
				Keywords: []string{"data scientist", "аналитик данных", "исследователь данных"},
				Skills:   []string{SkillDataScience, SkillML, SkillMath, SkillProgramming},
				Weight:   1.0,
			},
			{
				ID:       CareerProductManager,
				Keywords: []string{"product manager", "продуктовый менеджер", "управление продуктом"},
				Skills:   []string{SkillBusiness, SkillML, SkillDataScience},
				Weight:   1.0,
			},
			{
				ID:       CareerResearcher,
				Keywords: []string{"исследователь", "researcher", "научная работа"},
				Skills:   []string{SkillResearch, SkillML, SkillMath, SkillProgramming},
				Weight:   1.0,
			},
			{
				ID:       CareerSoftwareEngineer,
				Keywords: []string{"разработчик", "программист", "software engineer"},
				Skills:   []string{SkillProgramming, SkillWeb, SkillDatabases},
				Weight:   0.8,
			},
		},
		ExperiencePatterns: []string{
			`(\d+)\s*(?:лет|года|год)`,
			`опыт\s*(\d+)`,
			`работаю\s*(\d+)`,
			`(\d+)\s*years?`,
		},
		Seniority: []SeniorityBucket{
			{Keywords: []string{"junior", "начинающий", "студент"}, Years: 0},
			{Keywords: []string{"middle", "опытный"}, Years: 3},
			{Keywords: []string{"senior", "ведущий", "старший"}, Years: 5},
		},
		DefaultExperience: 1,
		GraduateKeywords:  []string{"магистр", "кандидат", "phd", "аспирант"},
		BachelorKeywords:  []string{"бакалавр", "окончил", "университет", "институт"},
		Programs: map[string]ProgramWeights{
			"ai": {
				Skills: []Weight{{SkillProgramming, 0.3}, {SkillML, 0.4}, {SkillMath, 0.2}, {SkillDataScience, 0.3}},
				Goals:  []Weight{{CareerMLEngineer, 0.4}, {CareerDataScientist, 0.3}, {CareerResearcher, 0.4}},
			},
			"ai_product": {
				Skills: []Weight{{SkillBusiness, 0.4}, {SkillML, 0.2}, {SkillProgramming, 0.2}, {SkillDataScience, 0.2}},
				Goals:  []Weight{{CareerProductManager, 0.5}, {CareerMLEngineer, 0.2}},
			},
		},
		SubjectMarkers: []string{
			"дисциплина", "курс", "анализ", "обучение", "технологии", "системы", "методы",
			"машинное", "данных", "программирование", "разработка", "mlops", "веб",
		},
		GoalSubjectWords: map[string][]string{
			CareerMLEngineer:     {"алгоритм", "модел", "нейрон"},
			CareerProductManager: {"продукт", "управление", "аналитика"},
		},
	}
}

// LoadTables reads a YAML override. Keys present in the file replace the
// built-in values; absent keys keep them.
func LoadTables(path string) (*Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tables: %w", err)
	}
	t := DefaultTables()
	if err := yaml.Unmarshal(raw, t); err != nil {
		return nil, fmt.Errorf("parse tables %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("tables %s: %w", path, err)
	}
	return t, nil
}

// Validate checks that the tables are internally consistent.
func (t *Tables) Validate() error {
	var errs []error

	known := make(map[string]struct{}, len(t.Skills))
	for _, s := range t.Skills {
		if s.ID == "" {
			errs = append(errs, errors.New("skill with empty id"))
			continue
		}
		if len(s.Keywords) == 0 {
			errs = append(errs, fmt.Errorf("skill %q has no keywords", s.ID))
		}
		known[s.ID] = struct{}{}
	}
	for _, c := range t.Careers {
		if c.ID == "" {
			errs = append(errs, errors.New("career with empty id"))
		}
		if c.Weight < 0 {
			errs = append(errs, fmt.Errorf("career %q has negative weight", c.ID))
		}
		for _, s := range c.Skills {
			if _, ok := known[s]; !ok {
				errs = append(errs, fmt.Errorf("career %q references unknown skill %q", c.ID, s))
			}
		}
	}
	for _, p := range t.ExperiencePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("experience pattern %q: %w", p, err))
			continue
		}
		if re.NumSubexp() < 1 {
			errs = append(errs, fmt.Errorf("experience pattern %q has no capture group", p))
		}
	}
	if t.DefaultExperience < 0 {
		errs = append(errs, errors.New("default_experience must be >= 0"))
	}
	return errors.Join(errs...)
}

// skillKeywords returns the keywords of one skill category.
func (t *Tables) skillKeywords(id string) []string {
	for _, s := range t.Skills {
		if s.ID == id {
			return s.Keywords
		}
	}
	return nil
}

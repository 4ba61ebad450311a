package recommend

import (
	"fmt"
	"strings"

	"github.com/garyellow/itmo-advisor-go/internal/metrics"
	"github.com/garyellow/itmo-advisor-go/internal/program"
)

// Result count limits.
const (
	MaxSubjectsPerProgram = 5
	markdownSubjects      = 3
)

// Result is the recommendation for one program.
type Result struct {
	ProgramID           string                  `json:"program_id"`
	ProgramName         string                  `json:"program_name"`
	Score               float64                 `json:"program_score"`
	Suitability         Suitability             `json:"suitability"`
	RecommendedSubjects []SubjectRecommendation `json:"recommended_subjects"`
	Reasoning           string                  `json:"reasoning"`
}

// Engine runs the full pipeline from text to per-program results.
type Engine struct {
	analyzer *Analyzer
	scorer   *Scorer
	catalog  *program.Catalog
	metrics  *metrics.Metrics
}

// NewEngine wires an analyzer and scorer over the same tables. m may be nil.
func NewEngine(t *Tables, catalog *program.Catalog, subjectThreshold float64, m *metrics.Metrics) (*Engine, error) {
	if t == nil {
		t = DefaultTables()
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tables: %w", err)
	}
	if catalog == nil {
		catalog = program.DefaultCatalog()
	}
	a, err := NewAnalyzer(t)
	if err != nil {
		return nil, err
	}
	return &Engine{
		analyzer: a,
		scorer:   NewScorer(t, subjectThreshold),
		catalog:  catalog,
		metrics:  m,
	}, nil
}

// Analyzer returns the engine's analyzer.
func (e *Engine) Analyzer() *Analyzer { return e.analyzer }

// Scorer returns the engine's scorer.
func (e *Engine) Scorer() *Scorer { return e.scorer }

// Recommend analyzes text and scores every catalog program, keyed by
// program id. A program missing from programs is scored from its id alone
// and gets no subjects.
func (e *Engine) Recommend(text string, programs map[string]program.Record) map[string]Result {
	p := e.analyzer.Analyze(text)
	e.metrics.RecordRecommendation()

	results := make(map[string]Result, len(e.catalog.IDs()))
	for _, info := range e.catalog.All() {
		score := e.scorer.ScoreProgram(p, info.ID)
		subjects := e.scorer.RecommendSubjects(p, e.scorer.ExtractSubjects(programs[info.ID].CurriculumText()))
		if len(subjects) > MaxSubjectsPerProgram {
			subjects = subjects[:MaxSubjectsPerProgram]
		}
		results[info.ID] = Result{
			ProgramID:           info.ID,
			ProgramName:         info.Name,
			Score:               score,
			Suitability:         e.scorer.Suitability(score),
			RecommendedSubjects: subjects,
			Reasoning:           e.scorer.ReasoningText(p, info.ID),
		}
	}
	return results
}

// FormatMarkdown renders results in catalog order with the top three
// subjects of each program.
func (e *Engine) FormatMarkdown(results map[string]Result) string {
	var b strings.Builder
	b.WriteString("**Персональные рекомендации:**\n\n")

	for _, id := range e.catalog.IDs() {
		r, ok := results[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "**%s** - %s\n", r.ProgramName, r.Suitability.Label())
		fmt.Fprintf(&b, "*Обоснование:* %s\n\n", r.Reasoning)

		if len(r.RecommendedSubjects) > 0 {
			b.WriteString("*Рекомендуемые дисциплины:*\n")
			for _, s := range r.RecommendedSubjects[:min(markdownSubjects, len(r.RecommendedSubjects))] {
				fmt.Fprintf(&b, "• %s - %s\n", s.Subject, s.Reasoning)
			}
			b.WriteString("\n")
		}
	}

	b.WriteString("Хотите узнать больше о какой-то конкретной программе?")
	return b.String()
}

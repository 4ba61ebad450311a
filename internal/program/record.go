package program

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Section keys written by the ingestion parser.
const (
	SectionTitle          = "Название"
	SectionURL            = "URL"
	SectionDescription    = "Описание программы"
	SectionCareer         = "Карьера"
	SectionDetailed       = "Описание (подробное)"
	SectionFAQ            = "Вопросы и ответы"
	SectionCostRU         = "Стоимость для россиян"
	SectionCostForeign    = "Стоимость для иностранцев"
	SectionCostYear       = "Год стоимости"
	SectionPeriod         = "Период обучения"
	SectionForm           = "Форма обучения"
	SectionDirection      = "Код направления"
	SectionTeam           = "Команда"
	SectionReviews        = "Отзывы"
	SectionAbout          = "О программе"
	SectionQuotas         = "Квоты на поступление"
	SectionScrapedAt      = "_parsed_at"
	SectionDocuments      = "PDF_документы"
	DocumentCurriculum    = "учебный_план"
	DocumentCurriculumURL = "учебный_план_url"
)

// Record is one program as a mapping of section name to content. Values are
// strings, nested maps, slices or json.Number. A Record is never mutated
// after loading.
type Record map[string]any

// String returns the section as a string, or "" when it is missing or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// Map returns a nested section, or nil.
func (r Record) Map(key string) map[string]any {
	m, _ := r[key].(map[string]any)
	return m
}

// Int returns a numeric section. Strings of digits are accepted too.
func (r Record) Int(key string) (int64, bool) {
	return toInt(r[key])
}

// Truthy mirrors how the ingestion data marks a section as present: missing,
// empty strings, empty collections and zero numbers count as absent.
func (r Record) Truthy(key string) bool {
	switch v := r[key].(type) {
	case nil:
		return false
	case string:
		return v != ""
	case bool:
		return v
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	default:
		return true
	}
}

// Display renders a scalar section value as text.
func (r Record) Display(key string) string {
	return displayValue(r[key])
}

// FAQ returns question/answer pairs whose values are both non-empty strings,
// sorted by question.
func (r Record) FAQ() []QA {
	faq := r.Map(SectionFAQ)
	if len(faq) == 0 {
		return nil
	}
	pairs := make([]QA, 0, len(faq))
	for q, v := range faq {
		a, _ := v.(string)
		if q == "" || a == "" {
			continue
		}
		pairs = append(pairs, QA{Question: q, Answer: a})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Question < pairs[j].Question })
	return pairs
}

// CurriculumText returns the extracted curriculum PDF text, or "".
func (r Record) CurriculumText() string {
	s, _ := r.Map(SectionDocuments)[DocumentCurriculum].(string)
	return s
}

// SortedKeys returns the section names in lexical order.
func (r Record) SortedKeys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// QA is one FAQ entry.
type QA struct {
	Question string
	Answer   string
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		if f, err := n.Float64(); err == nil {
			return int64(math.Round(f)), true
		}
	case float64:
		return int64(math.Round(n)), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}

func displayValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

package chat

import (
	"strings"

	"github.com/garyellow/itmo-advisor-go/internal/stringutil"
)

// Kind is the detected type of a user message.
type Kind string

// Message kinds.
const (
	KindInfo           Kind = "info"
	KindComparison     Kind = "comparison"
	KindRecommendation Kind = "recommendation"
	KindBackground     Kind = "background"
	KindIrrelevant     Kind = "irrelevant"
)

var comparisonKeywords = []string{
	"сравни", "различия", "чем отличается", "что лучше", "выбрать",
}

var recommendationKeywords = []string{
	"рекомендации", "дисциплины", "предметы", "что изучать", "посоветуй",
	"советы", "рекомендуй", "подходит", "программу выбрать", "какую программу",
	"дисциплин", "курсы", "обучение", "изучать", "предложи", "подскажи",
}

var backgroundIndicators = []string{
	"я работаю", "у меня опыт", "я изучал", "моя специальность",
	"я программист", "я разработчик", "окончил", "учился",
	"мой бэкграунд", "мое образование", "по образованию",
}

// interestKeywords is ordered; ExtractInterests reports interests in this order.
var interestKeywords = []struct {
	interest string
	keywords []string
}{
	{"машинное обучение", []string{"машинное обучение", "ml", "machine learning"}},
	{"глубокое обучение", []string{"глубокое обучение", "deep learning", "нейронные сети"}},
	{"обработка данных", []string{"анализ данных", "data science", "данные"}},
	{"компьютерное зрение", []string{"компьютерное зрение", "computer vision", "cv"}},
	{"nlp", []string{"nlp", "обработка языка", "natural language"}},
	{"продуктовая разработка", []string{"продукт", "product", "менеджмент"}},
}

// Classify picks the handling path for a question. Comparison keywords win
// over recommendation keywords; everything else is an info question.
func Classify(message string) Kind {
	lower := strings.ToLower(message)
	switch {
	case stringutil.ContainsAny(lower, comparisonKeywords...):
		return KindComparison
	case stringutil.ContainsAny(lower, recommendationKeywords...):
		return KindRecommendation
	default:
		return KindInfo
	}
}

// IsBackgroundMessage reports whether message reads as a self-description.
func IsBackgroundMessage(message string) bool {
	return stringutil.ContainsAny(strings.ToLower(message), backgroundIndicators...)
}

// ExtractInterests returns the interest areas mentioned in message.
// Matching is by substring, so short keywords like "ml" also fire inside
// longer words.
func ExtractInterests(message string) []string {
	lower := strings.ToLower(message)
	var interests []string
	for _, ik := range interestKeywords {
		if stringutil.ContainsAny(lower, ik.keywords...) {
			interests = append(interests, ik.interest)
		}
	}
	return interests
}

package rag

import (
	"strings"

	"github.com/garyellow/itmo-advisor-go/internal/storage"
)

// contextIndicators mark a question that refers back to the previous one.
var contextIndicators = []string{
	"это", "эта", "этой", "сколько это", "а сколько", "и сколько",
	"цена", "стоит", "that", "how much is it",
}

// ExpandQuery prepends the most recent prior question when the current one
// looks anaphoric. Turns are oldest first; the newest non-empty question
// is used. Only one hop is taken and nothing is deduplicated.
func ExpandQuery(question string, history []storage.Turn) string {
	if len(history) == 0 {
		return question
	}
	lower := strings.ToLower(question)
	anaphoric := false
	for _, ind := range contextIndicators {
		if strings.Contains(lower, ind) {
			anaphoric = true
			break
		}
	}
	if !anaphoric {
		return question
	}
	for i := len(history) - 1; i >= 0; i-- {
		if prev := history[i].Question; prev != "" {
			return prev + " " + question
		}
	}
	return question
}

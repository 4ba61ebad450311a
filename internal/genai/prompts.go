package genai

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/garyellow/itmo-advisor-go/internal/storage"
)

// SystemPrompt sets the assistant role for every answer.
const SystemPrompt = `Ты - консультант для абитуриентов магистратуры ИТМО в области искусственного интеллекта.
Ты помогаешь выбрать между программами "Искусственный интеллект" и "Управление ИИ-продуктами",
рассказываешь о поступлении, стоимости, дисциплинах и карьере выпускников.

Правила:
- Отвечай на русском языке, кратко и по делу.
- Опирайся только на данные о программах ниже. Если данных нет, честно скажи об этом и предложи посмотреть сайт abit.itmo.ru.
- Не придумывай цифры, даты и названия дисциплин.
- Если известен бэкграунд пользователя, учитывай его в советах.`

// RelevancePrompt asks for a yes/no judgement on whether a question is in scope.
const RelevancePrompt = `Определи, относится ли вопрос пользователя к магистерским программам ИТМО
"Искусственный интеллект" или "Управление ИИ-продуктами": поступление, обучение, стоимость,
дисциплины, карьера, выбор программы, сравнение программ, бэкграунд абитуриента.
Приветствия и уточнения к предыдущему вопросу тоже считаются относящимися.

Ответь одним словом: "да" или "нет".`

// promptHistoryTurns is how many past turns go into the user prompt.
const promptHistoryTurns = 3

// BuildSystemPrompt appends the program data and the user's background to
// SystemPrompt. Empty parts are omitted.
func BuildSystemPrompt(programContext, background string) string {
	var b strings.Builder
	b.WriteString(SystemPrompt)
	if programContext != "" {
		b.WriteString("\n\nДанные о программах ИТМО:\n")
		b.WriteString(programContext)
	}
	if background != "" {
		b.WriteString("\n\nИнформация о пользователе: ")
		b.WriteString(background)
	}
	return b.String()
}

// BuildUserPrompt renders the question, preceded by the last three turns
// when there is history.
func BuildUserPrompt(question string, history []storage.Turn) string {
	prompt := "Вопрос: " + question
	if len(history) == 0 {
		return prompt
	}

	recent := history[max(0, len(history)-promptHistoryTurns):]
	lines := make([]string, 0, len(recent))
	for _, t := range recent {
		lines = append(lines, fmt.Sprintf("Пользователь: %s\nБот: %s", t.Question, t.Answer))
	}
	return "История диалога:\n" + strings.Join(lines, "\n") + "\n\n" + prompt
}

// IsRelevant asks g whether question is about the programs. Any failure
// counts as relevant so that an LLM outage never blocks answers.
func IsRelevant(ctx context.Context, g Generator, question string) bool {
	if g == nil {
		return true
	}
	answer, err := g.Generate(ctx, Request{
		System:      RelevancePrompt,
		User:        question,
		MaxTokens:   50,
		Temperature: 0.1,
	})
	if err != nil {
		slog.WarnContext(ctx, "relevance check failed, assuming relevant", "error", err)
		return true
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return strings.HasPrefix(answer, "да") || strings.HasPrefix(answer, "yes")
}

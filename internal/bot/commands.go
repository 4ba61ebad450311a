package bot

import (
	"fmt"
	"strings"

	"github.com/garyellow/itmo-advisor-go/internal/program"
)

// Command names recognised at the start of a message.
const (
	CmdStart      = "/start"
	CmdHelp       = "/help"
	CmdPrograms   = "/programs"
	CmdBackground = "/background"
	CmdClear      = "/clear"
)

// DefaultDisplayName is used when the user's profile cannot be read.
const DefaultDisplayName = "Абитуриент"

// MaxInputRunes caps the length of an incoming message.
const MaxInputRunes = 2000

const welcomeTemplate = `Привет, %s!

Я чат-бот помощник для абитуриентов магистратуры ИТМО в области искусственного интеллекта.

Я помогу вам с:
• Выбором между программами "Искусственный интеллект" и "Управление ИИ-продуктами"
• Информацией о поступлении и обучении
• Рекомендациями по выборным дисциплинам
• Сравнением программ

Команды:
/programs - информация о программах
/background - указать свой бэкграунд для персональных рекомендаций
/help - справка
/clear - очистить историю

Просто задайте любой вопрос о магистерских программах ИТМО!`

const helpText = `Справка по использованию бота

Примеры вопросов:
• "Чем отличаются программы?"
• "Какие требования для поступления?"
• "Посоветуй дисциплины для ML-инженера"
• "Сколько стоит обучение?"
• "Какие проекты делают студенты?"

Команды:
/programs - краткая информация о программах
/background - указать свой бэкграунд
/clear - очистить историю диалога

Для лучших рекомендаций:
Расскажите о своем образовании, опыте и интересах через команду /background или просто в сообщении.

У вас есть вопросы о магистратуре ИТМО?`

const backgroundPrompt = `Расскажите о своем бэкграунде для персональных рекомендаций:

Что важно указать:
• Образование (какой факультет, специальность)
• Опыт работы (сфера, должность, стаж)
• Технические навыки (языки программирования, инструменты)
• Знакомство с ИИ/ML (курсы, проекты, опыт)
• Профессиональные интересы и цели

Пример:
/background Окончил ВТУ по направлению информатика. Работаю backend-разработчиком на Python 2 года. Изучал курсы по ML на Coursera, делал pet-проект по анализу данных. Хочу стать ML-инженером и работать с большими данными.

После указания бэкграунда вы сможете получить персональные рекомендации по дисциплинам!`

const clearedText = "🧹 История диалога очищена!\n\n" +
	"Теперь можете начать новый диалог. " +
	"Если хотите получить персональные рекомендации, " +
	"не забудьте указать свой бэкграунд командой /background"

// Replies produced by the processor itself.
const (
	HandlerErrorMessage = "Извините, произошла ошибка при обработке вашего сообщения. " +
		"Попробуйте еще раз или обратитесь к разработчику."
	TooLongMessage    = "❌ Сообщение слишком длинное\n\nСократите его до %d символов и отправьте снова."
	RateLimitMessage  = "⏳ Слишком много вопросов подряд\n\nПовторите примерно через %d мин. Команды /programs и /help доступны без ограничений."
	UnknownCmdMessage = "Неизвестная команда %s\n\nСписок команд: /help"
)

const programsFooter = "Общие особенности:\n" +
	"• Проектный подход с реальными компаниями\n" +
	"• Возможность совмещать с работой\n\n" +
	"Задайте любой вопрос для подробной информации!"

// parseCommand splits "/cmd args" into the lowercased command and the rest.
// ok is false when text is not a command.
func parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, args, _ = strings.Cut(text, " ")
	if i := strings.IndexByte(cmd, '\n'); i >= 0 {
		args = cmd[i+1:] + " " + args
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args), true
}

// welcomeText greets the user by name.
func welcomeText(displayName string) string {
	if strings.TrimSpace(displayName) == "" {
		displayName = DefaultDisplayName
	}
	return fmt.Sprintf(welcomeTemplate, displayName)
}

// programsText summarises every catalog program from the loaded records.
// Programs with no record are listed by name only.
func programsText(catalog *program.Catalog, records map[string]program.Record) string {
	chunker := program.NewChunker(catalog)

	var b strings.Builder
	b.WriteString("Магистерские программы ИТМО в области ИИ:\n\n")
	for i, info := range catalog.All() {
		rec := records[info.ID]
		fmt.Fprintf(&b, "%d. \"%s\"\n", i+1, chunker.DisplayName(info.ID, rec))
		if rec.Truthy(program.SectionDirection) {
			fmt.Fprintf(&b, "• Направление: %s\n", rec.Display(program.SectionDirection))
		}
		if rec.Truthy(program.SectionForm) {
			fmt.Fprintf(&b, "• Форма обучения: %s\n", rec.Display(program.SectionForm))
		}
		if rec.Truthy(program.SectionPeriod) {
			fmt.Fprintf(&b, "• Период обучения: %s\n", rec.Display(program.SectionPeriod))
		}
		if rec.Truthy(program.SectionCostRU) {
			fmt.Fprintf(&b, "• Стоимость: %s ₽/год\n", chunker.FormatCost(rec))
		}
		fmt.Fprintf(&b, "• %s\n\n", info.URL)
	}
	b.WriteString(programsFooter)
	return b.String()
}

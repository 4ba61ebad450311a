package chat

// User-facing replies.
const (
	// IrrelevantMessage answers questions outside the two programs.
	IrrelevantMessage = `Извините, я специализируюсь только на вопросах о магистерских программах ИТМО в области искусственного интеллекта:

• **"Искусственный интеллект"** 
• **"Управление ИИ-продуктами"**

Я могу помочь с:
• Выбором программы под ваш бэкграунд
• Информацией о поступлении и обучении  
• Сравнением программ
• Рекомендациями по дисциплинам
• Карьерными возможностями

Задайте вопрос о магистерских программах ИТМО!`

	// RequestBackgroundMessage asks for a self-description before recommending.
	RequestBackgroundMessage = `Чтобы дать персональные рекомендации по дисциплинам, расскажите о себе:

**Ваш бэкграунд:**
• Текущее образование/опыт работы
• Знакомство с программированием и ИИ
• Профессиональные интересы
• Планы на будущее

**Например:** "Я программист с опытом 2 года, работаю с Python, интересуюсь машинным обучением и хочу стать ML-инженером"

После этого я смогу предложить конкретные дисциплины!`

	// BackgroundSavedMessage confirms SetBackground.
	BackgroundSavedMessage = "Спасибо! Информация сохранена. Теперь можете запросить рекомендации по дисциплинам."

	// NotFoundMessage is returned when retrieval finds nothing and no LLM is configured.
	NotFoundMessage = "Извините, я не нашёл информации по вашему вопросу. Попробуйте переформулировать."

	// GenerationFailedMessage is returned when every LLM provider failed.
	GenerationFailedMessage = "Извините, произошла ошибка при генерации ответа. Попробуйте позже."

	// ErrorMessage is the reply for any other failure.
	ErrorMessage = "Извините, произошла ошибка. Попробуйте задать вопрос еще раз."

	// EmptyQuestionMessage is returned for blank input.
	EmptyQuestionMessage = "Пожалуйста, задайте вопрос о магистерских программах ИТМО."

	snippetsHeader     = "Вот что я нашёл по вашему вопросу:\n\n"
	comparisonHeader   = "**Сравнение программ:**\n\n"
	snippetsFooter     = "Подробнее: https://abit.itmo.ru"
	snippetPreviewRune = 400
)

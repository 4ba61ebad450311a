package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	domerrors "github.com/garyellow/itmo-advisor-go/internal/errors"
	"github.com/garyellow/itmo-advisor-go/internal/genai"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/rag"
	"github.com/garyellow/itmo-advisor-go/internal/recommend"
	"github.com/garyellow/itmo-advisor-go/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGenerator answers relevance checks with relevant and everything else
// with answer or err. Requests are recorded.
type fakeGenerator struct {
	relevant string
	answer   string
	err      error

	mu       sync.Mutex
	requests []genai.Request
}

func (f *fakeGenerator) Generate(_ context.Context, req genai.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if req.System == genai.RelevancePrompt {
		return f.relevant, nil
	}
	return f.answer, f.err
}

func (f *fakeGenerator) Provider() genai.Provider { return genai.ProviderOpenAI }
func (f *fakeGenerator) Close() error             { return nil }

// lastAnswerRequest returns the most recent non-relevance request.
func (f *fakeGenerator) lastAnswerRequest(t *testing.T) genai.Request {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].System != genai.RelevancePrompt {
			return f.requests[i]
		}
	}
	t.Fatal("no answer request recorded")
	return genai.Request{}
}

func corpus() map[string]program.Record {
	return map[string]program.Record{
		"ai": {
			program.SectionDescription: "Программа готовит инженеров машинного обучения и исследователей в области искусственного интеллекта",
			program.SectionCareer:      "Выпускники работают ML-инженерами, data scientist и исследователями в крупных компаниях",
			program.SectionFAQ: map[string]any{
				"Есть ли общежитие?": "Да, иногородним студентам предоставляется общежитие",
			},
			program.SectionCostRU: json.Number("599000"),
			program.SectionPeriod: "2 года",
			program.SectionForm:   "Очная",
			program.SectionDocuments: map[string]any{
				program.DocumentCurriculum: "1Машинное обучение 3108\n2 Алгоритмы и структуры данных",
			},
		},
		"ai_product": {
			program.SectionDescription: "Программа готовит менеджеров ИИ-продуктов, которые умеют запускать продукты на основе машинного обучения",
			program.SectionCareer:      "Выпускники работают продакт-менеджерами и руководителями направлений искусственного интеллекта",
			program.SectionCostRU:      json.Number("599000"),
			program.SectionPeriod:      "2 года",
		},
	}
}

type fixture struct {
	manager *Manager
	store   *storage.DB
}

func newFixture(t *testing.T, gen genai.Generator) fixture {
	t.Helper()
	ctx := context.Background()

	log := logger.New("error")
	retriever := rag.NewRetriever(rag.Config{}, log, nil)
	require.NoError(t, retriever.Index(ctx, corpus()))

	engine, err := recommend.NewEngine(nil, nil, recommend.DefaultSubjectThreshold, nil)
	require.NoError(t, err)

	store, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	m := NewManager(Config{
		Searcher:    retriever,
		Recommender: engine,
		Store:       store,
		Generator:   gen,
		Logger:      log,
	})
	return fixture{manager: m, store: store}
}

func (f fixture) turns(t *testing.T, userID string) []storage.Turn {
	t.Helper()
	turns, err := f.store.RecentTurns(context.Background(), userID, 50)
	require.NoError(t, err)
	return turns
}

func TestProcess_InfoWithoutLLM(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	assert.False(t, f.manager.LLMEnabled())

	reply, err := f.manager.Process(ctx, "u1", "Есть ли общежитие?")
	require.NoError(t, err)
	assert.Equal(t, KindInfo, reply.Kind)
	assert.True(t, strings.HasPrefix(reply.Text, snippetsHeader))
	assert.Contains(t, reply.Text, "иногородним студентам")
	require.NotEmpty(t, reply.Sources)
	assert.Equal(t, program.KindFAQ, reply.Sources[0].Meta.Kind)

	turns := f.turns(t, "u1")
	require.Len(t, turns, 1)
	assert.Equal(t, "Есть ли общежитие?", turns[0].Question)
	assert.Equal(t, reply.Text, turns[0].Answer)
}

func TestProcess_NotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	reply, err := f.manager.Process(context.Background(), "u1", "квантовая гравитация")
	require.NoError(t, err)
	assert.Equal(t, NotFoundMessage, reply.Text)
	assert.Empty(t, reply.Sources)
}

func TestProcess_EmptyQuestion(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	reply, err := f.manager.Process(context.Background(), "u1", "   ")
	require.NoError(t, err)
	assert.Equal(t, EmptyQuestionMessage, reply.Text)
	assert.Empty(t, f.turns(t, "u1"))
}

func TestProcess_ComparisonWithoutLLM(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	reply, err := f.manager.Process(context.Background(), "u1", "Сравни программы")
	require.NoError(t, err)
	assert.Equal(t, KindComparison, reply.Kind)

	ai := strings.Index(reply.Text, "**Искусственный интеллект**")
	product := strings.Index(reply.Text, "**Управление ИИ-продуктами**")
	require.GreaterOrEqual(t, ai, 0)
	require.GreaterOrEqual(t, product, 0)
	assert.Less(t, ai, product, "programs follow catalog order")
	assert.Contains(t, reply.Text, "• Стоимость: 599,000 ₽/год")
	assert.Contains(t, reply.Text, "• Форма обучения: Очная")
}

func TestProcess_RecommendationFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	reply, err := f.manager.Process(ctx, "u1", "Посоветуй дисциплины")
	require.NoError(t, err)
	assert.Equal(t, KindRecommendation, reply.Kind)
	assert.Equal(t, RequestBackgroundMessage, reply.Text)

	reply, err = f.manager.HandleMessage(ctx, "u1", "Я программист на Python, хочу стать ML-инженером")
	require.NoError(t, err)
	assert.Equal(t, KindBackground, reply.Kind)
	assert.Equal(t, BackgroundSavedMessage, reply.Text)

	user, err := f.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, []string{"машинное обучение"}, user.Interests)

	reply, err = f.manager.Process(ctx, "u1", "Посоветуй дисциплины")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Text, "**Персональные рекомендации:**"))
	assert.Contains(t, reply.Text, "**Искусственный интеллект**")
	assert.Contains(t, reply.Text, "*Обоснование:*")

	assert.Len(t, f.turns(t, "u1"), 2, "background messages are not turns")
}

func TestSetBackground_Empty(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, err := f.manager.SetBackground(context.Background(), "u1", "  ", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domerrors.ErrInvalidInput)
	assert.Equal(t, RequestBackgroundMessage, domerrors.GetUserMessage(err))
}

func TestProcess_InfoWithLLM(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{relevant: "да", answer: "Да, общежитие есть."}
	f := newFixture(t, gen)
	ctx := context.Background()

	_, err := f.manager.HandleMessage(ctx, "u1", "Я разработчик, пишу на Go")
	require.NoError(t, err)

	reply, err := f.manager.Process(ctx, "u1", "Есть ли общежитие?")
	require.NoError(t, err)
	assert.Equal(t, "Да, общежитие есть.", reply.Text)
	assert.NotEmpty(t, reply.Sources)

	req := gen.lastAnswerRequest(t)
	assert.True(t, strings.HasPrefix(req.System, genai.SystemPrompt))
	assert.Contains(t, req.System, "**Искусственный интеллект:**")
	assert.Contains(t, req.System, "faq (релевантность: ")
	assert.Contains(t, req.System, "Информация о пользователе: Я разработчик, пишу на Go")
	assert.Equal(t, "Вопрос: Есть ли общежитие?", req.User)

	// The second question sees the first turn as history.
	_, err = f.manager.Process(ctx, "u1", "А сколько это стоит?")
	require.NoError(t, err)
	req = gen.lastAnswerRequest(t)
	assert.True(t, strings.HasPrefix(req.User, "История диалога:\nПользователь: Есть ли общежитие?\nБот: Да, общежитие есть."))
}

func TestProcess_ComparisonWithLLM(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{relevant: "да", answer: "Сравнение"}
	f := newFixture(t, gen)

	reply, err := f.manager.Process(context.Background(), "u1", "Чем отличается ИИ от ИИ-продуктов?")
	require.NoError(t, err)
	assert.Equal(t, KindComparison, reply.Kind)

	req := gen.lastAnswerRequest(t)
	assert.Contains(t, req.System, "**Искусственный интеллект:**")
	assert.Contains(t, req.System, "**Управление ИИ-продуктами:**")
	assert.Contains(t, req.System, "- "+program.SectionPeriod+": 2 года")
	assert.NotContains(t, req.System, program.SectionDocuments)
}

func TestProcess_Irrelevant(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{relevant: "нет", answer: "unused"}
	f := newFixture(t, gen)

	reply, err := f.manager.Process(context.Background(), "u1", "Какая завтра погода?")
	require.NoError(t, err)
	assert.Equal(t, KindIrrelevant, reply.Kind)
	assert.Equal(t, IrrelevantMessage, reply.Text)
	assert.Empty(t, f.turns(t, "u1"))
}

func TestProcess_GenerationFailure(t *testing.T) {
	t.Parallel()
	gen := &fakeGenerator{relevant: "да", err: errors.New("all providers failed")}
	f := newFixture(t, gen)

	_, err := f.manager.Process(context.Background(), "u1", "Есть ли общежитие?")
	require.Error(t, err)
	assert.ErrorIs(t, err, domerrors.ErrLLMUnavailable)
	assert.Equal(t, GenerationFailedMessage, domerrors.GetUserMessage(err))
	assert.Empty(t, f.turns(t, "u1"))
}

func TestClearHistory(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.manager.Process(ctx, "u1", "Есть ли общежитие?")
	require.NoError(t, err)
	_, err = f.manager.SetBackground(ctx, "u1", "Я аналитик", nil)
	require.NoError(t, err)

	require.NoError(t, f.manager.ClearHistory(ctx, "u1"))
	assert.Empty(t, f.turns(t, "u1"))

	user, err := f.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, user.HasBackground(), "clearing history keeps the background")
}

func TestGroupResults(t *testing.T) {
	t.Parallel()

	results := []rag.Result{
		{Text: "a", Score: 0.87, Meta: program.ChunkMeta{Program: "P1", Section: "description"}},
		{Text: "b", Score: 0.5, Meta: program.ChunkMeta{Program: "P2", Section: "faq"}},
		{Text: "c", Score: 0.871, Meta: program.ChunkMeta{Program: "P1", Section: "description"}},
		{Text: "d", Score: 0.3},
	}
	got := groupResults(results).String()
	want := "**P1:**\n- description (релевантность: 0.87): c\n\n" +
		"**P2:**\n- faq (релевантность: 0.50): b\n\n" +
		"**Неизвестная программа:**\n- Общая информация (релевантность: 0.30): d\n"
	assert.Equal(t, want, got)
	assert.Empty(t, groupResults(nil).String())
}

func TestPreview(t *testing.T) {
	t.Parallel()

	short := "коротко"
	assert.Equal(t, short, preview("  "+short+"  "))

	long := strings.Repeat("я", snippetPreviewRune+10)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, snippetPreviewRune+1, len([]rune(got)))
}

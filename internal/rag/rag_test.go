package rag

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logger.Logger {
	return logger.New("error")
}

func technicalAI() map[string]program.Record {
	return map[string]program.Record{
		"tech": {
			program.SectionTitle:       "Technical AI",
			program.SectionDescription: "Machine learning and data science program",
			program.SectionFAQ:         map[string]any{"Cost?": "599000 rubles per year"},
		},
	}
}

func itmoCorpus() map[string]program.Record {
	return map[string]program.Record{
		"ai": {
			program.SectionDescription: "Программа готовит инженеров машинного обучения и исследователей в области искусственного интеллекта",
			program.SectionCareer:      "Выпускники работают ML-инженерами, data scientist и исследователями в крупных компаниях",
			program.SectionDetailed:    "Обучение включает глубокое обучение, компьютерное зрение, обработку естественного языка",
			program.SectionFAQ: map[string]any{
				"Есть ли общежитие?":       "Да, иногородним студентам предоставляется общежитие",
				"Можно ли учиться заочно?": "Нет, обучение только очное",
			},
			program.SectionCostRU: json.Number("599000"),
			program.SectionPeriod: "2 года",
			program.SectionForm:   "Очная",
		},
		"ai_product": {
			program.SectionDescription: "Программа готовит менеджеров ИИ-продуктов, которые умеют запускать продукты на основе машинного обучения",
			program.SectionCareer:      "Выпускники работают продакт-менеджерами и руководителями направлений искусственного интеллекта",
			program.SectionFAQ: map[string]any{
				"Сколько стоит обучение?": "Стоимость обучения 599000 рублей в год",
			},
			program.SectionCostRU: json.Number("599000"),
			program.SectionPeriod: "2 года",
		},
	}
}

func newTestRetriever(t *testing.T, backend BackendKind, programs map[string]program.Record) *Retriever {
	t.Helper()
	r := NewRetriever(Config{Backend: backend}, quietLogger(), nil)
	require.NoError(t, r.Index(context.Background(), programs))
	return r
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercase and punctuation", "Машинное обучение, Data-Science!", []string{"машинное", "обучение", "data", "science"}},
		{"short tokens dropped", "ИИ и ML в 2 года", []string{"года"}},
		{"stopwords dropped", "для этого что как этот", []string{"этого"}},
		{"underscore kept", "snake_case value", []string{"snake_case", "value"}},
		{"empty", "   ", []string{}},
		{"decomposed letters compose", "\u0438\u0306од", []string{"йод"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Tokenize(tt.in)
			if len(tt.want) == 0 {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	t.Parallel()
	text := "Стоимость обучения: 599 000 ₽ в год"
	assert.Equal(t, Tokenize(text), Tokenize(text))
}

func TestBuildIndex_VectorNorms(t *testing.T) {
	t.Parallel()

	chunks := program.NewChunker(nil).ChunkAll([]string{"ai", "ai_product"}, itmoCorpus())
	chunks = append(chunks, Chunk{Text: "и в на", Meta: program.ChunkMeta{Program: "noise"}})

	ix, err := BuildIndex(context.Background(), chunks, BackendDense, quietLogger())
	require.NoError(t, err)

	for i := range ix.Len() {
		var sum float64
		for _, x := range ix.Vector(i) {
			sum += float64(x) * float64(x)
		}
		if len(Tokenize(ix.Chunk(i).Text)) == 0 {
			assert.Zero(t, sum, "chunk %d has no tokens and must stay zero", i)
			continue
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6, "chunk %d", i)
	}
}

func TestBuildIndex_IDF(t *testing.T) {
	t.Parallel()

	chunks := []Chunk{{Text: "alpha beta"}, {Text: "alpha gamma"}, {Text: "alpha"}}
	ix, err := BuildIndex(context.Background(), chunks, BackendDense, quietLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta", "gamma"}, ix.Vocabulary())
	idf, ok := ix.IDF("alpha")
	require.True(t, ok)
	assert.Zero(t, idf)
	idf, _ = ix.IDF("beta")
	assert.InDelta(t, math.Log(3), idf, 1e-12)
	_, ok = ix.IDF("delta")
	assert.False(t, ok)

	// "alpha" appears everywhere, so the third chunk weighs nothing.
	assert.True(t, isZero(ix.Vector(2)))
}

func TestBuildIndex_UnknownBackend(t *testing.T) {
	t.Parallel()
	_, err := BuildIndex(context.Background(), nil, BackendKind("faiss"), quietLogger())
	require.Error(t, err)
}

func TestSearch_TopKOrderAndThreshold(t *testing.T) {
	t.Parallel()

	for _, backend := range []BackendKind{BackendDense, BackendChromem} {
		t.Run(string(backend), func(t *testing.T) {
			t.Parallel()
			r := newTestRetriever(t, backend, itmoCorpus())
			queries := []string{"машинного обучения", "общежитие", "стоимость обучения", "искусственного интеллекта продукты"}
			for _, q := range queries {
				for _, k := range []int{1, 2, 5, 50} {
					results := r.Search(context.Background(), q, k)
					assert.LessOrEqual(t, len(results), k)
					for i, res := range results {
						assert.GreaterOrEqual(t, res.Score, DefaultMinScore)
						if i > 0 {
							assert.GreaterOrEqual(t, results[i-1].Score, res.Score, "query %q", q)
						}
					}
				}
			}
		})
	}
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	chunks := []Chunk{
		{Text: "robotics lab", Meta: program.ChunkMeta{Section: "first"}},
		{Text: "robotics lab", Meta: program.ChunkMeta{Section: "second"}},
		{Text: "unrelated words here"},
	}
	for _, backend := range []BackendKind{BackendDense, BackendChromem} {
		ix, err := BuildIndex(context.Background(), chunks, backend, quietLogger())
		require.NoError(t, err)
		hits := ix.Search(context.Background(), "robotics", 5, DefaultMinScore)
		require.Len(t, hits, 2, string(backend))
		assert.Equal(t, 0, hits[0].Index)
		assert.Equal(t, 1, hits[1].Index)
		assert.Equal(t, hits[0].Score, hits[1].Score)
	}
}

func TestIndex_Idempotent(t *testing.T) {
	t.Parallel()

	corpus := itmoCorpus()
	r := NewRetriever(Config{Backend: BackendDense}, quietLogger(), nil)
	ctx := context.Background()

	require.NoError(t, r.Index(ctx, corpus))
	first := r.gen.Load().index
	require.NoError(t, r.Index(ctx, corpus))
	second := r.gen.Load().index

	require.NotSame(t, first, second)
	assert.Equal(t, first.Vocabulary(), second.Vocabulary())
	assert.Equal(t, first.idf, second.idf)
	assert.Equal(t, first.vectors, second.vectors)
	for i := range first.vectors {
		for d := range first.vectors[i] {
			assert.Equal(t, math.Float32bits(first.vectors[i][d]), math.Float32bits(second.vectors[i][d]))
		}
	}
}

func TestBackendEquivalence(t *testing.T) {
	t.Parallel()

	chunks := program.NewChunker(nil).ChunkAll([]string{"ai", "ai_product"}, itmoCorpus())
	ctx := context.Background()

	dense, err := BuildIndex(ctx, chunks, BackendDense, quietLogger())
	require.NoError(t, err)
	accel, err := BuildIndex(ctx, chunks, BackendChromem, quietLogger())
	require.NoError(t, err)
	require.Equal(t, BackendDense, dense.BackendKind())
	require.Equal(t, BackendChromem, accel.BackendKind())

	queries := []string{
		"машинного обучения", "общежитие", "стоимость обучения 599000",
		"продакт-менеджерами", "компьютерное зрение", "очное", "nothing matches",
	}
	for _, q := range queries {
		for _, minScore := range []float64{0, DefaultMinScore, 0.3} {
			want := dense.Search(ctx, q, len(chunks), minScore)
			got := accel.Search(ctx, q, len(chunks), minScore)
			require.Len(t, got, len(want), "query %q min %v", q, minScore)
			for i := range want {
				assert.Equal(t, want[i].Index, got[i].Index, "query %q rank %d", q, i)
				assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
			}
		}
	}
}

func TestNewRetriever_MinScore(t *testing.T) {
	t.Parallel()
	zero, strict, negative := 0.0, 0.3, -1.0

	tests := []struct {
		name string
		cfg  *float64
		want float64
	}{
		{"unset uses default", nil, DefaultMinScore},
		{"explicit zero kept", &zero, 0},
		{"explicit value kept", &strict, 0.3},
		{"negative clamped", &negative, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := NewRetriever(Config{MinScore: tt.cfg}, quietLogger(), nil)
			assert.Equal(t, tt.want, r.minScore)
		})
	}
}

func TestSearch_TechnicalAIScenario(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, BackendAuto, technicalAI())
	results := r.Search(context.Background(), "machine learning", 5)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Equal(t, program.KindContent, top.Meta.Kind)
	assert.Equal(t, "description", top.Meta.Section)
	assert.Equal(t, "Technical AI", top.Meta.Program)
	assert.Greater(t, top.Score, DefaultMinScore)

	for _, res := range results[1:] {
		if res.Meta.Kind == program.KindFAQ {
			assert.Greater(t, top.Score, res.Score)
		}
	}
}

func TestSearch_EmptyCorpus(t *testing.T) {
	t.Parallel()

	r := NewRetriever(Config{}, quietLogger(), nil)
	assert.Empty(t, r.Search(context.Background(), "anything", 5))
	assert.Equal(t, StatusNotInitialized, r.Stats().Status)

	require.NoError(t, r.Index(context.Background(), map[string]program.Record{}))
	assert.Empty(t, r.Search(context.Background(), "anything", 5))
	stats := r.Stats()
	assert.Equal(t, StatusReady, stats.Status)
	assert.Zero(t, stats.ChunkCount)
	assert.Zero(t, stats.VocabularySize)
}

func TestSearch_EmptyQuery(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, BackendAuto, itmoCorpus())
	assert.Empty(t, r.Search(context.Background(), "", 5))
	assert.Empty(t, r.Search(context.Background(), "и в на", 5))
	assert.Empty(t, r.Search(context.Background(), "машинного", 0))
}

func TestSearch_SubstringFallback(t *testing.T) {
	t.Parallel()

	// Every section is too short to chunk, so the index is empty.
	long := strings.Repeat("б", 600)
	programs := map[string]program.Record{
		"ai": {
			program.SectionDescription: "Коротко о ML",
			program.SectionTeam:        map[string]any{"q": "Про ml тоже", "n": 5},
			"Длинный":                  "ml " + long,
		},
	}
	r := newTestRetriever(t, BackendAuto, programs)
	require.Zero(t, r.Stats().ChunkCount)

	results := r.Search(context.Background(), "ML", 10)
	require.Len(t, results, 3)
	for _, res := range results {
		assert.Equal(t, FallbackScore, res.Score)
		assert.Equal(t, program.KindSearch, res.Meta.Kind)
		assert.Equal(t, "Искусственный интеллект", res.Meta.Program)
		assert.True(t, strings.HasSuffix(res.Text, "..."))
	}

	sections := []string{results[0].Meta.Section, results[1].Meta.Section, results[2].Meta.Section}
	assert.ElementsMatch(t, []string{"Длинный", program.SectionTeam + " - q", program.SectionDescription}, sections)

	for _, res := range results {
		if res.Meta.Section == "Длинный" {
			body := strings.TrimSuffix(strings.SplitN(res.Text, "\n", 3)[2], "...")
			assert.Equal(t, fallbackMaxRunes, len([]rune(body)))
		}
	}

	assert.Len(t, r.Search(context.Background(), "ML", 2), 2)
}

func TestSearchWithFallback(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, BackendAuto, itmoCorpus())
	ctx := context.Background()

	// A short exact phrase that no token survives for, but the raw text has.
	assert.Empty(t, r.Search(ctx, "2 г", 5))
	results := r.SearchWithFallback(ctx, "2 г", 5)
	require.NotEmpty(t, results)
	assert.Equal(t, program.KindSearch, results[0].Meta.Kind)

	vector := r.SearchWithFallback(ctx, "общежитие", 5)
	require.NotEmpty(t, vector)
	assert.Equal(t, program.KindFAQ, vector[0].Meta.Kind)
}

func TestProgramContext(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, BackendAuto, itmoCorpus())
	results := r.ProgramContext(context.Background(), "Управление ИИ-продуктами")
	require.Len(t, results, 4)
	for _, res := range results {
		assert.Equal(t, 1.0, res.Score)
		assert.Equal(t, "ai_product", res.Meta.ProgramID)
	}
	assert.Equal(t, "description", results[0].Meta.Section)
	assert.Equal(t, program.KindTechnical, results[3].Meta.Kind)

	assert.Empty(t, r.ProgramContext(context.Background(), "Unknown"))
	assert.Empty(t, NewRetriever(Config{}, quietLogger(), nil).ProgramContext(context.Background(), "x"))
}

func TestStats(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, BackendDense, itmoCorpus())
	stats := r.Stats()
	assert.Equal(t, StatusReady, stats.Status)
	assert.Equal(t, 10, stats.ChunkCount)
	assert.Equal(t, BackendDense, stats.Backend)
	assert.Equal(t, map[string]int{"Искусственный интеллект": 6, "Управление ИИ-продуктами": 4}, stats.ProgramChunks)
	assert.Positive(t, stats.VocabularySize)
	assert.False(t, stats.BuiltAt.IsZero())
}

func TestIndex_FailureKeepsPreviousGeneration(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, BackendDense, itmoCorpus())
	before := r.gen.Load()

	r.backend = BackendKind("broken")
	require.Error(t, r.Index(context.Background(), technicalAI()))
	assert.Same(t, before, r.gen.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.backend = BackendDense
	require.ErrorIs(t, r.Index(ctx, technicalAI()), context.Canceled)
	assert.Same(t, before, r.gen.Load())
	assert.NotEmpty(t, r.Search(context.Background(), "общежитие", 3))
}

func TestSearch_ConcurrentWithRebuild(t *testing.T) {
	t.Parallel()

	r := newTestRetriever(t, BackendAuto, itmoCorpus())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 50 {
				results := r.Search(ctx, "машинного обучения", 3)
				assert.LessOrEqual(t, len(results), 3)
			}
		})
	}
	wg.Go(func() {
		for range 5 {
			assert.NoError(t, r.Index(ctx, itmoCorpus()))
		}
	})
	wg.Wait()
}

func TestExpandQuery(t *testing.T) {
	t.Parallel()

	history := []storage.Turn{
		{Question: "Расскажи про программу ИИ"},
		{Question: "Какие экзамены?"},
	}
	tests := []struct {
		name     string
		question string
		history  []storage.Turn
		want     string
	}{
		{"anaphoric", "А сколько стоит?", history, "Какие экзамены? А сколько стоит?"},
		{"english indicator", "How much is it", history, "Какие экзамены? How much is it"},
		{"no indicator", "Какие дисциплины?", history, "Какие дисциплины?"},
		{"no history", "Сколько это стоит?", nil, "Сколько это стоит?"},
		{"skips empty questions", "цена?", []storage.Turn{{Question: "Про общежитие"}, {Answer: "x"}}, "Про общежитие цена?"},
		{"one hop only", "это?", []storage.Turn{{Question: "a"}, {Question: "b это?"}}, "b это? это?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExpandQuery(tt.question, tt.history))
		})
	}
}

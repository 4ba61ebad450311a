package program

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCatalog(t *testing.T) {
	t.Parallel()

	c := NewCatalog(
		Info{ID: "ai", Name: "Искусственный интеллект"},
		Info{ID: "ai", Name: "duplicate"},
		Info{ID: ""},
		Info{ID: "ai_product", Name: "Управление ИИ-продуктами"},
	)

	assert.Equal(t, []string{"ai", "ai_product"}, c.IDs())
	assert.Equal(t, "Искусственный интеллект", c.Name("ai"))
	assert.Equal(t, "unknown", c.Name("unknown"))

	p, ok := c.ByName("Управление ИИ-продуктами")
	require.True(t, ok)
	assert.Equal(t, BaseURL+"ai_product", p.URL)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	c := Select([]string{"ai_product", "data_science", "ai"})
	assert.Equal(t, []string{"ai_product", "data_science", "ai"}, c.IDs())
	assert.Equal(t, "Управление ИИ-продуктами", c.Name("ai_product"))
	assert.Equal(t, "data_science", c.Name("data_science"))

	info, ok := c.Get("data_science")
	require.True(t, ok)
	assert.Equal(t, BaseURL+"data_science", info.URL)
}

func TestRecordAccessors(t *testing.T) {
	t.Parallel()

	rec, err := Decode(strings.NewReader(`{
		"Описание программы": "text",
		"Стоимость для россиян": 599000,
		"Период обучения": "2 года",
		"Вопросы и ответы": {"Б?": "ответ б", "А?": "ответ а", "Пусто?": "", "Число?": 3},
		"PDF_документы": {"учебный_план": "план"},
		"Пустая карта": {}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "text", rec.String(SectionDescription))
	assert.Equal(t, "", rec.String(SectionCostRU), "non-string section reads as empty")

	cost, ok := rec.Int(SectionCostRU)
	require.True(t, ok)
	assert.EqualValues(t, 599000, cost)

	_, isNumber := rec[SectionCostRU].(json.Number)
	assert.True(t, isNumber, "decoder must keep json.Number")

	assert.Equal(t, []QA{{"А?", "ответ а"}, {"Б?", "ответ б"}}, rec.FAQ())
	assert.Equal(t, "план", rec.CurriculumText())

	assert.True(t, rec.Truthy(SectionPeriod))
	assert.False(t, rec.Truthy("Пустая карта"))
	assert.False(t, rec.Truthy("missing"))
}

func TestChunker_Rules(t *testing.T) {
	t.Parallel()

	rec := Record{
		SectionDescription: "Программа готовит специалистов по машинному обучению",
		SectionCareer:      "short",
		SectionDetailed:    "   \n  ",
		SectionFAQ: map[string]any{
			"Сколько стоит?": "599 000 рублей",
			"Есть общежитие?": "Да",
			"":                "orphan answer",
		},
		SectionCostRU: json.Number("599000"),
		SectionPeriod: "2 года",
		SectionForm:   "Очная",
		SectionTitle:  "ignored for known ids",
	}

	chunks := NewChunker(nil).Chunk("ai", rec)
	require.Len(t, chunks, 4)

	assert.Equal(t, "Программа: Искусственный интеллект\nПрограмма готовит специалистов по машинному обучению", chunks[0].Text)
	assert.Equal(t, ChunkMeta{ProgramID: "ai", Program: "Искусственный интеллект", Section: "description", Kind: KindContent}, chunks[0].Meta)

	assert.Equal(t, "Программа: Искусственный интеллект\nВопрос: Есть общежитие?\nОтвет: Да", chunks[1].Text)
	assert.Equal(t, KindFAQ, chunks[1].Meta.Kind)
	assert.Equal(t, "Есть общежитие?", chunks[1].Meta.Question)
	assert.Equal(t, "Сколько стоит?", chunks[2].Meta.Question)

	assert.Equal(t,
		"Программа: Искусственный интеллект\nТехническая информация:\nСтоимость: 599,000 ₽/год\nПериод обучения: 2 года\nФорма обучения: Очная",
		chunks[3].Text)
	assert.Equal(t, KindTechnical, chunks[3].Meta.Kind)
	assert.Equal(t, "technical", chunks[3].Meta.Section)
	assert.Empty(t, chunks[3].Meta.Question)
}

func TestChunker_ContentThresholdCountsRunes(t *testing.T) {
	t.Parallel()

	// 20 Cyrillic runes is 40 bytes but still not enough.
	exactly20 := strings.Repeat("я", 20)
	over20 := strings.Repeat("я", 21)

	c := NewChunker(nil)
	assert.Empty(t, c.Chunk("ai", Record{SectionDescription: exactly20}))
	assert.Len(t, c.Chunk("ai", Record{SectionDescription: "  " + over20 + "  "}), 1)
}

func TestChunker_EmptyRecord(t *testing.T) {
	t.Parallel()

	assert.Empty(t, NewChunker(nil).Chunk("ai", Record{}))
	assert.Empty(t, NewChunker(nil).Chunk("ai", Record{SectionCostRU: json.Number("0")}))
}

func TestChunker_DisplayNameFallback(t *testing.T) {
	t.Parallel()

	c := NewChunker(NewCatalog())
	assert.Equal(t, "Technical AI", c.DisplayName("tech", Record{SectionTitle: "Technical AI"}))
	assert.Equal(t, "tech", c.DisplayName("tech", Record{}))
}

func TestChunker_ChunkAllOrder(t *testing.T) {
	t.Parallel()

	records := map[string]Record{
		"ai_product": {SectionPeriod: "2 года"},
		"ai":         {SectionPeriod: "2 года"},
	}
	chunks := NewChunker(nil).ChunkAll([]string{"ai", "ai_product", "missing"}, records)
	require.Len(t, chunks, 2)
	assert.Equal(t, "ai", chunks[0].Meta.ProgramID)
	assert.Equal(t, "ai_product", chunks[1].Meta.ProgramID)
}

func TestLoadDirAndSave(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, SaveFile(dir, "ai", Record{SectionDescription: "<b>AI</b> & ML"}))

	legacy := filepath.Join(dir, "Управление ИИ-продуктами.json")
	require.NoError(t, os.WriteFile(legacy, []byte(`{"Период обучения": "2 года"}`), 0o644))

	raw, err := os.ReadFile(filepath.Join(dir, "ai.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "<b>AI</b> & ML", "HTML must not be escaped")

	records, err := LoadDir(dir, nil)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "<b>AI</b> & ML", records["ai"].String(SectionDescription))
	assert.Equal(t, "2 года", records["ai_product"].String(SectionPeriod))
	assert.True(t, Exists(dir, DefaultCatalog()))
}

func TestLoadDir_BadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ai.json"), []byte("{not json"), 0o644))

	records, err := LoadDir(dir, nil)
	require.Error(t, err)
	assert.Empty(t, records)
	assert.False(t, Exists(t.TempDir(), DefaultCatalog()))
}

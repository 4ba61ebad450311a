package itmo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/metrics"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/scraper"
)

const nextDataJSON = `{
  "props": {
    "pageProps": {
      "apiProgram": {
        "title": "Искусственный интеллект",
        "direction_code": "09.04.01",
        "academic_plan": "/files/plan-ai.pdf",
        "study": {"label": "2 года", "mode": "Очная"},
        "educationCost": {"russian": 599000, "foreigner": 599000, "year": 2025},
        "directions": [{"admission_quotas": {"budget": 51, "contract": 55, "target_reception": 0}}]
      },
      "jsonProgram": {
        "about": {"lead": "Лид", "desc": "<p>Создавайте <b>AI-продукты</b> и&nbsp;технологии</p>"},
        "career": {"lead": "ML Engineer, Data Engineer"},
        "faq": [
          {"question": "Есть ли общежитие?", "answer": "<p>Да, всем иногородним</p>"},
          {"question": "Можно ли учиться онлайн?", "answer": "Нет"}
        ],
        "comments": [{"fullName": "Иван Петров", "year": 2024, "message": "<p>Отличная программа</p>"}]
      },
      "team": [
        {"firstName": "Анна", "lastName": "Смирнова", "middleName": "", "degree": "к.т.н.", "positions": [{"position": "руководитель программы"}]},
        {"firstName": "", "lastName": "", "middleName": ""}
      ]
    }
  }
}`

const programPage = `<!DOCTYPE html>
<html><head><title>ИИ</title></head><body>
<h1>Искусственный интеллект</h1>
<div class="AboutProgram_aboutProgram__textWrapper__xYz12">
  <p>Программа готовит   специалистов
  по машинному обучению.</p>
</div>
<div class="Career_career__container___abc">Карьера в AI-компаниях</div>
<div class="Accordion_accordion__item__q1">
  <div class="Accordion_accordion__title__t1">Есть ли общежитие?</div>
  <div>Да, в кампусе на Вяземском</div>
</div>
<script id="__NEXT_DATA__" type="application/json">` + nextDataJSON + `</script>
</body></html>`

func parseFixture(t *testing.T, html string) Page {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	info, _ := program.DefaultCatalog().Get("ai")
	page, err := Parse(doc, info)
	require.NoError(t, err)
	return page
}

func TestParse(t *testing.T) {
	t.Parallel()
	page := parseFixture(t, programPage)
	rec := page.Record

	assert.Equal(t, "Искусственный интеллект", rec.String(program.SectionTitle))
	assert.Equal(t, program.BaseURL+"ai", rec.String(program.SectionURL))
	assert.Equal(t, "Программа готовит специалистов по машинному обучению.", rec.String(program.SectionDescription))
	assert.Equal(t, "Карьера в AI-компаниях", rec.String(program.SectionCareer))
	assert.Equal(t, "Создавайте AI-продукты и технологии", rec.String(program.SectionDetailed))
	assert.Equal(t, "09.04.01", rec.String(program.SectionDirection))
	assert.Equal(t, "2 года", rec.String(program.SectionPeriod))
	assert.Equal(t, "Очная", rec.String(program.SectionForm))
	assert.Equal(t, "/files/plan-ai.pdf", page.PlanURL)

	cost, ok := rec.Int(program.SectionCostRU)
	require.True(t, ok)
	assert.Equal(t, int64(599000), cost)

	// HTML accordion wins over the embedded FAQ for the same question.
	faq := rec.Map(program.SectionFAQ)
	assert.Equal(t, "Да, в кампусе на Вяземском", faq["Есть ли общежитие?"])
	assert.Equal(t, "Нет", faq["Можно ли учиться онлайн?"])

	quotas := rec.Map(program.SectionQuotas)
	assert.Equal(t, json.Number("51"), quotas["бюджетные места"])
	assert.Equal(t, json.Number("0"), quotas["целевое обучение"])
	assert.NotContains(t, quotas, "контракт для иностранцев")

	team, _ := rec[program.SectionTeam].([]any)
	assert.Equal(t, []any{"Смирнова Анна, к.т.н., руководитель программы"}, team)

	reviews, _ := rec[program.SectionReviews].([]any)
	require.Len(t, reviews, 1)
	assert.Equal(t, "Отличная программа", reviews[0].(map[string]any)["сообщение"])
}

func TestParse_FallsBackToEmbeddedData(t *testing.T) {
	t.Parallel()
	html := `<html><body><script id="__NEXT_DATA__">` + nextDataJSON + `</script></body></html>`
	rec := parseFixture(t, html).Record

	assert.Equal(t, "Лид", rec.String(program.SectionDescription))
	assert.Equal(t, "ML Engineer, Data Engineer", rec.String(program.SectionCareer))
	assert.Equal(t, "Да, всем иногородним", rec.Map(program.SectionFAQ)["Есть ли общежитие?"])
}

func TestParse_MinimalPage(t *testing.T) {
	t.Parallel()
	page := parseFixture(t, `<html><body><h1>Пусто</h1></body></html>`)

	assert.Empty(t, page.PlanURL)
	assert.Len(t, page.Record, 2, "only title and URL expected, got %v", page.Record.SortedKeys())
}

func TestParse_BadEmbeddedJSON(t *testing.T) {
	t.Parallel()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><script id="__NEXT_DATA__">{not json</script></body></html>`))
	require.NoError(t, err)

	_, err = Parse(doc, program.Info{ID: "ai"})
	assert.Error(t, err)
}

func TestStripHTML(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"plain  text\n", "plain text"},
		{"<p>a</p><p>b</p>", "ab"},
		{"<ul><li>один</li> <li>два</li></ul>", "один два"},
		{"Tom &amp; Jerry", "Tom & Jerry"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stripHTML(tt.in), "stripHTML(%q)", tt.in)
	}
}

func TestResolveURL(t *testing.T) {
	t.Parallel()
	base := "https://abit.itmo.ru/program/master/ai"
	assert.Equal(t, "https://abit.itmo.ru/files/plan.pdf", resolveURL(base, "/files/plan.pdf"))
	assert.Equal(t, "https://cdn.example.com/p.pdf", resolveURL(base, "https://cdn.example.com/p.pdf"))
}

func newTestScraper(t *testing.T, handler http.Handler) (*Scraper, *metrics.Metrics) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := metrics.New(prometheus.NewRegistry())
	client := scraper.NewClient(scraper.Config{Timeout: 5 * time.Second, RetryInitial: time.Millisecond})
	s := New(client, program.DefaultCatalog(), Options{
		BaseURL: srv.URL + "/program/master",
		Logger:  logger.New("error"),
		Metrics: m,
	})
	s.now = func() time.Time { return time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC) }
	return s, m
}

func scrapeCount(t *testing.T, m *metrics.Metrics, id, status string) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.ScrapeTotal.WithLabelValues(id, status).Write(&out))
	return out.GetCounter().GetValue()
}

func TestScrapeAll(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/program/master/ai", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(programPage))
	})
	mux.HandleFunc("/program/master/ai_product", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})
	mux.HandleFunc("/files/plan-ai.pdf", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("not a pdf"))
	})

	s, m := newTestScraper(t, mux)
	dir := t.TempDir()

	res, err := s.ScrapeAll(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"ai"}, res.Saved)
	require.Contains(t, res.Failed, "ai_product")

	rec, err := program.LoadFile(filepath.Join(dir, "ai.json"))
	require.NoError(t, err)
	assert.Equal(t, "09.04.01", rec.String(program.SectionDirection))
	assert.Equal(t, "2025-07-01T12:00:00Z", rec.String(program.SectionScrapedAt))
	assert.NotContains(t, rec, program.SectionDocuments, "unparsable PDF must not produce a documents section")

	_, err = os.Stat(filepath.Join(dir, "ai_product.json"))
	assert.True(t, os.IsNotExist(err))

	assert.Equal(t, float64(1), scrapeCount(t, m, "ai", "success"))
	assert.Equal(t, float64(1), scrapeCount(t, m, "ai_product", "error"))
}

func TestScrapeAll_NothingSaved(t *testing.T) {
	t.Parallel()
	s, _ := newTestScraper(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))

	res, err := s.ScrapeAll(context.Background(), t.TempDir())
	assert.Error(t, err)
	assert.Empty(t, res.Saved)
	assert.Len(t, res.Failed, 2)
}

package program

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// MinContentLength is the trimmed rune count a content section must exceed
// to be indexed.
const MinContentLength = 20

// Kind classifies a chunk.
type Kind string

// Chunk kinds. KindSearch is only used for substring-fallback results.
const (
	KindContent   Kind = "content"
	KindFAQ       Kind = "faq"
	KindTechnical Kind = "technical"
	KindSearch    Kind = "search"
)

// ChunkMeta is the provenance of a chunk. Question is set for FAQ chunks only.
type ChunkMeta struct {
	ProgramID string `json:"program_id"`
	Program   string `json:"program"`
	Section   string `json:"section"`
	Kind      Kind   `json:"type"`
	Question  string `json:"question,omitempty"`
}

// Chunk is one indexed unit of program text.
type Chunk struct {
	Text string
	Meta ChunkMeta
}

// contentSections are emitted in this order.
var contentSections = []struct {
	key   string
	label string
}{
	{SectionDescription, "description"},
	{SectionCareer, "career"},
	{SectionDetailed, "detailed_description"},
}

// Chunker turns records into chunks.
type Chunker struct {
	catalog *Catalog
	printer *message.Printer
}

// NewChunker creates a chunker resolving display names through catalog.
func NewChunker(catalog *Catalog) *Chunker {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Chunker{
		catalog: catalog,
		printer: message.NewPrinter(language.English),
	}
}

// DisplayName resolves the name used in chunk text for a program.
func (c *Chunker) DisplayName(id string, rec Record) string {
	if p, ok := c.catalog.Get(id); ok {
		return p.Name
	}
	if title := strings.TrimSpace(rec.String(SectionTitle)); title != "" {
		return title
	}
	return id
}

// Chunk slices one record. Content sections come first, then FAQ pairs,
// then at most one technical chunk. A record with nothing usable yields nil.
func (c *Chunker) Chunk(id string, rec Record) []Chunk {
	name := c.DisplayName(id, rec)
	prefix := "Программа: " + name + "\n"
	meta := func(section string, kind Kind) ChunkMeta {
		return ChunkMeta{ProgramID: id, Program: name, Section: section, Kind: kind}
	}

	var chunks []Chunk

	for _, s := range contentSections {
		content := rec.String(s.key)
		if utf8.RuneCountInString(strings.TrimSpace(content)) <= MinContentLength {
			continue
		}
		chunks = append(chunks, Chunk{
			Text: prefix + content,
			Meta: meta(s.label, KindContent),
		})
	}

	for _, qa := range rec.FAQ() {
		m := meta("faq", KindFAQ)
		m.Question = qa.Question
		chunks = append(chunks, Chunk{
			Text: prefix + "Вопрос: " + qa.Question + "\nОтвет: " + qa.Answer,
			Meta: m,
		})
	}

	if lines := c.technicalLines(rec); len(lines) > 0 {
		chunks = append(chunks, Chunk{
			Text: prefix + "Техническая информация:\n" + strings.Join(lines, "\n"),
			Meta: meta("technical", KindTechnical),
		})
	}

	return chunks
}

// ChunkAll chunks every program, ordered by ids.
func (c *Chunker) ChunkAll(ids []string, records map[string]Record) []Chunk {
	var out []Chunk
	for _, id := range ids {
		if rec, ok := records[id]; ok {
			out = append(out, c.Chunk(id, rec)...)
		}
	}
	return out
}

func (c *Chunker) technicalLines(rec Record) []string {
	var lines []string
	if rec.Truthy(SectionCostRU) {
		lines = append(lines, "Стоимость: "+c.FormatCost(rec)+" ₽/год")
	}
	if rec.Truthy(SectionPeriod) {
		lines = append(lines, "Период обучения: "+rec.Display(SectionPeriod))
	}
	if rec.Truthy(SectionForm) {
		lines = append(lines, "Форма обучения: "+rec.Display(SectionForm))
	}
	return lines
}

// FormatCost renders the Russian-citizen cost with grouped thousands
// ("599,000"). Non-numeric values are returned as stored.
func (c *Chunker) FormatCost(rec Record) string {
	if n, ok := rec.Int(SectionCostRU); ok {
		return c.printer.Sprintf("%d", n)
	}
	return rec.Display(SectionCostRU)
}

package chat

import (
	"fmt"
	"slices"
	"strings"

	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/rag"
)

// section is one labelled block of prompt context.
type section struct {
	label   string
	content string
}

// programContext is the context gathered for one program, in insertion order.
type programContext struct {
	program  string
	sections []section
}

// contextBuilder groups snippets by program. A repeated label replaces the
// earlier content in place.
type contextBuilder struct {
	programs []*programContext
	byName   map[string]*programContext
}

func newContextBuilder() *contextBuilder {
	return &contextBuilder{byName: make(map[string]*programContext)}
}

func (b *contextBuilder) add(programName, label, content string) {
	pc, ok := b.byName[programName]
	if !ok {
		pc = &programContext{program: programName}
		b.byName[programName] = pc
		b.programs = append(b.programs, pc)
	}
	for i := range pc.sections {
		if pc.sections[i].label == label {
			pc.sections[i].content = content
			return
		}
	}
	pc.sections = append(pc.sections, section{label: label, content: content})
}

func (b *contextBuilder) empty() bool {
	return len(b.programs) == 0
}

// String renders every program as a bold header followed by "- label: content" lines.
func (b *contextBuilder) String() string {
	parts := make([]string, 0, len(b.programs))
	for _, pc := range b.programs {
		lines := make([]string, 0, len(pc.sections))
		for _, s := range pc.sections {
			lines = append(lines, "- "+s.label+": "+s.content)
		}
		parts = append(parts, "**"+pc.program+":**\n"+strings.Join(lines, "\n")+"\n")
	}
	return strings.Join(parts, "\n")
}

// groupResults builds prompt context from search results, labelling each
// snippet with its section and relevance.
func groupResults(results []rag.Result) *contextBuilder {
	b := newContextBuilder()
	for _, r := range results {
		name := r.Meta.Program
		if name == "" {
			name = "Неизвестная программа"
		}
		sec := r.Meta.Section
		if sec == "" {
			sec = "Общая информация"
		}
		b.add(name, fmt.Sprintf("%s (релевантность: %.2f)", sec, r.Score), r.Text)
	}
	return b
}

// recordsContext renders whole records in catalog order. Extracted
// documents are left out.
func recordsContext(catalog *program.Catalog, chunker *program.Chunker, records map[string]program.Record) *contextBuilder {
	b := newContextBuilder()
	for _, id := range orderedIDs(catalog, records) {
		rec := records[id]
		name := chunker.DisplayName(id, rec)
		for _, key := range rec.SortedKeys() {
			if key == program.SectionDocuments || strings.HasPrefix(key, "_") || !rec.Truthy(key) {
				continue
			}
			b.add(name, key, rec.Display(key))
		}
	}
	return b
}

// orderedIDs lists catalog programs first, then any other record ids in
// lexical order.
func orderedIDs(catalog *program.Catalog, records map[string]program.Record) []string {
	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, id := range catalog.IDs() {
		if _, ok := records[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}
	var extra []string
	for id := range records {
		if !seen[id] {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	return append(ids, extra...)
}

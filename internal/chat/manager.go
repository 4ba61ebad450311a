// Package chat turns a user message into a reply. It classifies the message,
// gathers retrieval or recommendation context, calls the generator when one
// is configured and records the turn in the history store.
package chat

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	domerrors "github.com/garyellow/itmo-advisor-go/internal/errors"
	"github.com/garyellow/itmo-advisor-go/internal/genai"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/rag"
	"github.com/garyellow/itmo-advisor-go/internal/recommend"
	"github.com/garyellow/itmo-advisor-go/internal/storage"
)

// Defaults applied by NewManager.
const (
	DefaultTopK         = 5
	DefaultHistoryLimit = 10
)

// Searcher is the retrieval surface the manager needs. *rag.Retriever
// implements it.
type Searcher interface {
	SearchWithFallback(ctx context.Context, query string, topK int) []rag.Result
	Records() map[string]program.Record
}

// Recommender scores programs for a free-text profile. *recommend.Engine
// implements it.
type Recommender interface {
	Recommend(text string, programs map[string]program.Record) map[string]recommend.Result
	FormatMarkdown(results map[string]recommend.Result) string
}

// Config wires a Manager. Generator may be nil, in which case info and
// comparison questions are answered from retrieved snippets.
type Config struct {
	Searcher     Searcher
	Recommender  Recommender
	Store        storage.Repository
	Generator    genai.Generator
	Catalog      *program.Catalog
	Logger       *logger.Logger
	TopK         int
	HistoryLimit int
}

// Reply is the answer to one message.
type Reply struct {
	Text    string       `json:"answer"`
	Kind    Kind         `json:"kind"`
	Sources []rag.Result `json:"sources,omitempty"`
}

// Manager coordinates retrieval, recommendation, generation and history.
// It is safe for concurrent use.
type Manager struct {
	searcher     Searcher
	recommender  Recommender
	store        storage.Repository
	generator    genai.Generator
	catalog      *program.Catalog
	chunker      *program.Chunker
	log          *logger.Logger
	topK         int
	historyLimit int
}

// NewManager creates a Manager. Searcher, Recommender and Store are required.
func NewManager(cfg Config) *Manager {
	if cfg.Catalog == nil {
		cfg.Catalog = program.DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New("info")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	return &Manager{
		searcher:     cfg.Searcher,
		recommender:  cfg.Recommender,
		store:        cfg.Store,
		generator:    cfg.Generator,
		catalog:      cfg.Catalog,
		chunker:      program.NewChunker(cfg.Catalog),
		log:          cfg.Logger.WithModule("chat"),
		topK:         cfg.TopK,
		historyLimit: cfg.HistoryLimit,
	}
}

// LLMEnabled reports whether answers are generated by an LLM.
func (m *Manager) LLMEnabled() bool {
	return m.generator != nil
}

// HandleMessage stores self-descriptions as the user's background and
// answers everything else with Process.
func (m *Manager) HandleMessage(ctx context.Context, userID, text string) (Reply, error) {
	if IsBackgroundMessage(text) {
		return m.SetBackground(ctx, userID, text, ExtractInterests(text))
	}
	return m.Process(ctx, userID, text)
}

// Process answers a question. Returned errors carry a user-facing message
// readable with errors.GetUserMessage.
func (m *Manager) Process(ctx context.Context, userID, question string) (Reply, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Reply{Text: EmptyQuestionMessage, Kind: KindInfo}, nil
	}

	user, history := m.userContext(ctx, userID)

	if m.generator != nil && !genai.IsRelevant(ctx, m.generator, question) {
		m.log.WithField("user_id", userID).Debug("Question rejected as irrelevant")
		return Reply{Text: IrrelevantMessage, Kind: KindIrrelevant}, nil
	}

	kind := Classify(question)
	var (
		reply Reply
		err   error
	)
	switch kind {
	case KindComparison:
		reply, err = m.answerComparison(ctx, user, question, history)
	case KindRecommendation:
		reply = m.answerRecommendation(user)
	default:
		reply, err = m.answerInfo(ctx, user, question, history)
	}
	if err != nil {
		return Reply{Kind: kind}, err
	}
	reply.Kind = kind

	if err := m.store.AddTurn(ctx, userID, question, reply.Text); err != nil {
		m.log.WithError(err).Warn("Failed to save turn")
	}
	return reply, nil
}

// SetBackground stores the user's self-description and interests.
func (m *Manager) SetBackground(ctx context.Context, userID, background string, interests []string) (Reply, error) {
	w := domerrors.NewWrapper("chat", "set_background")

	background = strings.TrimSpace(background)
	if background == "" {
		return Reply{}, w.Wrap(domerrors.NewValidationError("background", "must not be empty"), RequestBackgroundMessage)
	}
	if err := m.store.SaveUser(ctx, userID, background, interests); err != nil {
		return Reply{}, w.Wrap(err, ErrorMessage)
	}

	m.log.WithField("user_id", userID).
		WithField("interests", interests).
		Info("Background saved")
	return Reply{Text: BackgroundSavedMessage, Kind: KindBackground}, nil
}

// ClearHistory drops the user's stored turns. The background is kept.
func (m *Manager) ClearHistory(ctx context.Context, userID string) error {
	if err := m.store.ClearHistory(ctx, userID); err != nil {
		return domerrors.NewWrapper("chat", "clear_history").Wrap(err, ErrorMessage)
	}
	return nil
}

// userContext loads the profile and recent history. Store failures degrade
// to an empty context.
func (m *Manager) userContext(ctx context.Context, userID string) (*storage.User, []storage.Turn) {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		m.log.WithError(err).Warn("Failed to load user, continuing without profile")
		user = nil
	}
	history, err := m.store.RecentTurns(ctx, userID, m.historyLimit)
	if err != nil {
		m.log.WithError(err).Warn("Failed to load history, continuing without it")
		history = nil
	}
	return user, history
}

func (m *Manager) answerInfo(ctx context.Context, user *storage.User, question string, history []storage.Turn) (Reply, error) {
	query := rag.ExpandQuery(question, history)
	results := m.searcher.SearchWithFallback(ctx, query, m.topK)

	if m.generator == nil {
		if len(results) == 0 {
			return Reply{Text: NotFoundMessage}, nil
		}
		return Reply{Text: formatSnippets(results), Sources: results}, nil
	}

	if len(results) == 0 {
		m.log.Debug("No context found, generating without program data")
	}
	text, err := m.generate(ctx, "answer_info", groupResults(results).String(), user, question, history)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text, Sources: results}, nil
}

func (m *Manager) answerComparison(ctx context.Context, user *storage.User, question string, history []storage.Turn) (Reply, error) {
	records := m.searcher.Records()

	if m.generator == nil {
		if len(records) == 0 {
			return Reply{Text: NotFoundMessage}, nil
		}
		return Reply{Text: m.formatComparison(records)}, nil
	}

	text, err := m.generate(ctx, "answer_comparison", recordsContext(m.catalog, m.chunker, records).String(), user, question, history)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: text}, nil
}

func (m *Manager) answerRecommendation(user *storage.User) Reply {
	if !user.HasBackground() {
		return Reply{Text: RequestBackgroundMessage}
	}
	results := m.recommender.Recommend(user.Background, m.searcher.Records())
	return Reply{Text: m.recommender.FormatMarkdown(results)}
}

func (m *Manager) generate(ctx context.Context, op, programContext string, user *storage.User, question string, history []storage.Turn) (string, error) {
	var background string
	if user != nil {
		background = user.Background
	}

	text, err := m.generator.Generate(ctx, genai.Request{
		System: genai.BuildSystemPrompt(programContext, background),
		User:   genai.BuildUserPrompt(question, history),
	})
	if err != nil {
		m.log.WithError(err).WithField("operation", op).Error("Answer generation failed")
		return "", domerrors.NewWrapper("chat", op).Wrap(
			fmt.Errorf("%w: %w", domerrors.ErrLLMUnavailable, err), GenerationFailedMessage)
	}
	return text, nil
}

// formatSnippets renders search results for users when no LLM is configured.
func formatSnippets(results []rag.Result) string {
	var b strings.Builder
	b.WriteString(snippetsHeader)
	for _, r := range results {
		body, _ := strings.CutPrefix(r.Text, "Программа: "+r.Meta.Program+"\n")
		fmt.Fprintf(&b, "**%s · %s**\n%s\n\n", r.Meta.Program, r.Meta.Section, preview(body))
	}
	b.WriteString(snippetsFooter)
	return b.String()
}

// formatComparison lists the key facts of every program side by side.
func (m *Manager) formatComparison(records map[string]program.Record) string {
	var b strings.Builder
	b.WriteString(comparisonHeader)
	for _, id := range orderedIDs(m.catalog, records) {
		rec := records[id]
		fmt.Fprintf(&b, "**%s**\n", m.chunker.DisplayName(id, rec))
		if rec.Truthy(program.SectionCostRU) {
			fmt.Fprintf(&b, "• Стоимость: %s ₽/год\n", m.chunker.FormatCost(rec))
		}
		if rec.Truthy(program.SectionPeriod) {
			fmt.Fprintf(&b, "• Период обучения: %s\n", rec.Display(program.SectionPeriod))
		}
		if rec.Truthy(program.SectionForm) {
			fmt.Fprintf(&b, "• Форма обучения: %s\n", rec.Display(program.SectionForm))
		}
		if d := strings.TrimSpace(rec.String(program.SectionDescription)); d != "" {
			fmt.Fprintf(&b, "• %s\n", preview(d))
		}
		b.WriteString("\n")
	}
	b.WriteString(snippetsFooter)
	return b.String()
}

// preview cuts s to snippetPreviewRune runes.
func preview(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= snippetPreviewRune {
		return s
	}
	return string([]rune(s)[:snippetPreviewRune]) + "…"
}

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyellow/itmo-advisor-go/internal/chat"
	domerrors "github.com/garyellow/itmo-advisor-go/internal/errors"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/ratelimit"
)

type fakeConversation struct {
	mu          sync.Mutex
	llm         bool
	reply       string
	err         error
	messages    []string
	backgrounds []string
	interests   [][]string
	cleared     int
}

func (f *fakeConversation) HandleMessage(_ context.Context, _ string, text string) (chat.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, text)
	if f.err != nil {
		return chat.Reply{}, f.err
	}
	return chat.Reply{Text: f.reply, Kind: chat.KindInfo}, nil
}

func (f *fakeConversation) SetBackground(_ context.Context, _ string, background string, interests []string) (chat.Reply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.backgrounds = append(f.backgrounds, background)
	f.interests = append(f.interests, interests)
	return chat.Reply{Text: chat.BackgroundSavedMessage, Kind: chat.KindBackground}, nil
}

func (f *fakeConversation) ClearHistory(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
	return f.err
}

func (f *fakeConversation) LLMEnabled() bool { return f.llm }

type staticPrograms map[string]program.Record

func (s staticPrograms) Records() map[string]program.Record { return s }

func newTestProcessor(conv *fakeConversation, opts ...func(*ProcessorConfig)) *Processor {
	cfg := ProcessorConfig{
		Conversation: conv,
		Programs: staticPrograms{
			"ai": {
				program.SectionCostRU: json.Number("599000"),
				program.SectionForm:   "Очная",
			},
		},
		Logger:  logger.New("error"),
		Timeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return NewProcessor(cfg)
}

func textEvent(source webhook.SourceInterface, text string) webhook.MessageEvent {
	return webhook.MessageEvent{
		Source:  source,
		Message: webhook.TextMessageContent{Text: text},
	}
}

func userEvent(text string) webhook.MessageEvent {
	return textEvent(webhook.UserSource{UserId: "U0123456789"}, text)
}

func firstText(t *testing.T, msgs []messaging_api.MessageInterface) string {
	t.Helper()
	require.NotEmpty(t, msgs)
	tm, ok := msgs[0].(*messaging_api.TextMessage)
	require.True(t, ok, "want *TextMessage, got %T", msgs[0])
	return tm.Text
}

func TestProcessMessage_Commands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want []string
	}{
		{"help", "/help", []string{"Справка по использованию бота", "/background"}},
		{"help is case insensitive", "/HELP", []string{"Справка по использованию бота"}},
		{"programs", "/programs", []string{"Искусственный интеллект", "Управление ИИ-продуктами", "599,000 ₽/год", "Форма обучения: Очная", program.BaseURL + "ai_product"}},
		{"bare background", "/background", []string{"Расскажите о своем бэкграунде", "Пример:"}},
		{"unknown", "/foo", []string{"Неизвестная команда /foo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			conv := &fakeConversation{}
			p := newTestProcessor(conv)

			msgs, err := p.ProcessMessage(context.Background(), userEvent(tt.text))
			require.NoError(t, err)
			got := firstText(t, msgs)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			assert.Empty(t, conv.messages, "commands must not reach the conversation")
		})
	}
}

func TestProcessMessage_Start(t *testing.T) {
	t.Parallel()

	named := newTestProcessor(&fakeConversation{}, func(c *ProcessorConfig) {
		c.Profile = func(context.Context, string) (string, error) { return "Мария", nil }
	})
	msgs, err := named.ProcessMessage(context.Background(), userEvent("/start"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(firstText(t, msgs), "Привет, Мария!"))

	broken := newTestProcessor(&fakeConversation{}, func(c *ProcessorConfig) {
		c.Profile = func(context.Context, string) (string, error) { return "", errors.New("profile api down") }
	})
	msgs, err = broken.ProcessMessage(context.Background(), userEvent("/start"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(firstText(t, msgs), "Привет, Абитуриент!"))
}

func TestProcessMessage_BackgroundCommand(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{}
	p := newTestProcessor(conv)

	msgs, err := p.ProcessMessage(context.Background(), userEvent("/background Я аналитик, изучаю machine learning и NLP"))
	require.NoError(t, err)
	assert.Equal(t, chat.BackgroundSavedMessage, firstText(t, msgs))

	require.Len(t, conv.backgrounds, 1)
	assert.Equal(t, "Я аналитик, изучаю machine learning и NLP", conv.backgrounds[0])
	assert.Equal(t, []string{"машинное обучение", "nlp"}, conv.interests[0])
}

func TestProcessMessage_Clear(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{}
	p := newTestProcessor(conv)

	msgs, err := p.ProcessMessage(context.Background(), userEvent("/clear"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(firstText(t, msgs), "🧹 История диалога очищена!"))
	assert.Equal(t, 1, conv.cleared)
}

func TestProcessMessage_FreeText(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{reply: "**Стоимость:** 599 000 ₽"}
	p := newTestProcessor(conv)

	msgs, err := p.ProcessMessage(context.Background(), userEvent("  Сколько стоит обучение?  "))
	require.NoError(t, err)
	assert.Equal(t, "Стоимость: 599 000 ₽", firstText(t, msgs))
	assert.Equal(t, []string{"Сколько стоит обучение?"}, conv.messages)

	last := msgs[len(msgs)-1].(*messaging_api.TextMessage)
	require.NotNil(t, last.QuickReply)
	assert.NotEmpty(t, last.QuickReply.Items)
}

func TestProcessMessage_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "user message is shown",
			err:  domerrors.NewWrapper("chat", "answer_info").Wrap(domerrors.ErrLLMUnavailable, chat.GenerationFailedMessage),
			want: chat.GenerationFailedMessage,
		},
		{
			name: "plain error falls back",
			err:  errors.New("boom"),
			want: HandlerErrorMessage,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newTestProcessor(&fakeConversation{err: tt.err})
			msgs, err := p.ProcessMessage(context.Background(), userEvent("Какие экзамены?"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, firstText(t, msgs))
		})
	}
}

func TestProcessMessage_LLMRateLimit(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{llm: true, reply: "ok"}
	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:       "user_llm",
		Burst:      1,
		RefillRate: ratelimit.PerMinute(1),
	})
	defer limiter.Stop()
	p := newTestProcessor(conv, func(c *ProcessorConfig) { c.LLMLimiter = limiter })

	msgs, err := p.ProcessMessage(context.Background(), userEvent("Что такое ИИ?"))
	require.NoError(t, err)
	assert.Equal(t, "ok", firstText(t, msgs))

	msgs, err = p.ProcessMessage(context.Background(), userEvent("А ещё?"))
	require.NoError(t, err)
	assert.Contains(t, firstText(t, msgs), "Слишком много вопросов")
	assert.Contains(t, firstText(t, msgs), "1 мин")

	// Self-descriptions and commands bypass the LLM limiter.
	_, err = p.ProcessMessage(context.Background(), userEvent("Я работаю аналитиком"))
	require.NoError(t, err)
	msgs, err = p.ProcessMessage(context.Background(), userEvent("/help"))
	require.NoError(t, err)
	assert.Contains(t, firstText(t, msgs), "Справка")

	assert.Equal(t, []string{"Что такое ИИ?", "Я работаю аналитиком"}, conv.messages)
}

func TestProcessMessage_UserRateLimit(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.NewKeyedLimiter(ratelimit.KeyedConfig{
		Name:       "user",
		Burst:      1,
		RefillRate: ratelimit.PerMinute(1),
	})
	defer limiter.Stop()
	p := newTestProcessor(&fakeConversation{}, func(c *ProcessorConfig) { c.UserLimiter = limiter })

	_, err := p.ProcessMessage(context.Background(), userEvent("/help"))
	require.NoError(t, err)
	msgs, err := p.ProcessMessage(context.Background(), userEvent("/help"))
	require.NoError(t, err)
	assert.Contains(t, firstText(t, msgs), "Слишком много вопросов")

	group := textEvent(webhook.GroupSource{GroupId: "G1", UserId: "U0123456789"}, "/help")
	group.Message = webhook.TextMessageContent{
		Text: "@Bot /help",
		Mention: &webhook.Mention{Mentionees: []webhook.MentioneeInterface{
			webhook.UserMentionee{Index: 0, Length: 4, IsSelf: true},
		}},
	}
	msgs, err = p.ProcessMessage(context.Background(), group)
	require.NoError(t, err)
	assert.Nil(t, msgs, "groups are not told about rate limits")
}

func TestProcessMessage_Ignored(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{reply: "ok"}
	p := newTestProcessor(conv)

	sticker := webhook.MessageEvent{
		Source:  webhook.UserSource{UserId: "U1"},
		Message: webhook.StickerMessageContent{PackageId: "1", StickerId: "1"},
	}
	msgs, err := p.ProcessMessage(context.Background(), sticker)
	require.NoError(t, err)
	assert.Nil(t, msgs)

	msgs, err = p.ProcessMessage(context.Background(), textEvent(webhook.GroupSource{GroupId: "G1"}, "Сколько стоит?"))
	require.NoError(t, err)
	assert.Nil(t, msgs, "group messages without a mention are ignored")
	assert.Empty(t, conv.messages)
}

func TestProcessMessage_GroupMention(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{reply: "ok"}
	p := newTestProcessor(conv)

	event := webhook.MessageEvent{
		Source: webhook.GroupSource{GroupId: "G1", UserId: "U1"},
		Message: webhook.TextMessageContent{
			Text: "@Бот  Сколько стоит?",
			Mention: &webhook.Mention{Mentionees: []webhook.MentioneeInterface{
				webhook.UserMentionee{Index: 0, Length: 4, IsSelf: true},
			}},
		},
	}
	msgs, err := p.ProcessMessage(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, "ok", firstText(t, msgs))
	assert.Equal(t, []string{"Сколько стоит?"}, conv.messages)
}

func TestProcessMessage_TooLong(t *testing.T) {
	t.Parallel()
	conv := &fakeConversation{}
	p := newTestProcessor(conv)

	msgs, err := p.ProcessMessage(context.Background(), userEvent(strings.Repeat("а", MaxInputRunes+1)))
	require.NoError(t, err)
	assert.Contains(t, firstText(t, msgs), "слишком длинное")
	assert.Empty(t, conv.messages)
}

func TestProcessFollow(t *testing.T) {
	t.Parallel()
	p := newTestProcessor(&fakeConversation{})

	msgs, err := p.ProcessFollow(context.Background(), webhook.FollowEvent{Source: webhook.UserSource{UserId: "U1"}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(firstText(t, msgs), "Привет, Абитуриент!"))
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in    string
		cmd   string
		args  string
		isCmd bool
	}{
		{"/help", "/help", "", true},
		{"/Background  Я программист ", "/background", "Я программист", true},
		{"/background\nОкончил МГУ", "/background", "Окончил МГУ", true},
		{"привет", "", "", false},
		{"", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCommand(tt.in)
		assert.Equal(t, tt.isCmd, ok, tt.in)
		assert.Equal(t, tt.cmd, cmd, tt.in)
		assert.Equal(t, tt.args, args, tt.in)
	}
}

func TestRemoveBotMentions(t *testing.T) {
	t.Parallel()
	mention := &webhook.Mention{Mentionees: []webhook.MentioneeInterface{
		webhook.UserMentionee{Index: 0, Length: 4, IsSelf: true},
		webhook.UserMentionee{Index: 5, Length: 5, UserId: "U2"},
		webhook.UserMentionee{Index: 18, Length: 4, IsSelf: true},
	}}
	assert.Equal(t, "@Петя привет", removeBotMentions("@Бот @Петя привет @Бот", mention))
	assert.Equal(t, "без упоминаний", removeBotMentions("без упоминаний", nil))

	broken := &webhook.Mention{Mentionees: []webhook.MentioneeInterface{
		webhook.UserMentionee{Index: 50, Length: 4, IsSelf: true},
	}}
	assert.Equal(t, "коротко", removeBotMentions("коротко", broken))
}

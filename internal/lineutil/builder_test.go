package lineutil

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

func TestTruncateRunes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"привет", 3, "при"},
		{"привет", 10, "привет"},
		{"abc", 0, ""},
		{"", 5, ""},
	}
	for _, tt := range tests {
		if got := TruncateRunes(tt.in, tt.n); got != tt.want {
			t.Errorf("TruncateRunes(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestNewTextMessage_Truncates(t *testing.T) {
	t.Parallel()

	msg := NewTextMessage(strings.Repeat("я", MaxTextMessageLength+10), nil)
	if n := utf8.RuneCountInString(msg.Text); n != MaxTextMessageLength {
		t.Errorf("rune count = %d, want %d", n, MaxTextMessageLength)
	}
	if !strings.HasSuffix(msg.Text, "...") {
		t.Error("truncated text should end with ...")
	}
}

func TestSplitText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		text  string
		limit int
		want  []string
	}{
		{"empty", "   ", 10, nil},
		{"fits", "короткий ответ", 100, []string{"короткий ответ"}},
		{"paragraph break preferred", "первый абзац\n\nвторой абзац", 20, []string{"первый абзац", "второй абзац"}},
		{"line break", "строка один\nстрока два", 15, []string{"строка один", "строка два"}},
		{"hard cut", "абвгдеёжзи", 4, []string{"абвг", "деёж", "зи"}},
		{"no limit", "текст", 0, []string{"текст"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SplitText(tt.text, tt.limit)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("SplitText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewTextMessages(t *testing.T) {
	t.Parallel()

	long := strings.Repeat(strings.Repeat("ы", 4000)+"\n\n", 7)
	sender := NewSender("ИТМО", "")
	msgs := NewTextMessages(long, sender, QuickReplyMainNav()...)

	if len(msgs) != MaxMessagesPerReply {
		t.Fatalf("len(msgs) = %d, want %d", len(msgs), MaxMessagesPerReply)
	}
	for i, m := range msgs {
		tm := m.(*messaging_api.TextMessage)
		if tm.Sender != sender {
			t.Errorf("message %d has sender %v", i, tm.Sender)
		}
		if i < len(msgs)-1 && tm.QuickReply != nil {
			t.Errorf("quick reply on message %d, want only on the last", i)
		}
	}
	last := msgs[len(msgs)-1].(*messaging_api.TextMessage)
	if last.QuickReply == nil || len(last.QuickReply.Items) != len(QuickReplyMainNav()) {
		t.Error("last message should carry the navigation quick reply")
	}
}

func TestNewQuickReply_Limits(t *testing.T) {
	t.Parallel()

	items := make([]QuickReplyItem, 20)
	for i := range items {
		items[i] = QuickReplyItem{Action: NewMessageAction("очень длинная подпись кнопки", "x")}
	}
	qr := NewQuickReply(items)
	if len(qr.Items) != MaxQuickReplyItemCount {
		t.Errorf("items = %d, want %d", len(qr.Items), MaxQuickReplyItemCount)
	}
	label := qr.Items[0].Action.(*messaging_api.MessageAction).Label
	if n := utf8.RuneCountInString(label); n > MaxQuickReplyLabel {
		t.Errorf("label has %d runes, want <= %d", n, MaxQuickReplyLabel)
	}
}

func TestNewSender(t *testing.T) {
	t.Parallel()
	if NewSender("", "https://example.com/a.png") != nil {
		t.Error("empty name should give nil sender")
	}
	s := NewSender("Помощник", "https://example.com/a.png")
	if s.Name != "Помощник" || s.IconUrl != "https://example.com/a.png" {
		t.Errorf("NewSender() = %+v", s)
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()
	got := PlainText("**Сравнение:**\n`599,000` __руб__ *курсив*")
	want := "Сравнение:\n599,000 руб *курсив*"
	if got != want {
		t.Errorf("PlainText() = %q, want %q", got, want)
	}
}

func TestAddQuickReplyToMessages_Empty(t *testing.T) {
	t.Parallel()
	AddQuickReplyToMessages(nil, QuickReplyHelpAction())

	msgs := []messaging_api.MessageInterface{NewTextMessage("x", nil)}
	AddQuickReplyToMessages(msgs)
	if msgs[0].(*messaging_api.TextMessage).QuickReply != nil {
		t.Error("no items should leave the message untouched")
	}
}

// Package lineutil provides utility functions for building LINE messages and actions.
package lineutil

import (
	"strings"
	"unicode/utf8"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// QuickReplyItem represents an item in a quick reply.
type QuickReplyItem struct {
	ImageURL string
	Action   messaging_api.ActionInterface
}

// Action is an alias for the LINE SDK action interface for convenience.
type Action = messaging_api.ActionInterface

// NewSender returns a sender override, or nil when name is empty.
func NewSender(name, iconURL string) *messaging_api.Sender {
	if name == "" {
		return nil
	}
	return &messaging_api.Sender{Name: name, IconUrl: iconURL}
}

// NewTextMessage creates a text message, truncated to the LINE limit.
func NewTextMessage(text string, sender *messaging_api.Sender) *messaging_api.TextMessage {
	if utf8.RuneCountInString(text) > MaxTextMessageLength {
		text = TruncateRunes(text, MaxTextMessageLength-3) + "..."
	}
	return &messaging_api.TextMessage{
		Text:   text,
		Sender: sender,
	}
}

// NewTextMessages splits a long answer into at most MaxMessagesPerReply
// text messages. Splits prefer paragraph breaks, then line breaks. The
// last message carries the quick reply items.
func NewTextMessages(text string, sender *messaging_api.Sender, items ...QuickReplyItem) []messaging_api.MessageInterface {
	parts := SplitText(text, MaxTextMessageLength)
	if len(parts) > MaxMessagesPerReply {
		parts = parts[:MaxMessagesPerReply]
	}
	msgs := make([]messaging_api.MessageInterface, 0, len(parts))
	for _, p := range parts {
		msgs = append(msgs, NewTextMessage(p, sender))
	}
	AddQuickReplyToMessages(msgs, items...)
	return msgs
}

// SplitText cuts text into pieces of at most limit runes.
func SplitText(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var parts []string
	for utf8.RuneCountInString(text) > limit {
		head := TruncateRunes(text, limit)
		cut := strings.LastIndex(head, "\n\n")
		if cut <= 0 {
			cut = strings.LastIndex(head, "\n")
		}
		if cut <= 0 {
			cut = len(head)
		}
		parts = append(parts, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		parts = append(parts, text)
	}
	return parts
}

// TruncateRunes returns the first n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// NewQuickReply creates a quick reply message component.
// LINE API limits: max 13 items
func NewQuickReply(items []QuickReplyItem) *messaging_api.QuickReply {
	if len(items) > MaxQuickReplyItemCount {
		items = items[:MaxQuickReplyItemCount]
	}

	quickReplyItems := make([]messaging_api.QuickReplyItem, len(items))
	for i, item := range items {
		quickReplyItems[i] = messaging_api.QuickReplyItem{
			Action:   item.Action,
			ImageUrl: item.ImageURL,
		}
	}
	return &messaging_api.QuickReply{Items: quickReplyItems}
}

// NewMessageAction creates a message action that sends a message when clicked.
// The label is displayed on the button, and text is the message that will be sent.
func NewMessageAction(label, text string) Action {
	return &messaging_api.MessageAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Text:  text,
	}
}

// NewURIAction creates a URI action that opens a URL when clicked.
func NewURIAction(label, uri string) Action {
	return &messaging_api.UriAction{
		Label: TruncateRunes(label, MaxQuickReplyLabel),
		Uri:   uri,
	}
}

// ================================================
// Common QuickReply Actions (pre-defined for reuse)
// ================================================

// QuickReplyProgramsAction returns a "/programs" quick reply item.
func QuickReplyProgramsAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("🎓 Программы", "/programs")}
}

// QuickReplyCompareAction returns a comparison question quick reply item.
func QuickReplyCompareAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("⚖️ Сравнить", "Сравни программы")}
}

// QuickReplyRecommendAction returns a recommendation request quick reply item.
func QuickReplyRecommendAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("📚 Дисциплины", "Посоветуй дисциплины")}
}

// QuickReplyBackgroundAction returns a "/background" quick reply item.
func QuickReplyBackgroundAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("👤 Бэкграунд", "/background")}
}

// QuickReplyHelpAction returns a "/help" quick reply item.
func QuickReplyHelpAction() QuickReplyItem {
	return QuickReplyItem{Action: NewMessageAction("📖 Справка", "/help")}
}

// QuickReplyMainNav returns the default navigation set.
func QuickReplyMainNav() []QuickReplyItem {
	return []QuickReplyItem{
		QuickReplyProgramsAction(),
		QuickReplyCompareAction(),
		QuickReplyRecommendAction(),
		QuickReplyBackgroundAction(),
		QuickReplyHelpAction(),
	}
}

// AddQuickReplyToMessages attaches quick reply items to the last message in a slice.
// If the slice is empty or the last message doesn't support quick replies, it's a no-op.
func AddQuickReplyToMessages(messages []messaging_api.MessageInterface, items ...QuickReplyItem) {
	if len(messages) == 0 || len(items) == 0 {
		return
	}
	qr := NewQuickReply(items)
	switch m := messages[len(messages)-1].(type) {
	case *messaging_api.TextMessage:
		m.QuickReply = qr
	case *messaging_api.FlexMessage:
		m.QuickReply = qr
	case *messaging_api.TemplateMessage:
		m.QuickReply = qr
	}
}

// PlainText drops the markdown emphasis markers LINE would show verbatim.
func PlainText(md string) string {
	return strings.NewReplacer("**", "", "__", "", "`", "").Replace(md)
}

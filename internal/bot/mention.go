package bot

import (
	"slices"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// selfMentions returns the mentions of the bot itself, ordered from the end
// of the text to the start.
func selfMentions(mention *webhook.Mention) []webhook.UserMentionee {
	if mention == nil {
		return nil
	}
	var out []webhook.UserMentionee
	for _, m := range mention.Mentionees {
		if um, ok := m.(webhook.UserMentionee); ok && um.IsSelf {
			out = append(out, um)
		}
	}
	slices.SortFunc(out, func(a, b webhook.UserMentionee) int {
		return int(b.Index - a.Index)
	})
	return out
}

// isBotMentioned reports whether a group message addresses the bot.
func isBotMentioned(textMsg webhook.TextMessageContent) bool {
	return len(selfMentions(textMsg.Mention)) > 0
}

// removeBotMentions cuts every bot mention out of text and collapses
// whitespace. Indexes are in runes, as LINE reports them.
func removeBotMentions(text string, mention *webhook.Mention) string {
	mentions := selfMentions(mention)
	if len(mentions) == 0 {
		return text
	}

	runes := []rune(text)
	for _, m := range mentions {
		start := max(int(m.Index), 0)
		end := min(int(m.Index+m.Length), len(runes))
		if start >= end {
			continue
		}
		runes = append(runes[:start], runes[end:]...)
	}
	return strings.Join(strings.Fields(string(runes)), " ")
}

// ExpectsReply reports whether the processor will answer a message event:
// text in a personal chat, or text that mentions the bot in a group or room.
func ExpectsReply(e webhook.MessageEvent) bool {
	textMsg, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		return false
	}
	return SourceOf(e.Source).Personal || isBotMentioned(textMsg)
}

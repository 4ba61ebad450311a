package bot

import "github.com/line/line-bot-sdk-go/v8/linebot/webhook"

// Source identifies where an event came from.
type Source struct {
	ChatID   string // user, group or room id; the target for loading animations
	UserID   string // sender; LINE omits it in groups when the user has not consented
	Personal bool
}

// SourceOf flattens a LINE event source. Unknown source types yield a zero Source.
func SourceOf(src webhook.SourceInterface) Source {
	switch s := src.(type) {
	case webhook.UserSource:
		return Source{ChatID: s.UserId, UserID: s.UserId, Personal: true}
	case webhook.GroupSource:
		return Source{ChatID: s.GroupId, UserID: s.UserId}
	case webhook.RoomSource:
		return Source{ChatID: s.RoomId, UserID: s.UserId}
	}
	return Source{}
}

// HistoryKey is the id conversation history and rate limits are kept under.
// Senders without a user id share their group's history.
func (s Source) HistoryKey() string {
	if s.UserID != "" {
		return s.UserID
	}
	return s.ChatID
}

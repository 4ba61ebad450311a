package lineutil

// LINE API limits.
// References: https://developers.line.biz/en/reference/messaging-api/
const (
	MaxTextMessageLength   = 5000 // Text message max content length (runes)
	MaxMessagesPerReply    = 5    // Messages in one reply request
	MaxEventsPerWebhook    = 100  // Events LINE batches into one webhook call
	MaxQuickReplyItemCount = 13   // Max items in a quick reply
	MaxQuickReplyLabel     = 20   // Max label length for quick reply item
	MinReplyTokenLength    = 10   // Anything shorter is not a real reply token
)

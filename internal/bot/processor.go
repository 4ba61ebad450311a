// Package bot turns LINE events into replies. It parses commands, applies
// per-user rate limits and hands free text to the conversation manager.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/garyellow/itmo-advisor-go/internal/chat"
	"github.com/garyellow/itmo-advisor-go/internal/ctxutil"
	domerrors "github.com/garyellow/itmo-advisor-go/internal/errors"
	"github.com/garyellow/itmo-advisor-go/internal/lineutil"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/program"
	"github.com/garyellow/itmo-advisor-go/internal/ratelimit"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// Conversation is the part of *chat.Manager the processor drives.
type Conversation interface {
	HandleMessage(ctx context.Context, userID, text string) (chat.Reply, error)
	SetBackground(ctx context.Context, userID, background string, interests []string) (chat.Reply, error)
	ClearHistory(ctx context.Context, userID string) error
	LLMEnabled() bool
}

// ProgramSource exposes the loaded program records. *rag.Retriever
// implements it.
type ProgramSource interface {
	Records() map[string]program.Record
}

// ProfileFunc resolves a user's display name.
type ProfileFunc func(ctx context.Context, userID string) (string, error)

// Processor handles the core logic of processing LINE events.
type Processor struct {
	conversation Conversation
	programs     ProgramSource
	catalog      *program.Catalog
	profile      ProfileFunc
	userLimiter  *ratelimit.KeyedLimiter
	llmLimiter   *ratelimit.KeyedLimiter
	sender       *messaging_api.Sender
	logger       *logger.Logger
	timeout      time.Duration
}

// ProcessorConfig holds configuration for creating a new Processor.
// Limiters and Profile are optional.
type ProcessorConfig struct {
	Conversation Conversation
	Programs     ProgramSource
	Catalog      *program.Catalog
	Profile      ProfileFunc
	UserLimiter  *ratelimit.KeyedLimiter
	LLMLimiter   *ratelimit.KeyedLimiter
	Sender       *messaging_api.Sender
	Logger       *logger.Logger
	Timeout      time.Duration
}

// NewProcessor creates a new event processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Catalog == nil {
		cfg.Catalog = program.DefaultCatalog()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New("info")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &Processor{
		conversation: cfg.Conversation,
		programs:     cfg.Programs,
		catalog:      cfg.Catalog,
		profile:      cfg.Profile,
		userLimiter:  cfg.UserLimiter,
		llmLimiter:   cfg.LLMLimiter,
		sender:       cfg.Sender,
		logger:       cfg.Logger.WithModule("bot"),
		timeout:      cfg.Timeout,
	}
}

// ProcessMessage handles a message event. Non-text messages and group
// messages that do not mention the bot are ignored.
func (p *Processor) ProcessMessage(ctx context.Context, event webhook.MessageEvent) ([]messaging_api.MessageInterface, error) {
	textMsg, ok := event.Message.(webhook.TextMessageContent)
	if !ok {
		return nil, nil
	}

	src := SourceOf(event.Source)
	text := textMsg.Text
	if !src.Personal {
		if !isBotMentioned(textMsg) {
			return nil, nil
		}
		text = removeBotMentions(text, textMsg.Mention)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return p.reply(helpText), nil
	}

	userID := src.HistoryKey()
	ctx = ctxutil.WithUserID(ctx, userID)

	if !p.userLimiter.Allow(userID) {
		p.logger.WithField("user_id", truncateID(userID)).Warn("User rate limit exceeded")
		if src.Personal {
			return p.reply(p.rateLimitText(p.userLimiter, userID)), nil
		}
		return nil, nil
	}

	if utf8.RuneCountInString(text) > MaxInputRunes {
		p.logger.Warnf("Text message too long: %d runes", utf8.RuneCountInString(text))
		return p.reply(fmt.Sprintf(TooLongMessage, MaxInputRunes)), nil
	}

	processCtx, cancel := context.WithTimeout(ctxutil.PreserveTracing(ctx), p.timeout)
	defer cancel()

	if cmd, args, isCmd := parseCommand(text); isCmd {
		return p.handleCommand(processCtx, userID, cmd, args), nil
	}
	return p.handleText(processCtx, userID, text), nil
}

// ProcessFollow greets a new follower.
func (p *Processor) ProcessFollow(ctx context.Context, event webhook.FollowEvent) ([]messaging_api.MessageInterface, error) {
	p.logger.Info("New user followed the bot")
	return p.reply(welcomeText(p.displayName(ctx, SourceOf(event.Source).UserID))), nil
}

func (p *Processor) handleCommand(ctx context.Context, userID, cmd, args string) []messaging_api.MessageInterface {
	log := p.logger.WithField("command", cmd)

	switch cmd {
	case CmdStart:
		return p.reply(welcomeText(p.displayName(ctx, userID)))
	case CmdHelp:
		return p.reply(helpText)
	case CmdPrograms:
		var records map[string]program.Record
		if p.programs != nil {
			records = p.programs.Records()
		}
		return p.reply(programsText(p.catalog, records))
	case CmdBackground:
		if args == "" {
			return p.reply(backgroundPrompt)
		}
		r, err := p.conversation.SetBackground(ctx, userID, args, chat.ExtractInterests(args))
		if err != nil {
			return p.replyError(log, err)
		}
		return p.reply(r.Text)
	case CmdClear:
		if err := p.conversation.ClearHistory(ctx, userID); err != nil {
			return p.replyError(log, err)
		}
		return p.reply(clearedText)
	default:
		log.Debug("Unknown command")
		return p.reply(fmt.Sprintf(UnknownCmdMessage, cmd))
	}
}

func (p *Processor) handleText(ctx context.Context, userID, text string) []messaging_api.MessageInterface {
	if p.conversation.LLMEnabled() && !chat.IsBackgroundMessage(text) && !p.llmLimiter.Allow(userID) {
		p.logger.WithField("user_id", truncateID(userID)).Warn("LLM rate limit exceeded")
		return p.reply(p.rateLimitText(p.llmLimiter, userID))
	}

	r, err := p.conversation.HandleMessage(ctx, userID, text)
	if err != nil {
		return p.replyError(p.logger, err)
	}
	return p.reply(r.Text)
}

func (p *Processor) replyError(log *logger.Logger, err error) []messaging_api.MessageInterface {
	if errors.Is(err, context.Canceled) {
		log.WithError(err).Warn("Message processing cancelled")
	} else {
		log.WithError(err).Error("Message processing failed")
	}
	if msg := domerrors.GetUserMessage(err); msg != "" {
		return p.reply(msg)
	}
	return p.reply(HandlerErrorMessage)
}

func (p *Processor) rateLimitText(l *ratelimit.KeyedLimiter, userID string) string {
	minutes := int(math.Ceil(l.RetryAfter(userID).Minutes()))
	return fmt.Sprintf(RateLimitMessage, max(minutes, 1))
}

func (p *Processor) displayName(ctx context.Context, userID string) string {
	if p.profile == nil || userID == "" {
		return DefaultDisplayName
	}
	name, err := p.profile(ctx, userID)
	if err != nil {
		p.logger.WithError(err).Debug("Failed to read profile")
		return DefaultDisplayName
	}
	return name
}

func (p *Processor) reply(text string) []messaging_api.MessageInterface {
	return lineutil.NewTextMessages(lineutil.PlainText(text), p.sender, lineutil.QuickReplyMainNav()...)
}

// truncateID shortens ids for logs.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}

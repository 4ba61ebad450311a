// Package webhook receives LINE webhook calls, acknowledges them at once and
// answers each event asynchronously through the bot processor.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"golang.org/x/time/rate"

	"github.com/garyellow/itmo-advisor-go/internal/bot"
	"github.com/garyellow/itmo-advisor-go/internal/ctxutil"
	"github.com/garyellow/itmo-advisor-go/internal/lineutil"
	"github.com/garyellow/itmo-advisor-go/internal/logger"
	"github.com/garyellow/itmo-advisor-go/internal/metrics"
)

// EventProcessor turns events into reply messages. *bot.Processor
// implements it.
type EventProcessor interface {
	ProcessMessage(ctx context.Context, event webhook.MessageEvent) ([]messaging_api.MessageInterface, error)
	ProcessFollow(ctx context.Context, event webhook.FollowEvent) ([]messaging_api.MessageInterface, error)
}

// Handler handles LINE webhook events
type Handler struct {
	channelSecret string
	client        *messaging_api.MessagingApiAPI
	metrics       *metrics.Metrics
	logger        *logger.Logger
	processor     EventProcessor
	rateLimiter   *rate.Limiter  // Global limit on LINE API calls
	wg            sync.WaitGroup // Tracks async event processing
	replyTimeout  time.Duration
}

// HandlerConfig holds configuration for creating a new Handler
type HandlerConfig struct {
	ChannelSecret string
	Client        *messaging_api.MessagingApiAPI
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
	Processor     EventProcessor
	GlobalRPS     float64       // LINE API calls per second, 0 means 100
	ReplyTimeout  time.Duration // Bounds one event, processing included
}

// NewClient creates a Messaging API client. endpoint overrides the LINE API
// base URL when set.
func NewClient(channelToken, endpoint string) (*messaging_api.MessagingApiAPI, error) {
	var opts []messaging_api.MessagingApiAPIOption
	if endpoint != "" {
		opts = append(opts, messaging_api.WithEndpoint(endpoint))
	}
	client, err := messaging_api.NewMessagingApiAPI(channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("create messaging API client: %w", err)
	}
	return client, nil
}

// ProfileFunc adapts the client's profile lookup for the bot processor.
func ProfileFunc(client *messaging_api.MessagingApiAPI) bot.ProfileFunc {
	return func(_ context.Context, userID string) (string, error) {
		profile, err := client.GetProfile(userID)
		if err != nil {
			return "", fmt.Errorf("get profile: %w", err)
		}
		return profile.DisplayName, nil
	}
}

// NewHandler creates a new webhook handler.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.ChannelSecret == "" {
		return nil, errors.New("channel secret is required")
	}
	if cfg.Client == nil {
		return nil, errors.New("messaging API client is required")
	}
	if cfg.Processor == nil {
		return nil, errors.New("event processor is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New("info")
	}
	rps := cfg.GlobalRPS
	if rps <= 0 {
		rps = 100
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 90 * time.Second
	}

	return &Handler{
		channelSecret: cfg.ChannelSecret,
		client:        cfg.Client,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger.WithModule("webhook"),
		processor:     cfg.Processor,
		rateLimiter:   rate.NewLimiter(rate.Limit(rps), max(int(rps), 1)),
		replyTimeout:  cfg.ReplyTimeout,
	}, nil
}

// Handle is the Gin handler for the webhook endpoint
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn("Invalid webhook signature")
			h.metrics.RecordWebhook("batch", "invalid_signature", 0)
			c.Status(http.StatusBadRequest)
		} else {
			h.logger.WithError(err).Error("Failed to parse webhook request")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	// LINE expects a fast 200; replies use the reply token later.
	c.Status(http.StatusOK)

	start := time.Now()
	h.metrics.RecordWebhook("batch", "received", 0)

	events := cb.Events
	if len(events) > lineutil.MaxEventsPerWebhook {
		h.logger.WithField("event_count", len(events)).
			WithField("limit", lineutil.MaxEventsPerWebhook).
			Warn("Too many events in webhook batch; truncating")
		events = events[:lineutil.MaxEventsPerWebhook]
	}
	events = append([]webhook.EventInterface(nil), events...)

	requestID, _ := ctxutil.GetRequestID(c.Request.Context())
	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.logger.WithField("panic", r).Error("Panic in async event processing")
			}
		}()

		ctx := ctxutil.WithChannel(context.Background(), ctxutil.ChannelLINE)
		if requestID != "" {
			ctx = ctxutil.WithRequestID(ctx, requestID)
		}
		for _, event := range events {
			h.processEvent(ctx, event, start)
		}
	})
}

// processEvent answers a single event.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface, batchStart time.Time) {
	eventStart := time.Now()

	eventID, eventTimestamp, isRedelivery := extractEventMeta(event)
	if eventID != "" {
		ctx = ctxutil.WithRequestID(ctx, eventID)
	}
	log := h.logger
	if eventID != "" {
		log = log.WithRequestID(eventID)
	}
	if isRedelivery {
		log = log.WithField("is_redelivery", true)
	}
	if eventTimestamp > 0 {
		log = log.WithField("event_timestamp_ms", eventTimestamp)
	}

	ctx, cancel := context.WithTimeout(ctx, h.replyTimeout)
	defer cancel()

	var (
		messages   []messaging_api.MessageInterface
		replyToken string
		eventType  string
		err        error
	)
	switch e := event.(type) {
	case webhook.MessageEvent:
		eventType, replyToken = "message", e.ReplyToken
		if bot.ExpectsReply(e) {
			h.showLoadingAnimation(log, bot.SourceOf(e.Source).ChatID)
		}
		messages, err = h.processor.ProcessMessage(ctx, e)
	case webhook.FollowEvent:
		eventType, replyToken = "follow", e.ReplyToken
		messages, err = h.processor.ProcessFollow(ctx, e)
	default:
		log.WithField("event_type", fmt.Sprintf("%T", e)).Debug("Unsupported event type")
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).WithField("event_type", eventType).Error("Failed to handle event")
	}
	h.metrics.RecordWebhook(eventType, status, time.Since(eventStart).Seconds())

	if err == nil && len(messages) > 0 {
		h.reply(ctx, log, eventType, replyToken, messages)
	}

	log.WithField("event_type", eventType).
		WithField("event_duration_ms", time.Since(eventStart).Milliseconds()).
		WithField("batch_duration_ms", time.Since(batchStart).Milliseconds()).
		Info("Event processed")
}

func (h *Handler) reply(ctx context.Context, log *logger.Logger, eventType, replyToken string, messages []messaging_api.MessageInterface) {
	if len(replyToken) < lineutil.MinReplyTokenLength {
		log.WithField("token_length", len(replyToken)).Debug("Missing or invalid reply token, skipping reply")
		return
	}
	if len(messages) > lineutil.MaxMessagesPerReply {
		log.WithField("message_count", len(messages)).Warn("Message count exceeds limit; truncating")
		messages = messages[:lineutil.MaxMessagesPerReply]
	}

	if !h.rateLimiter.Allow() {
		log.Warn("Global rate limit exceeded; waiting")
		h.metrics.RecordRateLimiterDrop("global")
		if err := h.rateLimiter.Wait(ctx); err != nil {
			log.WithError(err).Warn("Gave up waiting for the global rate limiter")
			return
		}
	}

	if _, err := h.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	}); err != nil {
		if strings.Contains(err.Error(), "Invalid reply token") {
			log.WithError(err).Debug("Reply token already used or invalid")
		} else {
			log.WithError(err).WithField("reply_token", replyToken[:8]+"...").Error("Failed to send reply")
		}
		h.metrics.RecordWebhook(eventType, "reply_error", 0)
	}
}

// showLoadingAnimation shows the typing indicator for up to 60 seconds, the
// LINE maximum. Failures are logged only.
func (h *Handler) showLoadingAnimation(log *logger.Logger, chatID string) {
	if chatID == "" {
		return
	}
	if _, err := h.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: 60,
	}); err != nil {
		log.WithError(err).Debug("Failed to show loading animation")
	}
}

func extractEventMeta(event webhook.EventInterface) (id string, timestamp int64, redelivery bool) {
	var dc *webhook.DeliveryContext
	switch e := event.(type) {
	case webhook.MessageEvent:
		id, timestamp, dc = e.WebhookEventId, e.Timestamp, e.DeliveryContext
	case webhook.FollowEvent:
		id, timestamp, dc = e.WebhookEventId, e.Timestamp, e.DeliveryContext
	default:
		return "", 0, false
	}
	return id, timestamp, dc != nil && dc.IsRedelivery
}

// Shutdown waits for all async event processing to complete.
// It returns an error if the context is canceled before completion.
func (h *Handler) Shutdown(ctx context.Context) error {
	c := make(chan struct{})
	go func() {
		defer close(c)
		h.wg.Wait()
	}()

	select {
	case <-c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package app

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyellow/itmo-advisor-go/internal/config"
	"github.com/garyellow/itmo-advisor-go/internal/ctxutil"
	domerrors "github.com/garyellow/itmo-advisor-go/internal/errors"
	"github.com/garyellow/itmo-advisor-go/internal/ratelimit"
	"github.com/garyellow/itmo-advisor-go/internal/sentry"
)

// maxSearchK caps the k query parameter of /api/search.
const maxSearchK = 50

// maxQuestionRunes bounds questions and backgrounds accepted over HTTP.
const maxQuestionRunes = 4000

type askRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

type recommendRequest struct {
	Background string `json:"background"`
}

func (a *Application) livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}

func (a *Application) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), config.ReadinessCheckTimeout)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		a.logger.WithError(err).Warn("Readiness check failed: database unavailable")
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}
	if !a.retriever.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "index not built",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ready",
		"database": "connected",
		"features": a.features(),
	})
}

func (a *Application) features() map[string]bool {
	return map[string]bool{
		"llm":      a.chat.LLMEnabled(),
		"webhook":  a.webhookHandler != nil,
		"snapshot": a.snapshots != nil,
	}
}

// handleSearch serves GET /api/search?q=&k=.
func (a *Application) handleSearch(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("q", "must not be empty"))
		return
	}
	k := a.cfg.SearchTopK
	if raw := c.Query("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("k", "must be a positive integer"))
			return
		}
		k = min(n, maxSearchK)
	}

	results := a.retriever.SearchWithFallback(c.Request.Context(), query, k)
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"results": results,
	})
}

// handleRecommend serves POST /api/recommend. The background is scored
// statelessly and never stored.
func (a *Application) handleRecommend(c *gin.Context) {
	var req recommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("body", err.Error()))
		return
	}
	background := strings.TrimSpace(req.Background)
	if background == "" {
		abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("background", "must not be empty"))
		return
	}
	if len([]rune(background)) > maxQuestionRunes {
		abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("background", "too long"))
		return
	}

	results := a.engine.Recommend(background, a.retriever.Records())
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"message": a.engine.FormatMarkdown(results),
	})
}

// handleAsk serves POST /api/ask through the same conversation manager the
// LINE bot uses, so history and background are shared per user id.
func (a *Application) handleAsk(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("body", err.Error()))
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.Question = strings.TrimSpace(req.Question)
	if req.UserID == "" {
		abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("user_id", "must not be empty"))
		return
	}
	if req.Question == "" {
		abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("question", "must not be empty"))
		return
	}
	if len([]rune(req.Question)) > maxQuestionRunes {
		abortWithError(c, http.StatusBadRequest, domerrors.NewValidationError("question", "too long"))
		return
	}

	key := ctxutil.ChannelAPI + ":" + req.UserID
	if !a.userLimiter.Allow(key) {
		rejectRateLimited(c, a.userLimiter, key)
		return
	}
	if a.chat.LLMEnabled() && !a.llmLimiter.Allow(key) {
		rejectRateLimited(c, a.llmLimiter, key)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), config.WebhookProcessing)
	defer cancel()
	ctx = ctxutil.WithUserID(ctx, req.UserID)

	reply, err := a.chat.HandleMessage(ctx, req.UserID, req.Question)
	if err != nil {
		status := http.StatusInternalServerError
		var ve *domerrors.ValidationError
		if errors.As(err, &ve) {
			status = http.StatusBadRequest
		} else {
			sentry.CaptureExceptionWithContext(ctx, err)
			a.logger.WithError(err).WithField("user_id", req.UserID).Error("Ask failed")
		}
		c.AbortWithStatusJSON(status, gin.H{
			"error":   err.Error(),
			"message": domerrors.GetUserMessage(err),
		})
		return
	}
	c.JSON(http.StatusOK, reply)
}

// handleStats serves GET /api/stats.
func (a *Application) handleStats(c *gin.Context) {
	history, err := a.db.Stats(c.Request.Context())
	if err != nil {
		sentry.CaptureExceptionWithContext(c.Request.Context(), err)
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	body := gin.H{
		"index":       a.retriever.Stats(),
		"history":     history,
		"programs":    a.catalog.IDs(),
		"llm_enabled": a.chat.LLMEnabled(),
	}
	if a.snapshots != nil {
		body["snapshot_etag"] = a.snapshots.CurrentETag()
	}
	c.JSON(http.StatusOK, body)
}

// handleReindex serves POST /api/reindex. The old index keeps serving when
// the rebuild fails.
func (a *Application) handleReindex(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := a.reindex(ctx)
	if err != nil {
		sentry.CaptureExceptionWithContext(ctx, err)
		a.logger.WithError(err).Error("Reindex failed")
		abortWithError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func abortWithError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func rejectRateLimited(c *gin.Context, l *ratelimit.KeyedLimiter, key string) {
	seconds := int(math.Ceil(l.RetryAfter(key).Seconds()))
	c.Header("Retry-After", strconv.Itoa(max(seconds, 1)))
	abortWithError(c, http.StatusTooManyRequests, domerrors.ErrRateLimited)
}

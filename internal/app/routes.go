package app

import (
	"net/http"
	"time"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyellow/itmo-advisor-go/internal/ctxutil"
	"github.com/garyellow/itmo-advisor-go/internal/sentry"
)

const repositoryURL = "https://github.com/garyellow/itmo-advisor-go"

// newRouter registers every HTTP route. /webhook exists only when LINE is
// configured.
func (a *Application) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if sentry.IsEnabled() {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true, Timeout: 2 * time.Second}))
	}
	router.Use(securityHeadersMiddleware())
	router.Use(loggingMiddleware(a.logger))

	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusTemporaryRedirect, repositoryURL)
	})
	router.GET("/livez", a.livenessCheck)
	router.HEAD("/livez", a.livenessCheck)
	router.GET("/readyz", a.readinessCheck)
	router.HEAD("/readyz", a.readinessCheck)

	if a.webhookHandler != nil {
		router.POST("/webhook", channelMiddleware(ctxutil.ChannelLINE), a.webhookHandler.Handle)
	}

	api := router.Group("/api", channelMiddleware(ctxutil.ChannelAPI))
	api.GET("/search", a.handleSearch)
	api.POST("/recommend", a.handleRecommend)
	api.POST("/ask", a.handleAsk)
	api.GET("/stats", a.handleStats)
	api.POST("/reindex", adminTokenMiddleware(a.cfg.AdminToken), a.handleReindex)

	router.GET("/metrics",
		basicAuthMiddleware("metrics", a.cfg.MetricsUsername, a.cfg.MetricsPassword),
		gin.WrapH(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	return router
}

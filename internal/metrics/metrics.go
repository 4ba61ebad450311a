package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
// Every Record method is safe to call on a nil *Metrics.
type Metrics struct {
	// Retrieval metrics
	SearchTotal           *prometheus.CounterVec
	SearchDurationSeconds *prometheus.HistogramVec
	IndexBuildsTotal      *prometheus.CounterVec
	IndexChunks           prometheus.Gauge

	// LLM metrics
	LLMTotal           *prometheus.CounterVec
	LLMDurationSeconds *prometheus.HistogramVec

	// Webhook metrics
	WebhookTotal           *prometheus.CounterVec
	WebhookDurationSeconds *prometheus.HistogramVec

	// Recommendation metrics
	RecommendationsTotal prometheus.Counter

	// Scraper metrics
	ScrapeTotal           *prometheus.CounterVec
	ScrapeDurationSeconds *prometheus.HistogramVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		SearchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itmo_search_total",
				Help: "Total number of retrieval queries by backend and result",
			},
			[]string{"backend", "result"}, // result: hit, empty, fallback
		),

		SearchDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "itmo_search_duration_seconds",
				Help:    "Retrieval query duration in seconds by backend",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
			[]string{"backend"},
		),

		IndexBuildsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itmo_index_builds_total",
				Help: "Total number of index builds by status",
			},
			[]string{"status"}, // status: success, error
		),

		IndexChunks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "itmo_index_chunks",
				Help: "Number of chunks in the live index generation",
			},
		),

		LLMTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itmo_llm_total",
				Help: "Total number of LLM calls by provider and status",
			},
			[]string{"provider", "status"}, // status: success, error, fallback
		),

		LLMDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "itmo_llm_duration_seconds",
				Help:    "LLM call duration in seconds by provider",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
			},
			[]string{"provider"},
		),

		WebhookTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itmo_webhook_total",
				Help: "Total number of webhook events by event type and status",
			},
			[]string{"event", "status"},
		),

		WebhookDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "itmo_webhook_duration_seconds",
				Help:    "Webhook event processing duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"event"},
		),

		RecommendationsTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "itmo_recommendations_total",
				Help: "Total number of recommendation runs",
			},
		),

		ScrapeTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itmo_scrape_total",
				Help: "Total number of program scrapes by program and status",
			},
			[]string{"program", "status"},
		),

		ScrapeDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "itmo_scrape_duration_seconds",
				Help:    "Program scrape duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
			},
			[]string{"program"},
		),

		RateLimiterDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "itmo_rate_limiter_dropped_total",
				Help: "Total number of requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // limiter_type: user, llm
		),
	}
}

// RecordSearch records one retrieval query.
func (m *Metrics) RecordSearch(backend, result string, duration float64) {
	if m == nil {
		return
	}
	m.SearchTotal.WithLabelValues(backend, result).Inc()
	m.SearchDurationSeconds.WithLabelValues(backend).Observe(duration)
}

// RecordIndexBuild records an index build and, on success, the chunk count.
func (m *Metrics) RecordIndexBuild(status string, chunks int) {
	if m == nil {
		return
	}
	m.IndexBuildsTotal.WithLabelValues(status).Inc()
	if status == "success" {
		m.IndexChunks.Set(float64(chunks))
	}
}

// RecordLLM records an LLM call
func (m *Metrics) RecordLLM(provider, status string, duration float64) {
	if m == nil {
		return
	}
	m.LLMTotal.WithLabelValues(provider, status).Inc()
	m.LLMDurationSeconds.WithLabelValues(provider).Observe(duration)
}

// RecordWebhook records a webhook event
func (m *Metrics) RecordWebhook(event, status string, duration float64) {
	if m == nil {
		return
	}
	m.WebhookTotal.WithLabelValues(event, status).Inc()
	m.WebhookDurationSeconds.WithLabelValues(event).Observe(duration)
}

// RecordRecommendation counts a recommendation run
func (m *Metrics) RecordRecommendation() {
	if m == nil {
		return
	}
	m.RecommendationsTotal.Inc()
}

// RecordScrape records a program scrape with status
func (m *Metrics) RecordScrape(program, status string, duration float64) {
	if m == nil {
		return
	}
	m.ScrapeTotal.WithLabelValues(program, status).Inc()
	m.ScrapeDurationSeconds.WithLabelValues(program).Observe(duration)
}

// RecordRateLimiterDrop records a request dropped by rate limiter
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

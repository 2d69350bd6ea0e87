// Package metrics exposes HTTP and activity counters to prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/internal/auth"
)

type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	EventsTotal     *prometheus.CounterVec
	AuthRejections  *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg and serves reg from Handler.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anime_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "anime_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anime_activity_events_total",
				Help: "Domain events published to the activity feed",
			},
			[]string{"type"},
		),
		AuthRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "anime_auth_rejections_total",
				Help: "Requests rejected by the authorization gate",
			},
			[]string{"code"},
		),
		gatherer: reg,
	}
	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.EventsTotal, m.AuthRejections)
	return m
}

// RegisterRuntime adds the Go runtime and process collectors.
func RegisterRuntime(reg *prometheus.Registry) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Middleware records count and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()

		m.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(status)).Inc()

		if status == http.StatusUnauthorized {
			if code := c.GetString(auth.CtxRejectionKey); code != "" {
				m.AuthRejections.WithLabelValues(code).Inc()
			}
		}
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Publisher counts events by type before handing them to next.
func (m *Metrics) Publisher(next activity.Publisher) activity.Publisher {
	return countingPublisher{m: m, next: activity.OrNop(next)}
}

type countingPublisher struct {
	m    *Metrics
	next activity.Publisher
}

func (p countingPublisher) Publish(ev activity.Event) {
	p.m.EventsTotal.WithLabelValues(ev.Type).Inc()
	p.next.Publish(ev)
}

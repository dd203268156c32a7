// Package metrics provides Prometheus instrumentation for the relay guard.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "relayguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DecisionsTotal counts pipeline outcomes by verdict.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayguard",
			Name:      "decisions_total",
			Help:      "Total relay decisions by verdict (allow, block).",
		},
		[]string{"verdict"},
	)

	// AuthFailuresTotal counts rejected signatures by reason.
	AuthFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayguard",
			Name:      "auth_failures_total",
			Help:      "Total authentication rejections by reason.",
		},
		[]string{"reason"},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter.
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relayguard",
		Name:      "rate_limited_total",
		Help:      "Total requests rejected by the rate limiter.",
	})

	// PenaltiesTotal counts progressive lockouts imposed.
	PenaltiesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relayguard",
		Name:      "penalties_total",
		Help:      "Total progressive penalty lockouts imposed.",
	})

	// BlacklistHitsTotal counts blocked senders by blacklist tier.
	BlacklistHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayguard",
			Name:      "blacklist_hits_total",
			Help:      "Total requests blocked by blacklist tier (emergency, primary).",
		},
		[]string{"tier"},
	)

	// AutoBlacklistsTotal counts senders blacklisted by the risk scorer.
	AutoBlacklistsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "relayguard",
		Name:      "auto_blacklists_total",
		Help:      "Total senders auto-blacklisted on risk score.",
	})

	// RiskScore observes the score distribution across assessments.
	RiskScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "relayguard",
		Name:      "risk_score",
		Help:      "Risk score distribution across assessments.",
		Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
	})

	// StoreDegradedTotal counts decisions taken while the store was down.
	StoreDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "relayguard",
			Name:      "store_degraded_total",
			Help:      "Total degraded-path decisions by component.",
		},
		[]string{"component"},
	)

	// ActiveWebSocketClients tracks connected threat-feed clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "relayguard",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open archive database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayguard", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle archive database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayguard", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use archive database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayguard", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "relayguard", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		AuthFailuresTotal,
		RateLimitedTotal,
		PenaltiesTotal,
		BlacklistHitsTotal,
		AutoBlacklistsTotal,
		RiskScore,
		StoreDegradedTotal,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

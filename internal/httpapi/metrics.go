package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Kyon9x/vn-market-service/internal/ratelimit"
)

// rateLimiterMetrics exports the global rate limiter's own counters as
// Prometheus gauges — no separate observability subsystem, just the
// numbers the limiter already tracks in ratelimit.Stats.
type rateLimiterMetrics struct {
	registry        *prometheus.Registry
	callsLastMinute prometheus.Gauge
	callsLastHour   prometheus.Gauge
	throttled       prometheus.Gauge
}

func newRateLimiterMetrics() *rateLimiterMetrics {
	m := &rateLimiterMetrics{
		registry: prometheus.NewRegistry(),
		callsLastMinute: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vnmarket_rate_limiter_calls_last_minute",
			Help: "Upstream provider calls recorded in the trailing one-minute window.",
		}),
		callsLastHour: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vnmarket_rate_limiter_calls_last_hour",
			Help: "Upstream provider calls recorded in the trailing one-hour window.",
		}),
		throttled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vnmarket_rate_limiter_throttled",
			Help: "1 if the next upstream call would currently be throttled, else 0.",
		}),
	}
	m.registry.MustRegister(m.callsLastMinute, m.callsLastHour, m.throttled)
	return m
}

// observe refreshes the gauges from a fresh read of the limiter's stats.
func (m *rateLimiterMetrics) observe(stats ratelimit.Stats) {
	m.callsLastMinute.Set(float64(stats.CallsLastMinute))
	m.callsLastHour.Set(float64(stats.CallsLastHour))
	if stats.Throttled {
		m.throttled.Set(1)
	} else {
		m.throttled.Set(0)
	}
}

func (m *rateLimiterMetrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

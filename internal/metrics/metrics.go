// Package metrics holds the Prometheus collectors for upstream traffic, the response cache,
// token refreshes and live streams. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "charger_dashboard"

type Metrics struct {
	upstreamRequests *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	tokenRefreshes   *prometheus.CounterVec
	activeStreams    prometheus.Gauge
	streamPasses     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream API calls by operation and response status (0 when no response).",
		}, []string{"operation", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by result.",
		}, []string{"result"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refresh attempts by result.",
		}, []string{"result"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open live update connections.",
		}),
		streamPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_passes_total",
			Help:      "Live update aggregation passes by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.upstreamRequests, m.cacheLookups, m.tokenRefreshes, m.activeStreams, m.streamPasses)
	return m
}

func (m *Metrics) UpstreamRequest(operation string, status int) {
	if m == nil {
		return
	}
	m.upstreamRequests.WithLabelValues(operation, strconv.Itoa(status)).Inc()
}

// CacheLookup records "hit", "miss" or "expired".
func (m *Metrics) CacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) TokenRefresh(ok bool) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

func (m *Metrics) StreamPass(ok bool) {
	if m == nil {
		return
	}
	m.streamPasses.WithLabelValues(result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

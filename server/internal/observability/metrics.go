package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics collects per-route HTTP request counters.
type Metrics struct {
	mu sync.Mutex

	requestTotal  atomic.Int64
	requestFailed atomic.Int64
	streamEvents  atomic.Int64

	routes map[string]*RouteMetrics
}

// RouteMetrics represents metrics for a single route pattern.
type RouteMetrics struct {
	requestCount  atomic.Int64
	totalDuration atomic.Int64 // milliseconds
	errorCount    atomic.Int64
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{routes: make(map[string]*RouteMetrics)}
}

// RecordRequest records one finished request. Responses with status 500 or
// above count as failures.
func (m *Metrics) RecordRequest(route string, status int, duration time.Duration) {
	rm := m.route(route)
	m.requestTotal.Add(1)
	rm.requestCount.Add(1)
	rm.totalDuration.Add(duration.Milliseconds())
	if status >= 500 {
		m.requestFailed.Add(1)
		rm.errorCount.Add(1)
	}
}

// RecordStreamEvent records an event written to an SSE stream.
func (m *Metrics) RecordStreamEvent() {
	m.streamEvents.Add(1)
}

func (m *Metrics) route(route string) *RouteMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	rm, ok := m.routes[route]
	if !ok {
		rm = &RouteMetrics{}
		m.routes[route] = rm
	}
	return rm
}

// Reset resets all metrics.
func (m *Metrics) Reset() {
	m.requestTotal.Store(0)
	m.requestFailed.Store(0)
	m.streamEvents.Store(0)

	m.mu.Lock()
	m.routes = make(map[string]*RouteMetrics)
	m.mu.Unlock()
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() *MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	routes := make([]RouteMetricsSnapshot, 0, len(m.routes))
	for route, rm := range m.routes {
		count := rm.requestCount.Load()
		snap := RouteMetricsSnapshot{
			Route:         route,
			RequestCount:  count,
			TotalDuration: rm.totalDuration.Load(),
			ErrorCount:    rm.errorCount.Load(),
		}
		if count > 0 {
			snap.AverageDuration = snap.TotalDuration / count
		}
		routes = append(routes, snap)
	}
	sort.Slice(routes, func(i, j int) bool { return routes[i].Route < routes[j].Route })

	return &MetricsSnapshot{
		RequestTotal:  m.requestTotal.Load(),
		RequestFailed: m.requestFailed.Load(),
		StreamEvents:  m.streamEvents.Load(),
		Routes:        routes,
	}
}

// MetricsSnapshot represents a point-in-time snapshot of metrics.
type MetricsSnapshot struct {
	RequestTotal  int64                  `json:"request_total"`
	RequestFailed int64                  `json:"request_failed"`
	StreamEvents  int64                  `json:"stream_events"`
	Routes        []RouteMetricsSnapshot `json:"routes"`
}

// RouteMetricsSnapshot represents metrics for one route.
type RouteMetricsSnapshot struct {
	Route           string `json:"route"`
	RequestCount    int64  `json:"request_count"`
	TotalDuration   int64  `json:"total_duration_ms"`
	ErrorCount      int64  `json:"error_count"`
	AverageDuration int64  `json:"average_duration_ms"`
}

// SuccessRate returns the success rate as a percentage (0-100).
func (s *MetricsSnapshot) SuccessRate() float64 {
	if s.RequestTotal == 0 {
		return 100.0
	}
	return float64(s.RequestTotal-s.RequestFailed) / float64(s.RequestTotal) * 100.0
}

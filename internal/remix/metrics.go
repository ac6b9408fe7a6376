package remix

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds lightweight counters for HTTP activity. The same numbers are
// mirrored into a private Prometheus registry for textfile export.
type Metrics struct {
	// totals
	TotalRequests     atomic.Int64
	TotalRetries      atomic.Int64
	TotalBackoffNanos atomic.Int64

	// by operation type
	ReadRequests  atomic.Int64 // GET
	WriteRequests atomic.Int64 // POST/PUT/PATCH/DELETE

	mu        sync.Mutex
	status2xx int64
	status3xx int64
	status4xx int64
	status429 int64
	status5xx int64

	registry   *prometheus.Registry
	promReqs   *prometheus.CounterVec
	promStatus *prometheus.CounterVec
	promRetry  prometheus.Counter
	promWait   prometheus.Counter
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}
	m.promReqs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remix_sync_http_requests_total",
		Help: "Requests sent to the Remix control API, by method.",
	}, []string{"method"})
	m.promStatus = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "remix_sync_http_responses_total",
		Help: "Responses received from the Remix control API, by status class.",
	}, []string{"class"})
	m.promRetry = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remix_sync_http_retries_total",
		Help: "Attempts repeated after a timeout, connection failure, 429 or 5xx.",
	})
	m.promWait = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "remix_sync_http_backoff_seconds_total",
		Help: "Time spent sleeping between attempts.",
	})
	m.registry.MustRegister(m.promReqs, m.promStatus, m.promRetry, m.promWait)
	return m
}

// IncRequest increments the total and per-method counters.
func (m *Metrics) IncRequest(method string) {
	method = strings.ToUpper(method)
	m.TotalRequests.Add(1)
	switch method {
	case http.MethodGet:
		m.ReadRequests.Add(1)
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		m.WriteRequests.Add(1)
	}
	m.promReqs.WithLabelValues(method).Inc()
}

// IncRetry increments retry counter.
func (m *Metrics) IncRetry() {
	m.TotalRetries.Add(1)
	m.promRetry.Inc()
}

// AddBackoff accumulates backoff sleep time.
func (m *Metrics) AddBackoff(d time.Duration) {
	m.TotalBackoffNanos.Add(d.Nanoseconds())
	m.promWait.Add(d.Seconds())
}

// IncStatus tracks status buckets.
func (m *Metrics) IncStatus(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	class := ""
	switch {
	case code == http.StatusTooManyRequests:
		m.status429++
		class = "429"
	case code >= 200 && code < 300:
		m.status2xx++
		class = "2xx"
	case code >= 300 && code < 400:
		m.status3xx++
		class = "3xx"
	case code >= 400 && code < 500:
		m.status4xx++
		class = "4xx"
	case code >= 500:
		m.status5xx++
		class = "5xx"
	default:
		return
	}
	m.promStatus.WithLabelValues(class).Inc()
}

// MetricsSnapshot is a read-only copy of metrics state.
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalRetries      int64
	TotalBackoffNanos int64
	ReadRequests      int64
	WriteRequests     int64
	Status2xx         int64
	Status3xx         int64
	Status4xx         int64
	Status429         int64
	Status5xx         int64
}

// Snapshot returns a copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MetricsSnapshot{
		TotalRequests:     m.TotalRequests.Load(),
		TotalRetries:      m.TotalRetries.Load(),
		TotalBackoffNanos: m.TotalBackoffNanos.Load(),
		ReadRequests:      m.ReadRequests.Load(),
		WriteRequests:     m.WriteRequests.Load(),
		Status2xx:         m.status2xx,
		Status3xx:         m.status3xx,
		Status4xx:         m.status4xx,
		Status429:         m.status429,
		Status5xx:         m.status5xx,
	}
}

// String renders a one-line summary for status output.
func (s MetricsSnapshot) String() string {
	return fmt.Sprintf("requests=%d retries=%d backoff=%s 2xx=%d 4xx=%d 429=%d 5xx=%d",
		s.TotalRequests, s.TotalRetries, time.Duration(s.TotalBackoffNanos), s.Status2xx, s.Status4xx, s.Status429, s.Status5xx)
}

// WriteTextfile writes the counters in Prometheus text format, suitable for a
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

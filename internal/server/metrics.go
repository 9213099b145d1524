package server

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sadewadee/phpbridge/internal/bridge"
	"github.com/sadewadee/phpbridge/internal/websocket"
)

// Metrics collects Prometheus-compatible metrics.
type Metrics struct {
	totalRequests  sync.Map // "method:status" -> *atomic.Int64
	activeRequests atomic.Int32

	durationBuckets []float64
	durationCounts  []atomic.Int64 // one per bucket, non-cumulative
	durationSum     atomic.Int64
	durationCount   atomic.Int64

	ch     *bridge.Channel
	thread Interpreter
	ws     *websocket.Manager
}

// NewMetrics creates a new metrics collector. Any source may be nil.
func NewMetrics(ch *bridge.Channel, thread Interpreter, ws *websocket.Manager) *Metrics {
	buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0}
	return &Metrics{
		ch:              ch,
		thread:          thread,
		ws:              ws,
		durationBuckets: buckets,
		durationCounts:  make([]atomic.Int64, len(buckets)),
	}
}

// Middleware returns a middleware that collects metrics and serves the metrics endpoint.
func (m *Metrics) Middleware(metricsPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == metricsPath {
				m.serveMetrics(w)
				return
			}

			start := time.Now()
			m.activeRequests.Add(1)
			defer m.activeRequests.Add(-1)

			rw := &metricsResponseWriter{ResponseWriter: w, statusCode: 200}
			next.ServeHTTP(rw, r)

			duration := time.Since(start)

			key := fmt.Sprintf("%s:%d", r.Method, rw.statusCode)
			counter, _ := m.totalRequests.LoadOrStore(key, &atomic.Int64{})
			counter.(*atomic.Int64).Add(1)

			m.durationSum.Add(int64(duration))
			m.durationCount.Add(1)
			durationSec := duration.Seconds()
			for i, bucket := range m.durationBuckets {
				if durationSec <= bucket {
					m.durationCounts[i].Add(1)
					break
				}
			}
		})
	}
}

func writeMetric(b *strings.Builder, name, kind, help string, value interface{}) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n%s %v\n", name, help, name, kind, name, value)
}

func (m *Metrics) serveMetrics(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	var b strings.Builder

	b.WriteString("# HELP phpbridge_http_requests_total Total number of HTTP requests.\n")
	b.WriteString("# TYPE phpbridge_http_requests_total counter\n")
	m.totalRequests.Range(func(key, value interface{}) bool {
		method, status, _ := strings.Cut(key.(string), ":")
		count := value.(*atomic.Int64).Load()
		fmt.Fprintf(&b, "phpbridge_http_requests_total{method=\"%s\",status=\"%s\"} %d\n", method, status, count)
		return true
	})

	writeMetric(&b, "phpbridge_http_requests_active", "gauge",
		"Current number of active HTTP requests.", m.activeRequests.Load())

	b.WriteString("# HELP phpbridge_http_request_duration_seconds HTTP request duration in seconds.\n")
	b.WriteString("# TYPE phpbridge_http_request_duration_seconds histogram\n")
	cumulative := int64(0)
	totalCount := m.durationCount.Load()
	for i, bucket := range m.durationBuckets {
		cumulative += m.durationCounts[i].Load()
		fmt.Fprintf(&b, "phpbridge_http_request_duration_seconds_bucket{le=\"%.3f\"} %d\n", bucket, cumulative)
	}
	fmt.Fprintf(&b, "phpbridge_http_request_duration_seconds_bucket{le=\"+Inf\"} %d\n", totalCount)
	fmt.Fprintf(&b, "phpbridge_http_request_duration_seconds_sum %.6f\n", float64(m.durationSum.Load())/float64(time.Second))
	fmt.Fprintf(&b, "phpbridge_http_request_duration_seconds_count %d\n", totalCount)

	if m.ch != nil {
		stats := m.ch.Stats()
		writeMetric(&b, "phpbridge_calls_queued_total", "counter", "Calls queued on the bridge channel.", stats.Queued)
		writeMetric(&b, "phpbridge_calls_drained_total", "counter", "Calls taken off the queue by the interpreter thread.", stats.Drained)
		writeMetric(&b, "phpbridge_calls_completed_total", "counter", "Calls that completed with a value.", stats.Completed)
		writeMetric(&b, "phpbridge_calls_failed_total", "counter", "Calls that completed with an error.", stats.Failed)
		writeMetric(&b, "phpbridge_args_dropped_total", "counter", "Unconvertible arguments dropped from async calls.", stats.DroppedArgs)
		writeMetric(&b, "phpbridge_calls_pending", "gauge", "Calls waiting for the interpreter thread.", stats.Pending)
		writeMetric(&b, "phpbridge_closures_registered", "gauge", "Closures held by the registry.", stats.Registered)
	}

	if m.thread != nil {
		writeMetric(&b, "phpbridge_pump_passes_total", "counter", "Pump passes run by the interpreter thread.", m.thread.Pumped())
		up := 0
		if m.thread.Running() {
			up = 1
		}
		writeMetric(&b, "phpbridge_interpreter_up", "gauge", "Whether the interpreter thread is running.", up)
	}

	if m.ws != nil {
		stats := m.ws.Stats()
		writeMetric(&b, "phpbridge_websocket_connections", "gauge", "Open WebSocket gateway connections.", stats.Connections)
		writeMetric(&b, "phpbridge_websocket_calls_total", "counter", "Calls received over the WebSocket gateway.", stats.Calls)
		writeMetric(&b, "phpbridge_websocket_calls_failed_total", "counter", "Gateway calls answered with an error.", stats.Failed)
		writeMetric(&b, "phpbridge_websocket_rejected_total", "counter", "Connections refused at the connection limit.", stats.Rejected)
		writeMetric(&b, "phpbridge_websocket_calls_in_flight", "gauge", "Gateway calls waiting for a result.", stats.InFlight)
	}

	writeMetric(&b, "phpbridge_go_goroutines", "gauge", "Number of goroutines.", runtime.NumGoroutine())

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	writeMetric(&b, "phpbridge_go_memstats_alloc_bytes", "gauge", "Number of bytes allocated.", mem.Alloc)

	w.Write([]byte(b.String()))
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade take over the connection.
func (rw *metricsResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	rw.statusCode = http.StatusSwitchingProtocols
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}

func (rw *metricsResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder instruments sync outcomes and the HTTP API. A nil *Recorder is a
// valid no-op.
type Recorder struct {
	registry          *prometheus.Registry
	fetchesTotal      *prometheus.CounterVec
	fetchDuration     *prometheus.HistogramVec
	skippedTotal      *prometheus.CounterVec
	failureStreak     *prometheus.GaugeVec
	snapshotVersion   prometheus.Gauge
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New builds a Recorder on its own registry.
func New() *Recorder {
	m := &Recorder{
		registry: prometheus.NewRegistry(),
		fetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starwatch_fetches_total",
			Help: "Backend fetches by endpoint, mode and outcome.",
		}, []string{"endpoint", "mode", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "starwatch_fetch_duration_seconds",
			Help:    "Histogram of backend fetch durations by endpoint.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		skippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starwatch_background_skips_total",
			Help: "Background refreshes skipped because the endpoint was healthy.",
		}, []string{"endpoint"}),
		failureStreak: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "starwatch_consecutive_failures",
			Help: "Current consecutive failure count per endpoint.",
		}, []string{"endpoint"}),
		snapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "starwatch_snapshot_version",
			Help: "Current application snapshot version.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "starwatch_http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "starwatch_http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchesTotal,
		m.fetchDuration,
		m.skippedTotal,
		m.failureStreak,
		m.snapshotVersion,
		m.httpRequestsTotal,
		m.httpDuration,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Recorder) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// FetchCompleted records one fetch outcome ("ok", "failed", "cancelled").
func (m *Recorder) FetchCompleted(endpoint, mode, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.fetchesTotal.WithLabelValues(endpoint, mode, outcome).Inc()
	m.fetchDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

func (m *Recorder) BackgroundSkipped(endpoint string) {
	if m == nil {
		return
	}
	m.skippedTotal.WithLabelValues(endpoint).Inc()
}

func (m *Recorder) SetFailureStreak(endpoint string, n int) {
	if m == nil {
		return
	}
	m.failureStreak.WithLabelValues(endpoint).Set(float64(n))
}

func (m *Recorder) SetSnapshotVersion(v uint64) {
	if m == nil {
		return
	}
	m.snapshotVersion.Set(float64(v))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// Hijack lets websocket upgrades pass through the wrapper.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// WrapHandler counts requests and latency for route.
func (m *Recorder) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus text format.
func (m *Recorder) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

package api

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the HTTP surface and, through
// service.Metrics, for searches and favorites changes.
type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	searches        *prometheus.CounterVec
	searchDuration  *prometheus.HistogramVec
	favoriteChanges *prometheus.CounterVec
	liveConnections prometheus.Gauge
}

// NewMetrics registers all collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citysearch",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citysearch",
			Name:      "searches_total",
			Help:      "Prefix searches by source and outcome.",
		}, []string{"source", "outcome"}),
		searchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "citysearch",
			Name:      "search_duration_seconds",
			Help:      "Time spent in the ordered prefix search.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5},
		}, []string{"source"}),
		favoriteChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citysearch",
			Name:      "favorite_changes_total",
			Help:      "Favorites mutations by operation and result.",
		}, []string{"op", "result"}),
		liveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "citysearch",
			Name:      "live_connections",
			Help:      "Open live search websocket connections.",
		}),
	}

	m.registry.MustRegister(
		m.requests,
		m.searches,
		m.searchDuration,
		m.favoriteChanges,
		m.liveConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveSearch records one search by source and outcome
func (m *Metrics) ObserveSearch(source, outcome string, elapsed time.Duration) {
	m.searches.WithLabelValues(source, outcome).Inc()
	if elapsed > 0 {
		m.searchDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	}
}

// ObserveFavoriteChange records one favorites mutation and whether it succeeded
func (m *Metrics) ObserveFavoriteChange(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.favoriteChanges.WithLabelValues(op, result).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware counts requests by their route template
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.requests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack is needed by the websocket upgrade
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

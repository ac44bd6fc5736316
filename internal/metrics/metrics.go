// Package metrics exposes Prometheus collectors for the session layer and
// its HTTP surface.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dgnsrekt/tabtunnel/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	TabsOpen       prometheus.Gauge
	TabsLoading    prometheus.Gauge
	Progress       prometheus.Gauge
	Renders        prometheus.Counter
	EndpointSaves  prometheus.Counter
	RequestsTotal  *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		TabsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabtunnel_tabs_open",
			Help: "Number of open tabs",
		}),
		TabsLoading: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabtunnel_tabs_loading",
			Help: "Number of tabs with a navigation in flight",
		}),
		Progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tabtunnel_loading_indicator",
			Help: "Current loading indicator value (0, 10 or 100)",
		}),
		Renders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabtunnel_state_renders_total",
			Help: "Number of UI projections produced",
		}),
		EndpointSaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tabtunnel_endpoint_saves_total",
			Help: "Number of successful tunnel endpoint saves",
		}),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tabtunnel_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tabtunnel_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.TabsOpen, m.TabsLoading, m.Progress, m.Renders, m.EndpointSaves,
		m.RequestsTotal, m.RequestSeconds,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Render records the tab gauges from a UI projection.
func (m *Metrics) Render(view types.View) {
	loading := 0
	for _, t := range view.Tabs {
		if t.Loading {
			loading++
		}
	}
	m.TabsOpen.Set(float64(len(view.Tabs)))
	m.TabsLoading.Set(float64(loading))
	m.Progress.Set(float64(view.Progress))
	m.Renders.Inc()
}

// EndpointSaved counts a saved endpoint. Its signature matches
// settings.Store.Subscribe.
func (m *Metrics) EndpointSaved(string) {
	m.EndpointSaves.Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency by chi route pattern.
// Server-sent event streams are counted but not timed.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		if route != "/events" {
			m.RequestSeconds.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	jobmetrics "github.com/mobilsoft/backoffice/internal/jobs"
)

// Metrics collects the Prometheus metrics of the back-office process.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	storeCalls      *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	listLoads       *prometheus.CounterVec
	formSaves       *prometheus.CounterVec
	sessions        prometheus.Gauge
	jobs            *jobmetrics.Metrics
}

// NewMetrics builds a private registry with the base collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_http_request_duration_seconds",
		Help:    "HTTP request duration by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	storeCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_store_calls_total",
		Help: "Record store calls by operation, model and result.",
	}, []string{"op", "model", "result"})
	storeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backoffice_store_call_duration_seconds",
		Help:    "Record store call latency by operation.",
		Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"op"})
	listLoads := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_list_loads_total",
		Help: "List view loads by module and result.",
	}, []string{"module", "result"})
	formSaves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backoffice_form_saves_total",
		Help: "Form save attempts by module and result.",
	}, []string{"module", "result"})
	sessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "backoffice_console_sessions",
		Help: "Open console sessions.",
	})
	registry.MustRegister(requests, duration, storeCalls, storeDuration, listLoads, formSaves, sessions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		storeCalls:      storeCalls,
		storeDuration:   storeDuration,
		listLoads:       listLoads,
		formSaves:       formSaves,
		sessions:        sessions,
		jobs:            jobmetrics.NewMetrics(registry),
	}
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records count and latency of every request by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for custom collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Jobs returns the background job collectors registered with m.
func (m *Metrics) Jobs() *jobmetrics.Metrics {
	if m == nil {
		return nil
	}
	return m.jobs
}

// ListLoaded counts one finished list load.
func (m *Metrics) ListLoaded(module string, err error) {
	if m == nil {
		return
	}
	m.listLoads.WithLabelValues(module, result(err)).Inc()
}

// FormSaved counts one form save attempt that reached the backend.
func (m *Metrics) FormSaved(module string, err error) {
	if m == nil {
		return
	}
	m.formSaves.WithLabelValues(module, result(err)).Inc()
}

// SessionOpened and SessionClosed track the console session gauge.
func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) observeStore(op, model string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.storeCalls.WithLabelValues(op, model, result(err)).Inc()
	m.storeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}

package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the desk API.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	dbQueryDuration *prometheus.HistogramVec
	checkIns        prometheus.Counter
	checkOuts       prometheus.Counter
	rejectedCheckIn prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of database queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	checkIns := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_checkins_total",
		Help: "Total successful check-ins",
	})

	checkOuts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_checkouts_total",
		Help: "Total records closed by checkout",
	})

	rejectedCheckIn := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_checkins_rejected_total",
		Help: "Check-in submissions rejected as already present or duplicate",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, dbQueryDuration, checkIns, checkOuts, rejectedCheckIn, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		dbQueryDuration: dbQueryDuration,
		checkIns:        checkIns,
		checkOuts:       checkOuts,
		rejectedCheckIn: rejectedCheckIn,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveDBQuery records database query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordCheckIn counts a successful check-in.
func (m *MetricsService) RecordCheckIn() {
	if m == nil {
		return
	}
	m.checkIns.Inc()
}

// RecordCheckOut counts records closed by checkout.
func (m *MetricsService) RecordCheckOut(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.checkOuts.Add(float64(count))
}

// RecordCheckInRejected counts rejected submissions.
func (m *MetricsService) RecordCheckInRejected() {
	if m == nil {
		return
	}
	m.rejectedCheckIn.Inc()
}

// Package metrics exposes the service's Prometheus metrics. Metrics
// implements the observer interfaces of the delivery, jobs and ingest
// packages and the circuit breaker state hook.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/notifier/internal/delivery"
	"github.com/dmitrymomot/notifier/internal/notification"
	"github.com/dmitrymomot/notifier/internal/provider"
	"github.com/dmitrymomot/notifier/pkg/resilience"
)

const namespace = "notifier"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	Deliveries       *prometheus.CounterVec
	ProviderCalls    *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	CircuitState     *prometheus.GaugeVec
	CircuitChanges   *prometheus.CounterVec
	Jobs             *prometheus.CounterVec
	PurgedContacts   prometheus.Counter
	EventsProcessed  *prometheus.CounterVec
	EventsFanout     prometheus.Histogram
	NotificationsNew prometheus.Counter
	HTTPRequests     *prometheus.HistogramVec
}

// New creates and registers all metrics on a dedicated registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery attempts by channel and outcome",
		}, []string{"channel", "outcome"}),
		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls by provider and result kind",
		}, []string{"provider", "result"}),
		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Provider call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_state",
			Help:      "Circuit breaker state per service: 0 closed, 1 open, 2 half-open",
		}, []string{"service"}),
		CircuitChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker transitions by service and target state",
		}, []string{"service", "to"}),
		Jobs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Executed jobs by operation and result",
		}, []string{"operation", "result"}),
		PurgedContacts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contact_requests_purged_total",
			Help:      "Contact requests purged after expiry",
		}),
		EventsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_processed_total",
			Help:      "Consumed events by type and result",
		}, []string{"event_type", "result"}),
		EventsFanout: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_notifications",
			Help:      "Notifications created per consumed event",
			Buckets:   []float64{0, 1, 2, 3, 4, 6},
		}),
		NotificationsNew: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "Notifications created from events",
		}),
		HTTPRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route, method and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "status"}),
	}
}

// Registry returns the registry backing the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) DeliveryFinished(channel notification.Channel, outcome delivery.Outcome) {
	m.Deliveries.WithLabelValues(channel.String(), outcome.String()).Inc()
}

func (m *Metrics) ProviderCall(name string, elapsed time.Duration, err error) {
	res := result(err)
	if kind := provider.KindOf(err); kind != "" {
		res = string(kind)
	}
	m.ProviderCalls.WithLabelValues(name, res).Inc()
	m.ProviderLatency.WithLabelValues(name).Observe(elapsed.Seconds())
}

// CircuitStateChanged is a resilience.StateChangeHook.
func (m *Metrics) CircuitStateChanged(service string, _, to resilience.CircuitState) {
	m.CircuitState.WithLabelValues(service).Set(float64(to))
	m.CircuitChanges.WithLabelValues(service, to.String()).Inc()
}

func (m *Metrics) JobFinished(op string, err error) {
	m.Jobs.WithLabelValues(op, result(err)).Inc()
}

func (m *Metrics) ContactsPurged(n int) {
	if n > 0 {
		m.PurgedContacts.Add(float64(n))
	}
}

func (m *Metrics) EventProcessed(eventType string, notifications int, err error) {
	if eventType == "" {
		eventType = "unknown"
	}
	m.EventsProcessed.WithLabelValues(eventType, result(err)).Inc()
	if err == nil {
		m.EventsFanout.Observe(float64(notifications))
		m.NotificationsNew.Add(float64(notifications))
	}
}

// WatchBulkhead exports the occupancy of b.
func (m *Metrics) WatchBulkhead(b *resilience.Bulkhead) {
	labels := prometheus.Labels{"service": b.Name()}
	f := promauto.With(m.registry)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "bulkhead_in_flight",
		Help:        "Calls currently holding a bulkhead slot",
		ConstLabels: labels,
	}, func() float64 { return float64(b.InFlight()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "bulkhead_waiting",
		Help:        "Calls queued for a bulkhead slot",
		ConstLabels: labels,
	}, func() float64 { return float64(b.Waiting()) })
}

// Instrument records the latency of requests served by next. Requests are
// labelled with their chi route pattern, so ids in paths don't blow up
// cardinality.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Observe(time.Since(start).Seconds())
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

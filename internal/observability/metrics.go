package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	HTTPRequests    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	Reductions      prometheus.Counter
	ReductionSteps  *prometheus.CounterVec
	ReduceDuration  prometheus.Histogram
	EventsProcessed *prometheus.CounterVec
	EventsDropped   prometheus.Counter
	BadLines        prometheus.Counter
	AlertsSent      prometheus.Counter
	TrackedDevices  prometheus.Gauge
	Clients         prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		Reductions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigvoid_reductions_total",
			Help: "Snapshots reduced into dashboard views.",
		}),
		ReductionSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvoid_reduction_step_failures_total",
			Help: "Reduction steps that panicked and were left empty.",
		}, []string{"step"}),
		ReduceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sigvoid_reduce_duration_seconds",
			Help:    "Time spent in one reduction pass.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sigvoid_events_processed_total",
			Help: "Sensor events applied to the tracker.",
		}, []string{"type"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigvoid_events_dropped_total",
			Help: "Sensor events rejected because the queue was full.",
		}),
		BadLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigvoid_serial_bad_lines_total",
			Help: "Serial lines that could not be decoded.",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sigvoid_alerts_sent_total",
			Help: "Suspicious-device alerts emitted.",
		}),
		TrackedDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigvoid_tracked_devices",
			Help: "Devices currently held by the tracker.",
		}),
		Clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sigvoid_dashboard_clients",
			Help: "Connected dashboard websocket clients.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.RequestDuration,
		m.Reductions,
		m.ReductionSteps,
		m.ReduceDuration,
		m.EventsProcessed,
		m.EventsDropped,
		m.BadLines,
		m.AlertsSent,
		m.TrackedDevices,
		m.Clients,
	)
	return m
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, endpoint string, status int, seconds float64) {
	m.RequestDuration.WithLabelValues(method, endpoint).Observe(seconds)
	m.HTTPRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

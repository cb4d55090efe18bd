package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Data model metrics
	ObjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lwm2mcore_objects_total",
			Help: "Total number of registered objects",
		},
	)

	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lwm2mcore_instances_total",
			Help: "Total number of object instances by object id",
		},
		[]string{"oid"},
	)

	// Operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwm2mcore_operations_total",
			Help: "Total number of data model operations by kind and result",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lwm2mcore_operation_duration_seconds",
			Help:    "Data model operation duration in seconds by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Attribute storage metrics
	AttributeEntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lwm2mcore_attribute_entries_total",
			Help: "Total number of stored notification attribute entries",
		},
	)

	// Observation subsystem metrics
	ObservationsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lwm2mcore_observations_total",
			Help: "Total number of active observations by ssid",
		},
		[]string{"ssid"},
	)

	NotificationsSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwm2mcore_notifications_sent_total",
			Help: "Total number of notifications sent by result",
		},
		[]string{"result"},
	)

	NotificationPumpCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lwm2mcore_notification_pump_cycle_duration_seconds",
			Help:    "Time taken for one notification pump tick",
			Buckets: prometheus.DefBuckets,
		},
	)

	NotificationPumpCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lwm2mcore_notification_pump_cycles_total",
			Help: "Total number of notification pump ticks completed",
		},
	)

	// Registration metrics
	RegistrationUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lwm2mcore_registration_updates_total",
			Help: "Total number of registration/update cycles run",
		},
	)

	// Debug API metrics
	DebugAPIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lwm2mcore_debugapi_requests_total",
			Help: "Total number of debug introspection API requests by path and status",
		},
		[]string{"path", "status"},
	)

	DebugAPIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lwm2mcore_debugapi_request_duration_seconds",
			Help:    "Debug introspection API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func init() {
	prometheus.MustRegister(ObjectsTotal)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(AttributeEntriesTotal)
	prometheus.MustRegister(ObservationsTotal)
	prometheus.MustRegister(NotificationsSentTotal)
	prometheus.MustRegister(NotificationPumpCycleDuration)
	prometheus.MustRegister(NotificationPumpCyclesTotal)
	prometheus.MustRegister(RegistrationUpdatesTotal)
	prometheus.MustRegister(DebugAPIRequestsTotal)
	prometheus.MustRegister(DebugAPIRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

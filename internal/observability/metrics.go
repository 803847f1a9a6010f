// Package observability provides Prometheus metrics for the attendance pipeline.
package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"face-attendance/internal/models"
)

// Metrics contains all pipeline collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	EventsAccepted    prometheus.Counter
	EventsRejected    *prometheus.CounterVec
	EventsQueued      prometheus.Counter
	DeadLettered      *prometheus.CounterVec
	RetryQueueDepth   prometheus.Gauge
	LedgerRevisions   *prometheus.CounterVec
	RevisionConflicts prometheus.Counter
	AlertsRaised      *prometheus.CounterVec
	AlertsDelivered   *prometheus.CounterVec
	AlertDeliveryErrs *prometheus.CounterVec
	SweepDuration     prometheus.Histogram
	FeedDropped       *prometheus.CounterVec
	registry          *prometheus.Registry
}

// NewMetrics creates the pipeline metrics and registers them on registry
func NewMetrics(registry *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.EventsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_events_accepted_total",
		Help: "Total number of match events accepted into the event log",
	})
	m.EventsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_events_rejected_total",
		Help: "Total number of detections rejected by the ingestor",
	}, []string{"reason"})
	m.EventsQueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_events_queued_total",
		Help: "Total number of detections parked for retry after a dependency failure",
	})
	m.DeadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_dead_letters_total",
		Help: "Total number of items moved to the dead-letter store",
	}, []string{"reason"})
	m.RetryQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_retry_queue_depth",
		Help: "Current number of items waiting in the retry queue",
	})
	m.LedgerRevisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_ledger_revisions_total",
		Help: "Total number of attendance record revisions appended",
	}, []string{"reason"})
	m.RevisionConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "attendance_revision_conflicts_total",
		Help: "Total number of concurrent revision conflicts merged by re-derivation",
	})
	m.AlertsRaised = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_alerts_raised_total",
		Help: "Total number of absence alerts raised",
	}, []string{"kind"})
	m.AlertsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_alerts_delivered_total",
		Help: "Total number of alert deliveries per sink",
	}, []string{"sink"})
	m.AlertDeliveryErrs = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_alert_delivery_errors_total",
		Help: "Total number of failed alert deliveries per sink",
	}, []string{"sink"})
	m.SweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "attendance_sweep_duration_seconds",
		Help:    "Duration of absence evaluator sweeps",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	m.FeedDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_feed_dropped_total",
		Help: "Ledger change notifications dropped because a subscriber was full",
	}, []string{"subscriber"})
}

// RecordRejected increments the reject counter for reason
func (m *Metrics) RecordRejected(reason models.RejectReason) {
	if m == nil {
		return
	}
	m.EventsRejected.WithLabelValues(string(reason)).Inc()
}

// RecordAccepted increments the accepted counter
func (m *Metrics) RecordAccepted() {
	if m == nil {
		return
	}
	m.EventsAccepted.Inc()
}

// RecordQueued increments the retry enqueue counter
func (m *Metrics) RecordQueued() {
	if m == nil {
		return
	}
	m.EventsQueued.Inc()
}

// RecordDeadLetter increments the dead-letter counter for reason
func (m *Metrics) RecordDeadLetter(reason models.RejectReason) {
	if m == nil {
		return
	}
	m.DeadLettered.WithLabelValues(string(reason)).Inc()
}

// SetRetryQueueDepth updates the retry queue gauge
func (m *Metrics) SetRetryQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.RetryQueueDepth.Set(float64(depth))
}

// RecordRevision counts an appended ledger revision
func (m *Metrics) RecordRevision(reason models.RevisionReason) {
	if m == nil {
		return
	}
	m.LedgerRevisions.WithLabelValues(string(reason)).Inc()
}

// RecordRevisionConflict counts a merged concurrent write
func (m *Metrics) RecordRevisionConflict() {
	if m == nil {
		return
	}
	m.RevisionConflicts.Inc()
}

// RecordAlertRaised counts a newly raised alert
func (m *Metrics) RecordAlertRaised(kind models.AlertKind) {
	if m == nil {
		return
	}
	m.AlertsRaised.WithLabelValues(string(kind)).Inc()
}

// RecordDelivery counts an alert delivery attempt outcome for a sink
func (m *Metrics) RecordDelivery(sink string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.AlertDeliveryErrs.WithLabelValues(sink).Inc()
		return
	}
	m.AlertsDelivered.WithLabelValues(sink).Inc()
}

// ObserveSweep records a sweep duration
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}

// RecordFeedDrop counts a change notification dropped for subscriber
func (m *Metrics) RecordFeedDrop(subscriber string) {
	if m == nil {
		return
	}
	m.FeedDropped.WithLabelValues(subscriber).Inc()
}

// Handler returns the /metrics HTTP handler for the registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Describe implements the prometheus.Collector interface.
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.EventsAccepted.Describe(ch)
	m.EventsRejected.Describe(ch)
	m.EventsQueued.Describe(ch)
	m.DeadLettered.Describe(ch)
	m.RetryQueueDepth.Describe(ch)
	m.LedgerRevisions.Describe(ch)
	m.RevisionConflicts.Describe(ch)
	m.AlertsRaised.Describe(ch)
	m.AlertsDelivered.Describe(ch)
	m.AlertDeliveryErrs.Describe(ch)
	m.SweepDuration.Describe(ch)
	m.FeedDropped.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.EventsAccepted.Collect(ch)
	m.EventsRejected.Collect(ch)
	m.EventsQueued.Collect(ch)
	m.DeadLettered.Collect(ch)
	m.RetryQueueDepth.Collect(ch)
	m.LedgerRevisions.Collect(ch)
	m.RevisionConflicts.Collect(ch)
	m.AlertsRaised.Collect(ch)
	m.AlertsDelivered.Collect(ch)
	m.AlertDeliveryErrs.Collect(ch)
	m.SweepDuration.Collect(ch)
	m.FeedDropped.Collect(ch)
}

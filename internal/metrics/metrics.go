package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions          *prometheus.CounterVec
	TransitionErrors     *prometheus.CounterVec
	Conflicts            prometheus.Counter
	NotificationFailures *prometheus.CounterVec
	LockWait             prometheus.Histogram
	CascadeCancellations *prometheus.CounterVec
}

// New registers the booking metrics on reg. Pass prometheus.DefaultRegisterer
// in binaries and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_transitions_total",
			Help: "Total number of committed reservation transitions",
		}, []string{"transition"}),
		TransitionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_transition_errors_total",
			Help: "Total number of refused or failed reservation transitions",
		}, []string{"transition", "kind"}),
		Conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "reservation_conflicts_total",
			Help: "Total number of requests or approvals refused for overlapping a blocking reservation",
		}),
		NotificationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reservation_notification_failures_total",
			Help: "Total number of notifications the notifier failed to accept",
		}, []string{"event"}),
		LockWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "reservation_lock_wait_seconds",
			Help:    "Time spent waiting for an item lock",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		CascadeCancellations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "standing_cascade_cancellations_total",
			Help: "Reservations cancelled by account standing changes",
		}, []string{"result"}),
	}
}

// NewNop returns metrics bound to a private registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) RecordTransition(transition string) {
	m.Transitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) RecordTransitionError(transition, kind string) {
	m.TransitionErrors.WithLabelValues(transition, kind).Inc()
}

func (m *Metrics) RecordConflict() {
	m.Conflicts.Inc()
}

func (m *Metrics) RecordNotificationFailure(event string) {
	m.NotificationFailures.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordLockWait(d time.Duration) {
	m.LockWait.Observe(d.Seconds())
}

func (m *Metrics) RecordCascadeCancellation(err error) {
	if err != nil {
		m.CascadeCancellations.WithLabelValues("failed").Inc()
		return
	}
	m.CascadeCancellations.WithLabelValues("cancelled").Inc()
}

package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for lifecycle operations and notifications.
type BookingMetrics struct {
	operationsTotal    *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	remindersTotal     prometheus.Counter
	criticalSection    prometheus.Histogram
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Lifecycle operations by name and outcome",
		}, []string{"operation", "outcome"}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "notify",
			Name:      "deliveries_total",
			Help:      "Notification deliveries by channel and status",
		}, []string{"channel", "status"}),
		remindersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "reminders_total",
			Help:      "Upcoming-appointment reminders sent",
		}),
		criticalSection: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "booking",
			Name:      "date_lock_seconds",
			Help:      "Time spent inside the per-date critical section",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.notificationsTotal, m.remindersTotal, m.criticalSection)
	return m
}

// ObserveOperation records one lifecycle call; an empty outcome means success.
func (m *BookingMetrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveDelivery(channel string, ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "failed"
	}
	m.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (m *BookingMetrics) ObserveReminder() {
	if m == nil {
		return
	}
	m.remindersTotal.Inc()
}

func (m *BookingMetrics) ObserveCriticalSection(seconds float64) {
	if m == nil {
		return
	}
	m.criticalSection.Observe(seconds)
}

package calendar

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/planner-dashboard/backend/internal/storage/models"
)

// Metrics holds the reminder scheduler's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	fired         *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	retired       prometheus.Counter
	tickDur       prometheus.Summary
	eventsScanned prometheus.Gauge
	pending       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		fired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "reminders_fired_total",
			Help:      "Reminders delivered, by channel",
		}, []string{"channel"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "reminders_skipped_total",
			Help:      "Due reminders that could not be delivered on a tick",
		}, []string{"channel", "reason"}),
		retired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "reminders_retired_total",
			Help:      "Overdue reminders retired without delivery",
		}),
		tickDur: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace: "planner",
			Name:      "reminder_tick_duration_seconds",
			Help:      "Time spent scanning reminders per tick",
		}),
		eventsScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "planner",
			Name:      "events",
			Help:      "Events in the store at the last tick",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "planner",
			Name:      "reminders_pending",
			Help:      "Pending reminders after the last tick",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.fired, m.skipped, m.retired, m.tickDur, m.eventsScanned, m.pending)
	}
	return m
}

func (m *Metrics) reminderFired(ch models.Channel) {
	if m == nil {
		return
	}
	m.fired.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) reminderSkipped(ch models.Channel, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(string(ch), reason).Inc()
}

func (m *Metrics) reminderRetired() {
	if m == nil {
		return
	}
	m.retired.Inc()
}

func (m *Metrics) observeTick(d time.Duration, events, pending int) {
	if m == nil {
		return
	}
	m.tickDur.Observe(d.Seconds())
	m.eventsScanned.Set(float64(events))
	m.pending.Set(float64(pending))
}

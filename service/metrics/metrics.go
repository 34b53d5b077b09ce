package metrics

import "github.com/prometheus/client_golang/prometheus"

// Booking outcomes.
const (
	OutcomeBooked   = "booked"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Drop reasons for relayed signaling messages.
const (
	DropNoPeer       = "no-peer"
	DropSlowConsumer = "slow-consumer"
)

// Metrics exposes counters and gauges for booking and call signaling.
type Metrics struct {
	bookingTotal  *prometheus.CounterVec
	signalTotal   *prometheus.CounterVec
	droppedTotal  *prometheus.CounterVec
	presenceGauge prometheus.Gauge
	roomsGauge    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		bookingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "booking_total",
			Help:      "Booking attempts by outcome",
		}, []string{"outcome"}),
		signalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "signal_messages_total",
			Help:      "Inbound signaling messages by type",
		}, []string{"type"}),
		droppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telecare",
			Name:      "signal_dropped_total",
			Help:      "Signaling messages not delivered, by reason",
		}, []string{"reason"}),
		presenceGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telecare",
			Name:      "presence_online",
			Help:      "Parties currently online or in a call",
		}),
		roomsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "telecare",
			Name:      "rooms_active",
			Help:      "Signaling rooms with at least one occupant",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingTotal, m.signalTotal, m.droppedTotal, m.presenceGauge, m.roomsGauge)
	return m
}

func (m *Metrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSignal(kind string) {
	if m == nil {
		return
	}
	m.signalTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDrop(reason string) {
	if m == nil {
		return
	}
	m.droppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.presenceGauge.Set(float64(n))
}

func (m *Metrics) SetRoomsActive(n int) {
	if m == nil {
		return
	}
	m.roomsGauge.Set(float64(n))
}

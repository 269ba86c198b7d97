// Package metrics exports decoder and gate activity as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"morsekey/keyer"
)

// Metrics holds the collectors. It implements keyer.Observer.
type Metrics struct {
	events        *prometheus.CounterVec   // decoder events by kind
	outcomes      *prometheus.CounterVec   // confirmation windows by outcome
	pressDuration *prometheus.HistogramVec // press length by classification (dit, dah, noise)
	messageChars  prometheus.Histogram     // characters per finalised message
	awaiting      prometheus.Gauge         // 1 from confirm_open until the gate closes
	lastMessage   prometheus.Gauge         // unix time of the last finalised message
}

// New registers the collectors on reg. Pass prometheus.DefaultRegisterer to
// publish on the default /metrics handler.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "morsekey_decoder_events_total",
				Help: "Decoder events by kind",
			},
			[]string{"kind"},
		),
		outcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "morsekey_gate_outcomes_total",
				Help: "Confirmation windows closed, by outcome",
			},
			[]string{"outcome"},
		),
		pressDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "morsekey_press_duration_seconds",
				Help:    "Key press length by classification",
				Buckets: []float64{0.01, 0.02, 0.05, 0.1, 0.15, 0.2, 0.3, 0.5, 1},
			},
			[]string{"kind"},
		),
		messageChars: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "morsekey_message_characters",
				Help:    "Characters per finalised message, spaces included",
				Buckets: prometheus.ExponentialBuckets(1, 2, 8),
			},
		),
		awaiting: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "morsekey_confirmation_open",
				Help: "1 while the confirmation window accepts a tap",
			},
		),
		lastMessage: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "morsekey_last_message_timestamp_seconds",
				Help: "Unix time of the last finalised message",
			},
		),
	}
}

func (m *Metrics) ObserveEvent(ev keyer.Event) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(ev.Kind.String()).Inc()
	switch ev.Kind {
	case keyer.EventDit, keyer.EventDah, keyer.EventNoise:
		m.pressDuration.WithLabelValues(ev.Kind.String()).Observe(ev.Duration.Seconds())
	case keyer.EventMessage:
		m.messageChars.Observe(float64(len([]rune(ev.Text))))
		m.lastMessage.Set(float64(ev.At.Unix()))
	case keyer.EventConfirmOpen:
		m.awaiting.Set(1)
	}
}

func (m *Metrics) ObserveOutcome(res keyer.GateResult) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(res.Outcome.String()).Inc()
	m.awaiting.Set(0)
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"morsekey/keyer"
)

func TestMetricsCountEventsAndOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	at := time.Unix(1700000000, 0)

	m.ObserveEvent(keyer.Event{Kind: keyer.EventDit, Duration: 60 * time.Millisecond})
	m.ObserveEvent(keyer.Event{Kind: keyer.EventDit, Duration: 70 * time.Millisecond})
	m.ObserveEvent(keyer.Event{Kind: keyer.EventDah, Duration: 200 * time.Millisecond})
	m.ObserveEvent(keyer.Event{Kind: keyer.EventMessage, At: at, Text: "SOS"})

	if got := testutil.ToFloat64(m.events.WithLabelValues("dit")); got != 2 {
		t.Fatalf("expected 2 dits, got %v", got)
	}
	if got := testutil.ToFloat64(m.awaiting); got != 0 {
		t.Fatalf("expected no open window before confirm_open, got %v", got)
	}
	m.ObserveEvent(keyer.Event{Kind: keyer.EventConfirmOpen, At: at.Add(2 * time.Second), Text: "SOS"})
	if got := testutil.ToFloat64(m.awaiting); got != 1 {
		t.Fatalf("expected confirmation gauge 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastMessage); got != float64(at.Unix()) {
		t.Fatalf("expected last message timestamp %d, got %v", at.Unix(), got)
	}
	if got := testutil.CollectAndCount(m.pressDuration); got != 2 {
		t.Fatalf("expected dit and dah histogram series, got %d", got)
	}

	m.ObserveOutcome(keyer.GateResult{Outcome: keyer.OutcomeSkipped})
	if got := testutil.ToFloat64(m.outcomes.WithLabelValues("skipped")); got != 1 {
		t.Fatalf("expected 1 skipped outcome, got %v", got)
	}
	if got := testutil.ToFloat64(m.awaiting); got != 0 {
		t.Fatalf("expected confirmation gauge cleared, got %v", got)
	}
}

func TestMetricsRegisterOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	New(reg)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveEvent(keyer.Event{Kind: keyer.EventDit})
	m.ObserveOutcome(keyer.GateResult{Outcome: keyer.OutcomeSent})
}

func TestMessageWithoutGateLeavesWindowClosed(t *testing.T) {
	m := New(prometheus.NewRegistry())
	for i := 0; i < 3; i++ {
		m.ObserveEvent(keyer.Event{Kind: keyer.EventMessage, At: time.Unix(1700000000+int64(i), 0), Text: "CQ"})
	}
	if got := testutil.ToFloat64(m.awaiting); got != 0 {
		t.Fatalf("expected gauge 0 when no confirmation window opens, got %v", got)
	}
	if got := testutil.ToFloat64(m.events.WithLabelValues("message")); got != 3 {
		t.Fatalf("expected 3 messages counted, got %v", got)
	}
}

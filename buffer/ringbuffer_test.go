package buffer

import (
	"errors"
	"testing"
	"time"

	"morsekey/keyer"
)

func TestRingBufferWrapsNewestFirst(t *testing.T) {
	rb := NewRingBuffer(3)
	for _, text := range []string{"A", "B", "C", "D", "E"} {
		rb.Add(&Record{Text: text})
	}
	got := rb.GetRecent(10)
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	want := []string{"E", "D", "C"}
	for i, r := range got {
		if r.Text != want[i] {
			t.Fatalf("expected %v, got record %d = %q", want, i, r.Text)
		}
	}
	if rb.GetCount() != 5 {
		t.Fatalf("expected total count 5, got %d", rb.GetCount())
	}
	if len(rb.GetRecent(0)) != 0 {
		t.Fatalf("expected empty result for n=0")
	}
}

func TestRingBufferUpdate(t *testing.T) {
	rb := NewRingBuffer(2)
	first := rb.Add(&Record{Text: "A"})
	if !rb.Update(first, func(r *Record) { r.Outcome = "sent" }) {
		t.Fatalf("expected update to succeed")
	}
	if got := rb.GetRecent(1)[0]; got.Outcome != "sent" || got.ID != first {
		t.Fatalf("unexpected record after update %+v", got)
	}
	rb.Add(&Record{Text: "B"})
	rb.Add(&Record{Text: "C"})
	if rb.Update(first, func(r *Record) { r.Outcome = "skipped" }) {
		t.Fatalf("expected update of evicted record to fail")
	}
}

func TestHistoryRecordsOutcome(t *testing.T) {
	h := NewHistory(NewRingBuffer(4))
	done := time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)
	msg := &keyer.Message{Morse: ".... ..", Text: "HI", Words: [][]string{{"....", ".."}}, CompletedAt: done}

	h.ObserveEvent(keyer.Event{Kind: keyer.EventDit})
	h.ObserveEvent(keyer.Event{Kind: keyer.EventMessage, Message: msg})
	if got := h.Ring().GetRecent(1)[0]; got.Outcome != OutcomeDecoded || got.Text != "HI" {
		t.Fatalf("unexpected pending record %+v", got)
	}

	h.ObserveOutcome(keyer.GateResult{
		Outcome:  keyer.OutcomeFailed,
		Err:      errors.New("broker down"),
		ClosedAt: done.Add(3 * time.Second),
	})
	got := h.Ring().GetRecent(1)[0]
	if got.Outcome != "failed" || got.Error != "broker down" || !got.ClosedAt.Equal(done.Add(3*time.Second)) {
		t.Fatalf("unexpected closed record %+v", got)
	}
	if h.Ring().GetCount() != 1 {
		t.Fatalf("expected only message events to add records")
	}
}

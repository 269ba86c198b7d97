package keyer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var testTiming = Timing{
	Keypress: 20 * time.Millisecond,
	DitDah:   150 * time.Millisecond,
	Char:     300 * time.Millisecond,
	Word:     800 * time.Millisecond,
	Message:  2000 * time.Millisecond,
}

var testEpoch = time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC)

// sim drives a Decoder with a virtual clock, one sample per step.
type sim struct {
	t      *testing.T
	d      *Decoder
	now    time.Time
	step   time.Duration
	events []Event
}

func newSim(t *testing.T, step time.Duration) *sim {
	t.Helper()
	d, err := NewDecoder(DecoderConfig{Timing: testTiming})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	return &sim{t: t, d: d, now: testEpoch, step: step}
}

// hold feeds key for dur; the first sample lands one step after the current time.
func (s *sim) hold(key KeyState, dur time.Duration) {
	end := s.now.Add(dur)
	for s.now.Before(end) {
		s.now = s.now.Add(s.step)
		s.events = append(s.events, s.d.Observe(key, s.now)...)
	}
}

func (s *sim) press(dur time.Duration)   { s.hold(KeyPressed, dur) }
func (s *sim) silence(dur time.Duration) { s.hold(KeyReleased, dur) }

func (s *sim) kinds() []EventKind {
	out := make([]EventKind, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (s *sim) count(kind EventKind) int {
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func (s *sim) last(kind EventKind) (Event, bool) {
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Kind == kind {
			return s.events[i], true
		}
	}
	return Event{}, false
}

// key sends one Morse group: dits 60ms, dahs 200ms, 60ms between symbols.
func (s *sim) key(group string) {
	for i, r := range group {
		if i > 0 {
			s.silence(60 * time.Millisecond)
		}
		if r == '.' {
			s.press(60 * time.Millisecond)
		} else {
			s.press(200 * time.Millisecond)
		}
	}
}

// fakeInput returns scripted samples; the zero value always reports released.
type fakeInput struct {
	mu    sync.Mutex
	state KeyState
}

func (f *fakeInput) Sample() KeyState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeInput) set(k KeyState) {
	f.mu.Lock()
	f.state = k
	f.mu.Unlock()
}

type displayCall struct{ line1, line2 string }

type fakeIndicator struct {
	mu       sync.Mutex
	active   []bool
	flashes  []int
	displays []displayCall
}

func (f *fakeIndicator) SetActive(on bool) {
	f.mu.Lock()
	f.active = append(f.active, on)
	f.mu.Unlock()
}

func (f *fakeIndicator) Flash(count int, _ time.Duration) {
	f.mu.Lock()
	f.flashes = append(f.flashes, count)
	f.mu.Unlock()
}

func (f *fakeIndicator) Display(line1, line2 string) {
	f.mu.Lock()
	f.displays = append(f.displays, displayCall{line1, line2})
	f.mu.Unlock()
}

func (f *fakeIndicator) lastDisplay() displayCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.displays) == 0 {
		return displayCall{}
	}
	return f.displays[len(f.displays)-1]
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	err   error
	calls int
}

func (f *fakeSender) Send(_ context.Context, text string) (Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Receipt{}, f.err
	}
	f.sent = append(f.sent, text)
	return Receipt{ID: "r-1", Destination: "test"}, nil
}

var errSendBoom = errors.New("boom")

type recordingObserver struct {
	events   []Event
	outcomes []GateResult
}

func (r *recordingObserver) ObserveEvent(ev Event)         { r.events = append(r.events, ev) }
func (r *recordingObserver) ObserveOutcome(res GateResult) { r.outcomes = append(r.outcomes, res) }

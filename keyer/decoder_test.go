package keyer

import (
	"reflect"
	"testing"
	"time"
)

func TestPressClassification(t *testing.T) {
	cases := []struct {
		name string
		held time.Duration
		want EventKind
	}{
		{"bounce", 5 * time.Millisecond, EventNoise},
		{"at keypress threshold", 20 * time.Millisecond, EventNoise},
		{"just above keypress threshold", 21 * time.Millisecond, EventDit},
		{"just below ditdah threshold", 149 * time.Millisecond, EventDit},
		{"at ditdah threshold", 150 * time.Millisecond, EventDah},
		{"long", 600 * time.Millisecond, EventDah},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newSim(t, time.Millisecond)
			s.press(tc.held)
			s.silence(time.Millisecond)

			symbolEvents := s.count(EventDit) + s.count(EventDah) + s.count(EventNoise)
			if symbolEvents != 1 {
				t.Fatalf("expected exactly one classification event, got %v", s.kinds())
			}
			if s.count(tc.want) != 1 {
				t.Fatalf("expected %s, got %v", tc.want, s.kinds())
			}
			switch tc.want {
			case EventNoise:
				if got := s.d.SymbolBuffer(); got != "" {
					t.Fatalf("expected no symbol for noise, got %q", got)
				}
				if s.d.State() != StateIdle {
					t.Fatalf("expected idle after noise, got %s", s.d.State())
				}
			case EventDit:
				if got := s.d.SymbolBuffer(); got != "." {
					t.Fatalf("expected dit in buffer, got %q", got)
				}
			case EventDah:
				if got := s.d.SymbolBuffer(); got != "-" {
					t.Fatalf("expected dah in buffer, got %q", got)
				}
			}
		})
	}
}

func TestKeyDownFiresOncePerPress(t *testing.T) {
	s := newSim(t, 5*time.Millisecond)
	s.press(300 * time.Millisecond)
	if s.d.State() != StatePressedConfirmed {
		t.Fatalf("expected confirmed press, got %s", s.d.State())
	}
	s.silence(5 * time.Millisecond)
	if got := s.count(EventKeyDown); got != 1 {
		t.Fatalf("expected one key_down, got %d", got)
	}
	if got := s.count(EventKeyUp); got != 1 {
		t.Fatalf("expected one key_up, got %d", got)
	}
}

func TestCharacterBandFlushesExactlyOnce(t *testing.T) {
	s := newSim(t, 10*time.Millisecond)
	s.key(".")
	s.silence(500 * time.Millisecond) // 50 polls inside the character band

	if got := s.count(EventCharacter); got != 1 {
		t.Fatalf("expected one character event, got %d (%v)", got, s.kinds())
	}
	if got := s.count(EventWord); got != 0 {
		t.Fatalf("expected no word event inside the character band, got %d", got)
	}
	ev, _ := s.last(EventCharacter)
	if ev.Symbols != "." || ev.Text != "E" {
		t.Fatalf("unexpected character event %+v", ev)
	}
	if s.d.SymbolBuffer() != "" {
		t.Fatalf("expected symbol buffer flushed, got %q", s.d.SymbolBuffer())
	}
	if !reflect.DeepEqual(s.d.WordBuffer(), []string{"."}) {
		t.Fatalf("unexpected word buffer %v", s.d.WordBuffer())
	}
}

func TestSOSRoundTrip(t *testing.T) {
	s := newSim(t, 10*time.Millisecond)
	s.key("...")
	s.silence(400 * time.Millisecond)
	s.key("---")
	s.silence(400 * time.Millisecond)
	s.key("...")
	s.silence(2100 * time.Millisecond)

	if got := s.count(EventCharacter); got != 3 {
		t.Fatalf("expected 3 characters, got %d", got)
	}
	if got := s.count(EventWord); got != 1 {
		t.Fatalf("expected 1 word, got %d", got)
	}
	word, _ := s.last(EventWord)
	if word.Text != "SOS" {
		t.Fatalf("expected word SOS, got %q", word.Text)
	}
	msg, ok := s.last(EventMessage)
	if !ok {
		t.Fatalf("expected message event, got %v", s.kinds())
	}
	if msg.Text != "SOS" || msg.Symbols != "... --- ..." {
		t.Fatalf("unexpected message %q / %q", msg.Text, msg.Symbols)
	}
	if msg.Message == nil || len(msg.Message.Words) != 1 {
		t.Fatalf("expected message payload with one word, got %+v", msg.Message)
	}
	if !s.d.Empty() {
		t.Fatalf("expected all buffers empty after message")
	}
	if s.d.State() != StateIdle {
		t.Fatalf("expected idle after message, got %s", s.d.State())
	}
}

func TestTwoWordMessageUsesDelimiters(t *testing.T) {
	d, err := NewDecoder(DecoderConfig{Timing: testTiming, CharDelimiter: " ", WordDelimiter: " / "})
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	s := &sim{t: t, d: d, now: testEpoch, step: 10 * time.Millisecond}
	s.key("....")
	s.silence(400 * time.Millisecond)
	s.key("..")
	s.silence(1000 * time.Millisecond)
	s.key(".-")
	s.silence(2100 * time.Millisecond)

	msg, ok := s.last(EventMessage)
	if !ok {
		t.Fatalf("expected message, got %v", s.kinds())
	}
	if msg.Text != "HI A" {
		t.Fatalf("expected HI A, got %q", msg.Text)
	}
	if msg.Symbols != ".... .. / .-" {
		t.Fatalf("unexpected raw rendering %q", msg.Symbols)
	}
}

func TestPressAbortsSilenceEvaluation(t *testing.T) {
	s := newSim(t, 10*time.Millisecond)
	s.key(".")
	s.silence(250 * time.Millisecond)
	s.key(".")
	if got := s.count(EventCharacter); got != 0 {
		t.Fatalf("expected no character before the threshold, got %d", got)
	}
	s.silence(400 * time.Millisecond)
	ev, ok := s.last(EventCharacter)
	if !ok || ev.Symbols != ".." || ev.Text != "I" {
		t.Fatalf("expected character I, got %+v (%v)", ev, s.kinds())
	}
}

func TestCoarsePollCascadesBoundaries(t *testing.T) {
	s := newSim(t, 10*time.Millisecond)
	s.key("-")
	s.silence(10 * time.Millisecond)
	s.events = nil

	s.now = s.now.Add(2500 * time.Millisecond)
	s.events = append(s.events, s.d.Observe(KeyReleased, s.now)...)

	want := []EventKind{EventCharacter, EventWord, EventMessage}
	if !reflect.DeepEqual(s.kinds(), want) {
		t.Fatalf("expected %v, got %v", want, s.kinds())
	}
	msg, _ := s.last(EventMessage)
	if msg.Text != "T" {
		t.Fatalf("expected T, got %q", msg.Text)
	}
}

func TestNoiseDuringSilenceKeepsOriginalRelease(t *testing.T) {
	s := newSim(t, 10*time.Millisecond)
	s.key(".")
	s.silence(100 * time.Millisecond)
	dit, _ := s.last(EventDit)

	s.press(10 * time.Millisecond)
	s.silence(400 * time.Millisecond)

	if got := s.count(EventNoise); got != 1 {
		t.Fatalf("expected one noise event, got %d", got)
	}
	ch, ok := s.last(EventCharacter)
	if !ok {
		t.Fatalf("expected character after noise, got %v", s.kinds())
	}
	if want := dit.At.Add(310 * time.Millisecond); !ch.At.Equal(want) {
		t.Fatalf("expected character at %s, got %s", want.Format(time.RFC3339Nano), ch.At.Format(time.RFC3339Nano))
	}
	if ch.Symbols != "." {
		t.Fatalf("expected noise to add no symbol, got %q", ch.Symbols)
	}
}

func TestUnmappedGroupDecodesToPlaceholder(t *testing.T) {
	s := newSim(t, 10*time.Millisecond)
	s.key(".......")
	s.silence(2100 * time.Millisecond)
	msg, ok := s.last(EventMessage)
	if !ok {
		t.Fatalf("expected message, got %v", s.kinds())
	}
	if msg.Text != "?" {
		t.Fatalf("expected ?, got %q", msg.Text)
	}
}

func TestResetLatchesUntilRelease(t *testing.T) {
	s := newSim(t, 10*time.Millisecond)
	s.key("..")
	s.d.Reset()
	if !s.d.Empty() {
		t.Fatalf("expected buffers cleared by reset")
	}
	s.events = nil
	s.press(100 * time.Millisecond)
	if s.d.State() != StateIdle || len(s.events) != 0 {
		t.Fatalf("expected held key to be ignored while latched, got %s %v", s.d.State(), s.kinds())
	}
	s.silence(20 * time.Millisecond)
	if !s.d.Armed() {
		t.Fatalf("expected release to re-arm the decoder")
	}
	s.key(".")
	s.silence(10 * time.Millisecond)
	if got := s.d.SymbolBuffer(); got != "." {
		t.Fatalf("expected fresh symbol after re-arm, got %q", got)
	}
}

func TestPartialText(t *testing.T) {
	s := newSim(t, 10*time.Millisecond)
	s.key("....")
	s.silence(400 * time.Millisecond)
	s.key("..")
	s.silence(1000 * time.Millisecond)
	s.key("-")
	s.silence(400 * time.Millisecond)
	if got := s.d.PartialText(); got != "HI T" {
		t.Fatalf("expected partial HI T, got %q", got)
	}
}

func TestNewDecoderRejectsBadTiming(t *testing.T) {
	bad := testTiming
	bad.Char = bad.Word
	if _, err := NewDecoder(DecoderConfig{Timing: bad}); err == nil {
		t.Fatalf("expected invalid timing to be rejected")
	}
}

package config

import (
	"testing"
	"time"

	"morsekey/keyer"
)

func TestStationConfigFromDefaults(t *testing.T) {
	sc := Default().StationConfig()
	if err := sc.Decoder.Timing.Validate(); err != nil {
		t.Fatalf("expected default timing to validate, got %v", err)
	}
	want := keyer.Timing{
		Keypress: 20 * time.Millisecond,
		DitDah:   180 * time.Millisecond,
		Char:     400 * time.Millisecond,
		Word:     time.Second,
		Message:  3 * time.Second,
	}
	if sc.Decoder.Timing != want {
		t.Fatalf("expected %+v, got %+v", want, sc.Decoder.Timing)
	}
	if sc.Gate.Quiet != 2*time.Second || sc.Gate.Window != 5*time.Second {
		t.Fatalf("unexpected gate config %+v", sc.Gate)
	}
	if sc.PollInterval != 5*time.Millisecond || sc.Notify.TransmittedFlashes != 5 || sc.Notify.ConfirmFlashes != 3 {
		t.Fatalf("unexpected poll/notify config %+v", sc)
	}
	if sc.Decoder.WordDelimiter != " / " {
		t.Fatalf("expected default word delimiter, got %q", sc.Decoder.WordDelimiter)
	}
}
